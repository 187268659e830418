package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// Codes used by the reactive runtime.
const (
	CodeNotObservable    = "R100"
	CodeReadonlySet      = "R101"
	CodeReadonlyDelete   = "R102"
	CodeReadonlyComputed = "R103"
	CodeNotList          = "R104"
	CodeRefTypeMismatch  = "R105"
	CodeReadonlyClear    = "R106"
	CodeInvalidKey       = "R107"
	CodeInvalidWatch     = "R110"
	CodeWatchOptionNoCb  = "R111"
	CodeNoActiveScope    = "R120"
	CodeInactiveScope    = "R121"
	CodeRecursiveUpdates = "R130"
	CodeInvalidConfig    = "C200"
	CodeConfigRead       = "C201"
	CodeInvalidScenario  = "W300"
	CodeAssertionFailed  = "W301"
	CodeReportUpload     = "W302"
	CodeUnknownProfile   = "X400"
)

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Runtime (R100-R129)
	// ============================================

	CodeNotObservable: {
		Category:   CategoryRuntime,
		Message:    "Value cannot be made observable",
		Detail:     "Only *Object, *Array and *Map holders (or views over them) can be wrapped.",
		Suggestion: "Wrap the data in reactive.NewObject, reactive.NewArray or reactive.NewMap first.",
	},
	CodeReadonlySet: {
		Category: CategoryRuntime,
		Message:  "Set operation on key failed: target is readonly",
	},
	CodeReadonlyDelete: {
		Category: CategoryRuntime,
		Message:  "Delete operation on key failed: target is readonly",
	},
	CodeReadonlyComputed: {
		Category:   CategoryRuntime,
		Message:    "Write operation failed: computed value is readonly",
		Suggestion: "Use reactive.NewWritableComputed to supply a setter.",
	},
	CodeNotList: {
		Category: CategoryRuntime,
		Message:  "List operation on a target that is not an array",
	},
	CodeRefTypeMismatch: {
		Category: CategoryRuntime,
		Message:  "Assigned value does not match the ref's element type",
	},
	CodeReadonlyClear: {
		Category: CategoryRuntime,
		Message:  "Clear operation failed: target is readonly",
	},
	CodeInvalidKey: {
		Category:   CategoryRuntime,
		Message:    "Key cannot be used in a map",
		Detail:     "Map keys must be comparable; slices, maps and funcs are not.",
		Suggestion: "Use a string, number, pointer or struct of comparable fields as the key.",
	},
	CodeInvalidWatch: {
		Category:   CategoryRuntime,
		Message:    "Invalid watch source",
		Detail:     "A watch source can only be a ref, a computed, an observable view, a func() any, or a []any of these.",
		Suggestion: "Wrap the value in a getter: func() any { return v }.",
	},
	CodeWatchOptionNoCb: {
		Category: CategoryRuntime,
		Message:  "Watch option only respected when a callback is supplied",
		Detail:   "Immediate and Deep have no effect on WatchEffect.",
	},
	CodeNoActiveScope: {
		Category: CategoryRuntime,
		Message:  "OnScopeDispose called without an active scope",
		Detail:   "The cleanup will never run because no scope is collecting it.",
	},
	CodeInactiveScope: {
		Category: CategoryRuntime,
		Message:  "Cannot run an inactive scope",
	},

	// ============================================
	// Scheduler (R130-R149)
	// ============================================

	CodeRecursiveUpdates: {
		Category:   CategoryScheduler,
		Message:    "Maximum recursive updates exceeded",
		Detail:     "A job kept re-queueing itself within one flush. It has been dropped for the rest of this flush.",
		Suggestion: "Check for effects or watchers that mutate the state they depend on.",
	},

	// ============================================
	// Config (C200-C219)
	// ============================================

	CodeInvalidConfig: {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
	},
	CodeConfigRead: {
		Category: CategoryConfig,
		Message:  "Failed to read configuration file",
	},

	// ============================================
	// Workload (W300-W319)
	// ============================================

	CodeInvalidScenario: {
		Category: CategoryWorkload,
		Message:  "Invalid scenario",
	},
	CodeAssertionFailed: {
		Category: CategoryWorkload,
		Message:  "Scenario assertion failed",
	},
	CodeReportUpload: {
		Category: CategoryWorkload,
		Message:  "Report upload failed",
	},

	// ============================================
	// CLI (X400-X419)
	// ============================================

	CodeUnknownProfile: {
		Category: CategoryCLI,
		Message:  "Unknown bench profile",
		Detail:   "Valid profiles are fast, standard and stress.",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
