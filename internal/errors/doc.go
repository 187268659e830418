// Package errors provides structured, coded errors and warnings for reactor.
//
// Every misuse the runtime detects (writing to a readonly view, watching an
// invalid source, disposing without a scope) is reported as a ReactorError
// with a stable code, so logs and metrics can be grouped by code rather than
// by message text.
//
// # Error Categories
//
//   - runtime: misuse of the reactive API (R100-R129)
//   - scheduler: flush-time problems such as runaway recursion (R130-R149)
//   - config: configuration loading and validation (C200-C219)
//   - workload: scenario and bench reports (W300-W319)
//   - cli: command line usage (X400-X419)
//
// # Usage
//
//	err := errors.New(errors.CodeReadonlySet).
//	    WithArgs("key", "count").
//	    WithSuggestion("Write through the reactive view instead.")
//
//	fmt.Println(err.Format())
//	// Output:
//	// WARN R101: Set operation on key failed: target is readonly
//	//
//	//   key: count
//	//
//	//   Hint: Write through the reactive view instead.
package errors
