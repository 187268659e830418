package workload

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/reactive"
)

// Scenario is a scripted run against a reactive state tree. It declares the
// initial state, the effects, computeds and watchers observing it, and the
// steps that mutate it.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// State is the initial root object. Mappings become objects, sequences
	// become arrays. Key order is kept.
	State yaml.Node `yaml:"state,omitempty"`

	// Refs are standalone refs, addressed as "ref:<name>".
	Refs map[string]any `yaml:"refs,omitempty"`

	Computeds []ComputedSpec `yaml:"computeds,omitempty"`
	Effects   []EffectSpec   `yaml:"effects,omitempty"`
	Watchers  []WatcherSpec  `yaml:"watchers,omitempty"`
	Steps     []Step         `yaml:"steps"`
}

// Computed operations.
const (
	OpGet  = "get"
	OpSum  = "sum"
	OpLen  = "len"
	OpJoin = "join"
	OpKeys = "keys"
)

// ComputedSpec declares a computed, addressed as "computed:<name>".
type ComputedSpec struct {
	Name string `yaml:"name"`

	// Op is get, sum, len, join or keys.
	Op string `yaml:"op"`

	// Source is the path or source the operation reads.
	Source string `yaml:"source"`
}

// EffectSpec declares an effect that reads its sources on every run.
type EffectSpec struct {
	Name  string   `yaml:"name"`
	Reads []string `yaml:"reads"`
}

// WatcherSpec declares a watcher. With Effect set it is a watchEffect over
// Sources; otherwise it watches Sources and logs each callback.
type WatcherSpec struct {
	Name      string   `yaml:"name"`
	Sources   []string `yaml:"sources"`
	Effect    bool     `yaml:"effect,omitempty"`
	Deep      bool     `yaml:"deep,omitempty"`
	Immediate bool     `yaml:"immediate,omitempty"`
	Flush     string   `yaml:"flush,omitempty"`
}

// Step is one action. Exactly one field must be set.
type Step struct {
	Set     *SetStep    `yaml:"set,omitempty"`
	Delete  string      `yaml:"delete,omitempty"`
	Push    *ListStep   `yaml:"push,omitempty"`
	Pop     string      `yaml:"pop,omitempty"`
	Shift   string      `yaml:"shift,omitempty"`
	Unshift *ListStep   `yaml:"unshift,omitempty"`
	Splice  *SpliceStep `yaml:"splice,omitempty"`
	Ref     *RefStep    `yaml:"ref,omitempty"`
	Flush   bool        `yaml:"flush,omitempty"`
	Stop    string      `yaml:"stop,omitempty"`
	Expect  *Expect     `yaml:"expect,omitempty"`
}

// SetStep writes Value at Path.
type SetStep struct {
	Path  string `yaml:"path"`
	Value any    `yaml:"value"`
}

// ListStep adds Values to the array at Path.
type ListStep struct {
	Path   string `yaml:"path"`
	Values []any  `yaml:"values"`
}

// SpliceStep splices the array at Path.
type SpliceStep struct {
	Path        string `yaml:"path"`
	Start       int    `yaml:"start"`
	DeleteCount int    `yaml:"deleteCount"`
	Values      []any  `yaml:"values,omitempty"`
}

// RefStep assigns a standalone ref.
type RefStep struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
}

// Expect asserts on the run so far.
type Expect struct {
	// Runs maps an effect, computed or watcher name to its run count.
	Runs map[string]int `yaml:"runs,omitempty"`

	// Values maps a source to its expected current value.
	Values map[string]any `yaml:"values,omitempty"`

	// Log lists lines that must appear in the trace.
	Log []string `yaml:"log,omitempty"`
}

func (s *Step) action() (string, int) {
	var name string
	n := 0
	set := func(ok bool, what string) {
		if ok {
			n++
			name = what
		}
	}
	set(s.Set != nil, "set")
	set(s.Delete != "", "delete")
	set(s.Push != nil, "push")
	set(s.Pop != "", "pop")
	set(s.Shift != "", "shift")
	set(s.Unshift != nil, "unshift")
	set(s.Splice != nil, "splice")
	set(s.Ref != nil, "ref")
	set(s.Flush, "flush")
	set(s.Stop != "", "stop")
	set(s.Expect != nil, "expect")
	return name, n
}

func decodeScenario(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, errors.New(errors.CodeInvalidScenario).
			WithDetail("Failed to parse scenario: " + err.Error())
	}
	return &sc, nil
}

// ParseScenario decodes a YAML scenario and validates it. Unknown fields are
// rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	sc, err := decodeScenario(data)
	if err != nil {
		return nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// LoadScenario reads and parses a scenario file. A scenario without a name
// is named after its file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidScenario).Wrap(err)
	}
	sc, err := decodeScenario(data)
	if err == nil {
		if sc.Name == "" {
			sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		err = sc.Validate()
	}
	if err != nil {
		if re, ok := err.(*errors.ReactorError); ok {
			re.WithSuggestion("Check " + path)
		}
		return nil, err
	}
	return sc, nil
}

func invalid(format string, args ...any) error {
	return errors.New(errors.CodeInvalidScenario).WithDetail(fmt.Sprintf(format, args...))
}

// Validate checks names, references and step shapes.
func (sc *Scenario) Validate() error {
	if sc.Name == "" {
		return invalid("scenario name is required")
	}
	if sc.State.Kind != 0 && sc.State.Kind != yaml.MappingNode {
		return invalid("state must be a mapping")
	}

	names := make(map[string]string)
	declare := func(kind, name string) error {
		if name == "" {
			return invalid("%s without a name", kind)
		}
		if prev, ok := names[name]; ok {
			return invalid("%s %q already declared as a %s", kind, name, prev)
		}
		names[name] = kind
		return nil
	}

	for _, c := range sc.Computeds {
		if err := declare("computed", c.Name); err != nil {
			return err
		}
		switch c.Op {
		case OpGet, OpSum, OpLen, OpJoin, OpKeys:
		default:
			return invalid("computed %q: unknown op %q", c.Name, c.Op)
		}
		if c.Source == "" {
			return invalid("computed %q: source is required", c.Name)
		}
	}
	for _, e := range sc.Effects {
		if err := declare("effect", e.Name); err != nil {
			return err
		}
	}
	for _, w := range sc.Watchers {
		if err := declare("watcher", w.Name); err != nil {
			return err
		}
		if len(w.Sources) == 0 {
			return invalid("watcher %q: sources are required", w.Name)
		}
		switch reactive.FlushTiming(w.Flush) {
		case "", reactive.FlushPre, reactive.FlushPost, reactive.FlushSync:
		default:
			return invalid("watcher %q: flush must be pre, post or sync", w.Name)
		}
	}

	// Sources may name computeds declared later, so check them once every
	// name is known.
	checkSource := func(owner, src string) error {
		if name, ok := strings.CutPrefix(src, computedPrefix); ok {
			if names[name] != "computed" {
				return invalid("%s: unknown computed %q", owner, name)
			}
		}
		if name, ok := strings.CutPrefix(src, refPrefix); ok {
			if _, ok := sc.Refs[name]; !ok {
				return invalid("%s: unknown ref %q", owner, name)
			}
		}
		return nil
	}
	for _, c := range sc.Computeds {
		if err := checkSource("computed "+c.Name, c.Source); err != nil {
			return err
		}
	}
	for _, e := range sc.Effects {
		for _, src := range e.Reads {
			if err := checkSource("effect "+e.Name, src); err != nil {
				return err
			}
		}
	}
	for _, w := range sc.Watchers {
		for _, src := range w.Sources {
			if err := checkSource("watcher "+w.Name, src); err != nil {
				return err
			}
		}
	}

	if len(sc.Steps) == 0 {
		return invalid("scenario has no steps")
	}
	for i := range sc.Steps {
		step := &sc.Steps[i]
		what, n := step.action()
		if n != 1 {
			return invalid("step %d: exactly one action is required, got %d", i+1, n)
		}
		switch what {
		case "ref":
			if _, ok := sc.Refs[step.Ref.Name]; !ok {
				return invalid("step %d: unknown ref %q", i+1, step.Ref.Name)
			}
		case "stop":
			if kind := names[step.Stop]; kind != "effect" && kind != "watcher" && kind != "computed" {
				return invalid("step %d: nothing named %q to stop", i+1, step.Stop)
			}
		case "expect":
			for src := range step.Expect.Values {
				if err := checkSource(fmt.Sprintf("step %d", i+1), src); err != nil {
					return err
				}
			}
			for name := range step.Expect.Runs {
				if _, ok := names[name]; !ok {
					return invalid("step %d: unknown name %q in runs", i+1, name)
				}
			}
		}
	}
	return nil
}
