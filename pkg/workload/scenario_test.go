package workload

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/reactive"
)

type countingObserver struct {
	flushes int
	effects int
}

func (o *countingObserver) FlushStarted(int)                   {}
func (o *countingObserver) FlushCompleted(reactive.FlushStats) { o.flushes++ }
func (o *countingObserver) EffectRun(reactive.EffectKind)      { o.effects++ }
func (o *countingObserver) ErrorReported(reactive.ErrorLabel)  {}
func (o *countingObserver) Warned(string)                      {}

func quietRunner(opts ...RunnerOption) *Runner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRunner(append([]RunnerOption{WithLogger(logger)}, opts...)...)
}

// reactorError asserts that err is a ReactorError with the given code.
func reactorError(t *testing.T, err error, code string) *errors.ReactorError {
	t.Helper()
	var re *errors.ReactorError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, code, re.Code)
	return re
}

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	sc, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return sc
}

func TestScenarioGolden(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	g := goldie.New(t)
	for _, file := range files {
		sc, err := LoadScenario(file)
		require.NoError(t, err)

		t.Run(sc.Name, func(t *testing.T) {
			res, err := quietRunner().Run(context.Background(), sc)
			require.NoError(t, err)
			assert.True(t, res.Passed(), "failures: %v", res.Failures)
			assert.NoError(t, res.Err())
			g.Assert(t, sc.Name, []byte(res.TraceText()))
		})
	}
}

func TestLoadScenarioDefaultsName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unnamed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps:\n  - flush: true\n"), 0o644))

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "unnamed", sc.Name)
}

func TestLoadScenarioErrors(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	reactorError(t, err, errors.CodeInvalidScenario)
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: bad\nsteps: []\n"), 0o644))
	_, err = LoadScenario(path)
	re := reactorError(t, err, errors.CodeInvalidScenario)
	assert.Equal(t, "Check "+path, re.Suggestion)
	assert.Contains(t, re.Detail, "no steps")
}

func TestParseScenarioInvalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "unknown field",
			src:  "name: x\nbogus: 1\nsteps:\n  - flush: true\n",
			want: "bogus",
		},
		{
			name: "missing name",
			src:  "steps:\n  - flush: true\n",
			want: "name is required",
		},
		{
			name: "state not a mapping",
			src:  "name: x\nstate: [1]\nsteps:\n  - flush: true\n",
			want: "state must be a mapping",
		},
		{
			name: "no steps",
			src:  "name: x\n",
			want: "no steps",
		},
		{
			name: "two actions",
			src:  "name: x\nsteps:\n  - flush: true\n    stop: a\n",
			want: "exactly one action",
		},
		{
			name: "duplicate name",
			src: "name: x\neffects:\n  - name: a\n    reads: [n]\nwatchers:\n  - name: a\n    sources: [n]\n" +
				"steps:\n  - flush: true\n",
			want: `watcher "a" already declared as a effect`,
		},
		{
			name: "unknown op",
			src:  "name: x\ncomputeds:\n  - name: c\n    op: avg\n    source: n\nsteps:\n  - flush: true\n",
			want: `unknown op "avg"`,
		},
		{
			name: "unknown computed source",
			src:  "name: x\neffects:\n  - name: e\n    reads: [\"computed:nope\"]\nsteps:\n  - flush: true\n",
			want: `unknown computed "nope"`,
		},
		{
			name: "unknown ref step",
			src:  "name: x\nsteps:\n  - ref: {name: r, value: 1}\n",
			want: `unknown ref "r"`,
		},
		{
			name: "bad flush timing",
			src:  "name: x\nwatchers:\n  - name: w\n    sources: [n]\n    flush: later\nsteps:\n  - flush: true\n",
			want: "flush must be pre, post or sync",
		},
		{
			name: "stop unknown",
			src:  "name: x\nsteps:\n  - stop: ghost\n",
			want: `nothing named "ghost"`,
		},
		{
			name: "unknown runs name",
			src:  "name: x\nsteps:\n  - expect:\n      runs: {ghost: 1}\n",
			want: `unknown name "ghost"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.src))
			re := reactorError(t, err, errors.CodeInvalidScenario)
			assert.Contains(t, re.Detail, tt.want)
		})
	}
}

func TestRunReportsFailedExpectations(t *testing.T) {
	sc := mustParse(t, `
name: failing
state:
  count: 0
effects:
  - name: view
    reads: [count]
steps:
  - set: {path: count, value: 1}
  - expect:
      runs: {view: 5}
      values: {count: 2}
      log: ["never logged"]
`)
	res, err := quietRunner().Run(context.Background(), sc)
	require.NoError(t, err)
	assert.False(t, res.Passed())
	assert.Equal(t, []string{
		"step 2: view ran 2 times, want 5",
		"step 2: count is 1, want 2",
		`step 2: log line "never logged" not found`,
	}, res.Failures)
	assert.Contains(t, res.Trace, "! step 2: view ran 2 times, want 5")

	re := reactorError(t, res.Err(), errors.CodeAssertionFailed)
	assert.Contains(t, re.Detail, `scenario "failing"`)
	assert.Equal(t, []any{"failures", 3}, re.Args)
}

func TestRunListSteps(t *testing.T) {
	sc := mustParse(t, `
name: lists
state:
  queue: [a, b, c]
computeds:
  - name: size
    op: len
    source: queue
  - name: head
    op: get
    source: queue.0
steps:
  - pop: queue
  - shift: queue
  - unshift: {path: queue, values: [x, y]}
  - expect:
      values: {"computed:size": 3, "computed:head": x, queue: [x, y, b]}
`)
	res, err := quietRunner().Run(context.Background(), sc)
	require.NoError(t, err)
	assert.True(t, res.Passed(), "failures: %v", res.Failures)
	assert.Equal(t, []string{
		"> pop queue",
		`  removed "c"`,
		"> shift queue",
		`  removed "a"`,
		`> unshift queue ["x", "y"]`,
		"> expect",
		`computed head = "x"`,
		"computed size = 3",
	}, res.Trace)
}

func TestRunStepErrors(t *testing.T) {
	sc := mustParse(t, `
name: broken
state:
  count: 0
steps:
  - push: {path: count, values: [1]}
`)
	_, err := quietRunner().Run(context.Background(), sc)
	re := reactorError(t, err, errors.CodeInvalidScenario)
	assert.Contains(t, re.Detail, "not an array")

	sc = mustParse(t, `
name: deep
steps:
  - set: {path: a.b, value: 1}
`)
	_, err = quietRunner().Run(context.Background(), sc)
	re = reactorError(t, err, errors.CodeInvalidScenario)
	assert.Contains(t, re.Detail, "parent is null")
}

func TestRunCancelled(t *testing.T) {
	sc := mustParse(t, "name: c\nsteps:\n  - flush: true\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := quietRunner().Run(ctx, sc)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunWithBudgetAndObserver(t *testing.T) {
	sc, err := LoadScenario(filepath.Join("testdata", "scenarios", "counter.yaml"))
	require.NoError(t, err)

	obs := &countingObserver{}
	runner := quietRunner(
		WithBudget(&reactive.FlushBudgetConfig{RecursionLimit: 10}),
		WithObserver(obs),
		WithDebug(true),
	)
	res, err := runner.Run(context.Background(), sc)
	require.NoError(t, err)
	assert.True(t, res.Passed(), "failures: %v", res.Failures)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 2, res.Flushes)
	assert.Equal(t, 2, obs.flushes)
}

func TestRunSpliceToEmpty(t *testing.T) {
	sc := mustParse(t, `
name: misuse
state:
  list: [1]
steps:
  - splice: {path: list, start: 0, deleteCount: 1}
  - expect:
      values: {list: []}
`)
	var logs bytes.Buffer
	runner := NewRunner(WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	res, err := runner.Run(context.Background(), sc)
	require.NoError(t, err)
	assert.True(t, res.Passed(), "failures: %v", res.Failures)
	assert.Zero(t, res.Errors)
	assert.Contains(t, logs.String(), "scenario finished")
	assert.Contains(t, res.Trace, "  removed [1]")
}
