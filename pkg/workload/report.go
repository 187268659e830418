package workload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Report kinds.
const (
	KindBench    = "bench"
	KindScenario = "scenario"
)

// ReportVersion is the schema version written into every report.
const ReportVersion = "1"

// Report is the JSON document produced by a bench or scenario run.
type Report struct {
	Version   string           `json:"version"`
	RunID     string           `json:"run_id"`
	Kind      string           `json:"kind"`
	Run       RunInfo          `json:"run"`
	Profile   *Profile         `json:"profile,omitempty"`
	Bench     []WorkloadResult `json:"bench,omitempty"`
	Scenarios []*Result        `json:"scenarios,omitempty"`
}

// RunInfo describes the machine and build a report came from.
type RunInfo struct {
	Timestamp string `json:"timestamp"`
	Go        string `json:"go"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	CPUCount  int    `json:"cpu_count"`
	GitCommit string `json:"git_commit,omitempty"`
}

// NewReport creates a report of the given kind with a fresh run ID.
func NewReport(kind string) *Report {
	return &Report{
		Version: ReportVersion,
		RunID:   uuid.NewString(),
		Kind:    kind,
		Run: RunInfo{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Go:        runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			CPUCount:  runtime.NumCPU(),
			GitCommit: gitCommit(),
		},
	}
}

// Passed reports whether every scenario in the report passed.
func (r *Report) Passed() bool {
	for _, s := range r.Scenarios {
		if !s.Passed() {
			return false
		}
	}
	return true
}

// Key is the file name the report is stored under.
func (r *Report) Key() string {
	return fmt.Sprintf("%s-%s.json", r.Kind, r.RunID)
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteSummary writes a human-readable summary.
func (r *Report) WriteSummary(w io.Writer) {
	fmt.Fprintf(w, "=== Reactor %s run %s ===\n", r.Kind, r.RunID)
	if r.Profile != nil {
		p := r.Profile
		fmt.Fprintf(w, "Profile: %s (%d rounds, fanout %d, chain %d, watchers %d, list %d, batch %d)\n",
			p.Name, p.Iterations, p.Fanout, p.ChainDepth, p.Watchers, p.ListSize, p.Batch)
	}
	for _, b := range r.Bench {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s: %.1f rounds/s, %d writes, %d effect runs, %d flushes\n",
			b.Workload, b.RoundsPerSec, b.Writes, b.EffectRuns, b.Flushes)
		fmt.Fprintf(w, "  latency ms: min %.3f  p50 %.3f  p95 %.3f  p99 %.3f  max %.3f\n",
			b.LatencyMS.Min, b.LatencyMS.P50, b.LatencyMS.P95, b.LatencyMS.P99, b.LatencyMS.Max)
		if b.Dropped > 0 || b.Errors > 0 || b.Warnings > 0 {
			fmt.Fprintf(w, "  dropped %d, errors %d, warnings %d\n", b.Dropped, b.Errors, b.Warnings)
		}
	}
	if len(r.Scenarios) > 0 {
		fmt.Fprintln(w)
		passed := 0
		for _, s := range r.Scenarios {
			status := "ok"
			if s.Passed() {
				passed++
			} else {
				status = "FAIL"
			}
			fmt.Fprintf(w, "%-4s %s (%d flushes, %s)\n", status, s.Name, s.Flushes, s.Duration.Round(time.Microsecond))
			for _, f := range s.Failures {
				fmt.Fprintf(w, "     %s\n", f)
			}
		}
		fmt.Fprintf(w, "\n%d/%d scenarios passed\n", passed, len(r.Scenarios))
	}
}

// Sink stores reports. Put returns where the report was stored.
type Sink interface {
	Put(ctx context.Context, r *Report) (string, error)
}

// DirSink writes reports as files in a directory, creating it if needed.
type DirSink struct {
	Dir string
}

// Put writes r to Dir/<kind>-<run id>.json.
func (s DirSink) Put(_ context.Context, r *Report) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.Dir, r.Key())
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	if err := r.WriteJSON(file); err != nil {
		return "", err
	}
	return path, file.Close()
}

func gitCommit() string {
	if val := strings.TrimSpace(os.Getenv("REACTOR_GIT_COMMIT")); val != "" {
		return val
	}
	if val := strings.TrimSpace(os.Getenv("GIT_COMMIT")); val != "" {
		return val
	}
	out, err := exec.Command("git", "rev-parse", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
