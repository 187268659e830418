package workload

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/reactive"
)

var tinyProfile = Profile{
	Name:       "tiny",
	Iterations: 30,
	Fanout:     5,
	ChainDepth: 4,
	Watchers:   3,
	ListSize:   8,
	Batch:      3,
}

func TestProfiles(t *testing.T) {
	all := Profiles()
	require.Len(t, all, 3)
	assert.Equal(t, "fast", all[0].Name)
	assert.Equal(t, "standard", all[1].Name)
	assert.Equal(t, "stress", all[2].Name)

	p, err := LookupProfile("standard")
	require.NoError(t, err)
	assert.Equal(t, 2000, p.Iterations)

	_, err = LookupProfile("turbo")
	re := reactorError(t, err, errors.CodeUnknownProfile)
	assert.Contains(t, re.Detail, `"turbo"`)
	assert.Contains(t, re.Suggestion, "fast standard stress")
}

func TestBenchWorkloads(t *testing.T) {
	obs := &countingObserver{}
	results, err := quietRunner(WithObserver(obs)).Bench(context.Background(), tinyProfile)
	require.NoError(t, err)
	require.Len(t, results, len(Workloads))

	byName := make(map[string]WorkloadResult)
	for i, res := range results {
		assert.Equal(t, Workloads[i], res.Workload)
		assert.Equal(t, tinyProfile.Iterations, res.Iterations)
		assert.Zero(t, res.Errors)
		assert.Zero(t, res.Warnings)
		assert.LessOrEqual(t, res.LatencyMS.Min, res.LatencyMS.P50)
		assert.LessOrEqual(t, res.LatencyMS.P50, res.LatencyMS.Max)
		assert.Positive(t, res.RoundsPerSec)
		byName[res.Workload] = res
	}

	fanout := byName[WorkloadFanout]
	assert.Equal(t, 30, fanout.Writes)
	assert.Equal(t, 30*5, fanout.EffectRuns)
	assert.Zero(t, fanout.Flushes, "plain effects re-run at the write")

	chain := byName[WorkloadChain]
	assert.Equal(t, 30*(4+1), chain.EffectRuns, "every computed and the reader run once per round")

	watch := byName[WorkloadWatch]
	assert.Equal(t, 30*3, watch.Writes)
	assert.Equal(t, 30, watch.Flushes)
	assert.Equal(t, 30*3, watch.Jobs)

	array := byName[WorkloadArray]
	assert.Equal(t, 60, array.Writes)
	assert.Equal(t, 30, array.Flushes)
	assert.Equal(t, 30, array.Jobs)

	assert.Positive(t, obs.effects, "configured observer sees every workload")
}

func TestBenchSelectedWorkload(t *testing.T) {
	results, err := quietRunner().Bench(context.Background(), tinyProfile, WorkloadChain)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, WorkloadChain, results[0].Workload)

	_, err = quietRunner().Bench(context.Background(), tinyProfile, "bogus")
	reactorError(t, err, errors.CodeUnknownProfile)
}

func TestBenchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := quietRunner().Bench(ctx, tinyProfile)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBenchWithBudget(t *testing.T) {
	runner := quietRunner(WithBudget(&reactive.FlushBudgetConfig{RecursionLimit: 100}))
	results, err := runner.Bench(context.Background(), tinyProfile, WorkloadWatch)
	require.NoError(t, err)
	assert.Zero(t, results[0].Dropped)
}

func TestPercentile(t *testing.T) {
	assert.Zero(t, percentile(nil, 0.5))

	sorted := make([]time.Duration, 10)
	for i := range sorted {
		sorted[i] = time.Duration(i + 1)
	}
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
	assert.Equal(t, time.Duration(5), percentile(sorted, 0.5))
	assert.Equal(t, time.Duration(10), percentile(sorted, 0.99))
	assert.Equal(t, time.Duration(10), percentile(sorted, 1))
	assert.Equal(t, 1.5, ms(1500*time.Microsecond))
}
