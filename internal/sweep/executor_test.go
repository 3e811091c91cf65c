package sweep

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grapheneaffiliate/plogic-core/internal/cache"
	"github.com/grapheneaffiliate/plogic-core/internal/evaluation"
	"github.com/grapheneaffiliate/plogic-core/internal/results"
	"github.com/grapheneaffiliate/plogic-core/internal/simproc"
)

// betaRunner fails or stalls depending on the --beta value it receives.
type betaRunner struct {
	mu    sync.Mutex
	calls int
}

func (r *betaRunner) Run(ctx context.Context, args []string) (simproc.Output, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	beta := ""
	for i, a := range args {
		if a == "--beta" && i+1 < len(args) {
			beta = args[i+1]
		}
	}
	switch {
	case strings.HasPrefix(beta, "666"):
		return simproc.Output{ExitCode: 1, Stderr: "unstable cascade"}, nil
	case strings.HasPrefix(beta, "999"):
		<-ctx.Done()
		return simproc.Output{}, ctx.Err()
	default:
		return simproc.Output{Stdout: `{"logic_margin": 5.0, "ber_estimate": 0.01}`}, nil
	}
}

func params(beta float64) evaluation.Params {
	return evaluation.Params{Threshold: evaluation.ThresholdSoft, Beta: beta, XPMMode: evaluation.XPMPhysics}
}

func newExecutor(t *testing.T, timeout time.Duration, store *results.Store) (*Executor, *betaRunner) {
	t.Helper()
	runner := &betaRunner{}
	svc, err := evaluation.NewService(runner, cache.NewLRU(64), time.Hour, timeout, nil, nil)
	require.NoError(t, err)
	return NewExecutor(svc, store, 4), runner
}

func TestSweepCompleteness(t *testing.T) {
	ex, _ := newExecutor(t, time.Second, nil)

	configs := []evaluation.Params{
		params(10), params(666), params(20), params(666.5), params(30),
	}
	res, err := ex.Run(context.Background(), configs)
	require.NoError(t, err)

	require.Equal(t, len(configs), res.CountOK+res.CountError)
	require.Equal(t, 3, res.CountOK)
	require.Equal(t, 2, res.CountError)

	// Each index appears exactly once, and error buckets keep input order.
	seen := map[int]bool{}
	for _, e := range res.Errors {
		require.False(t, seen[e.Index])
		seen[e.Index] = true
	}
	require.Equal(t, 1, res.Errors[0].Index)
	require.Equal(t, 3, res.Errors[1].Index)
	require.Equal(t, evaluation.KindSimulationFailed, res.Errors[0].Kind)

	// OK bucket preserves request order via ascending beta.
	require.Equal(t, 10.0, res.OK[0].Params.Beta)
	require.Equal(t, 20.0, res.OK[1].Params.Beta)
	require.Equal(t, 30.0, res.OK[2].Params.Beta)
}

func TestSweepTimeoutContainment(t *testing.T) {
	ex, _ := newExecutor(t, 100*time.Millisecond, nil)

	res, err := ex.Run(context.Background(), []evaluation.Params{
		params(999), params(10),
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.CountOK)
	require.Equal(t, 1, res.CountError)
	require.Equal(t, evaluation.KindTimeout, res.Errors[0].Kind)
	require.Equal(t, 0, res.Errors[0].Index)
	require.Equal(t, 10.0, res.OK[0].Params.Beta)
}

func TestSweepPersistsPayload(t *testing.T) {
	store, err := results.NewStore(t.TempDir())
	require.NoError(t, err)
	ex, _ := newExecutor(t, time.Second, store)

	res, err := ex.Run(context.Background(), []evaluation.Params{params(10)})
	require.NoError(t, err)

	path, ok := store.Path(res.RunID)
	require.True(t, ok)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), res.RunID)
	require.Contains(t, path, "sweep_")
}

func TestSweepEmptyRequest(t *testing.T) {
	ex, _ := newExecutor(t, time.Second, nil)
	res, err := ex.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, res.CountOK)
	require.Zero(t, res.CountError)
}
