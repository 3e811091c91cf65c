package optimize

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grapheneaffiliate/plogic-core/internal/cache"
	"github.com/grapheneaffiliate/plogic-core/internal/evaluation"
	"github.com/grapheneaffiliate/plogic-core/internal/results"
	"github.com/grapheneaffiliate/plogic-core/internal/simproc"
)

// scriptRunner answers each subprocess invocation with fn.
type scriptRunner struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, call int) (simproc.Output, error)
}

func (s *scriptRunner) Run(ctx context.Context, args []string) (simproc.Output, error) {
	s.mu.Lock()
	call := s.calls
	s.calls++
	s.mu.Unlock()
	return s.fn(ctx, call)
}

func newTestDriver(t *testing.T, runner simproc.Runner, strategy Strategy, objTimeout time.Duration) (*Driver, *results.Store) {
	t.Helper()
	svc, err := evaluation.NewService(runner, cache.NewLRU(1024), time.Hour, time.Minute, nil, nil)
	require.NoError(t, err)
	store, err := results.NewStore(t.TempDir())
	require.NoError(t, err)
	d, err := NewDriver(svc, nil, store, nil, strategy, objTimeout)
	require.NoError(t, err)
	return d, store
}

func TestRunCollectsTraceAndPersists(t *testing.T) {
	runner := &scriptRunner{fn: func(context.Context, int) (simproc.Output, error) {
		return simproc.Output{Stdout: `{"ber_estimate": 0.2, "logic_margin": 1.0}`}, nil
	}}
	d, store := newTestDriver(t, runner, &RandomSearch{BatchSize: 2, Seed: 1}, time.Minute)

	run, err := d.Run(context.Background(), Request{NCalls: 6})
	require.NoError(t, err)
	require.NotEmpty(t, run.RunID)
	require.Equal(t, "random", run.Strategy)
	require.Equal(t, 6, run.TraceCount)
	require.Len(t, run.Trace, 6)
	// Every point maps a distinct configuration, so each one hits the
	// simulator once.
	require.Equal(t, 6, runner.calls)

	// objective = ber - 0.1*margin for every point.
	require.InDelta(t, 0.1, run.Best.Objective, 1e-12)
	require.Equal(t, "soft", run.FixedParams["threshold"])
	require.Equal(t, "physics", run.FixedParams["xpm_mode"])
	require.Equal(t, 0.1, run.FixedParams["objective_margin_weight"])

	path, ok := store.Path(run.RunID)
	require.True(t, ok)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var artifact struct {
		Payload   Run      `json:"payload"`
		TraceFull []Record `json:"trace_full"`
	}
	require.NoError(t, json.Unmarshal(data, &artifact))
	require.Equal(t, run.RunID, artifact.Payload.RunID)
	require.Len(t, artifact.TraceFull, 6)
}

func TestRunAbsorbsSimulationFailures(t *testing.T) {
	runner := &scriptRunner{fn: func(context.Context, int) (simproc.Output, error) {
		return simproc.Output{ExitCode: 1, Stderr: "solver diverged"}, nil
	}}
	d, store := newTestDriver(t, runner, &RandomSearch{BatchSize: 2, Seed: 1}, time.Minute)

	run, err := d.Run(context.Background(), Request{NCalls: 4})
	require.NoError(t, err, "evaluation failures must not fail the run")
	require.Equal(t, 4, run.TraceCount)
	for _, rec := range run.Trace {
		require.Contains(t, rec.Error, "solver diverged")
		require.True(t, math.IsInf(rec.Objective, 1))
	}
	require.True(t, math.IsInf(run.Best.Objective, 1))

	// The all-failed payload still persists as valid JSON.
	_, ok := store.Path(run.RunID)
	require.True(t, ok)
}

func TestRunContainsObjectiveTimeout(t *testing.T) {
	runner := &scriptRunner{fn: func(ctx context.Context, call int) (simproc.Output, error) {
		if call == 0 {
			<-ctx.Done()
			return simproc.Output{}, ctx.Err()
		}
		return simproc.Output{Stdout: `{"ber_estimate": 0.3}`}, nil
	}}
	d, _ := newTestDriver(t, runner, &RandomSearch{BatchSize: 1, Seed: 1}, 50*time.Millisecond)

	run, err := d.Run(context.Background(), Request{NCalls: 3})
	require.NoError(t, err)
	require.Equal(t, 3, run.TraceCount)

	var failed, succeeded int
	for _, rec := range run.Trace {
		if rec.Error != "" {
			failed++
		} else {
			succeeded++
			require.InDelta(t, 0.3, rec.Objective, 1e-12)
		}
	}
	require.Equal(t, 1, failed)
	require.Equal(t, 2, succeeded)
	require.InDelta(t, 0.3, run.Best.Objective, 1e-12)
}

func TestRunTraceTailIsCapped(t *testing.T) {
	runner := &scriptRunner{fn: func(context.Context, int) (simproc.Output, error) {
		return simproc.Output{Stdout: `{"ber_estimate": 0.5}`}, nil
	}}
	d, _ := newTestDriver(t, runner, &RandomSearch{BatchSize: 8, Seed: 1}, time.Minute)

	run, err := d.Run(context.Background(), Request{NCalls: 250})
	require.NoError(t, err)
	require.Equal(t, 250, run.TraceCount)
	require.Len(t, run.Trace, transportTraceCap)
}

func TestRunBestTracksMinimumOverTrace(t *testing.T) {
	// BER per call: down, up, further down, up again.
	bers := []string{"0.5", "0.9", "0.1", "0.7", "0.3"}
	runner := &scriptRunner{fn: func(_ context.Context, call int) (simproc.Output, error) {
		return simproc.Output{Stdout: `{"ber_estimate": ` + bers[call] + `}`}, nil
	}}
	d, _ := newTestDriver(t, runner, &RandomSearch{BatchSize: 1, Seed: 1}, time.Minute)

	run, err := d.Run(context.Background(), Request{NCalls: len(bers)})
	require.NoError(t, err)
	require.InDelta(t, 0.1, run.Best.Objective, 1e-12)

	// The running minimum over the ordered trace is non-increasing and ends
	// at the reported best.
	running := math.Inf(1)
	for _, rec := range run.Trace {
		if rec.Objective < running {
			running = rec.Objective
		}
	}
	require.Equal(t, run.Best.Objective, running)
}

func TestRunValidatesRequest(t *testing.T) {
	runner := &scriptRunner{fn: func(context.Context, int) (simproc.Output, error) {
		return simproc.Output{Stdout: `{}`}, nil
	}}
	d, _ := newTestDriver(t, runner, &RandomSearch{Seed: 1}, time.Minute)

	cases := []Request{
		{NCalls: 0},
		{NCalls: 5, ObjectiveMarginWeight: -0.5},
		{NCalls: 5, SpaceBounds: map[string][]float64{"beta": {1}}},
		{NCalls: 5, SpaceBounds: map[string][]float64{"beta": {40, 20}}},
		{NCalls: 5, FixedParams: map[string]float64{"warp": 9}},
	}
	for _, req := range cases {
		_, err := d.Run(context.Background(), req)
		require.Error(t, err)
		require.True(t, errors.Is(err, evaluation.ErrInvalidArgument), "got %v", err)
	}
	require.Equal(t, 0, runner.calls)
}

func TestRunAppliesFixedAndSearchedParams(t *testing.T) {
	runner := &scriptRunner{fn: func(context.Context, int) (simproc.Output, error) {
		return simproc.Output{Stdout: `{"ber_estimate": 0.1}`}, nil
	}}
	d, _ := newTestDriver(t, runner, &RandomSearch{BatchSize: 1, Seed: 1}, time.Minute)

	run, err := d.Run(context.Background(), Request{
		NCalls:      2,
		Threshold:   evaluation.ThresholdHard,
		XPMMode:     evaluation.XPMLinear,
		FixedParams: map[string]float64{"n_eff": 2.0},
		SpaceBounds: map[string][]float64{"beta": {20, 40}},
	})
	require.NoError(t, err)
	require.Equal(t, "hard", run.FixedParams["threshold"])
	require.Equal(t, "linear", run.FixedParams["xpm_mode"])
	require.Equal(t, 2.0, run.FixedParams["n_eff"])

	for _, rec := range run.Trace {
		require.GreaterOrEqual(t, rec.Params["beta"], 20.0)
		require.LessOrEqual(t, rec.Params["beta"], 40.0)
		// n_eff stays a search dimension; the searched value wins over the
		// pinned one.
		require.NotZero(t, rec.Params["n_eff"])
	}
}

func TestRunHonorsCancelledContext(t *testing.T) {
	runner := &scriptRunner{fn: func(context.Context, int) (simproc.Output, error) {
		return simproc.Output{Stdout: `{"ber_estimate": 0.1}`}, nil
	}}
	d, _ := newTestDriver(t, runner, &RandomSearch{BatchSize: 1, Seed: 1}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Run(ctx, Request{NCalls: 2})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}
