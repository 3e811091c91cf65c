package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grapheneaffiliate/plogic-core/internal/evaluation"
	"github.com/grapheneaffiliate/plogic-core/internal/optimize"
	"github.com/grapheneaffiliate/plogic-core/internal/simproc"
	"github.com/grapheneaffiliate/plogic-core/internal/sweep"
	"github.com/grapheneaffiliate/plogic-core/pkg/config"
)

// fakeSimulator answers by subcommand: cascade and characterize return JSON,
// truth-table writes a CSV at the --out path, --help succeeds.
type fakeSimulator struct {
	healthExit  int
	healthErr   error
	cascadeJSON string
}

func (f *fakeSimulator) Run(ctx context.Context, args []string) (simproc.Output, error) {
	switch args[0] {
	case "--help":
		return simproc.Output{ExitCode: f.healthExit, Stderr: "bad interpreter"}, f.healthErr
	case "cascade":
		body := f.cascadeJSON
		if body == "" {
			body = `{"logic_margin": 3.0, "ber_estimate": 0.01}`
		}
		return simproc.Output{Stdout: body}, nil
	case "characterize":
		return simproc.Output{Stdout: `{"device": "AND", "stages": 3}`}, nil
	case "truth-table":
		var out string
		for i, a := range args {
			if a == "--out" && i+1 < len(args) {
				out = args[i+1]
			}
		}
		if err := os.WriteFile(out, []byte("ctrl,logic_out\n0,0\n1,1\n"), 0o644); err != nil {
			return simproc.Output{}, err
		}
		return simproc.Output{Stdout: "wrote " + out}, nil
	default:
		return simproc.Output{ExitCode: 2, Stderr: "unknown subcommand"}, nil
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.ResultsDir = t.TempDir()
	cfg.TrackingDir = t.TempDir()
	cfg.Optimizer = "random"
	return cfg
}

func newTestOrchestrator(t *testing.T, sim simproc.Runner) *Orchestrator {
	t.Helper()
	if sim == nil {
		sim = &fakeSimulator{}
	}
	orc, err := New(context.Background(), testConfig(t), WithRunner(sim))
	require.NoError(t, err)
	t.Cleanup(orc.Close)
	return orc
}

func TestSchemaDescribesInstance(t *testing.T) {
	orc := newTestOrchestrator(t, nil)
	schema := orc.Schema()

	require.Equal(t, "random", schema["optimizer"])
	require.Equal(t, "memory", schema["cache_backend"])
	require.Equal(t, true, schema["tracking"])
	require.Greater(t, schema["workers"].(int), 0)

	ops := schema["operations"].([]string)
	for _, want := range []string{"bo_run", "cascade", "characterize", "health", "schema", "sweep", "truth_table"} {
		require.Contains(t, ops, want)
	}
}

func TestCascadeThroughRegistry(t *testing.T) {
	orc := newTestOrchestrator(t, nil)

	got, err := orc.Registry().Call(context.Background(), "cascade", map[string]any{"beta": 42.0})
	require.NoError(t, err)
	res := got.(*evaluation.Result)
	require.Equal(t, 42.0, res.Params.Beta)
	require.Equal(t, 3.0, res.Metrics[evaluation.MetricLogicMargin])
}

func TestCascadeRejectsBadArguments(t *testing.T) {
	orc := newTestOrchestrator(t, nil)

	_, err := orc.Registry().Call(context.Background(), "cascade", map[string]any{"threshold": "fuzzy"})
	require.Error(t, err)
	require.True(t, errors.Is(err, evaluation.ErrInvalidArgument))
}

func TestCharacterize(t *testing.T) {
	orc := newTestOrchestrator(t, nil)

	res, err := orc.Characterize(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)
	require.Contains(t, string(res.Output), `"device"`)
}

func TestTruthTableParsesCSV(t *testing.T) {
	orc := newTestOrchestrator(t, nil)

	res, err := orc.TruthTable(context.Background(), []float64{0, 1}, "")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(res.Path) })

	require.True(t, strings.HasSuffix(res.Path, ".csv"))
	require.Len(t, res.Rows, 2)
	require.Equal(t, "0", res.Rows[0]["ctrl"])
	require.Equal(t, "1", res.Rows[1]["logic_out"])
}

func TestTruthTableRequiresCtrl(t *testing.T) {
	orc := newTestOrchestrator(t, nil)

	_, err := orc.TruthTable(context.Background(), nil, "")
	require.Error(t, err)
	require.True(t, errors.Is(err, evaluation.ErrInvalidArgument))
}

func TestHealth(t *testing.T) {
	orc := newTestOrchestrator(t, nil)
	require.Equal(t, "healthy", orc.Health(context.Background()).Status)

	down := newTestOrchestrator(t, &fakeSimulator{healthExit: 127})
	st := down.Health(context.Background())
	require.Equal(t, "unhealthy", st.Status)
	require.Contains(t, st.Detail, "bad interpreter")

	broken := newTestOrchestrator(t, &fakeSimulator{healthErr: errors.New("exec: not found")})
	require.Equal(t, "unhealthy", broken.Health(context.Background()).Status)
}

func TestSweepThroughRegistry(t *testing.T) {
	orc := newTestOrchestrator(t, nil)

	got, err := orc.Registry().Call(context.Background(), "sweep", map[string]any{
		"configs": []any{
			map[string]any{"beta": 20.0},
			map[string]any{"beta": 40.0, "threshold": "hard"},
		},
	})
	require.NoError(t, err)
	res := got.(*sweep.Result)
	require.Equal(t, 2, res.CountOK)
	require.Equal(t, 0, res.CountError)
	require.Equal(t, 20.0, res.OK[0].Params.Beta)
	require.Equal(t, evaluation.ThresholdHard, res.OK[1].Params.Threshold)
}

func TestOptimizeThroughRegistry(t *testing.T) {
	orc := newTestOrchestrator(t, nil)

	got, err := orc.Registry().Call(context.Background(), "bo_run", map[string]any{
		"n_calls":       4.0,
		"random_starts": 2.0,
	})
	require.NoError(t, err)
	run := got.(*optimize.Run)
	require.Equal(t, 4, run.TraceCount)
	require.Equal(t, "random", run.Strategy)
	// objective = 0.01 - 0.1*3.0 for every evaluated point.
	require.InDelta(t, -0.29, run.Best.Objective, 1e-9)

	// The run payload must be serializable as handed to transports.
	_, err = json.Marshal(run)
	require.NoError(t, err)
}

func TestOptimizeRejectsMissingBudget(t *testing.T) {
	orc := newTestOrchestrator(t, nil)

	_, err := orc.Registry().Call(context.Background(), "bo_run", map[string]any{})
	require.Error(t, err)
	require.True(t, errors.Is(err, evaluation.ErrInvalidArgument))
}
