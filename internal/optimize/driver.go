package optimize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/grapheneaffiliate/plogic-core/internal/evaluation"
	"github.com/grapheneaffiliate/plogic-core/internal/results"
	"github.com/grapheneaffiliate/plogic-core/internal/telemetry"
	"github.com/grapheneaffiliate/plogic-core/internal/workerpool"
	"github.com/grapheneaffiliate/plogic-core/pkg/logger"
)

const (
	defaultMarginWeight = 0.1
	defaultRandomStarts = 8
)

// Request configures one optimization run.
type Request struct {
	// NCalls is the total objective evaluation budget. Must be positive.
	NCalls int `json:"n_calls"`

	// Threshold and XPMMode are held fixed across the run; zero values take
	// the cascade defaults.
	Threshold evaluation.Threshold `json:"threshold,omitempty"`
	XPMMode   evaluation.XPMMode   `json:"xpm_mode,omitempty"`

	// SpaceBounds overrides [low, high] per dimension of the default space.
	SpaceBounds map[string][]float64 `json:"space_bounds,omitempty"`

	// FixedParams pins physics parameters to constants. A pinned parameter
	// that is also a search dimension is overridden by the search point.
	FixedParams map[string]float64 `json:"fixed_params,omitempty"`

	// ObjectiveMarginWeight scales the logic-margin reward in the objective
	// ber - weight*margin. Zero means the default 0.1; negative is invalid.
	ObjectiveMarginWeight float64 `json:"objective_margin_weight,omitempty"`

	// RandomStarts is the number of random probes before the model-guided
	// phase. Zero means 8.
	RandomStarts int `json:"random_starts,omitempty"`
}

// Run is the transport payload of a finished optimization: the incumbent,
// the tail of the trace and the run provenance. The full trace is persisted
// alongside it in the run store.
type Run struct {
	RunID       string         `json:"run_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Strategy    string         `json:"strategy"`
	Space       Space          `json:"space"`
	FixedParams map[string]any `json:"fixed_params"`
	Best        Best           `json:"best"`
	TraceCount  int            `json:"trace_count"`
	Trace       []Record       `json:"trace"`
}

// Driver hosts optimization runs: it owns the strategy, routes objective
// evaluations through the evaluation service and persists finished runs.
type Driver struct {
	svc      *evaluation.Service
	pool     *workerpool.Pool
	store    *results.Store
	metrics  *telemetry.Metrics
	strategy Strategy
	timeout  time.Duration
}

func NewDriver(svc *evaluation.Service, pool *workerpool.Pool, store *results.Store, metrics *telemetry.Metrics, strategy Strategy, objectiveTimeout time.Duration) (*Driver, error) {
	if svc == nil {
		return nil, errors.New("optimize: evaluation service is required")
	}
	if strategy == nil {
		return nil, errors.New("optimize: strategy is required")
	}
	if objectiveTimeout <= 0 {
		objectiveTimeout = 60 * time.Second
	}
	return &Driver{svc: svc, pool: pool, store: store, metrics: metrics, strategy: strategy, timeout: objectiveTimeout}, nil
}

// Strategy reports the active strategy name.
func (d *Driver) Strategy() string { return d.strategy.Name() }

// Run executes one optimization. Individual evaluation failures are absorbed
// into the trace; only an invalid request or a cancelled context fail the run.
func (d *Driver) Run(ctx context.Context, req Request) (*Run, error) {
	if req.NCalls <= 0 {
		return nil, fmt.Errorf("%w: n_calls must be positive, got %d", evaluation.ErrInvalidArgument, req.NCalls)
	}
	if req.ObjectiveMarginWeight < 0 {
		return nil, fmt.Errorf("%w: objective_margin_weight cannot be negative, got %v", evaluation.ErrInvalidArgument, req.ObjectiveMarginWeight)
	}
	for name := range req.FixedParams {
		if !knownDimensions[name] {
			return nil, fmt.Errorf("%w: unknown fixed parameter %q", evaluation.ErrInvalidArgument, name)
		}
	}
	space, err := DefaultSpace().WithBounds(req.SpaceBounds)
	if err != nil {
		return nil, err
	}
	if err := space.Validate(); err != nil {
		return nil, err
	}

	weight := req.ObjectiveMarginWeight
	if weight == 0 {
		weight = defaultMarginWeight
	}
	starts := req.RandomStarts
	if starts <= 0 {
		starts = defaultRandomStarts
	}
	base := evaluation.DefaultParams()
	if req.Threshold != "" {
		base.Threshold = req.Threshold
	}
	if req.XPMMode != "" {
		base.XPMMode = req.XPMMode
	}

	state := newRunState()
	br := &bridge{
		ctx:     ctx,
		space:   space,
		timeout: d.timeout,
		state:   state,
		metrics: d.metrics,
		eval: func(ctx context.Context, point map[string]float64) (float64, *evaluation.Result, error) {
			p := base
			applyPoint(&p, req.FixedParams)
			applyPoint(&p, point)
			res, err := d.svc.Evaluate(ctx, p)
			if err != nil {
				return 0, nil, err
			}
			ber, ok := res.Metrics[evaluation.MetricBEREstimate]
			if !ok {
				ber = 1.0
			}
			margin := res.Metrics[evaluation.MetricLogicMargin]
			return ber - weight*margin, res, nil
		},
	}

	logger.Info("optimization started",
		"strategy", d.strategy.Name(), "n_calls", req.NCalls, "random_starts", starts)

	run := func() {
		d.strategy.Minimize(br.objective, space.Lower(), space.Upper(), req.NCalls, starts)
	}
	// The strategy loop occupies a worker while its evaluations queue
	// subprocess jobs on the same pool, so a single-worker pool would
	// starve them. Run inline in that case.
	if d.pool != nil && d.pool.Size() > 1 {
		if err := d.pool.Do(ctx, run); err != nil {
			return nil, err
		}
	} else {
		run()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trace, best, total := state.snapshot()
	out := &Run{
		RunID:       uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Strategy:    d.strategy.Name(),
		Space:       space,
		FixedParams: fixedPayload(base, req.FixedParams, weight),
		Best:        best,
		TraceCount:  total,
		Trace:       tail(trace, transportTraceCap),
	}
	logger.Info("optimization finished",
		"run_id", out.RunID, "evaluations", total, "best_objective", best.Objective)

	if d.store != nil {
		artifact := map[string]any{"payload": out, "trace_full": trace}
		if _, err := d.store.Save("bo_run", out.RunID, artifact); err != nil {
			logger.Warn("failed to persist optimization run", "run_id", out.RunID, "error", err)
		}
	}
	return out, nil
}

func applyPoint(p *evaluation.Params, point map[string]float64) {
	for name, v := range point {
		switch name {
		case "beta":
			p.Beta = v
		case "n2":
			p.N2 = &v
		case "a_eff":
			p.AEff = &v
		case "n_eff":
			p.NEff = &v
		case "g_geom":
			p.GGeom = &v
		}
	}
}

func fixedPayload(base evaluation.Params, fixed map[string]float64, weight float64) map[string]any {
	out := map[string]any{
		"threshold":               string(base.Threshold),
		"xpm_mode":                string(base.XPMMode),
		"objective_margin_weight": weight,
	}
	for name, v := range fixed {
		out[name] = v
	}
	return out
}

func tail(records []Record, n int) []Record {
	if len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}
