package optimize

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/grapheneaffiliate/plogic-core/internal/evaluation"
	"github.com/grapheneaffiliate/plogic-core/internal/telemetry"
	"github.com/grapheneaffiliate/plogic-core/pkg/logger"
)

// pointEval evaluates one named parameter point and returns the scalar
// objective together with the underlying simulation result.
type pointEval func(ctx context.Context, point map[string]float64) (float64, *evaluation.Result, error)

// bridge adapts a pointEval into the plain func([]float64) float64 a Strategy
// consumes. Every call is recorded in the run state; any failure, including
// the per-call deadline, yields +Inf so the strategy keeps going.
type bridge struct {
	ctx     context.Context
	space   Space
	eval    pointEval
	timeout time.Duration
	state   *runState
	metrics *telemetry.Metrics
}

func (b *bridge) objective(pt []float64) float64 {
	point := b.space.Named(pt)

	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()

	type outcome struct {
		obj float64
		res *evaluation.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		obj, res, err := b.eval(ctx, point)
		ch <- outcome{obj: obj, res: res, err: err}
	}()

	var oc outcome
	select {
	case oc = <-ch:
	case <-ctx.Done():
		oc = outcome{err: fmt.Errorf("%w: objective evaluation exceeded %s", evaluation.ErrTimeout, b.timeout)}
	}

	if oc.err != nil {
		logger.Warn("objective evaluation failed", "params", point, "error", oc.err)
		b.state.add(Record{Params: point, Objective: math.Inf(1), Error: oc.err.Error()})
		return math.Inf(1)
	}

	b.state.add(Record{Params: point, Objective: oc.obj, Metrics: oc.res.Metrics, Result: oc.res})
	b.metrics.ObserveObjective(oc.obj)
	return oc.obj
}
