// Package sweep fans out independent cascade evaluations concurrently and
// collects successes and failures separately, never aborting the batch for
// one bad configuration.
package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/grapheneaffiliate/plogic-core/internal/evaluation"
	"github.com/grapheneaffiliate/plogic-core/internal/results"
	"github.com/grapheneaffiliate/plogic-core/pkg/logger"
)

// ItemError captures one failed sweep entry.
type ItemError struct {
	Message string            `json:"error"`
	Kind    string            `json:"type"`
	Index   int               `json:"index"`
	Params  evaluation.Params `json:"config"`
}

// Result is the outcome of one sweep. CountOK + CountError always equals
// the request length; each input index lands in exactly one bucket, and
// buckets preserve the request order.
type Result struct {
	RunID      string              `json:"run_id"`
	Timestamp  time.Time           `json:"timestamp"`
	OK         []evaluation.Result `json:"results"`
	Errors     []ItemError         `json:"errors"`
	CountOK    int                 `json:"count_ok"`
	CountError int                 `json:"count_error"`
}

// Executor runs sweeps against the evaluation service.
type Executor struct {
	svc   *evaluation.Service
	store *results.Store
	width int
}

// NewExecutor builds a sweep executor with the given fan-out width (the
// worker pool size in practice). store may be nil to skip persistence.
func NewExecutor(svc *evaluation.Service, store *results.Store, width int) *Executor {
	if width <= 0 {
		width = 1
	}
	return &Executor{svc: svc, store: store, width: width}
}

// Run evaluates every configuration concurrently. Individual failures are
// recorded, not propagated; a timed-out item never cancels its siblings.
// The full payload is persisted to the results store before returning.
func (e *Executor) Run(ctx context.Context, configs []evaluation.Params) (*Result, error) {
	type itemOutcome struct {
		res *evaluation.Result
		err error
	}
	outcomes := make([]itemOutcome, len(configs))

	// Fan-out gated to the pool width. Each evaluation carries its own
	// deadline inside the service; no shared cancellation.
	semaphore := make(chan struct{}, e.width)
	var wg sync.WaitGroup
	for i, cfg := range configs {
		wg.Add(1)
		go func(idx int, p evaluation.Params) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			res, err := e.svc.Evaluate(ctx, p)
			outcomes[idx] = itemOutcome{res: res, err: err}
		}(i, cfg)
	}
	wg.Wait()

	out := &Result{
		RunID:     uuid.NewString(),
		Timestamp: time.Now().UTC(),
		OK:        make([]evaluation.Result, 0, len(configs)),
		Errors:    make([]ItemError, 0),
	}
	for i, oc := range outcomes {
		if oc.err != nil {
			out.Errors = append(out.Errors, ItemError{
				Message: oc.err.Error(),
				Kind:    evaluation.Kind(oc.err),
				Index:   i,
				Params:  configs[i],
			})
			continue
		}
		out.OK = append(out.OK, *oc.res)
	}
	out.CountOK = len(out.OK)
	out.CountError = len(out.Errors)

	if e.store != nil {
		if _, err := e.store.Save("sweep", out.RunID, out); err != nil {
			logger.Warn("failed to persist sweep result", "run_id", out.RunID, "error", err)
		}
	}
	return out, nil
}
