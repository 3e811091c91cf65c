package optimize

import (
	"encoding/json"
	"math"
	"sync"

	"github.com/grapheneaffiliate/plogic-core/internal/evaluation"
)

const (
	// traceCap bounds in-memory trace growth; once exceeded the trace is
	// trimmed back to traceTrim most recent records.
	traceCap  = 500
	traceTrim = 400

	// transportTraceCap bounds the trace included in the returned payload.
	// The full trace is still persisted with the run artifact.
	transportTraceCap = 200
)

// Record is one objective evaluation in the optimization trace.
type Record struct {
	Params    map[string]float64 `json:"params"`
	Objective float64            `json:"objective"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Result    *evaluation.Result `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// MarshalJSON emits null for a non-finite objective so failed evaluations
// stay representable in JSON payloads.
func (r Record) MarshalJSON() ([]byte, error) {
	type alias Record
	if math.IsInf(r.Objective, 0) || math.IsNaN(r.Objective) {
		return json.Marshal(struct {
			alias
			Objective any `json:"objective"`
		}{alias: alias(r)})
	}
	return json.Marshal(alias(r))
}

// Best is the incumbent solution of a run.
type Best struct {
	Objective float64            `json:"objective"`
	Params    map[string]float64 `json:"params"`
	Result    *evaluation.Result `json:"result,omitempty"`
}

func (b Best) MarshalJSON() ([]byte, error) {
	type alias Best
	if math.IsInf(b.Objective, 0) || math.IsNaN(b.Objective) {
		return json.Marshal(struct {
			alias
			Objective any `json:"objective"`
		}{alias: alias(b)})
	}
	return json.Marshal(alias(b))
}

// runState accumulates trace records and tracks the incumbent under
// concurrent objective evaluations.
type runState struct {
	mu      sync.Mutex
	records []Record
	total   int
	best    Best
}

func newRunState() *runState {
	return &runState{best: Best{Objective: math.Inf(1)}}
}

func (s *runState) add(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	s.total++
	if len(s.records) > traceCap {
		kept := make([]Record, traceTrim)
		copy(kept, s.records[len(s.records)-traceTrim:])
		s.records = kept
	}
	// Strict less-than: ties keep the earlier incumbent.
	if r.Objective < s.best.Objective {
		s.best = Best{Objective: r.Objective, Params: r.Params, Result: r.Result}
	}
}

// snapshot returns a copy of the stored trace, the incumbent and the total
// number of evaluations performed (which may exceed the stored length).
func (s *runState) snapshot() ([]Record, Best, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out, s.best, s.total
}
