package evaluation

import (
	"encoding/json"
	"time"
)

// Known metric names emitted by the simulator.
const (
	MetricLogicMargin = "logic_margin"
	MetricBEREstimate = "ber_estimate"
	MetricPowerMW     = "power_mw"
	MetricContrastDB  = "contrast_db"
)

// Result is one completed evaluation. Cached entries round-trip through
// JSON, so a cache hit is indistinguishable from a fresh run.
type Result struct {
	RunID           string             `json:"run_id"`
	Timestamp       time.Time          `json:"timestamp"`
	Params          Params             `json:"params"`
	Output          json.RawMessage    `json:"result"`
	Metrics         map[string]float64 `json:"metrics"`
	DurationSeconds float64            `json:"duration_s"`
}
