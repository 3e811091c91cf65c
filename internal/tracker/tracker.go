// Package tracker is the experiment-tracking side channel. It mirrors
// evaluated parameter sets and their numeric metrics to an external sink;
// the sink is optional, so the interface has a no-op implementation and
// failures are never allowed to reach the caller.
package tracker

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grapheneaffiliate/plogic-core/pkg/logger"
)

// Tracker records one evaluated run. Implementations must be safe for
// concurrent use and must swallow their own failures.
type Tracker interface {
	LogRun(params map[string]any, metrics map[string]float64)
	Enabled() bool
}

// Nop discards everything.
type Nop struct{}

// LogRun implements Tracker.
func (Nop) LogRun(map[string]any, map[string]float64) {}

// Enabled implements Tracker.
func (Nop) Enabled() bool { return false }

// File appends runs as JSON lines under a directory, one file per day.
type File struct {
	dir string
	mu  sync.Mutex
}

// NewFile creates the tracking directory if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tracking dir %s: %w", dir, err)
	}
	return &File{dir: dir}, nil
}

// Enabled implements Tracker.
func (f *File) Enabled() bool { return true }

type runLine struct {
	Timestamp time.Time          `json:"timestamp"`
	Params    map[string]any     `json:"params,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// LogRun implements Tracker. Only scalar params and finite metrics are
// recorded, matching what an experiment tracker would accept.
func (f *File) LogRun(params map[string]any, metrics map[string]float64) {
	line := runLine{Timestamp: time.Now().UTC()}

	if len(params) > 0 {
		line.Params = make(map[string]any, len(params))
		for k, v := range params {
			switch v.(type) {
			case int, int64, float64, string, bool:
				line.Params[k] = v
			}
		}
	}
	if len(metrics) > 0 {
		line.Metrics = make(map[string]float64, len(metrics))
		for k, v := range metrics {
			if !math.IsInf(v, 0) && !math.IsNaN(v) {
				line.Metrics[k] = v
			}
		}
	}

	data, err := json.Marshal(line)
	if err != nil {
		logger.Debug("tracking skipped", "error", err)
		return
	}

	path := filepath.Join(f.dir, line.Timestamp.Format("2006-01-02")+".jsonl")

	f.mu.Lock()
	defer f.mu.Unlock()
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Debug("tracking skipped", "error", err)
		return
	}
	defer file.Close()
	if _, err := file.Write(append(data, '\n')); err != nil {
		logger.Debug("tracking skipped", "error", err)
	}
}

// FromConfig selects the file tracker when dir is set, else the no-op.
func FromConfig(dir string) Tracker {
	if dir == "" {
		return Nop{}
	}
	t, err := NewFile(dir)
	if err != nil {
		logger.Warn("experiment tracking disabled", "error", err)
		return Nop{}
	}
	return t
}
