package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grapheneaffiliate/plogic-core/internal/cache"
	"github.com/grapheneaffiliate/plogic-core/internal/simproc"
	"github.com/grapheneaffiliate/plogic-core/internal/telemetry"
	"github.com/grapheneaffiliate/plogic-core/internal/tracker"
	"github.com/grapheneaffiliate/plogic-core/pkg/logger"
)

// Service composes sanitizer, process runner, cache, timeout and telemetry
// into the single cached evaluate operation.
type Service struct {
	runner  simproc.Runner
	cache   cache.Cache
	ttl     time.Duration
	timeout time.Duration
	metrics *telemetry.Metrics
	tracker tracker.Tracker
}

// NewService wires the evaluation pipeline. metrics and track may be nil /
// no-op; runner and store are required.
func NewService(runner simproc.Runner, store cache.Cache, ttl, timeout time.Duration, metrics *telemetry.Metrics, track tracker.Tracker) (*Service, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if store == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if track == nil {
		track = tracker.Nop{}
	}
	return &Service{
		runner:  runner,
		cache:   store,
		ttl:     ttl,
		timeout: timeout,
		metrics: metrics,
		tracker: track,
	}, nil
}

// CacheBackend reports the active cache backend for capability introspection.
func (s *Service) CacheBackend() string { return s.cache.Backend() }

// Evaluate runs one cascade configuration through cache and simulator,
// bounded by the configured cascade timeout. The caller's params are not
// mutated; extra flags are sanitized before they influence anything.
func (s *Service) Evaluate(ctx context.Context, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	clean := p
	clean.Extra = simproc.SanitizeExtra(p.Extra)

	key, keyErr := cache.DeriveKey("cascade", clean.CacheIdentity())
	if keyErr == nil {
		if hit, ok := s.cacheGet(ctx, key); ok {
			s.mirror(hit)
			return hit, nil
		}
	} else {
		logger.Warn("cache key derivation failed, skipping cache", "error", keyErr)
	}

	start := time.Now()
	out, err := s.runner.Run(ctx, clean.CLIArgs())
	elapsed := time.Since(start)

	failed := err != nil || out.ExitCode != 0
	s.metrics.ObserveCascade(elapsed, failed)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: cascade exceeded %s", ErrTimeout, s.timeout)
		}
		return nil, err
	}
	if out.ExitCode != 0 {
		stderr := strings.TrimSpace(out.Stderr)
		if stderr == "" {
			stderr = "plogic cascade failed"
		}
		return nil, &SimulationError{Stderr: stderr}
	}

	output := simproc.ParseJSONOrRaw(out.Stdout)
	res := &Result{
		RunID:           uuid.NewString(),
		Timestamp:       time.Now().UTC(),
		Params:          clean,
		Output:          output,
		Metrics:         extractMetrics(output, out.Stdout),
		DurationSeconds: elapsed.Seconds(),
	}

	if keyErr == nil {
		if data, err := json.Marshal(res); err == nil {
			if err := s.cache.Put(ctx, key, data, s.ttl); err != nil {
				logger.Debug("cache put failed", "error", err)
			}
		}
	}

	s.mirror(res)
	return res, nil
}

func (s *Service) cacheGet(ctx context.Context, key string) (*Result, bool) {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
		return nil, false
	}
	return &res, true
}

// mirror sends the run to the experiment tracker. Tracker failures are the
// tracker's problem, never the caller's.
func (s *Service) mirror(res *Result) {
	s.tracker.LogRun(res.Params.TrackingParams(), res.Metrics)
}

var (
	marginPattern = regexp.MustCompile(`(?i)margin[:=]\s*([0-9.]+)`)
	berPattern    = regexp.MustCompile(`(?i)ber[_\s-]?(?:estimate)?[:=]\s*([0-9.eE+-]+)`)
)

// extractMetrics pulls the known metric fields from structured output, or
// falls back to a best-effort pattern match against raw text. A miss yields
// no metric, never an error.
func extractMetrics(output json.RawMessage, stdout string) map[string]float64 {
	metrics := make(map[string]float64)

	// Structured path: stdout itself parsed as a JSON object. The output
	// argument may also be the {"raw": ...} wrapper, which the raw path
	// below handles via stdout.
	if json.Valid([]byte(stdout)) {
		var structured map[string]any
		if err := json.Unmarshal(output, &structured); err == nil {
			for _, name := range []string{MetricLogicMargin, MetricBEREstimate, MetricPowerMW, MetricContrastDB} {
				if v, ok := structured[name].(float64); ok {
					metrics[name] = v
				}
			}
			return metrics
		}
	}

	if m := marginPattern.FindStringSubmatch(stdout); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			metrics[MetricLogicMargin] = v
		}
	}
	if m := berPattern.FindStringSubmatch(stdout); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			metrics[MetricBEREstimate] = v
		}
	}
	return metrics
}
