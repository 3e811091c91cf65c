// Package orchestrator assembles the evaluation stack from configuration and
// exposes the callable operation surface: cascade, characterize, truth-table,
// sweep, optimize, health and schema.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grapheneaffiliate/plogic-core/internal/cache"
	"github.com/grapheneaffiliate/plogic-core/internal/evaluation"
	"github.com/grapheneaffiliate/plogic-core/internal/optimize"
	"github.com/grapheneaffiliate/plogic-core/internal/registry"
	"github.com/grapheneaffiliate/plogic-core/internal/results"
	"github.com/grapheneaffiliate/plogic-core/internal/simproc"
	"github.com/grapheneaffiliate/plogic-core/internal/sweep"
	"github.com/grapheneaffiliate/plogic-core/internal/telemetry"
	"github.com/grapheneaffiliate/plogic-core/internal/tracker"
	"github.com/grapheneaffiliate/plogic-core/internal/workerpool"
	"github.com/grapheneaffiliate/plogic-core/pkg/config"
	"github.com/grapheneaffiliate/plogic-core/pkg/logger"
)

// Orchestrator owns the wired components and the operation registry.
type Orchestrator struct {
	cfg     *config.Config
	pool    *workerpool.Pool
	runner  simproc.Runner
	svc     *evaluation.Service
	sweeper *sweep.Executor
	driver  *optimize.Driver
	store   *results.Store
	track   tracker.Tracker
	metrics *telemetry.Metrics
	reg     *registry.Registry

	closers []io.Closer
}

// Option overrides a wired component, mainly for tests.
type Option func(*options)

type options struct {
	runner     simproc.Runner
	registerer prometheus.Registerer
}

// WithRunner substitutes the subprocess runner.
func WithRunner(r simproc.Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithRegisterer selects the Prometheus registry to bind metrics to.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// New builds the full stack from cfg: worker pool, subprocess runner, cache
// (Redis with local failover when configured and reachable, plain in-memory
// otherwise), evaluation service, sweep executor and optimization driver.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	pool := workerpool.New(cfg.Workers())
	metrics := telemetry.New(o.registerer)
	metrics.SetWorkers(pool.Size())

	runner := o.runner
	if runner == nil {
		r, err := simproc.NewCLIRunner(cfg.SimulatorCommand, cfg.SimulatorSrc, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		runner = r
	}

	orc := &Orchestrator{cfg: cfg, pool: pool, runner: runner, metrics: metrics}

	store := orc.buildCache(ctx, cfg)
	orc.track = tracker.FromConfig(cfg.TrackingDir)

	svc, err := evaluation.NewService(runner, store, cfg.CacheTTL(), cfg.CascadeTimeout(), metrics, orc.track)
	if err != nil {
		orc.Close()
		return nil, err
	}
	orc.svc = svc

	runStore, err := results.NewStore(cfg.ResultsDir)
	if err != nil {
		orc.Close()
		return nil, err
	}
	orc.store = runStore

	orc.sweeper = sweep.NewExecutor(svc, runStore, pool.Size())

	var strategy optimize.Strategy
	if cfg.Optimizer == "random" {
		strategy = &optimize.RandomSearch{BatchSize: pool.Size()}
	} else {
		strategy = &optimize.GPSearch{}
	}
	driver, err := optimize.NewDriver(svc, pool, runStore, metrics, strategy, cfg.ObjectiveTimeout())
	if err != nil {
		orc.Close()
		return nil, err
	}
	orc.driver = driver

	orc.reg = registry.New()
	if err := orc.registerOperations(); err != nil {
		orc.Close()
		return nil, err
	}

	logger.Info("orchestrator ready",
		"workers", pool.Size(),
		"cache", store.Backend(),
		"optimizer", strategy.Name(),
		"tracking", orc.track.Enabled())
	return orc, nil
}

// buildCache prefers Redis behind a local failover when configured. A dead
// Redis at startup degrades to memory-only with a warning, never an error.
func (o *Orchestrator) buildCache(ctx context.Context, cfg *config.Config) cache.Cache {
	local := cache.NewLRU(cfg.Cache.MaxItems)
	if cfg.RedisURL == "" {
		return local
	}
	rdb, err := cache.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unreachable, using in-memory cache only", "error", err)
		return local
	}
	o.closers = append(o.closers, rdb)
	return cache.NewFailover(rdb, local)
}

// Close releases the worker pool and any cache connections.
func (o *Orchestrator) Close() {
	o.pool.Close()
	for _, c := range o.closers {
		if err := c.Close(); err != nil {
			logger.Debug("close failed", "error", err)
		}
	}
}

// Registry exposes the operation catalog for transports.
func (o *Orchestrator) Registry() *registry.Registry { return o.reg }

// Cascade evaluates one configuration through the cached evaluation service.
func (o *Orchestrator) Cascade(ctx context.Context, p evaluation.Params) (*evaluation.Result, error) {
	return o.svc.Evaluate(ctx, p)
}

// Sweep evaluates a batch of configurations in parallel.
func (o *Orchestrator) Sweep(ctx context.Context, configs []evaluation.Params) (*sweep.Result, error) {
	return o.sweeper.Run(ctx, configs)
}

// Optimize runs a derivative-free search over the physics parameters.
func (o *Orchestrator) Optimize(ctx context.Context, req optimize.Request) (*optimize.Run, error) {
	return o.driver.Run(ctx, req)
}

// CharacterizeResult is the payload of the characterize operation.
type CharacterizeResult struct {
	RunID           string          `json:"run_id"`
	Timestamp       time.Time       `json:"timestamp"`
	Output          json.RawMessage `json:"result"`
	DurationSeconds float64         `json:"duration_s"`
}

// Characterize runs the simulator's device characterization pass.
func (o *Orchestrator) Characterize(ctx context.Context) (*CharacterizeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.CharacterizeTimeout())
	defer cancel()

	start := time.Now()
	out, err := o.runner.Run(ctx, []string{"characterize"})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: characterize exceeded %s", evaluation.ErrTimeout, o.cfg.CharacterizeTimeout())
		}
		return nil, err
	}
	if out.ExitCode != 0 {
		return nil, &evaluation.SimulationError{Stderr: strings.TrimSpace(out.Stderr)}
	}
	return &CharacterizeResult{
		RunID:           uuid.NewString(),
		Timestamp:       time.Now().UTC(),
		Output:          simproc.ParseJSONOrRaw(out.Stdout),
		DurationSeconds: time.Since(start).Seconds(),
	}, nil
}

// HealthStatus reports simulator reachability.
type HealthStatus struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Health probes the simulator CLI with a short deadline.
func (o *Orchestrator) Health(ctx context.Context) *HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.HealthTimeout())
	defer cancel()

	out, err := o.runner.Run(ctx, []string{"--help"})
	if err != nil {
		return &HealthStatus{Status: "unhealthy", Detail: err.Error()}
	}
	if out.ExitCode != 0 {
		detail := strings.TrimSpace(out.Stderr)
		if detail == "" {
			detail = fmt.Sprintf("exit code %d", out.ExitCode)
		}
		return &HealthStatus{Status: "unhealthy", Detail: detail}
	}
	return &HealthStatus{Status: "healthy"}
}

// Schema describes the running instance: operations, strategy, cache backend,
// pool width and tracking state.
func (o *Orchestrator) Schema() map[string]any {
	names := make([]string, 0)
	for _, s := range o.reg.Specs() {
		names = append(names, s.Name)
	}
	return map[string]any{
		"operations":    names,
		"optimizer":     o.driver.Strategy(),
		"cache_backend": o.svc.CacheBackend(),
		"workers":       o.pool.Size(),
		"tracking":      o.track.Enabled(),
	}
}
