package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/compliance/audit"
	"mercator-hq/custodian/pkg/compliance/detection"
	"mercator-hq/custodian/pkg/compliance/erasure"
	"mercator-hq/custodian/pkg/compliance/policy"
	"mercator-hq/custodian/pkg/compliance/report"
	"mercator-hq/custodian/pkg/compliance/retention"
	"mercator-hq/custodian/pkg/compliance/storage"
	"mercator-hq/custodian/pkg/config"
	"mercator-hq/custodian/pkg/telemetry/health"
	"mercator-hq/custodian/pkg/telemetry/metrics"
	"mercator-hq/custodian/pkg/telemetry/tracing"
)

// Runtime holds the wired components of one Custodian process. The CLI
// uses it directly for one-shot commands; Server adds the HTTP surface and
// the background jobs on top.
type Runtime struct {
	Config *config.Config

	Store       compliance.Storage
	Metrics     *metrics.Collector // Nil when metrics are disabled
	Tracer      *tracing.Tracer
	Invalidator policy.Invalidator
	Registry    *policy.Registry
	Detections  *detection.Service
	Requests    *erasure.Workflow
	Enforcer    *retention.Enforcer
	Scheduler   *retention.Scheduler
	Audit       *audit.Log
	Reports     *report.Generator
	Health      *health.Checker

	logger    *slog.Logger
	watcher   *policy.SeedWatcher
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// NewRuntime opens storage, builds every service from cfg and applies the
// startup policy seeding. The caller must Close the runtime.
func NewRuntime(ctx context.Context, cfg *config.Config, version string) (_ *Runtime, err error) {
	subCtx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		Config: cfg,
		logger: slog.Default().With("component", "server.runtime"),
		cancel: cancel,
	}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	rt.Store, err = storage.New(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	if cfg.Telemetry.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rt.Metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, registry)
	}

	rt.Tracer, err = tracing.New(&cfg.Telemetry.Tracing, version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	rt.Invalidator, err = policy.NewInvalidator(ctx, cfg.Policy.Invalidation)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy invalidation: %w", err)
	}
	cache := policy.NewCache(rt.Store, cfg.Policy.CacheTTL, rt.Metrics)
	if err = rt.Invalidator.Subscribe(subCtx, cache.Invalidate); err != nil {
		return nil, fmt.Errorf("failed to subscribe to policy invalidation: %w", err)
	}
	rt.Registry = policy.NewRegistry(rt.Store, cache,
		policy.NewCalculator(cfg.Retention.FallbackRetentionDays),
		policy.WithInvalidator(rt.Invalidator),
		policy.WithMetrics(rt.Metrics),
	)

	if err = rt.seedPolicies(ctx); err != nil {
		return nil, err
	}

	rt.Detections = detection.NewService(rt.Store, rt.Registry,
		detection.Config{
			ExtraPIITypes:     cfg.Detection.ExtraPIITypes,
			RequireFrameworks: cfg.Detection.RequireFrameworks,
		},
		detection.WithMetrics(rt.Metrics),
		detection.WithTracer(rt.Tracer),
	)
	rt.Requests = erasure.NewWorkflow(rt.Store, erasure.ConfigFrom(cfg.Requests),
		erasure.WithMetrics(rt.Metrics),
		erasure.WithTracer(rt.Tracer),
	)
	rt.Enforcer = retention.NewEnforcer(rt.Store, rt.Registry, retention.ConfigFrom(cfg.Retention),
		retention.WithMetrics(rt.Metrics),
		retention.WithTracer(rt.Tracer),
	)
	rt.Scheduler = retention.NewScheduler(rt.Enforcer)
	rt.Audit = audit.NewLog(rt.Store)
	rt.Reports = report.NewGenerator(rt.Store)

	rt.Health = health.New(0, version)
	rt.Health.RegisterPinger("storage", rt.Store)

	rt.logger.InfoContext(ctx, "runtime initialized",
		"storage_backend", rt.Store.Backend(),
		"invalidation_backend", cfg.Policy.Invalidation.Backend,
		"metrics_enabled", rt.Metrics != nil,
		"tracing_enabled", rt.Tracer.Enabled(),
	)
	return rt, nil
}

func (rt *Runtime) seedPolicies(ctx context.Context) error {
	if rt.Config.Policy.SeedDefaults {
		if _, err := rt.Registry.SeedDefaults(ctx); err != nil {
			return fmt.Errorf("failed to seed default policies: %w", err)
		}
	}
	if path := rt.Config.Policy.SeedFile; path != "" {
		policies, err := policy.LoadSeedFile(path)
		if err != nil {
			return err
		}
		if _, err := rt.Registry.Seed(ctx, policies, true); err != nil {
			return fmt.Errorf("failed to apply seed file: %w", err)
		}
	}
	return nil
}

// StartBackground starts the cleanup schedule and, when configured, the
// seed file watcher. Both stop when ctx is done or on Close.
func (rt *Runtime) StartBackground(ctx context.Context) error {
	if err := rt.Scheduler.Start(ctx); err != nil {
		return err
	}

	cfg := rt.Config.Policy
	if !cfg.Watch || cfg.SeedFile == "" {
		return nil
	}
	w, err := policy.NewSeedWatcher(cfg.SeedFile, rt.Registry, 0)
	if err != nil {
		rt.Scheduler.Stop()
		return err
	}
	rt.watcher = w
	go func() {
		if err := w.Watch(ctx); err != nil {
			rt.logger.Error("seed file watcher exited", "error", err)
		}
	}()
	return nil
}

// Close stops background jobs and releases every resource. It is safe to
// call more than once.
func (rt *Runtime) Close() error {
	rt.closeOnce.Do(func() {
		var errs []error
		if rt.Scheduler != nil {
			rt.Scheduler.Stop()
		}
		if rt.watcher != nil {
			errs = append(errs, rt.watcher.Stop())
		}
		rt.cancel()
		if rt.Invalidator != nil {
			errs = append(errs, rt.Invalidator.Close())
		}
		if rt.Tracer != nil {
			errs = append(errs, rt.Tracer.Shutdown(context.Background()))
		}
		if rt.Store != nil {
			errs = append(errs, rt.Store.Close())
		}
		rt.closeErr = errors.Join(errs...)
	})
	return rt.closeErr
}
