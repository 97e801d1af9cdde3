package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"lineageforge/internal/platform/httpserver"
	platformmetrics "lineageforge/internal/platform/metrics"
	lfredis "lineageforge/internal/platform/redis"
	"lineageforge/internal/resolution"
	resolutionmetrics "lineageforge/internal/resolution/metrics"
	"lineageforge/internal/runs"
	runsmetrics "lineageforge/internal/runs/metrics"
	"lineageforge/internal/store/memory"
	"lineageforge/internal/store/postgres"
	"lineageforge/internal/validation"
	validationmetrics "lineageforge/internal/validation/metrics"
	dErrors "lineageforge/pkg/domain-errors"
	"lineageforge/pkg/platform/audit"
	"lineageforge/pkg/platform/audit/publishers/compliance"
	"lineageforge/pkg/platform/audit/publishers/ops"
	auditmemory "lineageforge/pkg/platform/audit/store/memory"
	auditpostgres "lineageforge/pkg/platform/audit/store/postgres"
)

// app is the wired dependency graph for one process.
type app struct {
	service *runs.Service
	file    *memory.SnapshotStore
	graph   *postgres.GraphStore
	db      *sql.DB
	outbox  *auditpostgres.Store
	checks  map[string]httpserver.HealthCheck
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires storage from a snapshot file when one is given, else from
// the configured database.
func buildApp(ctx context.Context, snapshotPath string) (*app, error) {
	a := &app{checks: map[string]httpserver.HealthCheck{}}
	pm := platformmetrics.New()
	pm.SetBuildInfo(Version)

	var (
		snapshots  runs.SnapshotSource
		results    runs.ResultStore
		runStore   runs.RunStore
		auditStore audit.Store
		extra      []runs.Option
	)

	switch {
	case snapshotPath != "":
		f, err := os.Open(snapshotPath)
		if err != nil {
			return nil, fmt.Errorf("open snapshot: %w", err)
		}
		defer f.Close()
		store, err := memory.LoadJSON(f)
		if err != nil {
			return nil, err
		}
		a.file = store
		snapshots, results, runStore, auditStore = store, store, memory.NewRunStore(), auditmemory.NewInMemoryStore()
		pm.SetBackend("graph", "file")

	case cfg.Database.URL != "":
		if err := a.openDatabase(ctx); err != nil {
			a.Close()
			return nil, err
		}
		snapshots, results, runStore, auditStore = a.graph, a.graph, postgres.NewRunStore(a.db), a.outbox
		extra = append(extra, runs.WithStoreTx(postgres.NewStoreTx(a.db)))
		pm.SetBackend("graph", "postgres")

	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "either --snapshot or database.url is required")
	}

	locker, err := a.locker(ctx, pm)
	if err != nil {
		a.Close()
		return nil, err
	}

	publisher := compliance.New(auditStore,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics()),
	)
	service, err := runs.New(snapshots, results, runStore, locker, append([]runs.Option{
		runs.WithLogger(log),
		runs.WithMetrics(runsmetrics.New()),
		runs.WithAuditPublisher(publisher),
		runs.WithOpsTracker(ops.New(auditStore,
			ops.WithLogger(log),
			ops.WithMetrics(ops.NewMetrics()),
		)),
		runs.WithLockTTL(cfg.Redis.LockTTL),
		runs.WithResolutionEngine(resolution.NewEngine(
			resolution.WithLogger(log),
			resolution.WithMetrics(resolutionmetrics.New()),
		)),
		runs.WithValidationEngine(validation.NewEngine(
			validation.WithLogger(log),
			validation.WithMetrics(validationmetrics.New()),
		)),
	}, extra...)...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.service = service
	return a, nil
}

func (a *app) openDatabase(ctx context.Context) error {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}
	if err := auditpostgres.Migrate(ctx, db); err != nil {
		return err
	}

	pool, err := postgres.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, pool.Close)

	a.db = db
	a.graph = postgres.NewGraphStore(pool)
	a.outbox = auditpostgres.New(db)
	a.checks["postgres"] = pool.Ping
	return nil
}

func (a *app) locker(ctx context.Context, pm *platformmetrics.Metrics) (runs.Locker, error) {
	client, err := lfredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		pm.SetBackend("lock", "memory")
		return memory.NewLocker(), nil
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.checks["redis"] = client.Health
	pm.SetBackend("lock", "redis")
	return client.Locker(), nil
}

// resolutionOptions maps configuration onto engine options.
func resolutionOptions() resolution.Options {
	return resolution.Options{
		Threshold:              cfg.Resolution.MergeThreshold,
		MinNameTokenOverlap:    cfg.Resolution.MinNameTokenOverlap,
		MaxCandidatesPerPerson: cfg.Resolution.MaxCandidatesPerPerson,
		Workers:                cfg.Resolution.Workers,
	}
}

func ruleConfig() validation.RuleConfig {
	return validation.RuleConfig{
		LifespanMaxYears:     cfg.Validation.LifespanMaxYears,
		GenerationalMinYears: cfg.Validation.GenerationalMinYears,
		GenerationalMaxYears: cfg.Validation.GenerationalMaxYears,
	}
}
