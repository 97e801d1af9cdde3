// Package runs orchestrates engine invocations: it serializes resolution runs
// behind a lock, keeps a Run record through its lifecycle, persists results
// and emits fail-closed compliance audit events.
package runs

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks SnapshotSource,ResultStore,RunStore,Locker,AuditPublisher,StoreTx,OpsTracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lineageforge/internal/claimgraph"
	"lineageforge/internal/resolution"
	"lineageforge/internal/runs/metrics"
	"lineageforge/internal/validation"
	id "lineageforge/pkg/domain"
	dErrors "lineageforge/pkg/domain-errors"
	"lineageforge/pkg/platform/audit"
	"lineageforge/pkg/platform/sentinel"
	"lineageforge/pkg/requestcontext"
)

// SnapshotSource loads the claim graph a run works on.
type SnapshotSource interface {
	LoadSnapshot(ctx context.Context) (*claimgraph.Snapshot, error)
}

// ResultStore persists engine output. SaveResolution writes merge events,
// person status and final claim ownership as one transaction.
type ResultStore interface {
	SaveResolution(ctx context.Context, snapshot *claimgraph.Snapshot, result *resolution.Result) error
	SaveValidation(ctx context.Context, result *validation.Result) error
}

type RunStore interface {
	Create(ctx context.Context, run *Run) error
	Update(ctx context.Context, run *Run) error
	FindByID(ctx context.Context, runID id.RunID) (*Run, error)
	ListRecent(ctx context.Context, limit int) ([]*Run, error)
}

// Locker hands out a named lock. A held lock is reported as sentinel.ErrConflict.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// StoreTx runs fn in a transaction shared by the RunStore and the audit
// store. Stores find the transaction in txCtx.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// inlineTx is used when the stores have no transaction support.
type inlineTx struct{}

func (inlineTx) RunInTx(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }

// OpsTracker records best-effort operational events.
type OpsTracker interface {
	Track(ctx context.Context, event audit.OpsEvent)
}

type Service struct {
	snapshots SnapshotSource
	results   ResultStore
	runs      RunStore
	locker    Locker
	auditor   AuditPublisher
	ops       OpsTracker
	tx        StoreTx
	resolver  *resolution.Engine
	validator *validation.Engine
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	lockTTL   time.Duration
	now       func(context.Context) time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditPublisher enables compliance audit. Emission failures fail the run.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithOpsTracker(t OpsTracker) Option {
	return func(s *Service) {
		s.ops = t
	}
}

// WithStoreTx makes run completion and its audit event atomic.
func WithStoreTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithResolutionEngine(e *resolution.Engine) Option {
	return func(s *Service) {
		s.resolver = e
	}
}

func WithValidationEngine(e *validation.Engine) Option {
	return func(s *Service) {
		s.validator = e
	}
}

func WithLockTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithClock fixes Run timestamps. By default the request-scoped time is used.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = func(context.Context) time.Time { return now() }
	}
}

func New(snapshots SnapshotSource, results ResultStore, runs RunStore, locker Locker, opts ...Option) (*Service, error) {
	if snapshots == nil {
		return nil, fmt.Errorf("snapshot source is required")
	}
	if results == nil {
		return nil, fmt.Errorf("result store is required")
	}
	if runs == nil {
		return nil, fmt.Errorf("run store is required")
	}
	if locker == nil {
		return nil, fmt.Errorf("locker is required")
	}

	s := &Service{
		snapshots: snapshots,
		results:   results,
		runs:      runs,
		locker:    locker,
		logger:    slog.Default(),
		tracer:    otel.Tracer("lineageforge/internal/runs"),
		tx:        inlineTx{},
		lockTTL:   defaultLockTTL,
		now:       requestcontext.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = resolution.NewEngine(resolution.WithLogger(s.logger))
	}
	if s.validator == nil {
		s.validator = validation.NewEngine(validation.WithLogger(s.logger))
	}
	return s, nil
}

// =============================================================================
// Resolution
// =============================================================================

// RunResolution resolves duplicates in the current snapshot. Only one
// resolution run may hold the lock at a time; a concurrent call fails with
// CodeConflict before any Run is recorded.
func (s *Service) RunResolution(ctx context.Context, opts resolution.Options) (*ResolutionReport, error) {
	start := time.Now()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.RunID.IsNil() {
		opts.RunID = id.NewRunID()
	}

	ctx, span := s.tracer.Start(ctx, "runs.resolution", trace.WithAttributes(
		attribute.String("run_id", opts.RunID.String()),
		attribute.Float64("merge_threshold", opts.Threshold),
	))
	defer span.End()

	release, err := s.locker.Acquire(ctx, resolutionLockKey, s.lockTTL)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncrementLockContention()
			s.track(ctx, audit.OpsEvent{
				RunID:   opts.RunID,
				Subject: resolutionLockKey,
				Action:  string(audit.EventLockContended),
			})
			return nil, s.spanError(span, dErrors.Wrap(err, dErrors.CodeConflict, "another resolution run is in progress"))
		}
		return nil, s.spanError(span, dErrors.Wrap(err, dErrors.CodeUnavailable, "resolution lock unavailable"))
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "failed to release resolution lock",
				"run_id", opts.RunID,
				"error", err,
			)
		}
	}()

	run, err := s.begin(ctx, opts.RunID, JobResolution, opts)
	if err != nil {
		return nil, s.spanError(span, err)
	}
	report := &ResolutionReport{Run: run}

	snap, err := s.snapshots.LoadSnapshot(ctx)
	if err != nil {
		err = translateLoadError(err)
		s.finish(ctx, run, nil, err)
		s.emitFailure(ctx, run, audit.EventResolutionFailed, err)
		s.metrics.ObserveRun(string(JobResolution), string(run.Status), time.Since(start))
		return report, s.spanError(span, err)
	}

	res, err := s.resolver.Run(ctx, snap, opts)
	report.Result = res
	if err == nil {
		err = s.persistResolution(ctx, snap, res)
	}
	if err == nil {
		err = s.complete(ctx, run, res.Summary, audit.ComplianceEvent{
			RunID:    res.RunID,
			Subject:  res.RunID.String(),
			Action:   string(audit.EventResolutionCompleted),
			Decision: "completed",
			Details: map[string]string{
				"merges":       strconv.Itoa(res.Summary.MergesExecuted),
				"pairs_scored": strconv.Itoa(res.Summary.PairsScored),
				"passes":       strconv.Itoa(res.Summary.Passes),
			},
		})
	}
	if err != nil {
		var summary any
		if res != nil {
			summary = res.Summary
		}
		s.finish(ctx, run, summary, err)
		s.metrics.ObserveRun(string(JobResolution), string(run.Status), time.Since(start))
		s.emitFailure(ctx, run, audit.EventResolutionFailed, err)
		return report, s.spanError(span, err)
	}
	s.metrics.ObserveRun(string(JobResolution), string(run.Status), time.Since(start))

	span.SetAttributes(attribute.Int("merges", res.Summary.MergesExecuted))
	s.logger.InfoContext(ctx, "resolution run completed",
		"run_id", run.ID,
		"merges", res.Summary.MergesExecuted,
		"pairs_scored", res.Summary.PairsScored,
		"passes", res.Summary.Passes,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}

// persistResolution audits every merge, then saves. A merge that cannot be
// audited is never persisted.
func (s *Service) persistResolution(ctx context.Context, snap *claimgraph.Snapshot, res *resolution.Result) error {
	for _, ev := range res.Events {
		err := s.emit(ctx, audit.ComplianceEvent{
			Timestamp: ev.Timestamp,
			RunID:     res.RunID,
			Subject:   ev.SourcePersonID.String(),
			Action:    string(audit.EventMergeExecuted),
			Decision:  "merged",
			Reason:    ev.Rationale,
			Details: map[string]string{
				"merge_id":         ev.ID.String(),
				"target_person_id": ev.TargetPersonID.String(),
				"score":            strconv.FormatFloat(ev.Score, 'f', 6, 64),
				"threshold":        strconv.FormatFloat(ev.Threshold, 'f', 2, 64),
				"reassigned":       strconv.Itoa(len(ev.ReassignedSubjectClaims) + len(ev.ReassignedObjectClaims)),
			},
		})
		if err != nil {
			return err
		}
	}

	if err := s.results.SaveResolution(ctx, snap, res); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist resolution results")
	}
	return nil
}

// =============================================================================
// Validation
// =============================================================================

// RunValidation checks the current snapshot. Validation never mutates the
// graph so it takes no lock.
func (s *Service) RunValidation(ctx context.Context, cfg validation.RuleConfig) (*ValidationReport, error) {
	start := time.Now()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RunID.IsNil() {
		cfg.RunID = id.NewRunID()
	}

	ctx, span := s.tracer.Start(ctx, "runs.validation", trace.WithAttributes(
		attribute.String("run_id", cfg.RunID.String()),
	))
	defer span.End()

	run, err := s.begin(ctx, cfg.RunID, JobValidation, cfg)
	if err != nil {
		return nil, s.spanError(span, err)
	}
	report := &ValidationReport{Run: run}

	snap, err := s.snapshots.LoadSnapshot(ctx)
	if err != nil {
		err = translateLoadError(err)
		s.finish(ctx, run, nil, err)
		s.emitFailure(ctx, run, audit.EventValidationFailed, err)
		s.metrics.ObserveRun(string(JobValidation), string(run.Status), time.Since(start))
		return report, s.spanError(span, err)
	}

	res, err := s.validator.Run(ctx, snap, cfg)
	report.Result = res
	if err == nil {
		if saveErr := s.results.SaveValidation(ctx, res); saveErr != nil {
			err = dErrors.Wrap(saveErr, dErrors.CodeInternal, "persist validation flags")
		}
	}
	if err == nil {
		err = s.complete(ctx, run, res.Summary, audit.ComplianceEvent{
			RunID:    res.RunID,
			Subject:  res.RunID.String(),
			Action:   string(audit.EventValidationCompleted),
			Decision: "completed",
			Details: map[string]string{
				"flags":    strconv.Itoa(len(res.Flags)),
				"errors":   strconv.Itoa(res.Summary.Errors),
				"warnings": strconv.Itoa(res.Summary.Warnings),
			},
		})
	}
	if err != nil {
		var summary any
		if res != nil {
			summary = res.Summary
		}
		s.finish(ctx, run, summary, err)
		s.metrics.ObserveRun(string(JobValidation), string(run.Status), time.Since(start))
		s.emitFailure(ctx, run, audit.EventValidationFailed, err)
		return report, s.spanError(span, err)
	}
	s.metrics.ObserveRun(string(JobValidation), string(run.Status), time.Since(start))

	s.logger.InfoContext(ctx, "validation run completed",
		"run_id", run.ID,
		"flags", len(res.Flags),
		"errors", res.Summary.Errors,
		"warnings", res.Summary.Warnings,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}

// Preview scores two persons of the current snapshot without running or
// recording anything.
func (s *Service) Preview(ctx context.Context, x, y id.PersonID) (resolution.Breakdown, error) {
	if x == y {
		return resolution.Breakdown{}, dErrors.New(dErrors.CodeInvalidInput, "preview needs two distinct persons")
	}
	snap, err := s.snapshots.LoadSnapshot(ctx)
	if err != nil {
		return resolution.Breakdown{}, translateLoadError(err)
	}
	for _, pid := range []id.PersonID{x, y} {
		if _, ok := snap.Person(pid); !ok {
			return resolution.Breakdown{}, dErrors.New(dErrors.CodeNotFound, "person "+pid.String()+" not found")
		}
	}
	return s.resolver.Scorer().Preview(snap, x, y), nil
}

// =============================================================================
// Bookkeeping
// =============================================================================

func (s *Service) Get(ctx context.Context, runID id.RunID) (*Run, error) {
	run, err := s.runs.FindByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "run not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load run")
	}
	return run, nil
}

// List returns the most recent runs, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]*Run, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	runs, err := s.runs.ListRecent(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list runs")
	}
	return runs, nil
}

func (s *Service) begin(ctx context.Context, runID id.RunID, job JobType, cfg any) (*Run, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode run config")
	}
	now := s.now(ctx)
	run := &Run{
		ID:        runID,
		JobType:   job,
		Status:    StatusRunning,
		Config:    raw,
		CreatedAt: now,
		StartedAt: &now,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "run already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record run")
	}
	s.logger.InfoContext(ctx, "run started",
		"run_id", runID,
		"job_type", job,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.track(ctx, audit.OpsEvent{
		RunID:   runID,
		Subject: runID.String(),
		Action:  string(audit.EventRunStarted),
		Details: map[string]string{"job_type": string(job)},
	})
	return run, nil
}

// stamp moves run to its terminal status. The partial summary is kept on
// failure so operators can see how far the run got.
func (s *Service) stamp(ctx context.Context, run *Run, summary any, runErr error) {
	now := s.now(ctx)
	run.FinishedAt = &now
	run.Status = StatusCompleted
	run.Error = ""
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
	}
	if summary != nil {
		if raw, err := json.Marshal(summary); err == nil {
			run.Summary = raw
		}
	}
}

// complete records the completion audit event and the completed run in one
// transaction, so the outbox never reports a run the run table does not.
func (s *Service) complete(ctx context.Context, run *Run, summary any, event audit.ComplianceEvent) error {
	s.stamp(ctx, run, summary, nil)
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.emit(txCtx, event); err != nil {
			return err
		}
		if err := s.runs.Update(txCtx, run); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update run record")
		}
		return nil
	})
}

// finish marks run failed. Update errors are logged; the run error wins.
func (s *Service) finish(ctx context.Context, run *Run, summary any, runErr error) {
	s.stamp(ctx, run, summary, runErr)
	if err := s.runs.Update(context.WithoutCancel(ctx), run); err != nil {
		s.logger.ErrorContext(ctx, "failed to update run record",
			"run_id", run.ID,
			"status", run.Status,
			"error", err,
		)
	}
}

func (s *Service) emit(ctx context.Context, event audit.ComplianceEvent) error {
	if s.auditor == nil {
		return nil
	}
	event.RequestID = requestcontext.RequestID(ctx)
	event.ActorID = requestcontext.Actor(ctx)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.metrics.IncrementAuditFailures()
		return dErrors.Wrap(err, dErrors.CodeInternal, "compliance audit failed")
	}
	return nil
}

func (s *Service) track(ctx context.Context, event audit.OpsEvent) {
	if s.ops == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	event.ActorID = requestcontext.Actor(ctx)
	s.ops.Track(ctx, event)
}

// emitFailure records a failed run. The run is already failed, so an audit
// error here is only logged.
func (s *Service) emitFailure(ctx context.Context, run *Run, action audit.AuditEvent, runErr error) {
	err := s.emit(context.WithoutCancel(ctx), audit.ComplianceEvent{
		RunID:    run.ID,
		Subject:  run.ID.String(),
		Action:   string(action),
		Decision: "failed",
		Reason:   runErr.Error(),
		Details:  map[string]string{"code": string(dErrors.CodeOf(runErr))},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to audit run failure",
			"run_id", run.ID,
			"error", err,
		)
	}
}

func (s *Service) spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

func translateLoadError(err error) error {
	var coded *dErrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "snapshot not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load snapshot")
	}
}
