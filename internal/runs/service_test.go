package runs_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"lineageforge/internal/claimgraph"
	"lineageforge/internal/claimgraph/graphtest"
	"lineageforge/internal/resolution"
	"lineageforge/internal/runs"
	"lineageforge/internal/runs/mocks"
	"lineageforge/internal/validation"
	id "lineageforge/pkg/domain"
	dErrors "lineageforge/pkg/domain-errors"
	"lineageforge/pkg/platform/audit"
	"lineageforge/pkg/platform/sentinel"
)

// =============================================================================
// Run Service Test Suite
// =============================================================================
// The service owns ordering between lock, run record, engine, audit and
// persistence. Tests pin that ordering and the fail-closed audit behaviour.

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	snapshots *mocks.MockSnapshotSource
	results   *mocks.MockResultStore
	runStore  *mocks.MockRunStore
	locker    *mocks.MockLocker
	auditor   *mocks.MockAuditPublisher
	service   *runs.Service
	released  int
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.snapshots = mocks.NewMockSnapshotSource(s.ctrl)
	s.results = mocks.NewMockResultStore(s.ctrl)
	s.runStore = mocks.NewMockRunStore(s.ctrl)
	s.locker = mocks.NewMockLocker(s.ctrl)
	s.auditor = mocks.NewMockAuditPublisher(s.ctrl)
	s.released = 0

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return fixedNow }
	var err error
	s.service, err = runs.New(s.snapshots, s.results, s.runStore, s.locker,
		runs.WithLogger(logger),
		runs.WithAuditPublisher(s.auditor),
		runs.WithClock(clock),
		runs.WithResolutionEngine(resolution.NewEngine(resolution.WithLogger(logger), resolution.WithClock(clock))),
		runs.WithValidationEngine(validation.NewEngine(validation.WithLogger(logger))),
	)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) release(context.Context) error {
	s.released++
	return nil
}

func duplicates(t *testing.T) *claimgraph.Snapshot {
	b := graphtest.New()
	p1, p2, child := b.Person(1), b.Person(2), b.Person(3)
	b.Name(p1, "John Smith")
	b.Born(p1, "1900-01-01")
	b.ParentOf(p1, child)
	b.Name(p2, "John Smith")
	b.ParentOf(p2, child)
	b.Name(child, "Mary Smith")
	return b.Build(t)
}

func resolutionOptions() resolution.Options {
	opts := resolution.DefaultOptions()
	opts.RunID = id.RunID(graphtest.PersonID(900))
	return opts
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *ServiceSuite) TestNew() {
	s.Run("nil snapshot source returns error", func() {
		_, err := runs.New(nil, s.results, s.runStore, s.locker)
		s.ErrorContains(err, "snapshot source is required")
	})

	s.Run("nil result store returns error", func() {
		_, err := runs.New(s.snapshots, nil, s.runStore, s.locker)
		s.ErrorContains(err, "result store is required")
	})

	s.Run("nil run store returns error", func() {
		_, err := runs.New(s.snapshots, s.results, nil, s.locker)
		s.ErrorContains(err, "run store is required")
	})

	s.Run("nil locker returns error", func() {
		_, err := runs.New(s.snapshots, s.results, s.runStore, nil)
		s.ErrorContains(err, "locker is required")
	})
}

// =============================================================================
// Resolution
// =============================================================================

func (s *ServiceSuite) TestRunResolution() {
	s.Run("merges, audits each merge before saving, completes run", func() {
		s.SetupTest()
		snap := duplicates(s.T())
		opts := resolutionOptions()

		gomock.InOrder(
			s.locker.EXPECT().Acquire(gomock.Any(), "resolution", gomock.Any()).Return(s.release, nil),
			s.runStore.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, run *runs.Run) error {
				s.Equal(runs.StatusRunning, run.Status)
				s.Equal(runs.JobResolution, run.JobType)
				s.Equal(opts.RunID, run.ID)
				return nil
			}),
			s.snapshots.EXPECT().LoadSnapshot(gomock.Any()).Return(snap, nil),
			s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev audit.ComplianceEvent) error {
				s.Equal(string(audit.EventMergeExecuted), ev.Action)
				s.Equal(graphtest.PersonID(2).String(), ev.Subject)
				s.Equal(graphtest.PersonID(1).String(), ev.Details["target_person_id"])
				return nil
			}),
			s.results.EXPECT().SaveResolution(gomock.Any(), snap, gomock.Any()).Return(nil),
			s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev audit.ComplianceEvent) error {
				s.Equal(string(audit.EventResolutionCompleted), ev.Action)
				s.Equal("1", ev.Details["merges"])
				return nil
			}),
			s.runStore.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, run *runs.Run) error {
				s.Equal(runs.StatusCompleted, run.Status)
				s.JSONEq(`{"persons_scanned":3,"candidates_generated":1,"pairs_scored":1,"merges_executed":1,"below_threshold":0,"skipped_inactive":0,"passes":2}`, string(run.Summary))
				s.Require().NotNil(run.FinishedAt)
				s.Equal(fixedNow, *run.FinishedAt)
				return nil
			}),
		)

		report, err := s.service.RunResolution(context.Background(), opts)
		s.Require().NoError(err)
		s.Equal(runs.StatusCompleted, report.Run.Status)
		s.Require().Len(report.Result.Events, 1)
		s.Equal(1, s.released)
	})

	s.Run("lock held elsewhere yields conflict without a run record", func() {
		s.SetupTest()
		s.locker.EXPECT().Acquire(gomock.Any(), "resolution", gomock.Any()).
			Return(nil, sentinel.ErrConflict)

		report, err := s.service.RunResolution(context.Background(), resolutionOptions())
		s.Nil(report)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("invalid options rejected before locking", func() {
		s.SetupTest()
		opts := resolutionOptions()
		opts.Threshold = 2

		_, err := s.service.RunResolution(context.Background(), opts)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("merge audit failure fails closed and nothing is saved", func() {
		s.SetupTest()
		snap := duplicates(s.T())

		s.locker.EXPECT().Acquire(gomock.Any(), gomock.Any(), gomock.Any()).Return(s.release, nil)
		s.runStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.snapshots.EXPECT().LoadSnapshot(gomock.Any()).Return(snap, nil)
		gomock.InOrder(
			s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("audit store down")),
			s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev audit.ComplianceEvent) error {
				s.Equal(string(audit.EventResolutionFailed), ev.Action)
				return nil
			}),
		)
		s.results.EXPECT().SaveResolution(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		s.runStore.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, run *runs.Run) error {
			s.Equal(runs.StatusFailed, run.Status)
			s.Contains(run.Error, "compliance audit failed")
			return nil
		})

		report, err := s.service.RunResolution(context.Background(), resolutionOptions())
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Require().NotNil(report)
		s.Equal(runs.StatusFailed, report.Run.Status)
		s.Equal(1, s.released)
	})

	s.Run("inconsistent snapshot fails run with partial summary", func() {
		s.SetupTest()
		b := graphtest.New()
		p1 := b.Person(1)
		b.Name(p1, "Ann Lee")
		b.ParentOf(p1, graphtest.PersonID(77))
		snap, err := claimgraph.NewSnapshot(b.Persons(), b.Claims())
		s.Require().NoError(err)

		s.locker.EXPECT().Acquire(gomock.Any(), gomock.Any(), gomock.Any()).Return(s.release, nil)
		s.runStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.snapshots.EXPECT().LoadSnapshot(gomock.Any()).Return(snap, nil)
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)
		s.runStore.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, run *runs.Run) error {
			s.Equal(runs.StatusFailed, run.Status)
			s.NotEmpty(run.Summary)
			return nil
		})

		report, err := s.service.RunResolution(context.Background(), resolutionOptions())
		s.True(dErrors.HasCode(err, dErrors.CodeInconsistent))
		s.Equal(resolution.StateFailed, report.Result.State())
	})

	s.Run("snapshot load failure maps to unavailable", func() {
		s.SetupTest()
		s.locker.EXPECT().Acquire(gomock.Any(), gomock.Any(), gomock.Any()).Return(s.release, nil)
		s.runStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.snapshots.EXPECT().LoadSnapshot(gomock.Any()).Return(nil, errors.New("connection refused"))
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)
		s.runStore.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)

		_, err := s.service.RunResolution(context.Background(), resolutionOptions())
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
		s.Equal(1, s.released)
	})
}

// =============================================================================
// Validation
// =============================================================================

func (s *ServiceSuite) TestRunValidation() {
	s.Run("persists flags and completes without locking", func() {
		s.SetupTest()
		b := graphtest.New()
		p := b.Person(1)
		b.Name(p, "Old Tom")
		b.Born(p, "1800-01-01")
		b.Died(p, "1790-01-01")
		snap := b.Build(s.T())

		cfg := validation.DefaultRuleConfig()
		cfg.RunID = id.RunID(graphtest.PersonID(901))

		s.locker.EXPECT().Acquire(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		gomock.InOrder(
			s.runStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil),
			s.snapshots.EXPECT().LoadSnapshot(gomock.Any()).Return(snap, nil),
			s.results.EXPECT().SaveValidation(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, res *validation.Result) error {
				s.NotEmpty(res.Flags)
				for _, f := range res.Flags {
					s.Equal(cfg.RunID, f.RunID)
				}
				return nil
			}),
			s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev audit.ComplianceEvent) error {
				s.Equal(string(audit.EventValidationCompleted), ev.Action)
				return nil
			}),
			s.runStore.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, run *runs.Run) error {
				s.Equal(runs.StatusCompleted, run.Status)
				s.Equal(runs.JobValidation, run.JobType)
				return nil
			}),
		)

		report, err := s.service.RunValidation(context.Background(), cfg)
		s.Require().NoError(err)
		s.Equal(1, report.Result.Summary.Errors)
	})

	s.Run("save failure fails the run", func() {
		s.SetupTest()
		snap := duplicates(s.T())

		s.runStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.snapshots.EXPECT().LoadSnapshot(gomock.Any()).Return(snap, nil)
		s.results.EXPECT().SaveValidation(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev audit.ComplianceEvent) error {
			s.Equal(string(audit.EventValidationFailed), ev.Action)
			return nil
		})
		s.runStore.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, run *runs.Run) error {
			s.Equal(runs.StatusFailed, run.Status)
			return nil
		})

		_, err := s.service.RunValidation(context.Background(), validation.DefaultRuleConfig())
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

// =============================================================================
// Operational Events
// =============================================================================

func (s *ServiceSuite) TestOpsTracking() {
	newService := func(ops runs.OpsTracker) *runs.Service {
		svc, err := runs.New(s.snapshots, s.results, s.runStore, s.locker,
			runs.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			runs.WithOpsTracker(ops),
			runs.WithClock(func() time.Time { return fixedNow }),
		)
		s.Require().NoError(err)
		return svc
	}

	s.Run("lock contention is tracked", func() {
		s.SetupTest()
		ops := mocks.NewMockOpsTracker(s.ctrl)
		svc := newService(ops)
		opts := resolutionOptions()

		s.locker.EXPECT().Acquire(gomock.Any(), "resolution", gomock.Any()).Return(nil, sentinel.ErrConflict)
		ops.EXPECT().Track(gomock.Any(), gomock.Any()).Do(func(_ context.Context, ev audit.OpsEvent) {
			s.Equal(string(audit.EventLockContended), ev.Action)
			s.Equal(opts.RunID, ev.RunID)
		})

		_, err := svc.RunResolution(context.Background(), opts)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("run start is tracked after the run is recorded", func() {
		s.SetupTest()
		ops := mocks.NewMockOpsTracker(s.ctrl)
		svc := newService(ops)
		cfg := validation.DefaultRuleConfig()

		gomock.InOrder(
			s.runStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil),
			ops.EXPECT().Track(gomock.Any(), gomock.Any()).Do(func(_ context.Context, ev audit.OpsEvent) {
				s.Equal(string(audit.EventRunStarted), ev.Action)
				s.Equal("validate", ev.Details["job_type"])
			}),
			s.snapshots.EXPECT().LoadSnapshot(gomock.Any()).Return(duplicates(s.T()), nil),
			s.results.EXPECT().SaveValidation(gomock.Any(), gomock.Any()).Return(nil),
			s.runStore.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil),
		)

		_, err := svc.RunValidation(context.Background(), cfg)
		s.Require().NoError(err)
	})
}

// =============================================================================
// Completion Transaction
// =============================================================================

func (s *ServiceSuite) TestCompletionTransaction() {
	newService := func(tx runs.StoreTx) *runs.Service {
		svc, err := runs.New(s.snapshots, s.results, s.runStore, s.locker,
			runs.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			runs.WithAuditPublisher(s.auditor),
			runs.WithStoreTx(tx),
			runs.WithClock(func() time.Time { return fixedNow }),
		)
		s.Require().NoError(err)
		return svc
	}
	type txKey struct{}

	s.Run("completion event and run update share the transaction", func() {
		s.SetupTest()
		tx := mocks.NewMockStoreTx(s.ctrl)
		svc := newService(tx)

		gomock.InOrder(
			s.runStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil),
			s.snapshots.EXPECT().LoadSnapshot(gomock.Any()).Return(duplicates(s.T()), nil),
			s.results.EXPECT().SaveValidation(gomock.Any(), gomock.Any()).Return(nil),
			tx.EXPECT().RunInTx(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
				return fn(context.WithValue(ctx, txKey{}, "tx"))
			}),
			s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, ev audit.ComplianceEvent) error {
				s.Equal("tx", ctx.Value(txKey{}))
				s.Equal(string(audit.EventValidationCompleted), ev.Action)
				return nil
			}),
			s.runStore.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, run *runs.Run) error {
				s.Equal("tx", ctx.Value(txKey{}))
				s.Equal(runs.StatusCompleted, run.Status)
				return nil
			}),
		)

		_, err := svc.RunValidation(context.Background(), validation.DefaultRuleConfig())
		s.Require().NoError(err)
	})

	s.Run("failed commit marks the run failed", func() {
		s.SetupTest()
		tx := mocks.NewMockStoreTx(s.ctrl)
		svc := newService(tx)

		gomock.InOrder(
			s.runStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil),
			s.snapshots.EXPECT().LoadSnapshot(gomock.Any()).Return(duplicates(s.T()), nil),
			s.results.EXPECT().SaveValidation(gomock.Any(), gomock.Any()).Return(nil),
			tx.EXPECT().RunInTx(gomock.Any(), gomock.Any()).Return(errors.New("serialization failure")),
			s.runStore.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, run *runs.Run) error {
				s.Equal(runs.StatusFailed, run.Status)
				s.Contains(run.Error, "serialization failure")
				s.NotEmpty(run.Summary)
				return nil
			}),
			s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev audit.ComplianceEvent) error {
				s.Equal(string(audit.EventValidationFailed), ev.Action)
				return nil
			}),
		)

		report, err := svc.RunValidation(context.Background(), validation.DefaultRuleConfig())
		s.Require().Error(err)
		s.Equal(runs.StatusFailed, report.Run.Status)
	})
}

// =============================================================================
// Bookkeeping
// =============================================================================

func (s *ServiceSuite) TestGet() {
	runID := id.RunID(graphtest.PersonID(5))

	s.Run("missing run maps to not found", func() {
		s.runStore.EXPECT().FindByID(gomock.Any(), runID).Return(nil, sentinel.ErrNotFound)
		_, err := s.service.Get(context.Background(), runID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("store failure maps to internal", func() {
		s.runStore.EXPECT().FindByID(gomock.Any(), runID).Return(nil, errors.New("boom"))
		_, err := s.service.Get(context.Background(), runID)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("found", func() {
		s.runStore.EXPECT().FindByID(gomock.Any(), runID).Return(&runs.Run{ID: runID, Status: runs.StatusCompleted}, nil)
		run, err := s.service.Get(context.Background(), runID)
		s.Require().NoError(err)
		s.Equal(runID, run.ID)
	})
}

func (s *ServiceSuite) TestPreview() {
	s.Run("scores without recording a run", func() {
		s.snapshots.EXPECT().LoadSnapshot(gomock.Any()).Return(duplicates(s.T()), nil)

		bd, err := s.service.Preview(context.Background(), graphtest.PersonID(2), graphtest.PersonID(1))
		s.Require().NoError(err)
		s.Equal(0.75, bd.Score)
		s.Equal(graphtest.PersonID(1), bd.Pair.A)
	})

	s.Run("unknown person", func() {
		s.snapshots.EXPECT().LoadSnapshot(gomock.Any()).Return(duplicates(s.T()), nil)

		_, err := s.service.Preview(context.Background(), graphtest.PersonID(1), graphtest.PersonID(99))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("same person twice", func() {
		_, err := s.service.Preview(context.Background(), graphtest.PersonID(1), graphtest.PersonID(1))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestList() {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default when zero", 0, 50},
		{"passes through", 10, 10},
		{"clamped", 10000, 500},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.runStore.EXPECT().ListRecent(gomock.Any(), tt.want).Return([]*runs.Run{}, nil)
			_, err := s.service.List(context.Background(), tt.limit)
			s.NoError(err)
		})
	}
}
