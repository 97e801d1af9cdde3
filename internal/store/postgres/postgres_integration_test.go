//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"lineageforge/internal/claimgraph"
	"lineageforge/internal/claimgraph/graphtest"
	"lineageforge/internal/resolution"
	"lineageforge/internal/runs"
	"lineageforge/internal/store/memory"
	"lineageforge/internal/store/postgres"
	"lineageforge/internal/validation"
	id "lineageforge/pkg/domain"
	"lineageforge/pkg/platform/audit"
	"lineageforge/pkg/platform/audit/publishers/compliance"
	auditpostgres "lineageforge/pkg/platform/audit/store/postgres"
	"lineageforge/pkg/platform/sentinel"
	"lineageforge/pkg/testutil/containers"
)

type PostgresSuite struct {
	suite.Suite
	pg     *containers.PostgresContainer
	graph  *postgres.GraphStore
	runs   *postgres.RunStore
	audit  *auditpostgres.Store
	logger *slog.Logger
}

func TestPostgresSuite(t *testing.T) {
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	ctx := context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(postgres.Migrate(ctx, s.pg.DB))
	s.Require().NoError(auditpostgres.Migrate(ctx, s.pg.DB))

	pool, err := postgres.NewPool(ctx, s.pg.DSN, 4)
	s.Require().NoError(err)
	s.T().Cleanup(pool.Close)

	s.graph = postgres.NewGraphStore(pool)
	s.runs = postgres.NewRunStore(s.pg.DB)
	s.audit = auditpostgres.New(s.pg.DB)
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *PostgresSuite) SetupTest() {
	_, err := s.pg.DB.Exec(`TRUNCATE persons, places, claims, merge_events, validation_flags, runs, outbox`)
	s.Require().NoError(err)
}

func family() *graphtest.Builder {
	b := graphtest.New()
	p1, p2, child := b.Person(1), b.Person(2), b.Person(3)
	b.Name(p1, "John Smith")
	b.Born(p1, "1900-01-01")
	b.ParentOf(p1, child)
	b.Name(p2, "John Smith")
	b.ParentOf(p2, child)
	b.Name(child, "Mary Smith")
	b.Attr(child, claimgraph.PredicateBornAt, "Leeds", graphtest.WithPlace("Leeds"))
	return b
}

func (s *PostgresSuite) service() *runs.Service {
	svc, err := runs.New(s.graph, s.graph, s.runs, memory.NewLocker(),
		runs.WithLogger(s.logger),
		runs.WithAuditPublisher(compliance.New(s.audit, compliance.WithLogger(s.logger))),
		runs.WithStoreTx(postgres.NewStoreTx(s.pg.DB)),
	)
	s.Require().NoError(err)
	return svc
}

func (s *PostgresSuite) TestImportAndLoad() {
	ctx := context.Background()
	b := family()
	s.Require().NoError(s.graph.Import(ctx, b.Persons(), b.Claims()))

	snap, err := s.graph.LoadSnapshot(ctx)
	s.Require().NoError(err)
	persons, claims := snap.Len()
	s.Equal(3, persons)
	s.Equal(7, claims)

	born := snap.ClaimsWithPredicate(graphtest.PersonID(3), claimgraph.PredicateBornAt)
	s.Require().Len(born, 1)
	s.Equal("Leeds", born[0].PlaceName)
}

func (s *PostgresSuite) TestResolutionPersistsOwnership() {
	ctx := context.Background()
	b := family()
	s.Require().NoError(s.graph.Import(ctx, b.Persons(), b.Claims()))
	svc := s.service()

	report, err := svc.RunResolution(ctx, resolution.DefaultOptions())
	s.Require().NoError(err)
	s.Require().Len(report.Result.Events, 1)

	snap, err := s.graph.LoadSnapshot(ctx)
	s.Require().NoError(err)
	s.False(snap.IsActive(graphtest.PersonID(2)))
	s.Empty(snap.ClaimsFor(graphtest.PersonID(2)))
	s.Empty(snap.ClaimsReferencing(graphtest.PersonID(2)))
	s.NoError(snap.VerifyReferences())

	var merges int
	s.Require().NoError(s.pg.DB.QueryRow(`SELECT COUNT(*) FROM merge_events WHERE run_id = $1`, report.Run.ID.String()).Scan(&merges))
	s.Equal(1, merges)

	events, err := s.audit.ListByRun(ctx, report.Run.ID)
	s.Require().NoError(err)
	s.Len(events, 2)

	stored, err := s.runs.FindByID(ctx, report.Run.ID)
	s.Require().NoError(err)
	s.Equal(runs.StatusCompleted, stored.Status)
	s.JSONEq(`{"persons_scanned":3,"candidates_generated":1,"pairs_scored":1,"merges_executed":1,"below_threshold":0,"skipped_inactive":0,"passes":2}`, string(stored.Summary))

	again, err := svc.RunResolution(ctx, resolution.DefaultOptions())
	s.Require().NoError(err)
	s.Empty(again.Result.Events)
}

func (s *PostgresSuite) TestValidationFlagsCopied() {
	ctx := context.Background()
	b := graphtest.New()
	p := b.Person(1)
	b.Name(p, "Old Tom")
	b.Born(p, "1800-01-01")
	b.Died(p, "1790-01-01")
	s.Require().NoError(s.graph.Import(ctx, b.Persons(), b.Claims()))

	report, err := s.service().RunValidation(ctx, validation.DefaultRuleConfig())
	s.Require().NoError(err)
	s.Require().NotEmpty(report.Result.Flags)

	flags, err := s.graph.FlagsByRun(ctx, report.Run.ID)
	s.Require().NoError(err)
	s.Len(flags, len(report.Result.Flags))
	for _, f := range flags {
		s.Equal([]id.PersonID{p}, f.PersonIDs)
	}
}

func (s *PostgresSuite) TestRunStore() {
	ctx := context.Background()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	run := &runs.Run{ID: id.NewRunID(), JobType: runs.JobResolution, Status: runs.StatusRunning, CreatedAt: created}

	s.Require().NoError(s.runs.Create(ctx, run))
	s.True(errors.Is(s.runs.Create(ctx, run), sentinel.ErrConflict))

	missing := &runs.Run{ID: id.NewRunID()}
	s.True(errors.Is(s.runs.Update(ctx, missing), sentinel.ErrNotFound))

	_, err := s.runs.FindByID(ctx, missing.ID)
	s.True(errors.Is(err, sentinel.ErrNotFound))

	list, err := s.runs.ListRecent(ctx, 10)
	s.Require().NoError(err)
	s.Len(list, 1)
	s.Nil(list[0].Summary)
}

func (s *PostgresSuite) TestStoreTx() {
	ctx := context.Background()
	storeTx := postgres.NewStoreTx(s.pg.DB)
	newRun := func() *runs.Run {
		return &runs.Run{ID: id.NewRunID(), JobType: runs.JobValidation, Status: runs.StatusRunning, CreatedAt: time.Now().UTC()}
	}

	s.Run("rolls back when fn fails", func() {
		run := newRun()
		boom := errors.New("boom")
		err := storeTx.RunInTx(ctx, func(txCtx context.Context) error {
			s.Require().NoError(s.runs.Create(txCtx, run))
			return boom
		})
		s.ErrorIs(err, boom)

		_, err = s.runs.FindByID(ctx, run.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("commits run and audit rows together", func() {
		run := newRun()
		err := storeTx.RunInTx(ctx, func(txCtx context.Context) error {
			if err := s.runs.Create(txCtx, run); err != nil {
				return err
			}
			return compliance.New(s.audit).Emit(txCtx, audit.ComplianceEvent{
				RunID:   run.ID,
				Subject: run.ID.String(),
				Action:  string(audit.EventValidationCompleted),
			})
		})
		s.Require().NoError(err)

		_, err = s.runs.FindByID(ctx, run.ID)
		s.NoError(err)
		events, err := s.audit.ListByRun(ctx, run.ID)
		s.Require().NoError(err)
		s.Len(events, 1)
	})

	s.Run("cancelled context", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		called := false
		err := storeTx.RunInTx(cancelled, func(context.Context) error {
			called = true
			return nil
		})
		s.Error(err)
		s.False(called)
	})
}
