// Package validation checks a claim graph snapshot for genealogical
// impossibilities and conflicts. It never mutates the snapshot; findings are
// returned as flags for human review.
package validation

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"lineageforge/internal/claimgraph"
	"lineageforge/internal/validation/metrics"
	id "lineageforge/pkg/domain"
	dErrors "lineageforge/pkg/domain-errors"
)

type ruleFunc func(*claimgraph.Snapshot, RuleConfig) []Flag

var rules = map[FlagType]ruleFunc{
	FlagLifespanInvalid:     checkLifespan,
	FlagGenerationalSpacing: checkGenerationalSpacing,
	FlagTemporalImpossible:  checkTemporalConsistency,
	FlagCircularRelation:    checkCircularRelationships,
	FlagConflictingClaims:   checkConflictingClaims,
}

// Engine runs the enabled rule families concurrently over one snapshot.
type Engine struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run evaluates every enabled rule. The snapshot must not be mutated while
// Run is in progress.
func (e *Engine) Run(ctx context.Context, s *claimgraph.Snapshot, cfg RuleConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		e.metrics.IncrementOutcome("failed")
		return nil, err
	}
	if err := s.VerifyReferences(); err != nil {
		e.metrics.IncrementOutcome("failed")
		e.logger.ErrorContext(ctx, "validation run aborted", "run_id", cfg.RunID, "error", err)
		return nil, err
	}

	results := make([][]Flag, len(AllFlagTypes))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range AllFlagTypes {
		if !cfg.enabled(t) {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			results[i] = rules[t](s, cfg)
			e.metrics.ObserveRule(string(t), time.Since(start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.metrics.IncrementOutcome("failed")
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "validation run cancelled")
	}

	var flags []Flag
	for _, r := range results {
		flags = append(flags, r...)
	}
	for i := range flags {
		flags[i].RunID = cfg.RunID
	}
	SortFlags(flags)

	res := &Result{RunID: cfg.RunID, Flags: flags, Summary: summarize(s, flags)}
	for _, f := range flags {
		e.metrics.IncrementFlag(string(f.Type), string(f.Severity))
	}
	e.metrics.IncrementOutcome("completed")
	e.logger.InfoContext(ctx, "validation run completed",
		"run_id", cfg.RunID,
		"persons_validated", res.Summary.PersonsValidated,
		"flags", len(flags),
		"errors", res.Summary.Errors,
		"warnings", res.Summary.Warnings,
	)
	return res, nil
}

func summarize(s *claimgraph.Snapshot, flags []Flag) Summary {
	sum := Summary{FlagsByType: make(map[FlagType]int)}
	for _, p := range s.ActivePersons() {
		sum.PersonsValidated++
		sum.ClaimsExamined += len(s.ClaimsFor(p.ID))
	}
	for _, f := range flags {
		sum.FlagsByType[f.Type]++
		switch f.Severity {
		case SeverityError:
			sum.Errors++
		case SeverityWarning:
			sum.Warnings++
		}
	}
	return sum
}

// SortFlags orders flags by type, severity, person ids, then claim ids.
func SortFlags(flags []Flag) {
	sort.SliceStable(flags, func(i, j int) bool {
		a, b := flags[i], flags[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Severity != b.Severity {
			return a.Severity < b.Severity
		}
		if c := compareIDs(a.PersonIDs, b.PersonIDs, id.PersonID.String); c != 0 {
			return c < 0
		}
		return compareIDs(a.ClaimIDs, b.ClaimIDs, id.ClaimID.String) < 0
	})
}

func compareIDs[T any](a, b []T, str func(T) string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		x, y := str(a[i]), str(b[i])
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}
