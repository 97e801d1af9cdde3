// Package resolution finds and merges duplicate persons in a claim graph
// snapshot. Blocking and scoring fan out over a worker pool on a frozen view;
// merges are folded in sequentially in candidate order so a run is a pure
// function of its snapshot and options.
package resolution

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"lineageforge/internal/claimgraph"
	"lineageforge/internal/resolution/metrics"
	id "lineageforge/pkg/domain"
	dErrors "lineageforge/pkg/domain-errors"
)

// Engine runs identity resolution passes until a pass merges nothing.
type Engine struct {
	scorer  *Scorer
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
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

// WithClock overrides the merge timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithWeights(w Weights) Option {
	return func(e *Engine) {
		e.scorer = NewScorer(w)
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		scorer: NewScorer(DefaultWeights),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scorer exposes the engine's scorer for previews.
func (e *Engine) Scorer() *Scorer { return e.scorer }

// scoreCache remembers breakdowns across passes. A breakdown stays valid
// while neither person's feature view has changed since it was computed.
type scoreCache struct {
	version map[id.PersonID]int
	entries map[Pair]cachedBreakdown
}

type cachedBreakdown struct {
	bd       Breakdown
	versionA int
	versionB int
}

func newScoreCache() *scoreCache {
	return &scoreCache{version: make(map[id.PersonID]int), entries: make(map[Pair]cachedBreakdown)}
}

func (c *scoreCache) get(p Pair) (Breakdown, bool) {
	e, ok := c.entries[p]
	if !ok || e.versionA != c.version[p.A] || e.versionB != c.version[p.B] {
		return Breakdown{}, false
	}
	return e.bd, true
}

func (c *scoreCache) put(bd Breakdown) {
	c.entries[bd.Pair] = cachedBreakdown{bd: bd, versionA: c.version[bd.Pair.A], versionB: c.version[bd.Pair.B]}
}

// touch invalidates everything computed for the persons a merge changed:
// the survivor, the owners of claims that now point at it, and the persons
// its absorbed relational claims point at.
func (c *scoreCache) touch(s *claimgraph.Snapshot, ev MergeEvent) {
	c.version[ev.TargetPersonID]++
	for _, cid := range ev.ReassignedObjectClaims {
		if cl, ok := s.Claim(cid); ok {
			c.version[cl.SubjectID]++
		}
	}
	for _, cid := range ev.ReassignedSubjectClaims {
		if cl, ok := s.Claim(cid); ok {
			if obj, ok := cl.Object(); ok {
				c.version[obj]++
			}
		}
	}
}

// Run resolves duplicates in s, mutating it in place. On failure the partial
// result is returned alongside the error with the FAILED state recorded.
func (e *Engine) Run(ctx context.Context, s *claimgraph.Snapshot, opts Options) (*Result, error) {
	res := &Result{RunID: opts.RunID}
	res.transition(StateInitialized)

	if err := opts.Validate(); err != nil {
		return e.fail(ctx, res, err)
	}
	if err := s.VerifyReferences(); err != nil {
		return e.fail(ctx, res, err)
	}

	res.Summary.PersonsScanned = len(s.ActivePersons())
	blocker := Blocker{
		MinOverlap:             opts.MinNameTokenOverlap,
		MaxCandidatesPerPerson: opts.MaxCandidatesPerPerson,
		Workers:                opts.workers(),
	}
	exec := NewMergeExecutor(opts.Threshold, opts.RunID, e.now)
	cache := newScoreCache()
	final := make(map[Pair]Breakdown)
	candidates := make(map[Pair]struct{})
	// Merges already applied to s are reported even when a later phase fails.
	abort := func(err error) (*Result, error) {
		tally(res, exec.Events(), final, candidates, opts.Threshold)
		return e.fail(ctx, res, err)
	}

	for pass := 1; ; pass++ {
		res.Summary.Passes = pass

		res.transition(StateBlocking)
		start := time.Now()
		pairs, err := blocker.Block(ctx, s)
		if err != nil {
			return abort(err)
		}
		e.metrics.ObservePhase("blocking", time.Since(start))
		e.metrics.ObserveCandidates(len(pairs))
		for _, p := range pairs {
			candidates[p] = struct{}{}
		}

		res.transition(StateScoring)
		start = time.Now()
		if err := e.scoreAll(ctx, s, pairs, cache, opts.workers()); err != nil {
			return abort(err)
		}
		e.metrics.ObservePhase("scoring", time.Since(start))

		res.transition(StateMerging)
		start = time.Now()
		merged := 0
		for _, p := range pairs {
			if !s.IsActive(p.A) || !s.IsActive(p.B) {
				res.Summary.SkippedInactive++
				continue
			}
			bd, ok := cache.get(p)
			if !ok {
				bd = e.scorer.Score(p, s)
				cache.put(bd)
			}
			final[p] = bd
			if bd.Score < opts.Threshold {
				continue
			}
			source, target := SelectSurvivor(p)
			ev, err := exec.Merge(s, source, target, bd)
			if err != nil {
				return abort(err)
			}
			cache.touch(s, ev)
			e.metrics.IncrementMerges()
			merged++
		}
		e.metrics.ObservePhase("merging", time.Since(start))

		e.logger.DebugContext(ctx, "resolution pass finished",
			"run_id", opts.RunID,
			"pass", pass,
			"candidates", len(pairs),
			"merges", merged,
		)
		if merged == 0 {
			break
		}
	}

	tally(res, exec.Events(), final, candidates, opts.Threshold)
	res.transition(StateCompleted)
	e.metrics.IncrementOutcome(string(StateCompleted))

	e.logger.InfoContext(ctx, "resolution run completed",
		"run_id", opts.RunID,
		"persons_scanned", res.Summary.PersonsScanned,
		"candidates", res.Summary.CandidatesGenerated,
		"merges", res.Summary.MergesExecuted,
		"passes", res.Summary.Passes,
	)
	return res, nil
}

// scoreAll fills the cache for every pair it cannot already answer. Workers
// only read s; results are written to distinct slots.
func (e *Engine) scoreAll(ctx context.Context, s *claimgraph.Snapshot, pairs []Pair, cache *scoreCache, workers int) error {
	pending := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if _, ok := cache.get(p); !ok {
			pending = append(pending, p)
		}
	}
	out := make([]Breakdown, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = e.scorer.Score(p, s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, bd := range out {
		cache.put(bd)
	}
	return nil
}

func (e *Engine) fail(ctx context.Context, res *Result, err error) (*Result, error) {
	res.transition(StateFailed)
	e.metrics.IncrementOutcome(string(StateFailed))
	e.logger.ErrorContext(ctx, "resolution run failed",
		"run_id", res.RunID,
		"error", err,
	)
	if ctx.Err() != nil {
		return res, dErrors.Wrap(err, dErrors.CodeUnavailable, "resolution run cancelled")
	}
	var coded *dErrors.Error
	if !errors.As(err, &coded) {
		return res, dErrors.Wrap(err, dErrors.CodeInternal, "resolution run failed")
	}
	return res, err
}

// tally copies what the run has done so far into res.
func tally(res *Result, events []MergeEvent, final map[Pair]Breakdown, candidates map[Pair]struct{}, threshold float64) {
	res.Events = events
	res.Scored = sortedBreakdowns(final)
	res.Summary.CandidatesGenerated = len(candidates)
	res.Summary.PairsScored = len(final)
	res.Summary.MergesExecuted = len(events)
	res.Summary.BelowThreshold = 0
	for _, bd := range res.Scored {
		if bd.Score < threshold {
			res.Summary.BelowThreshold++
		}
	}
}

func sortedBreakdowns(m map[Pair]Breakdown) []Breakdown {
	out := make([]Breakdown, 0, len(m))
	for _, bd := range m {
		out = append(out, bd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair.Less(out[j].Pair) })
	return out
}
