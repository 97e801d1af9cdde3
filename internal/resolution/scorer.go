package resolution

import (
	"math"
	"sort"

	"lineageforge/internal/claimgraph"
	id "lineageforge/pkg/domain"
)

const (
	// neutralScore is used when a feature has nothing to compare.
	neutralScore = 0.5

	sameYearMin = 0.5
	sameYearMax = 0.9
)

// SameYearScore is the partial date credit for two dates in the same calendar
// year that are days apart. Closer dates score higher, bounded to [0.5, 0.9].
func SameYearScore(days int) float64 {
	v := sameYearMin + (sameYearMax-sameYearMin)*(1-float64(days)/365)
	return math.Max(sameYearMin, math.Min(sameYearMax, v))
}

// Scorer computes weighted similarity between two persons. It only reads the
// snapshot, so it is safe to call concurrently on a snapshot nobody mutates.
type Scorer struct {
	weights Weights
}

func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// profile is the feature view of one person.
type profile struct {
	tokens  []string
	births  []claimgraph.Date
	deaths  []claimgraph.Date
	places  []string
	related map[id.PersonID]struct{}
}

func buildProfile(s *claimgraph.Snapshot, pid id.PersonID, exclude Pair) profile {
	p := profile{
		tokens:  personTokens(s, pid),
		related: make(map[id.PersonID]struct{}),
	}
	places := make(map[string]struct{})
	for _, c := range s.ClaimsFor(pid) {
		switch c.Predicate {
		case claimgraph.PredicateBornOn:
			if d, ok := c.Date(); ok {
				p.births = append(p.births, d)
			}
		case claimgraph.PredicateDiedOn:
			if d, ok := c.Date(); ok {
				p.deaths = append(p.deaths, d)
			}
		}
		if key, ok := c.PlaceKey(); ok {
			places[key] = struct{}{}
		}
		if isFamilyEdge(c.Predicate) {
			if obj, ok := c.Object(); ok && !exclude.Has(obj) {
				p.related[obj] = struct{}{}
			}
		}
	}
	for _, c := range s.ClaimsReferencing(pid) {
		if isFamilyEdge(c.Predicate) && !exclude.Has(c.SubjectID) {
			p.related[c.SubjectID] = struct{}{}
		}
	}
	p.places = make([]string, 0, len(places))
	for k := range places {
		p.places = append(p.places, k)
	}
	sort.Strings(p.places)
	return p
}

func isFamilyEdge(p claimgraph.Predicate) bool {
	switch p {
	case claimgraph.PredicateParentOf, claimgraph.PredicateChildOf,
		claimgraph.PredicateSpouseOf, claimgraph.PredicateSiblingOf:
		return true
	}
	return false
}

// Score computes the breakdown for a pair. The final score is rounded to nine
// decimal places so threshold comparisons do not depend on summation noise.
func (sc *Scorer) Score(pair Pair, s *claimgraph.Snapshot) Breakdown {
	a := buildProfile(s, pair.A, pair)
	b := buildProfile(s, pair.B, pair)

	f := Features{
		Name:       jaccard(a.tokens, b.tokens, 0),
		Date:       dateScore(a, b),
		Place:      placeScore(a.places, b.places),
		Relational: relationalScore(a.related, b.related),
	}
	score := sc.weights.Name*f.Name +
		sc.weights.Date*f.Date +
		sc.weights.Place*f.Place +
		sc.weights.Relational*f.Relational
	return Breakdown{Pair: pair, Features: f, Score: round9(score)}
}

// Preview scores two persons without touching the snapshot.
func (sc *Scorer) Preview(s *claimgraph.Snapshot, x, y id.PersonID) Breakdown {
	return sc.Score(NewPair(x, y), s)
}

func round9(v float64) float64 {
	return math.Round(v*1e9) / 1e9
}

// jaccard over two sorted, deduplicated slices.
func jaccard(a, b []string, empty float64) float64 {
	if len(a) == 0 && len(b) == 0 {
		return empty
	}
	shared := 0
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			shared++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}

func placeScore(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return neutralScore
	}
	return jaccard(a, b, neutralScore)
}

func relationalScore(a, b map[id.PersonID]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	shared := 0
	for pid := range a {
		if _, ok := b[pid]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

// dateScore averages the comparison of every birth/birth and death/death
// combination, in claim order. No comparable dates gives the neutral score.
func dateScore(a, b profile) float64 {
	var sum float64
	n := 0
	for _, set := range [][2][]claimgraph.Date{{a.births, b.births}, {a.deaths, b.deaths}} {
		for _, x := range set[0] {
			for _, y := range set[1] {
				sum += compareDates(x, y)
				n++
			}
		}
	}
	if n == 0 {
		return neutralScore
	}
	return sum / float64(n)
}

func compareDates(x, y claimgraph.Date) float64 {
	if x.Year() != y.Year() {
		return 0
	}
	if x.Precision == claimgraph.PrecisionDay && y.Precision == claimgraph.PrecisionDay && x.Time.Equal(y.Time) {
		return 1
	}
	if x.Precision == claimgraph.PrecisionYear || y.Precision == claimgraph.PrecisionYear {
		return sameYearMin
	}
	return SameYearScore(claimgraph.DayDistance(x.Time, y.Time))
}
