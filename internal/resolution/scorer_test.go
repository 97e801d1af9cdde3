package resolution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lineageforge/internal/claimgraph"
	"lineageforge/internal/claimgraph/graphtest"
)

func TestSameYearScore(t *testing.T) {
	tests := []struct {
		name string
		days int
		want float64
	}{
		{"same day", 0, 0.9},
		{"half a year", 182, 0.5 + 0.4*(1-182.0/365)},
		{"a full year apart is floored", 365, 0.5},
		{"beyond a year is floored", 400, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SameYearScore(tt.days), 1e-12)
		})
	}
}

func TestCompareDates(t *testing.T) {
	parse := func(s string) claimgraph.Date {
		d, ok := claimgraph.ParseDate(s)
		if !ok {
			t.Fatalf("unparseable %q", s)
		}
		return d
	}
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"exact day match", "1900-03-04", "1900-03-04", 1},
		{"same year days apart", "1900-01-01", "1900-01-31", SameYearScore(30)},
		{"year precision only", "1900", "1900-06-01", 0.5},
		{"same month coarse", "MAR 1900", "MAR 1900", 0.9},
		{"different year", "1900-12-31", "1901-01-01", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, compareDates(parse(tt.a), parse(tt.b)), 1e-12)
		})
	}
}

func TestScorer_Features(t *testing.T) {
	t.Run("missing dates and places are neutral, no relatives scores zero", func(t *testing.T) {
		b := graphtest.New()
		p1, p2 := b.Person(1), b.Person(2)
		b.Name(p1, "John Smith")
		b.Name(p2, "John Smith")

		bd := NewScorer(DefaultWeights).Score(NewPair(p1, p2), b.Build(t))
		assert.Equal(t, 1.0, bd.Features.Name)
		assert.Equal(t, 0.5, bd.Features.Date)
		assert.Equal(t, 0.5, bd.Features.Place)
		assert.Equal(t, 0.0, bd.Features.Relational)
		assert.InDelta(t, 0.65, bd.Score, 1e-9)
	})

	t.Run("name jaccard over normalized tokens", func(t *testing.T) {
		b := graphtest.New()
		p1, p2 := b.Person(1), b.Person(2)
		b.Name(p1, "John  Q. Smith")
		b.Name(p2, "john smith")

		bd := NewScorer(DefaultWeights).Score(NewPair(p1, p2), b.Build(t))
		assert.InDelta(t, 2.0/3.0, bd.Features.Name, 1e-12)
	})

	t.Run("places compare by normalized name", func(t *testing.T) {
		b := graphtest.New()
		p1, p2 := b.Person(1), b.Person(2)
		b.Attr(p1, claimgraph.PredicateBornAt, "Boston, MA")
		b.Attr(p1, claimgraph.PredicateResidedAt, "Salem")
		b.Attr(p2, claimgraph.PredicateBornAt, "boston ma")

		bd := NewScorer(DefaultWeights).Score(NewPair(p1, p2), b.Build(t))
		assert.InDelta(t, 0.5, bd.Features.Place, 1e-12)
	})

	t.Run("relatives count from both directions and exclude the pair", func(t *testing.T) {
		b := graphtest.New()
		p1, p2, child, parent := b.Person(1), b.Person(2), b.Person(3), b.Person(4)
		b.ParentOf(p1, child)
		b.Rel(child, claimgraph.PredicateChildOf, p2)
		b.ParentOf(parent, p1)
		b.Rel(p1, claimgraph.PredicateSpouseOf, p2)

		bd := NewScorer(DefaultWeights).Score(NewPair(p1, p2), b.Build(t))
		// p1: {child, parent}, p2: {child}
		assert.InDelta(t, 0.5, bd.Features.Relational, 1e-12)
	})
}

func TestScorer_WeightedSum(t *testing.T) {
	b := graphtest.New()
	p1, p2, child := b.Person(1), b.Person(2), b.Person(3)
	b.Name(p1, "John Smith")
	b.Born(p1, "1900-01-01")
	b.ParentOf(p1, child)
	b.Name(p2, "John Smith")
	b.ParentOf(p2, child)
	s := b.Build(t)

	bd := NewScorer(DefaultWeights).Preview(s, p2, p1)
	assert.Equal(t, NewPair(p1, p2), bd.Pair)
	assert.Equal(t, Features{Name: 1, Date: 0.5, Place: 0.5, Relational: 1}, bd.Features)
	assert.Equal(t, 0.75, bd.Score)
}
