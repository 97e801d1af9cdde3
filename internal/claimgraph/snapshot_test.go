package claimgraph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineageforge/internal/claimgraph"
	"lineageforge/internal/claimgraph/graphtest"
	id "lineageforge/pkg/domain"
	dErrors "lineageforge/pkg/domain-errors"
)

func validClaim() claimgraph.Claim {
	v := "John Smith"
	return claimgraph.Claim{
		ID:              graphtest.ClaimID(1),
		SubjectID:       graphtest.PersonID(1),
		Predicate:       claimgraph.PredicateHasName,
		ObjectValue:     &v,
		SourceID:        graphtest.SourceID,
		Confidence:      0.9,
		ConfidenceLevel: claimgraph.ConfidenceHigh,
	}
}

func TestNewSnapshot_RejectsMalformedClaims(t *testing.T) {
	other := graphtest.PersonID(2)
	value := "x"

	tests := []struct {
		name   string
		mutate func(c *claimgraph.Claim)
		want   string
	}{
		{"missing source", func(c *claimgraph.Claim) { c.SourceID = id.SourceID{} }, "source_id is required"},
		{"missing subject", func(c *claimgraph.Claim) { c.SubjectID = id.PersonID{} }, "subject_id is required"},
		{"neither object field", func(c *claimgraph.Claim) { c.ObjectValue = nil }, "one of object_id or object_value"},
		{"both object fields", func(c *claimgraph.Claim) { c.ObjectID = &other }, "mutually exclusive"},
		{"unknown predicate", func(c *claimgraph.Claim) { c.Predicate = "likes" }, "unknown predicate"},
		{"relational with literal", func(c *claimgraph.Claim) {
			c.Predicate = claimgraph.PredicateParentOf
			c.ObjectValue = &value
		}, "requires object_id"},
		{"attribute with person", func(c *claimgraph.Claim) {
			c.ObjectValue = nil
			c.ObjectID = &other
		}, "requires object_value"},
		{"confidence above one", func(c *claimgraph.Claim) { c.Confidence = 1.5 }, "outside [0,1]"},
		{"unknown level", func(c *claimgraph.Claim) { c.ConfidenceLevel = "certain" }, "unknown confidence_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validClaim()
			tt.mutate(&c)
			_, err := claimgraph.NewSnapshot(
				[]claimgraph.Person{{ID: graphtest.PersonID(1), IsActive: true}},
				[]claimgraph.Claim{c},
			)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewSnapshot_RejectsDuplicates(t *testing.T) {
	p := claimgraph.Person{ID: graphtest.PersonID(1), IsActive: true}

	_, err := claimgraph.NewSnapshot([]claimgraph.Person{p, p}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate person")

	_, err = claimgraph.NewSnapshot([]claimgraph.Person{p}, []claimgraph.Claim{validClaim(), validClaim()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate claim")
}

func TestSnapshot_DeterministicOrdering(t *testing.T) {
	b := graphtest.New()
	p3 := b.Person(3)
	p1 := b.Person(1)
	p2 := b.Person(2)
	b.Name(p1, "Ann Lee")
	b.Born(p1, "1900-01-01")
	b.Name(p2, "Bo Lee")

	s := b.Build(t)

	active := s.ActivePersons()
	require.Len(t, active, 3)
	assert.Equal(t, []id.PersonID{p1, p2, p3}, []id.PersonID{active[0].ID, active[1].ID, active[2].ID})

	claims := s.ClaimsFor(p1)
	require.Len(t, claims, 2)
	assert.True(t, claims[0].ID.Less(claims[1].ID))

	births := s.ClaimsWithPredicate(p1, claimgraph.PredicateBornOn)
	require.Len(t, births, 1)
	assert.Equal(t, "1900-01-01", births[0].Value())
}

func TestSnapshot_VerifyReferences(t *testing.T) {
	b := graphtest.New()
	p1 := b.Person(1)
	b.ParentOf(p1, graphtest.PersonID(99))
	s := b.Build(t)

	err := s.VerifyReferences()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInconsistent))
	assert.Contains(t, err.Error(), graphtest.PersonID(99).String())
}

func TestSnapshot_CloneIsIndependent(t *testing.T) {
	b := graphtest.New()
	p1 := b.Person(1)
	p2 := b.Person(2)
	b.Name(p2, "Ann Lee")
	s := b.Build(t)

	clone := s.Clone()
	_, err := s.TransferOwnership(p2, p1, claimgraph.RecorderFunc(func(claimgraph.Transfer) error { return nil }))
	require.NoError(t, err)

	assert.True(t, clone.IsActive(p2))
	assert.Len(t, clone.ClaimsFor(p2), 1)
	assert.Empty(t, clone.ClaimsFor(p1))
}

func TestLevelForScore(t *testing.T) {
	assert.Equal(t, claimgraph.ConfidenceDefinite, claimgraph.LevelForScore(1.0))
	assert.Equal(t, claimgraph.ConfidenceHigh, claimgraph.LevelForScore(0.8))
	assert.Equal(t, claimgraph.ConfidenceModerate, claimgraph.LevelForScore(0.5))
	assert.Equal(t, claimgraph.ConfidenceLow, claimgraph.LevelForScore(0.2))
	assert.Equal(t, claimgraph.ConfidenceSpeculative, claimgraph.LevelForScore(0.19))
	assert.InDelta(t, 0.65, claimgraph.ConfidenceModerate.Score(), 1e-9)
}
