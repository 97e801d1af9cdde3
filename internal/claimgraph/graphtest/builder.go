// Package graphtest builds claim graph snapshots for tests with readable,
// deterministic identifiers.
package graphtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"lineageforge/internal/claimgraph"
	id "lineageforge/pkg/domain"
)

// PersonID returns a fixed person id whose ordering follows n.
func PersonID(n int) id.PersonID {
	return id.PersonID(uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n)))
}

// ClaimID returns a fixed claim id whose ordering follows n.
func ClaimID(n int) id.ClaimID {
	return id.ClaimID(uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0001-%012d", n)))
}

// SourceID is the source every builder claim is attributed to.
var SourceID = id.SourceID(uuid.MustParse("00000000-0000-0000-0002-000000000001"))

// Builder accumulates persons and claims.
type Builder struct {
	persons []claimgraph.Person
	claims  []claimgraph.Claim
	next    int
}

func New() *Builder { return &Builder{} }

// Person adds an active person numbered n.
func (b *Builder) Person(n int) id.PersonID {
	pid := PersonID(n)
	b.persons = append(b.persons, claimgraph.Person{ID: pid, IsActive: true})
	return pid
}

// Attr adds a literal claim and returns its id.
func (b *Builder) Attr(subject id.PersonID, pred claimgraph.Predicate, value string, opts ...func(*claimgraph.Claim)) id.ClaimID {
	v := value
	return b.add(claimgraph.Claim{SubjectID: subject, Predicate: pred, ObjectValue: &v}, opts)
}

// Rel adds a relational claim and returns its id.
func (b *Builder) Rel(subject id.PersonID, pred claimgraph.Predicate, object id.PersonID, opts ...func(*claimgraph.Claim)) id.ClaimID {
	o := object
	return b.add(claimgraph.Claim{SubjectID: subject, Predicate: pred, ObjectID: &o}, opts)
}

func (b *Builder) add(c claimgraph.Claim, opts []func(*claimgraph.Claim)) id.ClaimID {
	b.next++
	c.ID = ClaimID(b.next)
	c.SourceID = SourceID
	c.Confidence = 0.9
	c.ConfidenceLevel = claimgraph.ConfidenceHigh
	for _, opt := range opts {
		opt(&c)
	}
	b.claims = append(b.claims, c)
	return c.ID
}

// Name is shorthand for a has_name claim.
func (b *Builder) Name(subject id.PersonID, name string) id.ClaimID {
	return b.Attr(subject, claimgraph.PredicateHasName, name)
}

// Born is shorthand for a born_on claim.
func (b *Builder) Born(subject id.PersonID, date string) id.ClaimID {
	return b.Attr(subject, claimgraph.PredicateBornOn, date)
}

// Died is shorthand for a died_on claim.
func (b *Builder) Died(subject id.PersonID, date string) id.ClaimID {
	return b.Attr(subject, claimgraph.PredicateDiedOn, date)
}

// ParentOf is shorthand for a parent_of claim.
func (b *Builder) ParentOf(parent, child id.PersonID) id.ClaimID {
	return b.Rel(parent, claimgraph.PredicateParentOf, child)
}

// WithConfidence overrides a claim's confidence and level.
func WithConfidence(score float64) func(*claimgraph.Claim) {
	return func(c *claimgraph.Claim) {
		c.Confidence = score
		c.ConfidenceLevel = claimgraph.LevelForScore(score)
	}
}

// WithPlace sets a free-text place name on the claim.
func WithPlace(name string) func(*claimgraph.Claim) {
	return func(c *claimgraph.Claim) { c.PlaceName = name }
}

// WithTime sets TimeStart from an ISO date.
func WithTime(date string) func(*claimgraph.Claim) {
	return func(c *claimgraph.Claim) {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			panic(err)
		}
		c.TimeStart = &t
	}
}

// Persons returns the accumulated person records.
func (b *Builder) Persons() []claimgraph.Person {
	return append([]claimgraph.Person(nil), b.persons...)
}

// Claims returns the accumulated claim records.
func (b *Builder) Claims() []claimgraph.Claim {
	return append([]claimgraph.Claim(nil), b.claims...)
}

// Build indexes the accumulated records and fails the test on error.
func (b *Builder) Build(t testing.TB) *claimgraph.Snapshot {
	t.Helper()
	s, err := claimgraph.NewSnapshot(b.Persons(), b.Claims())
	require.NoError(t, err)
	return s
}
