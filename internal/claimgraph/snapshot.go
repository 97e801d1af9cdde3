// Package claimgraph is the read-oriented view over persons and their claims
// that both engines consume.
//
// Storage is arena style: persons and claims live in maps keyed by id and
// refer to each other only through id-valued fields. Secondary indexes map a
// person to the claims naming it as subject or object; index slices are kept
// sorted by claim id so every traversal is deterministic.
//
// The only mutation is TransferOwnership, which refuses to apply a merge unless
// a MergeRecorder has accepted the audit record first.
package claimgraph

import (
	"fmt"
	"math"
	"sort"

	id "lineageforge/pkg/domain"
	dErrors "lineageforge/pkg/domain-errors"
)

// Snapshot is a frozen-for-reading view of the claim graph handed to a run.
// It is not safe for concurrent mutation; concurrent reads are fine.
type Snapshot struct {
	persons   map[id.PersonID]*Person
	claims    map[id.ClaimID]*Claim
	bySubject map[id.PersonID][]id.ClaimID
	byObject  map[id.PersonID][]id.ClaimID
}

// NewSnapshot validates and indexes the records supplied by storage.
// Malformed claims are rejected with CodeInvalidInput, never coerced.
func NewSnapshot(persons []Person, claims []Claim) (*Snapshot, error) {
	s := &Snapshot{
		persons:   make(map[id.PersonID]*Person, len(persons)),
		claims:    make(map[id.ClaimID]*Claim, len(claims)),
		bySubject: make(map[id.PersonID][]id.ClaimID),
		byObject:  make(map[id.PersonID][]id.ClaimID),
	}

	for i := range persons {
		p := persons[i]
		if p.ID.IsNil() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "person_id is required")
		}
		if _, dup := s.persons[p.ID]; dup {
			return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("duplicate person %s", p.ID))
		}
		if p.IsActive && p.MergedInto != nil {
			return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("active person %s has merged_into set", p.ID))
		}
		s.persons[p.ID] = &p
	}

	for i := range claims {
		c := claims[i]
		if err := validateClaim(c); err != nil {
			return nil, err
		}
		if _, dup := s.claims[c.ID]; dup {
			return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("duplicate claim %s", c.ID))
		}
		s.claims[c.ID] = &c
		s.bySubject[c.SubjectID] = append(s.bySubject[c.SubjectID], c.ID)
		if obj, ok := c.Object(); ok {
			s.byObject[obj] = append(s.byObject[obj], c.ID)
		}
	}

	for _, ids := range s.bySubject {
		sortClaimIDs(ids)
	}
	for _, ids := range s.byObject {
		sortClaimIDs(ids)
	}
	return s, nil
}

func validateClaim(c Claim) error {
	invalid := func(format string, args ...any) error {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("claim %s: ", c.ID)+fmt.Sprintf(format, args...))
	}
	switch {
	case c.ID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "claim_id is required")
	case c.SubjectID.IsNil():
		return invalid("subject_id is required")
	case c.SourceID.IsNil():
		return invalid("source_id is required")
	case !c.Predicate.IsValid():
		return invalid("unknown predicate %q", c.Predicate)
	case c.ObjectID == nil && c.ObjectValue == nil:
		return invalid("one of object_id or object_value is required")
	case c.ObjectID != nil && c.ObjectValue != nil:
		return invalid("object_id and object_value are mutually exclusive")
	case c.Predicate.IsRelational() && c.ObjectID == nil:
		return invalid("relational predicate %s requires object_id", c.Predicate)
	case !c.Predicate.IsRelational() && c.ObjectID != nil:
		return invalid("attribute predicate %s requires object_value", c.Predicate)
	case c.ObjectID != nil && c.ObjectID.IsNil():
		return invalid("object_id cannot be nil")
	case math.IsNaN(c.Confidence) || c.Confidence < 0 || c.Confidence > 1:
		return invalid("confidence %v outside [0,1]", c.Confidence)
	case !c.ConfidenceLevel.IsValid():
		return invalid("unknown confidence_level %q", c.ConfidenceLevel)
	}
	return nil
}

func sortClaimIDs(ids []id.ClaimID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}

// Person returns a copy of the person record.
func (s *Snapshot) Person(pid id.PersonID) (Person, bool) {
	p, ok := s.persons[pid]
	if !ok {
		return Person{}, false
	}
	return *p, true
}

// IsActive reports whether pid exists and has not been merged away.
func (s *Snapshot) IsActive(pid id.PersonID) bool {
	p, ok := s.persons[pid]
	return ok && p.IsActive
}

// Persons returns every person, active or not, sorted by id.
func (s *Snapshot) Persons() []Person {
	out := make([]Person, 0, len(s.persons))
	for _, p := range s.persons {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out
}

// ActivePersons returns the active persons sorted by id.
func (s *Snapshot) ActivePersons() []Person {
	out := make([]Person, 0, len(s.persons))
	for _, p := range s.persons {
		if p.IsActive {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out
}

// Claim returns a copy of a single claim.
func (s *Snapshot) Claim(cid id.ClaimID) (Claim, bool) {
	c, ok := s.claims[cid]
	if !ok {
		return Claim{}, false
	}
	return *c, true
}

// Claims returns every claim sorted by id.
func (s *Snapshot) Claims() []Claim {
	ids := make([]id.ClaimID, 0, len(s.claims))
	for cid := range s.claims {
		ids = append(ids, cid)
	}
	sortClaimIDs(ids)
	return s.collect(ids)
}

// ClaimsFor returns the claims whose subject is pid, sorted by claim id.
func (s *Snapshot) ClaimsFor(pid id.PersonID) []Claim {
	return s.collect(s.bySubject[pid])
}

// ClaimsReferencing returns the claims whose object is pid, sorted by claim id.
func (s *Snapshot) ClaimsReferencing(pid id.PersonID) []Claim {
	return s.collect(s.byObject[pid])
}

// ClaimsWithPredicate returns pid's subject claims restricted to preds.
func (s *Snapshot) ClaimsWithPredicate(pid id.PersonID, preds ...Predicate) []Claim {
	var out []Claim
	for _, cid := range s.bySubject[pid] {
		c := s.claims[cid]
		for _, p := range preds {
			if c.Predicate == p {
				out = append(out, *c)
				break
			}
		}
	}
	return out
}

func (s *Snapshot) collect(ids []id.ClaimID) []Claim {
	out := make([]Claim, 0, len(ids))
	for _, cid := range ids {
		out = append(out, *s.claims[cid])
	}
	return out
}

// Len returns the number of persons and claims in the snapshot.
func (s *Snapshot) Len() (persons, claims int) {
	return len(s.persons), len(s.claims)
}

// VerifyReferences checks that every claim's subject and object exist in the
// snapshot. A failure means storage handed over an inconsistent view.
func (s *Snapshot) VerifyReferences() error {
	for _, c := range s.Claims() {
		if _, ok := s.persons[c.SubjectID]; !ok {
			return dErrors.New(dErrors.CodeInconsistent,
				fmt.Sprintf("claim %s references unknown subject %s", c.ID, c.SubjectID))
		}
		if obj, ok := c.Object(); ok {
			if _, ok := s.persons[obj]; !ok {
				return dErrors.New(dErrors.CodeInconsistent,
					fmt.Sprintf("claim %s references unknown object %s", c.ID, obj))
			}
		}
	}
	return nil
}

// Clone returns a deep copy that shares no mutable state with s.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		persons:   make(map[id.PersonID]*Person, len(s.persons)),
		claims:    make(map[id.ClaimID]*Claim, len(s.claims)),
		bySubject: make(map[id.PersonID][]id.ClaimID, len(s.bySubject)),
		byObject:  make(map[id.PersonID][]id.ClaimID, len(s.byObject)),
	}
	for k, p := range s.persons {
		cp := *p
		if p.MergedInto != nil {
			m := *p.MergedInto
			cp.MergedInto = &m
		}
		out.persons[k] = &cp
	}
	for k, c := range s.claims {
		cp := *c
		if c.ObjectID != nil {
			o := *c.ObjectID
			cp.ObjectID = &o
		}
		out.claims[k] = &cp
	}
	for k, ids := range s.bySubject {
		out.bySubject[k] = append([]id.ClaimID(nil), ids...)
	}
	for k, ids := range s.byObject {
		out.byObject[k] = append([]id.ClaimID(nil), ids...)
	}
	return out
}
