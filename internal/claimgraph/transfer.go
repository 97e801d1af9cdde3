package claimgraph

import (
	"fmt"

	id "lineageforge/pkg/domain"
	dErrors "lineageforge/pkg/domain-errors"
)

// Transfer describes one ownership move: every claim naming Source as subject
// or object is re-pointed at Target and Source is inactivated.
type Transfer struct {
	Source        id.PersonID
	Target        id.PersonID
	SubjectClaims []id.ClaimID
	ObjectClaims  []id.ClaimID
}

// MergeRecorder accepts the audit record of a transfer before it is applied.
// Returning an error vetoes the transfer.
type MergeRecorder interface {
	RecordMerge(t Transfer) error
}

// RecorderFunc adapts a function to MergeRecorder.
type RecorderFunc func(t Transfer) error

func (f RecorderFunc) RecordMerge(t Transfer) error { return f(t) }

// TransferOwnership moves source's claims to target. The plan is computed
// first, handed to rec, and applied only if rec accepts it, so no ownership
// change ever happens without an audit record and a vetoed or invalid
// transfer leaves the snapshot untouched.
func (s *Snapshot) TransferOwnership(source, target id.PersonID, rec MergeRecorder) (Transfer, error) {
	if rec == nil {
		return Transfer{}, dErrors.New(dErrors.CodeInvalidState, "merge recorder is required")
	}
	if source == target {
		return Transfer{}, dErrors.New(dErrors.CodeInvalidInput, "cannot merge a person into itself")
	}
	src, ok := s.persons[source]
	if !ok {
		return Transfer{}, dErrors.New(dErrors.CodeInconsistent, fmt.Sprintf("merge source %s not in snapshot", source))
	}
	dst, ok := s.persons[target]
	if !ok {
		return Transfer{}, dErrors.New(dErrors.CodeInconsistent, fmt.Sprintf("merge target %s not in snapshot", target))
	}
	if !src.IsActive || !dst.IsActive {
		return Transfer{}, dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("merge %s into %s involves an inactive person", source, target))
	}

	t := Transfer{
		Source:        source,
		Target:        target,
		SubjectClaims: append([]id.ClaimID(nil), s.bySubject[source]...),
		ObjectClaims:  append([]id.ClaimID(nil), s.byObject[source]...),
	}
	if err := rec.RecordMerge(t); err != nil {
		return Transfer{}, fmt.Errorf("merge %s into %s not recorded: %w", source, target, err)
	}

	for _, cid := range t.SubjectClaims {
		s.claims[cid].SubjectID = target
	}
	for _, cid := range t.ObjectClaims {
		tgt := target
		s.claims[cid].ObjectID = &tgt
	}
	if len(t.SubjectClaims) > 0 {
		s.bySubject[target] = append(s.bySubject[target], t.SubjectClaims...)
		sortClaimIDs(s.bySubject[target])
	}
	if len(t.ObjectClaims) > 0 {
		s.byObject[target] = append(s.byObject[target], t.ObjectClaims...)
		sortClaimIDs(s.byObject[target])
	}
	delete(s.bySubject, source)
	delete(s.byObject, source)

	merged := target
	src.IsActive = false
	src.MergedInto = &merged
	return t, nil
}
