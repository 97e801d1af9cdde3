package resolution

import (
	"fmt"
	"time"

	"lineageforge/internal/claimgraph"
	id "lineageforge/pkg/domain"
	dErrors "lineageforge/pkg/domain-errors"
)

const (
	MergeMethodAutomatic = "automatic"
	PerformedBySystem    = "system"
)

// SelectSurvivor picks the target of a merge: the lower person id survives.
func SelectSurvivor(p Pair) (source, target id.PersonID) {
	return p.B, p.A
}

// MergeExecutor applies accepted merges to a snapshot. It is the snapshot's
// MergeRecorder, so each event lands in its log before claims move.
type MergeExecutor struct {
	threshold float64
	runID     id.RunID
	now       func() time.Time
	events    []MergeEvent
}

func NewMergeExecutor(threshold float64, runID id.RunID, now func() time.Time) *MergeExecutor {
	if now == nil {
		now = time.Now
	}
	return &MergeExecutor{threshold: threshold, runID: runID, now: now}
}

// Merge moves source into target. It refuses scores under the threshold and
// breakdowns computed for a different pair.
func (m *MergeExecutor) Merge(s *claimgraph.Snapshot, source, target id.PersonID, bd Breakdown) (MergeEvent, error) {
	if bd.Pair != NewPair(source, target) {
		return MergeEvent{}, dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("breakdown is for %s/%s, not %s/%s", bd.Pair.A, bd.Pair.B, source, target))
	}
	if bd.Score < m.threshold {
		return MergeEvent{}, dErrors.New(dErrors.CodeBelowThreshold,
			fmt.Sprintf("score %.3f is below merge threshold %.2f", bd.Score, m.threshold))
	}

	var event MergeEvent
	rec := claimgraph.RecorderFunc(func(t claimgraph.Transfer) error {
		event = MergeEvent{
			ID:                      id.DeterministicMergeID(m.runID, t.Source, t.Target),
			RunID:                   m.runID,
			SourcePersonID:          t.Source,
			TargetPersonID:          t.Target,
			Score:                   bd.Score,
			Features:                bd.Features,
			Threshold:               m.threshold,
			Timestamp:               m.now().UTC(),
			Rationale:               rationale(bd, m.threshold),
			Method:                  MergeMethodAutomatic,
			PerformedBy:             PerformedBySystem,
			ReassignedSubjectClaims: t.SubjectClaims,
			ReassignedObjectClaims:  t.ObjectClaims,
		}
		m.events = append(m.events, event)
		return nil
	})
	if _, err := s.TransferOwnership(source, target, rec); err != nil {
		return MergeEvent{}, err
	}
	return event, nil
}

// Events returns the merge log in execution order.
func (m *MergeExecutor) Events() []MergeEvent {
	return append([]MergeEvent(nil), m.events...)
}

func rationale(bd Breakdown, threshold float64) string {
	return fmt.Sprintf("automatic merge: score %.3f >= threshold %.2f (name=%.3f date=%.3f place=%.3f relational=%.3f)",
		bd.Score, threshold, bd.Features.Name, bd.Features.Date, bd.Features.Place, bd.Features.Relational)
}
