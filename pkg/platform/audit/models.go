package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "lineageforge/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events that change or certify the genealogical
	// record: merges and run completions. These require guaranteed persistence.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for operational visibility only.
	CategoryOperations EventCategory = "operations"
)

// Event is the storage shape of an audit record. Keep it transport-agnostic so
// stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Category  EventCategory
	Timestamp time.Time
	RunID     id.RunID
	Subject   string
	Action    string
	Decision  string
	Reason    string
	RequestID string
	ActorID   string
	Details   map[string]string
}

type AuditEvent string

const (
	// Resolution events
	EventMergeExecuted       AuditEvent = "merge_executed"
	EventResolutionCompleted AuditEvent = "resolution_completed"
	EventResolutionFailed    AuditEvent = "resolution_failed"

	// Validation events
	EventValidationCompleted AuditEvent = "validation_completed"
	EventValidationFailed    AuditEvent = "validation_failed"

	// Run bookkeeping
	EventRunStarted    AuditEvent = "run_started"
	EventLockContended AuditEvent = "lock_contended"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventMergeExecuted:       CategoryCompliance,
	EventResolutionCompleted: CategoryCompliance,
	EventResolutionFailed:    CategoryCompliance,
	EventValidationCompleted: CategoryCompliance,
	EventValidationFailed:    CategoryCompliance,

	EventRunStarted:    CategoryOperations,
	EventLockContended: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// ComplianceEvent captures record-changing actions requiring guaranteed
// persistence. Use with the compliance publisher for fail-closed semantics.
type ComplianceEvent struct {
	Timestamp time.Time         // When the event occurred (set automatically if zero)
	RunID     id.RunID          // The run that performed the action (required)
	Subject   string            // The person or run acted upon
	Action    string            // The action taken (e.g., "merge_executed")
	Decision  string            // Outcome of the action (e.g., "merged", "completed")
	Reason    string            // Human-readable rationale
	RequestID string            // Correlation ID for request tracing
	ActorID   string            // Who triggered the run, when known
	Details   map[string]string // Structured context: scores, counts
}

// Category returns CategoryCompliance (always).
func (e ComplianceEvent) Category() EventCategory { return CategoryCompliance }

// ToEvent converts to the storage Event.
func (e ComplianceEvent) ToEvent() Event {
	return Event{
		Category:  CategoryCompliance,
		Timestamp: e.Timestamp,
		RunID:     e.RunID,
		Subject:   e.Subject,
		Action:    e.Action,
		Decision:  e.Decision,
		Reason:    e.Reason,
		RequestID: e.RequestID,
		ActorID:   e.ActorID,
		Details:   e.Details,
	}
}

// OpsEvent is an operational record. Losing one never fails the caller.
type OpsEvent struct {
	Timestamp time.Time
	RunID     id.RunID
	Subject   string
	Action    string
	RequestID string
	ActorID   string
	Details   map[string]string
}

func (e OpsEvent) ToEvent() Event {
	return Event{
		Category:  CategoryOperations,
		Timestamp: e.Timestamp,
		RunID:     e.RunID,
		Subject:   e.Subject,
		Action:    e.Action,
		RequestID: e.RequestID,
		ActorID:   e.ActorID,
		Details:   e.Details,
	}
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// OutboxEntry is a persisted event awaiting relay to the message bus.
type OutboxEntry struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}
