package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "lineageforge/pkg/domain"
)

// payload is the JSON structure stored in the outbox and published to Kafka.
type payload struct {
	ID        string            `json:"id"`
	Category  string            `json:"category"`
	Timestamp string            `json:"timestamp"`
	RunID     string            `json:"run_id"`
	Subject   string            `json:"subject"`
	Action    string            `json:"action"`
	Decision  string            `json:"decision,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	ActorID   string            `json:"actor_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// MarshalPayload encodes an event for the outbox. The category is always
// derived from the action.
func MarshalPayload(event Event) ([]byte, error) {
	p := payload{
		ID:        event.ID.String(),
		Category:  string(AuditEvent(event.Action).Category()),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		RunID:     event.RunID.String(),
		Subject:   event.Subject,
		Action:    event.Action,
		Decision:  event.Decision,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		ActorID:   event.ActorID,
		Details:   event.Details,
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return raw, nil
}

// UnmarshalPayload is the inverse of MarshalPayload. Unparseable ids and
// timestamps are left zero.
func UnmarshalPayload(raw []byte) (Event, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Event{}, fmt.Errorf("unmarshal audit payload: %w", err)
	}
	event := Event{
		Category:  EventCategory(p.Category),
		Subject:   p.Subject,
		Action:    p.Action,
		Decision:  p.Decision,
		Reason:    p.Reason,
		RequestID: p.RequestID,
		ActorID:   p.ActorID,
		Details:   p.Details,
	}
	if u, err := uuid.Parse(p.ID); err == nil {
		event.ID = u
	}
	if ts, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
		event.Timestamp = ts
	}
	if rid, err := id.ParseRunID(p.RunID); err == nil {
		event.RunID = rid
	}
	return event, nil
}
