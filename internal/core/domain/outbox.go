package domain

import (
	"encoding/json"
	"time"
)

// AuditEnvelope is the wire form of an audit record handed to outbound
// publishers. AuditID makes delivery dedupable on the receiving side.
type AuditEnvelope struct {
	AuditID     string            `json:"audit_id"`
	TenantID    string            `json:"tenant_id,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
	Event       string            `json:"event"`
	SubjectType string            `json:"subject_type"`
	SubjectID   string            `json:"subject_id"`
	Changes     map[string]Change `json:"changes,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Envelope builds the outbound form of an audit record.
func (r AuditRecord) Envelope() AuditEnvelope {
	return AuditEnvelope{
		AuditID:     r.AuditID,
		TenantID:    r.TenantID,
		UserID:      r.UserID,
		Event:       r.Event,
		SubjectType: r.SubjectType,
		SubjectID:   r.SubjectID,
		Changes:     r.Changes(),
		RequestID:   r.RequestID,
		OccurredAt:  r.CreatedAt,
	}
}

// OutboxEvent is one pending delivery of an audit envelope. Rows move from
// pending to dispatched or dead; delivery is at-least-once.
type OutboxEvent struct {
	ID            int64
	AuditID       string
	TenantID      string
	Topic         string
	PayloadJSON   json.RawMessage
	Status        string
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}
