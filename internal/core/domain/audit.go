package domain

import (
	"errors"
	"time"
)

var (
	// ErrAuditImmutable is returned by the audit store when anything tries to
	// update or single-delete an existing record. Only the retention purge may
	// remove audit rows, in bulk, by age.
	ErrAuditImmutable = errors.New("audit records are immutable")

	ErrInvalidAuditEvent = errors.New("invalid audit event")
)

// Well-known audit event kinds. The event field is free-form; these cover the
// entity lifecycle hooks.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// redactedKeys is the fixed deny-list stripped from every snapshot before it
// is persisted, on top of whatever the subject type declares as hidden.
var redactedKeys = []string{"password", "remember_token", "api_token"}

// Snapshot is the attribute set of an entity at a point in time.
type Snapshot map[string]any

// Redact returns a copy of the snapshot without the deny-listed keys and
// without the given hidden keys. Keys are removed, not masked, which makes
// redaction idempotent. A nil snapshot stays nil.
func (s Snapshot) Redact(hidden []string) Snapshot {
	if s == nil {
		return nil
	}
	drop := make(map[string]struct{}, len(redactedKeys)+len(hidden))
	for _, k := range redactedKeys {
		drop[k] = struct{}{}
	}
	for _, k := range hidden {
		drop[k] = struct{}{}
	}

	out := make(Snapshot, len(s))
	for k, v := range s {
		if _, skip := drop[k]; skip {
			continue
		}
		out[k] = v
	}
	return out
}

// Change is one field-level difference between two snapshots.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// AuditRecord is one immutable entry in the audit trail: what changed, who
// changed it, and under which tenant and request. UserID and TenantID are
// empty for system actions and tenant-less requests respectively.
type AuditRecord struct {
	ID          int64
	AuditID     string // external UUID for cross-system correlation
	UserID      string
	TenantID    string
	Event       string
	SubjectType string
	SubjectID   string
	OldValues   Snapshot
	NewValues   Snapshot
	URL         string
	IPAddress   string
	UserAgent   string
	RequestID   string
	Tags        []string
	Metadata    map[string]any
	CreatedAt   time.Time
}

func (r AuditRecord) Validate() error {
	if r.Event == "" || r.SubjectType == "" || r.SubjectID == "" {
		return ErrInvalidAuditEvent
	}
	return nil
}

// Changes computes the field-level diff between the prior and new snapshots.
// Only keys whose value differs appear; a key present on one side only is
// reported with a nil counterpart. Records without both snapshots have no
// diff.
func (r AuditRecord) Changes() map[string]Change {
	if r.OldValues == nil || r.NewValues == nil {
		return nil
	}

	changes := make(map[string]Change)
	for key, newVal := range r.NewValues {
		oldVal, ok := r.OldValues[key]
		if !ok {
			changes[key] = Change{Old: nil, New: newVal}
			continue
		}
		if !jsonEqual(oldVal, newVal) {
			changes[key] = Change{Old: oldVal, New: newVal}
		}
	}
	for key, oldVal := range r.OldValues {
		if _, ok := r.NewValues[key]; !ok {
			changes[key] = Change{Old: oldVal, New: nil}
		}
	}
	return changes
}

// jsonEqual compares two decoded-JSON values structurally.
func jsonEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bval, ok := bv[k]
			if !ok || !jsonEqual(v, bval) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !jsonEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// AuditFilter narrows an audit trail listing. Zero values mean "any".
// AfterID enables keyset pagination over the id sequence, newest first.
type AuditFilter struct {
	UserID      string
	TenantID    string
	Event       string
	SubjectType string
	SubjectID   string
	Tag         string
	From        time.Time
	To          time.Time
	AfterID     int64
	Limit       int
}

// AuditStats aggregates trail activity over a window.
type AuditStats struct {
	TotalEvents   int64            `json:"total_events"`
	ByEvent       map[string]int64 `json:"events_by_type"`
	BySubjectType map[string]int64 `json:"events_by_subject_type"`
	TopUsers      []UserActivity   `json:"top_users"`
}

// UserActivity is one row of the top-users aggregate.
type UserActivity struct {
	UserID string `json:"user_id"`
	Count  int64  `json:"count"`
}
