package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
	"github.com/atvirokodosprendimai/erpcore/internal/core/ports"
	"github.com/atvirokodosprendimai/erpcore/internal/core/reqctx"
)

// ErrForbidden is returned when a caller lacks the privilege an operation
// demands (currently only the retention purge).
var ErrForbidden = errors.New("forbidden")

// minPurgeRetentionDays is the floor for the retention horizon; a purge with
// a shorter horizon is rejected outright.
const minPurgeRetentionDays = 30

// DefaultRetentionDays is the purge horizon applied when the caller supplies
// none.
const DefaultRetentionDays = 365

const defaultStatsWindowDays = 30

// AuditEntry is one lifecycle event handed to the recorder by a mutation
// site: creates carry After only, deletes Before only, updates both.
type AuditEntry struct {
	Event       string
	SubjectType string
	SubjectID   string
	Before      domain.Snapshot
	After       domain.Snapshot
	Hidden      []string
	Tags        []string
	Metadata    map[string]any
}

// AuditRecorder composes and persists immutable audit records, and serves the
// read side of the trail. Composition stamps the ambient tenant, actor, and
// request metadata from the context; persistence is a single append-only
// insert with no retry; a failure propagates to the caller, whose
// transaction boundary decides the outcome.
type AuditRecorder struct {
	repo ports.AuditLogRepository
	now  func() time.Time
}

func NewAuditRecorder(repo ports.AuditLogRepository) *AuditRecorder {
	return &AuditRecorder{repo: repo, now: time.Now}
}

// Compose builds the audit record for an entry: snapshots redacted, ambient
// context stamped, external UUID minted. It does not persist.
func (a *AuditRecorder) Compose(ctx context.Context, e AuditEntry) (domain.AuditRecord, error) {
	rec := domain.AuditRecord{
		AuditID:     uuid.NewString(),
		UserID:      reqctx.Actor(ctx),
		TenantID:    reqctx.TenantID(ctx),
		Event:       e.Event,
		SubjectType: e.SubjectType,
		SubjectID:   e.SubjectID,
		OldValues:   e.Before.Redact(e.Hidden),
		NewValues:   e.After.Redact(e.Hidden),
		Tags:        e.Tags,
		Metadata:    e.Metadata,
		CreatedAt:   a.now().UTC(),
	}

	meta := reqctx.Meta(ctx)
	rec.URL = meta.URL
	rec.IPAddress = meta.IPAddress
	rec.UserAgent = meta.UserAgent
	rec.RequestID = meta.RequestID

	if err := rec.Validate(); err != nil {
		return domain.AuditRecord{}, err
	}
	return rec, nil
}

// Record composes and synchronously persists one audit record. This is the
// path for events with no surrounding storage transaction (manual events,
// tenant lifecycle changes); record mutations instead pass the composed
// record into the store so it commits atomically with the mutation.
func (a *AuditRecorder) Record(ctx context.Context, e AuditEntry) (domain.AuditRecord, error) {
	rec, err := a.Compose(ctx, e)
	if err != nil {
		return domain.AuditRecord{}, err
	}
	stored, err := a.repo.Insert(ctx, rec)
	if err != nil {
		return domain.AuditRecord{}, fmt.Errorf("record audit event: %w", err)
	}
	return stored, nil
}

// List returns trail entries matching the filter, newest first.
func (a *AuditRecorder) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error) {
	if filter.SubjectType != "" {
		if err := domain.ValidateCategory(filter.SubjectType); err != nil {
			return nil, err
		}
	}
	if filter.SubjectID != "" {
		if err := domain.ValidateKey(filter.SubjectID); err != nil {
			return nil, err
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return a.repo.List(ctx, filter)
}

// History returns the trail for one subject within a tenant, newest first.
// An empty tenantID reads across tenants and is reserved for privileged
// surfaces; subject ids collide between tenants routinely.
func (a *AuditRecorder) History(ctx context.Context, tenantID, subjectType, subjectID string, limit int) ([]domain.AuditRecord, error) {
	if err := domain.ValidateCategory(subjectType); err != nil {
		return nil, err
	}
	if err := domain.ValidateKey(subjectID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	return a.repo.HistoryFor(ctx, tenantID, subjectType, subjectID, limit)
}

// Stats aggregates activity over the window [from, to). A zero window
// defaults to the last 30 days.
func (a *AuditRecorder) Stats(ctx context.Context, tenantID string, from, to time.Time) (domain.AuditStats, error) {
	if to.IsZero() {
		to = a.now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -defaultStatsWindowDays)
	}
	if !from.Before(to) {
		return domain.AuditStats{}, errors.New("stats window start must precede end")
	}
	return a.repo.Stats(ctx, tenantID, from, to, 10)
}

// Purge bulk-deletes records older than retentionDays. It is the single
// sanctioned breach of immutability and demands admin privilege.
func (a *AuditRecorder) Purge(ctx context.Context, caller domain.APIKey, retentionDays int) (int64, error) {
	if !caller.IsAdmin() {
		return 0, ErrForbidden
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if retentionDays < minPurgeRetentionDays {
		return 0, fmt.Errorf("retention horizon below %d days refused", minPurgeRetentionDays)
	}

	cutoff := a.now().UTC().AddDate(0, 0, -retentionDays)
	removed, err := a.repo.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit records: %w", err)
	}
	return removed, nil
}
