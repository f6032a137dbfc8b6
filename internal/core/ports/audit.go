package ports

import (
	"context"
	"time"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
)

// AuditLogRepository is the append-only audit trail store. Insert is the only
// write path; the store's own contract rejects updates and single-row
// deletes. PurgeOlderThan is the one privileged exception and removes rows in
// bulk by age.
type AuditLogRepository interface {
	Insert(ctx context.Context, rec domain.AuditRecord) (domain.AuditRecord, error)
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error)
	// HistoryFor lists one subject's trail. A non-empty tenantID restricts
	// the result to that tenant's records; subject ids repeat across
	// tenants, so every tenant-facing caller must pass one.
	HistoryFor(ctx context.Context, tenantID, subjectType, subjectID string, limit int) ([]domain.AuditRecord, error)
	Stats(ctx context.Context, tenantID string, from, to time.Time, topN int) (domain.AuditStats, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
