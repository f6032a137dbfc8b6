package ports

import (
	"context"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
)

// RecordStore persists tenant-scoped documents. The mutation methods write
// the document, the prepared audit record, and the outbox event in one
// transaction, so a failed audit insert rolls the mutation back and a
// mutation that did not durably happen is never audited. The audit record's
// snapshots are filled in by the store from the before/after images it
// observes inside the transaction, then redacted with the given hidden keys.
type RecordStore interface {
	// UpsertAudited returns the stored record and the settled event kind:
	// only the transaction can see whether a prior row existed, so the
	// created/updated distinction is decided here, not by the caller.
	UpsertAudited(ctx context.Context, rec domain.Record, audit domain.AuditRecord, hidden []string) (domain.Record, string, error)
	DeleteAudited(ctx context.Context, tenantID, collection, id string, audit domain.AuditRecord, hidden []string) (bool, error)
	Get(ctx context.Context, tenantID, collection, id string) (domain.Record, error)
	List(ctx context.Context, tenantID, collection string, filter domain.RecordListFilter) ([]domain.Record, error)
}
