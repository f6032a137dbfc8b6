package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
	"github.com/atvirokodosprendimai/erpcore/internal/core/ports"
	"github.com/atvirokodosprendimai/erpcore/internal/core/reqctx"
)

// RecordService is the tenant-gated document CRUD surface. Every operation
// takes its tenant from the ambient request context; a request that resolved
// to no tenant fails with domain.ErrTenantRequired before touching storage.
// Mutations validate against the collection schema and commit together with
// their audit record.
type RecordService struct {
	store    ports.RecordStore
	schemas  *SchemaService
	recorder *AuditRecorder
}

func NewRecordService(store ports.RecordStore, schemas *SchemaService, recorder *AuditRecorder) *RecordService {
	return &RecordService{store: store, schemas: schemas, recorder: recorder}
}

// Upsert writes the record and reports the settled event kind alongside it,
// so callers counting created versus updated mutations see what the store
// actually recorded.
func (s *RecordService) Upsert(ctx context.Context, collection, id string, data []byte) (domain.Record, string, error) {
	tenant, err := reqctx.Tenant(ctx)
	if err != nil {
		return domain.Record{}, "", err
	}

	rec := domain.Record{
		TenantID:   tenant.ID,
		Collection: collection,
		ID:         id,
		Data:       data,
	}
	if err := rec.Validate(); err != nil {
		return domain.Record{}, "", err
	}

	hidden, err := s.schemas.ValidateData(ctx, tenant.ID, collection, rec.Data)
	if err != nil {
		return domain.Record{}, "", err
	}

	// Event kind is provisional: the store downgrades "updated" to "created"
	// when it observes no prior row inside the transaction.
	audit, err := s.recorder.Compose(ctx, AuditEntry{
		Event:       domain.EventUpdated,
		SubjectType: collection,
		SubjectID:   id,
		After:       rec.Snapshot(),
		Hidden:      hidden,
	})
	if err != nil {
		return domain.Record{}, "", err
	}

	stored, event, err := s.store.UpsertAudited(ctx, rec, audit, hidden)
	if err != nil {
		return domain.Record{}, "", fmt.Errorf("upsert record: %w", err)
	}
	return stored, event, nil
}

func (s *RecordService) Get(ctx context.Context, collection, id string) (domain.Record, error) {
	tenant, err := reqctx.Tenant(ctx)
	if err != nil {
		return domain.Record{}, err
	}
	if err := domain.ValidateCategory(collection); err != nil {
		return domain.Record{}, err
	}
	if err := domain.ValidateKey(id); err != nil {
		return domain.Record{}, err
	}
	return s.store.Get(ctx, tenant.ID, collection, id)
}

func (s *RecordService) Delete(ctx context.Context, collection, id string) (bool, error) {
	tenant, err := reqctx.Tenant(ctx)
	if err != nil {
		return false, err
	}
	if err := domain.ValidateCategory(collection); err != nil {
		return false, err
	}
	if err := domain.ValidateKey(id); err != nil {
		return false, err
	}

	var hidden []string
	if schema, err := s.schemas.Get(ctx, tenant.ID, collection); err == nil {
		hidden = schema.Hidden
	} else if !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}

	audit, err := s.recorder.Compose(ctx, AuditEntry{
		Event:       domain.EventDeleted,
		SubjectType: collection,
		SubjectID:   id,
		Hidden:      hidden,
	})
	if err != nil {
		return false, err
	}

	deleted, err := s.store.DeleteAudited(ctx, tenant.ID, collection, id, audit, hidden)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	return deleted, nil
}

func (s *RecordService) List(ctx context.Context, collection string, filter domain.RecordListFilter) ([]domain.Record, error) {
	tenant, err := reqctx.Tenant(ctx)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateCategory(collection); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.store.List(ctx, tenant.ID, collection, filter)
}
