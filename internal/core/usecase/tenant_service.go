package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
	"github.com/atvirokodosprendimai/erpcore/internal/core/ports"
)

// tenantSettingsSchema constrains the free-form settings map enough to keep
// the keys the platform itself reads well-typed.
const tenantSettingsSchema = `{
	"type": "object",
	"properties": {
		"default_locale": {"type": "string", "minLength": 2, "maxLength": 10},
		"default_timezone": {"type": "string", "minLength": 1},
		"max_records": {"type": "integer", "minimum": 0}
	}
}`

const tenantSubjectType = "tenant"

// TenantService is the provisioning and lifecycle surface of the tenant
// registry, exposed to the privileged admin API. Lifecycle changes are
// audited through the standalone recorder path.
type TenantService struct {
	repo     ports.TenantRepository
	recorder *AuditRecorder
	settings func(json.RawMessage) error
}

func NewTenantService(repo ports.TenantRepository, recorder *AuditRecorder) (*TenantService, error) {
	compiled, err := compileSchema(json.RawMessage(tenantSettingsSchema))
	if err != nil {
		return nil, fmt.Errorf("compile tenant settings schema: %w", err)
	}
	validate := func(raw json.RawMessage) error {
		if len(raw) == 0 {
			return nil
		}
		return runValidation(compiled, raw)
	}
	return &TenantService{repo: repo, recorder: recorder, settings: validate}, nil
}

// Create provisions a tenant. The id is minted here; the subdomain must be
// unique and is immutable afterwards (no rename path exists).
func (s *TenantService) Create(ctx context.Context, t domain.Tenant) (domain.Tenant, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Isolation == "" {
		t.Isolation = domain.IsolationRowLevel
	}
	if t.Status == "" {
		t.Status = domain.TenantActive
	}
	if err := t.Validate(); err != nil {
		return domain.Tenant{}, err
	}
	if err := s.settings(t.Settings); err != nil {
		return domain.Tenant{}, fmt.Errorf("tenant settings: %w", err)
	}

	created, err := s.repo.Create(ctx, t)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("create tenant: %w", err)
	}

	if _, err := s.recorder.Record(ctx, AuditEntry{
		Event:       domain.EventCreated,
		SubjectType: tenantSubjectType,
		SubjectID:   created.ID,
		After:       tenantSnapshot(created),
	}); err != nil {
		return domain.Tenant{}, err
	}
	return created, nil
}

func (s *TenantService) Get(ctx context.Context, id string) (domain.Tenant, error) {
	if err := domain.ValidateKey(id); err != nil {
		return domain.Tenant{}, err
	}
	return s.repo.FindByID(ctx, id)
}

func (s *TenantService) List(ctx context.Context, limit int) ([]domain.Tenant, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	return s.repo.List(ctx, limit)
}

// SetStatus transitions a tenant's lifecycle state and audits the change.
func (s *TenantService) SetStatus(ctx context.Context, id string, status domain.TenantStatus) (domain.Tenant, error) {
	if err := domain.ValidateKey(id); err != nil {
		return domain.Tenant{}, err
	}
	if !status.Valid() {
		return domain.Tenant{}, domain.ErrInvalidTenant
	}

	before, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Tenant{}, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("update tenant status: %w", err)
	}

	if _, err := s.recorder.Record(ctx, AuditEntry{
		Event:       domain.EventUpdated,
		SubjectType: tenantSubjectType,
		SubjectID:   id,
		Before:      tenantSnapshot(before),
		After:       tenantSnapshot(updated),
	}); err != nil {
		return domain.Tenant{}, err
	}
	return updated, nil
}

// Delete soft-deletes a tenant; the row is marked, never erased.
func (s *TenantService) Delete(ctx context.Context, id string) (bool, error) {
	if err := domain.ValidateKey(id); err != nil {
		return false, err
	}

	before, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrTenantNotFound) {
			return false, nil
		}
		return false, err
	}

	deleted, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete tenant: %w", err)
	}
	if !deleted {
		return false, nil
	}

	if _, err := s.recorder.Record(ctx, AuditEntry{
		Event:       domain.EventDeleted,
		SubjectType: tenantSubjectType,
		SubjectID:   id,
		Before:      tenantSnapshot(before),
	}); err != nil {
		return false, err
	}
	return true, nil
}

func tenantSnapshot(t domain.Tenant) domain.Snapshot {
	snap := domain.Snapshot{
		"name":      t.Name,
		"subdomain": t.Subdomain,
		"isolation": string(t.Isolation),
		"status":    string(t.Status),
	}
	if t.SchemaName != "" {
		snap["schema_name"] = t.SchemaName
	}
	return snap
}
