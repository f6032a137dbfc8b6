package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
)

func newTenantService(t *testing.T, repo *stubTenantRepository, audit *stubAuditRepo) *TenantService {
	t.Helper()
	if audit == nil {
		audit = &stubAuditRepo{}
	}
	svc, err := NewTenantService(repo, NewAuditRecorder(audit))
	if err != nil {
		t.Fatalf("new tenant service: %v", err)
	}
	return svc
}

func TestTenantServiceCreateFillsDefaultsAndAudits(t *testing.T) {
	var created domain.Tenant
	repo := &stubTenantRepository{
		createFn: func(_ context.Context, tn domain.Tenant) (domain.Tenant, error) {
			created = tn
			return tn, nil
		},
	}
	var recorded []domain.AuditRecord
	audit := &stubAuditRepo{
		insertFn: func(_ context.Context, rec domain.AuditRecord) (domain.AuditRecord, error) {
			recorded = append(recorded, rec)
			return rec, nil
		},
	}
	svc := newTenantService(t, repo, audit)

	out, err := svc.Create(context.Background(), domain.Tenant{Name: "Acme", Subdomain: "acme"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if out.ID == "" {
		t.Fatalf("expected minted id")
	}
	if created.Isolation != domain.IsolationRowLevel || created.Status != domain.TenantActive {
		t.Fatalf("defaults not applied: %+v", created)
	}

	if len(recorded) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(recorded))
	}
	if recorded[0].Event != domain.EventCreated || recorded[0].SubjectType != "tenant" || recorded[0].SubjectID != out.ID {
		t.Fatalf("unexpected audit record: %+v", recorded[0])
	}
	if recorded[0].NewValues["subdomain"] != "acme" {
		t.Fatalf("unexpected snapshot: %v", recorded[0].NewValues)
	}
}

func TestTenantServiceCreateRejectsInvalidInput(t *testing.T) {
	svc := newTenantService(t, &stubTenantRepository{}, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, domain.Tenant{Name: "", Subdomain: "acme"}); !errors.Is(err, domain.ErrInvalidTenant) {
		t.Fatalf("empty name: %v", err)
	}
	if _, err := svc.Create(ctx, domain.Tenant{Name: "Acme", Subdomain: "Not.Valid"}); !errors.Is(err, domain.ErrInvalidTenant) {
		t.Fatalf("bad subdomain: %v", err)
	}
	if _, err := svc.Create(ctx, domain.Tenant{
		Name:      "Acme",
		Subdomain: "acme",
		Settings:  json.RawMessage(`{"max_records": -5}`),
	}); err == nil {
		t.Fatalf("expected settings rejection")
	}
}

func TestTenantServiceSetStatusAuditsTransition(t *testing.T) {
	repo := &stubTenantRepository{
		findByIDFn: func(_ context.Context, id string) (domain.Tenant, error) {
			return activeTenant(id), nil
		},
		updateStatusFn: func(_ context.Context, id string, status domain.TenantStatus) (domain.Tenant, error) {
			tn := activeTenant(id)
			tn.Status = status
			return tn, nil
		},
	}
	var recorded []domain.AuditRecord
	audit := &stubAuditRepo{
		insertFn: func(_ context.Context, rec domain.AuditRecord) (domain.AuditRecord, error) {
			recorded = append(recorded, rec)
			return rec, nil
		},
	}
	svc := newTenantService(t, repo, audit)

	out, err := svc.SetStatus(context.Background(), "t1", domain.TenantSuspended)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if out.Status != domain.TenantSuspended {
		t.Fatalf("expected suspended, got %s", out.Status)
	}

	if len(recorded) != 1 || recorded[0].Event != domain.EventUpdated {
		t.Fatalf("unexpected audit trail: %+v", recorded)
	}
	changes := recorded[0].Changes()
	if changes["status"].Old != string(domain.TenantActive) || changes["status"].New != string(domain.TenantSuspended) {
		t.Fatalf("unexpected status diff: %v", changes)
	}

	if _, err := svc.SetStatus(context.Background(), "t1", "nonsense"); !errors.Is(err, domain.ErrInvalidTenant) {
		t.Fatalf("expected ErrInvalidTenant for unknown status, got %v", err)
	}
}

func TestTenantServiceDeleteMissingTenantIsNoop(t *testing.T) {
	audit := &stubAuditRepo{
		insertFn: func(_ context.Context, rec domain.AuditRecord) (domain.AuditRecord, error) {
			t.Fatalf("no audit record expected, got %+v", rec)
			return rec, nil
		},
	}
	// The store wraps its sentinel; the service must still treat the miss as
	// a no-op.
	repo := &stubTenantRepository{
		findByIDFn: func(context.Context, string) (domain.Tenant, error) {
			return domain.Tenant{}, fmt.Errorf("find tenant: %w", domain.ErrTenantNotFound)
		},
	}
	svc := newTenantService(t, repo, audit)

	deleted, err := svc.Delete(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted {
		t.Fatalf("expected deleted=false for missing tenant")
	}
}

func TestTenantServiceDeleteAuditsWithBeforeImage(t *testing.T) {
	repo := &stubTenantRepository{
		findByIDFn: func(_ context.Context, id string) (domain.Tenant, error) {
			return activeTenant(id), nil
		},
		softDeleteFn: func(context.Context, string) (bool, error) {
			return true, nil
		},
	}
	var recorded []domain.AuditRecord
	audit := &stubAuditRepo{
		insertFn: func(_ context.Context, rec domain.AuditRecord) (domain.AuditRecord, error) {
			recorded = append(recorded, rec)
			return rec, nil
		},
	}
	svc := newTenantService(t, repo, audit)

	deleted, err := svc.Delete(context.Background(), "t1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Fatalf("expected deleted=true")
	}
	if len(recorded) != 1 || recorded[0].Event != domain.EventDeleted {
		t.Fatalf("unexpected audit trail: %+v", recorded)
	}
	if recorded[0].OldValues == nil || recorded[0].NewValues != nil {
		t.Fatalf("delete must carry before image only: %+v", recorded[0])
	}
}

func TestTenantServiceListClampsLimit(t *testing.T) {
	var gotLimit int
	repo := &stubTenantRepository{
		listFn: func(_ context.Context, limit int) ([]domain.Tenant, error) {
			gotLimit = limit
			return nil, nil
		},
	}
	svc := newTenantService(t, repo, nil)

	if _, err := svc.List(context.Background(), 0); err != nil {
		t.Fatalf("list default: %v", err)
	}
	if gotLimit != 100 {
		t.Fatalf("expected default limit 100, got %d", gotLimit)
	}
	if _, err := svc.List(context.Background(), 5000); err != nil {
		t.Fatalf("list clamped: %v", err)
	}
	if gotLimit != 1000 {
		t.Fatalf("expected clamp to 1000, got %d", gotLimit)
	}
}
