package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/erpcore/internal/auth"
	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
	"github.com/atvirokodosprendimai/erpcore/internal/core/usecase"
)

const (
	testAPIKey  = "test-api-key"
	testSecret  = "test-jwt-secret"
	testTenant  = "t1"
	tenantHdr   = "X-Tenant-ID"
	serviceKey  = "service-only-key"
	serviceName = "service-client"
)

type tenantRepoStub struct {
	findByIDFn func(ctx context.Context, id string) (domain.Tenant, error)
}

func (s *tenantRepoStub) Create(_ context.Context, t domain.Tenant) (domain.Tenant, error) {
	return t, nil
}

func (s *tenantRepoStub) FindByID(ctx context.Context, id string) (domain.Tenant, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, id)
	}
	return domain.Tenant{}, domain.ErrTenantNotFound
}

func (s *tenantRepoStub) FindBySubdomain(context.Context, string, domain.TenantStatus) (domain.Tenant, error) {
	return domain.Tenant{}, domain.ErrTenantNotFound
}

func (s *tenantRepoStub) UpdateStatus(context.Context, string, domain.TenantStatus) (domain.Tenant, error) {
	return domain.Tenant{}, domain.ErrTenantNotFound
}

func (s *tenantRepoStub) SoftDelete(context.Context, string) (bool, error) { return false, nil }

func (s *tenantRepoStub) List(context.Context, int) ([]domain.Tenant, error) { return nil, nil }

type recordStoreStub struct {
	getFn func(ctx context.Context, tenantID, collection, id string) (domain.Record, error)
}

func (s *recordStoreStub) UpsertAudited(_ context.Context, rec domain.Record, audit domain.AuditRecord, _ []string) (domain.Record, string, error) {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return rec, audit.Event, nil
}

func (s *recordStoreStub) DeleteAudited(context.Context, string, string, string, domain.AuditRecord, []string) (bool, error) {
	return true, nil
}

func (s *recordStoreStub) Get(ctx context.Context, tenantID, collection, id string) (domain.Record, error) {
	if s.getFn != nil {
		return s.getFn(ctx, tenantID, collection, id)
	}
	return domain.Record{}, domain.ErrNotFound
}

func (s *recordStoreStub) List(context.Context, string, string, domain.RecordListFilter) ([]domain.Record, error) {
	return nil, nil
}

type schemaRepoStub struct{}

func (schemaRepoStub) Upsert(_ context.Context, schema domain.CollectionSchema) (domain.CollectionSchema, error) {
	return schema, nil
}

func (schemaRepoStub) Get(context.Context, string, string) (domain.CollectionSchema, error) {
	return domain.CollectionSchema{}, domain.ErrNotFound
}

func (schemaRepoStub) Delete(context.Context, string, string) (bool, error) { return false, nil }

type auditRepoStub struct {
	historyFn func(ctx context.Context, tenantID, subjectType, subjectID string, limit int) ([]domain.AuditRecord, error)
}

func (auditRepoStub) Insert(_ context.Context, rec domain.AuditRecord) (domain.AuditRecord, error) {
	rec.ID = 1
	return rec, nil
}

func (auditRepoStub) List(context.Context, domain.AuditFilter) ([]domain.AuditRecord, error) {
	return nil, nil
}

func (s auditRepoStub) HistoryFor(ctx context.Context, tenantID, subjectType, subjectID string, limit int) ([]domain.AuditRecord, error) {
	if s.historyFn != nil {
		return s.historyFn(ctx, tenantID, subjectType, subjectID, limit)
	}
	return nil, nil
}

func (auditRepoStub) Stats(context.Context, string, time.Time, time.Time, int) (domain.AuditStats, error) {
	return domain.AuditStats{}, nil
}

func (auditRepoStub) PurgeOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

type apiKeyRepoStub struct{}

func (apiKeyRepoStub) FindByTokenHash(_ context.Context, tokenHash string) (domain.APIKey, error) {
	switch tokenHash {
	case usecase.HashToken(testAPIKey):
		return domain.APIKey{TokenHash: tokenHash, Name: "test-client", Role: domain.RoleAdmin, Active: true}, nil
	case usecase.HashToken(serviceKey):
		return domain.APIKey{TokenHash: tokenHash, Name: serviceName, Role: domain.RoleService, Active: true}, nil
	}
	return domain.APIKey{}, domain.ErrNotFound
}

func (apiKeyRepoStub) Upsert(context.Context, domain.APIKey) error { return nil }

type switcherStub struct{}

func (switcherStub) Use(ctx context.Context, _ string) (context.Context, error) { return ctx, nil }

func testRouter(t *testing.T, tenants *tenantRepoStub, store *recordStoreStub) http.Handler {
	return testRouterWithAudit(t, tenants, store, auditRepoStub{})
}

func testRouterWithAudit(t *testing.T, tenants *tenantRepoStub, store *recordStoreStub, audit auditRepoStub) http.Handler {
	t.Helper()
	if tenants == nil {
		tenants = &tenantRepoStub{}
	}
	if store == nil {
		store = &recordStoreStub{}
	}

	recorder := usecase.NewAuditRecorder(audit)
	schemas := usecase.NewSchemaService(schemaRepoStub{})
	tenantService, err := usecase.NewTenantService(tenants, recorder)
	if err != nil {
		t.Fatalf("tenant service: %v", err)
	}
	tokens, err := auth.NewTokens(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}

	return NewHandler(HandlerConfig{
		Resolver:      usecase.NewTenantResolver(tenants, switcherStub{}, nil),
		Records:       usecase.NewRecordService(store, schemas, recorder),
		Schemas:       schemas,
		TenantService: tenantService,
		Recorder:      recorder,
		AuthService:   usecase.NewAuthService(apiKeyRepoStub{}),
		Tokens:        tokens,
		Prefs:         usecase.NewPrefsResolver([]string{"en", "lt"}, "en", "UTC"),
	}).Router()
}

func activeTenantStub() *tenantRepoStub {
	return &tenantRepoStub{
		findByIDFn: func(_ context.Context, id string) (domain.Tenant, error) {
			if id != testTenant {
				return domain.Tenant{}, domain.ErrTenantNotFound
			}
			return domain.Tenant{ID: id, Name: "Acme", Subdomain: "acme", Isolation: domain.IsolationRowLevel, Status: domain.TenantActive}, nil
		},
	}
}

func withAPIKey(req *http.Request) { req.Header.Set("X-API-Key", testAPIKey) }

func TestAdminRouteWithoutAPIKey(t *testing.T) {
	h := testRouter(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/tenants", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateTenantReturnsCreated(t *testing.T) {
	h := testRouter(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/tenants", strings.NewReader(`{"name":"Acme","subdomain":"acme"}`))
	withAPIKey(req)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["subdomain"] != "acme" {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["id"] == "" {
		t.Fatalf("expected minted id")
	}
}

func TestCreateTenantRejectsUnknownFields(t *testing.T) {
	h := testRouter(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/tenants", strings.NewReader(`{"name":"Acme","subdomain":"acme","extra":1}`))
	withAPIKey(req)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpsertRecordWithoutTenantReturnsBadRequest(t *testing.T) {
	h := testRouter(t, nil, nil)
	req := httptest.NewRequest(http.MethodPut, "/v1/collections/contacts/records/c1", strings.NewReader(`{"name":"Ada"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "tenant required") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestUpsertRecordWithHeaderTenant(t *testing.T) {
	h := testRouter(t, activeTenantStub(), nil)
	req := httptest.NewRequest(http.MethodPut, "/v1/collections/contacts/records/c1", strings.NewReader(`{"name":"Ada"}`))
	req.Header.Set(tenantHdr, testTenant)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["id"] != "c1" || body["collection"] != "contacts" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestUpsertRecordRejectsTrailingJSON(t *testing.T) {
	h := testRouter(t, activeTenantStub(), nil)
	req := httptest.NewRequest(http.MethodPut, "/v1/collections/contacts/records/c1", strings.NewReader(`{"name":"Ada"} {}`))
	req.Header.Set(tenantHdr, testTenant)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetRecordNotFoundReturns404(t *testing.T) {
	h := testRouter(t, activeTenantStub(), &recordStoreStub{})
	req := httptest.NewRequest(http.MethodGet, "/v1/collections/contacts/records/missing", nil)
	req.Header.Set(tenantHdr, testTenant)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRequestContextReportsResolution(t *testing.T) {
	h := testRouter(t, activeTenantStub(), nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/context", nil)
	req.Header.Set(tenantHdr, testTenant)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["source"] != "header" {
		t.Fatalf("expected header source, got %v", body["source"])
	}
	tenant, _ := body["tenant"].(map[string]any)
	if tenant["id"] != testTenant {
		t.Fatalf("unexpected tenant: %v", body["tenant"])
	}
	if body["locale"] != "en" || body["timezone"] != "UTC" {
		t.Fatalf("unexpected localization: %v", body)
	}
}

func TestRequestContextWithoutTenant(t *testing.T) {
	h := testRouter(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/context", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["source"] != "none" {
		t.Fatalf("expected none source, got %v", body["source"])
	}
	if _, ok := body["tenant"]; ok {
		t.Fatalf("expected no tenant in body: %v", body)
	}
}

func TestUserTokenBindsActorAndTenant(t *testing.T) {
	tokens, err := auth.NewTokens(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	signed, err := tokens.Mint("user-7", testTenant, time.Now().UTC())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	h := testRouter(t, activeTenantStub(), nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/context", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["source"] != "user-affiliation" {
		t.Fatalf("expected user-affiliation source, got %v", body["source"])
	}
	if body["actor"] != "user-7" {
		t.Fatalf("expected actor user-7, got %v", body["actor"])
	}
}

func TestMalformedBearerTokenRejected(t *testing.T) {
	h := testRouter(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/context", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPurgeRequiresAdminRole(t *testing.T) {
	h := testRouter(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/audit:purge", nil)
	req.Header.Set("X-API-Key", serviceKey)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestWriteJSONEncodeErrorHandled(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]any{"bad": func() {}})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal server error") {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
}

func TestHandleDomainErrorMappings(t *testing.T) {
	h := NewHandler(HandlerConfig{})
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrTenantRequired, http.StatusBadRequest},
		{domain.ErrInvalidKey, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrTenantNotFound, http.StatusNotFound},
		{domain.ErrAuditImmutable, http.StatusConflict},
		{usecase.ErrForbidden, http.StatusForbidden},
		{usecase.ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.handleDomainError(rec, tc.err)
		if rec.Code != tc.want {
			t.Errorf("handleDomainError(%v) = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestOpenAPIEndpoint(t *testing.T) {
	h := testRouter(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := testRouter(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuditHistoryScopedToResolvedTenant(t *testing.T) {
	var gotTenant string
	h := testRouterWithAudit(t, activeTenantStub(), nil, auditRepoStub{
		historyFn: func(_ context.Context, tenantID, subjectType, subjectID string, _ int) ([]domain.AuditRecord, error) {
			gotTenant = tenantID
			if subjectType != "invoices" || subjectID != "42" {
				t.Fatalf("unexpected subject %s/%s", subjectType, subjectID)
			}
			return []domain.AuditRecord{{ID: 1, TenantID: tenantID, Event: domain.EventUpdated, SubjectType: subjectType, SubjectID: subjectID}}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/invoices/42", nil)
	req.Header.Set(tenantHdr, testTenant)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotTenant != testTenant {
		t.Fatalf("history queried with tenant %q, want %q", gotTenant, testTenant)
	}
}
