package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atvirokodosprendimai/erpcore/internal/auth"
	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
	"github.com/atvirokodosprendimai/erpcore/internal/core/reqctx"
	"github.com/atvirokodosprendimai/erpcore/internal/core/usecase"
	"github.com/atvirokodosprendimai/erpcore/internal/metrics"
)

const (
	timeFormat      = "2006-01-02T15:04:05.999999999Z07:00"
	maxJSONBodySize = 1 << 20

	// DefaultTenantHeader is the header consulted first during tenant
	// resolution when no override is configured.
	DefaultTenantHeader = "X-Tenant-ID"
)

type Handler struct {
	resolver      *usecase.TenantResolver
	records       *usecase.RecordService
	schemas       *usecase.SchemaService
	tenantService *usecase.TenantService
	recorder      *usecase.AuditRecorder
	authService   *usecase.AuthService
	tokens        *auth.Tokens
	prefs         *usecase.PrefsResolver
	metrics       *metrics.Metrics
	log           *zap.Logger
	tenantHeader  string
}

type HandlerConfig struct {
	Resolver      *usecase.TenantResolver
	Records       *usecase.RecordService
	Schemas       *usecase.SchemaService
	TenantService *usecase.TenantService
	Recorder      *usecase.AuditRecorder
	AuthService   *usecase.AuthService
	Tokens        *auth.Tokens
	Prefs         *usecase.PrefsResolver
	Metrics       *metrics.Metrics
	Log           *zap.Logger
	TenantHeader  string
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.TenantHeader == "" {
		cfg.TenantHeader = DefaultTenantHeader
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	return &Handler{
		resolver:      cfg.Resolver,
		records:       cfg.Records,
		schemas:       cfg.Schemas,
		tenantService: cfg.TenantService,
		recorder:      cfg.Recorder,
		authService:   cfg.AuthService,
		tokens:        cfg.Tokens,
		prefs:         cfg.Prefs,
		metrics:       cfg.Metrics,
		log:           cfg.Log,
		tenantHeader:  cfg.TenantHeader,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.metrics.Middleware(routePattern))

	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Group(func(ar chi.Router) {
		ar.Use(h.requestMeta, h.requireAPIKey)
		ar.Post("/v1/admin/tenants", h.createTenant)
		ar.Get("/v1/admin/tenants", h.listTenants)
		ar.Get("/v1/admin/tenants/{id}", h.getTenant)
		ar.Put("/v1/admin/tenants/{id}/status", h.setTenantStatus)
		ar.Delete("/v1/admin/tenants/{id}", h.deleteTenant)
		ar.Post("/v1/admin/audit:purge", h.purgeAudit)
	})

	r.Group(func(tr chi.Router) {
		tr.Use(h.requestMeta, h.authenticateUser, h.resolveTenant, h.localize)

		tr.Get("/v1/context", h.requestContext)

		tr.Get("/v1/collections/{collection}/records", h.listRecords)
		tr.Put("/v1/collections/{collection}/records/{id}", h.upsertRecord)
		tr.Get("/v1/collections/{collection}/records/{id}", h.getRecord)
		tr.Delete("/v1/collections/{collection}/records/{id}", h.deleteRecord)

		tr.Put("/v1/collections/{collection}/schema", h.upsertSchema)
		tr.Get("/v1/collections/{collection}/schema", h.getSchema)
		tr.Delete("/v1/collections/{collection}/schema", h.deleteSchema)

		tr.Get("/v1/audit", h.listAudit)
		tr.Get("/v1/audit/stats", h.auditStats)
		tr.Get("/v1/audit/{subjectType}/{subjectID}", h.auditHistory)
		tr.Post("/v1/audit/events", h.recordAuditEvent)
	})

	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type recordResponse struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

type tenantRequest struct {
	Name       string          `json:"name"`
	Subdomain  string          `json:"subdomain"`
	Isolation  string          `json:"isolation"`
	SchemaName string          `json:"schema_name"`
	Settings   json.RawMessage `json:"settings"`
	Metadata   json.RawMessage `json:"metadata"`
}

type tenantResponse struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Subdomain  string          `json:"subdomain"`
	Isolation  string          `json:"isolation"`
	SchemaName string          `json:"schema_name,omitempty"`
	Status     string          `json:"status"`
	Settings   json.RawMessage `json:"settings,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

type schemaRequest struct {
	Schema json.RawMessage `json:"schema"`
	Hidden []string        `json:"hidden"`
}

type schemaResponse struct {
	Collection string          `json:"collection"`
	Schema     json.RawMessage `json:"schema,omitempty"`
	Hidden     []string        `json:"hidden,omitempty"`
	UpdatedAt  string          `json:"updated_at"`
}

type auditEventRequest struct {
	Event       string          `json:"event"`
	SubjectType string          `json:"subject_type"`
	SubjectID   string          `json:"subject_id"`
	Before      domain.Snapshot `json:"before"`
	After       domain.Snapshot `json:"after"`
	Tags        []string        `json:"tags"`
	Metadata    map[string]any  `json:"metadata"`
}

type auditResponse struct {
	ID          int64                    `json:"id"`
	AuditID     string                   `json:"audit_id"`
	UserID      string                   `json:"user_id,omitempty"`
	TenantID    string                   `json:"tenant_id,omitempty"`
	Event       string                   `json:"event"`
	SubjectType string                   `json:"subject_type"`
	SubjectID   string                   `json:"subject_id"`
	OldValues   domain.Snapshot          `json:"old_values,omitempty"`
	NewValues   domain.Snapshot          `json:"new_values,omitempty"`
	Changes     map[string]domain.Change `json:"changes,omitempty"`
	URL         string                   `json:"url,omitempty"`
	IPAddress   string                   `json:"ip_address,omitempty"`
	UserAgent   string                   `json:"user_agent,omitempty"`
	RequestID   string                   `json:"request_id,omitempty"`
	Tags        []string                 `json:"tags,omitempty"`
	Metadata    map[string]any           `json:"metadata,omitempty"`
	CreatedAt   string                   `json:"created_at"`
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// requestContext reports what the middleware chain resolved for this request.
// Useful for debugging routing and preference fallbacks.
func (h *Handler) requestContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	binding, _ := reqctx.TenantBinding(ctx)

	body := map[string]any{
		"source":   string(binding.Source),
		"locale":   reqctx.Locale(ctx),
		"timezone": reqctx.Timezone(ctx),
	}
	if binding.Source != reqctx.SourceNone {
		body["tenant"] = map[string]any{
			"id":        binding.Tenant.ID,
			"subdomain": binding.Tenant.Subdomain,
			"status":    string(binding.Tenant.Status),
		}
	}
	if actor := reqctx.Actor(ctx); actor != "" {
		body["actor"] = actor
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) upsertRecord(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	var data json.RawMessage
	if err := decoder.Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	rec, event, err := h.records.Upsert(r.Context(), collection, id, data)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.metrics.AuditRecords.WithLabelValues(event).Inc()
	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.Get(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.records.Delete(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	if deleted {
		h.metrics.AuditRecords.WithLabelValues(domain.EventDeleted).Inc()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	records, err := h.records.List(r.Context(), chi.URLParam(r, "collection"), domain.RecordListFilter{
		Prefix: r.URL.Query().Get("prefix"),
		After:  r.URL.Query().Get("after"),
		Limit:  limit,
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	result := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		result = append(result, toRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) upsertSchema(w http.ResponseWriter, r *http.Request) {
	tenant, err := reqctx.Tenant(r.Context())
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	var req schemaRequest
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	schema, err := h.schemas.Upsert(r.Context(), tenant.ID, chi.URLParam(r, "collection"), req.Schema, req.Hidden)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSchemaResponse(schema))
}

func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	tenant, err := reqctx.Tenant(r.Context())
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	schema, err := h.schemas.Get(r.Context(), tenant.ID, chi.URLParam(r, "collection"))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSchemaResponse(schema))
}

func (h *Handler) deleteSchema(w http.ResponseWriter, r *http.Request) {
	tenant, err := reqctx.Tenant(r.Context())
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	deleted, err := h.schemas.Delete(r.Context(), tenant.ID, chi.URLParam(r, "collection"))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	tenant, err := reqctx.Tenant(r.Context())
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := domain.AuditFilter{
		TenantID:    tenant.ID,
		UserID:      q.Get("user_id"),
		Event:       q.Get("event"),
		SubjectType: q.Get("subject_type"),
		SubjectID:   q.Get("subject_id"),
		Tag:         q.Get("tag"),
		Limit:       limit,
	}
	if raw := q.Get("after_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after_id must be integer")
			return
		}
		filter.AfterID = parsed
	}
	var okWindow bool
	if filter.From, okWindow = parseTimeParam(w, q.Get("from")); !okWindow {
		return
	}
	if filter.To, okWindow = parseTimeParam(w, q.Get("to")); !okWindow {
		return
	}

	records, err := h.recorder.List(r.Context(), filter)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toAuditResponses(records)})
}

func (h *Handler) auditHistory(w http.ResponseWriter, r *http.Request) {
	tenant, err := reqctx.Tenant(r.Context())
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	records, err := h.recorder.History(r.Context(), tenant.ID, chi.URLParam(r, "subjectType"), chi.URLParam(r, "subjectID"), limit)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toAuditResponses(records)})
}

func (h *Handler) auditStats(w http.ResponseWriter, r *http.Request) {
	tenant, err := reqctx.Tenant(r.Context())
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	q := r.URL.Query()
	from, ok := parseTimeParam(w, q.Get("from"))
	if !ok {
		return
	}
	to, ok := parseTimeParam(w, q.Get("to"))
	if !ok {
		return
	}

	stats, err := h.recorder.Stats(r.Context(), tenant.ID, from, to)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// recordAuditEvent appends a manual trail entry for flows that mutate state
// outside the record store.
func (h *Handler) recordAuditEvent(w http.ResponseWriter, r *http.Request) {
	if _, err := reqctx.Tenant(r.Context()); err != nil {
		h.handleDomainError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	var req auditEventRequest
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	rec, err := h.recorder.Record(r.Context(), usecase.AuditEntry{
		Event:       req.Event,
		SubjectType: req.SubjectType,
		SubjectID:   req.SubjectID,
		Before:      req.Before,
		After:       req.After,
		Tags:        req.Tags,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.metrics.AuditRecords.WithLabelValues(rec.Event).Inc()
	writeJSON(w, http.StatusCreated, toAuditResponse(rec))
}

func (h *Handler) createTenant(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	var req tenantRequest
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	tenant, err := h.tenantService.Create(r.Context(), domain.Tenant{
		Name:       req.Name,
		Subdomain:  req.Subdomain,
		Isolation:  domain.IsolationMode(req.Isolation),
		SchemaName: req.SchemaName,
		Settings:   req.Settings,
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTenantResponse(tenant))
}

func (h *Handler) listTenants(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	tenants, err := h.tenantService.List(r.Context(), limit)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	result := make([]tenantResponse, 0, len(tenants))
	for _, t := range tenants {
		result = append(result, toTenantResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) getTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.tenantService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantResponse(tenant))
}

func (h *Handler) setTenantStatus(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	var req struct {
		Status string `json:"status"`
	}
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	tenant, err := h.tenantService.SetStatus(r.Context(), chi.URLParam(r, "id"), domain.TenantStatus(req.Status))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantResponse(tenant))
}

func (h *Handler) deleteTenant(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.tenantService.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *Handler) purgeAudit(w http.ResponseWriter, r *http.Request) {
	apiKey, ok := r.Context().Value(apiKeyCtxKey).(domain.APIKey)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	retentionDays := 0
	if raw := r.URL.Query().Get("retention_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "retention_days must be integer")
			return
		}
		retentionDays = parsed
	}

	removed, err := h.recorder.Purge(r.Context(), apiKey, retentionDays)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func toRecordResponse(rec domain.Record) recordResponse {
	return recordResponse{
		ID:         rec.ID,
		Collection: rec.Collection,
		Data:       rec.Data,
		CreatedAt:  rec.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:  rec.UpdatedAt.UTC().Format(timeFormat),
	}
}

func toTenantResponse(t domain.Tenant) tenantResponse {
	return tenantResponse{
		ID:         t.ID,
		Name:       t.Name,
		Subdomain:  t.Subdomain,
		Isolation:  string(t.Isolation),
		SchemaName: t.SchemaName,
		Status:     string(t.Status),
		Settings:   t.Settings,
		Metadata:   t.Metadata,
		CreatedAt:  t.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:  t.UpdatedAt.UTC().Format(timeFormat),
	}
}

func toSchemaResponse(s domain.CollectionSchema) schemaResponse {
	return schemaResponse{
		Collection: s.Collection,
		Schema:     s.Schema,
		Hidden:     s.Hidden,
		UpdatedAt:  s.UpdatedAt.UTC().Format(timeFormat),
	}
}

func toAuditResponse(rec domain.AuditRecord) auditResponse {
	return auditResponse{
		ID:          rec.ID,
		AuditID:     rec.AuditID,
		UserID:      rec.UserID,
		TenantID:    rec.TenantID,
		Event:       rec.Event,
		SubjectType: rec.SubjectType,
		SubjectID:   rec.SubjectID,
		OldValues:   rec.OldValues,
		NewValues:   rec.NewValues,
		Changes:     rec.Changes(),
		URL:         rec.URL,
		IPAddress:   rec.IPAddress,
		UserAgent:   rec.UserAgent,
		RequestID:   rec.RequestID,
		Tags:        rec.Tags,
		Metadata:    rec.Metadata,
		CreatedAt:   rec.CreatedAt.UTC().Format(timeFormat),
	}
}

func toAuditResponses(records []domain.AuditRecord) []auditResponse {
	result := make([]auditResponse, 0, len(records))
	for _, rec := range records {
		result = append(result, toAuditResponse(rec))
	}
	return result
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

func parseTimeParam(w http.ResponseWriter, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "time params must be RFC3339")
		return time.Time{}, false
	}
	return parsed, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func (h *Handler) handleDomainError(w http.ResponseWriter, err error) {
	var violation *domain.ErrSchemaViolation
	switch {
	case errors.As(err, &violation):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "schema validation failed",
			"details": violation.Errors,
		})
	case errors.Is(err, domain.ErrTenantRequired):
		writeError(w, http.StatusBadRequest, "tenant required")
	case errors.Is(err, domain.ErrInvalidKey),
		errors.Is(err, domain.ErrInvalidCategory),
		errors.Is(err, domain.ErrInvalidTenant),
		errors.Is(err, domain.ErrInvalidAuditEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrTenantNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAuditImmutable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, usecase.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, usecase.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		h.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openapiSpec())
}

func openapiSpec() map[string]any {
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "erpcore",
			"version": "1.0.0",
		},
		"paths": map[string]any{
			"/v1/context": map[string]any{
				"get": map[string]any{"summary": "Inspect resolved request context"},
			},
			"/v1/collections/{collection}/records": map[string]any{
				"get": map[string]any{"summary": "List records"},
			},
			"/v1/collections/{collection}/records/{id}": map[string]any{
				"put":    map[string]any{"summary": "Upsert record"},
				"get":    map[string]any{"summary": "Get record"},
				"delete": map[string]any{"summary": "Delete record"},
			},
			"/v1/collections/{collection}/schema": map[string]any{
				"put":    map[string]any{"summary": "Configure collection schema"},
				"get":    map[string]any{"summary": "Get collection schema"},
				"delete": map[string]any{"summary": "Delete collection schema"},
			},
			"/v1/audit": map[string]any{
				"get": map[string]any{"summary": "List audit trail"},
			},
			"/v1/audit/stats": map[string]any{
				"get": map[string]any{"summary": "Audit activity statistics"},
			},
			"/v1/audit/{subjectType}/{subjectID}": map[string]any{
				"get": map[string]any{"summary": "Audit history for one subject"},
			},
			"/v1/audit/events": map[string]any{
				"post": map[string]any{"summary": "Record a manual audit event"},
			},
			"/v1/admin/tenants": map[string]any{
				"post": map[string]any{"summary": "Provision tenant"},
				"get":  map[string]any{"summary": "List tenants"},
			},
			"/v1/admin/tenants/{id}": map[string]any{
				"get":    map[string]any{"summary": "Get tenant"},
				"delete": map[string]any{"summary": "Soft-delete tenant"},
			},
			"/v1/admin/tenants/{id}/status": map[string]any{
				"put": map[string]any{"summary": "Set tenant status"},
			},
			"/v1/admin/audit:purge": map[string]any{
				"post": map[string]any{"summary": "Purge audit records past retention"},
			},
		},
	}
}
