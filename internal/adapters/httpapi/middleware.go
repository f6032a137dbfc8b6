package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atvirokodosprendimai/erpcore/internal/auth"
	"github.com/atvirokodosprendimai/erpcore/internal/core/reqctx"
	"github.com/atvirokodosprendimai/erpcore/internal/core/usecase"
)

type ctxKey string

const (
	apiKeyCtxKey ctxKey = "api_key"
	claimsCtxKey ctxKey = "user_claims"
)

// requestMeta stamps request metadata into the context so audit records can
// carry the originating URL, client address, and request id.
func (h *Handler) requestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}
		if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
			ip = strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
		}

		ctx := reqctx.WithRequestMeta(r.Context(), reqctx.RequestMeta{
			URL:       r.URL.RequestURI(),
			IPAddress: ip,
			UserAgent: r.UserAgent(),
			RequestID: requestID,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticateUser verifies an optional Bearer JWT. A valid token binds the
// acting user; a missing token leaves the request anonymous; a malformed
// token is rejected outright.
func (h *Handler) authenticateUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		claims, err := h.tokens.Verify(strings.TrimSpace(header[7:]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsCtxKey, claims)
		ctx = reqctx.WithActor(ctx, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveTenant runs the resolution chain and publishes the outcome into the
// request context. No match is not an error here; operations that demand a
// tenant fail individually with domain.ErrTenantRequired.
func (h *Handler) resolveTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := usecase.ResolveRequest{
			HeaderTenantID: r.Header.Get(h.tenantHeader),
			Host:           r.Host,
		}
		if claims := claimsFromContext(r.Context()); claims != nil {
			req.UserTenantID = claims.TenantID
		}

		ctx, binding, err := h.resolver.Resolve(r.Context(), req)
		if err != nil {
			h.log.Error("tenant resolution failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "tenant resolution failed")
			return
		}

		h.metrics.TenantResolutions.WithLabelValues(string(binding.Source)).Inc()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// localize resolves locale and timezone from the request, the user's
// preferences, and the tenant's settings, and binds them into the context.
func (h *Handler) localize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		binding, _ := reqctx.TenantBinding(ctx)
		claims := claimsFromContext(ctx)

		localeIn := usecase.LocaleInput{
			QueryParam: r.URL.Query().Get("locale"),
			Header:     r.Header.Get("Accept-Language"),
			Tenant:     binding.Tenant,
		}
		if xl := r.Header.Get("X-Locale"); xl != "" {
			localeIn.QueryParam = firstNonEmpty(localeIn.QueryParam, xl)
		}
		tzIn := usecase.TimezoneInput{
			Header: r.Header.Get("X-Timezone"),
			Tenant: binding.Tenant,
		}
		if claims != nil {
			localeIn.UserPreference = claims.Locale
			tzIn.UserPreference = claims.Timezone
		}

		ctx = reqctx.WithLocale(ctx, h.prefs.Locale(localeIn))
		ctx = reqctx.WithTimezone(ctx, h.prefs.Timezone(tzIn))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAPIKey guards the privileged admin surface.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			authz := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[7:])
			}
		}

		apiKey, err := h.authService.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, usecase.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), apiKeyCtxKey, apiKey)
		ctx = reqctx.WithActor(ctx, apiKey.Name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsCtxKey).(*auth.Claims)
	return claims
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
