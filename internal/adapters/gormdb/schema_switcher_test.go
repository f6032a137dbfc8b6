package gormdb

import (
	"context"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
)

func TestSchemaNamePattern(t *testing.T) {
	valid := []string{"tenant_acme", "_shadow", "t1", "a"}
	for _, name := range valid {
		if !schemaNamePattern.MatchString(name) {
			t.Errorf("expected %q to be a valid schema name", name)
		}
	}

	invalid := []string{"", "1tenant", "Tenant", "acme-prod", "acme;drop", `bad"name`}
	for _, name := range invalid {
		if schemaNamePattern.MatchString(name) {
			t.Errorf("expected %q to be rejected", name)
		}
	}
}

func TestPostgresSchemaSwitcherRejectsBadNamesBeforeSQL(t *testing.T) {
	sw := NewPostgresSchemaSwitcher()
	ctx, err := sw.Use(context.Background(), "acme;drop table tenants")
	if !errors.Is(err, domain.ErrInvalidTenant) {
		t.Fatalf("expected ErrInvalidTenant, got %v", err)
	}
	if searchPathFrom(ctx) != "" {
		t.Fatal("rejected name must not land on the context")
	}
}

func TestPostgresSchemaSwitcherScopesRedirectToContext(t *testing.T) {
	// Use holds no connection and touches no pool; the redirect lives on the
	// request context alone and is applied per transaction via SET LOCAL, so
	// one request's namespace can never ride a pooled connection into
	// another request.
	sw := NewPostgresSchemaSwitcher()

	base := context.Background()
	ctxA, err := sw.Use(base, "tenant_a")
	if err != nil {
		t.Fatalf("use tenant_a: %v", err)
	}
	ctxB, err := sw.Use(base, "tenant_b")
	if err != nil {
		t.Fatalf("use tenant_b: %v", err)
	}

	if got := searchPathFrom(ctxA); got != "tenant_a" {
		t.Fatalf("ctxA search path = %q", got)
	}
	if got := searchPathFrom(ctxB); got != "tenant_b" {
		t.Fatalf("ctxB search path = %q", got)
	}
	if got := searchPathFrom(base); got != "" {
		t.Fatalf("base context polluted with %q", got)
	}
}
