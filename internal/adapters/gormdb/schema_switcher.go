package gormdb

import (
	"context"
	"fmt"
	"regexp"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
)

var schemaNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

type searchPathKey struct{}

func searchPathFrom(ctx context.Context) string {
	name, _ := ctx.Value(searchPathKey{}).(string)
	return name
}

// PostgresSchemaSwitcher redirects one request's storage operations to a
// tenant's schema. It records the validated schema name on the request
// context; ReadTX and WriteTX then issue SET LOCAL search_path inside each
// transaction the request opens, so the redirect never leaks onto a pooled
// connection serving other requests. Only meaningful on postgres; a
// deployment on sqlite uses NoopSchemaSwitcher and row-level isolation.
type PostgresSchemaSwitcher struct{}

func NewPostgresSchemaSwitcher() *PostgresSchemaSwitcher {
	return &PostgresSchemaSwitcher{}
}

func (s *PostgresSchemaSwitcher) Use(ctx context.Context, schemaName string) (context.Context, error) {
	// Identifiers cannot be bound as statement parameters, so the name is
	// validated against a strict pattern before it ever reaches SQL.
	if !schemaNamePattern.MatchString(schemaName) {
		return ctx, fmt.Errorf("%w: bad schema name", domain.ErrInvalidTenant)
	}
	return context.WithValue(ctx, searchPathKey{}, schemaName), nil
}

// NoopSchemaSwitcher is the sqlite stand-in. Row-level tenant scoping makes
// schema redirects unnecessary there.
type NoopSchemaSwitcher struct{}

func (NoopSchemaSwitcher) Use(ctx context.Context, _ string) (context.Context, error) {
	return ctx, nil
}
