package ports

import (
	"context"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
)

// TenantRepository is the tenant lookup and provisioning store. Lookups
// return domain.ErrTenantNotFound for missing rows; any other error means the
// store itself failed and must propagate as fatal.
type TenantRepository interface {
	Create(ctx context.Context, t domain.Tenant) (domain.Tenant, error)
	FindByID(ctx context.Context, id string) (domain.Tenant, error)
	// FindBySubdomain looks a tenant up by routing key. A non-empty status
	// restricts the match to tenants in that lifecycle state.
	FindBySubdomain(ctx context.Context, subdomain string, status domain.TenantStatus) (domain.Tenant, error)
	UpdateStatus(ctx context.Context, id string, status domain.TenantStatus) (domain.Tenant, error)
	SoftDelete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, limit int) ([]domain.Tenant, error)
}

// SchemaSwitcher redirects subsequent storage operations of one request to a
// tenant's namespace. Only invoked for tenants with schema isolation; the
// storage engine decides what "namespace" means. Use records the namespace on
// the returned context and must not touch shared connection state, so the
// redirect stays scoped to the one request that resolved it.
type SchemaSwitcher interface {
	Use(ctx context.Context, schemaName string) (context.Context, error)
}
