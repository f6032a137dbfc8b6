package domain

import (
	"encoding/json"
	"errors"
	"regexp"
	"time"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrTenantRequired = errors.New("tenant required")
	ErrInvalidTenant  = errors.New("invalid tenant")
)

// TenantStatus is the lifecycle state of a tenant account.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantInactive  TenantStatus = "inactive"
	TenantSuspended TenantStatus = "suspended"
)

func (s TenantStatus) Valid() bool {
	switch s {
	case TenantActive, TenantInactive, TenantSuspended:
		return true
	}
	return false
}

// IsolationMode is the data-partitioning strategy for a tenant.
type IsolationMode string

const (
	IsolationRowLevel IsolationMode = "row_level"
	IsolationSchema   IsolationMode = "schema"
	IsolationDatabase IsolationMode = "database"
)

func (m IsolationMode) Valid() bool {
	switch m {
	case IsolationRowLevel, IsolationSchema, IsolationDatabase:
		return true
	}
	return false
}

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// Tenant is an isolated customer account, the unit of data partitioning.
// The subdomain doubles as the routing key and is immutable after creation.
type Tenant struct {
	ID                 string
	Name               string
	Subdomain          string
	SchemaName         string
	Isolation          IsolationMode
	Status             TenantStatus
	Settings           json.RawMessage
	Metadata           json.RawMessage
	TrialEndsAt        *time.Time
	SubscriptionEndsAt *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          *time.Time
}

func (t Tenant) Validate() error {
	if t.Name == "" {
		return ErrInvalidTenant
	}
	if !subdomainPattern.MatchString(t.Subdomain) {
		return ErrInvalidTenant
	}
	if !t.Isolation.Valid() {
		return ErrInvalidTenant
	}
	if !t.Status.Valid() {
		return ErrInvalidTenant
	}
	if t.Isolation == IsolationSchema && t.SchemaName == "" {
		return ErrInvalidTenant
	}
	if len(t.Settings) > 0 && !json.Valid(t.Settings) {
		return ErrInvalidTenant
	}
	if len(t.Metadata) > 0 && !json.Valid(t.Metadata) {
		return ErrInvalidTenant
	}
	return nil
}

func (t Tenant) IsActive() bool {
	return t.Status == TenantActive
}

// HasValidSubscription reports whether the subscription has not lapsed.
// A tenant without an expiry set never lapses.
func (t Tenant) HasValidSubscription(now time.Time) bool {
	if t.SubscriptionEndsAt == nil {
		return true
	}
	return t.SubscriptionEndsAt.After(now)
}

func (t Tenant) IsInTrial(now time.Time) bool {
	if t.TrialEndsAt == nil {
		return false
	}
	return t.TrialEndsAt.After(now)
}

// SettingString returns a string value from the settings map, or "" when the
// key is absent or the settings are not a JSON object.
func (t Tenant) SettingString(key string) string {
	if len(t.Settings) == 0 {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(t.Settings, &m); err != nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
