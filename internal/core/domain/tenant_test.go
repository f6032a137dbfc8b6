package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func validTenant() Tenant {
	return Tenant{
		ID:        "t1",
		Name:      "Acme",
		Subdomain: "acme",
		Isolation: IsolationRowLevel,
		Status:    TenantActive,
	}
}

func TestTenantValidate(t *testing.T) {
	if err := validTenant().Validate(); err != nil {
		t.Fatalf("valid tenant rejected: %v", err)
	}

	cases := map[string]func(*Tenant){
		"empty name":          func(tn *Tenant) { tn.Name = "" },
		"uppercase subdomain": func(tn *Tenant) { tn.Subdomain = "Acme" },
		"dotted subdomain":    func(tn *Tenant) { tn.Subdomain = "a.b" },
		"leading hyphen":      func(tn *Tenant) { tn.Subdomain = "-acme" },
		"bad isolation":       func(tn *Tenant) { tn.Isolation = "per_vm" },
		"bad status":          func(tn *Tenant) { tn.Status = "zombie" },
		"schema without name": func(tn *Tenant) { tn.Isolation = IsolationSchema },
		"settings not json":   func(tn *Tenant) { tn.Settings = json.RawMessage(`{broken`) },
	}
	for name, mutate := range cases {
		tn := validTenant()
		mutate(&tn)
		if err := tn.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestTenantSubscriptionAndTrial(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	tn := validTenant()

	if !tn.HasValidSubscription(now) {
		t.Fatal("tenant without expiry must never lapse")
	}

	past := now.AddDate(0, -1, 0)
	future := now.AddDate(0, 1, 0)
	tn.SubscriptionEndsAt = &past
	if tn.HasValidSubscription(now) {
		t.Fatal("lapsed subscription reported valid")
	}
	tn.SubscriptionEndsAt = &future
	if !tn.HasValidSubscription(now) {
		t.Fatal("current subscription reported lapsed")
	}

	if tn.IsInTrial(now) {
		t.Fatal("tenant without trial end reported in trial")
	}
	tn.TrialEndsAt = &future
	if !tn.IsInTrial(now) {
		t.Fatal("tenant inside trial window not reported in trial")
	}
}

func TestTenantSettingString(t *testing.T) {
	tn := validTenant()
	tn.Settings = json.RawMessage(`{"default_locale":"lt","max_records":10}`)

	if got := tn.SettingString("default_locale"); got != "lt" {
		t.Fatalf("default_locale = %q, want lt", got)
	}
	if got := tn.SettingString("max_records"); got != "" {
		t.Fatalf("non-string setting = %q, want empty", got)
	}
	if got := tn.SettingString("missing"); got != "" {
		t.Fatalf("missing setting = %q, want empty", got)
	}
	tn.Settings = nil
	if got := tn.SettingString("default_locale"); got != "" {
		t.Fatalf("setting from nil settings = %q, want empty", got)
	}
}
