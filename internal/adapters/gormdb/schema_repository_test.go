package gormdb

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
)

func TestSchemaRepositoryRoundtrip(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)

	repo := NewSchemaRepository(db)

	stored, err := repo.Upsert(ctx, domain.CollectionSchema{
		TenantID:   "t1",
		Collection: "contacts",
		Schema:     json.RawMessage(`{"type":"object","required":["name"]}`),
		Hidden:     []string{"cost_price"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if stored.CreatedAt.IsZero() {
		t.Fatalf("expected stored timestamps")
	}

	got, err := repo.Get(ctx, "t1", "contacts")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Hidden) != 1 || got.Hidden[0] != "cost_price" {
		t.Fatalf("hidden list lost: %v", got.Hidden)
	}
	if !json.Valid(got.Schema) {
		t.Fatalf("schema corrupted: %s", got.Schema)
	}

	// Second upsert replaces, not duplicates.
	if _, err := repo.Upsert(ctx, domain.CollectionSchema{
		TenantID:   "t1",
		Collection: "contacts",
		Schema:     json.RawMessage(`{"type":"object"}`),
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err = repo.Get(ctx, "t1", "contacts")
	if err != nil {
		t.Fatalf("get after replace: %v", err)
	}
	if len(got.Hidden) != 0 {
		t.Fatalf("expected hidden list replaced, got %v", got.Hidden)
	}

	deleted, err := repo.Delete(ctx, "t1", "contacts")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Fatalf("expected deleted=true")
	}
	if _, err := repo.Get(ctx, "t1", "contacts"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	deleted, err = repo.Delete(ctx, "t1", "contacts")
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if deleted {
		t.Fatalf("expected second delete to be a no-op")
	}
}
