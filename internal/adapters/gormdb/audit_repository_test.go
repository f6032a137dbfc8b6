package gormdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
)

func auditEntry(auditID, userID, event string, createdAt time.Time) domain.AuditRecord {
	return domain.AuditRecord{
		AuditID:     auditID,
		UserID:      userID,
		TenantID:    "t1",
		Event:       event,
		SubjectType: "invoices",
		SubjectID:   "inv-1",
		NewValues:   domain.Snapshot{"status": "draft"},
		Tags:        []string{"billing"},
		CreatedAt:   createdAt,
	}
}

func TestAuditRecordsRejectUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	db, wdb := openTestDB(t)

	repo := NewAuditLogRepository(db)
	stored, err := repo.Insert(ctx, auditEntry("a-1", "user-7", domain.EventCreated, time.Now().UTC()))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if stored.ID == 0 {
		t.Fatalf("expected assigned row id")
	}

	err = db.WriteTX(ctx, func(tx *Tx) error {
		return tx.Model(&auditRecordModel{}).
			Where("id = ?", stored.ID).
			Update("event", "tampered").Error
	})
	if !errors.Is(err, domain.ErrAuditImmutable) {
		t.Fatalf("expected ErrAuditImmutable on update, got %v", err)
	}

	err = db.WriteTX(ctx, func(tx *Tx) error {
		return tx.Where("id = ?", stored.ID).Delete(&auditRecordModel{}).Error
	})
	if !errors.Is(err, domain.ErrAuditImmutable) {
		t.Fatalf("expected ErrAuditImmutable on delete, got %v", err)
	}

	assertTableCount(t, ctx, wdb, "audit_records", 1)

	trail, err := repo.HistoryFor(ctx, "t1", "invoices", "inv-1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(trail) != 1 || trail[0].Event != domain.EventCreated {
		t.Fatalf("stored entry changed: %+v", trail)
	}
}

func TestAuditInsertQueuesOutboxRow(t *testing.T) {
	ctx := context.Background()
	db, wdb := openTestDB(t)

	repo := NewAuditLogRepository(db)
	if _, err := repo.Insert(ctx, auditEntry("a-1", "user-7", domain.EventCreated, time.Now().UTC())); err != nil {
		t.Fatalf("insert: %v", err)
	}

	assertTableCount(t, ctx, wdb, "audit_outbox", 1)

	var topic, status string
	row := wdb.QueryRowContext(ctx, "SELECT topic, status FROM audit_outbox WHERE audit_id = ?", "a-1")
	if err := row.Scan(&topic, &status); err != nil {
		t.Fatalf("read outbox row: %v", err)
	}
	if topic != "audit.t1.created" {
		t.Fatalf("unexpected topic: %s", topic)
	}
	if status != "pending" {
		t.Fatalf("unexpected status: %s", status)
	}
}

func TestAuditListFiltersAndKeyset(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)

	repo := NewAuditLogRepository(db)
	now := time.Now().UTC()

	seeds := []domain.AuditRecord{
		auditEntry("a-1", "user-7", domain.EventCreated, now.Add(-3*time.Hour)),
		auditEntry("a-2", "user-7", domain.EventUpdated, now.Add(-2*time.Hour)),
		auditEntry("a-3", "user-9", domain.EventUpdated, now.Add(-time.Hour)),
	}
	seeds[2].TenantID = "t2"
	seeds[2].Tags = []string{"inventory"}
	for _, s := range seeds {
		if _, err := repo.Insert(ctx, s); err != nil {
			t.Fatalf("seed %s: %v", s.AuditID, err)
		}
	}

	byTenant, err := repo.List(ctx, domain.AuditFilter{TenantID: "t1", Limit: 10})
	if err != nil {
		t.Fatalf("list by tenant: %v", err)
	}
	if len(byTenant) != 2 {
		t.Fatalf("expected 2 entries for t1, got %d", len(byTenant))
	}
	if byTenant[0].AuditID != "a-2" || byTenant[1].AuditID != "a-1" {
		t.Fatalf("expected newest first, got %s, %s", byTenant[0].AuditID, byTenant[1].AuditID)
	}

	byEvent, err := repo.List(ctx, domain.AuditFilter{Event: domain.EventUpdated, Limit: 10})
	if err != nil {
		t.Fatalf("list by event: %v", err)
	}
	if len(byEvent) != 2 {
		t.Fatalf("expected 2 updated entries, got %d", len(byEvent))
	}

	byTag, err := repo.List(ctx, domain.AuditFilter{Tag: "inventory", Limit: 10})
	if err != nil {
		t.Fatalf("list by tag: %v", err)
	}
	if len(byTag) != 1 || byTag[0].AuditID != "a-3" {
		t.Fatalf("expected only a-3 tagged inventory, got %v", byTag)
	}

	page, err := repo.List(ctx, domain.AuditFilter{TenantID: "t1", AfterID: byTenant[0].ID, Limit: 10})
	if err != nil {
		t.Fatalf("list keyset page: %v", err)
	}
	if len(page) != 1 || page[0].AuditID != "a-1" {
		t.Fatalf("expected page [a-1], got %v", page)
	}
}

func TestAuditStatsAggregatesWindow(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)

	repo := NewAuditLogRepository(db)
	now := time.Now().UTC()

	seeds := []domain.AuditRecord{
		auditEntry("a-1", "user-7", domain.EventCreated, now.Add(-time.Hour)),
		auditEntry("a-2", "user-7", domain.EventUpdated, now.Add(-time.Hour)),
		auditEntry("a-3", "user-9", domain.EventUpdated, now.Add(-time.Hour)),
		auditEntry("a-4", "user-7", domain.EventDeleted, now.Add(-72*time.Hour)),
	}
	for _, s := range seeds {
		if _, err := repo.Insert(ctx, s); err != nil {
			t.Fatalf("seed %s: %v", s.AuditID, err)
		}
	}

	stats, err := repo.Stats(ctx, "t1", now.Add(-24*time.Hour), now, 10)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalEvents != 3 {
		t.Fatalf("expected 3 events in window, got %d", stats.TotalEvents)
	}
	if stats.ByEvent[domain.EventUpdated] != 2 || stats.ByEvent[domain.EventCreated] != 1 {
		t.Fatalf("unexpected event buckets: %v", stats.ByEvent)
	}
	if stats.BySubjectType["invoices"] != 3 {
		t.Fatalf("unexpected subject buckets: %v", stats.BySubjectType)
	}
	if len(stats.TopUsers) != 2 || stats.TopUsers[0].UserID != "user-7" || stats.TopUsers[0].Count != 2 {
		t.Fatalf("unexpected top users: %v", stats.TopUsers)
	}
}

func TestPurgeOlderThanRemovesOnlyAgedRows(t *testing.T) {
	ctx := context.Background()
	db, wdb := openTestDB(t)

	repo := NewAuditLogRepository(db)
	now := time.Now().UTC()

	ages := map[string]time.Duration{
		"a-1": 10 * 24 * time.Hour,
		"a-2": 400 * 24 * time.Hour,
		"a-3": 900 * 24 * time.Hour,
	}
	for id, age := range ages {
		if _, err := repo.Insert(ctx, auditEntry(id, "user-7", domain.EventCreated, now.Add(-age))); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	removed, err := repo.PurgeOlderThan(ctx, now.Add(-365*24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 rows purged, got %d", removed)
	}

	assertTableCount(t, ctx, wdb, "audit_records", 1)

	remaining, err := repo.List(ctx, domain.AuditFilter{Limit: 10})
	if err != nil {
		t.Fatalf("list after purge: %v", err)
	}
	if len(remaining) != 1 || remaining[0].AuditID != "a-1" {
		t.Fatalf("expected only a-1 to survive, got %v", remaining)
	}
}

func TestHistoryForScopedToTenant(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)

	repo := NewAuditLogRepository(db)
	now := time.Now().UTC()

	// Record ids repeat across tenants, so the same subject exists twice.
	for i, tenantID := range []string{"tenant-a", "tenant-b"} {
		rec := auditEntry("a-"+tenantID, "user-7", domain.EventUpdated, now.Add(time.Duration(i)*time.Second))
		rec.TenantID = tenantID
		rec.SubjectID = "42"
		if _, err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("insert for %s: %v", tenantID, err)
		}
	}

	trail, err := repo.HistoryFor(ctx, "tenant-a", "invoices", "42", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(trail) != 1 {
		t.Fatalf("expected 1 entry for tenant-a, got %d", len(trail))
	}
	if trail[0].TenantID != "tenant-a" {
		t.Fatalf("foreign tenant's record returned: %+v", trail[0])
	}

	// The unscoped read stays available for privileged compliance surfaces.
	all, err := repo.HistoryFor(ctx, "", "invoices", "42", 10)
	if err != nil {
		t.Fatalf("unscoped history: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries unscoped, got %d", len(all))
	}
}
