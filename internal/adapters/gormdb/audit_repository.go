package gormdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
	"gorm.io/gorm"
)

type auditRecordModel struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	AuditID       string    `gorm:"column:audit_id;not null"`
	UserID        string    `gorm:"column:user_id;not null"`
	TenantID      string    `gorm:"column:tenant_id;not null"`
	Event         string    `gorm:"column:event;not null"`
	SubjectType   string    `gorm:"column:subject_type;not null"`
	SubjectID     string    `gorm:"column:subject_id;not null"`
	OldValuesJSON string    `gorm:"column:old_values_json"`
	NewValuesJSON string    `gorm:"column:new_values_json"`
	URL           string    `gorm:"column:url;not null"`
	IPAddress     string    `gorm:"column:ip_address;not null"`
	UserAgent     string    `gorm:"column:user_agent;not null"`
	RequestID     string    `gorm:"column:request_id;not null"`
	TagsJSON      string    `gorm:"column:tags_json"`
	MetadataJSON  string    `gorm:"column:metadata_json"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
}

func (auditRecordModel) TableName() string {
	return "audit_records"
}

// Updates and single-row deletes are rejected at the model level so no code
// path through gorm can rewrite history. The retention purge uses raw SQL,
// which does not pass through these hooks.
func (auditRecordModel) BeforeUpdate(*gorm.DB) error {
	return domain.ErrAuditImmutable
}

func (auditRecordModel) BeforeDelete(*gorm.DB) error {
	return domain.ErrAuditImmutable
}

type outboxEventModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	AuditID       string     `gorm:"column:audit_id;not null"`
	TenantID      string     `gorm:"column:tenant_id;not null"`
	Topic         string     `gorm:"column:topic;not null"`
	PayloadJSON   string     `gorm:"column:payload_json;not null"`
	Status        string     `gorm:"column:status;not null"`
	Attempts      int        `gorm:"column:attempts;not null"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null"`
	LastError     string     `gorm:"column:last_error;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
}

func (outboxEventModel) TableName() string {
	return "audit_outbox"
}

type AuditLogRepository struct {
	db *DB
}

func NewAuditLogRepository(db *DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Insert(ctx context.Context, rec domain.AuditRecord) (domain.AuditRecord, error) {
	var out domain.AuditRecord
	err := r.db.WriteTX(ctx, func(tx *Tx) error {
		stored, err := insertAuditAndOutbox(tx.DB, rec)
		if err != nil {
			return err
		}
		out = stored
		return nil
	})
	if err != nil {
		return domain.AuditRecord{}, err
	}
	return out, nil
}

// insertAuditAndOutbox appends the audit row and its outbox row inside the
// caller's transaction. Every audit record gets exactly one outbox row, so a
// committed entry is always eligible for fan-out.
func insertAuditAndOutbox(tx *gorm.DB, rec domain.AuditRecord) (domain.AuditRecord, error) {
	model, err := toAuditModel(rec)
	if err != nil {
		return domain.AuditRecord{}, err
	}
	if err := tx.Create(&model).Error; err != nil {
		return domain.AuditRecord{}, fmt.Errorf("insert audit record: %w", err)
	}
	rec.ID = model.ID

	payload, err := json.Marshal(rec.Envelope())
	if err != nil {
		return domain.AuditRecord{}, fmt.Errorf("marshal outbox payload: %w", err)
	}

	outbox := outboxEventModel{
		AuditID:       rec.AuditID,
		TenantID:      rec.TenantID,
		Topic:         auditTopic(rec.TenantID, rec.Event),
		PayloadJSON:   string(payload),
		Status:        "pending",
		Attempts:      0,
		NextAttemptAt: rec.CreatedAt,
		LastError:     "",
		CreatedAt:     rec.CreatedAt,
	}
	if err := tx.Create(&outbox).Error; err != nil {
		return domain.AuditRecord{}, fmt.Errorf("insert outbox event: %w", err)
	}

	return rec, nil
}

func auditTopic(tenantID, event string) string {
	if tenantID == "" {
		tenantID = "system"
	}
	return "audit." + tenantID + "." + event
}

func (r *AuditLogRepository) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error) {
	var rows []auditRecordModel
	err := r.db.ReadTX(ctx, func(tx *Tx) error {
		query := tx.Model(&auditRecordModel{})
		if filter.TenantID != "" {
			query = query.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.UserID != "" {
			query = query.Where("user_id = ?", filter.UserID)
		}
		if filter.Event != "" {
			query = query.Where("event = ?", filter.Event)
		}
		if filter.SubjectType != "" {
			query = query.Where("subject_type = ?", filter.SubjectType)
		}
		if filter.SubjectID != "" {
			query = query.Where("subject_id = ?", filter.SubjectID)
		}
		if filter.Tag != "" {
			tagged, err := json.Marshal(filter.Tag)
			if err != nil {
				return fmt.Errorf("encode tag filter: %w", err)
			}
			query = query.Where("tags_json LIKE '%' || ? || '%'", string(tagged))
		}
		if !filter.From.IsZero() {
			query = query.Where("created_at >= ?", filter.From)
		}
		if !filter.To.IsZero() {
			query = query.Where("created_at < ?", filter.To)
		}
		if filter.AfterID > 0 {
			query = query.Where("id < ?", filter.AfterID)
		}
		return query.Order("id DESC").Limit(filter.Limit).Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}

	result := make([]domain.AuditRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromAuditModel(row)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

func (r *AuditLogRepository) HistoryFor(ctx context.Context, tenantID, subjectType, subjectID string, limit int) ([]domain.AuditRecord, error) {
	var rows []auditRecordModel
	err := r.db.ReadTX(ctx, func(tx *Tx) error {
		query := tx.Model(&auditRecordModel{}).
			Where("subject_type = ? AND subject_id = ?", subjectType, subjectID)
		if tenantID != "" {
			query = query.Where("tenant_id = ?", tenantID)
		}
		return query.Order("id DESC").
			Limit(limit).
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("load audit history: %w", err)
	}

	result := make([]domain.AuditRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromAuditModel(row)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

func (r *AuditLogRepository) Stats(ctx context.Context, tenantID string, from, to time.Time, topN int) (domain.AuditStats, error) {
	stats := domain.AuditStats{
		ByEvent:       make(map[string]int64),
		BySubjectType: make(map[string]int64),
	}

	type bucket struct {
		Key   string `gorm:"column:key"`
		Count int64  `gorm:"column:count"`
	}

	err := r.db.ReadTX(ctx, func(tx *Tx) error {
		scoped := func() *gorm.DB {
			q := tx.Model(&auditRecordModel{}).
				Where("created_at >= ? AND created_at < ?", from, to)
			if tenantID != "" {
				q = q.Where("tenant_id = ?", tenantID)
			}
			return q
		}

		if err := scoped().Count(&stats.TotalEvents).Error; err != nil {
			return fmt.Errorf("count events: %w", err)
		}

		var byEvent []bucket
		if err := scoped().
			Select("event AS key, COUNT(*) AS count").
			Group("event").
			Scan(&byEvent).Error; err != nil {
			return fmt.Errorf("group by event: %w", err)
		}
		for _, b := range byEvent {
			stats.ByEvent[b.Key] = b.Count
		}

		var bySubject []bucket
		if err := scoped().
			Select("subject_type AS key, COUNT(*) AS count").
			Group("subject_type").
			Scan(&bySubject).Error; err != nil {
			return fmt.Errorf("group by subject type: %w", err)
		}
		for _, b := range bySubject {
			stats.BySubjectType[b.Key] = b.Count
		}

		var topUsers []bucket
		if err := scoped().
			Where("user_id <> ''").
			Select("user_id AS key, COUNT(*) AS count").
			Group("user_id").
			Order("count DESC").
			Limit(topN).
			Scan(&topUsers).Error; err != nil {
			return fmt.Errorf("group by user: %w", err)
		}
		for _, b := range topUsers {
			stats.TopUsers = append(stats.TopUsers, domain.UserActivity{UserID: b.Key, Count: b.Count})
		}
		return nil
	})
	if err != nil {
		return domain.AuditStats{}, err
	}
	return stats, nil
}

// PurgeOlderThan is the only sanctioned removal path. It deletes in bulk by
// age through raw SQL so the immutability hooks stay closed to everything
// else.
func (r *AuditLogRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := r.db.WriteTX(ctx, func(tx *Tx) error {
		res := tx.Exec("DELETE FROM audit_records WHERE created_at < ?", cutoff)
		if res.Error != nil {
			return fmt.Errorf("purge audit records: %w", res.Error)
		}
		removed = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func toAuditModel(rec domain.AuditRecord) (auditRecordModel, error) {
	oldJSON, err := marshalSnapshot(rec.OldValues)
	if err != nil {
		return auditRecordModel{}, fmt.Errorf("encode old values: %w", err)
	}
	newJSON, err := marshalSnapshot(rec.NewValues)
	if err != nil {
		return auditRecordModel{}, fmt.Errorf("encode new values: %w", err)
	}

	var tagsJSON string
	if len(rec.Tags) > 0 {
		b, err := json.Marshal(rec.Tags)
		if err != nil {
			return auditRecordModel{}, fmt.Errorf("encode tags: %w", err)
		}
		tagsJSON = string(b)
	}
	var metadataJSON string
	if len(rec.Metadata) > 0 {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return auditRecordModel{}, fmt.Errorf("encode metadata: %w", err)
		}
		metadataJSON = string(b)
	}

	return auditRecordModel{
		AuditID:       rec.AuditID,
		UserID:        rec.UserID,
		TenantID:      rec.TenantID,
		Event:         rec.Event,
		SubjectType:   rec.SubjectType,
		SubjectID:     rec.SubjectID,
		OldValuesJSON: oldJSON,
		NewValuesJSON: newJSON,
		URL:           rec.URL,
		IPAddress:     rec.IPAddress,
		UserAgent:     rec.UserAgent,
		RequestID:     rec.RequestID,
		TagsJSON:      tagsJSON,
		MetadataJSON:  metadataJSON,
		CreatedAt:     rec.CreatedAt,
	}, nil
}

func fromAuditModel(row auditRecordModel) (domain.AuditRecord, error) {
	oldValues, err := unmarshalSnapshot(row.OldValuesJSON)
	if err != nil {
		return domain.AuditRecord{}, fmt.Errorf("decode old values: %w", err)
	}
	newValues, err := unmarshalSnapshot(row.NewValuesJSON)
	if err != nil {
		return domain.AuditRecord{}, fmt.Errorf("decode new values: %w", err)
	}

	var tags []string
	if row.TagsJSON != "" {
		if err := json.Unmarshal([]byte(row.TagsJSON), &tags); err != nil {
			return domain.AuditRecord{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	var metadata map[string]any
	if row.MetadataJSON != "" {
		if err := json.Unmarshal([]byte(row.MetadataJSON), &metadata); err != nil {
			return domain.AuditRecord{}, fmt.Errorf("decode metadata: %w", err)
		}
	}

	return domain.AuditRecord{
		ID:          row.ID,
		AuditID:     row.AuditID,
		UserID:      row.UserID,
		TenantID:    row.TenantID,
		Event:       row.Event,
		SubjectType: row.SubjectType,
		SubjectID:   row.SubjectID,
		OldValues:   oldValues,
		NewValues:   newValues,
		URL:         row.URL,
		IPAddress:   row.IPAddress,
		UserAgent:   row.UserAgent,
		RequestID:   row.RequestID,
		Tags:        tags,
		Metadata:    metadata,
		CreatedAt:   row.CreatedAt,
	}, nil
}

func marshalSnapshot(s domain.Snapshot) (string, error) {
	if s == nil {
		return "", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalSnapshot(raw string) (domain.Snapshot, error) {
	if raw == "" {
		return nil, nil
	}
	var s domain.Snapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, err
	}
	return s, nil
}
