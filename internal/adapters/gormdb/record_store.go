package gormdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type recordModel struct {
	TenantID   string    `gorm:"column:tenant_id;primaryKey"`
	Collection string    `gorm:"column:collection;primaryKey"`
	ID         string    `gorm:"column:id;primaryKey"`
	Data       string    `gorm:"column:data;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}

func (recordModel) TableName() string {
	return "records"
}

// RecordStore persists tenant documents and writes the audit record plus its
// outbox row in the same transaction as the mutation. A mutation that did not
// durably happen is never audited, and a mutation whose audit insert fails is
// rolled back.
type RecordStore struct {
	db *DB
}

func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

func (s *RecordStore) UpsertAudited(ctx context.Context, rec domain.Record, audit domain.AuditRecord, hidden []string) (domain.Record, string, error) {
	var result domain.Record
	var event string

	err := s.db.WriteTX(ctx, func(tx *Tx) error {
		var before *recordModel
		var existing recordModel
		err := scopeRecord(tx.DB, rec.TenantID, rec.Collection, rec.ID).First(&existing).Error
		switch {
		case err == nil:
			before = &existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			before = nil
		default:
			return fmt.Errorf("load existing record: %w", err)
		}

		now := audit.CreatedAt.UTC()
		model := recordModel{
			TenantID:   rec.TenantID,
			Collection: rec.Collection,
			ID:         rec.ID,
			Data:       string(rec.Data),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "collection"}, {Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).Create(&model).Error; err != nil {
			return fmt.Errorf("upsert record: %w", err)
		}

		var after recordModel
		if err := scopeRecord(tx.DB, rec.TenantID, rec.Collection, rec.ID).First(&after).Error; err != nil {
			return fmt.Errorf("load updated record: %w", err)
		}

		// The caller composes the entry before knowing whether a prior row
		// exists; only the transaction can see that, so the created/updated
		// distinction is settled here.
		if before == nil && audit.Event == domain.EventUpdated {
			audit.Event = domain.EventCreated
		}
		if before != nil {
			audit.OldValues = recordSnapshot(before.Data).Redact(hidden)
		}
		audit.NewValues = recordSnapshot(after.Data).Redact(hidden)

		if _, err := insertAuditAndOutbox(tx.DB, audit); err != nil {
			return err
		}

		result = fromRecordModel(after)
		event = audit.Event
		return nil
	})
	if err != nil {
		return domain.Record{}, "", err
	}
	return result, event, nil
}

func (s *RecordStore) DeleteAudited(ctx context.Context, tenantID, collection, id string, audit domain.AuditRecord, hidden []string) (bool, error) {
	deleted := false

	err := s.db.WriteTX(ctx, func(tx *Tx) error {
		var before recordModel
		if err := scopeRecord(tx.DB, tenantID, collection, id).First(&before).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				deleted = false
				return nil
			}
			return fmt.Errorf("load record before delete: %w", err)
		}

		if err := scopeRecord(tx.DB, tenantID, collection, id).Delete(&recordModel{}).Error; err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		deleted = true

		audit.Event = domain.EventDeleted
		audit.OldValues = recordSnapshot(before.Data).Redact(hidden)
		audit.NewValues = nil

		if _, err := insertAuditAndOutbox(tx.DB, audit); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (s *RecordStore) Get(ctx context.Context, tenantID, collection, id string) (domain.Record, error) {
	var model recordModel
	err := s.db.ReadTX(ctx, func(tx *Tx) error {
		return scopeRecord(tx.DB, tenantID, collection, id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Record{}, domain.ErrNotFound
		}
		return domain.Record{}, fmt.Errorf("get record: %w", err)
	}
	return fromRecordModel(model), nil
}

func (s *RecordStore) List(ctx context.Context, tenantID, collection string, filter domain.RecordListFilter) ([]domain.Record, error) {
	var models []recordModel
	err := s.db.ReadTX(ctx, func(tx *Tx) error {
		query := tx.Model(&recordModel{}).
			Where("tenant_id = ? AND collection = ?", tenantID, collection)
		if filter.Prefix != "" {
			query = query.Where("id >= ? AND id < ?", filter.Prefix, filter.Prefix+"\uffff")
		}
		if filter.After != "" {
			query = query.Where("id > ?", filter.After)
		}
		return query.Order("id ASC").Limit(filter.Limit).Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	result := make([]domain.Record, 0, len(models))
	for _, model := range models {
		result = append(result, fromRecordModel(model))
	}
	return result, nil
}

func scopeRecord(tx *gorm.DB, tenantID, collection, id string) *gorm.DB {
	return tx.Where("tenant_id = ? AND collection = ? AND id = ?", tenantID, collection, id)
}

func recordSnapshot(data string) domain.Snapshot {
	return domain.Record{Data: json.RawMessage(data)}.Snapshot()
}

func fromRecordModel(model recordModel) domain.Record {
	return domain.Record{
		TenantID:   model.TenantID,
		Collection: model.Collection,
		ID:         model.ID,
		Data:       json.RawMessage(model.Data),
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}
