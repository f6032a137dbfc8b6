package gormdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
	"gorm.io/gorm"
)

type tenantModel struct {
	ID                 string     `gorm:"column:id;primaryKey"`
	Name               string     `gorm:"column:name;not null"`
	Subdomain          string     `gorm:"column:subdomain;not null;uniqueIndex"`
	SchemaName         string     `gorm:"column:schema_name;not null"`
	Isolation          string     `gorm:"column:isolation;not null"`
	Status             string     `gorm:"column:status;not null"`
	SettingsJSON       string     `gorm:"column:settings_json"`
	MetadataJSON       string     `gorm:"column:metadata_json"`
	TrialEndsAt        *time.Time `gorm:"column:trial_ends_at"`
	SubscriptionEndsAt *time.Time `gorm:"column:subscription_ends_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;not null"`
	DeletedAt          *time.Time `gorm:"column:deleted_at"`
}

func (tenantModel) TableName() string {
	return "tenants"
}

type TenantRepository struct {
	db *DB
}

func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Create(ctx context.Context, t domain.Tenant) (domain.Tenant, error) {
	model := toTenantModel(t)
	err := r.db.WriteTX(ctx, func(tx *Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.Tenant{}, fmt.Errorf("%w: subdomain taken", domain.ErrInvalidTenant)
		}
		return domain.Tenant{}, fmt.Errorf("create tenant: %w", err)
	}
	return fromTenantModel(model), nil
}

func (r *TenantRepository) FindByID(ctx context.Context, id string) (domain.Tenant, error) {
	var model tenantModel
	err := r.db.ReadTX(ctx, func(tx *Tx) error {
		return tx.Where("id = ? AND deleted_at IS NULL", id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Tenant{}, domain.ErrTenantNotFound
		}
		return domain.Tenant{}, fmt.Errorf("find tenant by id: %w", err)
	}
	return fromTenantModel(model), nil
}

func (r *TenantRepository) FindBySubdomain(ctx context.Context, subdomain string, status domain.TenantStatus) (domain.Tenant, error) {
	var model tenantModel
	err := r.db.ReadTX(ctx, func(tx *Tx) error {
		query := tx.Where("subdomain = ? AND deleted_at IS NULL", subdomain)
		if status != "" {
			query = query.Where("status = ?", string(status))
		}
		return query.First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Tenant{}, domain.ErrTenantNotFound
		}
		return domain.Tenant{}, fmt.Errorf("find tenant by subdomain: %w", err)
	}
	return fromTenantModel(model), nil
}

func (r *TenantRepository) UpdateStatus(ctx context.Context, id string, status domain.TenantStatus) (domain.Tenant, error) {
	var model tenantModel
	err := r.db.WriteTX(ctx, func(tx *Tx) error {
		res := tx.Model(&tenantModel{}).
			Where("id = ? AND deleted_at IS NULL", id).
			Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return fmt.Errorf("update tenant status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrTenantNotFound
		}
		return tx.Where("id = ?", id).First(&model).Error
	})
	if err != nil {
		return domain.Tenant{}, err
	}
	return fromTenantModel(model), nil
}

func (r *TenantRepository) SoftDelete(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := r.db.WriteTX(ctx, func(tx *Tx) error {
		now := time.Now().UTC()
		res := tx.Model(&tenantModel{}).
			Where("id = ? AND deleted_at IS NULL", id).
			Updates(map[string]any{"deleted_at": &now, "status": string(domain.TenantInactive), "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("soft delete tenant: %w", res.Error)
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (r *TenantRepository) List(ctx context.Context, limit int) ([]domain.Tenant, error) {
	var models []tenantModel
	err := r.db.ReadTX(ctx, func(tx *Tx) error {
		return tx.Where("deleted_at IS NULL").
			Order("subdomain ASC").
			Limit(limit).
			Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	result := make([]domain.Tenant, 0, len(models))
	for _, model := range models {
		result = append(result, fromTenantModel(model))
	}
	return result, nil
}

func toTenantModel(t domain.Tenant) tenantModel {
	return tenantModel{
		ID:                 t.ID,
		Name:               t.Name,
		Subdomain:          t.Subdomain,
		SchemaName:         t.SchemaName,
		Isolation:          string(t.Isolation),
		Status:             string(t.Status),
		SettingsJSON:       string(t.Settings),
		MetadataJSON:       string(t.Metadata),
		TrialEndsAt:        t.TrialEndsAt,
		SubscriptionEndsAt: t.SubscriptionEndsAt,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
		DeletedAt:          t.DeletedAt,
	}
}

func fromTenantModel(model tenantModel) domain.Tenant {
	return domain.Tenant{
		ID:                 model.ID,
		Name:               model.Name,
		Subdomain:          model.Subdomain,
		SchemaName:         model.SchemaName,
		Isolation:          domain.IsolationMode(model.Isolation),
		Status:             domain.TenantStatus(model.Status),
		Settings:           rawOrNil(model.SettingsJSON),
		Metadata:           rawOrNil(model.MetadataJSON),
		TrialEndsAt:        model.TrialEndsAt,
		SubscriptionEndsAt: model.SubscriptionEndsAt,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
		DeletedAt:          model.DeletedAt,
	}
}

func rawOrNil(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}
