package domain

import (
	"encoding/json"
	"errors"
	"regexp"
	"time"
)

var (
	ErrInvalidKey      = errors.New("invalid key")
	ErrInvalidCategory = errors.New("invalid category")
	ErrNotFound        = errors.New("not found")
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9._:/-]+$`)

func ValidateKey(key string) error {
	if key == "" || !keyPattern.MatchString(key) {
		return ErrInvalidKey
	}
	return nil
}

func ValidateCategory(category string) error {
	if category == "" || !keyPattern.MatchString(category) {
		return ErrInvalidCategory
	}
	return nil
}

// Record is a tenant-scoped JSON document in a named collection. Records are
// the observed entities of the audit trail: every create, update, and delete
// produces exactly one audit record.
type Record struct {
	TenantID   string
	Collection string
	ID         string
	Data       json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r Record) Validate() error {
	if err := ValidateKey(r.TenantID); err != nil {
		return err
	}
	if err := ValidateCategory(r.Collection); err != nil {
		return err
	}
	if err := ValidateKey(r.ID); err != nil {
		return err
	}
	if !json.Valid(r.Data) {
		return errors.New("data must be valid json")
	}
	return nil
}

// Snapshot decodes the record's document into an attribute map for auditing.
// Non-object documents fold into a single "value" attribute.
func (r Record) Snapshot() Snapshot {
	if len(r.Data) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(r.Data, &m); err == nil {
		return Snapshot(m)
	}
	var v any
	if err := json.Unmarshal(r.Data, &v); err != nil {
		return nil
	}
	return Snapshot{"value": v}
}

// RecordListFilter narrows a record listing within one collection.
type RecordListFilter struct {
	Prefix string
	After  string
	Limit  int
}

func (f RecordListFilter) Validate() error {
	if f.Prefix != "" && !keyPattern.MatchString(f.Prefix) {
		return ErrInvalidKey
	}
	if f.After != "" {
		if err := ValidateKey(f.After); err != nil {
			return err
		}
	}
	return nil
}
