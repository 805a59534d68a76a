package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/casekit/exposer/internal/models"
	"gorm.io/gorm"
)

// OverrideStore reads admin-managed definition overrides from the database.
// Enabled overrides shadow file definitions of the same class.
type OverrideStore struct {
	db *gorm.DB
}

// NewOverrideStore constructs an override store. A nil db yields a store that
// never finds anything, which keeps the resolver usable without a database.
func NewOverrideStore(db *gorm.DB) *OverrideStore {
	return &OverrideStore{db: db}
}

// FindLatestEnabledByEntityType returns the newest enabled override whose
// entity type or class name matches, decoded into a Definition.
func (s *OverrideStore) FindLatestEnabledByEntityType(ctx context.Context, entityType string) (*Definition, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, nil
	}
	entityType = strings.TrimSpace(entityType)
	if entityType == "" {
		return nil, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var row models.ClassDefOverride
	errFind := s.db.WithContext(ctx).
		Where("enabled = ? AND (entity_type = ? OR class_name = ?)", true, entityType, entityType).
		Order("version DESC, id DESC").
		First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if errFind != nil {
		return nil, false, errFind
	}
	return decodeOverride(&row)
}

// FindLatestByClassName returns the newest override for a class regardless of
// the enabled flag, matching the parent/mixin lookup behavior.
func (s *OverrideStore) FindLatestByClassName(ctx context.Context, className string) (*Definition, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, nil
	}
	className = strings.TrimSpace(className)
	if className == "" {
		return nil, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var row models.ClassDefOverride
	errFind := s.db.WithContext(ctx).
		Where("class_name = ?", className).
		Order("version DESC, id DESC").
		First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if errFind != nil {
		return nil, false, errFind
	}
	return decodeOverride(&row)
}

func decodeOverride(row *models.ClassDefOverride) (*Definition, bool, error) {
	var def Definition
	if errUnmarshal := json.Unmarshal(row.JSONDefinition, &def); errUnmarshal != nil {
		return nil, false, errUnmarshal
	}
	if def.Class == "" {
		def.Class = row.ClassName
	}
	if def.EntityType == "" {
		def.EntityType = row.EntityType
	}
	return &def, true, nil
}
