package models

import (
	"time"

	"gorm.io/datatypes"
)

// ClassDefOverride is an admin-managed metadata definition stored in the
// database. Enabled overrides shadow file-backed definitions of the same
// class; the latest version wins.
type ClassDefOverride struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ClassName  string `gorm:"column:class_name;type:text;not null;index"`  // Definition class name.
	EntityType string `gorm:"column:entity_type;type:text;not null;index"` // Entity type the class projects.
	Version    int    `gorm:"not null;default:1"`                          // Definition version.

	JSONDefinition datatypes.JSON `gorm:"column:json_definition;not null"` // Serialized metadata definition.

	Enabled   bool      `gorm:"not null;default:true;index"` // Disabled overrides are ignored.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// TableName overrides the default table name.
func (ClassDefOverride) TableName() string {
	return "sys_expose_class_def"
}
