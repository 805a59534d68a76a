package models

import "time"

// CaseRecord is one append-only snapshot of a case payload. Upstream lifecycle
// events insert rows; this service only reads the latest row per case.
type CaseRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CaseInstanceID string `gorm:"column:case_instance_id;type:text;not null;index"` // Stable case identifier.
	EntityType     string `gorm:"column:entity_type;type:text;index"`               // Logical payload class or entity type.

	Payload string `gorm:"type:text"` // Serialized JSON document.

	CreatedAt    time.Time `gorm:"not null;autoCreateTime;index"` // Snapshot timestamp.
	Version      int       `gorm:"not null;default:1"`            // Monotonic per-case version.
	Status       string    `gorm:"type:text"`                     // Upstream processing status.
	ErrorMessage string    `gorm:"column:error_message;type:text"`
}

// TableName overrides the default table name.
func (CaseRecord) TableName() string {
	return "sys_case_data_store"
}
