package models

import "time"

// Expose request lifecycle states. FAILED is terminal; retries need a new row.
const (
	RequestStatusPending = "PENDING"
	RequestStatusDone    = "DONE"
	RequestStatusFailed  = "FAILED"
)

// ExposeRequest is one queued instruction to (re)project a case into its
// relational tables.
type ExposeRequest struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CaseInstanceID string `gorm:"column:case_instance_id;type:text;not null;index"` // Case to project.
	EntityType     string `gorm:"column:entity_type;type:text"`                     // Optional entity type hint.
	RequestedBy    string `gorm:"column:requested_by;type:text"`                    // Requesting principal.

	RequestedAt time.Time  `gorm:"not null;autoCreateTime"`                          // Enqueue timestamp.
	Status      string     `gorm:"type:text;not null;default:PENDING;index"`         // PENDING, DONE or FAILED.
	ProcessedAt *time.Time `gorm:"column:processed_at"`                              // Set on DONE/FAILED.
}

// TableName overrides the default table name.
func (ExposeRequest) TableName() string {
	return "sys_expose_requests"
}
