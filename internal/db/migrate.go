package db

import (
	"fmt"

	"github.com/casekit/exposer/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the fixed tables. The metadata-shaped plain and
// index tables are never migrated here; the schema manager creates those at
// runtime.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.CaseRecord{},
		&models.ExposeRequest{},
		&models.ClassDefOverride{},
		&models.Setting{},
	)
}
