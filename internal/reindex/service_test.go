package reindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/casekit/exposer/internal/db"
	"github.com/casekit/exposer/internal/dialect"
	"github.com/casekit/exposer/internal/metadata"
	"github.com/casekit/exposer/internal/models"
	"github.com/casekit/exposer/internal/schema"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newTestService(t *testing.T, metadataDir string) (*Service, *gorm.DB) {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	files, errLoad := metadata.LoadResources(metadataDir)
	if errLoad != nil {
		t.Fatalf("load resources: %v", errLoad)
	}
	indexes, errIndexes := metadata.LoadIndexes(metadataDir)
	if errIndexes != nil {
		t.Fatalf("load indexes: %v", errIndexes)
	}
	engine := metadata.NewEngine(metadata.NewOverrideStore(conn), files)
	resolver := metadata.NewResolver(engine)
	annotator := metadata.NewAnnotator(engine)

	adapter := dialect.New(conn)
	persister := NewPersister(conn, adapter, schema.NewManager(conn, adapter, 4))
	service := NewService(conn, resolver, annotator, indexes, persister)
	if service == nil {
		t.Fatalf("nil service")
	}
	return service, conn
}

func orderMetadataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "classes", "order.json"), `{
		"class": "Order",
		"tableName": "case_plain_order",
		"fields": [
			{"name": "meta", "className": "Meta"},
			{"name": "customer", "className": "Customer"}
		],
		"mappings": [
			{"column": "order_total", "jsonPath": "$.total", "type": "DECIMAL"},
			{"column": "order_priority", "jsonPath": "$.meta.priority"},
			{"column": "customer_id", "jsonPath": "$.customer.id"}
		]
	}`)
	writeFile(t, filepath.Join(dir, "classes", "meta.json"),
		`{"class":"Meta","mappings":[{"column":"unused","jsonPath":"$.x"}]}`)
	writeFile(t, filepath.Join(dir, "classes", "customer.json"),
		`{"class":"Customer","mappings":[{"column":"unused","jsonPath":"$.x"}]}`)
	return dir
}

func seedCase(t *testing.T, conn *gorm.DB, caseID, entityType, payload string) {
	t.Helper()
	record := models.CaseRecord{
		CaseInstanceID: caseID,
		EntityType:     entityType,
		Payload:        payload,
	}
	if errCreate := conn.Create(&record).Error; errCreate != nil {
		t.Fatalf("seed case: %v", errCreate)
	}
}

func TestReindexOrderScenario(t *testing.T) {
	service, conn := newTestService(t, orderMetadataDir(t))
	ctx := context.Background()

	seedCase(t, conn, "case-1", "Order",
		`{"@class":"Order","total":314.15,"meta":{"@class":"Meta","priority":"HIGH"},"customer":{"@class":"Customer","id":"C-1"}}`)

	if errReindex := service.Reindex(ctx, "case-1", ""); errReindex != nil {
		t.Fatalf("reindex: %v", errReindex)
	}

	var row struct {
		OrderTotal    float64 `gorm:"column:order_total"`
		OrderPriority string  `gorm:"column:order_priority"`
		CustomerID    string  `gorm:"column:customer_id"`
	}
	errRow := conn.Raw(
		"SELECT order_total, order_priority, customer_id FROM case_plain_order WHERE case_instance_id = ?",
		"case-1",
	).Scan(&row).Error
	if errRow != nil {
		t.Fatalf("read plain row: %v", errRow)
	}
	if row.OrderTotal != 314.15 || row.OrderPriority != "HIGH" || row.CustomerID != "C-1" {
		t.Fatalf("plain row = %+v", row)
	}
}

func TestReindexIdempotentRerun(t *testing.T) {
	service, conn := newTestService(t, orderMetadataDir(t))
	ctx := context.Background()

	seedCase(t, conn, "case-1", "Order", `{"total": 10.5}`)
	if errFirst := service.Reindex(ctx, "case-1", ""); errFirst != nil {
		t.Fatalf("first reindex: %v", errFirst)
	}
	var firstID string
	if errID := conn.Raw(
		"SELECT id FROM case_plain_order WHERE case_instance_id = ?", "case-1",
	).Scan(&firstID).Error; errID != nil {
		t.Fatalf("read id: %v", errID)
	}
	if firstID == "" {
		t.Fatalf("synthetic id missing after first run")
	}

	if errSecond := service.Reindex(ctx, "case-1", ""); errSecond != nil {
		t.Fatalf("second reindex: %v", errSecond)
	}

	var count int64
	if errCount := conn.Raw("SELECT COUNT(*) FROM case_plain_order").Scan(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("re-run must not duplicate rows, got %d", count)
	}
	var secondID string
	if errID := conn.Raw(
		"SELECT id FROM case_plain_order WHERE case_instance_id = ?", "case-1",
	).Scan(&secondID).Error; errID != nil {
		t.Fatalf("re-read id: %v", errID)
	}
	if secondID != firstID {
		t.Fatalf("synthetic id changed on re-run: %q then %q", firstID, secondID)
	}
}

func TestReindexLatestSnapshotWins(t *testing.T) {
	service, conn := newTestService(t, orderMetadataDir(t))
	ctx := context.Background()

	earlier := time.Now().Add(-time.Hour)
	first := models.CaseRecord{CaseInstanceID: "case-1", EntityType: "Order", Payload: `{"total": 1.0}`, CreatedAt: earlier}
	if errCreate := conn.Create(&first).Error; errCreate != nil {
		t.Fatalf("seed first: %v", errCreate)
	}
	seedCase(t, conn, "case-1", "Order", `{"total": 99.5}`)

	if errReindex := service.Reindex(ctx, "case-1", ""); errReindex != nil {
		t.Fatalf("reindex: %v", errReindex)
	}
	var total float64
	if errRow := conn.Raw(
		"SELECT order_total FROM case_plain_order WHERE case_instance_id = ?", "case-1",
	).Scan(&total).Error; errRow != nil {
		t.Fatalf("read: %v", errRow)
	}
	if total != 99.5 {
		t.Fatalf("latest snapshot must win, got %v", total)
	}
}

func TestReindexMissingAndMalformedAreSilent(t *testing.T) {
	service, conn := newTestService(t, orderMetadataDir(t))
	ctx := context.Background()

	if errMissing := service.Reindex(ctx, "nope", ""); errMissing != nil {
		t.Fatalf("missing record must be a no-op: %v", errMissing)
	}

	seedCase(t, conn, "case-bad", "Order", `{broken`)
	if errMalformed := service.Reindex(ctx, "case-bad", ""); errMalformed != nil {
		t.Fatalf("malformed payload must be a no-op: %v", errMalformed)
	}
	var count int64
	if errCount := conn.Raw(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='case_plain_order'",
	).Scan(&count).Error; errCount != nil {
		t.Fatalf("sqlite_master: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("no row may be written for missing or malformed input")
	}
}

func TestReindexAnnotatesUntaggedPayload(t *testing.T) {
	service, conn := newTestService(t, orderMetadataDir(t))
	ctx := context.Background()

	// No @class tags anywhere; annotation plus field definitions must still
	// let the nested priority resolve.
	seedCase(t, conn, "case-2", "orderProcess",
		`{"total": 20.0, "meta": {"priority": "LOW"}, "customer": {"id": "C-9"}}`)

	if errReindex := service.Reindex(ctx, "case-2", ""); errReindex != nil {
		t.Fatalf("reindex: %v", errReindex)
	}
	var row struct {
		OrderPriority string `gorm:"column:order_priority"`
		CustomerID    string `gorm:"column:customer_id"`
	}
	if errRow := conn.Raw(
		"SELECT order_priority, customer_id FROM case_plain_order WHERE case_instance_id = ?", "case-2",
	).Scan(&row).Error; errRow != nil {
		t.Fatalf("read: %v", errRow)
	}
	if row.OrderPriority != "LOW" || row.CustomerID != "C-9" {
		t.Fatalf("annotated row = %+v", row)
	}
}

func TestReindexDynamicColumnType(t *testing.T) {
	service, conn := newTestService(t, orderMetadataDir(t))
	ctx := context.Background()

	seedCase(t, conn, "case-3", "Order", `{"total": 7.25}`)
	if errReindex := service.Reindex(ctx, "case-3", ""); errReindex != nil {
		t.Fatalf("reindex: %v", errReindex)
	}

	var columnType string
	if errType := conn.Raw(
		"SELECT type FROM pragma_table_info('case_plain_order') WHERE name = 'order_total'",
	).Scan(&columnType).Error; errType != nil {
		t.Fatalf("pragma: %v", errType)
	}
	if columnType != "DECIMAL(19,4)" {
		t.Fatalf("DECIMAL hint must widen to DECIMAL(19,4), got %q", columnType)
	}
}
