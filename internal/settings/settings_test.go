package settings

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/casekit/exposer/internal/models"
)

func TestIntValueParsing(t *testing.T) {
	StoreDBConfig(time.Now(), map[string]json.RawMessage{
		"bare":    json.RawMessage(`7`),
		"float":   json.RawMessage(`2.6`),
		"quoted":  json.RawMessage(`"12"`),
		"wrapped": json.RawMessage(`{"value": 9}`),
		"junk":    json.RawMessage(`"not a number"`),
	})
	t.Cleanup(func() { StoreDBConfig(time.Time{}, nil) })

	cases := []struct {
		key  string
		want int
	}{
		{"bare", 7},
		{"float", 3},
		{"quoted", 12},
		{"wrapped", 9},
		{"junk", 42},
		{"absent", 42},
	}
	for _, tc := range cases {
		if got := IntValue(tc.key, 42); got != tc.want {
			t.Fatalf("IntValue(%s) = %d want %d", tc.key, got, tc.want)
		}
	}
}

func TestRefreshDBConfigSnapshot(t *testing.T) {
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Setting{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	row := models.Setting{Key: WorkerPollIntervalSecondsKey, Value: datatypes.JSON(`5`)}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed: %v", errCreate)
	}
	t.Cleanup(func() { StoreDBConfig(time.Time{}, nil) })

	if errRefresh := RefreshDBConfigSnapshot(context.Background(), conn); errRefresh != nil {
		t.Fatalf("refresh: %v", errRefresh)
	}
	if got := IntValue(WorkerPollIntervalSecondsKey, DefaultWorkerPollIntervalSeconds); got != 5 {
		t.Fatalf("refreshed value = %d", got)
	}
}
