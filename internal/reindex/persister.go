package reindex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/casekit/exposer/internal/dialect"
	"github.com/casekit/exposer/internal/extract"
	"github.com/casekit/exposer/internal/schema"
)

// Persister writes assembled rows into the dynamically-shaped work tables,
// creating missing tables and columns on the way. Rows are keyed by
// case_instance_id; the synthetic id column only gives each physical row a
// primary key, is assigned on first insert and never rewritten by updates.
type Persister struct {
	conn    *gorm.DB
	adapter *dialect.Adapter
	schema  *schema.Manager
}

// NewPersister constructs a persister over the shared connection.
func NewPersister(conn *gorm.DB, adapter *dialect.Adapter, schemaManager *schema.Manager) *Persister {
	if conn == nil || adapter == nil || schemaManager == nil {
		return nil
	}
	return &Persister{conn: conn, adapter: adapter, schema: schemaManager}
}

// UpsertRow writes one row into the logical table, inserting or updating by
// case_instance_id. The table is created with the default work shape when
// missing and widened column by column to fit the row. A statement failing on
// an unknown column is retried once after re-checking the schema.
func (p *Persister) UpsertRow(ctx context.Context, logicalTable string, row *extract.Row, typeHints map[string]string) error {
	if p == nil {
		return errors.New("reindex: persister not initialized")
	}
	if strings.TrimSpace(logicalTable) == "" {
		return errors.New("reindex: empty table name")
	}
	if row == nil || row.Len() == 0 {
		return nil
	}

	if !p.schema.TableExists(ctx, logicalTable) {
		if errCreate := p.schema.CreateDefaultWorkTable(ctx, logicalTable); errCreate != nil {
			return fmt.Errorf("reindex: ensure table %s: %w", logicalTable, errCreate)
		}
	}
	if errColumns := p.schema.EnsureColumnsPresent(ctx, logicalTable, row.Map(), typeHints); errColumns != nil {
		return errColumns
	}

	row.PutIfAbsent(dialect.SyntheticIDColumn, uuid.NewString())
	actual := p.schema.ResolveActualTableName(logicalTable)

	errExec := p.execUpsert(ctx, actual, row)
	if errExec != nil && isUnknownColumnErr(errExec) {
		log.WithError(errExec).Warnf("reindex: upsert into %s hit a missing column, re-checking schema", logicalTable)
		if errColumns := p.schema.EnsureColumnsPresent(ctx, logicalTable, row.Map(), typeHints); errColumns != nil {
			return errColumns
		}
		errExec = p.execUpsert(ctx, actual, row)
	}
	if errExec != nil {
		return fmt.Errorf("reindex: upsert into %s: %w", logicalTable, errExec)
	}
	return nil
}

func (p *Persister) execUpsert(ctx context.Context, table string, row *extract.Row) error {
	columns := dialect.UpsertColumnOrder(row.Columns())
	statement := p.adapter.BuildUpsertSQL(table, columns)
	if statement == dialect.SelectUpdateInsertSentinel {
		return p.adapter.ApplyFallbackUpsert(ctx, table, columns, row.Values(columns))
	}
	return p.conn.WithContext(ctx).Exec(statement, row.Values(columns)...).Error
}

// isUnknownColumnErr classifies failures worth a schema re-check.
func isUnknownColumnErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "unknown column") ||
		(strings.Contains(msg, "column") && strings.Contains(msg, "does not exist"))
}
