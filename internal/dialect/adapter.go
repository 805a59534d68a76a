package dialect

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/casekit/exposer/internal/db"
)

// UpsertKeyColumn is the unique key every projected row is keyed by.
const UpsertKeyColumn = "case_instance_id"

// SyntheticIDColumn is the generated per-row primary key. It is written on
// the insert branch only; the update branches leave the stored value alone so
// re-running a projection keeps the row byte-identical.
const SyntheticIDColumn = "id"

// SelectUpdateInsertSentinel is returned instead of SQL when the dialect has
// no race-safe single-statement upsert; the caller must run the explicit
// count-update-insert fallback.
const SelectUpdateInsertSentinel = "__SELECT_UPDATE_INSERT__"

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_$][a-zA-Z0-9_$]*$`)

// Adapter renders dialect-correct SQL for one connection. The dialect name is
// resolved once and cached for the adapter's lifetime.
type Adapter struct {
	conn *gorm.DB
	name string
}

// New constructs an adapter bound to the connection.
func New(conn *gorm.DB) *Adapter {
	if conn == nil {
		return nil
	}
	return &Adapter{conn: conn, name: db.DialectName(conn)}
}

// Name returns the cached dialect name.
func (a *Adapter) Name() string {
	if a == nil {
		return ""
	}
	return a.name
}

// IsSQLite reports whether the target dialect is SQLite.
func (a *Adapter) IsSQLite() bool { return a.Name() == db.DialectSQLite }

// IsPostgres reports whether the target dialect is PostgreSQL.
func (a *Adapter) IsPostgres() bool { return a.Name() == db.DialectPostgres }

// IsMySQL reports whether the target dialect is MySQL/MariaDB.
func (a *Adapter) IsMySQL() bool { return a.Name() == db.DialectMySQL }

// IsValidIdentifier reports whether id is a safe unquoted SQL identifier.
func IsValidIdentifier(id string) bool {
	return strings.TrimSpace(id) != "" && identifierPattern.MatchString(id)
}

// SafeQuote quotes an identifier when it does not match the safe pattern.
func (a *Adapter) SafeQuote(id string) string {
	if id == "" {
		return ""
	}
	if IsValidIdentifier(id) {
		return id
	}
	if a.IsMySQL() {
		return "`" + id + "`"
	}
	return `"` + id + `"`
}

// LargeTextType returns the dialect's unbounded text column type.
func (a *Adapter) LargeTextType() string {
	if a.IsMySQL() {
		return "LONGTEXT"
	}
	return "TEXT"
}

// TimestampDefaultNow returns the column clause for a current-timestamp default.
func (a *Adapter) TimestampDefaultNow() string {
	return "TIMESTAMP DEFAULT CURRENT_TIMESTAMP"
}

// BuildUpsertSQL renders the upsert statement for the ordered column list.
// Without the case_instance_id key the statement degrades to a plain INSERT;
// on SQLite the sentinel is returned and the caller runs ApplyFallbackUpsert.
func (a *Adapter) BuildUpsertSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	hasKey := false
	for i, col := range columns {
		quoted[i] = a.SafeQuote(col)
		placeholders[i] = "?"
		if strings.EqualFold(col, UpsertKeyColumn) {
			hasKey = true
		}
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		a.SafeQuote(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if !hasKey {
		return insert
	}

	switch {
	case a.IsPostgres():
		assignments := a.updateAssignments(columns, "EXCLUDED.%s")
		if len(assignments) == 0 {
			return insert + fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", UpsertKeyColumn)
		}
		return insert + fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
			UpsertKeyColumn, strings.Join(assignments, ", "))
	case a.IsMySQL():
		assignments := a.updateAssignments(columns, "VALUES(%s)")
		if len(assignments) == 0 {
			assignments = []string{fmt.Sprintf("%s = %s", UpsertKeyColumn, UpsertKeyColumn)}
		}
		return insert + " ON DUPLICATE KEY UPDATE " + strings.Join(assignments, ", ")
	default:
		return SelectUpdateInsertSentinel
	}
}

// updateAssignments renders "col = <rhs>" for every column except the case
// key and the synthetic id, with the quoted column substituted into rhsFormat.
func (a *Adapter) updateAssignments(columns []string, rhsFormat string) []string {
	var out []string
	for _, col := range columns {
		if strings.EqualFold(col, UpsertKeyColumn) || strings.EqualFold(col, SyntheticIDColumn) {
			continue
		}
		quotedCol := a.SafeQuote(col)
		out = append(out, fmt.Sprintf("%s = %s", quotedCol, fmt.Sprintf(rhsFormat, quotedCol)))
	}
	return out
}

// ApplyFallbackUpsert runs the explicit count-update-insert sequence for
// dialects without a native upsert. columns and values are parallel; the key
// column must be present.
func (a *Adapter) ApplyFallbackUpsert(ctx context.Context, table string, columns []string, values []any) error {
	if a == nil || a.conn == nil {
		return errors.New("dialect: adapter not initialized")
	}
	if len(columns) != len(values) {
		return fmt.Errorf("dialect: column/value mismatch (%d vs %d)", len(columns), len(values))
	}
	keyIdx := -1
	for i, col := range columns {
		if strings.EqualFold(col, UpsertKeyColumn) {
			keyIdx = i
			break
		}
	}
	if keyIdx < 0 {
		return errors.New("dialect: fallback upsert requires " + UpsertKeyColumn)
	}
	key := values[keyIdx]

	var count int64
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", a.SafeQuote(table), UpsertKeyColumn)
	if errCount := a.conn.WithContext(ctx).Raw(countSQL, key).Scan(&count).Error; errCount != nil {
		return fmt.Errorf("dialect: fallback count: %w", errCount)
	}

	if count > 0 {
		var assignments []string
		var args []any
		for i, col := range columns {
			if i == keyIdx || strings.EqualFold(col, SyntheticIDColumn) {
				continue
			}
			assignments = append(assignments, fmt.Sprintf("%s = ?", a.SafeQuote(col)))
			args = append(args, values[i])
		}
		if len(assignments) == 0 {
			return nil
		}
		args = append(args, key)
		updateSQL := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
			a.SafeQuote(table), strings.Join(assignments, ", "), UpsertKeyColumn)
		if errUpdate := a.conn.WithContext(ctx).Exec(updateSQL, args...).Error; errUpdate != nil {
			return fmt.Errorf("dialect: fallback update: %w", errUpdate)
		}
		return nil
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = a.SafeQuote(col)
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		a.SafeQuote(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if errInsert := a.conn.WithContext(ctx).Exec(insertSQL, values...).Error; errInsert != nil {
		return fmt.Errorf("dialect: fallback insert: %w", errInsert)
	}
	return nil
}

// UpsertColumnOrder orders columns for upsert statements: the key column
// first, the rest in their given order.
func UpsertColumnOrder(columns []string) []string {
	out := make([]string, 0, len(columns))
	for _, col := range columns {
		if strings.EqualFold(col, UpsertKeyColumn) {
			out = append(out, col)
			break
		}
	}
	for _, col := range columns {
		if strings.EqualFold(col, UpsertKeyColumn) {
			continue
		}
		out = append(out, col)
	}
	return out
}
