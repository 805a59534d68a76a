package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/casekit/exposer/internal/dialect"
)

const catalogAcquireTimeout = 2 * time.Second

// Manager discovers and evolves the metadata-shaped tables at runtime. It
// only ever adds tables and columns, never drops or narrows them. Catalog
// answers are cached per upper-cased logical name; a weighted permit pool
// bounds concurrent introspection queries.
type Manager struct {
	conn     *gorm.DB
	adapter  *dialect.Adapter
	throttle *semaphore.Weighted

	locksMu    sync.Mutex
	tableLocks map[string]*sync.Mutex

	cacheMu         sync.RWMutex
	existingTables  map[string]struct{}
	logicalToActual map[string]string
	tableColumns    map[string]map[string]struct{}
}

// NewManager constructs a schema manager. throttleSize bounds concurrent
// catalog queries; values below one fall back to the default of 12.
func NewManager(conn *gorm.DB, adapter *dialect.Adapter, throttleSize int) *Manager {
	if conn == nil || adapter == nil {
		return nil
	}
	if throttleSize < 1 {
		throttleSize = 12
	}
	return &Manager{
		conn:            conn,
		adapter:         adapter,
		throttle:        semaphore.NewWeighted(int64(throttleSize)),
		tableLocks:      map[string]*sync.Mutex{},
		existingTables:  map[string]struct{}{},
		logicalToActual: map[string]string{},
		tableColumns:    map[string]map[string]struct{}{},
	}
}

// TableExists reports whether the table exists, case-insensitively. Catalog
// misses fall through to a cheap probe query so an unreadable catalog never
// hides an existing table.
func (m *Manager) TableExists(ctx context.Context, tableName string) bool {
	if m == nil || tableName == "" {
		return false
	}
	up := strings.ToUpper(tableName)

	m.cacheMu.RLock()
	_, cached := m.existingTables[up]
	m.cacheMu.RUnlock()
	if cached {
		return true
	}

	if actual, found := m.lookupTableInCatalog(ctx, tableName); found {
		m.rememberTable(up, actual)
		return true
	}

	probeSQL := fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", m.adapter.SafeQuote(tableName))
	var one int
	if errProbe := m.conn.WithContext(ctx).Raw(probeSQL).Scan(&one).Error; errProbe == nil {
		m.rememberTable(up, tableName)
		return true
	}
	return false
}

// lookupTableInCatalog queries the dialect's catalog under the permit pool.
func (m *Manager) lookupTableInCatalog(ctx context.Context, tableName string) (string, bool) {
	acquireCtx, cancel := context.WithTimeout(ctx, catalogAcquireTimeout)
	defer cancel()
	if errAcquire := m.throttle.Acquire(acquireCtx, 1); errAcquire != nil {
		return "", false
	}
	defer m.throttle.Release(1)

	var query string
	switch {
	case m.adapter.IsSQLite():
		query = "SELECT name FROM sqlite_master WHERE type = 'table' AND LOWER(name) = LOWER(?)"
	case m.adapter.IsMySQL():
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND LOWER(table_name) = LOWER(?)"
	default:
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND LOWER(table_name) = LOWER(?)"
	}

	var actual string
	if errQuery := m.conn.WithContext(ctx).Raw(query, tableName).Scan(&actual).Error; errQuery != nil {
		log.WithError(errQuery).Debugf("schema: catalog lookup failed for %s", tableName)
		return "", false
	}
	if actual == "" {
		return "", false
	}
	return actual, true
}

func (m *Manager) rememberTable(upLogical, actual string) {
	m.cacheMu.Lock()
	m.existingTables[upLogical] = struct{}{}
	m.logicalToActual[upLogical] = actual
	m.cacheMu.Unlock()
}

// ResolveActualTableName maps a logical name to the catalog's actual casing.
func (m *Manager) ResolveActualTableName(logicalName string) string {
	if m == nil || logicalName == "" {
		return logicalName
	}
	m.cacheMu.RLock()
	actual, ok := m.logicalToActual[strings.ToUpper(logicalName)]
	m.cacheMu.RUnlock()
	if ok {
		return actual
	}
	return logicalName
}

// ExistingColumns returns the table's column names, upper-cased, cached. The
// returned set is a snapshot copy; columns added after the call do not show
// up in it.
func (m *Manager) ExistingColumns(ctx context.Context, tableName string) map[string]struct{} {
	if m == nil || tableName == "" {
		return map[string]struct{}{}
	}
	up := strings.ToUpper(tableName)

	m.cacheMu.RLock()
	cached, ok := m.tableColumns[up]
	if ok {
		copied := copyColumnSet(cached)
		m.cacheMu.RUnlock()
		return copied
	}
	m.cacheMu.RUnlock()

	actual := m.ResolveActualTableName(tableName)
	var query string
	switch {
	case m.adapter.IsSQLite():
		query = "SELECT name FROM pragma_table_info(?)"
	case m.adapter.IsMySQL():
		query = "SELECT column_name FROM information_schema.columns WHERE table_schema = DATABASE() AND LOWER(table_name) = LOWER(?)"
	default:
		query = "SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND LOWER(table_name) = LOWER(?)"
	}

	var names []string
	if errQuery := m.conn.WithContext(ctx).Raw(query, actual).Scan(&names).Error; errQuery != nil {
		log.WithError(errQuery).Debugf("schema: column lookup failed for %s", tableName)
		return map[string]struct{}{}
	}

	cols := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name != "" {
			cols[strings.ToUpper(name)] = struct{}{}
		}
	}
	if len(cols) > 0 {
		m.cacheMu.Lock()
		m.tableColumns[up] = copyColumnSet(cols)
		m.cacheMu.Unlock()
	}
	return cols
}

func copyColumnSet(cols map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(cols))
	for col := range cols {
		out[col] = struct{}{}
	}
	return out
}

// rememberColumn records a freshly added column in the cached set, if one is
// cached for the table.
func (m *Manager) rememberColumn(upTable, upCol string) {
	m.cacheMu.Lock()
	if cols, ok := m.tableColumns[upTable]; ok {
		cols[upCol] = struct{}{}
	}
	m.cacheMu.Unlock()
}

// EnsureColumnsPresent adds any columns the row needs that the table lacks.
// Column types come from the explicit hint when present, otherwise from the
// runtime value. Unsafe identifiers are skipped with a warning. Calls are
// serialized per table name so concurrent callers cannot race the ALTERs.
func (m *Manager) EnsureColumnsPresent(ctx context.Context, tableName string, row map[string]any, typeHints map[string]string) error {
	if m == nil || tableName == "" || len(row) == 0 {
		return nil
	}
	lock := m.tableLock(tableName)
	lock.Lock()
	defer lock.Unlock()

	existing := m.ExistingColumns(ctx, tableName)
	actual := m.ResolveActualTableName(tableName)

	for col, value := range row {
		upCol := strings.ToUpper(col)
		if upCol == "ID" || upCol == strings.ToUpper(dialect.UpsertKeyColumn) {
			continue
		}
		if _, present := existing[upCol]; present {
			continue
		}
		if !dialect.IsValidIdentifier(col) {
			log.Warnf("schema: skipping unsafe column name %q on %s", col, tableName)
			continue
		}
		columnType := m.DetermineColumnType(value, typeHints[col])
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			m.adapter.SafeQuote(actual), m.adapter.SafeQuote(col), columnType)
		if errDDL := m.executeDDLAutocommit(ctx, ddl); errDDL != nil {
			if isAlreadyExistsErr(errDDL) {
				log.Debugf("schema: column %s.%s already exists", tableName, col)
			} else {
				return fmt.Errorf("schema: add column %s.%s: %w", tableName, col, errDDL)
			}
		}
		m.rememberColumn(strings.ToUpper(tableName), upCol)
	}
	return nil
}

// CreateDefaultWorkTable creates the baseline plain/index table shape if the
// table is missing: synthetic id, unique case key, large-text payload and
// bookkeeping timestamps, plus supporting indexes. Guarded per table name so
// concurrent callers cannot race duplicate CREATEs.
func (m *Manager) CreateDefaultWorkTable(ctx context.Context, tableName string) error {
	if m == nil || tableName == "" {
		return errors.New("schema: empty table name")
	}
	lock := m.tableLock(tableName)
	lock.Lock()
	defer lock.Unlock()

	if m.TableExists(ctx, tableName) {
		return nil
	}

	quotedTable := m.adapter.SafeQuote(tableName)
	createSQL := fmt.Sprintf(`CREATE TABLE %s (
	id VARCHAR(255) PRIMARY KEY,
	case_instance_id VARCHAR(255) NOT NULL UNIQUE,
	plain_payload %s,
	requested_by VARCHAR(255),
	created_at %s,
	updated_at %s
)`, quotedTable, m.adapter.LargeTextType(), m.adapter.TimestampDefaultNow(), m.adapter.TimestampDefaultNow())

	if errCreate := m.executeDDLAutocommit(ctx, createSQL); errCreate != nil {
		if !isAlreadyExistsErr(errCreate) {
			return fmt.Errorf("schema: create table %s: %w", tableName, errCreate)
		}
	}
	m.rememberTable(strings.ToUpper(tableName), tableName)

	for _, indexed := range []string{"case_instance_id", "created_at"} {
		indexName := fmt.Sprintf("idx_%s_%s", strings.ToLower(tableName), indexed)
		var indexSQL string
		if m.adapter.IsMySQL() {
			indexSQL = fmt.Sprintf("CREATE INDEX %s ON %s (%s)", m.adapter.SafeQuote(indexName), quotedTable, indexed)
		} else {
			indexSQL = fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", m.adapter.SafeQuote(indexName), quotedTable, indexed)
		}
		if errIndex := m.executeDDLAutocommit(ctx, indexSQL); errIndex != nil && !isAlreadyExistsErr(errIndex) {
			log.WithError(errIndex).Warnf("schema: create index %s failed", indexName)
		}
	}

	log.Infof("schema: created work table %s", tableName)
	return nil
}

// DetermineColumnType picks a column type from the explicit hint, else infers
// one from the runtime value.
func (m *Manager) DetermineColumnType(value any, hint string) string {
	hint = strings.TrimSpace(hint)
	if hint != "" {
		up := strings.ToUpper(hint)
		switch {
		case up == "DECIMAL":
			return "DECIMAL(19,4)"
		case up == "TEXT":
			return m.adapter.LargeTextType()
		case strings.Contains(hint, "("):
			return hint
		default:
			return up
		}
	}
	switch typed := value.(type) {
	case nil:
		return "VARCHAR(255)"
	case bool:
		return "BOOLEAN"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "BIGINT"
	case float32, float64:
		return "DECIMAL(19,4)"
	case time.Time, *time.Time:
		return "TIMESTAMP"
	case string:
		if len(typed) > 1024 {
			return m.adapter.LargeTextType()
		}
		return "VARCHAR(255)"
	default:
		if len(fmt.Sprint(typed)) > 1024 {
			return m.adapter.LargeTextType()
		}
		return "VARCHAR(255)"
	}
}

// executeDDLAutocommit runs one DDL statement on a dedicated connection from
// the pool, outside any transaction, so a failing statement cannot leave a
// half-committed schema change behind.
func (m *Manager) executeDDLAutocommit(ctx context.Context, ddl string) error {
	sqlDB, errDB := m.conn.DB()
	if errDB != nil {
		return errDB
	}
	conn, errConn := sqlDB.Conn(ctx)
	if errConn != nil {
		return errConn
	}
	defer func() {
		if errClose := conn.Close(); errClose != nil {
			log.WithError(errClose).Debug("schema: release ddl connection failed")
		}
	}()
	_, errExec := conn.ExecContext(ctx, ddl)
	return errExec
}

// tableLock returns the mutex guarding one logical table name.
func (m *Manager) tableLock(tableName string) *sync.Mutex {
	key := strings.ToUpper(tableName)
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	lock, ok := m.tableLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.tableLocks[key] = lock
	}
	return lock
}

// isAlreadyExistsErr classifies idempotent DDL failures.
func isAlreadyExistsErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "duplicate column") ||
		strings.Contains(msg, "duplicate key name")
}
