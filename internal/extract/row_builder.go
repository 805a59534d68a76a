package extract

import (
	"encoding/json"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/casekit/exposer/internal/metadata"
)

// Reserved column names the row builder always owns.
const (
	ColumnCaseInstanceID = "case_instance_id"
	ColumnPlainPayload   = "plain_payload"
	ColumnCreatedAt      = "created_at"
)

const sensitiveMask = "****"

// BuildRowValues assembles the flat row for one case: the case key, the
// metadata-resolved mappings, then legacy column→path mappings and direct
// fallback values filling only the gaps, then the payload and the creation
// timestamp. Empty extractions are omitted so existing column values survive
// the upsert.
func BuildRowValues(caseInstanceID string, doc *Document, createdAt time.Time, mappings *metadata.MappingSet, legacyMappings map[string]string, directFallbacks map[string]any) *Row {
	row := NewRow()
	row.Put(ColumnCaseInstanceID, caseInstanceID)

	if mappings != nil {
		for _, key := range mappings.Keys() {
			fm, _ := mappings.Get(key)
			if fm.ExportToPlain != nil && !*fm.ExportToPlain {
				continue
			}
			target := targetColumn(fm)
			if target == "" {
				continue
			}
			value, ok := doc.ExtractWithFallbacks(target, fm.JSONPath, createdAt)
			if !ok || IsEmpty(value) {
				if fm.Default != nil {
					row.Put(target, fm.Default)
				}
				continue
			}
			row.Put(target, normalizeValue(value, fm))
		}
	}

	for column, path := range legacyMappings {
		if row.Has(column) {
			continue
		}
		if value, ok := doc.ExtractWithFallbacks(column, path, createdAt); ok && !IsEmpty(value) {
			row.Put(column, serializeComplex(value))
		}
	}

	for column, value := range directFallbacks {
		if row.Has(column) || IsEmpty(value) {
			continue
		}
		row.Put(column, serializeComplex(value))
	}

	row.PutIfAbsent(ColumnPlainPayload, doc.Raw())
	if !createdAt.IsZero() {
		row.PutIfAbsent(ColumnCreatedAt, createdAt)
	}
	return row
}

// targetColumn picks where a mapping lands in the plain row: plainColumn
// wins over column.
func targetColumn(fm metadata.FieldMapping) string {
	if strings.TrimSpace(fm.PlainColumn) != "" {
		return fm.PlainColumn
	}
	return strings.TrimSpace(fm.Column)
}

// normalizeValue serializes complex values and masks sensitive ones.
func normalizeValue(value any, fm metadata.FieldMapping) any {
	value = serializeComplex(value)
	if fm.Sensitive {
		if _, isString := value.(string); isString {
			if fm.PIIMask != "" {
				return fm.PIIMask
			}
			return sensitiveMask
		}
	}
	return value
}

// serializeComplex turns maps and slices into their JSON text so they can
// land in a text column.
func serializeComplex(value any) any {
	switch value.(type) {
	case map[string]any, []any:
		encoded, errMarshal := json.Marshal(value)
		if errMarshal != nil {
			log.WithError(errMarshal).Warn("extract: serialize complex value failed")
			return nil
		}
		return string(encoded)
	default:
		return value
	}
}

// TypeHints collects the declared column types of a mapping set, keyed by
// target column, for schema inference.
func TypeHints(mappings *metadata.MappingSet) map[string]string {
	hints := map[string]string{}
	if mappings == nil {
		return hints
	}
	for _, key := range mappings.Keys() {
		fm, _ := mappings.Get(key)
		if fm.Type == "" {
			continue
		}
		if target := targetColumn(fm); target != "" {
			hints[target] = fm.Type
		}
	}
	return hints
}
