package reindex

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/casekit/exposer/internal/extract"
	"github.com/casekit/exposer/internal/metadata"
)

// IndexProcessor projects payload sub-structures into auxiliary index tables.
// One definition can yield many rows: lists expand element by element, maps
// entry by entry. A failing row is logged and skipped so one bad element
// cannot sink the rest of the projection.
type IndexProcessor struct {
	persister *Persister
}

// NewIndexProcessor constructs an index processor over the persister.
func NewIndexProcessor(persister *Persister) *IndexProcessor {
	if persister == nil {
		return nil
	}
	return &IndexProcessor{persister: persister}
}

// Process applies one index definition to the document: locate the root
// value, expand it into per-row sub-documents, project each through the
// definition's mappings and upsert the result into the index table.
func (ip *IndexProcessor) Process(ctx context.Context, doc *extract.Document, def *metadata.IndexDefinition, caseInstanceID string, createdAt time.Time) error {
	if ip == nil || doc == nil || def == nil || def.Table == "" {
		return nil
	}

	basePath := strings.TrimSpace(def.JSONPath)
	if basePath == "" {
		basePath = "$"
	}

	value, found := ip.locateRoot(doc, def, basePath)
	if !found {
		log.Debugf("reindex: index %s found nothing at %s", def.Table, basePath)
		return nil
	}

	rows := expandIndexRoot(value, basePath, def)
	hints := indexTypeHints(def)
	for i, sub := range rows {
		row := ip.buildIndexRow(sub, def, caseInstanceID, createdAt)
		if row == nil {
			continue
		}
		if errUpsert := ip.persister.UpsertRow(ctx, def.Table, row, hints); errUpsert != nil {
			log.WithError(errUpsert).Warnf("reindex: index %s row %d failed", def.Table, i)
		}
	}
	return nil
}

// locateRoot finds the value the index expands: the configured path first,
// then objects tagged with the definition's class anywhere in the document.
func (ip *IndexProcessor) locateRoot(doc *extract.Document, def *metadata.IndexDefinition, basePath string) (any, bool) {
	if basePath == "$" {
		if doc.Parsed() != nil {
			return doc.Parsed(), true
		}
		return nil, false
	}
	if value, ok := doc.Extract(basePath); ok {
		return value, true
	}
	if def.Class != "" {
		if tagged := doc.FindByClass(def.Class); len(tagged) > 0 {
			out := make([]any, len(tagged))
			for i, obj := range tagged {
				out[i] = obj
			}
			return out, true
		}
	}
	return nil, false
}

// expandIndexRoot turns the located value into the list of per-row
// sub-documents. Lists expand per element. A map at the document root expands
// into {_key,_value} entries only when the mappings actually reference those
// pseudo-fields, otherwise it projects as a single row; a map below the root
// always expands. Scalars project as one row over the containing value.
func expandIndexRoot(value any, basePath string, def *metadata.IndexDefinition) []any {
	switch typed := value.(type) {
	case []any:
		return typed
	case map[string]any:
		atRoot := basePath == "$"
		if atRoot && !mappingsUseEntryFields(def) {
			return []any{typed}
		}
		var out []any
		for key, entry := range typed {
			if strings.HasPrefix(key, "@") {
				continue
			}
			out = append(out, map[string]any{"_key": key, "_value": entry})
		}
		return out
	default:
		return []any{value}
	}
}

// mappingsUseEntryFields reports whether any index mapping reads the map-entry
// pseudo-fields.
func mappingsUseEntryFields(def *metadata.IndexDefinition) bool {
	for _, fm := range def.Mappings {
		if strings.Contains(fm.JSONPath, "_key") || strings.Contains(fm.JSONPath, "_value") {
			return true
		}
	}
	return false
}

// buildIndexRow projects one sub-document through the definition's mappings.
// A sub-document yielding no mapped column is dropped instead of being
// upserted as a bookkeeping-only row: index rows share the case key, so
// writing the empty projection would clobber a sibling element's
// plain_payload and timestamps with a fragment that answers no query.
func (ip *IndexProcessor) buildIndexRow(sub any, def *metadata.IndexDefinition, caseInstanceID string, createdAt time.Time) *extract.Row {
	encoded, errMarshal := json.Marshal(sub)
	if errMarshal != nil {
		log.WithError(errMarshal).Warnf("reindex: index %s element not serializable", def.Table)
		return nil
	}
	subDoc := extract.NewDocument(string(encoded))

	row := extract.NewRow()
	row.Put(extract.ColumnCaseInstanceID, caseInstanceID)
	extracted := 0
	for _, fm := range def.Mappings {
		if fm.PlainColumn == "" {
			continue
		}
		value, ok := subDoc.ExtractWithFallbacks(fm.PlainColumn, fm.JSONPath, createdAt)
		if !ok || extract.IsEmpty(value) {
			continue
		}
		if complexValue, isComplex := value.(map[string]any); isComplex {
			if nested, errNested := json.Marshal(complexValue); errNested == nil {
				value = string(nested)
			}
		} else if listValue, isList := value.([]any); isList {
			if nested, errNested := json.Marshal(listValue); errNested == nil {
				value = string(nested)
			}
		}
		row.Put(fm.PlainColumn, value)
		extracted++
	}
	if extracted == 0 {
		return nil
	}
	row.PutIfAbsent(extract.ColumnPlainPayload, string(encoded))
	if !createdAt.IsZero() {
		row.PutIfAbsent(extract.ColumnCreatedAt, createdAt)
	}
	return row
}

// indexTypeHints collects declared column types keyed by plain column.
func indexTypeHints(def *metadata.IndexDefinition) map[string]string {
	hints := map[string]string{}
	for _, fm := range def.Mappings {
		if fm.PlainColumn != "" && fm.Type != "" {
			hints[fm.PlainColumn] = fm.Type
		}
	}
	return hints
}
