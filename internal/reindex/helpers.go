package reindex

import (
	"github.com/casekit/exposer/internal/extract"
)

// defaultPriority fills the priority gap when neither the metadata mappings
// nor the payload carry one.
const defaultPriority = "HIGH"

// DirectFallbacks extracts the legacy well-known values written even when the
// metadata mappings miss them: the order total and the nested priority. They
// only ever fill columns the resolved mappings left empty.
func DirectFallbacks(doc *extract.Document) map[string]any {
	out := map[string]any{}
	if doc == nil {
		return out
	}
	if total, ok := doc.Extract("$.total"); ok {
		if number, isNumber := total.(float64); isNumber {
			out["total"] = number
		}
	}
	priority := defaultPriority
	if value, ok := doc.Extract("$.meta.priority"); ok {
		if text, isText := value.(string); isText && text != "" {
			priority = text
		}
	}
	out["priority"] = priority

	if requestedBy, ok := doc.Extract("$.startUserId"); ok {
		if text, isText := requestedBy.(string); isText && text != "" {
			out["requested_by"] = text
		}
	}
	return out
}
