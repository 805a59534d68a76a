package extract

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// ClassKey is the type-discriminator key injected by the annotator.
const ClassKey = "@class"

// Document wraps one annotated JSON payload for repeated path extraction:
// the raw text feeds gjson, the parsed tree feeds the manual walker.
type Document struct {
	raw    string
	parsed any
}

// NewDocument parses the payload best-effort; a malformed document still
// supports raw-text extraction.
func NewDocument(raw string) *Document {
	doc := &Document{raw: raw}
	var parsed any
	if errUnmarshal := json.Unmarshal([]byte(raw), &parsed); errUnmarshal == nil {
		doc.parsed = parsed
	}
	return doc
}

// Raw returns the original annotated JSON text.
func (d *Document) Raw() string {
	return d.raw
}

// Parsed returns the parsed object tree, nil when the payload is malformed.
func (d *Document) Parsed() any {
	return d.parsed
}

// Extract resolves a configured path against the document, generating the
// full candidate list and trying each against the raw text first, then the
// parsed tree. The boolean reports whether a non-empty value was found.
func (d *Document) Extract(path string) (any, bool) {
	if d == nil || strings.TrimSpace(path) == "" {
		return nil, false
	}
	for _, candidate := range Candidates(path) {
		if value, ok := d.tryRaw(candidate); ok {
			return value, true
		}
	}
	for _, candidate := range Candidates(path) {
		if value, ok := d.tryParsed(candidate); ok {
			return value, true
		}
	}
	return nil, false
}

// tryRaw evaluates one candidate with gjson. Candidates using recursive
// descent have no gjson form and are left to the tree walker.
func (d *Document) tryRaw(candidate string) (any, bool) {
	gpath, ok := toGJSONPath(candidate)
	if !ok {
		return nil, false
	}
	result := gjson.Get(d.raw, gpath)
	if !result.Exists() {
		return nil, false
	}
	value := result.Value()
	if IsEmpty(value) {
		return nil, false
	}
	return value, true
}

// toGJSONPath translates a JsonPath-style expression into gjson syntax.
// Recursive descent ("..") cannot be expressed and reports false.
func toGJSONPath(path string) (string, bool) {
	p := strings.TrimSpace(path)
	if strings.Contains(p, "..") {
		return "", false
	}
	p = strings.TrimPrefix(p, "$")
	var b strings.Builder
	i := 0
	for i < len(p) {
		c := p[i]
		switch c {
		case '[', '(':
			close := byte(']')
			if c == '(' {
				close = ')'
			}
			end := strings.IndexByte(p[i:], close)
			if end < 0 {
				return "", false
			}
			segment := p[i+1 : i+end]
			segment = strings.Trim(segment, `'"`)
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(segment)
			i += end + 1
		case '.':
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			i++
			start := i
			for i < len(p) && p[i] != '.' && p[i] != '[' && p[i] != '(' {
				i++
			}
			b.WriteString(p[start:i])
		default:
			start := i
			for i < len(p) && p[i] != '.' && p[i] != '[' && p[i] != '(' {
				i++
			}
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(p[start:i])
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "", false
	}
	return out, true
}

// IsEmpty reports whether a value counts as effectively absent: nil, an empty
// collection or map, or the literal empty-container strings.
func IsEmpty(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case []any:
		return len(typed) == 0
	case map[string]any:
		return len(typed) == 0
	case string:
		trimmed := strings.TrimSpace(typed)
		return trimmed == "[]" || trimmed == "{}"
	default:
		return false
	}
}

// FindByClass collects every nested object tagged with the class name, in
// document order, including the root when it matches.
func (d *Document) FindByClass(class string) []map[string]any {
	if d == nil || d.parsed == nil || class == "" {
		return nil
	}
	var out []map[string]any
	var walk func(node any)
	walk = func(node any) {
		switch typed := node.(type) {
		case map[string]any:
			if tag, ok := typed[ClassKey].(string); ok && strings.EqualFold(tag, class) {
				out = append(out, typed)
			}
			for _, child := range typed {
				walk(child)
			}
		case []any:
			for _, child := range typed {
				walk(child)
			}
		}
	}
	walk(d.parsed)
	return out
}
