package extract

import (
	"strconv"
	"strings"
	"time"
)

const deepScanMaxDepth = 32

type segment struct {
	name    string
	index   int
	isIndex bool
}

// tryParsed evaluates one candidate against the parsed tree: a manual
// segment walk with case-insensitive and likely-name recovery, falling back
// to a bounded depth-first scan for a uniquely-named leaf key.
func (d *Document) tryParsed(candidate string) (any, bool) {
	if d.parsed == nil {
		return nil, false
	}

	if key, ok := strings.CutPrefix(candidate, "$.."); ok {
		if value, found := deepFindFirst(d.parsed, key, 0); found && !IsEmpty(value) {
			return value, true
		}
		return nil, false
	}

	segments, ok := parseSegments(candidate)
	if !ok || len(segments) == 0 {
		return nil, false
	}
	if value, found := walkSegments(d.parsed, segments); found && !IsEmpty(value) {
		return value, true
	}

	// Last resort: a unique occurrence of the leaf key anywhere in the tree.
	leaf := segments[len(segments)-1]
	if !leaf.isIndex {
		matches := deepFindAll(d.parsed, leaf.name, 0, 2)
		if len(matches) == 1 && !IsEmpty(matches[0]) {
			return matches[0], true
		}
	}
	return nil, false
}

// parseSegments tokenizes a path into name and index segments, accepting
// dotted names, ['quoted'] names, [n] and (n) indexes.
func parseSegments(path string) ([]segment, bool) {
	p := strings.TrimSpace(path)
	p = strings.TrimPrefix(p, "$")
	var segments []segment
	i := 0
	for i < len(p) {
		switch p[i] {
		case '.':
			i++
		case '[', '(':
			close := byte(']')
			if p[i] == '(' {
				close = ')'
			}
			end := strings.IndexByte(p[i:], close)
			if end < 0 {
				return nil, false
			}
			inner := strings.TrimSpace(p[i+1 : i+end])
			if n, errParse := strconv.Atoi(inner); errParse == nil {
				segments = append(segments, segment{index: n, isIndex: true})
			} else {
				segments = append(segments, segment{name: strings.Trim(inner, `'"`)})
			}
			i += end + 1
		default:
			start := i
			for i < len(p) && p[i] != '.' && p[i] != '[' && p[i] != '(' {
				i++
			}
			name := p[start:i]
			if name != "" {
				segments = append(segments, segment{name: name})
			}
		}
	}
	return segments, true
}

func walkSegments(node any, segments []segment) (any, bool) {
	current := node
	for _, seg := range segments {
		switch {
		case seg.isIndex:
			list, ok := current.([]any)
			if !ok || seg.index < 0 || seg.index >= len(list) {
				return nil, false
			}
			current = list[seg.index]
		default:
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, false
			}
			value, found := lookupKey(obj, seg.name)
			if !found {
				return nil, false
			}
			current = value
		}
	}
	return current, true
}

// lookupKey finds a map entry by exact, then case-insensitive match, then —
// for name-ish segments — by the fixed likely-name variant list scoped to
// this object.
func lookupKey(obj map[string]any, key string) (any, bool) {
	if value, ok := obj[key]; ok {
		return value, true
	}
	for k, value := range obj {
		if strings.EqualFold(k, key) {
			return value, true
		}
	}
	if isNameish(key) {
		for _, variant := range likelyNameVariants {
			for k, value := range obj {
				if strings.EqualFold(k, variant) {
					return value, true
				}
			}
		}
	}
	return nil, false
}

func isNameish(key string) bool {
	lower := strings.ToLower(key)
	return strings.Contains(lower, "name")
}

// deepFindFirst returns the first value stored under key anywhere in the
// tree, depth-first, bounded.
func deepFindFirst(node any, key string, depth int) (any, bool) {
	if depth > deepScanMaxDepth {
		return nil, false
	}
	switch typed := node.(type) {
	case map[string]any:
		if value, ok := lookupExact(typed, key); ok {
			return value, true
		}
		for _, child := range typed {
			if value, ok := deepFindFirst(child, key, depth+1); ok {
				return value, true
			}
		}
	case []any:
		for _, child := range typed {
			if value, ok := deepFindFirst(child, key, depth+1); ok {
				return value, true
			}
		}
	}
	return nil, false
}

// deepFindAll collects up to max values stored under key anywhere in the tree.
func deepFindAll(node any, key string, depth, max int) []any {
	if depth > deepScanMaxDepth {
		return nil
	}
	var out []any
	switch typed := node.(type) {
	case map[string]any:
		if value, ok := lookupExact(typed, key); ok {
			out = append(out, value)
			if len(out) >= max {
				return out
			}
		}
		for _, child := range typed {
			out = append(out, deepFindAll(child, key, depth+1, max-len(out))...)
			if len(out) >= max {
				return out
			}
		}
	case []any:
		for _, child := range typed {
			out = append(out, deepFindAll(child, key, depth+1, max-len(out))...)
			if len(out) >= max {
				return out
			}
		}
	}
	return out
}

func lookupExact(obj map[string]any, key string) (any, bool) {
	if value, ok := obj[key]; ok {
		return value, true
	}
	for k, value := range obj {
		if strings.EqualFold(k, key) {
			return value, true
		}
	}
	return nil, false
}

// ExtractWithFallbacks resolves a mapping's path and, when that fails,
// applies the legacy synonym fallbacks keyed on the target column name:
// requested-by columns fall back to the initiator key, create-time columns
// to createdAt/created_at or the record's own creation timestamp.
func (d *Document) ExtractWithFallbacks(column, path string, recordCreatedAt time.Time) (any, bool) {
	if value, ok := d.Extract(path); ok {
		return value, true
	}
	lower := strings.ToLower(column)
	switch {
	case strings.Contains(lower, "requested_by") || strings.Contains(lower, "requestedby"):
		if value, ok := d.Extract("$.initiator"); ok {
			return value, true
		}
	case strings.Contains(lower, "create_time") || strings.Contains(lower, "createtime"):
		if value, ok := d.Extract("$.createdAt"); ok {
			return value, true
		}
		if value, ok := d.Extract("$.created_at"); ok {
			return value, true
		}
		if !recordCreatedAt.IsZero() {
			return recordCreatedAt, true
		}
	}
	return nil, false
}
