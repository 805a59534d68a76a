package extract

import "strings"

// likelyNameVariants are tried, in order and case-insensitively, when a
// segment looks like a display-name lookup that missed.
var likelyNameVariants = []string{
	"name", "fullName", "full_name", "displayName", "display_name",
	"fullname", "Name", "rootName", "root_name",
}

// Candidates expands one configured path into the ordered list of path
// expressions to try. The ordering is part of the contract: documents with
// repeated key names depend on the fixed trial order, so do not "improve" it.
func Candidates(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	add := func(candidate string) {
		if candidate == "" {
			return
		}
		if _, dup := seen[candidate]; dup {
			return
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}

	add(path)

	// Map-entry pseudo-fields configured as "$_key"/"$_value" get both the
	// dotted and the bracket-quoted spelling.
	if strings.HasPrefix(path, "$_") {
		field := path[1:]
		add("$." + field)
		add("$['" + field + "']")
	}

	// A variant that tunnels through a map-entry "_value" wrapper.
	if strings.HasPrefix(path, "$.") && !strings.HasPrefix(path, "$._value") {
		add("$._value." + path[2:])
	}

	// Bracket path built segment by segment from the dotted form.
	if bracket := toBracketPath(path); bracket != "" {
		add(bracket)
	}

	// Deepest-leaf recursive search for nested paths.
	segments := dottedSegments(path)
	if len(segments) > 1 {
		leaf := segments[len(segments)-1]
		if leaf != "" && !strings.ContainsAny(leaf, "[()]") {
			add("$.." + leaf)
		}
	}

	// Rule-like structures are notorious for moving around; try the known
	// deep-search spellings when the path mentions them.
	lower := strings.ToLower(path)
	if strings.Contains(lower, "rule") || strings.Contains(lower, "discount") {
		add("$..rules")
		add("$..rule")
		add("$..discount")
	}

	return out
}

// toBracketPath rewrites "$.a.b" as "$['a']['b']". Paths already carrying
// brackets or filters are returned empty.
func toBracketPath(path string) string {
	if !strings.HasPrefix(path, "$.") || strings.ContainsAny(path, "[(") {
		return ""
	}
	segments := strings.Split(path[2:], ".")
	var b strings.Builder
	b.WriteString("$")
	for _, segment := range segments {
		if segment == "" {
			return ""
		}
		b.WriteString("['")
		b.WriteString(segment)
		b.WriteString("']")
	}
	return b.String()
}

// dottedSegments splits a path into its dotted segments, ignoring the root.
func dottedSegments(path string) []string {
	trimmed := strings.TrimPrefix(path, "$")
	trimmed = strings.TrimPrefix(trimmed, ".")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, ".")
}
