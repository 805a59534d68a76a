package metadata

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"
)

// Provenance kinds attached to merged mappings.
const (
	sourceKindDB   = "db"
	sourceKindFile = "file"
)

// Engine performs the heavy resolve-and-flatten work: candidate lookup,
// inheritance chain walk, mixin application and nested-path rebasing. It is
// stateless; caching belongs to the Resolver.
type Engine struct {
	store *OverrideStore
	files *ResourceLoader
}

// NewEngine constructs a resolve engine.
func NewEngine(store *OverrideStore, files *ResourceLoader) *Engine {
	return &Engine{store: store, files: files}
}

// ResolveResult carries a flattened mapping set plus per-class diagnostics
// recorded during the merge.
type ResolveResult struct {
	Merged      *MappingSet
	Diagnostics map[string][]string
}

// ResolveAndFlatten merges the inheritance chain and mixins of the class (or
// entity type) into a flat column→mapping set. Missing metadata is not an
// error: the result is simply empty.
func (e *Engine) ResolveAndFlatten(ctx context.Context, classOrEntityType string) ResolveResult {
	result := ResolveResult{
		Merged:      NewMappingSet(),
		Diagnostics: map[string][]string{},
	}
	candidates := BuildCandidates(classOrEntityType)
	md := e.loadDefinitionForCandidates(ctx, candidates)
	if md == nil {
		log.Debugf("metadata: no definition found for %q", classOrEntityType)
		return result
	}

	chain := e.buildInheritanceChain(ctx, md, result.Diagnostics)
	for _, def := range chain {
		e.applyMixins(ctx, def, result.Merged, chain, result.Diagnostics)
		e.applyMappings(def, result.Merged, chain, result.Diagnostics)
	}
	return result
}

// LoadDefinition returns the raw (unflattened) definition for a class or
// entity type, using the same candidate and DB-over-file rules as the merge.
func (e *Engine) LoadDefinition(ctx context.Context, classOrEntityType string) (*Definition, bool) {
	def := e.loadDefinitionForCandidates(ctx, BuildCandidates(classOrEntityType))
	return def, def != nil
}

// BuildCandidates returns the lookup candidates for a name: the name itself
// and, for process-flavored identifiers, the suffix-stripped base in original
// and capitalized form.
func BuildCandidates(classOrEntityType string) []string {
	var candidates []string
	name := strings.TrimSpace(classOrEntityType)
	if name != "" {
		candidates = append(candidates, name)
	}
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, "process") {
		base := name[:len(name)-len("process")]
		if strings.TrimSpace(base) != "" {
			if !containsString(candidates, base) {
				candidates = append(candidates, base)
			}
			cap := capitalize(base)
			if !containsString(candidates, cap) {
				candidates = append(candidates, cap)
			}
		}
	}
	return candidates
}

// loadDefinitionForCandidates prefers an enabled database override, then a
// file definition by class, then a file definition matched by entity type.
func (e *Engine) loadDefinitionForCandidates(ctx context.Context, candidates []string) *Definition {
	for _, cand := range candidates {
		def, ok, errFind := e.store.FindLatestEnabledByEntityType(ctx, cand)
		if errFind != nil {
			log.WithError(errFind).Debugf("metadata: db lookup failed for %q", cand)
			continue
		}
		if ok {
			return def
		}
	}
	for _, cand := range candidates {
		if def, ok := e.files.GetByClass(cand); ok {
			return def
		}
	}
	if def, ok := e.files.FindByEntityTypeOrClassCandidates(candidates); ok {
		return def
	}
	return nil
}

// buildInheritanceChain walks the parent chain upward and returns it in
// root-to-leaf order. A repeated class name stops the walk with a cycle
// diagnostic instead of looping.
func (e *Engine) buildInheritanceChain(ctx context.Context, md *Definition, diagnostics map[string][]string) []*Definition {
	var chain []*Definition
	seen := map[string]struct{}{}
	cur := md
	for cur != nil && cur.Class != "" {
		if _, dup := seen[cur.Class]; dup {
			break
		}
		chain = append(chain, cur)
		seen[cur.Class] = struct{}{}
		if cur.Parent == "" {
			break
		}
		if _, dup := seen[cur.Parent]; dup {
			addDiagnostic(diagnostics, md.Class,
				fmt.Sprintf("circular parent reference detected: %s (referenced by %s)", cur.Parent, cur.Class))
			break
		}
		cur = e.lookupByClass(ctx, cur.Parent)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// lookupByClass resolves a parent or mixin reference: database override
// first, then file definition.
func (e *Engine) lookupByClass(ctx context.Context, name string) *Definition {
	if def, ok, errFind := e.store.FindLatestByClassName(ctx, name); errFind == nil && ok {
		return def
	}
	if def, ok := e.files.GetByClass(name); ok {
		return def
	}
	return nil
}

func (e *Engine) applyMixins(ctx context.Context, def *Definition, merged *MappingSet, chain []*Definition, diagnostics map[string][]string) {
	if len(def.Mixins) == 0 {
		return
	}
	chainClasses := map[string]struct{}{}
	for _, d := range chain {
		if d.Class != "" {
			chainClasses[d.Class] = struct{}{}
		}
	}
	for _, mixinName := range def.Mixins {
		mixinName = strings.TrimSpace(mixinName)
		if mixinName == "" {
			continue
		}
		if _, cyclic := chainClasses[mixinName]; cyclic {
			addDiagnostic(diagnostics, def.Class,
				fmt.Sprintf("circular mixin reference detected: %s (referenced by %s)", mixinName, def.Class))
			continue
		}
		mixin, _ := e.files.GetByClass(mixinName)
		if mixin == nil {
			if dbDef, ok, errFind := e.store.FindLatestByClassName(ctx, mixinName); errFind == nil && ok {
				mixin = dbDef
			}
		}
		if mixin == nil || len(mixin.Mappings) == 0 {
			continue
		}
		for _, fm := range mixin.Mappings {
			if fm.Remove {
				removeMerged(merged, fm)
				continue
			}
			copied := fm.cloneWithProvenance(mixin, sourceKindFile)
			checkTypeConflict(def.Class, merged, copied, diagnostics)
			e.rebaseNestedJSONPath(&copied, nil)
			merged.Put(mergeKey(copied), copied)
		}
	}
}

func (e *Engine) applyMappings(def *Definition, merged *MappingSet, chain []*Definition, diagnostics map[string][]string) {
	for _, fm := range def.Mappings {
		if fm.Remove {
			removeMerged(merged, fm)
			continue
		}
		copied := fm.cloneWithProvenance(def, sourceKindFile)
		e.rebaseNestedJSONPath(&copied, chain)
		checkTypeConflict(def.Class, merged, copied, diagnostics)
		key := mergeKey(copied)
		if copied.Column == "" && key != "" && key != copied.JSONPath {
			copied.Column = key
		}
		merged.Put(key, copied)
	}
}

// rebaseNestedJSONPath prefixes a nested-class mapping's path with the nested
// class's own base path.
func (e *Engine) rebaseNestedJSONPath(fm *FieldMapping, chain []*Definition) {
	if fm.Class == "" {
		return
	}
	nested, _ := e.files.GetByClass(fm.Class)
	if nested == nil {
		for _, d := range chain {
			if d.Class == fm.Class {
				nested = d
				break
			}
		}
	}
	if nested == nil || strings.TrimSpace(nested.JSONPath) == "" {
		return
	}
	fm.JSONPath = JoinNestedJSONPath(nested.JSONPath, fm.JSONPath, fm.ArrayIndex)
}

// JoinNestedJSONPath joins a class base path with a relative mapping path.
// The relative path loses its leading "$" and "."; when arrayIndex is set and
// the relative path carries no index or filter of its own, the base gains an
// "[i]" suffix; segments join with "." unless the relative path starts with a
// bracket or parenthesis.
func JoinNestedJSONPath(base, rel string, arrayIndex *int) string {
	b := strings.TrimSpace(base)
	r := strings.TrimSpace(rel)
	r = strings.TrimPrefix(r, "$")
	r = strings.TrimPrefix(r, ".")
	if arrayIndex != nil && !strings.Contains(r, "(") && !strings.Contains(r, "[") {
		if !strings.HasSuffix(b, "]") {
			b = fmt.Sprintf("%s[%d]", b, *arrayIndex)
		}
	}
	joined := b
	if r != "" {
		if !strings.HasSuffix(joined, ".") && !strings.HasPrefix(r, "(") && !strings.HasPrefix(r, "[") && !strings.HasPrefix(r, ".") {
			joined += "."
		}
		joined += r
	}
	return joined
}

// mergeKey picks the merged-map key: column, else plainColumn, else jsonPath.
func mergeKey(fm FieldMapping) string {
	if strings.TrimSpace(fm.Column) != "" {
		return fm.Column
	}
	if strings.TrimSpace(fm.PlainColumn) != "" {
		return fm.PlainColumn
	}
	return fm.JSONPath
}

// removeMerged applies a remove tombstone: delete by column, else plainColumn.
func removeMerged(merged *MappingSet, fm FieldMapping) {
	if fm.Column != "" {
		merged.Remove(fm.Column)
		return
	}
	if fm.PlainColumn != "" {
		merged.Remove(fm.PlainColumn)
	}
}

// checkTypeConflict records a diagnostic when two merged mappings target the
// same plainColumn with different declared types.
func checkTypeConflict(class string, merged *MappingSet, incoming FieldMapping, diagnostics map[string][]string) {
	if incoming.PlainColumn == "" || incoming.Type == "" {
		return
	}
	for _, key := range merged.Keys() {
		existing, _ := merged.Get(key)
		if existing.PlainColumn != incoming.PlainColumn {
			continue
		}
		if existing.Type != "" && !strings.EqualFold(existing.Type, incoming.Type) {
			addDiagnostic(diagnostics, class,
				fmt.Sprintf("type conflict on plainColumn %s: %s (from %s) vs %s (from %s)",
					incoming.PlainColumn, existing.Type, existing.SourceClass, incoming.Type, incoming.SourceClass))
		}
	}
}

func addDiagnostic(diagnostics map[string][]string, class, msg string) {
	diagnostics[class] = append(diagnostics[class], msg)
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
