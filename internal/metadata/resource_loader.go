package metadata

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ResourceLoader holds the file-backed definitions discovered under the
// metadata directory. Documents under indices/ belong to the IndexLoader and
// are skipped here.
type ResourceLoader struct {
	byClass map[string]*Definition
	defs    []*Definition
}

// LoadResources walks dir for *.json definition documents. Malformed or
// invalid documents are logged and skipped, never fatal. A missing directory
// yields an empty loader.
func LoadResources(dir string) (*ResourceLoader, error) {
	loader := &ResourceLoader{byClass: map[string]*Definition{}}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return loader, nil
	}
	if _, errStat := os.Stat(dir); os.IsNotExist(errStat) {
		log.Warnf("metadata: resource dir %s does not exist", dir)
		return loader, nil
	}

	errWalk := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".json") {
			return nil
		}
		rel := filepath.ToSlash(strings.TrimPrefix(path, dir))
		if strings.Contains(rel, "/indices/") || strings.HasPrefix(rel, "indices/") {
			return nil
		}

		data, errRead := os.ReadFile(path)
		if errRead != nil {
			log.WithError(errRead).Warnf("metadata: read %s failed", path)
			return nil
		}
		var def Definition
		if errUnmarshal := json.Unmarshal(data, &def); errUnmarshal != nil {
			log.WithError(errUnmarshal).Warnf("metadata: parse %s failed", path)
			return nil
		}
		if def.Class == "" {
			def.Class = classFromReferenceDoc(data)
		}
		if !validDefinitionForPath(rel, &def) {
			log.Warnf("metadata: skipping invalid definition %s", path)
			return nil
		}
		if def.Deprecated || strings.TrimSpace(def.MigratedToModule) != "" {
			log.Debugf("metadata: skipping retired definition %s (class=%s)", path, def.Class)
			return nil
		}
		loader.add(&def)
		return nil
	})
	if errWalk != nil {
		return nil, fmt.Errorf("metadata: walk %s: %w", dir, errWalk)
	}
	log.Infof("metadata: loaded %d file definitions from %s", len(loader.defs), dir)
	return loader, nil
}

// classFromReferenceDoc pulls a class name out of a workClassReference or
// workClass field (last dot segment) for documents without an explicit class.
func classFromReferenceDoc(data []byte) string {
	var aux struct {
		WorkClassReference string `json:"workClassReference"`
		WorkClass          string `json:"workClass"`
	}
	if errUnmarshal := json.Unmarshal(data, &aux); errUnmarshal != nil {
		return ""
	}
	ref := aux.WorkClassReference
	if ref == "" {
		ref = aux.WorkClass
	}
	if idx := strings.LastIndex(ref, "."); idx >= 0 {
		ref = ref[idx+1:]
	}
	return strings.TrimSpace(ref)
}

// validDefinitionForPath applies the lightweight per-directory validation
// rules: class documents need a class plus fields or mappings; expose
// documents need a jsonPath or mappings.
func validDefinitionForPath(rel string, def *Definition) bool {
	switch {
	case strings.Contains(rel, "classes/"):
		return def.Class != "" && (len(def.Fields) > 0 || len(def.Mappings) > 0)
	case strings.Contains(rel, "exposes/"):
		return def.Class != "" && (def.JSONPath != "" || len(def.Mappings) > 0)
	default:
		return def.Class != ""
	}
}

// add registers a definition, merging with an already-loaded document of the
// same class: mappings and fields append, scalar attributes backfill.
func (l *ResourceLoader) add(def *Definition) {
	key := strings.ToLower(def.Class)
	existing, ok := l.byClass[key]
	if !ok {
		l.byClass[key] = def
		l.defs = append(l.defs, def)
		return
	}
	existing.Mappings = append(existing.Mappings, def.Mappings...)
	existing.Fields = append(existing.Fields, def.Fields...)
	if existing.TableName == "" {
		existing.TableName = def.TableName
	}
	if existing.EntityType == "" {
		existing.EntityType = def.EntityType
	}
	if existing.JSONPath == "" {
		existing.JSONPath = def.JSONPath
	}
	if existing.Parent == "" {
		existing.Parent = def.Parent
	}
	existing.Mixins = append(existing.Mixins, def.Mixins...)
}

// GetByClass looks a definition up by class name, case-insensitively.
func (l *ResourceLoader) GetByClass(name string) (*Definition, bool) {
	if l == nil {
		return nil, false
	}
	def, ok := l.byClass[strings.ToLower(strings.TrimSpace(name))]
	return def, ok
}

// FindByEntityTypeOrClassCandidates returns the first definition whose
// entityType or class matches any candidate, case-insensitively.
func (l *ResourceLoader) FindByEntityTypeOrClassCandidates(candidates []string) (*Definition, bool) {
	if l == nil {
		return nil, false
	}
	for _, cand := range candidates {
		cand = strings.TrimSpace(cand)
		if cand == "" {
			continue
		}
		for _, def := range l.defs {
			if strings.EqualFold(def.EntityType, cand) || strings.EqualFold(def.Class, cand) {
				return def, true
			}
		}
	}
	return nil, false
}

// All returns every loaded definition.
func (l *ResourceLoader) All() []*Definition {
	if l == nil {
		return nil
	}
	out := make([]*Definition, len(l.defs))
	copy(out, l.defs)
	return out
}
