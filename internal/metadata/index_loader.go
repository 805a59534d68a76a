package metadata

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// IndexLoader holds the index-table definitions discovered under the
// indices/ subtree of the metadata directory.
type IndexLoader struct {
	byClass map[string]*IndexDefinition
	byTable map[string]*IndexDefinition
	defs    []*IndexDefinition
}

// LoadIndexes reads every *.json under dir/indices. Documents without
// mappings are skipped with a warning.
func LoadIndexes(dir string) (*IndexLoader, error) {
	loader := &IndexLoader{
		byClass: map[string]*IndexDefinition{},
		byTable: map[string]*IndexDefinition{},
	}
	root := filepath.Join(strings.TrimSpace(dir), "indices")
	if dir == "" {
		return loader, nil
	}
	if _, errStat := os.Stat(root); os.IsNotExist(errStat) {
		return loader, nil
	}

	errWalk := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".json") {
			return nil
		}
		data, errRead := os.ReadFile(path)
		if errRead != nil {
			log.WithError(errRead).Warnf("metadata: read index %s failed", path)
			return nil
		}
		var def IndexDefinition
		if errUnmarshal := json.Unmarshal(data, &def); errUnmarshal != nil {
			log.WithError(errUnmarshal).Warnf("metadata: parse index %s failed", path)
			return nil
		}
		if len(def.Mappings) == 0 {
			log.Warnf("metadata: skipping index definition without mappings: %s", path)
			return nil
		}
		loader.add(&def)
		return nil
	})
	if errWalk != nil {
		return nil, errWalk
	}
	log.Infof("metadata: loaded %d index definitions", len(loader.defs))
	return loader, nil
}

func (l *IndexLoader) add(def *IndexDefinition) {
	class := def.Class
	if class == "" && def.WorkClassReference != "" {
		ref := def.WorkClassReference
		if idx := strings.LastIndex(ref, "."); idx >= 0 {
			ref = ref[idx+1:]
		}
		class = ref
		def.Class = class
	}
	l.defs = append(l.defs, def)
	if class != "" {
		l.byClass[strings.ToLower(class)] = def
	}
	if def.Table != "" {
		l.byTable[strings.ToLower(def.Table)] = def
	}
}

// FindByClass looks an index definition up by class name, case-insensitively.
func (l *IndexLoader) FindByClass(name string) (*IndexDefinition, bool) {
	if l == nil {
		return nil, false
	}
	def, ok := l.byClass[strings.ToLower(strings.TrimSpace(name))]
	return def, ok
}

// FindByTable looks an index definition up by table name, case-insensitively.
func (l *IndexLoader) FindByTable(table string) (*IndexDefinition, bool) {
	if l == nil {
		return nil, false
	}
	def, ok := l.byTable[strings.ToLower(strings.TrimSpace(table))]
	return def, ok
}

// All returns every loaded index definition.
func (l *IndexLoader) All() []*IndexDefinition {
	if l == nil {
		return nil
	}
	out := make([]*IndexDefinition, len(l.defs))
	copy(out, l.defs)
	return out
}
