package metadata

import "encoding/json"

// Definition describes one logical class: its inheritance, mixins, projected
// field mappings and annotation hints. Definitions are immutable once loaded;
// merge results live in the resolver cache, never back in the definition.
type Definition struct {
	Class            string         `json:"class"`
	EntityType       string         `json:"entityType,omitempty"`
	Parent           string         `json:"parent,omitempty"`
	Mixins           []string       `json:"mixins,omitempty"`
	Version          int            `json:"version,omitempty"`
	Enabled          *bool          `json:"enabled,omitempty"`
	Deprecated       bool           `json:"deprecated,omitempty"`
	MigratedToModule string         `json:"migratedToModule,omitempty"`
	Description      string         `json:"description,omitempty"`
	JSONPath         string         `json:"jsonPath,omitempty"`
	TableName        string         `json:"tableName,omitempty"`
	Mappings         []FieldMapping `json:"mappings,omitempty"`
	Fields           []FieldDef     `json:"fields,omitempty"`
}

// FieldMapping projects one column out of a payload.
type FieldMapping struct {
	Column        string `json:"column,omitempty"`
	JSONPath      string `json:"jsonPath,omitempty"`
	Type          string `json:"type,omitempty"`
	Nullable      *bool  `json:"nullable,omitempty"`
	Default       any    `json:"default,omitempty"`
	Index         bool   `json:"index,omitempty"`
	Order         int    `json:"order,omitempty"`
	Remove        bool   `json:"remove,omitempty"`
	ExportToPlain *bool  `json:"exportToPlain,omitempty"`
	PlainColumn   string `json:"plainColumn,omitempty"`
	ExportDest    string `json:"exportDest,omitempty"`
	Sensitive     bool   `json:"sensitive,omitempty"`
	PIIMask       string `json:"piiMask,omitempty"`
	Class         string `json:"class,omitempty"`
	ArrayIndex    *int   `json:"arrayIndex,omitempty"`

	// Provenance, attached during merge.
	SourceClass  string `json:"sourceClass,omitempty"`
	SourceKind   string `json:"sourceKind,omitempty"`
	SourceModule string `json:"sourceModule,omitempty"`
}

// FieldDef is an annotation hint: which class a nested field (or its list/map
// elements) belongs to.
type FieldDef struct {
	Name         string `json:"name"`
	ClassName    string `json:"className,omitempty"`
	ElementClass string `json:"elementClass,omitempty"`
	IsArray      bool   `json:"isArray,omitempty"`
	IsList       bool   `json:"isList,omitempty"`
}

// UnmarshalJSON accepts the legacy aliases "type" and "elementType".
func (f *FieldDef) UnmarshalJSON(data []byte) error {
	type alias FieldDef
	aux := struct {
		*alias
		Type        string `json:"type"`
		ElementType string `json:"elementType"`
	}{alias: (*alias)(f)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if f.ClassName == "" {
		f.ClassName = aux.Type
	}
	if f.ElementClass == "" {
		f.ElementClass = aux.ElementType
	}
	return nil
}

// IndexDefinition specifies one auxiliary table derived from a payload
// sub-structure.
type IndexDefinition struct {
	Class              string       `json:"class,omitempty"`
	WorkClassReference string       `json:"workClassReference,omitempty"`
	Description        string       `json:"description,omitempty"`
	Table              string       `json:"table"`
	JSONPath           string       `json:"jsonPath,omitempty"`
	Mappings           []IndexField `json:"mappings"`
}

// IndexField is one projected column of an index table.
type IndexField struct {
	JSONPath    string `json:"jsonPath"`
	PlainColumn string `json:"plainColumn"`
	Type        string `json:"type,omitempty"`
	Nullable    *bool  `json:"nullable,omitempty"`
}

// clone returns a copy of the mapping with provenance attached.
func (m FieldMapping) cloneWithProvenance(src *Definition, kind string) FieldMapping {
	out := m
	if src != nil {
		out.SourceClass = src.Class
		out.SourceModule = src.MigratedToModule
	}
	out.SourceKind = kind
	return out
}
