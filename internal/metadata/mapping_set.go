package metadata

// MappingSet is an insertion-ordered column→FieldMapping map. Re-putting an
// existing key overwrites the value but keeps the original position.
type MappingSet struct {
	keys   []string
	values map[string]FieldMapping
}

// NewMappingSet returns an empty mapping set.
func NewMappingSet() *MappingSet {
	return &MappingSet{values: map[string]FieldMapping{}}
}

// Put inserts or overwrites a mapping under key.
func (s *MappingSet) Put(key string, m FieldMapping) {
	if key == "" {
		return
	}
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = m
}

// Remove deletes a mapping; it reports whether the key existed.
func (s *MappingSet) Remove(key string) bool {
	if _, ok := s.values[key]; !ok {
		return false
	}
	delete(s.values, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the mapping stored under key.
func (s *MappingSet) Get(key string) (FieldMapping, bool) {
	m, ok := s.values[key]
	return m, ok
}

// Keys returns the keys in insertion order.
func (s *MappingSet) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of mappings.
func (s *MappingSet) Len() int {
	return len(s.values)
}
