package extract

// Row is an insertion-ordered column→value map; SQL generation depends on a
// stable column order.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow returns an empty row.
func NewRow() *Row {
	return &Row{values: map[string]any{}}
}

// Put sets a column value, keeping the original position on overwrite.
func (r *Row) Put(column string, value any) {
	if column == "" {
		return
	}
	if _, ok := r.values[column]; !ok {
		r.keys = append(r.keys, column)
	}
	r.values[column] = value
}

// PutIfAbsent sets a column value only when the column is not present yet.
func (r *Row) PutIfAbsent(column string, value any) {
	if column == "" {
		return
	}
	if _, ok := r.values[column]; ok {
		return
	}
	r.Put(column, value)
}

// Has reports whether the column is set.
func (r *Row) Has(column string) bool {
	_, ok := r.values[column]
	return ok
}

// Get returns the value stored under column.
func (r *Row) Get(column string) (any, bool) {
	value, ok := r.values[column]
	return value, ok
}

// Columns returns the column names in insertion order.
func (r *Row) Columns() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Values returns the values matching the given column order.
func (r *Row) Values(columns []string) []any {
	out := make([]any, len(columns))
	for i, column := range columns {
		out[i] = r.values[column]
	}
	return out
}

// Map returns a plain map copy of the row.
func (r *Row) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Len returns the number of columns.
func (r *Row) Len() int {
	return len(r.values)
}
