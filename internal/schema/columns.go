package schema

import "slices"

// TableColumns is the ordered column list of the persisted table. Values are
// immutable: widening returns a new list, and existing entries never move.
type TableColumns struct {
	names []string
}

// NewTableColumns builds a column list, dropping repeated names.
func NewTableColumns(names ...string) TableColumns {
	var c TableColumns
	return c.appendNew(names)
}

// Names returns a copy of the column names in table order.
func (c TableColumns) Names() []string {
	return slices.Clone(c.names)
}

// Len returns the number of columns.
func (c TableColumns) Len() int { return len(c.names) }

// Contains reports whether the table has the column.
func (c TableColumns) Contains(name string) bool {
	return slices.Contains(c.names, name)
}

// appendNew returns a list extended with every name not already present.
func (c TableColumns) appendNew(names []string) TableColumns {
	out := slices.Clip(slices.Clone(c.names))
	for _, n := range names {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return TableColumns{names: out}
}

// Missing returns the schema columns absent from the table, in schema order.
func Missing(s *Schema, cols TableColumns) []string {
	var missing []string
	for _, c := range s.cols {
		if !cols.Contains(c.Name) {
			missing = append(missing, c.Name)
		}
	}
	return missing
}
