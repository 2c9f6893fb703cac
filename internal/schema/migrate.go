package schema

// AddColumn widens the persisted table by one column.
type AddColumn struct {
	Column string
	Type   Type
}

// Reconcile returns the operations that add the missing columns, and the
// column list as it will be once they are applied. Added columns are always
// TEXT at the storage level; the schema's BLOB tag only applies on create.
func Reconcile(cols TableColumns, missing []string) ([]AddColumn, TableColumns) {
	if len(missing) == 0 {
		return nil, cols
	}

	ops := make([]AddColumn, 0, len(missing))
	seen := make(map[string]bool, len(missing))
	for _, name := range missing {
		if seen[name] || cols.Contains(name) {
			continue
		}
		seen[name] = true
		ops = append(ops, AddColumn{Column: name, Type: Text})
	}
	return ops, cols.appendNew(missing)
}
