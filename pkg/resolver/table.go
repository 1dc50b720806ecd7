package resolver

// Row is one input record, column name to value. Upstream readers trim
// string values, so an absent column and an empty string both mean "no
// value".
type Row map[string]string

// Table is an in-memory batch of rows.
type Table []Row

// Get returns the value of a column, or "" when the column is absent.
func (r Row) Get(column string) string {
	return r[column]
}

// Has reports whether the row carries a non-empty value for the column.
func (r Row) Has(column string) bool {
	return r[column] != ""
}

// hasColumn reports whether any row in the table carries the column at all,
// the closest analogue of a column existing in a tabular source.
func (t Table) hasColumn(column string) bool {
	for _, row := range t {
		if _, ok := row[column]; ok {
			return true
		}
	}
	return false
}
