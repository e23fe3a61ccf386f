package relation

import "strings"

// Row is a flat sequence of datums. Rows are value types; callers must not
// mutate a row after handing it to an arrangement.
type Row []Datum

// Project returns the row restricted to the given column indexes, in the
// given order.
func (r Row) Project(cols []int) Row {
	out := make(Row, len(cols))
	for i, c := range cols {
		out[i] = r[c]
	}
	return out
}

// Key returns the row's prefix-free binary encoding as a string, suitable
// as a map key.
func (r Row) Key() string {
	b := make([]byte, 0, 16*len(r))
	for _, d := range r {
		b = d.appendKey(b)
	}
	return string(b)
}

// Equal reports datum-wise equality.
func (r Row) Equal(o Row) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if !r[i].equal(o[i]) {
			return false
		}
	}
	return true
}

// String renders the row for human-readable output.
func (r Row) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, d := range r {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.String())
	}
	sb.WriteByte(')')
	return sb.String()
}
