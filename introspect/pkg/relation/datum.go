// Package relation implements the pipeline's output side: flat datum rows,
// changing multisets of rows with signed multiplicities, and incrementally
// maintained arrangements indexed by a column projection and readable as of
// a logical time.
package relation

import (
	"encoding/binary"
	"strconv"
)

// DatumKind tags the scalar type of a Datum.
type DatumKind uint8

const (
	KindNull DatumKind = iota
	KindInt64
	KindString
)

// Datum is one column value: null, int64, or string.
type Datum struct {
	kind DatumKind
	n    int64
	s    string
}

func Null() Datum           { return Datum{kind: KindNull} }
func Int64(v int64) Datum   { return Datum{kind: KindInt64, n: v} }
func String(s string) Datum { return Datum{kind: KindString, s: s} }

// NullableString maps nil to a null datum, matching the engine's treatment
// of optional text columns.
func NullableString(s *string) Datum {
	if s == nil {
		return Null()
	}
	return String(*s)
}

func (d Datum) Kind() DatumKind { return d.kind }
func (d Datum) IsNull() bool    { return d.kind == KindNull }
func (d Datum) Int64() int64    { return d.n }
func (d Datum) Str() string     { return d.s }

// String renders the datum for human-readable output.
func (d Datum) String() string {
	switch d.kind {
	case KindNull:
		return "null"
	case KindInt64:
		return strconv.FormatInt(d.n, 10)
	default:
		return d.s
	}
}

func (d Datum) equal(o Datum) bool {
	return d.kind == o.kind && d.n == o.n && d.s == o.s
}

// appendKey appends a prefix-free binary encoding of the datum: a kind tag,
// then a fixed-width value or a length-prefixed string. Distinct datum
// sequences never share an encoding.
func (d Datum) appendKey(b []byte) []byte {
	b = append(b, byte(d.kind))
	switch d.kind {
	case KindInt64:
		b = binary.BigEndian.AppendUint64(b, uint64(d.n))
	case KindString:
		b = binary.BigEndian.AppendUint32(b, uint32(len(d.s)))
		b = append(b, d.s...)
	}
	return b
}
