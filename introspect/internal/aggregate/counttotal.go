package aggregate

import (
	"github.com/brookdb/brook/introspect/pkg/event"
	"github.com/brookdb/brook/introspect/pkg/relation"
)

// CountTotal maintains a monotonically increasing occurrence count per key.
// The visible row is the key's datums followed by the running count; each
// observation retracts the prior count row and inserts the incremented one.
// Counts are never decremented.
type CountTotal struct {
	counts map[string]int64
}

func NewCountTotal() *CountTotal {
	return &CountTotal{counts: make(map[string]int64)}
}

// Observe appends the count transition for the given key row to out and
// returns it.
func (c *CountTotal) Observe(key relation.Row, t event.LogicalTime, out []relation.Update) []relation.Update {
	k := key.Key()
	n := c.counts[k]
	if n > 0 {
		out = append(out, relation.Update{Row: countRow(key, n), Time: t, Diff: -1})
	}
	c.counts[k] = n + 1
	return append(out, relation.Update{Row: countRow(key, n + 1), Time: t, Diff: 1})
}

func countRow(key relation.Row, n int64) relation.Row {
	row := make(relation.Row, 0, len(key)+1)
	row = append(row, key...)
	return append(row, relation.Int64(n))
}
