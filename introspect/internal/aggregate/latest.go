// Package aggregate turns raw demux samples into the counter-style output
// relations: latest-value snapshots for connector metrics, and a monotonic
// occurrence histogram for peek durations.
package aggregate

import (
	"github.com/brookdb/brook/introspect/pkg/event"
	"github.com/brookdb/brook/introspect/pkg/relation"
)

// Latest maintains the most recently observed row per natural key. Each
// sample retracts the prior displayed row (if any) and inserts the new one,
// so the relation always shows exactly one row per key.
type Latest struct {
	keyCols []int
	current map[string]relation.Row
}

func NewLatest(keyCols []int) *Latest {
	return &Latest{
		keyCols: keyCols,
		current: make(map[string]relation.Row),
	}
}

// Observe appends the sample's retract/insert pair to out and returns it.
func (l *Latest) Observe(row relation.Row, t event.LogicalTime, out []relation.Update) []relation.Update {
	k := row.Project(l.keyCols).Key()
	if prev, ok := l.current[k]; ok {
		out = append(out, relation.Update{Row: prev, Time: t, Diff: -1})
	}
	l.current[k] = row
	return append(out, relation.Update{Row: row, Time: t, Diff: 1})
}

// Keys returns the number of tracked natural keys.
func (l *Latest) Keys() int { return len(l.current) }
