package relation

import (
	"sort"
	"sync"

	"github.com/brookdb/brook/introspect/pkg/event"
)

// Update is one signed change to a relation: Diff +1 inserts a copy of the
// row at Time, -1 retracts one.
type Update struct {
	Row  Row
	Time event.LogicalTime
	Diff int64
}

// Arrangement is an incrementally maintained index over a changing multiset
// of rows, keyed by a projection onto the index columns. Updates are kept
// as per-key logs; reads fold diffs up to the requested logical time.
//
// There is no compaction: update logs grow with history. Introspection
// state lives only for the worker's lifetime, so this is bounded by the
// process lifetime rather than by a retention policy.
//
// Exactly one writer (the owning worker's pipeline) applies updates;
// query consumers read concurrently through handles.
type Arrangement struct {
	mu      sync.RWMutex
	keyCols []int
	byKey   map[string][]Update
}

func NewArrangement(keyCols []int) *Arrangement {
	return &Arrangement{
		keyCols: keyCols,
		byKey:   make(map[string][]Update),
	}
}

// KeyColumns returns a copy of the index column set.
func (a *Arrangement) KeyColumns() []int {
	out := make([]int, len(a.keyCols))
	copy(out, a.keyCols)
	return out
}

// Apply appends one update under the row's projected key.
func (a *Arrangement) Apply(u Update) {
	if u.Diff == 0 {
		return
	}
	k := u.Row.Project(a.keyCols).Key()

	a.mu.Lock()
	a.byKey[k] = append(a.byKey[k], u)
	a.mu.Unlock()
}

// RowCount is one distinct row with its net multiplicity.
type RowCount struct {
	Row   Row
	Count int64
}

// Lookup returns the rows under the given key (datums in index-column
// order) with positive net multiplicity as of time t.
func (a *Arrangement) Lookup(key Row, t event.LogicalTime) []RowCount {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return consolidate(a.byKey[key.Key()], t)
}

// ReadAt returns every row with positive net multiplicity as of time t,
// in a deterministic order.
func (a *Arrangement) ReadAt(t event.LogicalTime) []RowCount {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []RowCount
	for _, updates := range a.byKey {
		out = append(out, consolidate(updates, t)...)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Row.Key() < out[j].Row.Key()
	})
	return out
}

// consolidate folds the updates with Time <= t into net per-row counts,
// dropping rows whose count is not positive.
func consolidate(updates []Update, t event.LogicalTime) []RowCount {
	counts := make(map[string]*RowCount)
	var order []string
	for _, u := range updates {
		if u.Time > t {
			continue
		}
		k := u.Row.Key()
		rc, ok := counts[k]
		if !ok {
			rc = &RowCount{Row: u.Row}
			counts[k] = rc
			order = append(order, k)
		}
		rc.Count += u.Diff
	}
	var out []RowCount
	for _, k := range order {
		if rc := counts[k]; rc.Count > 0 {
			out = append(out, *rc)
		}
	}
	return out
}

// Handle is the read-only view of one materialized introspection relation,
// the only surface exposed to downstream query consumers.
type Handle struct {
	variant Variant
	arr     *Arrangement
}

func NewHandle(v Variant, arr *Arrangement) Handle {
	return Handle{variant: v, arr: arr}
}

func (h Handle) Variant() Variant  { return h.variant }
func (h Handle) KeyColumns() []int { return h.arr.KeyColumns() }

func (h Handle) ReadAt(t event.LogicalTime) []RowCount {
	return h.arr.ReadAt(t)
}

func (h Handle) Lookup(key Row, t event.LogicalTime) []RowCount {
	return h.arr.Lookup(key, t)
}
