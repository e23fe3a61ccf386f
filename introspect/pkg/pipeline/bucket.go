package pipeline

import (
	"time"

	"github.com/brookdb/brook/introspect/pkg/event"
)

// Bucketer rounds raw event times up to the next reporting boundary so
// output changes are batched coarser than raw event arrival.
//
// The boundary is always strictly greater than the input's bucket floor:
// an input exactly on a boundary is pushed one full bucket further. This
// keeps output times monotonically increasing and never equal to the time
// of input receipt, at the cost of reporting each event between one and
// two granularity periods late.
type Bucketer struct {
	granularityMs uint64
}

func NewBucketer(granularityNs uint64) Bucketer {
	g := granularityNs / 1_000_000
	if g < 1 {
		g = 1
	}
	return Bucketer{granularityMs: g}
}

// GranularityMs returns the effective granularity in milliseconds.
func (b Bucketer) GranularityMs() uint64 { return b.granularityMs }

// Bucket maps a raw elapsed time to its reporting boundary.
func (b Bucketer) Bucket(elapsed time.Duration) event.LogicalTime {
	ms := uint64(elapsed.Milliseconds())
	return event.LogicalTime((ms/b.granularityMs + 1) * b.granularityMs)
}
