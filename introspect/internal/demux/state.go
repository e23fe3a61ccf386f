package demux

import (
	"time"

	"github.com/brookdb/brook/introspect/pkg/event"
)

type dataflowKey struct {
	ID     event.GlobalID
	Worker event.WorkerID
}

type depEdge struct {
	Source event.GlobalID
	Worker event.WorkerID
}

type peekKey struct {
	Worker event.WorkerID
	ConnID uint32
}

// State holds the cross-event correlation maps for one worker: which
// dataflows are alive (with their dependency edges, retracted on drop) and
// which peeks are in flight (with their raw install times, consumed on
// retire). The demux owns it exclusively; nothing else mutates it.
type State struct {
	activeDataflows map[dataflowKey][]depEdge
	peekStash       map[peekKey]time.Duration
}

func NewState() *State {
	return &State{
		activeDataflows: make(map[dataflowKey][]depEdge),
		peekStash:       make(map[peekKey]time.Duration),
	}
}

// ActiveDataflows returns the number of live dataflow entries.
func (s *State) ActiveDataflows() int { return len(s.activeDataflows) }

// PendingPeeks returns the number of in-flight peek entries.
func (s *State) PendingPeeks() int { return len(s.peekStash) }
