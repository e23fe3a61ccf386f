package demux_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brookdb/brook/introspect/internal/demux"
	"github.com/brookdb/brook/introspect/pkg/event"
)

// warnCounter counts Warn-and-above records so tests can assert that a
// malformed sequence was flagged rather than silently absorbed.
type warnCounter struct {
	n atomic.Int64
}

func (w *warnCounter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelWarn
}

func (w *warnCounter) Handle(_ context.Context, _ slog.Record) error {
	w.n.Add(1)
	return nil
}

func (w *warnCounter) WithAttrs(_ []slog.Attr) slog.Handler { return w }
func (w *warnCounter) WithGroup(_ string) slog.Handler      { return w }

func newTestDemux(t *testing.T) (*demux.Demux, *warnCounter) {
	t.Helper()
	wc := &warnCounter{}
	bucket := func(elapsed time.Duration) event.LogicalTime {
		ms := uint64(elapsed.Milliseconds())
		return event.LogicalTime((ms/10 + 1) * 10)
	}
	return demux.New(slog.New(wc), bucket), wc
}

func rec(ms int64, worker event.WorkerID, ev event.Event) event.Record {
	return event.Record{Elapsed: time.Duration(ms) * time.Millisecond, Worker: worker, Event: ev}
}

func TestIntrospect_Demux_DataflowLifecycle(t *testing.T) {
	t.Parallel()

	t.Run("create then drop balances presence and retracts dependencies", func(t *testing.T) {
		t.Parallel()
		d, wc := newTestDemux(t)
		var out demux.Outputs
		d.Process([]event.Record{
			rec(5, 0, event.Dataflow{ID: "d1", Created: true}),
			rec(7, 0, event.DataflowDependency{Dataflow: "d1", Source: "s1"}),
			rec(20, 0, event.Dataflow{ID: "d1", Created: false}),
		}, &out)

		require.Len(t, out.Dataflow, 2)
		require.Equal(t, int64(1), out.Dataflow[0].Diff)
		require.Equal(t, event.LogicalTime(10), out.Dataflow[0].Time)
		require.Equal(t, int64(-1), out.Dataflow[1].Diff)
		require.Equal(t, event.LogicalTime(30), out.Dataflow[1].Time)

		require.Len(t, out.Dependency, 2)
		require.Equal(t, int64(1), out.Dependency[0].Diff)
		require.Equal(t, event.LogicalTime(10), out.Dependency[0].Time)
		require.Equal(t, int64(-1), out.Dependency[1].Diff)
		require.Equal(t, event.GlobalID("s1"), out.Dependency[1].Source)
		require.Equal(t, event.LogicalTime(30), out.Dependency[1].Time)

		require.Equal(t, 0, d.State().ActiveDataflows())
		require.Equal(t, int64(0), wc.n.Load())
	})

	t.Run("drop without create still retracts presence but warns", func(t *testing.T) {
		t.Parallel()
		d, wc := newTestDemux(t)
		var out demux.Outputs
		d.Process([]event.Record{
			rec(1, 3, event.Dataflow{ID: "ghost", Created: false}),
		}, &out)

		require.Len(t, out.Dataflow, 1)
		require.Equal(t, int64(-1), out.Dataflow[0].Diff)
		require.Empty(t, out.Dependency)
		require.Equal(t, int64(1), wc.n.Load())
	})

	t.Run("duplicate create warns and resets the dependency list", func(t *testing.T) {
		t.Parallel()
		d, wc := newTestDemux(t)
		var out demux.Outputs
		d.Process([]event.Record{
			rec(1, 0, event.Dataflow{ID: "d1", Created: true}),
			rec(2, 0, event.DataflowDependency{Dataflow: "d1", Source: "s1"}),
			rec(3, 0, event.Dataflow{ID: "d1", Created: true}),
			rec(4, 0, event.Dataflow{ID: "d1", Created: false}),
		}, &out)

		require.Equal(t, int64(1), wc.n.Load())
		// The second create replaced the entry, so the drop retracts no
		// dependency edges.
		require.Len(t, out.Dependency, 1)
		require.Equal(t, int64(1), out.Dependency[0].Diff)
	})

	t.Run("dependency on unknown dataflow still emits the edge", func(t *testing.T) {
		t.Parallel()
		d, wc := newTestDemux(t)
		var out demux.Outputs
		d.Process([]event.Record{
			rec(1, 0, event.DataflowDependency{Dataflow: "nope", Source: "s1"}),
		}, &out)

		require.Len(t, out.Dependency, 1)
		require.Equal(t, int64(1), out.Dependency[0].Diff)
		require.Equal(t, 0, d.State().ActiveDataflows())
		require.Equal(t, int64(1), wc.n.Load())
	})

	t.Run("per-worker entries are independent", func(t *testing.T) {
		t.Parallel()
		d, wc := newTestDemux(t)
		var out demux.Outputs
		d.Process([]event.Record{
			rec(1, 0, event.Dataflow{ID: "d1", Created: true}),
			rec(1, 1, event.Dataflow{ID: "d1", Created: true}),
			rec(2, 0, event.Dataflow{ID: "d1", Created: false}),
		}, &out)

		require.Equal(t, 1, d.State().ActiveDataflows())
		require.Equal(t, int64(0), wc.n.Load())
	})
}

func TestIntrospect_Demux_PeekLifecycle(t *testing.T) {
	t.Parallel()

	peek := event.PeekID{RelationID: "v1", Time: 42, ConnID: 7}

	t.Run("install and retire emit presence pair and pow2 duration", func(t *testing.T) {
		t.Parallel()
		d, wc := newTestDemux(t)
		var out demux.Outputs
		d.Process([]event.Record{
			{Elapsed: 100 * time.Nanosecond, Worker: 1, Event: event.Peek{Peek: peek, Installed: true}},
			{Elapsed: 900 * time.Nanosecond, Worker: 1, Event: event.Peek{Peek: peek, Installed: false}},
		}, &out)

		require.Len(t, out.Peek, 2)
		require.Equal(t, int64(1), out.Peek[0].Diff)
		require.Equal(t, int64(-1), out.Peek[1].Diff)

		require.Len(t, out.PeekDuration, 1)
		require.Equal(t, event.WorkerID(1), out.PeekDuration[0].Worker)
		require.Equal(t, uint64(1024), out.PeekDuration[0].Bucket)

		require.Equal(t, 0, d.State().PendingPeeks())
		require.Equal(t, int64(0), wc.n.Load())
	})

	t.Run("retire without install emits zero rows", func(t *testing.T) {
		t.Parallel()
		d, wc := newTestDemux(t)
		var out demux.Outputs
		d.Process([]event.Record{
			rec(1, 2, event.Peek{Peek: event.PeekID{RelationID: "v1", Time: 1, ConnID: 9}, Installed: false}),
		}, &out)

		require.Empty(t, out.Peek)
		require.Empty(t, out.PeekDuration)
		require.Equal(t, int64(1), wc.n.Load())
	})

	t.Run("duplicate install warns and overwrites the start time", func(t *testing.T) {
		t.Parallel()
		d, wc := newTestDemux(t)
		var out demux.Outputs
		d.Process([]event.Record{
			{Elapsed: 100 * time.Nanosecond, Worker: 1, Event: event.Peek{Peek: peek, Installed: true}},
			{Elapsed: 500 * time.Nanosecond, Worker: 1, Event: event.Peek{Peek: peek, Installed: true}},
			{Elapsed: 900 * time.Nanosecond, Worker: 1, Event: event.Peek{Peek: peek, Installed: false}},
		}, &out)

		require.Equal(t, int64(1), wc.n.Load())
		require.Len(t, out.PeekDuration, 1)
		// Duration measures from the second install: 400ns -> 512.
		require.Equal(t, uint64(512), out.PeekDuration[0].Bucket)
	})

	t.Run("same conn id on different workers is independent", func(t *testing.T) {
		t.Parallel()
		d, wc := newTestDemux(t)
		var out demux.Outputs
		d.Process([]event.Record{
			{Elapsed: 100 * time.Nanosecond, Worker: 0, Event: event.Peek{Peek: peek, Installed: true}},
			{Elapsed: 200 * time.Nanosecond, Worker: 1, Event: event.Peek{Peek: peek, Installed: true}},
		}, &out)

		require.Equal(t, 2, d.State().PendingPeeks())
		require.Equal(t, int64(0), wc.n.Load())
	})
}

func TestIntrospect_Demux_PassThroughKinds(t *testing.T) {
	t.Parallel()

	t.Run("frontier updates carry the signed delta", func(t *testing.T) {
		t.Parallel()
		d, _ := newTestDemux(t)
		var out demux.Outputs
		d.Process([]event.Record{
			rec(2, 0, event.Frontier{RelationID: "v1", Time: 100, Delta: 1}),
			rec(3, 0, event.Frontier{RelationID: "v1", Time: 90, Delta: -1}),
		}, &out)

		require.Len(t, out.Frontier, 2)
		require.Equal(t, int64(1), out.Frontier[0].Diff)
		require.Equal(t, event.LogicalTime(100), out.Frontier[0].Frontier)
		require.Equal(t, int64(-1), out.Frontier[1].Diff)
	})

	t.Run("kafka and source samples are forwarded with bucketed times", func(t *testing.T) {
		t.Parallel()
		d, _ := newTestDemux(t)
		var out demux.Outputs
		pid := "0"
		d.Process([]event.Record{
			rec(12, 0, event.KafkaBrokerRTT{ConsumerName: "c", BrokerName: "b", Avg: 5}),
			rec(12, 0, event.KafkaConsumerPartition{ConsumerName: "c", PartitionID: "0", RxMsgs: 10}),
			rec(12, 0, event.SourceInfo{SourceName: "s", PartitionID: &pid, OffsetDelta: 3}),
		}, &out)

		require.Len(t, out.KafkaBrokerRTT, 1)
		require.Equal(t, event.LogicalTime(20), out.KafkaBrokerRTT[0].Time)
		require.Len(t, out.KafkaConsumerInfo, 1)
		require.Len(t, out.SourceInfo, 1)
	})
}

func TestIntrospect_Demux_BatchReplayIsDetectable(t *testing.T) {
	t.Parallel()

	d, wc := newTestDemux(t)
	batch := []event.Record{
		rec(1, 0, event.Dataflow{ID: "d1", Created: true}),
		{Elapsed: 2 * time.Millisecond, Worker: 0, Event: event.Peek{Peek: event.PeekID{RelationID: "v1", ConnID: 1}, Installed: true}},
	}

	var out demux.Outputs
	d.Process(batch, &out)
	require.Equal(t, int64(0), wc.n.Load())

	out.Reset()
	d.Process(batch, &out)
	// Redelivery shows up as duplicate-create and duplicate-install
	// warnings rather than silent double counting of correlation state.
	require.Equal(t, int64(2), wc.n.Load())
	require.Equal(t, 1, d.State().ActiveDataflows())
	require.Equal(t, 1, d.State().PendingPeeks())
}
