// Package demux routes the raw introspection event stream into typed
// per-relation outputs, maintaining the cross-event correlation state that
// turns point-in-time events into insert/retract pairs.
package demux

import (
	"log/slog"
	"math/bits"
	"time"

	"github.com/brookdb/brook/introspect/internal/metrics"
	"github.com/brookdb/brook/introspect/pkg/event"
)

// DataflowUpdate is one signed change to the dataflow-presence output.
type DataflowUpdate struct {
	ID     event.GlobalID
	Worker event.WorkerID
	Time   event.LogicalTime
	Diff   int64
}

// DependencyUpdate is one signed change to the dependency-edge output.
type DependencyUpdate struct {
	Dataflow event.GlobalID
	Source   event.GlobalID
	Worker   event.WorkerID
	Time     event.LogicalTime
	Diff     int64
}

// FrontierUpdate is one signed change to a relation's frontier value.
type FrontierUpdate struct {
	Relation event.GlobalID
	Worker   event.WorkerID
	Frontier event.LogicalTime
	Time     event.LogicalTime
	Diff     int64
}

// PeekUpdate is one signed change to the current-peek output.
type PeekUpdate struct {
	Peek   event.PeekID
	Worker event.WorkerID
	Time   event.LogicalTime
	Diff   int64
}

// DurationSample is one completed peek, bucketed by the next power of two
// of its elapsed nanoseconds.
type DurationSample struct {
	Worker event.WorkerID
	Bucket uint64
	Time   event.LogicalTime
}

// BrokerRTTSample is one raw Kafka broker RTT observation.
type BrokerRTTSample struct {
	event.KafkaBrokerRTT
	Time event.LogicalTime
}

// ConsumerPartitionSample is one raw Kafka consumer/partition observation.
type ConsumerPartitionSample struct {
	event.KafkaConsumerPartition
	Time event.LogicalTime
}

// SourceInfoSample is one raw source offset/timestamp observation.
type SourceInfoSample struct {
	event.SourceInfo
	Time event.LogicalTime
}

// Outputs collects one batch's routed updates, one slice per logical
// output. The caller owns it and resets it between batches so slice
// capacity is reused.
type Outputs struct {
	Dataflow          []DataflowUpdate
	Dependency        []DependencyUpdate
	Frontier          []FrontierUpdate
	KafkaBrokerRTT    []BrokerRTTSample
	KafkaConsumerInfo []ConsumerPartitionSample
	Peek              []PeekUpdate
	PeekDuration      []DurationSample
	SourceInfo        []SourceInfoSample
}

func (o *Outputs) Reset() {
	o.Dataflow = o.Dataflow[:0]
	o.Dependency = o.Dependency[:0]
	o.Frontier = o.Frontier[:0]
	o.KafkaBrokerRTT = o.KafkaBrokerRTT[:0]
	o.KafkaConsumerInfo = o.KafkaConsumerInfo[:0]
	o.Peek = o.Peek[:0]
	o.PeekDuration = o.PeekDuration[:0]
	o.SourceInfo = o.SourceInfo[:0]
}

// Bucket rounds a raw event time to its reporting boundary.
type Bucket func(elapsed time.Duration) event.LogicalTime

// Demux consumes batches of records in arrival order and routes each event
// to its output, updating the correlation state as it goes. A correlation
// violation is never fatal: the transition is skipped or overwritten with a
// warning, and processing continues.
type Demux struct {
	log    *slog.Logger
	bucket Bucket
	state  *State
}

func New(log *slog.Logger, bucket Bucket) *Demux {
	return &Demux{
		log:    log,
		bucket: bucket,
		state:  NewState(),
	}
}

// State exposes the correlation state for inspection.
func (d *Demux) State() *State { return d.state }

// Process runs one linear pass over a batch, appending routed updates to
// out. Not safe for concurrent use; each worker's demux must have exactly
// one executor.
func (d *Demux) Process(batch []event.Record, out *Outputs) {
	for _, rec := range batch {
		metrics.EventsDemuxed.WithLabelValues(event.KindOf(rec.Event)).Inc()
		t := d.bucket(rec.Elapsed)

		switch ev := rec.Event.(type) {
		case event.Dataflow:
			d.processDataflow(ev, rec.Worker, t, out)
		case event.DataflowDependency:
			d.processDependency(ev, rec.Worker, t, out)
		case event.Frontier:
			out.Frontier = append(out.Frontier, FrontierUpdate{
				Relation: ev.RelationID,
				Worker:   rec.Worker,
				Frontier: ev.Time,
				Time:     t,
				Diff:     ev.Delta,
			})
		case event.KafkaBrokerRTT:
			out.KafkaBrokerRTT = append(out.KafkaBrokerRTT, BrokerRTTSample{KafkaBrokerRTT: ev, Time: t})
		case event.KafkaConsumerPartition:
			out.KafkaConsumerInfo = append(out.KafkaConsumerInfo, ConsumerPartitionSample{KafkaConsumerPartition: ev, Time: t})
		case event.Peek:
			d.processPeek(ev, rec.Worker, rec.Elapsed, t, out)
		case event.SourceInfo:
			out.SourceInfo = append(out.SourceInfo, SourceInfoSample{SourceInfo: ev, Time: t})
		}
	}
}

func (d *Demux) processDataflow(ev event.Dataflow, worker event.WorkerID, t event.LogicalTime, out *Outputs) {
	key := dataflowKey{ID: ev.ID, Worker: worker}
	if ev.Created {
		out.Dataflow = append(out.Dataflow, DataflowUpdate{ID: ev.ID, Worker: worker, Time: t, Diff: 1})
		if _, ok := d.state.activeDataflows[key]; ok {
			d.warn(metrics.WarningTypeDataflowDuplicateCreate,
				"dataflow already active at time of create", "dataflow", ev.ID, "worker", worker)
		}
		d.state.activeDataflows[key] = nil
		return
	}

	out.Dataflow = append(out.Dataflow, DataflowUpdate{ID: ev.ID, Worker: worker, Time: t, Diff: -1})
	sources, ok := d.state.activeDataflows[key]
	if !ok {
		d.warn(metrics.WarningTypeDataflowDropWithoutCreate,
			"no active dataflow exists at time of drop", "dataflow", ev.ID, "worker", worker)
		return
	}
	for _, dep := range sources {
		out.Dependency = append(out.Dependency, DependencyUpdate{
			Dataflow: ev.ID,
			Source:   dep.Source,
			Worker:   dep.Worker,
			Time:     t,
			Diff:     -1,
		})
	}
	delete(d.state.activeDataflows, key)
}

func (d *Demux) processDependency(ev event.DataflowDependency, worker event.WorkerID, t event.LogicalTime, out *Outputs) {
	out.Dependency = append(out.Dependency, DependencyUpdate{
		Dataflow: ev.Dataflow,
		Source:   ev.Source,
		Worker:   worker,
		Time:     t,
		Diff:     1,
	})
	key := dataflowKey{ID: ev.Dataflow, Worker: worker}
	if _, ok := d.state.activeDataflows[key]; !ok {
		d.warn(metrics.WarningTypeDependencyUnknownDataflow,
			"dependency references a dataflow that doesn't exist",
			"dataflow", ev.Dataflow, "source", ev.Source, "worker", worker)
		return
	}
	d.state.activeDataflows[key] = append(d.state.activeDataflows[key], depEdge{Source: ev.Source, Worker: worker})
}

func (d *Demux) processPeek(ev event.Peek, worker event.WorkerID, raw time.Duration, t event.LogicalTime, out *Outputs) {
	key := peekKey{Worker: worker, ConnID: ev.Peek.ConnID}
	if ev.Installed {
		out.Peek = append(out.Peek, PeekUpdate{Peek: ev.Peek, Worker: worker, Time: t, Diff: 1})
		if _, ok := d.state.peekStash[key]; ok {
			d.warn(metrics.WarningTypePeekDuplicateInstall,
				"peek already registered", "worker", worker, "connID", ev.Peek.ConnID)
		}
		d.state.peekStash[key] = raw
		return
	}

	start, ok := d.state.peekStash[key]
	if !ok {
		// No stashed install means no duration can be computed; the
		// presence retraction is suppressed too so the event contributes
		// no rows at all.
		d.warn(metrics.WarningTypePeekRetireWithoutInstall,
			"peek not yet registered", "worker", worker, "connID", ev.Peek.ConnID)
		return
	}
	delete(d.state.peekStash, key)
	out.Peek = append(out.Peek, PeekUpdate{Peek: ev.Peek, Worker: worker, Time: t, Diff: -1})
	out.PeekDuration = append(out.PeekDuration, DurationSample{
		Worker: worker,
		Bucket: nextPowerOfTwo(uint64((raw - start).Nanoseconds())),
		Time:   t,
	})
}

func (d *Demux) warn(warningType, msg string, args ...any) {
	metrics.CorrelationWarnings.WithLabelValues(warningType).Inc()
	d.log.Warn(msg, args...)
}

func nextPowerOfTwo(v uint64) uint64 {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len64(v-1)
}
