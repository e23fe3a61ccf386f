package pipeline

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/brookdb/brook/introspect/internal/aggregate"
	"github.com/brookdb/brook/introspect/internal/demux"
	"github.com/brookdb/brook/introspect/internal/metrics"
	"github.com/brookdb/brook/introspect/pkg/event"
	"github.com/brookdb/brook/introspect/pkg/relation"
)

// Pipeline is one worker's introspection pipeline. The external scheduler
// must deliver batches via ProcessBatch from exactly one executor at a
// time; the pipeline itself never spawns goroutines and never blocks.
type Pipeline struct {
	log      *slog.Logger
	bucketer Bucketer
	demux    *demux.Demux
	outputs  demux.Outputs

	arrangements map[relation.Variant]*relation.Arrangement

	// Aggregators exist only for active counter variants; a nil
	// aggregator means its variant is inactive and its samples are
	// dropped without any work.
	brokerRTT    *aggregate.Latest
	consumerInfo *aggregate.Latest
	sourceInfo   *aggregate.Latest
	peekDuration *aggregate.CountTotal

	scratch []relation.Update
}

// New builds a pipeline and materializes the active variants lazily:
// variants absent from the config get no arrangement and no aggregator.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	active := cfg.active()
	p := &Pipeline{
		log:          cfg.Logger,
		bucketer:     NewBucketer(cfg.GranularityNs),
		arrangements: make(map[relation.Variant]*relation.Arrangement, len(active)),
	}
	p.demux = demux.New(cfg.Logger, p.bucketer.Bucket)

	for v := range active {
		p.arrangements[v] = relation.NewArrangement(v.IndexBy())
	}
	if active[relation.KafkaBrokerRTT] {
		p.brokerRTT = aggregate.NewLatest([]int{0, 1, 2, 3})
	}
	if active[relation.KafkaConsumerInfo] {
		p.consumerInfo = aggregate.NewLatest([]int{0, 1, 2, 3})
	}
	if active[relation.SourceInfo] {
		p.sourceInfo = aggregate.NewLatest([]int{0, 1, 2, 3})
	}
	if active[relation.PeekDuration] {
		p.peekDuration = aggregate.NewCountTotal()
	}

	return p, nil
}

// Handles returns one read-only handle per active variant, keyed by the
// variant's stable name. The query layer resolves introspection tables
// through this table.
func (p *Pipeline) Handles() map[relation.Variant]relation.Handle {
	out := make(map[relation.Variant]relation.Handle, len(p.arrangements))
	for v, arr := range p.arrangements {
		out[v] = relation.NewHandle(v, arr)
	}
	return out
}

// ProcessBatch demultiplexes one batch of records in arrival order and
// applies the resulting updates to the active relations. It runs to
// completion and returns; it never blocks.
func (p *Pipeline) ProcessBatch(batch []event.Record) {
	p.outputs.Reset()
	p.demux.Process(batch, &p.outputs)

	if arr, ok := p.arrangements[relation.DataflowCurrent]; ok {
		for _, u := range p.outputs.Dataflow {
			arr.Apply(relation.Update{Row: dataflowRow(u), Time: u.Time, Diff: u.Diff})
		}
	}
	if arr, ok := p.arrangements[relation.DataflowDependency]; ok {
		for _, u := range p.outputs.Dependency {
			arr.Apply(relation.Update{Row: dependencyRow(u), Time: u.Time, Diff: u.Diff})
		}
	}
	if arr, ok := p.arrangements[relation.FrontierCurrent]; ok {
		for _, u := range p.outputs.Frontier {
			arr.Apply(relation.Update{Row: frontierRow(u), Time: u.Time, Diff: u.Diff})
		}
	}
	if arr, ok := p.arrangements[relation.PeekCurrent]; ok {
		for _, u := range p.outputs.Peek {
			arr.Apply(relation.Update{Row: peekRow(u), Time: u.Time, Diff: u.Diff})
		}
	}

	if p.brokerRTT != nil {
		arr := p.arrangements[relation.KafkaBrokerRTT]
		for _, s := range p.outputs.KafkaBrokerRTT {
			p.scratch = p.brokerRTT.Observe(brokerRTTRow(s.KafkaBrokerRTT), s.Time, p.scratch[:0])
			for _, u := range p.scratch {
				arr.Apply(u)
			}
		}
	}
	if p.consumerInfo != nil {
		arr := p.arrangements[relation.KafkaConsumerInfo]
		for _, s := range p.outputs.KafkaConsumerInfo {
			p.scratch = p.consumerInfo.Observe(consumerInfoRow(s.KafkaConsumerPartition), s.Time, p.scratch[:0])
			for _, u := range p.scratch {
				arr.Apply(u)
			}
		}
	}
	if p.sourceInfo != nil {
		arr := p.arrangements[relation.SourceInfo]
		for _, s := range p.outputs.SourceInfo {
			p.scratch = p.sourceInfo.Observe(sourceInfoRow(s.SourceInfo), s.Time, p.scratch[:0])
			for _, u := range p.scratch {
				arr.Apply(u)
			}
		}
	}
	if p.peekDuration != nil {
		arr := p.arrangements[relation.PeekDuration]
		for _, s := range p.outputs.PeekDuration {
			key := relation.Row{relation.Int64(int64(s.Worker)), relation.Int64(int64(s.Bucket))}
			p.scratch = p.peekDuration.Observe(key, s.Time, p.scratch[:0])
			for _, u := range p.scratch {
				arr.Apply(u)
			}
		}
	}

	metrics.BatchesProcessed.Inc()
}

func dataflowRow(u demux.DataflowUpdate) relation.Row {
	return relation.Row{
		relation.String(string(u.ID)),
		relation.Int64(int64(u.Worker)),
	}
}

func dependencyRow(u demux.DependencyUpdate) relation.Row {
	return relation.Row{
		relation.String(string(u.Dataflow)),
		relation.String(string(u.Source)),
		relation.Int64(int64(u.Worker)),
	}
}

func frontierRow(u demux.FrontierUpdate) relation.Row {
	return relation.Row{
		relation.String(string(u.Relation)),
		relation.Int64(int64(u.Worker)),
		relation.Int64(int64(u.Frontier)),
	}
}

func peekRow(u demux.PeekUpdate) relation.Row {
	return relation.Row{
		relation.String(strconv.FormatUint(uint64(u.Peek.ConnID), 10)),
		relation.Int64(int64(u.Worker)),
		relation.String(string(u.Peek.RelationID)),
		relation.Int64(int64(u.Peek.Time)),
	}
}

func brokerRTTRow(ev event.KafkaBrokerRTT) relation.Row {
	return relation.Row{
		relation.String(ev.ConsumerName),
		relation.String(string(ev.SourceID.SourceID)),
		relation.Int64(int64(ev.SourceID.DataflowID)),
		relation.String(ev.BrokerName),
		relation.Int64(ev.Min),
		relation.Int64(ev.Max),
		relation.Int64(ev.Avg),
		relation.Int64(ev.Sum),
		relation.Int64(ev.Cnt),
		relation.Int64(ev.Stddev),
		relation.Int64(ev.P50),
		relation.Int64(ev.P75),
		relation.Int64(ev.P90),
		relation.Int64(ev.P95),
		relation.Int64(ev.P99),
		relation.Int64(ev.P9999),
	}
}

func consumerInfoRow(ev event.KafkaConsumerPartition) relation.Row {
	return relation.Row{
		relation.String(ev.ConsumerName),
		relation.String(string(ev.SourceID.SourceID)),
		relation.Int64(int64(ev.SourceID.DataflowID)),
		relation.String(ev.PartitionID),
		relation.Int64(ev.RxMsgs),
		relation.Int64(ev.RxBytes),
		relation.Int64(ev.TxMsgs),
		relation.Int64(ev.TxBytes),
		relation.Int64(ev.LoOffset),
		relation.Int64(ev.HiOffset),
		relation.Int64(ev.LsOffset),
		relation.Int64(ev.AppOffset),
		relation.Int64(ev.ConsumerLag),
		relation.Int64(ev.InitialHighOffset),
	}
}

func sourceInfoRow(ev event.SourceInfo) relation.Row {
	return relation.Row{
		relation.String(ev.SourceName),
		relation.String(string(ev.SourceID.SourceID)),
		relation.Int64(int64(ev.SourceID.DataflowID)),
		relation.NullableString(ev.PartitionID),
		relation.Int64(ev.OffsetDelta),
		relation.Int64(ev.TimestampDelta),
	}
}
