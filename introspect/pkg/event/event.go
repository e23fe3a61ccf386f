// Package event defines the introspection events emitted by the engine's
// workers: dataflow lifecycle, peek lifecycle, frontier movement, and
// external-connector throughput counters. The union is closed; the demux
// switches over it exhaustively.
package event

import (
	"fmt"
	"time"
)

// GlobalID identifies a relation, view, source, or dataflow in the catalog.
type GlobalID string

// WorkerID is the index of one parallel worker partition.
type WorkerID int

// LogicalTime is the engine's millisecond logical timestamp.
type LogicalTime uint64

// SourceInstanceID identifies one instantiation of a source within a
// dataflow. The same source can be instantiated by several dataflows.
type SourceInstanceID struct {
	SourceID   GlobalID `json:"source_id"`
	DataflowID uint64   `json:"dataflow_id"`
}

func (s SourceInstanceID) String() string {
	return fmt.Sprintf("%s/%d", s.SourceID, s.DataflowID)
}

// PeekID identifies one in-flight peek.
type PeekID struct {
	RelationID GlobalID    `json:"relation_id"`
	Time       LogicalTime `json:"time"`
	ConnID     uint32      `json:"conn_id"`
}

// Event is the closed union of introspection events. Only the types in
// this package implement it.
type Event interface {
	isEvent()
}

// Dataflow reports dataflow creation (Created true) or teardown.
type Dataflow struct {
	ID      GlobalID `json:"id"`
	Created bool     `json:"created"`
}

// DataflowDependency reports that a dataflow reads from a source.
type DataflowDependency struct {
	Dataflow GlobalID `json:"dataflow"`
	Source   GlobalID `json:"source"`
}

// KafkaBrokerRTT carries round-trip-time statistics for one Kafka broker,
// per consumer. The fields follow librdkafka's rolling-window stats.
type KafkaBrokerRTT struct {
	ConsumerName string           `json:"consumer_name"`
	SourceID     SourceInstanceID `json:"source_id"`
	BrokerName   string           `json:"broker_name"`
	Min          int64            `json:"min"`
	Max          int64            `json:"max"`
	Avg          int64            `json:"avg"`
	Sum          int64            `json:"sum"`
	Cnt          int64            `json:"cnt"`
	Stddev       int64            `json:"stddev"`
	P50          int64            `json:"p50"`
	P75          int64            `json:"p75"`
	P90          int64            `json:"p90"`
	P95          int64            `json:"p95"`
	P99          int64            `json:"p99"`
	P9999        int64            `json:"p99_99"`
}

// KafkaConsumerPartition carries throughput and offset counters for one
// Kafka consumer/partition pair.
type KafkaConsumerPartition struct {
	ConsumerName      string           `json:"consumer_name"`
	SourceID          SourceInstanceID `json:"source_id"`
	PartitionID       string           `json:"partition_id"`
	RxMsgs            int64            `json:"rxmsgs"`
	RxBytes           int64            `json:"rxbytes"`
	TxMsgs            int64            `json:"txmsgs"`
	TxBytes           int64            `json:"txbytes"`
	LoOffset          int64            `json:"lo_offset"`
	HiOffset          int64            `json:"hi_offset"`
	LsOffset          int64            `json:"ls_offset"`
	AppOffset         int64            `json:"app_offset"`
	ConsumerLag       int64            `json:"consumer_lag"`
	InitialHighOffset int64            `json:"initial_high_offset"`
}

// Peek reports peek installation (Installed true) or retirement.
type Peek struct {
	Peek      PeekID `json:"peek"`
	Installed bool   `json:"installed"`
}

// SourceInfo reports offset and timestamp deltas observed while ingesting
// from an external source. PartitionID is nil for unpartitioned sources.
type SourceInfo struct {
	SourceName     string           `json:"source_name"`
	SourceID       SourceInstanceID `json:"source_id"`
	PartitionID    *string          `json:"partition_id"`
	OffsetDelta    int64            `json:"offset_delta"`
	TimestampDelta int64            `json:"timestamp_delta"`
}

// Frontier reports a signed change to a relation's frontier.
type Frontier struct {
	RelationID GlobalID    `json:"relation_id"`
	Time       LogicalTime `json:"time"`
	Delta      int64       `json:"delta"`
}

func (Dataflow) isEvent()               {}
func (DataflowDependency) isEvent()     {}
func (KafkaBrokerRTT) isEvent()         {}
func (KafkaConsumerPartition) isEvent() {}
func (Peek) isEvent()                   {}
func (SourceInfo) isEvent()             {}
func (Frontier) isEvent()               {}

// KindOf returns the stable kind name for an event, used for metrics
// labels and the JSON codec.
func KindOf(ev Event) string {
	switch ev.(type) {
	case Dataflow:
		return "dataflow"
	case DataflowDependency:
		return "dataflow_dependency"
	case KafkaBrokerRTT:
		return "kafka_broker_rtt"
	case KafkaConsumerPartition:
		return "kafka_consumer_partition"
	case Peek:
		return "peek"
	case SourceInfo:
		return "source_info"
	case Frontier:
		return "frontier"
	}
	return "unknown"
}

// Record is one captured event with its ingestion metadata: the elapsed
// time since worker start and the worker that produced it. Records are
// ordered per worker; no cross-worker ordering is guaranteed.
type Record struct {
	Elapsed time.Duration
	Worker  WorkerID
	Event   Event
}
