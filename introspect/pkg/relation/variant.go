package relation

// Variant names one of the introspection relations this pipeline can
// materialize. The names are stable identifiers resolved by the query
// layer.
type Variant string

const (
	DataflowCurrent    Variant = "dataflow-current"
	DataflowDependency Variant = "dataflow-dependency"
	FrontierCurrent    Variant = "frontier-current"
	KafkaBrokerRTT     Variant = "kafka-broker-rtt"
	KafkaConsumerInfo  Variant = "kafka-consumer-info"
	PeekCurrent        Variant = "peek-current"
	PeekDuration       Variant = "peek-duration"
	SourceInfo         Variant = "source-info"
)

// Variants returns all variants in registration order.
func Variants() []Variant {
	return []Variant{
		DataflowCurrent,
		DataflowDependency,
		FrontierCurrent,
		KafkaBrokerRTT,
		KafkaConsumerInfo,
		PeekCurrent,
		PeekDuration,
		SourceInfo,
	}
}

func (v Variant) Valid() bool {
	switch v {
	case DataflowCurrent, DataflowDependency, FrontierCurrent,
		KafkaBrokerRTT, KafkaConsumerInfo, PeekCurrent, PeekDuration, SourceInfo:
		return true
	}
	return false
}

// IndexBy returns the column indexes each variant is arranged by.
func (v Variant) IndexBy() []int {
	switch v {
	case DataflowCurrent:
		return []int{0, 1}
	case DataflowDependency:
		return []int{0}
	case FrontierCurrent:
		return []int{0, 1}
	case KafkaBrokerRTT:
		return []int{0, 1, 2, 3}
	case KafkaConsumerInfo:
		return []int{0, 1, 2, 3}
	case PeekCurrent:
		return []int{0, 1}
	case PeekDuration:
		return []int{0, 1}
	case SourceInfo:
		return []int{0, 1, 2, 3}
	}
	return nil
}

// Columns returns the relation's column names, for display and debugging.
func (v Variant) Columns() []string {
	switch v {
	case DataflowCurrent:
		return []string{"name", "worker"}
	case DataflowDependency:
		return []string{"dataflow", "source", "worker"}
	case FrontierCurrent:
		return []string{"global_id", "worker", "time"}
	case KafkaBrokerRTT:
		return []string{
			"consumer_name", "source_id", "dataflow_id", "broker_name",
			"min", "max", "avg", "sum", "cnt", "stddev",
			"p50", "p75", "p90", "p95", "p99", "p99_99",
		}
	case KafkaConsumerInfo:
		return []string{
			"consumer_name", "source_id", "dataflow_id", "partition_id",
			"rxmsgs", "rxbytes", "txmsgs", "txbytes",
			"lo_offset", "hi_offset", "ls_offset", "app_offset",
			"consumer_lag", "initial_high_offset",
		}
	case PeekCurrent:
		return []string{"conn_id", "worker", "id", "time"}
	case PeekDuration:
		return []string{"worker", "duration_ns", "count"}
	case SourceInfo:
		return []string{"source_name", "source_id", "dataflow_id", "partition_id", "offset_delta", "timestamp_delta"}
	}
	return nil
}
