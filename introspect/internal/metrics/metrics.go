package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	Namespace = "brook_introspect"

	// Metrics names.
	MetricNameEventsDemuxed       = Namespace + "_events_demuxed_total"
	MetricNameCorrelationWarnings = Namespace + "_correlation_warnings_total"
	MetricNameBatchesProcessed    = Namespace + "_batches_processed_total"

	// Labels.
	LabelEventKind   = "event_kind"
	LabelWarningType = "warning_type"

	// Warning types.
	WarningTypeDataflowDuplicateCreate   = "dataflow_duplicate_create"
	WarningTypeDataflowDropWithoutCreate = "dataflow_drop_without_create"
	WarningTypeDependencyUnknownDataflow = "dependency_unknown_dataflow"
	WarningTypePeekDuplicateInstall      = "peek_duplicate_install"
	WarningTypePeekRetireWithoutInstall  = "peek_retire_without_install"
)

var (
	EventsDemuxed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameEventsDemuxed,
			Help: "Number of introspection events routed by the demultiplexer",
		},
		[]string{LabelEventKind},
	)

	CorrelationWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameCorrelationWarnings,
			Help: "Number of malformed event sequences tolerated by the demultiplexer",
		},
		[]string{LabelWarningType},
	)

	BatchesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameBatchesProcessed,
			Help: "Number of event batches processed by the pipeline",
		},
	)
)
