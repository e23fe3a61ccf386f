// Package kafkastats bridges a franz-go client's transport metrics into
// introspection events: per-broker round-trip statistics and per-partition
// throughput/offset counters, emitted as KafkaBrokerRTT and
// KafkaConsumerPartition events on the capture buffer.
package kafkastats

import (
	"math"
	"math/bits"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Hooks collects transport observations from a kgo client. Register with
// kgo.WithHooks when building the client, then hand the same instance to
// the adapter.
type Hooks struct {
	mu         sync.Mutex
	brokers    map[string]*rttDigest
	partitions map[topicPartition]*partitionCounters
}

type topicPartition struct {
	Topic     string
	Partition int32
}

func NewHooks() *Hooks {
	return &Hooks{
		brokers:    make(map[string]*rttDigest),
		partitions: make(map[topicPartition]*partitionCounters),
	}
}

var (
	_ kgo.HookBrokerE2E           = (*Hooks)(nil)
	_ kgo.HookFetchBatchRead      = (*Hooks)(nil)
	_ kgo.HookProduceBatchWritten = (*Hooks)(nil)
)

// OnBrokerE2E records one request's end-to-end broker latency.
func (h *Hooks) OnBrokerE2E(meta kgo.BrokerMetadata, _ int16, e2e kgo.BrokerE2E) {
	if e2e.Err() != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	d, ok := h.brokers[meta.Host]
	if !ok {
		d = newRTTDigest()
		h.brokers[meta.Host] = d
	}
	d.observe(e2e.DurationE2E().Microseconds())
}

// OnFetchBatchRead accumulates consumed message and byte counts.
func (h *Hooks) OnFetchBatchRead(_ kgo.BrokerMetadata, topic string, partition int32, m kgo.FetchBatchMetrics) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := h.counters(topicPartition{Topic: topic, Partition: partition})
	c.rxMsgs += int64(m.NumRecords)
	c.rxBytes += int64(m.UncompressedBytes)
}

// OnProduceBatchWritten accumulates produced message and byte counts.
func (h *Hooks) OnProduceBatchWritten(_ kgo.BrokerMetadata, topic string, partition int32, m kgo.ProduceBatchMetrics) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := h.counters(topicPartition{Topic: topic, Partition: partition})
	c.txMsgs += int64(m.NumRecords)
	c.txBytes += int64(m.UncompressedBytes)
}

func (h *Hooks) counters(tp topicPartition) *partitionCounters {
	c, ok := h.partitions[tp]
	if !ok {
		c = &partitionCounters{}
		h.partitions[tp] = c
	}
	return c
}

// snapshotBrokers returns and resets the per-broker RTT windows, so each
// emitted snapshot covers one reporting interval.
func (h *Hooks) snapshotBrokers() map[string]rttDigest {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]rttDigest, len(h.brokers))
	for host, d := range h.brokers {
		if d.cnt == 0 {
			continue
		}
		out[host] = *d
		h.brokers[host] = newRTTDigest()
	}
	return out
}

// snapshotPartitions returns the cumulative per-partition counters.
func (h *Hooks) snapshotPartitions() map[topicPartition]partitionCounters {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[topicPartition]partitionCounters, len(h.partitions))
	for tp, c := range h.partitions {
		out[tp] = *c
	}
	return out
}

type partitionCounters struct {
	rxMsgs  int64
	rxBytes int64
	txMsgs  int64
	txBytes int64
}

// rttDigest is a rolling latency window: exact min/max/sum/count plus a
// power-of-two histogram for percentile estimates, in microseconds.
type rttDigest struct {
	cnt     int64
	sum     int64
	sumSq   float64
	min     int64
	max     int64
	buckets [64]int64
}

func newRTTDigest() *rttDigest {
	return &rttDigest{min: math.MaxInt64}
}

func (d *rttDigest) observe(us int64) {
	if us < 0 {
		us = 0
	}
	d.cnt++
	d.sum += us
	d.sumSq += float64(us) * float64(us)
	if us < d.min {
		d.min = us
	}
	if us > d.max {
		d.max = us
	}
	d.buckets[bucketIndex(us)]++
}

func bucketIndex(us int64) int {
	if us <= 1 {
		return 0
	}
	return bits.Len64(uint64(us - 1))
}

func (d *rttDigest) avg() int64 {
	if d.cnt == 0 {
		return 0
	}
	return d.sum / d.cnt
}

func (d *rttDigest) stddev() int64 {
	if d.cnt == 0 {
		return 0
	}
	mean := float64(d.sum) / float64(d.cnt)
	variance := d.sumSq/float64(d.cnt) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return int64(math.Sqrt(variance))
}

// percentile returns the upper bound of the histogram bucket containing
// the q-th quantile, 0 < q <= 1.
func (d *rttDigest) percentile(q float64) int64 {
	if d.cnt == 0 {
		return 0
	}
	target := int64(math.Ceil(q * float64(d.cnt)))
	if target < 1 {
		target = 1
	}
	var seen int64
	for i, n := range d.buckets {
		seen += n
		if seen >= target {
			return int64(1) << i
		}
	}
	return d.max
}
