package kafkastats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/twmb/franz-go/pkg/kadm"

	"github.com/brookdb/brook/introspect/pkg/event"
)

// EventSink receives the adapter's emitted events. *capture.Buffer
// satisfies it.
type EventSink interface {
	Log(elapsed time.Duration, worker event.WorkerID, ev event.Event)
}

// offsetAdmin is the subset of kadm.Client the adapter uses. An interface
// so tests can run without a broker.
type offsetAdmin interface {
	ListStartOffsets(ctx context.Context, topics ...string) (kadm.ListedOffsets, error)
	ListEndOffsets(ctx context.Context, topics ...string) (kadm.ListedOffsets, error)
	FetchOffsets(ctx context.Context, group string) (kadm.OffsetResponses, error)
}

// Config configures the stats adapter for one source instance.
type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Sink   EventSink
	Hooks  *Hooks

	// Worker the emitted events are attributed to.
	Worker event.WorkerID

	// ConsumerName and SourceID identify the consumer in the emitted
	// events, matching the engine's source instance bookkeeping.
	ConsumerName string
	SourceID     event.SourceInstanceID

	// Group and Topics scope the offset poll.
	Group  string
	Topics []string

	// Interval between stat snapshots.
	Interval time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Clock == nil {
		return errors.New("clock is required")
	}
	if c.Sink == nil {
		return errors.New("sink is required")
	}
	if c.Hooks == nil {
		return errors.New("hooks are required")
	}
	if c.ConsumerName == "" {
		return errors.New("consumer name is required")
	}
	if c.Group == "" {
		return errors.New("group is required")
	}
	if len(c.Topics) == 0 {
		return errors.New("at least one topic is required")
	}
	if c.Interval <= 0 {
		return errors.New("interval must be greater than 0")
	}
	return nil
}

// Adapter periodically snapshots the hook counters and the group's offsets
// and emits them as introspection events. Offset poll failures are logged
// and skipped; the next tick retries naturally.
type Adapter struct {
	log   *slog.Logger
	cfg   *Config
	adm   offsetAdmin
	start time.Time

	initialHigh map[topicPartition]int64
}

// New builds an adapter around an admin client. Pass kadm.NewClient over
// the same kgo client the hooks are registered on.
func New(cfg *Config, adm *kadm.Client) (*Adapter, error) {
	return newAdapter(cfg, adm)
}

func newAdapter(cfg *Config, adm offsetAdmin) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if adm == nil {
		return nil, errors.New("admin client is required")
	}
	return &Adapter{
		log:         cfg.Logger,
		cfg:         cfg,
		adm:         adm,
		start:       cfg.Clock.Now(),
		initialHigh: make(map[topicPartition]int64),
	}, nil
}

// Run emits snapshots until the context is done.
func (a *Adapter) Run(ctx context.Context) error {
	a.log.Info("kafka stats adapter starting",
		"consumer", a.cfg.ConsumerName,
		"group", a.cfg.Group,
		"topics", a.cfg.Topics,
		"interval", a.cfg.Interval,
	)

	ticker := a.cfg.Clock.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			a.emitBrokerRTT()
			a.emitConsumerPartitions(ctx)
		}
	}
}

func (a *Adapter) elapsed() time.Duration {
	return a.cfg.Clock.Now().Sub(a.start)
}

func (a *Adapter) emitBrokerRTT() {
	for host, d := range a.cfg.Hooks.snapshotBrokers() {
		a.cfg.Sink.Log(a.elapsed(), a.cfg.Worker, event.KafkaBrokerRTT{
			ConsumerName: a.cfg.ConsumerName,
			SourceID:     a.cfg.SourceID,
			BrokerName:   host,
			Min:          d.min,
			Max:          d.max,
			Avg:          d.avg(),
			Sum:          d.sum,
			Cnt:          d.cnt,
			Stddev:       d.stddev(),
			P50:          d.percentile(0.50),
			P75:          d.percentile(0.75),
			P90:          d.percentile(0.90),
			P95:          d.percentile(0.95),
			P99:          d.percentile(0.99),
			P9999:        d.percentile(0.9999),
		})
	}
}

func (a *Adapter) emitConsumerPartitions(ctx context.Context) {
	los, err := a.adm.ListStartOffsets(ctx, a.cfg.Topics...)
	if err != nil {
		a.log.Warn("failed to list start offsets", "error", err)
		return
	}
	his, err := a.adm.ListEndOffsets(ctx, a.cfg.Topics...)
	if err != nil {
		a.log.Warn("failed to list end offsets", "error", err)
		return
	}
	committed, err := a.adm.FetchOffsets(ctx, a.cfg.Group)
	if err != nil {
		a.log.Warn("failed to fetch group offsets", "error", err)
		return
	}

	counters := a.cfg.Hooks.snapshotPartitions()

	for topic, partitions := range his {
		for partition, hi := range partitions {
			if hi.Err != nil {
				continue
			}
			tp := topicPartition{Topic: topic, Partition: partition}

			lo := int64(0)
			if l, ok := los.Lookup(topic, partition); ok && l.Err == nil {
				lo = l.Offset
			}
			app := int64(-1)
			lag := int64(-1)
			if o, ok := committed.Lookup(topic, partition); ok && o.Err == nil {
				app = o.At
				lag = hi.Offset - app
			}
			if _, ok := a.initialHigh[tp]; !ok {
				a.initialHigh[tp] = hi.Offset
			}
			c := counters[tp]

			a.cfg.Sink.Log(a.elapsed(), a.cfg.Worker, event.KafkaConsumerPartition{
				ConsumerName:      a.cfg.ConsumerName,
				SourceID:          a.cfg.SourceID,
				PartitionID:       partitionID(topic, partition),
				RxMsgs:            c.rxMsgs,
				RxBytes:           c.rxBytes,
				TxMsgs:            c.txMsgs,
				TxBytes:           c.txBytes,
				LoOffset:          lo,
				HiOffset:          hi.Offset,
				LsOffset:          hi.Offset,
				AppOffset:         app,
				ConsumerLag:       lag,
				InitialHighOffset: a.initialHigh[tp],
			})
		}
	}
}

func partitionID(topic string, partition int32) string {
	return topic + "/" + strconv.FormatInt(int64(partition), 10)
}
