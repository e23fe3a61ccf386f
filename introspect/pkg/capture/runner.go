package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"

	"github.com/brookdb/brook/introspect/pkg/event"
	"github.com/brookdb/brook/introspect/pkg/pipeline"
	"github.com/brookdb/brook/introspect/pkg/relation"
)

// RunnerConfig configures the capture runner.
type RunnerConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Buffer *Buffer

	// Workers is the fixed set of worker partitions. Each gets its own
	// pipeline instance and its own serial executor.
	Workers []event.WorkerID

	// Interval is the drain tick, normally the reporting granularity.
	Interval time.Duration

	// Pipeline configures every per-worker pipeline.
	Pipeline pipeline.Config
}

func (cfg *RunnerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		return errors.New("clock is required")
	}
	if cfg.Buffer == nil {
		return errors.New("buffer is required")
	}
	if len(cfg.Workers) == 0 {
		return errors.New("at least one worker is required")
	}
	if cfg.Interval <= 0 {
		return errors.New("interval must be greater than 0")
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config is invalid: %w", err)
	}
	return nil
}

// Runner owns one pipeline per worker and drains the capture buffer into
// it on each tick. Batches for one worker run on a single-concurrency pool
// so that worker's correlation state has exactly one executor; workers run
// in parallel with each other and share nothing.
type Runner struct {
	log      *slog.Logger
	cfg      *RunnerConfig
	pipeline map[event.WorkerID]*pipeline.Pipeline
	pool     map[event.WorkerID]pond.Pool
}

func NewRunner(cfg *RunnerConfig) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		log:      cfg.Logger,
		cfg:      cfg,
		pipeline: make(map[event.WorkerID]*pipeline.Pipeline, len(cfg.Workers)),
		pool:     make(map[event.WorkerID]pond.Pool, len(cfg.Workers)),
	}
	for _, w := range cfg.Workers {
		pcfg := cfg.Pipeline
		pcfg.Logger = cfg.Logger.With("worker", w)
		p, err := pipeline.New(pcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pipeline for worker %d: %w", w, err)
		}
		r.pipeline[w] = p
		r.pool[w] = pond.NewPool(1)
	}
	return r, nil
}

// Handles returns the handle table for one worker's active relations.
func (r *Runner) Handles(worker event.WorkerID) map[relation.Variant]relation.Handle {
	p, ok := r.pipeline[worker]
	if !ok {
		return nil
	}
	return p.Handles()
}

// Run drains buffers on each tick until the context is done, then performs
// a final drain and waits for all in-flight batches.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("capture runner starting",
		"workers", len(r.cfg.Workers),
		"interval", r.cfg.Interval,
	)

	ticker := r.cfg.Clock.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.tick()
			for _, pool := range r.pool {
				pool.StopAndWait()
			}
			r.log.Info("capture runner stopped")
			return nil
		case <-ticker.Chan():
			r.tick()
		}
	}
}

func (r *Runner) tick() {
	for _, w := range r.cfg.Workers {
		batch := r.cfg.Buffer.Drain(w)
		if len(batch) == 0 {
			continue
		}
		p := r.pipeline[w]
		r.pool[w].Submit(func() {
			p.ProcessBatch(batch)
		})
	}
}
