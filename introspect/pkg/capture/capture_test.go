package capture_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/brookdb/brook/introspect/pkg/capture"
	"github.com/brookdb/brook/introspect/pkg/event"
	"github.com/brookdb/brook/introspect/pkg/pipeline"
	"github.com/brookdb/brook/introspect/pkg/relation"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIntrospect_Capture_Buffer(t *testing.T) {
	t.Parallel()

	t.Run("drain returns records in arrival order and empties the buffer", func(t *testing.T) {
		t.Parallel()
		buf := capture.NewBuffer()
		buf.Log(1*time.Millisecond, 0, event.Dataflow{ID: "d1", Created: true})
		buf.Log(2*time.Millisecond, 0, event.Dataflow{ID: "d2", Created: true})

		batch := buf.Drain(0)
		require.Len(t, batch, 2)
		require.Equal(t, event.GlobalID("d1"), batch[0].Event.(event.Dataflow).ID)
		require.Equal(t, event.GlobalID("d2"), batch[1].Event.(event.Dataflow).ID)
		require.Zero(t, buf.Len(0))
	})

	t.Run("drain of an idle worker returns nil", func(t *testing.T) {
		t.Parallel()
		buf := capture.NewBuffer()
		require.Nil(t, buf.Drain(7))
	})

	t.Run("workers are buffered independently", func(t *testing.T) {
		t.Parallel()
		buf := capture.NewBuffer()
		buf.Log(1*time.Millisecond, 0, event.Dataflow{ID: "d1", Created: true})
		buf.Log(1*time.Millisecond, 1, event.Dataflow{ID: "d1", Created: true})

		require.Len(t, buf.Drain(0), 1)
		require.Equal(t, 1, buf.Len(1))
	})
}

func TestIntrospect_Capture_Runner(t *testing.T) {
	t.Parallel()

	t.Run("config validation", func(t *testing.T) {
		t.Parallel()
		_, err := capture.NewRunner(&capture.RunnerConfig{})
		require.Error(t, err)
	})

	t.Run("drains buffered events into per-worker pipelines on tick", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClock()
		buf := capture.NewBuffer()
		runner, err := capture.NewRunner(&capture.RunnerConfig{
			Logger:   discardLogger(),
			Clock:    clock,
			Buffer:   buf,
			Workers:  []event.WorkerID{0, 1},
			Interval: 10 * time.Millisecond,
			Pipeline: pipeline.Config{
				Logger:         discardLogger(),
				GranularityNs:  10_000_000,
				ActiveVariants: []relation.Variant{relation.DataflowCurrent},
			},
		})
		require.NoError(t, err)

		buf.Log(5*time.Millisecond, 0, event.Dataflow{ID: "d1", Created: true})
		buf.Log(5*time.Millisecond, 1, event.Dataflow{ID: "d2", Created: true})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = runner.Run(ctx)
		}()

		clock.BlockUntilContext(ctx, 1)
		clock.Advance(10 * time.Millisecond)

		end := event.LogicalTime(1 << 62)
		require.Eventually(t, func() bool {
			return len(runner.Handles(0)[relation.DataflowCurrent].ReadAt(end)) == 1 &&
				len(runner.Handles(1)[relation.DataflowCurrent].ReadAt(end)) == 1
		}, 5*time.Second, 10*time.Millisecond)

		cancel()
		<-done
	})

	t.Run("final drain on shutdown", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClock()
		buf := capture.NewBuffer()
		runner, err := capture.NewRunner(&capture.RunnerConfig{
			Logger:   discardLogger(),
			Clock:    clock,
			Buffer:   buf,
			Workers:  []event.WorkerID{0},
			Interval: 10 * time.Millisecond,
			Pipeline: pipeline.Config{
				Logger:         discardLogger(),
				GranularityNs:  10_000_000,
				ActiveVariants: []relation.Variant{relation.DataflowCurrent},
			},
		})
		require.NoError(t, err)

		buf.Log(5*time.Millisecond, 0, event.Dataflow{ID: "d1", Created: true})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = runner.Run(ctx)
		}()

		clock.BlockUntilContext(ctx, 1)
		cancel()
		<-done

		end := event.LogicalTime(1 << 62)
		require.Len(t, runner.Handles(0)[relation.DataflowCurrent].ReadAt(end), 1)
	})

	t.Run("unknown worker has no handles", func(t *testing.T) {
		t.Parallel()

		runner, err := capture.NewRunner(&capture.RunnerConfig{
			Logger:   discardLogger(),
			Clock:    clockwork.NewFakeClock(),
			Buffer:   capture.NewBuffer(),
			Workers:  []event.WorkerID{0},
			Interval: time.Second,
			Pipeline: pipeline.Config{
				Logger:         discardLogger(),
				GranularityNs:  1,
				ActiveVariants: []relation.Variant{relation.DataflowCurrent},
			},
		})
		require.NoError(t, err)
		require.Nil(t, runner.Handles(9))
	})
}
