// Package capture is the in-process ingestion side of the introspection
// pipeline: producers log events into per-worker buffers, and a runner
// drains each worker's buffer into that worker's pipeline on a reporting
// tick, giving every worker's state exactly one executor.
package capture

import (
	"sync"
	"time"

	"github.com/brookdb/brook/introspect/pkg/event"
)

const defaultWorkerBufferCapacity = 1024

// Buffer is the fan-in point between event producers and the pipelines.
// Producers append from any goroutine; the runner drains one worker at a
// time. Draining swaps the worker's slice out, so producers never wait on
// batch processing.
type Buffer struct {
	mu      sync.Mutex
	records map[event.WorkerID][]event.Record
}

func NewBuffer() *Buffer {
	return &Buffer{records: make(map[event.WorkerID][]event.Record)}
}

// Log appends one event under its worker.
func (b *Buffer) Log(elapsed time.Duration, worker event.WorkerID, ev event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.records[worker]; !ok {
		b.records[worker] = make([]event.Record, 0, defaultWorkerBufferCapacity)
	}
	b.records[worker] = append(b.records[worker], event.Record{Elapsed: elapsed, Worker: worker, Event: ev})
}

// Append adds an already-built record.
func (b *Buffer) Append(rec event.Record) {
	b.Log(rec.Elapsed, rec.Worker, rec.Event)
}

// Drain removes and returns the worker's buffered records in arrival
// order. Returns nil when the worker has nothing buffered.
func (b *Buffer) Drain(worker event.WorkerID) []event.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.records[worker]
	if len(batch) == 0 {
		return nil
	}
	b.records[worker] = make([]event.Record, 0, cap(batch))
	return batch
}

// Len returns the number of buffered records for a worker.
func (b *Buffer) Len(worker event.WorkerID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records[worker])
}
