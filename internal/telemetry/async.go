package telemetry

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"perfreview/backend/internal/telemetry/domain"
)

const (
	// DefaultEmitTimeout bounds a single delivery to the wrapped emitter.
	DefaultEmitTimeout = 5 * time.Second

	defaultQueueSize = 256
)

// ErrDispatcherClosed is returned by Emit after Close.
var ErrDispatcherClosed = errors.New("telemetry: dispatcher closed")

// ErrQueueFull is returned by Emit when the queue has no room; the event is dropped.
var ErrQueueFull = errors.New("telemetry: event queue full")

type queued struct {
	ctx   context.Context
	event *domain.SecurityEvent
}

// Dispatcher delivers security events to an EventEmitter from background workers so request
// handlers never wait on Kafka or the OTLP exporter. It implements EventEmitter itself.
type Dispatcher struct {
	next    EventEmitter
	timeout time.Duration
	queue   chan queued

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// NewDispatcher starts workers goroutines draining a queue of size buffer into next.
// Non-positive workers or buffer fall back to 1 and 256.
func NewDispatcher(next EventEmitter, workers, buffer int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = defaultQueueSize
	}
	d := &Dispatcher{
		next:    next,
		timeout: DefaultEmitTimeout,
		queue:   make(chan queued, buffer),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.run()
	}
	return d
}

// Emit enqueues event without blocking. The request context is detached from cancellation
// but keeps its values, so the trace span stays linked.
func (d *Dispatcher) Emit(ctx context.Context, event *domain.SecurityEvent) error {
	if d == nil || event == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- queued{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		d.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped reports how many events were rejected because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be delivered, or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		if n := d.Dropped(); n > 0 {
			log.Printf("telemetry: dispatcher closed, %d events dropped", n)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for q := range d.queue {
		if d.next == nil {
			continue
		}
		emitCtx, cancel := context.WithTimeout(q.ctx, d.timeout)
		if err := d.next.Emit(emitCtx, q.event); err != nil {
			log.Printf("telemetry: emit %s for user %s: %v", q.event.Type, q.event.UserID, err)
		}
		cancel()
	}
}
