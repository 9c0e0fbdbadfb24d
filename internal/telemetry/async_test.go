package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"perfreview/backend/internal/telemetry/domain"
)

// mockEventEmitter implements EventEmitter for tests and signals each emit on done.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*domain.SecurityEvent
	ctxErrs []error
	emitErr error
	done    chan struct{}
}

func newMockEmitter(buffer int) *mockEventEmitter {
	return &mockEventEmitter{done: make(chan struct{}, buffer)}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *domain.SecurityEvent) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return m.emitErr
}

func (m *mockEventEmitter) getEvents() []*domain.SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.SecurityEvent(nil), m.events...)
}

func waitFor(t *testing.T, done <-chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for emit %d of %d", i+1, n)
		}
	}
}

func TestDispatcher_NilEvent(t *testing.T) {
	emitter := newMockEmitter(1)
	d := NewDispatcher(emitter, 1, 4)
	defer d.Close(context.Background())

	if err := d.Emit(context.Background(), nil); err != nil {
		t.Fatalf("Emit(nil) = %v", err)
	}
	var nilDispatcher *Dispatcher
	if err := nilDispatcher.Emit(context.Background(), NewEvent(domain.EventLogin, "u1", "", "", "")); err != nil {
		t.Fatalf("nil dispatcher Emit = %v", err)
	}
	select {
	case <-emitter.done:
		t.Fatal("nil event must not be delivered")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestDispatcher_SurvivesRequestCancellation(t *testing.T) {
	emitter := newMockEmitter(1)
	d := NewDispatcher(emitter, 1, 4)
	defer d.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Emit(ctx, NewEvent(domain.EventLogout, "u1", "s1", "10.0.0.1", "")); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	waitFor(t, emitter.done, 1)

	events := emitter.getEvents()
	if len(events) != 1 || events[0].Type != domain.EventLogout || events[0].SessionID != "s1" {
		t.Fatalf("events = %+v", events)
	}
	if emitter.ctxErrs[0] != nil {
		t.Errorf("emit context should not be cancelled: %v", emitter.ctxErrs[0])
	}
}

func TestDispatcher_ErrorIsLogged(t *testing.T) {
	emitter := newMockEmitter(2)
	emitter.emitErr = errors.New("kafka down")
	d := NewDispatcher(emitter, 1, 4)
	defer d.Close(context.Background())

	_ = d.Emit(context.Background(), NewEvent(domain.EventRefresh, "u1", "", "", ""))
	_ = d.Emit(context.Background(), NewEvent(domain.EventRefresh, "u1", "", "", ""))
	waitFor(t, emitter.done, 2)
}

func TestDispatcher_CloseDrainsQueue(t *testing.T) {
	emitter := newMockEmitter(10)
	d := NewDispatcher(emitter, 2, 10)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Emit(context.Background(), NewEvent(domain.EventLogin, "u1", "", "", "")); err != nil {
				t.Errorf("Emit: %v", err)
			}
		}()
	}
	wg.Wait()
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := len(emitter.getEvents()); n != 10 {
		t.Errorf("expected 10 delivered events after Close, got %d", n)
	}
	if err := d.Emit(context.Background(), NewEvent(domain.EventLogin, "u1", "", "", "")); !errors.Is(err, ErrDispatcherClosed) {
		t.Errorf("Emit after Close = %v, want ErrDispatcherClosed", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

// blockingEmitter holds every delivery until release is closed.
type blockingEmitter struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingEmitter) Emit(ctx context.Context, _ *domain.SecurityEvent) error {
	b.started <- struct{}{}
	<-b.release
	return nil
}

func TestDispatcher_QueueFullDrops(t *testing.T) {
	b := &blockingEmitter{started: make(chan struct{}, 1), release: make(chan struct{})}
	d := NewDispatcher(b, 1, 1)

	ev := NewEvent(domain.EventLogin, "u1", "", "", "")
	if err := d.Emit(context.Background(), ev); err != nil {
		t.Fatalf("first Emit: %v", err)
	}
	waitFor(t, b.started, 1)
	if err := d.Emit(context.Background(), ev); err != nil {
		t.Fatalf("second Emit should fill the queue: %v", err)
	}
	if err := d.Emit(context.Background(), ev); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("third Emit = %v, want ErrQueueFull", err)
	}
	if d.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", d.Dropped())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close while blocked = %v, want deadline exceeded", err)
	}
	close(b.release)
	<-b.started
	if err := d.Close(context.Background()); err != nil {
		t.Errorf("Close after release = %v", err)
	}
}

func TestFanout(t *testing.T) {
	a := newMockEmitter(1)
	b := newMockEmitter(1)
	b.emitErr = errors.New("b failed")
	f := Fanout{a, nil, b}

	err := f.Emit(context.Background(), NewEvent(domain.EventTokenTheft, "u1", "", "", "reuse"))
	if err == nil || err.Error() != "b failed" {
		t.Fatalf("Fanout err = %v", err)
	}
	if len(a.getEvents()) != 1 || len(b.getEvents()) != 1 {
		t.Error("every emitter should receive the event")
	}
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(domain.EventLogin, "u1", "s1", "10.0.0.1", "ok")
	if e.ID == "" || e.CreatedAt.IsZero() || e.Source == "" {
		t.Errorf("NewEvent left fields empty: %+v", e)
	}
}
