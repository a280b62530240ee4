package authcore

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples hot paths from sink latency: Emit hands the event
// to a buffered queue and a single goroutine delivers it to the sink.
type auditDispatcher struct {
	sink       AuditSink
	queue      chan AuditEvent
	quit       chan struct{}
	dropIfFull bool

	wg      sync.WaitGroup
	dropped atomic.Uint64
	closed  atomic.Bool
	once    sync.Once
}

// newAuditDispatcher returns nil when auditing is disabled; a nil dispatcher
// is safe to Emit on and Close.
func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	depth := cfg.BufferSize
	if depth <= 0 {
		depth = 1
	}

	d := &auditDispatcher{
		sink:       sink,
		queue:      make(chan AuditEvent, depth),
		quit:       make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
	}
	d.wg.Add(1)
	go d.pump()
	return d
}

func (d *auditDispatcher) pump() {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.quit:
			d.drain()
			return
		}
	}
}

// drain flushes events queued before Close without accepting new ones.
func (d *auditDispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

func (d *auditDispatcher) deliver(ev AuditEvent) {
	d.sink.Emit(context.Background(), ev)
}

// Emit queues an event. With DropIfFull the call never blocks and a full
// queue bumps the drop counter instead; otherwise it waits until the queue
// accepts the event, the context ends, or the dispatcher shuts down.
func (d *auditDispatcher) Emit(ctx context.Context, ev AuditEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		case <-d.quit:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close stops the dispatcher after draining queued events. Idempotent.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.quit)
		d.wg.Wait()
	})
}

// Dropped reports how many events were discarded under DropIfFull.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
