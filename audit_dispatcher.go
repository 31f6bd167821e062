package authsession

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// auditDispatcher hands audit events to the sink on a single goroutine, so
// a slow sink never adds latency to a flow and events of one session reach
// the sink in the order the engine produced them.
type auditDispatcher struct {
	sink       AuditSink
	queue      chan AuditEvent
	dropIfFull bool
	logger     zerolog.Logger

	// mu guards closed and the close of queue against in-progress sends.
	mu      sync.RWMutex
	closed  bool
	stop    chan struct{}
	drained chan struct{}
	once    sync.Once

	drops flowDrops
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, logger zerolog.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		queue:      make(chan AuditEvent, size),
		dropIfFull: cfg.DropIfFull,
		logger:     logger,
		stop:       make(chan struct{}),
		drained:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *auditDispatcher) run() {
	defer close(d.drained)
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *auditDispatcher) deliver(event AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.drops.add(event.Flow)
			d.logger.Error().
				Interface("panic", r).
				Str("event", event.EventType).
				Str("flow", event.Flow).
				Msg("audit sink panicked")
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event. With DropIfFull a full queue drops the event and
// counts it against its flow, except for refresh-token replays which always
// wait for room. A blocked Emit gives up when ctx ends or the dispatcher
// closes.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull && !mustDeliver(event) {
		select {
		case d.queue <- event:
		default:
			d.drops.add(event.Flow)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drops.add(event.Flow)
	case <-d.stop:
	}
}

// mustDeliver reports events that signal a stolen refresh token.
func mustDeliver(event AuditEvent) bool {
	return event.EventType == auditEventRotateReplay
}

// Close stops accepting events, waits until the queued ones reach the sink
// and logs the drop tally if anything was lost.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		close(d.stop)
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
		<-d.drained

		if total := d.drops.total(); total > 0 {
			byFlow := zerolog.Dict()
			for flow, n := range d.drops.byFlow() {
				byFlow = byFlow.Uint64(flow, n)
			}
			d.logger.Warn().Uint64("dropped", total).Dict("by_flow", byFlow).Msg("audit events dropped")
		}
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.drops.total()
}

func (d *auditDispatcher) DroppedByFlow() map[string]uint64 {
	if d == nil {
		return map[string]uint64{}
	}
	return d.drops.byFlow()
}

// flowDrops counts lost events per flow. Events outside a flow, such as
// rate limit triggers, are counted under "other".
type flowDrops struct {
	signup atomic.Uint64
	reset  atomic.Uint64
	signin atomic.Uint64
	other  atomic.Uint64
}

func (f *flowDrops) add(flow string) {
	switch flow {
	case flowSignup:
		f.signup.Add(1)
	case flowReset:
		f.reset.Add(1)
	case flowSignin:
		f.signin.Add(1)
	default:
		f.other.Add(1)
	}
}

func (f *flowDrops) total() uint64 {
	return f.signup.Load() + f.reset.Load() + f.signin.Load() + f.other.Load()
}

func (f *flowDrops) byFlow() map[string]uint64 {
	out := make(map[string]uint64, 4)
	for flow, n := range map[string]uint64{
		flowSignup: f.signup.Load(),
		flowReset:  f.reset.Load(),
		flowSignin: f.signin.Load(),
		"other":    f.other.Load(),
	} {
		if n > 0 {
			out[flow] = n
		}
	}
	return out
}
