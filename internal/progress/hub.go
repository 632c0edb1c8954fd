package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Config controls buffering and flushing for the Hub. Zero values pick
// defaults sized for a run of a few hundred camps.
type Config struct {
	// BufferSize bounds events waiting for the flusher.
	BufferSize int

	// FlushEvery is the longest an entity event waits before reaching sinks.
	// Run boundaries flush immediately.
	FlushEvery time.Duration

	// SinkTimeout bounds each sink call.
	SinkTimeout time.Duration

	// BaseContext is the parent of every sink call.
	BaseContext context.Context
	Logger      *zap.Logger
}

const (
	defaultBufferSize  = 1024
	defaultFlushEvery  = 250 * time.Millisecond
	defaultSinkTimeout = 5 * time.Second
	dropLogInterval    = 5 * time.Second
)

// Stats counts what passed through a Hub.
type Stats struct {
	Emitted int64
	Dropped int64
	Batches int64
}

// Hub collects events from concurrent entity tasks and hands them to every
// sink in batches. Emit never blocks callers.
type Hub struct {
	cfg     Config
	sinks   []Sink
	events  chan Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *zap.Logger
	dropLog rate.Sometimes

	emitted atomic.Int64
	dropped atomic.Int64
	batches atomic.Int64
	closed  atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the flusher and returns a Hub ready for Emit.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = defaultFlushEvery
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	live := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	h := &Hub{
		cfg:     cfg,
		sinks:   live,
		events:  make(chan Event, cfg.BufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  cfg.Logger,
		dropLog: rate.Sometimes{Interval: dropLogInterval},
	}
	go h.run()
	return h
}

// Emit queues evt. Invalid events are discarded; when the buffer is full the
// event is dropped and counted.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
		h.emitted.Add(1)
	default:
		h.dropped.Add(1)
		h.dropLog.Do(func() {
			h.logger.Warn("progress events dropped; sinks are falling behind",
				zap.Int64("dropped_total", h.dropped.Load()))
		})
	}
}

// Stats reports counters so far.
func (h *Hub) Stats() Stats {
	if h == nil {
		return Stats{}
	}
	return Stats{
		Emitted: h.emitted.Load(),
		Dropped: h.dropped.Load(),
		Batches: h.batches.Load(),
	}
}

// Close stops accepting events, flushes what is queued, closes every sink
// and waits for the flusher to exit or ctx to end. Repeated calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	ticker := time.NewTicker(h.cfg.FlushEvery)
	defer ticker.Stop()

	var pending []Event
	for {
		select {
		case evt := <-h.events:
			pending = append(pending, evt)
			if evt.Stage.RunLevel() {
				pending = h.flush(pending)
			}
		case <-ticker.C:
			pending = h.flush(pending)
		case <-h.stopCh:
			h.drain(pending)
			return
		}
	}
}

// drain flushes everything still buffered and closes the sinks.
func (h *Hub) drain(pending []Event) {
	for {
		select {
		case evt := <-h.events:
			pending = append(pending, evt)
		default:
			h.flush(pending)
			h.closeSinks()
			return
		}
	}
}

// flush hands batch to every sink concurrently and returns batch emptied for
// reuse. Sink failures are logged.
func (h *Hub) flush(batch []Event) []Event {
	if len(batch) == 0 {
		return batch
	}
	out := append([]Event(nil), batch...)
	h.batches.Add(1)

	var g errgroup.Group
	for _, sink := range h.sinks {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
			defer cancel()
			if err := sink.Consume(ctx, out); err != nil {
				h.logger.Warn("progress sink consume failed",
					zap.String("sink", fmt.Sprintf("%T", sink)), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return batch[:0]
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
