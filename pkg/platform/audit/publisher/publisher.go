// Package publisher fronts an audit.Store with an optional asynchronous
// buffer so request handlers never wait on a slow sink.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	audit "faucet/pkg/platform/audit"
)

const (
	defaultBatchSize     = 64
	defaultFlushInterval = 100 * time.Millisecond
)

// Publisher emits audit events to a Store. In synchronous mode Emit returns
// the store's error. In async mode events are queued in a bounded buffer and
// drained in the background; when the buffer is full the oldest events are
// dropped.
type Publisher struct {
	store         audit.Store
	logger        *slog.Logger
	buffer        *ringBuffer
	flushInterval time.Duration

	wake     chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	closeOnce sync.Once
	isClosed bool
	mu       sync.RWMutex
}

type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous emission with a buffer of size events.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.buffer = newRingBuffer(size)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithFlushInterval sets how often the async drain wakes when idle.
func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("audit publisher closed")

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:         store,
		flushInterval: defaultFlushInterval,
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit publishes event. Timestamps are filled in when missing.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	p.mu.RLock()
	closed := p.isClosed
	p.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = event.Action.Category()
	}

	if p.buffer == nil {
		return p.store.Append(ctx, event)
	}
	p.buffer.enqueue(event)
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// Dropped reports how many buffered events were discarded because the
// buffer was full.
func (p *Publisher) Dropped() int64 {
	if p.buffer == nil {
		return 0
	}
	return p.buffer.droppedCount()
}

// Close stops the background drain after flushing what is buffered.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.isClosed = true
		p.mu.Unlock()
		close(p.done)
	})
	p.wg.Wait()
	return nil
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.wake:
			p.flush()
		case <-ticker.C:
			p.flush()
		case <-p.done:
			p.flush()
			return
		}
	}
}

func (p *Publisher) flush() {
	ctx := context.Background()
	for {
		batch := p.buffer.dequeueBatch(defaultBatchSize)
		if len(batch) == 0 {
			return
		}
		for _, event := range batch {
			if err := p.store.Append(ctx, event); err != nil && p.logger != nil {
				p.logger.Warn("failed to persist audit event",
					"action", string(event.Action),
					"error", err,
				)
			}
		}
	}
}
