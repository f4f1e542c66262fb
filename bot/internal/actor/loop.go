package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

var (
	ErrNotStarted = errors.New("loop: not started")
	ErrStopped    = errors.New("loop: stopped")
)

// Handler processes messages submitted to the loop. It always runs on the loop goroutine.
type Handler[M any] func(ctx context.Context, msg M)

// Config controls the behaviour of the single thread loop.
type Config[M any] struct {
	Handler   Handler[M]
	QueueSize int
	Logger    *slog.Logger
}

// Loop delivers incoming messages to the provided handler on a single goroutine,
// so state owned by the handler needs no locking.
type Loop[M any] struct {
	handler Handler[M]
	queue   chan M
	logger  *slog.Logger

	started atomic.Bool
	stopped atomic.Bool

	stopCh chan struct{}
	done   chan struct{}
}

// New creates a Loop with the supplied configuration.
func New[M any](cfg Config[M]) (*Loop[M], error) {
	if cfg.Handler == nil {
		return nil, errors.New("loop: handler is required")
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loop[M]{
		handler: cfg.Handler,
		queue:   make(chan M, queueSize),
		logger:  logger,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start launches the single-thread loop. It must be called once.
// The loop exits when ctx is cancelled or Stop is called.
func (l *Loop[M]) Start(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return errors.New("loop: start called multiple times")
	}
	go l.run(ctx)
	return nil
}

func (l *Loop[M]) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("loop: context cancelled, shutting down", "err", ctx.Err())
			return
		case <-l.stopCh:
			l.logger.Debug("loop: stopped")
			return
		case msg := <-l.queue:
			l.handle(ctx, msg)
		}
	}
}

func (l *Loop[M]) handle(ctx context.Context, msg M) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop: handler panicked", "panic", fmt.Sprint(r))
		}
	}()
	l.handler(ctx, msg)
}

// Submit enqueues a message to be processed by the loop.
func (l *Loop[M]) Submit(ctx context.Context, msg M) error {
	if !l.started.Load() {
		return ErrNotStarted
	}
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	case l.queue <- msg:
		return nil
	}
}

// Stop ends the loop and waits for the handler to return.
// Messages still queued are dropped.
func (l *Loop[M]) Stop(ctx context.Context) error {
	if l.stopped.CompareAndSwap(false, true) {
		close(l.stopCh)
	}
	if !l.started.Load() {
		return nil
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the loop goroutine has exited.
func (l *Loop[M]) Done() <-chan struct{} {
	return l.done
}
