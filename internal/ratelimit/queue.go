package ratelimit

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ebisiere/crossarb/internal/config"
)

type task struct {
	ctx   context.Context
	venue string
	run   func(ctx context.Context) error
	done  chan error
}

// Queue is the FIFO execution queue: a single worker drains submitted
// operations one at a time, honoring per-venue spacing through the limiter
// before each runs. Independent admission keys may still proceed concurrently
// at the saga level; the queue only serializes the venue calls themselves.
type Queue struct {
	limiter *Limiter
	tasks   chan task
	logger  *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	isRunning bool
}

// NewQueue creates the execution queue.
func NewQueue(limiter *Limiter, cfg config.RateLimitConfig, logger *logrus.Logger) *Queue {
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		limiter: limiter,
		tasks:   make(chan task, size),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the drain worker. No-op when already running.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.isRunning {
		q.mu.Unlock()
		return
	}
	q.isRunning = true
	q.mu.Unlock()

	q.wg.Add(1)
	go q.drain()
}

// Stop halts the worker. Tasks still queued receive the shutdown error.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return
	}
	q.isRunning = false
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func (q *Queue) drain() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			q.failPending()
			return
		case t := <-q.tasks:
			t.done <- q.execute(t)
		}
	}
}

func (q *Queue) execute(t task) error {
	if err := t.ctx.Err(); err != nil {
		return err
	}
	if err := q.limiter.Wait(t.ctx, t.venue); err != nil {
		return err
	}
	return t.run(t.ctx)
}

func (q *Queue) failPending() {
	for {
		select {
		case t := <-q.tasks:
			t.done <- q.ctx.Err()
		default:
			return
		}
	}
}

// Do enqueues one venue operation and blocks until it has run (or the context
// is cancelled before it starts).
func (q *Queue) Do(ctx context.Context, venue string, fn func(ctx context.Context) error) error {
	t := task{ctx: ctx, venue: venue, run: fn, done: make(chan error, 1)}

	select {
	case q.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-q.ctx.Done():
		return q.ctx.Err()
	}

	select {
	case err := <-t.done:
		return err
	case <-q.ctx.Done():
		return q.ctx.Err()
	}
}
