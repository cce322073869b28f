package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var (
	// ErrQueueFull is returned by Enqueue when the queue has no room.
	ErrQueueFull = errors.New("notify: queue full")
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("notify: dispatcher closed")
)

// DispatcherOptions tunes a Dispatcher. Zero values pick defaults.
type DispatcherOptions struct {
	Workers         int
	QueueSize       int
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	AttemptTimeout  time.Duration
	// OnFailure is called once a message has exhausted its retries.
	OnFailure func(msg Message, err error)
}

func (o DispatcherOptions) withDefaults() DispatcherOptions {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 500 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 30 * time.Second
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 15 * time.Second
	}
	return o
}

// Retrier delivers one message at a time on the caller's goroutine with
// exponential backoff. Workers, QueueSize and OnFailure are ignored.
type Retrier struct {
	notifier Notifier
	opts     DispatcherOptions
	logger   *slog.Logger
}

// NewRetrier returns a Retrier sending to n.
func NewRetrier(n Notifier, opts DispatcherOptions, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{notifier: n, opts: opts.withDefaults(), logger: logger}
}

// Deliver returns nil once msg is accepted, or the last error after
// MaxRetries+1 attempts. It stops early when ctx is done.
func (r *Retrier) Deliver(ctx context.Context, msg Message) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	b.MaxInterval = r.opts.MaxInterval

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, r.opts.AttemptTimeout)
		defer cancel()
		return struct{}{}, r.notifier.Notify(attemptCtx, msg)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.opts.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn("notify: delivery attempt failed",
				"sid", msg.SID, "message_id", msg.ID, "attempt", attempts, "retry_in", next, "error", err)
		}),
	)
	if err != nil {
		r.logger.Error("notify: delivery failed",
			"sid", msg.SID, "message_id", msg.ID, "event", msg.Event, "attempts", attempts, "error", err)
		return err
	}
	r.logger.Debug("notify: delivered", "sid", msg.SID, "message_id", msg.ID, "attempts", attempts)
	return nil
}

// Dispatcher delivers messages on background workers with exponential backoff.
type Dispatcher struct {
	retrier *Retrier
	opts    DispatcherOptions

	queue chan Message
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	stop   context.CancelFunc
	ctx    context.Context
}

// NewDispatcher starts opts.Workers goroutines draining the queue into n.
func NewDispatcher(n Notifier, opts DispatcherOptions, logger *slog.Logger) *Dispatcher {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		retrier: NewRetrier(n, opts, logger),
		opts:    opts,
		queue:   make(chan Message, opts.QueueSize),
		ctx:     ctx,
		stop:    cancel,
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Enqueue schedules msg without blocking.
func (d *Dispatcher) Enqueue(msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for queued ones to be delivered.
// When ctx expires first, in-flight retries are abandoned and ctx.Err() is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.stop()
		return nil
	case <-ctx.Done():
		d.stop()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for msg := range d.queue {
		if err := d.retrier.Deliver(d.ctx, msg); err != nil && d.opts.OnFailure != nil {
			d.opts.OnFailure(msg, err)
		}
	}
}
