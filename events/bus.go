package events

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/bestieapp/authlink/errors"
	"github.com/bestieapp/authlink/logging"
)

// Handler receives published events. Handlers may be called concurrently.
type Handler func(ctx context.Context, topic string, data any) error

// Option configures the bus.
type Option func(*Bus)

// WithWorkerPool sets the number of worker goroutines for delivering events.
// Default is 16. Set to 0 to use unbounded goroutines.
func WithWorkerPool(size int) Option {
	return func(b *Bus) {
		b.workers = size
	}
}

// Bus is an in-memory broadcast bus. Publishing never blocks on handler
// completion and handler errors and panics are logged, not returned.
type Bus struct {
	handlerCtx context.Context

	mu          sync.Mutex
	subscribers map[string][]Handler
	started     bool

	wg      sync.WaitGroup
	jobs    chan job
	workers int
}

type job struct {
	topic   string
	handler Handler
	data    any
}

// New returns a new bus. The context carries the logger used for handler
// failures.
func New(ctx context.Context, opts ...Option) *Bus {
	b := &Bus{
		handlerCtx: logging.With(ctx, logging.FromContext(ctx).Named("events")),
		workers:    16,
		jobs:       make(chan job, 256),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers == nil {
		b.subscribers = map[string][]Handler{}
	}
	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

// Publish delivers data to every subscriber of the topic.
func (b *Bus) Publish(topic string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		b.startWorkers()
		b.started = true
	}

	for _, handler := range b.subscribers[topic] {
		b.wg.Add(1)
		if b.workers == 0 {
			go b.execute(job{topic: topic, handler: handler, data: data})
		} else {
			b.jobs <- job{topic: topic, handler: handler, data: data}
		}
	}
}

// Wait blocks until all in-flight deliveries complete, or the context ends.
func (b *Bus) Wait(ctx context.Context) error {
	c := make(chan struct{})
	go func() {
		defer close(c)
		b.wg.Wait()
	}()
	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return errors.New("events: timeout waiting for handlers to finish")
	}
}

func (b *Bus) startWorkers() {
	for i := 0; i < b.workers; i++ {
		go func() {
			for j := range b.jobs {
				b.execute(j)
			}
		}()
	}
}

func (b *Bus) execute(j job) {
	defer func() {
		if r := recover(); r != nil {
			logging.Errorw(b.handlerCtx, "events: recovered from handler panic",
				"topic", j.topic, "error", r, "stack", string(debug.Stack()))
		}
		b.wg.Done()
	}()
	if err := j.handler(b.handlerCtx, j.topic, j.data); err != nil {
		logging.Errorw(b.handlerCtx, "events: handler error", "topic", j.topic, "error", err.Error())
	}
}
