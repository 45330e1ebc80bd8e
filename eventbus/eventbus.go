// Package eventbus provides an in-process topic publish/subscribe bus
// used to fan job lifecycle transitions out to interested
// collaborators (the WebSocket hub, metrics aggregation, audit
// logging) without coupling the queue engine to any of them directly.
package eventbus

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
)

// Topic names used across the engine.
const (
	TopicJobSubmitted   = "job_submitted"
	TopicJobStarted     = "job_started"
	TopicJobCompleted   = "job_completed"
	TopicJobFailed      = "job_failed"
	TopicJobRetry       = "job_retry"
	TopicJobDLQ         = "job_dlq"
	TopicMetricsUpdated = "metrics_updated"
)

// Handler receives an event payload published to a topic. A Handler
// must not block indefinitely: Publish waits for every subscribed
// handler to return before returning itself.
type Handler func(ctx context.Context, payload any)

// Bus is an in-process, topic-keyed publish/subscribe dispatcher.
//
// Bus is safe for concurrent use. Publish never returns an error and
// never rolls back the caller's own operation: a panicking or failing
// handler is logged and otherwise ignored, so that misbehaving
// observers can never affect queue correctness.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *slog.Logger
}

// New creates an empty Bus.
func New(log *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Subscribe registers h to be invoked on every Publish to topic.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Unsubscribe removes h from topic's subscriber list. Handlers are
// compared by their underlying code pointer (reflect.Value.Pointer):
// closures created from the same function literal compare equal even
// when they capture different variables, and the first matching handler
// subscribed to topic is the one removed. Unsubscribe is a no-op if no
// subscribed handler matches.
func (b *Bus) Unsubscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	handlers := b.handlers[topic]
	target := reflect.ValueOf(h).Pointer()
	for i, existing := range handlers {
		if reflect.ValueOf(existing).Pointer() == target {
			b.handlers[topic] = append(handlers[:i:i], handlers[i+1:]...)
			return
		}
	}
}

func (b *Bus) safeInvoke(ctx context.Context, h Handler, topic string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("eventbus handler panic recovered", "topic", topic, "err", r)
		}
	}()
	h(ctx, payload)
}

// Publish invokes every handler subscribed to topic with payload,
// concurrently, and waits for all of them to finish before returning.
// A handler's panic is recovered and logged; it never propagates to
// the publisher.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[topic]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(handlers))
	for _, h := range handlers {
		go func(h Handler) {
			defer wg.Done()
			b.safeInvoke(ctx, h, topic, payload)
		}(h)
	}
	wg.Wait()
}
