package application

import (
	"context"
	"sort"
	"sync"
)

// HandlerFunc is the shape every topic handler reduces to: side effects of
// (shop, payload), no return value beyond the error.
type HandlerFunc func(ctx context.Context, shop string, payload []byte) error

// Registry maps webhook topics to their handlers. It is constructed once at
// startup and injected wherever dispatch happens, so tests can substitute
// fakes; there is deliberately no package-level default instance.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds a handler to a topic, replacing any previous binding.
func (r *Registry) Register(topic string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[topic] = fn
}

// Lookup returns the handler for a topic. The same lookup serves live
// deliveries and dead-letter replays, so replay never depends on a handler
// reference captured when the delivery first arrived.
func (r *Registry) Lookup(topic string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[topic]
	return fn, ok
}

// Topics returns the registered topics in stable order.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}
