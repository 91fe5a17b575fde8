package channel

import (
	"context"
	"fmt"
	"sync"

	"routerbot/pkg/bus"
)

// Handler accepts one inbound message from an adapter. It must not block on
// message processing.
type Handler func(context.Context, bus.InboundMessage)

// Messenger is the outbound half of a messaging platform.
type Messenger interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
	SendTyping(ctx context.Context, chatID string) error
}

// Adapter bridges one external transport (for example Telegram) into the bot.
type Adapter interface {
	Messenger
	Name() string
	Run(context.Context, Handler) error
}

// Registry routes outbound messages to the adapter that owns the channel.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	order    []string
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, adapter := range adapters {
		r.Register(adapter)
	}
	return r
}

// Adapters returns the registered adapters in registration order.
func (r *Registry) Adapters() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Adapter, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.adapters[name])
	}
	return out
}

// For returns a Messenger bound to one channel.
func (r *Registry) For(name string) (Messenger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown channel %q", name)
	}
	return adapter, nil
}

// Register adds an adapter, or replaces the one with the same name in place.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := adapter.Name()
	if _, ok := r.adapters[name]; !ok {
		r.order = append(r.order, name)
	}
	r.adapters[name] = adapter
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
