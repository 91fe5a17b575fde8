package bus

import (
	"context"
	"sync"
)

const defaultBufferSize = 100

// MessageBus queues inbound messages between channel adapters and the dispatch
// workers, and fans out processing events to subscribers.
type MessageBus struct {
	inbound chan InboundMessage

	eventSubscribers      map[uint64]chan Event
	nextEventSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return NewMessageBusWithBuffer(defaultBufferSize)
}

func NewMessageBusWithBuffer(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}

	return &MessageBus{
		inbound:          make(chan InboundMessage, size),
		eventSubscribers: make(map[uint64]chan Event),
		done:             make(chan struct{}),
	}
}

// PublishInbound enqueues msg, blocking while the queue is full. It returns
// false once ctx is done or the bus is closed.
func (mb *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case mb.inbound <- msg:
		return true
	}
}

// ConsumeInbound blocks until a message is available, ctx is done or the bus
// is closed.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case <-mb.done:
		return InboundMessage{}, false
	case msg := <-mb.inbound:
		return msg, true
	}
}

// Pending reports the number of queued inbound messages.
func (mb *MessageBus) Pending() int {
	return len(mb.inbound)
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, ch := range mb.eventSubscribers {
			close(ch)
			delete(mb.eventSubscribers, id)
		}
		mb.mu.Unlock()
	})
}
