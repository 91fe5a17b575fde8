package bus

import (
	"context"
	"testing"
	"time"
)

func TestInboundQueueOrder(t *testing.T) {
	mb := NewMessageBusWithBuffer(4)
	t.Cleanup(mb.Close)

	ctx := context.Background()
	for _, text := range []string{"first", "second"} {
		if ok := mb.PublishInbound(ctx, InboundMessage{Channel: "console", ChatID: "1", Text: text}); !ok {
			t.Fatalf("PublishInbound(%q) = false, want true", text)
		}
	}
	if got := mb.Pending(); got != 2 {
		t.Fatalf("Pending = %d, want 2", got)
	}

	for _, want := range []string{"first", "second"} {
		msg, ok := mb.ConsumeInbound(ctx)
		if !ok {
			t.Fatal("expected inbound consume to succeed")
		}
		if msg.Text != want {
			t.Fatalf("text = %q, want %q", msg.Text, want)
		}
	}
}

func TestCloseStopsBusOperations(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()
	mb.Close()

	if ok := mb.PublishInbound(context.Background(), InboundMessage{Text: "hello"}); ok {
		t.Fatal("expected inbound publish to fail after close")
	}
	if _, ok := mb.ConsumeInbound(context.Background()); ok {
		t.Fatal("expected inbound consume to stop after close")
	}
}

func TestContextCancellation(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if ok := mb.PublishInbound(ctx, InboundMessage{Text: "hello"}); ok {
		t.Fatal("expected publish to fail on canceled context")
	}
	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Fatal("expected consume to fail on canceled context")
	}
}

func TestConsumeUnblocksOnClose(t *testing.T) {
	mb := NewMessageBus()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = mb.ConsumeInbound(context.Background())
	}()

	mb.Close()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("consume did not unblock after close")
	}
}

func TestEventFanout(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx := context.Background()
	eventsA, unsubA := mb.SubscribeEvents(ctx, 1)
	defer unsubA()
	eventsB, unsubB := mb.SubscribeEvents(ctx, 1)
	defer unsubB()

	if ok := mb.PublishEvent(ctx, Event{Type: EventMessageReceived, RequestID: "1"}); !ok {
		t.Fatal("expected event publish to succeed")
	}

	for name, events := range map[string]<-chan Event{"A": eventsA, "B": eventsB} {
		select {
		case got := <-events:
			if got.Type != EventMessageReceived {
				t.Fatalf("subscriber %s event type = %q, want %q", name, got.Type, EventMessageReceived)
			}
			if got.At.IsZero() {
				t.Fatalf("subscriber %s event timestamp not set", name)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("subscriber %s did not receive event", name)
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublishEvent(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx := context.Background()
	events, unsubscribe := mb.SubscribeEvents(ctx, 1)
	defer unsubscribe()

	mb.PublishEvent(ctx, Event{Type: EventMessageReceived})

	start := time.Now()
	if ok := mb.PublishEvent(ctx, Event{Type: EventMessageReplied}); !ok {
		t.Fatal("expected second event publish to succeed")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("publish event blocked on slow subscriber")
	}

	select {
	case <-events:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected at least one event")
	}
}

func TestUnsubscribeStopsEvents(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx := context.Background()
	events, unsubscribe := mb.SubscribeEvents(ctx, 1)
	unsubscribe()

	mb.PublishEvent(ctx, Event{Type: EventMessageFailed})

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected closed event channel")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected event channel close after unsubscribe")
	}
}

func TestMessageKind(t *testing.T) {
	tests := []struct {
		name string
		msg  InboundMessage
		want Kind
	}{
		{name: "command", msg: InboundMessage{Text: "/start"}, want: KindCommand},
		{name: "command with leading space", msg: InboundMessage{Text: "  /help"}, want: KindCommand},
		{name: "lone slash is text", msg: InboundMessage{Text: "/"}, want: KindText},
		{name: "text", msg: InboundMessage{Text: "привет"}, want: KindText},
		{name: "media", msg: InboundMessage{Media: &Media{Type: MediaPhoto, Count: 1}}, want: KindMedia},
		{name: "empty media", msg: InboundMessage{Media: &Media{}}, want: KindUnknown},
		{name: "blank", msg: InboundMessage{Text: "   "}, want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Kind(); got != tt.want {
				t.Fatalf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReplyAddressesOriginChat(t *testing.T) {
	in := InboundMessage{Channel: "telegram", ChatID: "42", Text: "hi"}
	out := in.Reply("hello")

	if out.Channel != "telegram" || out.ChatID != "42" {
		t.Fatalf("reply address = %s/%s, want telegram/42", out.Channel, out.ChatID)
	}
	if !out.HTML {
		t.Fatal("expected HTML reply")
	}
}
