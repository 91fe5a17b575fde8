package gateway

import (
	"maps"

	"routerbot/pkg/bus"
	"routerbot/pkg/dispatcher"
)

const eventBufferSize = 256

// statsResponse is the /statsz payload.
type statsResponse struct {
	dispatcher.Stats
	Events      map[bus.EventType]int64 `json:"events"`
	LastFailure *bus.Event              `json:"last_failure,omitempty"`
}

// trackEvents counts processing events until events is closed.
func (s *Service) trackEvents(events <-chan bus.Event) {
	for event := range events {
		s.recordEvent(event)
	}
}

func (s *Service) recordEvent(event bus.Event) {
	s.mu.Lock()
	s.eventCounts[event.Type]++
	if event.Type == bus.EventMessageFailed {
		failure := event
		s.lastFailure = &failure
	}
	s.mu.Unlock()

	if event.Type == bus.EventMessageFailed {
		s.log.Warn("Message failed",
			"request_id", event.RequestID,
			"channel", event.Channel,
			"chat_id", event.ChatID,
			"kind", event.Kind,
			"error", event.Error,
		)
	}
}

func (s *Service) currentStats() statsResponse {
	s.mu.RLock()
	counts := maps.Clone(s.eventCounts)
	var lastFailure *bus.Event
	if s.lastFailure != nil {
		failure := *s.lastFailure
		lastFailure = &failure
	}
	s.mu.RUnlock()

	return statsResponse{
		Stats:       s.dispatcher.Snapshot(),
		Events:      counts,
		LastFailure: lastFailure,
	}
}
