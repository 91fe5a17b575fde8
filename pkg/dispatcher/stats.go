package dispatcher

import (
	"fmt"
	"sync"
	"time"

	"routerbot/pkg/bus"
	"routerbot/pkg/router"
)

// ErrorDetail describes the most recent processing failure.
type ErrorDetail struct {
	Message string    `json:"message"`
	Kind    bus.Kind  `json:"kind"`
	At      time.Time `json:"at"`
}

// Stats is a point-in-time copy of the operational counters.
type Stats struct {
	StartedAt         time.Time     `json:"started_at"`
	Uptime            time.Duration `json:"uptime"`
	MessagesProcessed int64         `json:"messages_processed"`
	ErrorCount        int64         `json:"error_count"`
	LastError         *ErrorDetail  `json:"last_error,omitempty"`
	LastActivity      time.Time     `json:"last_activity"`
	Router            *router.Stats `json:"router,omitempty"`
}

type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder(startedAt time.Time) *statsRecorder {
	return &statsRecorder{stats: Stats{StartedAt: startedAt}}
}

func (s *statsRecorder) recordProcessed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.MessagesProcessed++
	s.stats.LastActivity = time.Now()
}

func (s *statsRecorder) recordError(err error, kind bus.Kind) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ErrorCount++
	s.stats.LastActivity = now
	s.stats.LastError = &ErrorDetail{Message: err.Error(), Kind: kind, At: now}
}

func (s *statsRecorder) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.stats
	if out.LastError != nil {
		detail := *out.LastError
		out.LastError = &detail
	}
	out.Uptime = time.Since(out.StartedAt)
	return out
}

// Snapshot returns the dispatcher counters together with the router counters.
func (d *Dispatcher) Snapshot() Stats {
	out := d.stats.snapshot()
	if d.router != nil {
		routerStats := d.router.Stats()
		out.Router = &routerStats
	}
	return out
}

// FormatUptime renders d as "1 ч 2 мин 3 сек", dropping leading zero units.
func FormatUptime(d time.Duration) string {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}
	hours := total / 3600
	minutes := total % 3600 / 60
	seconds := total % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%d ч %d мин %d сек", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%d мин %d сек", minutes, seconds)
	default:
		return fmt.Sprintf("%d сек", seconds)
	}
}
