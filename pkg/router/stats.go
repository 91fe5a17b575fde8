package router

import (
	"sync"
	"time"
)

// Stats is a snapshot of router counters. FallbackRequests counts every reply
// not produced by the classified tier.
type Stats struct {
	TotalRequests      int64     `json:"total_requests"`
	ClassifiedRequests int64     `json:"classified_requests"`
	FallbackRequests   int64     `json:"fallback_requests"`
	PatternRequests    int64     `json:"pattern_requests"`
	GenerationRequests int64     `json:"generation_requests"`
	DefaultRequests    int64     `json:"default_requests"`
	ErrorCount         int64     `json:"error_count"`
	LastRequestAt      time.Time `json:"last_request_at"`
	LastError          string    `json:"last_error,omitempty"`
	LastErrorAt        time.Time `json:"last_error_at"`
}

type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func (s *statsRecorder) begin() time.Time {
	now := time.Now()
	s.mu.Lock()
	s.stats.TotalRequests++
	s.stats.LastRequestAt = now
	s.mu.Unlock()
	return now
}

func (s *statsRecorder) finish(reply Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch reply.Outcome {
	case OutcomeClassified:
		s.stats.ClassifiedRequests++
	case OutcomePattern:
		s.stats.FallbackRequests++
		s.stats.PatternRequests++
	case OutcomeGeneration:
		s.stats.FallbackRequests++
		s.stats.GenerationRequests++
	case OutcomeDefault:
		s.stats.FallbackRequests++
		s.stats.DefaultRequests++
	}

	if reply.Err != nil {
		s.stats.ErrorCount++
		s.stats.LastError = reply.Err.Error()
		s.stats.LastErrorAt = time.Now()
	}
}

func (s *statsRecorder) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *statsRecorder) reset() {
	s.mu.Lock()
	s.stats = Stats{}
	s.mu.Unlock()
}

// Stats returns a copy of the counters.
func (r *Router) Stats() Stats {
	return r.stats.snapshot()
}

// ResetStats zeroes the counters.
func (r *Router) ResetStats() {
	r.stats.reset()
}
