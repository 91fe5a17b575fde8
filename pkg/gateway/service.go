package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"routerbot/pkg/bus"
	"routerbot/pkg/channel"
	"routerbot/pkg/config"
	"routerbot/pkg/dispatcher"
	"routerbot/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const (
	defaultProbeInterval = 30 * time.Second
	shutdownTimeout      = 5 * time.Second
)

// Dispatcher processes one inbound message and exposes the operational counters.
type Dispatcher interface {
	Handle(ctx context.Context, msg bus.InboundMessage)
	Snapshot() dispatcher.Stats
}

// Prober checks that the generation endpoint answers.
type Prober interface {
	Probe(ctx context.Context) error
}

// Option configures a Service.
type Option func(*Service)

// WithProber enables periodic generation probes. Without a prober generation
// is treated as disabled and does not affect readiness.
func WithProber(p Prober) Option {
	return func(s *Service) {
		s.prober = p
	}
}

func WithProbeInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.probeInterval = d
		}
	}
}

// WithoutStatusServer skips the HTTP status endpoints, for local runs.
func WithoutStatusServer() Option {
	return func(s *Service) {
		s.skipStatusServer = true
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// Service runs the channel adapters, feeds their messages through the bus to a
// bounded pool of dispatch workers and serves the status endpoints.
type Service struct {
	cfg           config.GatewayConfig
	log           *slog.Logger
	bus           *bus.MessageBus
	dispatcher    Dispatcher
	prober        Prober
	probeInterval time.Duration
	channels      []channel.Adapter

	skipStatusServer bool

	mu            sync.RWMutex
	startedAt     time.Time
	probeLastOKAt time.Time
	probeLastErr  string
	channelStates map[string]channelState
	eventCounts   map[bus.EventType]int64
	lastFailure   *bus.Event
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status            string                  `json:"status"`
	UptimeSeconds     int64                   `json:"uptime_seconds"`
	GenerationEnabled bool                    `json:"generation_enabled"`
	ProbeLastOKAt     string                  `json:"generation_last_ok_at,omitempty"`
	ProbeLastErr      string                  `json:"generation_last_error,omitempty"`
	QueuedMessages    int                     `json:"queued_messages"`
	Channels          map[string]channelState `json:"channels"`
}

func NewService(cfg config.GatewayConfig, msgBus *bus.MessageBus, d Dispatcher, adapters []channel.Adapter, opts ...Option) (*Service, error) {
	if msgBus == nil {
		return nil, errors.New("message bus is required")
	}
	if d == nil {
		return nil, errors.New("dispatcher is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = config.DefaultWorkers
	}

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		channelStates[adapter.Name()] = channelState{}
	}

	s := &Service{
		cfg:           cfg,
		log:           slog.Default(),
		bus:           msgBus,
		dispatcher:    d,
		probeInterval: defaultProbeInterval,
		channels:      adapters,
		channelStates: channelStates,
		eventCounts:   make(map[bus.EventType]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "gateway.service")
	return s, nil
}

// Run blocks until ctx is done or a component fails. A channel that stops on
// its own without an error is only marked as not running.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.checkGeneration(ctx); err != nil {
		s.log.Warn("Generation probe failed, continuing with fallbacks", "error", err)
	}

	for _, adapter := range s.channels {
		s.setChannelState(adapter.Name(), channelState{Running: true})
	}

	g, gctx := errgroup.WithContext(ctx)

	events, unsubscribe := s.bus.SubscribeEvents(gctx, eventBufferSize)
	defer unsubscribe()
	g.Go(func() error {
		s.trackEvents(events)
		return nil
	})

	if !s.skipStatusServer {
		g.Go(func() error {
			return s.runStatusServer(gctx)
		})
	}

	if s.prober != nil {
		g.Go(func() error {
			s.probeLoop(gctx)
			return nil
		})
	}

	g.Go(func() error {
		s.consume(gctx)
		return nil
	})

	for _, adapter := range s.channels {
		g.Go(func() error {
			err := adapter.Run(gctx, s.enqueue)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
			s.log.Info("Channel stopped", "channel", adapter.Name())
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// enqueue is the channel.Handler given to every adapter.
func (s *Service) enqueue(ctx context.Context, msg bus.InboundMessage) {
	if !s.bus.PublishInbound(ctx, msg) {
		s.log.Warn("Dropped inbound message", "channel", msg.Channel, "chat_id", msg.ChatID, "text_preview", logger.Preview(msg.Text))
	}
}

// consume hands queued messages to at most cfg.Workers concurrent dispatcher
// calls. Messages from the same chat are not serialized.
func (s *Service) consume(ctx context.Context) {
	var workers errgroup.Group
	workers.SetLimit(s.cfg.Workers)

	s.log.Info("Dispatch workers started", "workers", s.cfg.Workers)
	for {
		msg, ok := s.bus.ConsumeInbound(ctx)
		if !ok {
			break
		}
		workers.Go(func() error {
			s.dispatcher.Handle(ctx, msg)
			return nil
		})
	}
	_ = workers.Wait()
}

func (s *Service) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.checkGeneration(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("Generation probe failed", "error", err)
			}
		}
	}
}

func (s *Service) runStatusServer(ctx context.Context) error {
	host := strings.TrimSpace(s.cfg.Host)
	if host == "" {
		host = config.DefaultGatewayHost
	}

	port := s.cfg.Port
	if port <= 0 {
		port = config.DefaultGatewayPort
	}

	addr := host + ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.statusHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start status server: %w", err)
	}
	return nil
}

func (s *Service) statusHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/statsz", s.handleStats)
	return mux
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.currentStatus("ok"))
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.writeJSON(w, statusCode, s.currentStatus(status))
}

func (s *Service) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.currentStats())
}

func (s *Service) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	probeLastOK := ""
	if !s.probeLastOKAt.IsZero() {
		probeLastOK = s.probeLastOKAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:            status,
		UptimeSeconds:     uptime,
		GenerationEnabled: s.prober != nil,
		ProbeLastOKAt:     probeLastOK,
		ProbeLastErr:      s.probeLastErr,
		QueuedMessages:    s.bus.Pending(),
		Channels:          channels,
	}
}

// isReady requires a running channel and, when generation is enabled, a
// successful last probe.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	anyRunning := false
	for _, state := range s.channelStates {
		if state.Running {
			anyRunning = true
			break
		}
	}
	if !anyRunning {
		return false
	}

	if s.prober == nil {
		return true
	}
	return !s.probeLastOKAt.IsZero() && s.probeLastErr == ""
}

func (s *Service) checkGeneration(ctx context.Context) error {
	if s.prober == nil {
		return nil
	}

	if err := s.prober.Probe(ctx); err != nil {
		s.mu.Lock()
		s.probeLastErr = err.Error()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.probeLastErr = ""
	s.probeLastOKAt = time.Now().UTC()
	s.mu.Unlock()
	return nil
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil || errors.Is(err, context.Canceled) {
		return ""
	}
	return err.Error()
}
