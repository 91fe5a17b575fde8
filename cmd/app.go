package cmd

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"routerbot/pkg/bus"
	"routerbot/pkg/channel"
	"routerbot/pkg/classifier"
	"routerbot/pkg/config"
	"routerbot/pkg/dispatcher"
	"routerbot/pkg/gateway"
	"routerbot/pkg/generation"
	"routerbot/pkg/router"
)

// app holds the wired message pipeline shared by the gateway and chat commands.
type app struct {
	bus        *bus.MessageBus
	generator  *generation.Client
	router     *router.Router
	dispatcher *dispatcher.Dispatcher
}

func loadCatalog(cfg config.GenerationConfig) (*generation.Catalog, error) {
	catalog := generation.DefaultCatalog()
	if path := strings.TrimSpace(cfg.PriceTable); path != "" {
		loaded, err := generation.LoadCatalog(path)
		if err != nil {
			return nil, config.Invalid("generation.price_table", "%v", err)
		}
		catalog = loaded
	}
	catalog.SetCurrency(cfg.Currency)
	return catalog, nil
}

// newApp builds generation, classifier, router and dispatcher from cfg. The
// generation client is skipped when generation is disabled.
func newApp(cfg *config.Config, registry *channel.Registry, log *slog.Logger) (*app, error) {
	a := &app{bus: bus.NewMessageBus()}

	var gen generation.Generator
	if cfg.Generation.IsEnabled() {
		catalog, err := loadCatalog(cfg.Generation)
		if err != nil {
			return nil, err
		}
		client, err := generation.New(cfg.Generation, catalog, log)
		if err != nil {
			return nil, fmt.Errorf("initialize generation client: %w", err)
		}
		a.generator = client
		gen = client
	}

	intents := classifier.New(gen,
		classifier.WithEnabled(cfg.Classifier.IsEnabled()),
		classifier.WithLogger(log),
	)

	routerOpts := []router.Option{
		router.WithClassifier(intents),
		router.WithThreshold(cfg.Classifier.Threshold()),
		router.WithLogger(log),
	}
	if gen != nil {
		routerOpts = append(routerOpts, router.WithGenerator(gen))
	}
	a.router = router.New(routerOpts...)

	a.dispatcher = dispatcher.New(registry, a.router,
		dispatcher.WithBus(a.bus),
		dispatcher.WithLogger(log),
	)
	return a, nil
}

// serviceOptions adds the generation probe when a client is configured.
func (a *app) serviceOptions(log *slog.Logger, extra ...gateway.Option) []gateway.Option {
	opts := []gateway.Option{gateway.WithLogger(log)}
	if a.generator != nil {
		opts = append(opts, gateway.WithProber(a.generator))
	}
	return append(opts, extra...)
}

// logFinalStats writes the dispatcher counters once the service has stopped.
func (a *app) logFinalStats(log *slog.Logger) {
	s := a.dispatcher.Snapshot()
	attrs := []any{
		"started_at", s.StartedAt.Format(time.RFC3339),
		"uptime", dispatcher.FormatUptime(s.Uptime),
		"messages_processed", s.MessagesProcessed,
		"errors", s.ErrorCount,
	}
	if s.LastError != nil {
		attrs = append(attrs, "last_error", s.LastError.Message)
	}
	if s.Router != nil {
		attrs = append(attrs, "routed", s.Router.TotalRequests, "generated", s.Router.GenerationRequests)
	}
	log.Info("Final stats", attrs...)
}

func (a *app) close() {
	a.bus.Close()
}
