package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"routerbot/pkg/channel"
	"routerbot/pkg/channel/telegram"
	"routerbot/pkg/config"
	"routerbot/pkg/gateway"
	"routerbot/pkg/logger"

	"github.com/spf13/cobra"
)

const telegramChannelName = "telegram"

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the bot on its messaging channels",
	Long:  "Runs routerbot on the enabled channels with health, readiness and stats endpoints.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.gateway")

		registry, err := enabledChannels(cfg, appLogger)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return err
		}
		adapters := registry.Adapters()

		bot, err := newApp(cfg, registry, appLogger)
		if err != nil {
			log.Error("Failed to initialize bot", "error", err)
			return err
		}
		defer bot.close()

		svc, err := gateway.NewService(cfg.Gateway, bot.bus, bot.dispatcher, adapters, bot.serviceOptions(appLogger)...)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return err
		}

		runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info("Gateway started",
			"channels", enabledChannelNames(adapters),
			"generation", cfg.Generation.IsEnabled(),
			"backend", cfg.Generation.Backend,
			"model", cfg.Generation.Model,
			"classifier", cfg.Classifier.IsEnabled(),
			"threshold", bot.router.Threshold(),
			"workers", cfg.Gateway.Workers,
		)
		if bot.generator != nil {
			catalog := bot.generator.Catalog()
			log.Info("Generation catalog loaded", "active_models", len(catalog.Active()), "currency", catalog.Currency())
		}

		err = svc.Run(runCtx)
		bot.logFinalStats(log)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Gateway runtime failed", "error", err)
			return err
		}
		log.Info("Gateway stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

// enabledChannels registers an adapter for every channel switched on in cfg.
func enabledChannels(cfg *config.Config, log *slog.Logger) (*channel.Registry, error) {
	registry := channel.NewRegistry()

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", telegramChannelName, err)
		}
		registry.Register(adapter)
	}

	if registry.Len() == 0 {
		return nil, config.Invalid("channels", "no channels are enabled")
	}

	return registry, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
