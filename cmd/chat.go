package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"routerbot/pkg/bus"
	"routerbot/pkg/channel"
	"routerbot/pkg/channel/console"
	"routerbot/pkg/config"
	"routerbot/pkg/gateway"
	"routerbot/pkg/logger"

	"github.com/spf13/cobra"
)

var chatLogFile string

// chatCmd runs the bot against a local terminal chat.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the bot in the terminal",
	Long:  "Starts a local chat that goes through the same router and dispatcher as the gateway. Telegram is not contacted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logOut, closeLog, err := chatLogWriter(chatLogFile)
		if err != nil {
			return err
		}
		defer closeLog()

		appLogger, err := logger.NewWithWriter(cfg.Logging, logOut)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		slog.SetDefault(appLogger)

		runCtx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		adapter := console.NewAdapter(
			console.WithSender(localSender()),
			console.WithLogger(appLogger),
			console.WithOnQuit(cancel),
		)

		registry := channel.NewRegistry(adapter)
		bot, err := newApp(cfg, registry, appLogger)
		if err != nil {
			return err
		}
		defer bot.close()

		svc, err := gateway.NewService(cfg.Gateway, bot.bus, bot.dispatcher, registry.Adapters(),
			bot.serviceOptions(appLogger, gateway.WithoutStatusServer())...)
		if err != nil {
			return err
		}

		err = svc.Run(runCtx)
		bot.logFinalStats(appLogger.With("component", "cmd.chat"))
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatLogFile, "log-file", "", "append logs to this file instead of discarding them")
}

// chatLogWriter keeps log output away from the terminal UI.
func chatLogWriter(path string) (io.Writer, func(), error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return io.Discard, func() {}, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}

func localSender() bus.Sender {
	name := strings.TrimSpace(os.Getenv("USER"))
	return bus.Sender{ID: "local", FirstName: name, Username: name}
}
