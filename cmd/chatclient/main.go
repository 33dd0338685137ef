package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/channelchat/internal/app"
	"github.com/vovakirdan/channelchat/internal/config"
	"github.com/vovakirdan/channelchat/internal/log"
)

// Version information set at build time.
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:   "chatclient",
		Short: "Terminal client for channel chat servers",
		Long: `chatclient connects to a channel chat server over WebSocket, registers
a user name and joins a channel. Lines typed on stdin are sent to the
channel; lines starting with / are commands (see /help).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			bootLog := log.New(overrides.LogLevel)

			cfg, path, err := config.Load(bootLog, configPath)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(overrides)

			logger := log.New(cfg.LogLevel)
			logger.Debug().Str("config", path).Str("server", cfg.ServerURL).Msg("loaded config")

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return application.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "config file (default: ./chatclient.yaml)")
	flags.StringVarP(&overrides.ServerURL, "server", "s", "", "server WebSocket URL")
	flags.StringVarP(&overrides.UserName, "user", "u", "", "user name to register")
	flags.StringVar(&overrides.Channel, "channel", "", "channel to join after registering")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "trace, debug, info, warn or error")
	flags.StringVar(&overrides.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.DurationVar(&overrides.HeartbeatPeriod, "heartbeat", 0, "heartbeat period")

	cmd.SetContext(context.Background())
	return cmd
}
