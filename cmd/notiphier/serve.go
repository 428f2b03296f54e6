package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dwilches/phabricator-slack-notifier/internal/config"
	"github.com/dwilches/phabricator-slack-notifier/internal/directory"
	"github.com/dwilches/phabricator-slack-notifier/internal/notifier"
	"github.com/dwilches/phabricator-slack-notifier/internal/phab"
	"github.com/dwilches/phabricator-slack-notifier/internal/server"
	"github.com/dwilches/phabricator-slack-notifier/internal/slack"
	"github.com/dwilches/phabricator-slack-notifier/internal/types"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the firehose webhook server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := buildLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")
	return cmd
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log_level %q: %w", level, err)
	}
	logConfig := zap.NewProductionConfig()
	logConfig.Level = zap.NewAtomicLevelAt(lvl)
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return logConfig.Build()
}

// run wires the collaborators and serves until ctx is cancelled. Separated
// from the cobra handler for testability.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting Slack Notiphier",
		zap.String("phabricator_url", cfg.PhabricatorURL),
		zap.String("listen_addr", cfg.ListenAddr))

	phabClient, err := phab.NewClient(logger, phab.ClientConfig{
		URL:   cfg.PhabricatorURL,
		Token: cfg.PhabricatorToken,
	})
	if err != nil {
		return err
	}
	// A bad URL or token should fail startup, not the first webhook.
	if err := phabClient.Ping(ctx); err != nil {
		return fmt.Errorf("phabricator health check: %w", err)
	}

	router, err := notifier.NewChannelRouter(cfg.Channels)
	if err != nil {
		return err
	}

	slackClient, err := slack.NewClient(logger, slack.ClientConfig{
		Token:          cfg.SlackToken,
		DefaultChannel: router.Default(),
	})
	if err != nil {
		return err
	}

	phabUsers, err := phabClient.Users(ctx)
	if err != nil {
		return err
	}
	slackUsers, err := slackClient.Users(ctx)
	if err != nil {
		return err
	}
	dir := directory.Build(logger, phabUsers, slackUsers)

	dispatcher := notifier.NewDispatcher(logger, phabClient, dir, slackClient, router)

	startup := "Slack Notiphier started running."
	logger.Info(startup)
	slackClient.Send(ctx, types.Message{Text: startup, Severity: types.SeverityInfo})

	return server.New(logger, cfg.ListenAddr, dispatcher).Run(ctx)
}
