package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/kwalsh/ticketyard/internal/cleanup"
	"github.com/kwalsh/ticketyard/internal/config"
	"github.com/kwalsh/ticketyard/internal/export"
	"github.com/kwalsh/ticketyard/internal/notify"
	"github.com/kwalsh/ticketyard/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Ticketyard API server",
		Long:  "Serves the workflow API and runs the retention cleanup sweep on its schedule.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "ticketyard.yaml", "path to Ticketyard config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	gormDB, err := connectFromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exporter, err := buildExporter(ctx, cfg)
	if err != nil {
		// The API still serves review/validation without an export target.
		log.Printf("serve: export disabled: %v", err)
	}

	retention := time.Duration(cfg.Retention.Days) * 24 * time.Hour
	go func() {
		if err := cleanup.Loop(ctx, gormDB, cfg.Retention.Schedule, retention); err != nil && err != context.Canceled {
			log.Printf("serve: cleanup loop stopped: %v", err)
		}
	}()

	return server.Start(ctx, server.StartOpts{
		DB:       gormDB,
		Port:     cfg.Server.Port,
		Exporter: exporter,
		Notifier: buildNotifier(cfg),
		Out:      cmd.OutOrStdout(),
	})
}

// buildExporter constructs the configured tracker client using the token
// stored by ty login.
func buildExporter(ctx context.Context, cfg *config.Config) (export.Exporter, error) {
	token, err := loadToken(cfg.Export.Target)
	if err != nil {
		return nil, err
	}
	switch cfg.Export.Target {
	case "jira":
		return export.StaticTokenExporter(ctx, cfg.Export.Jira.BaseURL, cfg.Export.Jira.ProjectKey, token), nil
	case "github":
		return export.NewGitHubExporter(ctx, cfg.Export.GitHub.Owner, cfg.Export.GitHub.Repo, token), nil
	}
	return nil, fmt.Errorf("unknown export target %q", cfg.Export.Target)
}

// buildNotifier assembles the configured chat notifiers; nil when none are set.
func buildNotifier(cfg *config.Config) export.Notifier {
	var fanout notify.Fanout
	if cfg.Notify.Slack.BotToken != "" && cfg.Notify.Slack.ChannelID != "" {
		fanout = append(fanout, notify.NewSlack(cfg.Notify.Slack.BotToken, cfg.Notify.Slack.ChannelID))
	}
	if cfg.Notify.Discord.BotToken != "" && cfg.Notify.Discord.ChannelID != "" {
		discord, err := notify.NewDiscord(cfg.Notify.Discord.BotToken, cfg.Notify.Discord.ChannelID)
		if err != nil {
			log.Printf("serve: discord notifier disabled: %v", err)
		} else {
			fanout = append(fanout, discord)
		}
	}
	if len(fanout) == 0 {
		return nil
	}
	return fanout
}
