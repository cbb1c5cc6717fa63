package main

import (
	"fmt"

	"github.com/kwalsh/ticketyard/internal/export"
	"github.com/kwalsh/ticketyard/internal/models"
	"github.com/kwalsh/ticketyard/internal/workflow"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var configPath string
	var failFast bool

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a session's ready tickets to the configured tracker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, configPath, args[0], failFast)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "ticketyard.yaml", "path to Ticketyard config file")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "abort on the first ticket failure")
	return cmd
}

func runExport(cmd *cobra.Command, configPath, sessionID string, failFast bool) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	gormDB, err := connectFromConfig(cfg)
	if err != nil {
		return err
	}

	exporter, err := buildExporter(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	if _, err := workflow.StartTask(gormDB, sessionID, models.TaskExport, models.NewID()); err != nil {
		return err
	}

	result, err := export.Run(cmd.Context(), export.RunOpts{
		DB:        gormDB,
		SessionID: sessionID,
		Exporter:  exporter,
		FailFast:  failFast,
		Notifier:  buildNotifier(cfg),
	})
	if err != nil {
		if _, ferr := workflow.FailTask(gormDB, sessionID, err.Error()); ferr != nil {
			return ferr
		}
		return err
	}
	if _, err := workflow.CompleteTask(gormDB, sessionID); err != nil {
		return err
	}

	if result.Degraded {
		fmt.Fprintln(out, "Warning: dependency cycle detected, tickets were exported in display order")
	}
	fmt.Fprintf(out, "Exported %d tickets", result.Exported)
	if result.Failed > 0 {
		fmt.Fprintf(out, ", %d failed (see session errors)", result.Failed)
	}
	fmt.Fprintln(out)
	return nil
}
