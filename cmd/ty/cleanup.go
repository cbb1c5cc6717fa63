package main

import (
	"fmt"
	"time"

	"github.com/kwalsh/ticketyard/internal/cleanup"
	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete stale incomplete sessions past the retention age",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			gormDB, err := connectFromConfig(cfg)
			if err != nil {
				return err
			}
			retention := time.Duration(cfg.Retention.Days) * 24 * time.Hour
			n, err := cleanup.Sweep(gormDB, retention)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stale sessions\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "ticketyard.yaml", "path to Ticketyard config file")
	return cmd
}
