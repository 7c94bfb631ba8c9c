package main

import (
	"bits-gateway/internal/config"
	"bits-gateway/internal/db"
	"github.com/spf13/cobra"
)

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			return db.RunMigrations(db.GetConnStr(cfg.Database), cfg.Database.MigrationsDir)
		},
	}
}
