package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/myseetara-source/seetara-website-sub001/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the orders and conversion ledger tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(cmd.Context(), "migrate")
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := database.Open(cmd.Context(), cfg.DB, logger, migratedModels...)
			if err != nil {
				return err
			}
			logger.Info("Migration complete", zap.Int("models", len(migratedModels)))
			return database.Close(db)
		},
	}
}
