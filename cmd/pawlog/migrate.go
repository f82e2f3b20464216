package main

import (
	"github.com/spf13/cobra"

	"github.com/rpattn/pawlog/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back database migrations",
	Long:      "Applies every pending migration (up) or rolls back the latest one (down).",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(db.Up), string(db.Down)},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		return db.RunMigrations(cfg.Database, db.Direction(args[0]), logger)
	},
}
