package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/farxc/tiss_wrapper/internal/db"
)

func migrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			const component = "Migrate"
			appLogger := opts.newLogger(cmd)
			cfg := loadConfig()

			database, err := db.New(cmd.Context(), cfg.db)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer database.Close()

			applied, err := db.Migrate(cmd.Context(), database)
			if err != nil {
				return err
			}
			appLogger.Info(component, "Migrations complete: applied=%d", applied)
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		},
	}
}
