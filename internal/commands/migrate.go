package commands

import (
	"fmt"

	"github.com/JonMunkholm/txingest/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := store.Open(cmd.Context(), a.cfg.Database)
			if err != nil {
				return fmt.Errorf("open %s store: %w", a.cfg.Database.Driver, err)
			}
			defer backend.Close()

			version, err := store.Migrate(backend)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
}
