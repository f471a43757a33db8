package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goatkit/prodmanager/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the plugin tables",
	Long: `Create the plugins and product_plugin tables if they do not exist.
Safe to run repeatedly.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, database.PoolConfig{MaxOpenConns: 1})
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s).\n", database.GetDBDriver())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
