package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long: `Apply the embedded schema for the configured driver.

Every statement is idempotent, so running it against an
up-to-date database changes nothing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := RequireApp()
		if err != nil {
			return err
		}

		files, err := migrations.Files(a.DB.Driver())
		if err != nil {
			return err
		}
		if err := migrations.Run(cmd.Context(), a.DB); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Schema applied (%s)\n", a.DB.Driver())
		for _, f := range files {
			fmt.Fprintf(out, "  %s\n", f)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
