package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-rdisq/rdisq/pkg/migrator"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending Postgres migrations",
	Long: `migrate runs every pending migration under the config's migration.dir
(see pkg/migrator), the schema examples/ggisimport's Postgres-backed
AllGGISImportTemplatesQuery/IsPlanApprovedQuery handlers read from.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		os.Setenv("CONFIG_PATH", configPath)
	}
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("rdisqctl: migrate: %w", err)
	}
	fmt.Println("migrations applied")
	return nil
}
