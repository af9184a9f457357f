package main

import (
	"os"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate-legacy",
	Short: "Move legacy authorization fields into authorization history",
	Long: `Profiles created before authorization history kept one authorization in
top-level fields. This converts each such profile with an empty history into
a GENERAL history record. Profiles that already have history are untouched.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	docs, closeStore, err := openStore(ctx)
	if err != nil {
		log.Error().Err(err).Msg("store unavailable")
		os.Exit(exitStore)
	}
	defer closeStore()

	n, err := newService(docs).MigrateAllLegacy(ctx)
	if err != nil {
		log.Error().Err(err).Int("migrated", n).Msg("migration stopped")
		return err
	}

	log.Info().Int("migrated", n).Msg("legacy migration complete")
	return nil
}
