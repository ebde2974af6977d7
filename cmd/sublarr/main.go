// Command sublarr runs the subtitle automation service and its
// maintenance subcommands.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sublarr/sublarr/internal/database"
	"github.com/sublarr/sublarr/internal/errkind"
)

// Exit codes: 0 success, 1 configuration error, 2 runtime error,
// 3 pending migrations.
const (
	exitOK        = 0
	exitConfig    = 1
	exitRuntime   = 2
	exitMigration = 3
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:           "sublarr",
		Short:         "Subtitle automation for Sonarr, Radarr, and watched folders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file")

	root.AddCommand(
		serveCmd(),
		migrateCmd(),
		backupCmd(),
		restoreCmd(),
		scanOnceCmd(),
		searchOnceCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitOK)
}

func exitCode(err error) int {
	if errors.Is(err, database.ErrMigrationRequired) {
		return exitMigration
	}
	if errkind.Classify(err) == errkind.Configuration {
		return exitConfig
	}
	return exitRuntime
}
