package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sublarr/sublarr/internal/backup"
	"github.com/sublarr/sublarr/internal/config"
	"github.com/sublarr/sublarr/internal/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			db, err := database.New(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(); err != nil {
				return err
			}
			fmt.Println("database is up to date")
			return nil
		},
	}
}

func backupCmd() *cobra.Command {
	var destDir string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create a backup archive of the database and config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			db, err := database.New(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			if destDir == "" {
				destDir = "backups"
			}
			svc := backup.NewService(db.Conn(), db.Path(), configFile, nil, quietLogger())
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			info, err := svc.Create(ctx, destDir)
			if err != nil {
				return err
			}
			fmt.Printf("backup written to %s (%d bytes)\n", info.Path, info.SizeBytes)
			return nil
		},
	}
	cmd.Flags().StringVarP(&destDir, "dest", "d", "backups", "destination directory")
	return cmd
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <archive>",
		Short: "Restore the database and config from a backup archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if err := backup.Restore(args[0], cfg.Database.Path, configFile); err != nil {
				return err
			}
			fmt.Println("restore complete, previous files kept as .bak")
			return nil
		},
	}
}

func scanOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan-once",
		Short: "Run one full library scan and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
			defer cancel()
			summary, err := a.scanner.Scan(ctx, true)
			if err != nil {
				return err
			}
			fmt.Printf("scan complete: %d items ensured, %d resolved, %d removed\n",
				summary.Ensured, summary.Resolved, summary.Removed)
			return nil
		},
	}
}

func searchOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search-once",
		Short: "Run one wanted-search batch and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
			defer cancel()
			summary, err := a.searcher.RunBatch(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("search complete: %d succeeded, %d failed, %d skipped of %d\n",
				summary.Succeeded, summary.Failed, summary.Skipped, summary.Total)
			return nil
		},
	}
}
