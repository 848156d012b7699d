package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/devsusana/tutorsync/internal/entity"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local sync state",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.TenantID == "" {
			fail("tenant.id is not configured")
		}
		store := openLocal(cfg)
		defer store.Close()
		ctx := context.Background()

		counts, err := store.StatusCounts(ctx, cfg.TenantID)
		if err != nil {
			fail("%v", err)
		}

		fmt.Printf("Account: %s\n", cfg.TenantID)
		fmt.Printf("Database: %s\n\n", cfg.DBPath)

		order := []string{"students", "schedules", "schedule_exceptions", "resources", "shared_resources"}
		for _, table := range order {
			c := counts[table]
			total := 0
			for _, n := range c {
				total += n
			}
			fmt.Printf("%-20s %4d total", table, total)
			if n := c[entity.StatusPendingUpload]; n > 0 {
				fmt.Printf("  %d pending upload", n)
			}
			if n := c[entity.StatusPendingDelete]; n > 0 {
				fmt.Printf("  %d pending delete", n)
			}
			if n := c[entity.StatusError]; n > 0 {
				fmt.Printf("  %d errored", n)
			}
			fmt.Println()
		}

		ts, err := store.LastSyncTimestamp(ctx, cfg.TenantID)
		if err != nil {
			fail("%v", err)
		}
		fmt.Println()
		if ts == 0 {
			fmt.Println("Last sync: never")
		} else {
			fmt.Printf("Last sync: %s\n", time.UnixMilli(ts).Format(time.RFC3339))
		}

		if msg, err := store.LastSyncError(ctx, cfg.TenantID); err == nil && msg != "" {
			fmt.Printf("Last sync error: %s\n", msg)
		}

		inProgress, err := store.SyncInProgress(ctx, cfg.TenantID, 0)
		if err == nil && inProgress {
			fmt.Println("A sync cycle is currently running.")
		}
	},
}
