package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/devsusana/tutorsync/internal/syncer"
)

func init() {
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle now",
	Long: `Run a full sync cycle against the configured server:

  1. Push pending deletions (a deleted student erases its whole subtree)
  2. Upload locally modified records
  3. Pull remote changes since the last sync
  4. Advance the incremental watermark`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		store := openLocal(cfg)
		defer store.Close()

		s := newSynchronizer(cfg, store, nil)
		report, err := s.PerformSync(context.Background())
		if errors.Is(err, syncer.ErrSyncInProgress) {
			fail("a sync cycle is already running for this account")
		}
		if err != nil {
			fail("sync failed: %v", err)
		}

		fmt.Printf("Sync complete in %v\n", report.Duration.Round(time.Millisecond))
		fmt.Printf("  Uploaded:   %d\n", report.Uploaded)
		fmt.Printf("  Deleted:    %d\n", report.Deleted)
		fmt.Printf("  Downloaded: %d\n", report.Downloaded)
		if report.Conflicts > 0 {
			fmt.Printf("  Conflicts:  %d (resolved by last write)\n", report.Conflicts)
		}
		if report.Errors > 0 {
			fmt.Printf("  Errors:     %d (will retry next cycle)\n", report.Errors)
		}
	},
}
