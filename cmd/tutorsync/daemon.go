package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/devsusana/tutorsync/internal/daemon"
)

func init() {
	rootCmd.AddCommand(daemonCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync loop",
	Long: `Watch the local database for changes and sync continuously:

  - local writes trigger a debounced sync cycle
  - a periodic cycle runs on the configured interval
  - logs rotate through log.file when configured

Stops cleanly on SIGINT/SIGTERM.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		store := openLocal(cfg)
		defer store.Close()

		logger := daemonLogger(cfg, "[tutorsync] ")
		s := newSynchronizer(cfg, store, logger)

		d := daemon.New(cfg.DBPath, s,
			daemon.WithLogger(logger),
			daemon.WithInterval(cfg.SyncInterval),
			daemon.WithDebounce(cfg.SyncDebounce))
		if err := d.Start(); err != nil {
			fail("%v", err)
		}

		fmt.Printf("Daemon running (interval %s). Ctrl-C to stop.\n", cfg.SyncInterval)
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop

		fmt.Println("Stopping...")
		if err := d.Stop(); err != nil {
			fail("%v", err)
		}
	},
}
