// Command tutorsync keeps a tutor's local database in sync with the shared
// document store: push local changes, pull remote ones, resolve conflicts
// by last write. It also hosts the server side (`tutorsync serve`).
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/devsusana/tutorsync/internal/config"
	"github.com/devsusana/tutorsync/internal/localstore"
	"github.com/devsusana/tutorsync/internal/remote/httpstore"
	"github.com/devsusana/tutorsync/internal/syncer"
)

var rootCmd = &cobra.Command{
	Use:   "tutorsync",
	Short: "Offline-first sync for tutoring data",
	Long: `tutorsync manages a tutor's students, schedules and resources in a
local SQLite database and keeps it synchronized with a shared document
store. Changes made offline are queued and pushed on the next cycle;
remote changes are pulled incrementally and conflicts resolve by last
write.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fail prints the error and exits. Used by command Run funcs.
func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// loadConfig resolves the config directory and loads settings.
func loadConfig() *config.Config {
	dir, err := config.Dir()
	if err != nil {
		fail("%v", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		fail("%v", err)
	}
	return cfg
}

// openLocal opens the local database from the config.
func openLocal(cfg *config.Config) *localstore.Store {
	store, err := localstore.Open(cfg.DBPath)
	if err != nil {
		fail("%v", err)
	}
	return store
}

// newSynchronizer wires the sync engine from the config.
func newSynchronizer(cfg *config.Config, store *localstore.Store, logger *log.Logger) *syncer.Synchronizer {
	if err := cfg.ValidateForSync(); err != nil {
		fail("%v", err)
	}
	client := httpstore.New(cfg.RemoteURL, cfg.RemoteToken)
	opts := []syncer.Option{}
	if logger != nil {
		opts = append(opts, syncer.WithLogger(logger))
	}
	return syncer.New(store, client, syncer.StaticTenant(cfg.TenantID), opts...)
}

// daemonLogger builds the daemon's logger, rotating through a file when one
// is configured.
func daemonLogger(cfg *config.Config, prefix string) *log.Logger {
	if cfg.LogFile == "" {
		return log.New(os.Stderr, prefix, log.LstdFlags)
	}
	return log.New(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
	}, prefix, log.LstdFlags)
}
