package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/devsusana/tutorsync/internal/config"
	"github.com/devsusana/tutorsync/internal/server"
)

var (
	serveAddr string
	serveDB   string
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8787", "listen address")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "server database path (default: <config dir>/server.db)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the sync server",
	Long: `Run the document-store server the clients sync against.

Clients authenticate with the bearer token from remote.token, which only
grants access to tenant.id's documents; leave it empty to run without
auth for local development.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		dbPath := serveDB
		if dbPath == "" {
			dir, err := config.Dir()
			if err != nil {
				fail("%v", err)
			}
			dbPath = filepath.Join(dir, "server.db")
		}

		store, err := server.OpenDocStore(dbPath)
		if err != nil {
			fail("%v", err)
		}
		defer store.Close()

		tokens := map[string]string{}
		if cfg.RemoteToken != "" {
			if cfg.TenantID == "" {
				fail("remote.token is set but tenant.id is empty; tokens are bound to a tenant")
			}
			tokens[cfg.RemoteToken] = cfg.TenantID
		}

		router := server.NewHandler(store, server.Config{Tokens: tokens}).Router()
		fmt.Printf("Serving on %s (db: %s)\n", serveAddr, dbPath)
		if err := router.Run(serveAddr); err != nil {
			fail("%v", err)
		}
	},
}
