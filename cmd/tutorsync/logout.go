package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var logoutYes bool

func init() {
	logoutCmd.Flags().BoolVarP(&logoutYes, "yes", "y", false, "skip confirmation")
	rootCmd.AddCommand(logoutCmd)
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Wipe this account's local data",
	Long: `Remove every local record and all sync state for the configured
account. Data already synced stays on the server; unsynced local changes
are lost.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.TenantID == "" {
			fail("tenant.id is not configured")
		}

		if !logoutYes {
			fmt.Printf("Wipe all local data for %s? Unsynced changes will be lost. [y/N] ", cfg.TenantID)
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(answer)) != "y" {
				fmt.Println("Aborted.")
				return
			}
		}

		store := openLocal(cfg)
		defer store.Close()
		if err := store.WipeTenant(context.Background(), cfg.TenantID); err != nil {
			fail("%v", err)
		}
		fmt.Printf("Local data for %s removed.\n", cfg.TenantID)
	},
}
