package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/devsusana/tutorsync/internal/jsonl"
)

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export data as JSON Lines",
	Long: `Write the account's data to a JSONL file (or stdout), one record
per line, parents before children. Soft-deleted records are omitted.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.TenantID == "" {
			fail("tenant.id is not configured")
		}
		store := openLocal(cfg)
		defer store.Close()

		out := os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				fail("%v", err)
			}
			defer f.Close()
			out = f
		}

		stats, err := jsonl.Export(context.Background(), store, cfg.TenantID, out)
		if err != nil {
			fail("%v", err)
		}
		fmt.Fprintf(os.Stderr, "Exported %d records\n", stats.Records)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import data from JSON Lines",
	Long: `Read records from a JSONL export into this account. Imported
records are treated as new local data and queued for upload on the next
sync cycle.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.TenantID == "" {
			fail("tenant.id is not configured")
		}
		store := openLocal(cfg)
		defer store.Close()

		f, err := os.Open(args[0])
		if err != nil {
			fail("%v", err)
		}
		defer f.Close()

		stats, err := jsonl.Import(context.Background(), store, cfg.TenantID, f)
		if err != nil {
			fail("%v", err)
		}
		fmt.Printf("Imported %d records", stats.Imported)
		if stats.Skipped > 0 {
			fmt.Printf(" (%d skipped: missing parents)", stats.Skipped)
		}
		fmt.Println()
	},
}
