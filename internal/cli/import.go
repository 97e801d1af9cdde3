package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lineageforge/internal/store/memory"
)

var importCmd = &cobra.Command{
	Use:   "import SNAPSHOT",
	Short: "Load a snapshot document into the configured database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cliContext(cmd.Context())
		if cfg.Database.URL == "" {
			return fmt.Errorf("import needs database.url")
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open snapshot: %w", err)
		}
		defer f.Close()
		store, err := memory.LoadJSON(f)
		if err != nil {
			return err
		}
		doc := store.Document()

		a, err := buildApp(ctx, "")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.graph.Import(ctx, doc.Persons, doc.Claims); err != nil {
			return err
		}
		log.InfoContext(ctx, "snapshot imported",
			"persons", len(doc.Persons),
			"claims", len(doc.Claims),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
