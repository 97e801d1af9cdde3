package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"lineageforge/internal/validation"
	id "lineageforge/pkg/domain"
	"lineageforge/pkg/requestcontext"
)

var (
	snapshotPath string
	outPath      string
	threshold    float64
	workers      int
	disabled     []string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Merge duplicate persons",
	Long: `Run identity resolution against --snapshot or, without it, the
configured database. The run report is printed as JSON. With --out the
resolved graph is written back as a snapshot document.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cliContext(cmd.Context())
		a, err := buildApp(ctx, snapshotPath)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := resolutionOptions()
		if cmd.Flags().Changed("threshold") {
			opts.Threshold = threshold
		}
		if cmd.Flags().Changed("workers") {
			opts.Workers = workers
		}

		report, runErr := a.service.RunResolution(ctx, opts)
		if report != nil {
			if err := writeReport(cmd.OutOrStdout(), report.Run, report.Result); err != nil {
				return err
			}
		}
		if runErr != nil {
			return runErr
		}

		if outPath != "" {
			if a.file == nil {
				return fmt.Errorf("--out needs --snapshot")
			}
			return writeSnapshot(outPath, a.file.WriteJSON)
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Flag genealogical impossibilities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cliContext(cmd.Context())
		a, err := buildApp(ctx, snapshotPath)
		if err != nil {
			return err
		}
		defer a.Close()

		rules := ruleConfig()
		for _, d := range disabled {
			rules.Disabled = append(rules.Disabled, validation.FlagType(d))
		}

		report, runErr := a.service.RunValidation(ctx, rules)
		if report != nil {
			if err := writeReport(cmd.OutOrStdout(), report.Run, report.Result); err != nil {
				return err
			}
		}
		return runErr
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview PERSON_ID PERSON_ID",
	Short: "Show the score breakdown for two persons",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		x, err := id.ParsePersonID(args[0])
		if err != nil {
			return err
		}
		y, err := id.ParsePersonID(args[1])
		if err != nil {
			return err
		}

		ctx := cliContext(cmd.Context())
		a, err := buildApp(ctx, snapshotPath)
		if err != nil {
			return err
		}
		defer a.Close()

		bd, err := a.service.Preview(ctx, x, y)
		if err != nil {
			return err
		}
		return encode(cmd.OutOrStdout(), map[string]any{
			"breakdown":   bd,
			"threshold":   cfg.Resolution.MergeThreshold,
			"would_merge": bd.Score >= cfg.Resolution.MergeThreshold,
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{resolveCmd, validateCmd, previewCmd} {
		c.Flags().StringVar(&snapshotPath, "snapshot", "", "snapshot JSON document (default: configured database)")
		rootCmd.AddCommand(c)
	}
	resolveCmd.Flags().StringVar(&outPath, "out", "", "write the resolved graph to this file")
	resolveCmd.Flags().Float64Var(&threshold, "threshold", 0, "override resolution.merge_threshold")
	resolveCmd.Flags().IntVar(&workers, "workers", 0, "override resolution.workers")
	validateCmd.Flags().StringSliceVar(&disabled, "disable", nil, "rule families to skip (e.g. conflicting_claims)")
}

// cliContext stamps CLI invocations the way HTTP middleware stamps requests.
func cliContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = requestcontext.WithRequestID(ctx, "cli-"+id.NewRunID().String())
	actor := "cli"
	if u, err := user.Current(); err == nil && u.Username != "" {
		actor = u.Username
	}
	return requestcontext.WithActor(ctx, actor)
}

func writeReport(w io.Writer, run, result any) error {
	return encode(w, map[string]any{"run": run, "result": result})
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeSnapshot(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
