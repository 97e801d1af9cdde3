package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	id "lineageforge/pkg/domain"
	"lineageforge/pkg/platform/audit/consumer"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Read the compliance audit trail",
}

var auditListCmd = &cobra.Command{
	Use:   "list RUN_ID",
	Short: "List a run's audit events from the database outbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := id.ParseRunID(args[0])
		if err != nil {
			return err
		}
		ctx := cliContext(cmd.Context())
		a, err := buildApp(ctx, "")
		if err != nil {
			return err
		}
		defer a.Close()

		events, err := a.outbox.ListByRun(ctx, runID)
		if err != nil {
			return err
		}
		return encode(cmd.OutOrStdout(), events)
	},
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow the audit topic and print events as JSON lines",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if len(cfg.Kafka.Brokers) == 0 {
			return fmt.Errorf("audit tail needs kafka.brokers")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := consumer.NewClient(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, cfg.Kafka.ConsumerGroup)
		if err != nil {
			return err
		}
		defer client.Close()

		c, err := consumer.New(client, consumer.WriterHandler(cmd.OutOrStdout()), consumer.WithLogger(log))
		if err != nil {
			return err
		}
		log.InfoContext(ctx, "tailing audit topic",
			"topic", cfg.Kafka.AuditTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditListCmd, auditTailCmd)
	rootCmd.AddCommand(auditCmd)
}
