package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lineageforge/internal/platform/httpserver"
	"lineageforge/internal/runs/handler"
	"lineageforge/pkg/platform/audit/outbox"
)

var serveSnapshot string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve runs, previews and health over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, serveSnapshot)
		if err != nil {
			return err
		}
		defer a.Close()

		runHandler := handler.New(a.service, handler.Defaults{
			Resolution: resolutionOptions(),
			Validation: ruleConfig(),
		}, log)
		srv := httpserver.New(cfg.Server.Addr, httpserver.NewRouter(log, a.checks, runHandler))

		var relay *outbox.Relay
		if len(cfg.Kafka.Brokers) > 0 && a.outbox != nil {
			client, err := outbox.NewClient(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := outbox.EnsureTopic(ctx, client, cfg.Kafka.AuditTopic, 1, 1); err != nil {
				log.WarnContext(ctx, "audit topic not ensured", "topic", cfg.Kafka.AuditTopic, "error", err)
			}
			relay, err = outbox.New(a.outbox, client, cfg.Kafka.AuditTopic,
				outbox.WithBatchSize(cfg.Kafka.RelayBatch),
				outbox.WithInterval(cfg.Kafka.RelayInterval),
				outbox.WithLogger(log),
			)
			if err != nil {
				return err
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.InfoContext(gctx, "http server listening", "addr", cfg.Server.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
			defer cancel()
			log.InfoContext(shutdownCtx, "shutting down http server")
			return srv.Shutdown(shutdownCtx)
		})

		if relay != nil {
			g.Go(func() error {
				if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		}

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveSnapshot, "snapshot", "", "serve a snapshot file instead of the configured database")
	rootCmd.AddCommand(serveCmd)
}
