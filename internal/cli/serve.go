package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/annobridge/internal/blob"
	"github.com/raphaelgruber/annobridge/internal/config"
	"github.com/raphaelgruber/annobridge/internal/events"
	"github.com/raphaelgruber/annobridge/internal/exchange"
	"github.com/raphaelgruber/annobridge/internal/metrics"
	"github.com/raphaelgruber/annobridge/internal/registry"
	"github.com/raphaelgruber/annobridge/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the exchange daemon",
	Long: `Serve starts the HTTP daemon: the signed HUMAN protocol endpoints, the
admin lifecycle surface and the health/stats probes. It connects to
SurrealDB, initializes the schema and wires project lifecycle events to
auto-curation and result publication.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := registry.NewClient(connectCtx, cfg.DB, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to registry: %w", err)
	}
	defer store.Close(context.Background())

	if err := store.InitSchema(ctx); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}

	blobStore, err := blob.New(ctx, cfg.S3)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}
	if !blobStore.Configured() {
		logger.Warn("no S3 bucket configured, result publication disabled")
	}

	stats := metrics.NewCollector()
	svc := exchange.NewService(exchange.Config{
		ExchangeID:    cfg.ExchangeID,
		ExchangeKey:   cfg.ExchangeKey,
		JobFlowURL:    cfg.JobFlowURL,
		InviteBaseURL: cfg.InviteBaseURL,
		RepositoryDir: cfg.RepositoryDir,
	}, store, store, store, store, store, blobStore, stats, logger)

	bus := events.NewBus()
	bus.Subscribe(svc.HandleProjectStateChanged)

	srv := server.New(cfg.ListenAddr, cfg.HumanAPIKey, svc, store, bus, logger)

	logger.Info("starting annobridge",
		"version", Version,
		"addr", cfg.ListenAddr,
		"exchange_id", cfg.ExchangeID,
	)
	return srv.Run(ctx)
}
