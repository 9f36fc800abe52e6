package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"auctionscan/internal/chain"
	"auctionscan/internal/config"
	"auctionscan/internal/decode"
	"auctionscan/internal/dispatch"
	"auctionscan/internal/ingest"
	"auctionscan/internal/pipeline"
	"auctionscan/internal/reconstruct"
	"auctionscan/internal/registry"
	"auctionscan/internal/scanner"
	"auctionscan/internal/store"
	"auctionscan/internal/store/postgres"
	"auctionscan/internal/tokenmeta"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "auctionscan",
		Short:        "Auction event indexer and materializer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a block range for auction events",
		RunE:  runScan,
	}
	scanCmd.Flags().String("rpc", "", "EVM RPC URL")
	scanCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	scanCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	scanCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	scanCmd.Flags().StringSlice("address", nil, "contract addresses (comma-separated)")
	scanCmd.Flags().StringSlice("topic0", nil, "topic0 filters (comma-separated, default: all auction events)")
	scanCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	scanCmd.Flags().Uint64("min-chunk", 10, "smallest batch after provider-driven subdivision")
	scanCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	scanCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	scanCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	scanCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	scanCmd.Flags().String("token-meta-url", "", "token metadata catalog base URL (optional)")
	scanCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(scanCmd)

	reconstructCmd := &cobra.Command{
		Use:   "reconstruct",
		Short: "Rebuild an auction from its creation transaction",
		RunE:  runReconstruct,
	}
	reconstructCmd.Flags().String("rpc", "", "EVM RPC URL")
	reconstructCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	reconstructCmd.Flags().String("auction", "", "auction contract address")
	reconstructCmd.Flags().String("token-meta-url", "", "token metadata catalog base URL (optional)")
	reconstructCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(reconstructCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook ingestion endpoint",
		RunE:  runServe,
	}
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	serveCmd.Flags().String("listen", ":8080", "listen address")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// openStore returns the configured store and a close func. Without a DSN the
// in-memory store is used, which only makes sense for dry runs.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.PgDSN == "" {
		logger.Warn("no pg-dsn configured, using in-memory store")
		return store.NewMemory(), func() {}, nil
	}
	pg, err := postgres.NewStore(ctx, cfg.PgDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pg, pg.Close, nil
}

func buildPipeline(st store.Store, logger *zap.Logger) *pipeline.Pipeline {
	reg := registry.New(st, logger)
	return pipeline.New(decode.NewDecoder(reg, logger), st, dispatch.New(st, logger), logger)
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	addresses, err := scanner.ParseAddresses(cfg.Addresses)
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		return fmt.Errorf("address list is required")
	}

	topic0, err := scanner.ParseTopic0(cfg.Topic0)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var meta tokenmeta.Provider
	if cfg.TokenMetaURL != "" {
		meta = tokenmeta.NewHTTPProvider(cfg.TokenMetaURL, 5*time.Second, logger)
	}
	refresher := reconstruct.New(st, chainClient, meta, logger)

	s := scanner.New(scanner.Config{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Addresses:         addresses,
		Topic0:            topic0,
		BatchSize:         cfg.BatchSize,
		MinChunk:          cfg.MinChunk,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, chainClient, buildPipeline(st, logger), st, refresher, logger)

	logger.Info("scan start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("addresses", len(addresses)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Uint64("min_chunk", cfg.MinChunk),
	)

	summary, err := s.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("scan complete",
		zap.Uint64("blocks_scanned", summary.BlocksScanned),
		zap.Int("ranges_split", summary.RangesSplit),
		zap.Int("applied", summary.Logs.Applied),
		zap.Int("ignored", summary.Logs.Ignored),
		zap.Int("skipped", summary.Logs.Skipped),
		zap.Int("failed", summary.Logs.Failed),
	)
	return nil
}

func runReconstruct(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	auction, _ := cmd.Flags().GetString("auction")
	if auction == "" {
		return fmt.Errorf("auction address is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var meta tokenmeta.Provider
	if cfg.TokenMetaURL != "" {
		meta = tokenmeta.NewHTTPProvider(cfg.TokenMetaURL, 5*time.Second, logger)
	}

	r := reconstruct.New(st, chainClient, meta, logger)
	snapshot, err := r.Materialize(ctx, chainID.Uint64(), auction)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           ingest.NewServer(buildPipeline(st, logger), logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook server listening", zap.String("addr", cfg.Listen))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info("webhook server stopped")
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
