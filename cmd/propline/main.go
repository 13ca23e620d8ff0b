package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/oddsforge/propline/internal/cache"
	"github.com/oddsforge/propline/internal/config"
	"github.com/oddsforge/propline/internal/domain"
	"github.com/oddsforge/propline/internal/httpapi"
	"github.com/oddsforge/propline/internal/mapper"
	"github.com/oddsforge/propline/internal/metrics"
	"github.com/oddsforge/propline/internal/payout"
	"github.com/oddsforge/propline/internal/pipeline"
	"github.com/oddsforge/propline/internal/provider"
	"github.com/oddsforge/propline/internal/store"
	"github.com/oddsforge/propline/internal/taxonomy"
	"github.com/oddsforge/propline/internal/upsert"

	"github.com/redis/go-redis/v9"
)

const (
	appName = "propline"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Multi-provider sports prop ingestion and canonicalization pipeline",
		Version: version,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion pipeline and HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "", "Path to YAML config file")

	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	setupLogging(cfg.Logging)
	log.Info().Str("version", version).Msg("Starting propline")

	mx := metrics.New()

	// Durable store
	storeManager, err := store.NewManager(cfg.Store)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer storeManager.Close()

	var buffered *store.BufferedWriter
	var loader cache.Loader
	var props store.PropsRepo
	if storeManager.IsEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := store.EnsureSchema(ctx, storeManager.DB()); err != nil {
			cancel()
			return fmt.Errorf("schema: %w", err)
		}
		cancel()

		buffered = store.NewBufferedWriter(storeManager.Props(), cfg.Pipeline.StoreBufferCapacity)
		defer buffered.Close()
		props = buffered
		loader = func(ctx context.Context, hash domain.LineHash) (*domain.CanonicalProp, error) {
			return buffered.GetByHash(ctx, hash)
		}
	}

	// Cache tiers
	l1 := cache.NewL1Cache(cfg.Cache.L1Capacity, cfg.Cache.L1TTL)
	var l2 *cache.L2Cache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		l2 = cache.NewL2Cache(client, cfg.Cache.L2TTL)
		defer l2.Close()
	}
	cacheManager := cache.NewManager(l1, l2, loader, mx)

	// Taxonomy
	var tables *taxonomy.Tables
	if cfg.Taxonomy.File != "" {
		tables, err = taxonomy.LoadTables(cfg.Taxonomy.File)
		if err != nil {
			return fmt.Errorf("taxonomy: %w", err)
		}
	}
	taxService := taxonomy.NewService(tables)

	// Mapping and upsert
	normalizer := payout.NewNormalizer(payout.NewBaselineTracker(24*time.Hour), cfg.Pipeline.BoostFactor)
	propMapper := mapper.NewMapper(taxService, normalizer)

	var writer upsert.PropsWriter
	if buffered != nil {
		writer = buffered
	}
	engine := upsert.NewEngine(cacheManager, writer)

	// Providers
	registry := provider.NewRegistry()
	for name, pcfg := range cfg.Providers {
		pcfg.Name = name
		client, err := buildProvider(name, pcfg)
		if err != nil {
			return err
		}
		if err := registry.Register(client); err != nil {
			return err
		}
	}
	if len(registry.Names()) == 0 {
		log.Warn().Msg("No providers configured; pipeline will idle")
	}

	// Pipeline
	pipe := pipeline.New(cfg, registry, propMapper, engine, cacheManager, props, mx)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipe.Warm(ctx)
	pipe.Start(ctx)

	// HTTP API
	server := httpapi.NewServer(httpapi.Deps{
		Cache:    cacheManager,
		Pipeline: pipe,
		Taxonomy: taxService,
		Registry: registry,
		Store:    buffered,
		Metrics:  mx,
		Config:   cfg,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	pipe.Stop()

	log.Info().Msg("Shutdown complete")
	return nil
}

func buildProvider(name string, cfg provider.Config) (provider.Client, error) {
	switch name {
	case "prizepicks":
		return provider.NewPrizePicksClient(cfg), nil
	case "draftkings":
		return provider.NewDraftKingsClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
