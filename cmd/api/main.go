package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ParthMishra20/pokedex/internal/api"
	"github.com/ParthMishra20/pokedex/internal/catalog"
	"github.com/ParthMishra20/pokedex/internal/config"
	"github.com/ParthMishra20/pokedex/internal/ledger"
	"github.com/ParthMishra20/pokedex/internal/log"
	"github.com/ParthMishra20/pokedex/internal/metrics"
	"github.com/ParthMishra20/pokedex/internal/storage"
	storemem "github.com/ParthMishra20/pokedex/internal/storage/memory"
	storepg "github.com/ParthMishra20/pokedex/internal/storage/postgres"
	"github.com/ParthMishra20/pokedex/internal/store"
	"github.com/ParthMishra20/pokedex/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting Pokedex marketplace API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"backend", cfg.Database.Backend,
		"version", "v1.0.0",
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("pokedex-api")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	// Select the storage backend
	var st storage.Store
	switch cfg.Database.Backend {
	case storage.BackendPostgres:
		st, err = storepg.NewStore(cfg.Database.PostgresDSN, logger)
		if err != nil {
			logger.Fatalw("Failed to connect to postgres", "error", err)
		}
	default:
		st = storemem.NewStore()
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		logger.Fatalw("Storage ping failed", "error", err)
	}
	logger.Infow("Storage initialized", "backend", cfg.Database.Backend)

	// Setup Redis cache (falls back to in-memory when unreachable)
	cache, err := store.NewCache(cfg.Cache.RedisAddr, logger, metricsObj)
	if err != nil {
		logger.Fatalw("Failed to setup cache", "error", err)
	}
	defer cache.Close()

	if err := cache.Ping(ctx); err != nil {
		logger.Fatalw("Cache ping failed", "error", err)
	}
	logger.Infow("Cache connection established", "in_memory", cache.IsInMemoryMode())

	// Rebuild the ledgers from persisted state
	snap, err := st.Load(ctx)
	if err != nil {
		logger.Fatalw("Failed to load persisted state", "error", err)
	}

	registry := ledger.NewAssetRegistry(st, cache, logger)
	registry.Restore(snap)

	wallets := ledger.NewWalletBook()
	market := ledger.NewMarketplaceLedger(
		registry,
		st,
		wallets,
		cache,
		ledger.Identity(cfg.Market.Identity),
		ledger.NewAccessControl(ledger.Identity(cfg.Market.AdminIdentity)),
		cfg.Market.FeeBasisPoints,
		logger,
	)
	market.Restore(snap)
	logger.Infow("Ledger restored",
		"assets", len(snap.Assets),
		"items", len(snap.Items),
		"fee_bps", market.FeeBasisPoints(),
	)

	catalogSvc := catalog.NewService(cfg.Market.CatalogSeed)

	// Setup WebSocket hub and SSE handler
	wsHub := ws.NewHub(cache, cfg.Security.CORSAllowedOrigins, logger, metricsObj)
	sseHandler := ws.NewSSEHandler(cache, cfg.Security.CORSAllowedOrigins, logger)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go wsHub.Run(hubCtx)

	// Setup API handler and middleware
	storePing := func(r *http.Request) error { return st.Ping(r.Context()) }
	handler := api.NewHandler(registry, market, catalogSvc, wsHub, sseHandler, cache, storePing, metricsObj, logger)
	middleware := api.NewMiddleware(logger, metricsObj)

	router := handler.Routes(middleware, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM)
	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// Add metrics endpoint
	router.Handle("/metrics", metricsHandler)

	// Setup HTTP server
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}

		logger.Infow("Server stopped")
	}
}
