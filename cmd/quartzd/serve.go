package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/quartz/internal/api"
	"github.com/oriys/quartz/internal/cache"
	"github.com/oriys/quartz/internal/config"
	"github.com/oriys/quartz/internal/kv"
	"github.com/oriys/quartz/internal/logging"
	"github.com/oriys/quartz/internal/metrics"
	"github.com/oriys/quartz/internal/observability"
	"github.com/oriys/quartz/internal/store"
)

func serveCmd() *cobra.Command {
	var (
		configPath    string
		listenAddr    string
		dsn           string
		poolSize      int
		cacheCapacity int
		logLevel      string
		logFormat     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the quartz server",
		Long:  "Serve the kv HTTP API backed by the LRU cache and the Postgres store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			// Explicit flags override file and environment.
			if cmd.Flags().Changed("listen") {
				cfg.Server.ListenAddr = listenAddr
			}
			if cmd.Flags().Changed("dsn") {
				cfg.Store.DSN = dsn
			}
			if cmd.Flags().Changed("pool-size") {
				cfg.Store.PoolSize = poolSize
			}
			if cmd.Flags().Changed("cache-capacity") {
				cfg.Cache.Capacity = cacheCapacity
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Server.LogLevel = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Server.LogFormat = logFormat
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			return runServer(cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	cmd.Flags().StringVar(&listenAddr, "listen", ":8080", "HTTP listen address")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Postgres connection string")
	cmd.Flags().IntVar(&poolSize, "pool-size", 4, "Store connection pool size")
	cmd.Flags().IntVar(&cacheCapacity, "cache-capacity", 10000, "Max cached entries")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

func runServer(cfg *config.Config) error {
	logging.Init(cfg.Server.LogFormat, cfg.Server.LogLevel)

	ctx := context.Background()
	if err := observability.Init(ctx, cfg.Telemetry); err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer observability.Shutdown(context.Background())

	// Pool initialization is all-or-nothing; the service must not start
	// without its full connection set.
	st, err := store.Open(ctx, cfg.Store.DSN, cfg.Store.PoolSize)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	c, err := cache.New(cfg.Cache.Capacity)
	if err != nil {
		_ = st.Close(context.Background())
		return err
	}

	svc := kv.New(c, st)
	metrics.Init("quartz", svc.Stats, st.PoolSize())

	h := &api.Handler{KV: svc, Store: st}
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observability.HTTPMiddleware(api.RequestID(api.AccessLog(mux))),
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Op().Info("quartz server started",
			"addr", cfg.Server.ListenAddr,
			"cache_capacity", cfg.Cache.Capacity,
			"pool_size", cfg.Store.PoolSize,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Op().Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		_ = st.Close(context.Background())
		return fmt.Errorf("quartz server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Op().Error("http shutdown failed", "error", err)
	}
	if err := st.Close(shutdownCtx); err != nil {
		logging.Op().Error("store shutdown failed", "error", err)
	}
	return nil
}
