package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/polysentry/polysentry/internal/checkpoint"
	"github.com/polysentry/polysentry/internal/config"
	"github.com/polysentry/polysentry/internal/database"
	"github.com/polysentry/polysentry/internal/deadletter"
	"github.com/polysentry/polysentry/internal/feed"
	"github.com/polysentry/polysentry/internal/guard"
	"github.com/polysentry/polysentry/internal/monitor"
	"github.com/polysentry/polysentry/internal/rpc"
	"github.com/polysentry/polysentry/internal/stream"
	"github.com/polysentry/polysentry/internal/version"
	"github.com/polysentry/polysentry/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/monitor.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting monitor",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"feed_url", cfg.Feed.URL,
		"rpc_url", cfg.RPC.URL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database ready")

	// One gateway per dependency, shared by every call site.
	feedGW := guard.NewGateway("feed", gatewayConfig(cfg.Guards.Feed), logger)
	rpcGW := guard.NewGateway("rpc", gatewayConfig(cfg.Guards.RPC), logger)

	// Feed client and source
	feedClient := feed.NewClient(
		cfg.Feed.URL,
		cfg.Feed.APIKey,
		feed.WithLogger(logger),
		feed.WithTimeout(cfg.Feed.Timeout),
		feed.WithFetchLimit(cfg.Feed.FetchLimit),
	)

	// Chain RPC client
	chainClient := rpc.NewClient(
		cfg.RPC.URL,
		rpc.WithLogger(logger),
		rpc.WithTimeout(cfg.RPC.Timeout),
	)
	checkChain(ctx, chainClient, rpcGW, cfg.RPC.ChainID, logger)

	// Durable state
	checkpoints := checkpoint.NewStore(pool, logger)
	deadLetters := deadletter.NewQueue(pool, deadletter.Config{
		MaxAttempts: cfg.DeadLetter.MaxAttempts,
		BaseDelay:   cfg.DeadLetter.BaseDelay,
		MaxDelay:    cfg.DeadLetter.MaxDelay,
	}, logger)

	// Trade processor
	tradeWriter := writer.NewTradeWriter(pool, chainClient, rpcGW, logger)

	// One polling loop per configured source, each with its own checkpoint.
	// They share the feed gateway, so the rate limit and breaker stay scoped
	// to the dependency.
	loops := make([]*monitor.Loop, 0, len(cfg.Feed.Sources))
	for _, sc := range cfg.Feed.Sources {
		source := feed.NewLargeTradeSource(feedClient, sc.Name, sc.MinTradeSize, logger)
		loops = append(loops, monitor.NewLoop(monitor.LoopConfig{
			PollInterval:    cfg.Monitor.PollInterval,
			OverlapBuffer:   cfg.Monitor.OverlapBuffer,
			InitialLookback: cfg.Monitor.InitialLookback,
			DrainBatch:      cfg.Monitor.DrainBatch,
		}, source, tradeWriter, checkpoints, deadLetters, feedGW, logger))
	}

	// Optional live stream alongside the poller
	var liveStream *stream.Stream
	if cfg.Stream.Enabled {
		liveStream = stream.New(stream.Config{
			WSURL:              cfg.Stream.WSURL,
			BufferSize:         cfg.Stream.BufferSize,
			ReconnectBaseDelay: cfg.Stream.ReconnectBaseDelay,
			ReconnectMaxDelay:  cfg.Stream.ReconnectMaxDelay,
			PingInterval:       cfg.Stream.PingInterval,
			ReadTimeout:        cfg.Stream.ReadTimeout,
			MinTradeSize:       cfg.Feed.MinTradeSize,
		}, logger)
	}

	// Health and stats server
	srv := &http.Server{
		Addr: ":" + strconv.Itoa(cfg.Metrics.Port),
		Handler: newHandler(handlerDeps{
			pool:        pool,
			loops:       loops,
			writer:      tradeWriter,
			stream:      liveStream,
			checkpoints: checkpoints,
			deadLetters: deadLetters,
			gateways:    []*guard.Gateway{feedGW, rpcGW},
		}, logger),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting stats server", "port", cfg.Metrics.Port)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("stats server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if liveStream != nil {
		if err := liveStream.Start(ctx); err != nil {
			logger.Error("failed to start stream", "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			return consumeStream(gctx, liveStream, tradeWriter, deadLetters, logger)
		})
	}

	g.Go(func() error {
		return monitor.RunAll(gctx, 30*time.Second, loops...)
	})

	logger.Info("monitor running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if liveStream != nil {
		if err := liveStream.Stop(shutdownCtx); err != nil {
			logger.Warn("stream stop", "error", err)
		}
	}
	if err := g.Wait(); err != nil {
		logger.Warn("shutdown", "error", err)
	}

	logger.Info("monitor stopped")
}

// gatewayConfig maps a config section onto the guard stack.
func gatewayConfig(g config.GuardConfig) guard.GatewayConfig {
	return guard.GatewayConfig{
		CallsPerSecond:   g.CallsPerSecond,
		BurstSize:        g.BurstSize,
		AcquireTimeout:   g.AcquireTimeout,
		FailureThreshold: g.FailureThreshold,
		RecoveryTimeout:  g.RecoveryTimeout,
		SuccessThreshold: g.SuccessThreshold,
		MaxRetries:       g.MaxRetries,
		BaseDelay:        g.BaseDelay,
		MaxDelay:         g.MaxDelay,
	}
}

// checkChain verifies the RPC endpoint serves the expected chain. A
// mismatch is logged, not fatal: verification degrades gracefully anyway.
func checkChain(ctx context.Context, client *rpc.Client, gw *guard.Gateway, want int64, logger *slog.Logger) {
	res, err := guard.Call(ctx, gw, "chain_id", func(ctx context.Context) (int64, error) {
		return client.ChainID(ctx)
	})
	if err != nil || res.Unavailable {
		logger.Warn("chain id check failed", "error", err)
		return
	}
	if res.Value != want {
		logger.Warn("unexpected chain id", "got", res.Value, "want", want)
		return
	}
	logger.Info("chain verified", "chain_id", res.Value)
}

// consumeStream feeds live trades through the same idempotent processor the
// poller uses. The poller backfills anything that fails here, so stream
// failures are dead-lettered and not otherwise retried.
func consumeStream(ctx context.Context, s *stream.Stream, w *writer.TradeWriter, dlq *deadletter.Queue, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case trade := <-s.Trades():
			if err := w.Process(ctx, trade); err != nil {
				logger.Warn("stream trade failed", "tx", trade.TransactionHash, "error", err)
				if dlErr := dlq.Add(ctx, trade.Key(), trade, err.Error()); dlErr != nil {
					logger.Error("dead letter stream trade failed", "error", dlErr)
				}
			}
		}
	}
}

type handlerDeps struct {
	pool        *pgxpool.Pool
	loops       []*monitor.Loop
	writer      *writer.TradeWriter
	stream      *stream.Stream
	checkpoints *checkpoint.Store
	deadLetters *deadletter.Queue
	gateways    []*guard.Gateway
}

// newHandler builds the health and stats endpoints.
func newHandler(deps handlerDeps, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := deps.pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		for _, gw := range deps.gateways {
			stats := gw.Stats()
			health.Components["gateway_"+gw.Name()] = stats.CircuitBreaker.State
			if stats.CircuitBreaker.State == "open" {
				health.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		loopStats := make(map[string]monitor.LoopStats, len(deps.loops))
		for _, l := range deps.loops {
			loopStats[l.SourceName()] = l.Stats()
		}
		out := map[string]any{
			"loops":  loopStats,
			"writer": deps.writer.Stats(),
		}
		if deps.stream != nil {
			out["stream"] = deps.stream.Stats()
		}

		gws := make(map[string]guard.GatewayStats, len(deps.gateways))
		for _, gw := range deps.gateways {
			gws[gw.Name()] = gw.Stats()
		}
		out["gateways"] = gws

		if cps, err := deps.checkpoints.List(ctx); err == nil {
			out["checkpoints"] = cps
		} else {
			logger.Warn("list checkpoints", "error", err)
		}
		if counts, err := deps.deadLetters.Counts(ctx); err == nil {
			out["dead_letters"] = counts
		} else {
			logger.Warn("count dead letters", "error", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})

	mux.HandleFunc("/deadletters", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := deadletter.Status(r.URL.Query().Get("status"))
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		items, err := deps.deadLetters.List(ctx, status, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if items == nil {
			items = []deadletter.Item{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count": len(items),
			"items": items,
		})
	})

	return mux
}
