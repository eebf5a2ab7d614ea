// streamprobe connects to the live trade stream and prints trades to the
// console. Useful for checking connectivity and eyeballing the feed before
// pointing the monitor at it.
//
// Usage: go run ./cmd/streamprobe --config configs/monitor.local.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/polysentry/polysentry/internal/config"
	"github.com/polysentry/polysentry/internal/stream"
)

func main() {
	configPath := flag.String("config", "configs/monitor.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full trade JSON")
	duration := flag.Duration("duration", 0, "stop after this long (0 = run until interrupted)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	s := stream.New(stream.Config{
		WSURL:              cfg.Stream.WSURL,
		BufferSize:         cfg.Stream.BufferSize,
		ReconnectBaseDelay: cfg.Stream.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Stream.ReconnectMaxDelay,
		PingInterval:       cfg.Stream.PingInterval,
		ReadTimeout:        cfg.Stream.ReadTimeout,
		MinTradeSize:       cfg.Feed.MinTradeSize,
	}, logger)

	if err := s.Start(ctx); err != nil {
		logger.Error("failed to start stream", "error", err)
		os.Exit(1)
	}

	logger.Info("probe running",
		"url", cfg.Stream.WSURL,
		"min_size_usd", cfg.Feed.MinTradeSize,
	)

	count := 0
	for {
		select {
		case <-ctx.Done():
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.Stop(stopCtx)
			stopCancel()

			stats := s.Stats()
			logger.Info("probe finished",
				"trades_printed", count,
				"trades_seen", stats.TradesSeen,
				"connects", stats.Connects,
			)
			return

		case trade := <-s.Trades():
			count++
			if *verbose {
				b, _ := json.MarshalIndent(trade, "", "  ")
				fmt.Println(string(b))
				continue
			}
			fmt.Printf("[%s] $%.0f %s %s @ %.3f  %s\n",
				trade.Timestamp.Format(time.TimeOnly),
				trade.SizeUSD,
				trade.Side,
				trade.Outcome,
				trade.Price,
				trade.Title,
			)
		}
	}
}
