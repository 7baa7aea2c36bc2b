package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ledger_go/internal/app"
	"ledger_go/internal/broadcast"
	"ledger_go/internal/engine"
	"ledger_go/internal/infra"
	"ledger_go/internal/ledger"
	"ledger_go/internal/service"
	"ledger_go/internal/wallet"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Core wiring: ledger, aggregator, cache, hub
	hub := broadcast.NewHub()
	ldg := ledger.NewLedger(bootstrap.Storage)
	agg := ledger.NewAggregator(bootstrap.Storage)
	cache := wallet.NewCache(time.Duration(cfg.Wallet.CacheTTLMS) * time.Millisecond)

	assetSvc := service.NewAssetService(bootstrap.Storage, bootstrap.Downloader)
	walletSvc := service.NewWalletService(ldg, agg, bootstrap.Storage, cache, hub)

	// 5. Background Asset Registration
	go bootstrap.SyncAssets(ctx, assetSvc)

	// 6. Price Engine
	source := infra.NewHTTPPriceSource(cfg.Engine.Feed.URL, time.Duration(cfg.Engine.Feed.TimeoutSec)*time.Second)
	eng := engine.New(bootstrap.Storage, source, hub, engine.Options{
		Interval:       time.Duration(cfg.Engine.IntervalMS) * time.Millisecond,
		HistoryCap:     cfg.Engine.HistoryCap,
		Precision:      int32(cfg.Engine.Precision),
		FeedTimeout:    time.Duration(cfg.Engine.Feed.TimeoutSec) * time.Second,
		CandleInterval: time.Duration(cfg.Engine.CandleSec) * time.Second,
	})
	if err := eng.Start(ctx); err != nil {
		slog.Error("Failed to start price engine", slog.Any("error", err))
		os.Exit(1)
	}
	defer eng.Stop()

	// 7. Broadcast Gateway (websocket fan-out)
	ws := broadcast.NewWSServer(hub, cfg.Broadcast.ListenAddr)
	if err := ws.Start(ctx); err != nil {
		slog.Error("Failed to start broadcast server", slog.Any("error", err))
		os.Exit(1)
	}
	defer ws.Stop()

	// 8. Query/Admin API (thin plumbing; auth lives in the fronting gateway)
	apiServer := &http.Server{Addr: cfg.API.ListenAddr, Handler: newAPIHandler(walletSvc, assetSvc)}
	go func() {
		slog.Info("API server started", slog.String("addr", cfg.API.ListenAddr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server failed", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = apiServer.Shutdown(shutdownCtx)
	}()

	slog.InfoContext(ctx, "✨ Accounting core fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
}
