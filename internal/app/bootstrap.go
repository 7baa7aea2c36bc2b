package app

import (
	"context"
	"log/slog"
	"sync"

	"ledger_go/internal/infra"
	"ledger_go/internal/infra/storage"
	"ledger_go/internal/service"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config     *infra.Config
	Storage    *storage.Storage
	Downloader *infra.IconDownloader
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (Config, Logger, DB)
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping Ledger Go...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized")

	// 4. Initialize Icon Downloader
	downloader, err := infra.NewIconDownloader()
	if err != nil {
		return err
	}
	b.Downloader = downloader
	slog.Info("✅ Icon downloader ready")

	return nil
}

// SyncAssets registers the configured assets and fetches their icons in the
// background so startup is never blocked on the icon CDN.
func (b *Bootstrap) SyncAssets(ctx context.Context, assets *service.AssetService) {
	slog.Info("🔄 Starting asset registration...")

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 5) // Limit concurrent downloads

	for _, cfg := range b.Config.Assets {
		wg.Add(1)
		go func(cfg infra.AssetConfig) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case semaphore <- struct{}{}: // Acquire
			}
			defer func() { <-semaphore }() // Release

			if _, err := assets.Register(ctx, cfg); err != nil {
				slog.Error("Failed to register asset", slog.String("code", cfg.Code), slog.Any("error", err))
			}
		}(cfg)
	}

	wg.Wait()
	slog.Info("✨ Asset registration completed", slog.Int("assets", len(b.Config.Assets)))
}
