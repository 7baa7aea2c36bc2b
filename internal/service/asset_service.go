package service

import (
	"context"
	"log/slog"
	"time"

	"ledger_go/internal/domain"
	"ledger_go/internal/infra"
	"ledger_go/internal/infra/storage"

	"github.com/shopspring/decimal"
)

// AssetService covers the operator-facing asset surface: registration and
// the pricing override entry points.
type AssetService struct {
	store      *storage.Storage
	downloader *infra.IconDownloader
}

// NewAssetService wires the service. downloader may be nil; icons are then
// skipped.
func NewAssetService(store *storage.Storage, downloader *infra.IconDownloader) *AssetService {
	return &AssetService{store: store, downloader: downloader}
}

// Register upserts an asset from its seed config, preserving live pricing
// state on re-registration.
func (s *AssetService) Register(ctx context.Context, cfg infra.AssetConfig) (*domain.Asset, error) {
	code := domain.NormalizeAssetCode(cfg.Code)

	asset := &domain.Asset{
		Code:           code,
		DisplayName:    cfg.Name,
		TickerSymbol:   cfg.TickerSymbol,
		CurrentPrice:   cfg.InitialPrice,
		PreviousPrice:  cfg.InitialPrice,
		PricingMode:    cfg.Mode,
		DriftSpeed:     cfg.DriftSpeed,
		PriceDirection: cfg.Direction,
		ReferenceCode:  domain.NormalizeAssetCode(cfg.ReferenceCode),
		IsUserDefined:  cfg.Mode == domain.ModeSimulated,
		CreatedAt:      time.Now().UTC(),
	}
	if asset.PricingMode == "" {
		asset.PricingMode = domain.ModeMarketTracked
	}
	if asset.PriceDirection == "" {
		asset.PriceDirection = domain.DirectionNeutral
	}

	// Keep live pricing state across restarts.
	if existing, _ := s.store.GetAsset(ctx, code); existing != nil {
		asset.CurrentPrice = existing.CurrentPrice
		asset.PreviousPrice = existing.PreviousPrice
		asset.DriftTarget = existing.DriftTarget
		asset.PriceTimerExpiry = existing.PriceTimerExpiry
		asset.IconPath = existing.IconPath
		asset.LastUpdatedAt = existing.LastUpdatedAt
		asset.CreatedAt = existing.CreatedAt
	}

	if asset.IconPath == "" && s.downloader != nil {
		path, err := s.downloader.DownloadIcon(code)
		if err != nil {
			slog.Warn("Failed to download asset icon", slog.String("code", code), slog.Any("error", err))
		} else {
			asset.IconPath = path
		}
	}

	if err := s.store.UpsertAsset(ctx, asset); err != nil {
		return nil, err
	}
	return asset, nil
}

// List returns every registered asset, ordered by code.
func (s *AssetService) List(ctx context.Context) ([]domain.Asset, error) {
	return s.store.GetAllAssets(ctx)
}

// History returns an asset's recent price points in chronological order.
func (s *AssetService) History(ctx context.Context, code string, limit int) ([]domain.PricePoint, error) {
	return s.store.PriceHistory(ctx, domain.NormalizeAssetCode(code), limit)
}

// Candles returns a user-defined asset's OHLCV buckets in chronological order.
func (s *AssetService) Candles(ctx context.Context, code string, limit int) ([]domain.Candle, error) {
	return s.store.Candles(ctx, domain.NormalizeAssetCode(code), limit)
}

// SetDriftOverride switches an asset to admin-drift toward target. A zero
// speed keeps the asset's configured speed.
func (s *AssetService) SetDriftOverride(ctx context.Context, code string, target, speed decimal.Decimal) error {
	if target.IsNegative() {
		return domain.ErrInvalidAmount
	}
	if !speed.IsZero() && (!speed.IsPositive() || speed.GreaterThan(decimal.NewFromInt(1))) {
		return domain.ErrInvalidAmount
	}
	return s.store.SetDriftOverride(ctx, domain.NormalizeAssetCode(code), target, speed)
}

// ClearDriftOverride returns an asset to market-tracked pricing.
func (s *AssetService) ClearDriftOverride(ctx context.Context, code string) error {
	return s.store.ClearDriftOverride(ctx, domain.NormalizeAssetCode(code))
}

// StartSimulation arms a simulated asset's manual-drift window: the price
// drifts toward target until the timer expires, then degrades to a random
// walk in the given direction.
func (s *AssetService) StartSimulation(ctx context.Context, code string, target decimal.Decimal, window time.Duration, direction string) error {
	code = domain.NormalizeAssetCode(code)

	asset, err := s.store.GetAsset(ctx, code)
	if err != nil {
		return err
	}
	if asset == nil {
		return domain.ErrAssetNotFound
	}
	if target.IsNegative() || window <= 0 {
		return domain.ErrInvalidAmount
	}

	expiry := time.Now().UTC().Add(window)
	asset.PricingMode = domain.ModeSimulated
	asset.IsUserDefined = true
	asset.DriftTarget = &target
	asset.PriceTimerExpiry = &expiry
	if direction != "" {
		asset.PriceDirection = direction
	}
	return s.store.UpsertAsset(ctx, asset)
}
