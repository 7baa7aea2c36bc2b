package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ledger_go/internal/domain"

	"github.com/shopspring/decimal"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return store
}

func seedAsset(t *testing.T, store *Storage, code string, price int64) {
	t.Helper()
	err := store.UpsertAsset(context.Background(), &domain.Asset{
		Code:          code,
		DisplayName:   code,
		CurrentPrice:  decimal.NewFromInt(price),
		PreviousPrice: decimal.NewFromInt(price),
		PricingMode:   domain.ModeMarketTracked,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed asset %s: %v", code, err)
	}
}

func TestStorage_ApplyPriceUpdates_SwapsAndAppendsHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	seedAsset(t, store, "BTC", 50000)

	now := time.Now().UTC()
	err := store.ApplyPriceUpdates(ctx, []PriceUpdate{
		{Code: "BTC", NewPrice: decimal.NewFromInt(51000)},
	}, 500, now)
	if err != nil {
		t.Fatalf("ApplyPriceUpdates error: %v", err)
	}

	asset, err := store.GetAsset(ctx, "BTC")
	if err != nil {
		t.Fatalf("GetAsset error: %v", err)
	}
	if !asset.CurrentPrice.Equal(decimal.NewFromInt(51000)) {
		t.Errorf("Expected current 51000, got %s", asset.CurrentPrice)
	}
	if !asset.PreviousPrice.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("Expected previous 50000, got %s", asset.PreviousPrice)
	}

	history, err := store.PriceHistory(ctx, "BTC", 0)
	if err != nil {
		t.Fatalf("PriceHistory error: %v", err)
	}
	if len(history) != 1 || !history[0].Price.Equal(decimal.NewFromInt(51000)) {
		t.Errorf("Expected one history point at 51000, got %v", history)
	}
}

func TestStorage_ApplyPriceUpdates_TrimsHistoryFIFO(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	seedAsset(t, store, "BTC", 0)

	const window = 50
	base := time.Now().UTC()
	for i := 1; i <= window+10; i++ {
		err := store.ApplyPriceUpdates(ctx, []PriceUpdate{
			{Code: "BTC", NewPrice: decimal.NewFromInt(int64(i))},
		}, window, base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	history, err := store.PriceHistory(ctx, "BTC", 0)
	if err != nil {
		t.Fatalf("PriceHistory error: %v", err)
	}
	if len(history) != window {
		t.Fatalf("Expected history capped at %d, got %d", window, len(history))
	}
	// Oldest evicted first: the window starts at point 11.
	if !history[0].Price.Equal(decimal.NewFromInt(11)) {
		t.Errorf("Expected oldest surviving point 11, got %s", history[0].Price)
	}
	if !history[len(history)-1].Price.Equal(decimal.NewFromInt(window + 10)) {
		t.Errorf("Expected newest point %d, got %s", window+10, history[len(history)-1].Price)
	}
}

func TestStorage_ApplyPriceUpdates_FoldsCandles(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	seedAsset(t, store, "MOON", 10)

	bucket := time.Now().UTC().Truncate(time.Minute)
	prices := []int64{10, 14, 8, 12}
	for i, p := range prices {
		err := store.ApplyPriceUpdates(ctx, []PriceUpdate{{
			Code:        "MOON",
			NewPrice:    decimal.NewFromInt(p),
			FoldCandle:  true,
			BucketStart: bucket,
			Volume:      decimal.NewFromInt(1),
		}}, 500, bucket.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("fold %d: %v", i, err)
		}
	}

	candles, err := store.Candles(ctx, "MOON", 0)
	if err != nil {
		t.Fatalf("Candles error: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("Expected one candle bucket, got %d", len(candles))
	}

	c := candles[0]
	if !c.Open.Equal(decimal.NewFromInt(10)) || !c.High.Equal(decimal.NewFromInt(14)) ||
		!c.Low.Equal(decimal.NewFromInt(8)) || !c.Close.Equal(decimal.NewFromInt(12)) {
		t.Errorf("OHLC mismatch: O=%s H=%s L=%s C=%s", c.Open, c.High, c.Low, c.Close)
	}
	if !c.Volume.Equal(decimal.NewFromInt(4)) {
		t.Errorf("Expected volume 4, got %s", c.Volume)
	}
}

func TestStorage_DriftOverrideRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	seedAsset(t, store, "BTC", 50000)

	target := decimal.NewFromInt(60000)
	if err := store.SetDriftOverride(ctx, "BTC", target, decimal.NewFromFloat(0.5)); err != nil {
		t.Fatalf("SetDriftOverride error: %v", err)
	}

	asset, _ := store.GetAsset(ctx, "BTC")
	if asset.PricingMode != domain.ModeAdminDrift {
		t.Errorf("Expected admin-drift mode, got %s", asset.PricingMode)
	}
	if asset.DriftTarget == nil || !asset.DriftTarget.Equal(target) {
		t.Errorf("Expected drift target 60000, got %v", asset.DriftTarget)
	}

	if err := store.ClearDriftOverride(ctx, "BTC"); err != nil {
		t.Fatalf("ClearDriftOverride error: %v", err)
	}
	asset, _ = store.GetAsset(ctx, "BTC")
	if asset.PricingMode != domain.ModeMarketTracked {
		t.Errorf("Expected market-tracked after clear, got %s", asset.PricingMode)
	}
	if asset.DriftTarget != nil {
		t.Errorf("Expected nil drift target after clear, got %s", asset.DriftTarget)
	}
}

func TestStorage_DriftOverride_UnknownAsset(t *testing.T) {
	store := newTestStorage(t)

	err := store.SetDriftOverride(context.Background(), "NOPE", decimal.NewFromInt(1), decimal.Zero)
	if !errors.Is(err, domain.ErrAssetNotFound) {
		t.Fatalf("Expected ErrAssetNotFound, got %v", err)
	}
}

func TestStorage_GetAsset_NotFoundIsNil(t *testing.T) {
	store := newTestStorage(t)

	asset, err := store.GetAsset(context.Background(), "MISSING")
	if err != nil {
		t.Fatalf("GetAsset error: %v", err)
	}
	if asset != nil {
		t.Errorf("Expected nil for missing asset, got %+v", asset)
	}
}
