package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"ledger_go/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage is the SQLite-backed persistence layer. It owns the ledger
// entries, asset registry, bounded price history and candle buckets.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the database at path. An empty path falls
// back to the per-user application data directory.
func NewStorage(path string) (*Storage, error) {
	dbPath := path
	if dbPath == "" {
		var err error
		dbPath, err = defaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	// Ensure directory exists
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(
		&domain.LedgerEntry{},
		&domain.Asset{},
		&domain.PricePoint{},
		&domain.Candle{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// defaultDBPath resolves the database file path based on OS
func defaultDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "LedgerGo", "data", "ledger.db"), nil
}

// ======================================================================================
// Ledger Operations
// ======================================================================================

// AppendEntry persists one immutable ledger entry. Entries are never
// updated or deleted afterwards.
func (s *Storage) AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// LatestEntry returns the most recent entry for an (account, asset) pair,
// ordered by creation time with the autoincrement id as tie-break.
// Returns nil when the pair has no entries.
func (s *Storage) LatestEntry(ctx context.Context, accountID, assetCode string) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND asset_code = ?", accountID, assetCode).
		Order("created_at DESC, id DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // No entries is not an error
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// LatestEntriesByAccount returns, per asset code, the latest entry for the
// account. One indexed window query instead of scanning full history.
func (s *Storage) LatestEntriesByAccount(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	err := s.db.WithContext(ctx).Raw(`
		SELECT * FROM ledger_entries
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY asset_code
					ORDER BY created_at DESC, id DESC
				) AS rn
				FROM ledger_entries
				WHERE account_id = ?
			) WHERE rn = 1
		)
		ORDER BY asset_code`, accountID).Scan(&entries).Error
	return entries, err
}

// EntriesByAccount returns up to limit entries for an account,
// most recent first. limit <= 0 means no limit.
func (s *Storage) EntriesByAccount(ctx context.Context, accountID string, limit int) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	q := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&entries).Error
	return entries, err
}

// CountEntries returns the total number of ledger rows.
func (s *Storage) CountEntries(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.LedgerEntry{}).Count(&count).Error
	return count, err
}

// ======================================================================================
// Asset Operations
// ======================================================================================

// UpsertAsset creates or updates an asset row.
func (s *Storage) UpsertAsset(ctx context.Context, asset *domain.Asset) error {
	return s.db.WithContext(ctx).Save(asset).Error
}

// GetAsset retrieves an asset by code
func (s *Storage) GetAsset(ctx context.Context, code string) (*domain.Asset, error) {
	var asset domain.Asset
	err := s.db.WithContext(ctx).First(&asset, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// GetAllAssets retrieves all registered assets
func (s *Storage) GetAllAssets(ctx context.Context) ([]domain.Asset, error) {
	var assets []domain.Asset
	err := s.db.WithContext(ctx).Order("code").Find(&assets).Error
	return assets, err
}

// SetDriftOverride switches an asset to admin-drift mode with the given
// target. speed is optional; zero keeps the asset's current speed.
func (s *Storage) SetDriftOverride(ctx context.Context, code string, target, speed decimal.Decimal) error {
	updates := map[string]any{
		"pricing_mode": domain.ModeAdminDrift,
		"drift_target": target,
	}
	if !speed.IsZero() {
		updates["drift_speed"] = speed
	}
	res := s.db.WithContext(ctx).Model(&domain.Asset{}).Where("code = ?", code).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAssetNotFound
	}
	return nil
}

// ClearDriftOverride resets an asset to market-tracked and nulls the target.
func (s *Storage) ClearDriftOverride(ctx context.Context, code string) error {
	res := s.db.WithContext(ctx).Model(&domain.Asset{}).Where("code = ?", code).Updates(map[string]any{
		"pricing_mode": domain.ModeMarketTracked,
		"drift_target": nil,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAssetNotFound
	}
	return nil
}

// ======================================================================================
// Price Tick Persistence
// ======================================================================================

// PriceUpdate is one asset's outcome of an engine tick.
type PriceUpdate struct {
	Code       string
	NewPrice   decimal.Decimal
	ClearDrift bool // simulated drift window ended: null target and timer

	// Candle folding (user-defined assets)
	FoldCandle  bool
	BucketStart time.Time
	Volume      decimal.Decimal
}

// ApplyPriceUpdates persists a whole tick in one transaction: previous/current
// price swap, one appended history point per asset, and a history trim down to
// historyCap (oldest points evicted first). A rollback leaves every asset at
// its pre-tick state.
func (s *Storage) ApplyPriceUpdates(ctx context.Context, updates []PriceUpdate, historyCap int, now time.Time) error {
	if len(updates) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			var asset domain.Asset
			if err := tx.First(&asset, "code = ?", u.Code).Error; err != nil {
				return fmt.Errorf("load asset %s: %w", u.Code, err)
			}

			fields := map[string]any{
				"previous_price":  asset.CurrentPrice,
				"current_price":   u.NewPrice,
				"last_updated_at": now,
			}
			if u.ClearDrift {
				fields["drift_target"] = nil
				fields["price_timer_expiry"] = nil
			}
			if err := tx.Model(&domain.Asset{}).Where("code = ?", u.Code).Updates(fields).Error; err != nil {
				return fmt.Errorf("update asset %s: %w", u.Code, err)
			}

			point := domain.PricePoint{AssetCode: u.Code, Price: u.NewPrice, CreatedAt: now}
			if err := tx.Create(&point).Error; err != nil {
				return fmt.Errorf("append history %s: %w", u.Code, err)
			}

			// Bounded sliding window: evict oldest beyond the cap.
			if err := tx.Exec(`
				DELETE FROM price_points
				WHERE asset_code = ? AND id NOT IN (
					SELECT id FROM price_points
					WHERE asset_code = ?
					ORDER BY id DESC
					LIMIT ?
				)`, u.Code, u.Code, historyCap).Error; err != nil {
				return fmt.Errorf("trim history %s: %w", u.Code, err)
			}

			if u.FoldCandle {
				if err := foldCandle(tx, u.Code, u.BucketStart, u.NewPrice, u.Volume); err != nil {
					return fmt.Errorf("fold candle %s: %w", u.Code, err)
				}
			}
		}
		return nil
	})
}

func foldCandle(tx *gorm.DB, code string, bucket time.Time, price, volume decimal.Decimal) error {
	var candle domain.Candle
	err := tx.Where("asset_code = ? AND bucket_start = ?", code, bucket).First(&candle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		candle = domain.Candle{AssetCode: code, BucketStart: bucket}
	} else if err != nil {
		return err
	}
	candle.Fold(price, volume)
	return tx.Save(&candle).Error
}

// PriceHistory returns up to limit most recent history points for an asset,
// oldest first. limit <= 0 returns the full window.
func (s *Storage) PriceHistory(ctx context.Context, code string, limit int) ([]domain.PricePoint, error) {
	var points []domain.PricePoint
	q := s.db.WithContext(ctx).
		Where("asset_code = ?", code).
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&points).Error; err != nil {
		return nil, err
	}
	// Reverse to chronological order
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// Candles returns an asset's candle buckets in chronological order.
func (s *Storage) Candles(ctx context.Context, code string, limit int) ([]domain.Candle, error) {
	var candles []domain.Candle
	q := s.db.WithContext(ctx).
		Where("asset_code = ?", code).
		Order("bucket_start")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&candles).Error
	return candles, err
}
