package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pricing modes. Market-tracked assets follow the external feed; admin-drift
// assets approach an operator-set target; simulated assets run the
// drift-then-random-walk model for user-defined instruments.
const (
	ModeMarketTracked = "MARKET_TRACKED"
	ModeAdminDrift    = "ADMIN_DRIFT"
	ModeSimulated     = "SIMULATED"
)

// Price directions bias the random-walk phase of simulated assets.
const (
	DirectionBull    = "BULL"
	DirectionBear    = "BEAR"
	DirectionNeutral = "NEUTRAL"
)

// Asset is a tradable instrument. User-defined (simulated) assets carry the
// extra drift-timer and direction fields; for market-tracked assets those
// stay zero-valued.
type Asset struct {
	Code          string          `gorm:"primaryKey" json:"code"` // uppercase
	DisplayName   string          `json:"display_name"`
	IconPath      string          `json:"icon_path"`
	TickerSymbol  string          `json:"ticker_symbol"` // external feed symbol, e.g. "bitcoin"
	CurrentPrice  decimal.Decimal `json:"current_price"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
	PricingMode   string          `gorm:"index" json:"pricing_mode"`
	IsUserDefined bool            `json:"is_user_defined"`

	// Drift model (admin-drift and simulated modes)
	DriftTarget *decimal.Decimal `json:"drift_target,omitempty"`
	DriftSpeed  decimal.Decimal  `json:"drift_speed"` // in (0,1]

	// Simulated-asset extras
	PriceDirection   string     `json:"price_direction"`
	PriceTimerExpiry *time.Time `json:"price_timer_expiry,omitempty"`
	ReferenceCode    string     `json:"reference_code"` // optional bias source for the random walk

	LastUpdatedAt time.Time `json:"last_updated_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// DriftActive reports whether a simulated asset is still inside its
// manual-drift window at the given instant.
func (a *Asset) DriftActive(now time.Time) bool {
	return a.PriceTimerExpiry != nil && now.Before(*a.PriceTimerExpiry)
}

// DirectionSign returns +1, -1 or 0 for the asset's persisted direction.
func (a *Asset) DirectionSign() int {
	switch a.PriceDirection {
	case DirectionBull:
		return 1
	case DirectionBear:
		return -1
	default:
		return 0
	}
}

// PricePoint is one point of an asset's bounded price history.
type PricePoint struct {
	ID        uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	AssetCode string          `gorm:"index" json:"asset_code"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

// Candle is one OHLCV bucket for a user-defined asset. BucketStart is the
// truncated interval start; (AssetCode, BucketStart) is unique per interval.
type Candle struct {
	ID          uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	AssetCode   string          `gorm:"index:idx_candle_bucket,priority:1" json:"asset_code"`
	BucketStart time.Time       `gorm:"index:idx_candle_bucket,priority:2" json:"bucket_start"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      decimal.Decimal `json:"volume"`
}

// Fold merges one observed price (and traded volume) into the candle.
func (c *Candle) Fold(price, volume decimal.Decimal) {
	if c.Open.IsZero() && c.High.IsZero() && c.Low.IsZero() {
		c.Open = price
		c.High = price
		c.Low = price
	}
	if price.GreaterThan(c.High) {
		c.High = price
	}
	if price.LessThan(c.Low) {
		c.Low = price
	}
	c.Close = price
	c.Volume = c.Volume.Add(volume)
}
