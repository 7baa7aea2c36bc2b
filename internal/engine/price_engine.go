package engine

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"ledger_go/internal/broadcast"
	"ledger_go/internal/domain"
	"ledger_go/internal/infra"
	"ledger_go/internal/infra/storage"

	"github.com/shopspring/decimal"
)

// Simulation tuning. The drift fraction starts at simBaseFraction and ramps
// toward 1 over the final simRampWindow of the timer, so the price lands on
// the target as the window closes.
const (
	simBaseFraction = 0.15
	simRampWindow   = 60 * time.Second
	walkMaxPct      = 0.02 // random walk step bound, fraction of price
	directionBias   = 0.35 // persisted bull/bear lean
	referenceBias   = 0.25 // lean from the reference asset's last move
)

var snapEpsilon = decimal.New(1, -8)

// Options configures an Engine.
type Options struct {
	Interval       time.Duration // tick period, default 5s
	HistoryCap     int           // price history window, default 500
	Precision      int32         // price rounding decimals, default 8
	FeedTimeout    time.Duration // bound on the external batch fetch
	CandleInterval time.Duration // OHLCV bucket width for simulated assets
}

func (o *Options) applyDefaults() {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Second
	}
	if o.HistoryCap < infra.MinHistoryCap {
		o.HistoryCap = 500
	}
	if o.Precision <= 0 {
		o.Precision = 8
	}
	if o.FeedTimeout <= 0 {
		o.FeedTimeout = 5 * time.Second
	}
	if o.CandleInterval <= 0 {
		o.CandleInterval = time.Minute
	}
}

// Engine is the scheduled price updater. It owns its own lifecycle
// (Start/Stop) and a single-flight guard: a tick that begins while the
// previous one is still running is skipped, never queued.
type Engine struct {
	store  *storage.Storage
	source infra.PriceSource
	hub    *broadcast.Hub
	opts   Options

	inFlight atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	now func() time.Time // test seam
}

// New creates an engine. hub may be nil when no broadcast is wanted.
func New(store *storage.Storage, source infra.PriceSource, hub *broadcast.Hub, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{
		store:  store,
		source: source,
		hub:    hub,
		opts:   opts,
		now:    time.Now,
	}
}

// Start launches the tick loop. Stop (or ctx cancellation) halts it without
// leaving an in-flight tick dangling.
func (e *Engine) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Price engine panic recovered", slog.Any("panic", r))
			}
		}()

		ticker := time.NewTicker(e.opts.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("Price engine stopped")
				return
			case <-ticker.C:
				e.Tick(ctx)
			}
		}
	}()

	slog.Info("Price engine started", slog.Duration("interval", e.opts.Interval))
	return nil
}

// Stop cancels the loop and waits for any in-flight tick to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()
	}
}

// Tick runs one pricing pass: batch-fetch market quotes, compute each
// asset's next price, persist the whole batch atomically, then broadcast.
// Returns true when the pass ran, false when the single-flight guard
// skipped it.
func (e *Engine) Tick(ctx context.Context) bool {
	if !e.inFlight.CompareAndSwap(false, true) {
		slog.Warn("Tick skipped: previous tick still in flight")
		infra.GlobalMetrics.RecordTickSkipped()
		return false
	}
	defer e.inFlight.Store(false)

	started := e.now()

	assets, err := e.store.GetAllAssets(ctx)
	if err != nil {
		slog.Error("Tick aborted: cannot load assets", slog.Any("error", err))
		infra.GlobalMetrics.RecordError()
		return true
	}
	if len(assets) == 0 {
		return true
	}

	quotes := e.fetchQuotes(ctx, assets)
	updates := e.computeUpdates(assets, quotes, started)

	if err := e.store.ApplyPriceUpdates(ctx, updates, e.opts.HistoryCap, started); err != nil {
		// No retry here: the next scheduled tick retries naturally.
		slog.Error("Tick aborted: persistence failure",
			slog.Any("error", &domain.PersistenceError{Op: "apply price updates", Err: err}))
		infra.GlobalMetrics.RecordError()
		return true
	}

	e.publish(updates)
	infra.GlobalMetrics.RecordTick(time.Since(started).Nanoseconds())
	return true
}

// fetchQuotes performs the single external batch call for market-tracked
// assets. Feed failure degrades to an empty map: those assets keep their
// previous price this tick.
func (e *Engine) fetchQuotes(ctx context.Context, assets []domain.Asset) map[string]decimal.Decimal {
	symbols := make([]string, 0, len(assets))
	for _, a := range assets {
		if a.PricingMode == domain.ModeMarketTracked && a.TickerSymbol != "" {
			symbols = append(symbols, a.TickerSymbol)
		}
	}
	if len(symbols) == 0 || e.source == nil {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.opts.FeedTimeout)
	defer cancel()

	quotes, err := e.source.FetchPrices(fetchCtx, symbols)
	if err != nil {
		slog.Warn("External feed unavailable, keeping previous prices",
			slog.Any("error", err), slog.Int("symbols", len(symbols)))
		return nil
	}
	return quotes
}

// computeUpdates prices every asset for this tick. Computations are
// independent, so they run under a bounded worker pool; a panic from one
// asset's bad data skips that asset only.
func (e *Engine) computeUpdates(assets []domain.Asset, quotes map[string]decimal.Decimal, now time.Time) []storage.PriceUpdate {
	byCode := make(map[string]*domain.Asset, len(assets))
	for i := range assets {
		byCode[assets[i].Code] = &assets[i]
	}

	results := make([]*storage.PriceUpdate, len(assets))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 5) // Limit concurrent computations

	for i := range assets {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Asset pricing skipped",
						slog.String("code", assets[idx].Code), slog.Any("panic", r))
				}
			}()

			u := e.priceAsset(&assets[idx], quotes, byCode, now)
			results[idx] = &u
		}(i)
	}
	wg.Wait()

	updates := make([]storage.PriceUpdate, 0, len(assets))
	for _, r := range results {
		if r != nil {
			updates = append(updates, *r)
		}
	}
	return updates
}

func (e *Engine) priceAsset(asset *domain.Asset, quotes map[string]decimal.Decimal, byCode map[string]*domain.Asset, now time.Time) storage.PriceUpdate {
	update := storage.PriceUpdate{Code: asset.Code}

	var next decimal.Decimal
	switch asset.PricingMode {
	case domain.ModeMarketTracked:
		next = nextMarketTracked(asset, quotes)
	case domain.ModeAdminDrift:
		next = nextAdminDrift(asset)
	case domain.ModeSimulated:
		var expired bool
		next, expired = e.nextSimulated(asset, byCode, now)
		update.ClearDrift = expired
	default:
		slog.Warn("Unknown pricing mode, price unchanged",
			slog.String("code", asset.Code), slog.String("mode", asset.PricingMode))
		next = asset.CurrentPrice
	}

	update.NewPrice = finish(next, e.opts.Precision)

	if asset.IsUserDefined {
		update.FoldCandle = true
		update.BucketStart = now.Truncate(e.opts.CandleInterval)
		// Synthetic liquidity so simulated candles carry volume
		update.Volume = update.NewPrice.Mul(decimal.NewFromFloat(rand.Float64() * 0.1)).Round(e.opts.Precision)
	}
	return update
}

// nextMarketTracked follows the batch quote; an absent symbol keeps the
// previous price.
func nextMarketTracked(asset *domain.Asset, quotes map[string]decimal.Decimal) decimal.Decimal {
	if quotes != nil {
		if price, ok := quotes[asset.TickerSymbol]; ok {
			return price
		}
	}
	return asset.CurrentPrice
}

// nextAdminDrift exponentially approaches the operator's target:
// next = current + (target - current) * speed, speed in (0,1].
func nextAdminDrift(asset *domain.Asset) decimal.Decimal {
	if asset.DriftTarget == nil {
		return asset.CurrentPrice
	}
	speed := asset.DriftSpeed
	if !speed.IsPositive() || speed.GreaterThan(decimal.NewFromInt(1)) {
		// Out-of-range speed leaves the price where it is.
		return asset.CurrentPrice
	}
	return asset.CurrentPrice.Add(asset.DriftTarget.Sub(asset.CurrentPrice).Mul(speed))
}

// nextSimulated runs the two-phase model for user-defined assets: while the
// countdown is active, interpolate toward the target with a fraction that
// ramps from simBaseFraction toward 1 as the timer elapses, snapping once
// within epsilon. After expiry the drift state is cleared (second return
// value) and the asset degrades to a bounded random walk.
func (e *Engine) nextSimulated(asset *domain.Asset, byCode map[string]*domain.Asset, now time.Time) (decimal.Decimal, bool) {
	if asset.DriftActive(now) && asset.DriftTarget != nil {
		target := *asset.DriftTarget
		remaining := asset.PriceTimerExpiry.Sub(now)

		progress := 0.0
		if remaining < simRampWindow {
			progress = 1 - float64(remaining)/float64(simRampWindow)
		}
		fraction := decimal.NewFromFloat(simBaseFraction + (1-simBaseFraction)*progress)

		next := asset.CurrentPrice.Add(target.Sub(asset.CurrentPrice).Mul(fraction))
		if target.Sub(next).Abs().LessThanOrEqual(snapEpsilon) {
			next = target
		}
		return next, false
	}

	// Timer elapsed (or never armed with a target): random-walk phase.
	expired := asset.PriceTimerExpiry != nil && !now.Before(*asset.PriceTimerExpiry)
	return e.randomWalk(asset, byCode), expired
}

// randomWalk takes a bounded percentage step, leaned by the persisted
// direction and, when configured, by the reference asset's last move.
func (e *Engine) randomWalk(asset *domain.Asset, byCode map[string]*domain.Asset) decimal.Decimal {
	lean := rand.Float64()*2 - 1 // [-1, 1)
	lean += directionBias * float64(asset.DirectionSign())

	if asset.ReferenceCode != "" {
		if ref, ok := byCode[asset.ReferenceCode]; ok {
			switch cmp := ref.CurrentPrice.Cmp(ref.PreviousPrice); {
			case cmp > 0:
				lean += referenceBias
			case cmp < 0:
				lean -= referenceBias
			}
		}
	}

	if lean > 1 {
		lean = 1
	} else if lean < -1 {
		lean = -1
	}

	step := asset.CurrentPrice.Mul(decimal.NewFromFloat(walkMaxPct * lean))
	return asset.CurrentPrice.Add(step)
}

// finish floors the computed price at zero and rounds it to the configured
// precision.
func finish(next decimal.Decimal, precision int32) decimal.Decimal {
	if next.IsNegative() {
		next = decimal.Zero
	}
	return next.Round(precision)
}

func (e *Engine) publish(updates []storage.PriceUpdate) {
	if e.hub == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			// Broadcast problems never fail a tick.
			slog.Warn("Broadcast publish panic recovered", slog.Any("panic", r))
		}
	}()

	quotes := make([]broadcast.PriceQuote, 0, len(updates))
	for _, u := range updates {
		quotes = append(quotes, broadcast.PriceQuote{AssetCode: u.Code, Price: u.NewPrice})
	}
	e.hub.Publish(broadcast.NewEvent(broadcast.EventPriceUpdate, quotes))
}
