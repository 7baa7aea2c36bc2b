package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ledger_go/internal/broadcast"
	"ledger_go/internal/domain"
	"ledger_go/internal/infra"
	"ledger_go/internal/infra/storage"
	"ledger_go/internal/ledger"
	"ledger_go/internal/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletService is the account-facing surface: it posts balance mutations
// through the ledger, serves cached fiat valuations, and keeps the cache
// and broadcast subscribers in sync with every write.
type WalletService struct {
	ledger *ledger.Ledger
	agg    *ledger.Aggregator
	store  *storage.Storage
	cache  *wallet.Cache
	hub    *broadcast.Hub
}

// NewWalletService wires the service. hub may be nil.
func NewWalletService(l *ledger.Ledger, agg *ledger.Aggregator, store *storage.Storage, cache *wallet.Cache, hub *broadcast.Hub) *WalletService {
	return &WalletService{ledger: l, agg: agg, store: store, cache: cache, hub: hub}
}

// Summary returns the account's fiat-valued snapshot, served from cache
// when fresh. The shape is identical for cache hits and misses.
func (s *WalletService) Summary(ctx context.Context, accountID string) (*domain.WalletSummarySnapshot, error) {
	if cached := s.cache.Get(accountID); cached != nil {
		return cached, nil
	}

	balances, err := s.agg.AllBalances(ctx, accountID)
	if err != nil {
		return nil, err
	}

	assets, err := s.store.GetAllAssets(ctx)
	if err != nil {
		return nil, err
	}
	prices := make(map[string]decimal.Decimal, len(assets))
	for _, a := range assets {
		prices[a.Code] = a.CurrentPrice
	}

	snapshot := &domain.WalletSummarySnapshot{
		AccountID:  accountID,
		Rows:       make([]domain.SummaryRow, 0, len(balances)),
		TotalFiat:  decimal.Zero,
		ComputedAt: time.Now().UTC(),
	}
	for _, b := range balances {
		price := prices[b.AssetCode] // zero for unregistered codes
		fiat := b.Balance.Mul(price)
		snapshot.Rows = append(snapshot.Rows, domain.SummaryRow{
			AssetCode: b.AssetCode,
			Balance:   b.Balance,
			Price:     price,
			FiatValue: fiat,
		})
		snapshot.TotalFiat = snapshot.TotalFiat.Add(fiat)
	}

	s.cache.Set(accountID, snapshot)
	return snapshot, nil
}

// Deposit credits an account.
func (s *WalletService) Deposit(ctx context.Context, accountID, assetCode string, amount decimal.Decimal, actorID, note string) (*domain.PostEntryResult, error) {
	if !amount.IsPositive() {
		return nil, &domain.PostingError{AccountID: accountID, AssetCode: assetCode, Err: domain.ErrInvalidAmount}
	}
	return s.post(ctx, accountID, assetCode, domain.EntryDeposit, amount, ledger.PostOptions{ActorID: actorID, Note: note})
}

// Withdraw debits an account; rejected when it would overdraw.
func (s *WalletService) Withdraw(ctx context.Context, accountID, assetCode string, amount decimal.Decimal, actorID, note string) (*domain.PostEntryResult, error) {
	if !amount.IsPositive() {
		return nil, &domain.PostingError{AccountID: accountID, AssetCode: assetCode, Err: domain.ErrInvalidAmount}
	}
	return s.post(ctx, accountID, assetCode, domain.EntryWithdrawal, amount.Neg(), ledger.PostOptions{ActorID: actorID, Note: note})
}

// AdminAdjust posts a signed correction on behalf of an operator.
func (s *WalletService) AdminAdjust(ctx context.Context, accountID, assetCode string, delta decimal.Decimal, actorID, note string) (*domain.PostEntryResult, error) {
	return s.post(ctx, accountID, assetCode, domain.EntryAdjustment, delta, ledger.PostOptions{ActorID: actorID, Note: note})
}

// TradeResult reports both legs of a settled trade.
type TradeResult struct {
	Debit  *domain.PostEntryResult `json:"debit"`
	Credit *domain.PostEntryResult `json:"credit"`
}

// Trade settles a two-legged exchange: sellAmount of sellCode leaves the
// account, buyAmount of buyCode enters it, both legs sharing one reference.
// The debit leg validates first, so an overdraw writes nothing; a credit-leg
// store failure is compensated by reversing the debit.
func (s *WalletService) Trade(ctx context.Context, accountID, sellCode string, sellAmount decimal.Decimal, buyCode string, buyAmount decimal.Decimal, actorID string) (*TradeResult, error) {
	if !sellAmount.IsPositive() || !buyAmount.IsPositive() {
		return nil, &domain.PostingError{AccountID: accountID, AssetCode: sellCode, Err: domain.ErrInvalidAmount}
	}

	reference := uuid.NewString()

	debit, err := s.ledger.PostEntry(ctx, accountID, sellCode, domain.EntryTrade, sellAmount.Neg(), ledger.PostOptions{
		Subtype:   "SELL",
		Reference: reference,
		ActorID:   actorID,
	})
	if err != nil {
		infra.GlobalMetrics.RecordPosting(false)
		return nil, err
	}

	credit, err := s.ledger.PostEntry(ctx, accountID, buyCode, domain.EntryTrade, buyAmount, ledger.PostOptions{
		Subtype:   "BUY",
		Reference: reference,
		ActorID:   actorID,
	})
	if err != nil {
		// Corrections are new entries: reverse the debit leg.
		if _, revErr := s.ledger.PostEntry(ctx, accountID, sellCode, domain.EntryAdjustment, sellAmount, ledger.PostOptions{
			Reference: reference,
			Note:      fmt.Sprintf("reversal of failed trade %s", reference),
			ActorID:   actorID,
		}); revErr != nil {
			slog.Error("Trade reversal failed, ledger needs attention",
				slog.String("account", accountID), slog.String("reference", reference), slog.Any("error", revErr))
		}
		infra.GlobalMetrics.RecordPosting(false)
		s.afterWrite(accountID)
		return nil, err
	}

	infra.GlobalMetrics.RecordPosting(true)
	s.afterWrite(accountID)
	return &TradeResult{Debit: debit, Credit: credit}, nil
}

// Entries exposes the account's posting history, most recent first.
func (s *WalletService) Entries(ctx context.Context, accountID string, limit int) ([]domain.LedgerEntry, error) {
	return s.ledger.Entries(ctx, accountID, limit)
}

func (s *WalletService) post(ctx context.Context, accountID, assetCode, entryType string, delta decimal.Decimal, opts ledger.PostOptions) (*domain.PostEntryResult, error) {
	result, err := s.ledger.PostEntry(ctx, accountID, assetCode, entryType, delta, opts)
	if err != nil {
		infra.GlobalMetrics.RecordPosting(false)
		return nil, err
	}
	infra.GlobalMetrics.RecordPosting(true)
	s.afterWrite(accountID)
	return result, nil
}

// afterWrite invalidates the account's cached valuation and notifies
// subscribers. Both are best-effort: the ledger row is already durable.
func (s *WalletService) afterWrite(accountID string) {
	s.cache.Invalidate(accountID)
	if s.hub != nil {
		s.hub.Publish(broadcast.NewEvent(broadcast.EventWalletUpdate, map[string]string{
			"account_id": accountID,
		}))
	}
}
