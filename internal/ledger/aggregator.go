package ledger

import (
	"context"

	"ledger_go/internal/domain"
	"ledger_go/internal/infra/storage"

	"github.com/shopspring/decimal"
)

// Aggregator derives current balances from the append-only ledger via a
// "latest entry per key" reduction. Read-only; it never writes.
type Aggregator struct {
	store *storage.Storage
}

// NewAggregator creates an aggregator over the given store.
func NewAggregator(store *storage.Storage) *Aggregator {
	return &Aggregator{store: store}
}

// Balance returns the current balance for one (account, asset) pair.
// Zero when the pair has no entries.
func (a *Aggregator) Balance(ctx context.Context, accountID, assetCode string) (decimal.Decimal, error) {
	entry, err := a.store.LatestEntry(ctx, accountID, domain.NormalizeAssetCode(assetCode))
	if err != nil {
		return decimal.Zero, err
	}
	if entry == nil {
		return decimal.Zero, nil
	}
	return entry.ResultingBalance, nil
}

// AllBalances returns the account's holdings across every asset it has ever
// touched. Unknown accounts yield an empty slice, not an error.
func (a *Aggregator) AllBalances(ctx context.Context, accountID string) ([]domain.AssetBalance, error) {
	entries, err := a.store.LatestEntriesByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	balances := make([]domain.AssetBalance, 0, len(entries))
	for _, e := range entries {
		balances = append(balances, domain.AssetBalance{
			AssetCode: e.AssetCode,
			Balance:   e.ResultingBalance,
		})
	}
	return balances, nil
}
