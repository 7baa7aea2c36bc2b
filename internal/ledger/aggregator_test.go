package ledger

import (
	"context"
	"testing"
	"time"

	"ledger_go/internal/domain"

	"github.com/shopspring/decimal"
)

func TestAggregator_AllBalances_LatestPerAsset(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	l := NewLedger(store)

	postings := []struct {
		asset string
		delta int64
	}{
		{"BTC", 2}, {"USDT", 100}, {"BTC", -1}, {"USDT", -40}, {"ETH", 7},
	}
	for _, p := range postings {
		if _, err := l.PostEntry(ctx, "acct-1", p.asset, domain.EntryAdjustment, decimal.NewFromInt(p.delta), PostOptions{}); err != nil {
			t.Fatalf("PostEntry(%s %d) error: %v", p.asset, p.delta, err)
		}
	}

	agg := NewAggregator(store)
	balances, err := agg.AllBalances(ctx, "acct-1")
	if err != nil {
		t.Fatalf("AllBalances error: %v", err)
	}
	if len(balances) != 3 {
		t.Fatalf("Expected 3 assets, got %d", len(balances))
	}

	expected := map[string]int64{"BTC": 1, "ETH": 7, "USDT": 60}
	for _, b := range balances {
		if !b.Balance.Equal(decimal.NewFromInt(expected[b.AssetCode])) {
			t.Errorf("%s: expected %d, got %s", b.AssetCode, expected[b.AssetCode], b.Balance)
		}
	}

	// Idempotent across repeated calls with no intervening writes.
	again, err := agg.AllBalances(ctx, "acct-1")
	if err != nil {
		t.Fatalf("second AllBalances error: %v", err)
	}
	for i := range balances {
		if balances[i].AssetCode != again[i].AssetCode || !balances[i].Balance.Equal(again[i].Balance) {
			t.Errorf("AllBalances not idempotent at row %d", i)
		}
	}
}

func TestAggregator_UnknownAccount_EmptyNotError(t *testing.T) {
	agg := NewAggregator(newTestStorage(t))

	balances, err := agg.AllBalances(context.Background(), "no-such-account")
	if err != nil {
		t.Fatalf("AllBalances error: %v", err)
	}
	if len(balances) != 0 {
		t.Errorf("Expected empty balances, got %d rows", len(balances))
	}

	balance, err := agg.Balance(context.Background(), "no-such-account", "BTC")
	if err != nil {
		t.Fatalf("Balance error: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("Expected zero balance, got %s", balance)
	}
}

func TestAggregator_TimestampTieBrokenByInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	// Two entries with an identical wall-clock timestamp: the later insert
	// (higher autoincrement id) must win.
	at := time.Now().UTC().Truncate(time.Second)
	first := domain.LedgerEntry{
		AccountID: "acct-1", AssetCode: "BTC",
		AmountDelta: decimal.NewFromInt(5), ResultingBalance: decimal.NewFromInt(5),
		EntryType: domain.EntryDeposit, CreatedAt: at,
	}
	second := domain.LedgerEntry{
		AccountID: "acct-1", AssetCode: "BTC",
		AmountDelta: decimal.NewFromInt(-2), ResultingBalance: decimal.NewFromInt(3),
		EntryType: domain.EntryWithdrawal, CreatedAt: at,
	}
	if err := store.AppendEntry(ctx, &first); err != nil {
		t.Fatalf("append first: %v", err)
	}
	if err := store.AppendEntry(ctx, &second); err != nil {
		t.Fatalf("append second: %v", err)
	}

	balance, err := NewAggregator(store).Balance(ctx, "acct-1", "BTC")
	if err != nil {
		t.Fatalf("Balance error: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Expected tie-break winner balance 3, got %s", balance)
	}
}
