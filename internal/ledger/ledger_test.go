package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"ledger_go/internal/domain"
	"ledger_go/internal/infra/storage"

	"github.com/shopspring/decimal"
)

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return store
}

func TestLedger_PostEntry_BalanceIsSumOfDeltas(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newTestStorage(t))

	deltas := []decimal.Decimal{
		decimal.NewFromInt(100),
		decimal.NewFromInt(-30),
		decimal.NewFromFloat(12.5),
		decimal.NewFromInt(-2),
	}

	var last *domain.PostEntryResult
	for _, d := range deltas {
		var err error
		last, err = l.PostEntry(ctx, "acct-1", "USDT", domain.EntryAdjustment, d, PostOptions{ActorID: "admin"})
		if err != nil {
			t.Fatalf("PostEntry(%s) error: %v", d, err)
		}
	}

	expected := decimal.NewFromFloat(80.5)
	if !last.NewBalance.Equal(expected) {
		t.Errorf("Expected balance %s, got %s", expected, last.NewBalance)
	}
	if !last.Entry.ResultingBalance.Equal(expected) {
		t.Errorf("Entry resulting balance mismatch: %s", last.Entry.ResultingBalance)
	}
}

func TestLedger_PostEntry_InsufficientBalanceWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	l := NewLedger(store)

	if _, err := l.PostEntry(ctx, "acct-1", "BTC", domain.EntryDeposit, decimal.NewFromInt(5), PostOptions{}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	before, _ := store.CountEntries(ctx)

	_, err := l.PostEntry(ctx, "acct-1", "BTC", domain.EntryWithdrawal, decimal.NewFromInt(-6), PostOptions{})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}

	after, _ := store.CountEntries(ctx)
	if before != after {
		t.Errorf("Rejected posting must leave no row: %d -> %d", before, after)
	}
}

func TestLedger_PostEntry_ZeroDeltaRejected(t *testing.T) {
	l := NewLedger(newTestStorage(t))

	_, err := l.PostEntry(context.Background(), "acct-1", "BTC", domain.EntryDeposit, decimal.Zero, PostOptions{})
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("Expected ErrInvalidAmount, got %v", err)
	}
}

func TestLedger_PostEntry_NormalizesAssetCode(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newTestStorage(t))

	res, err := l.PostEntry(ctx, "acct-1", " usdt ", domain.EntryDeposit, decimal.NewFromInt(1), PostOptions{})
	if err != nil {
		t.Fatalf("PostEntry error: %v", err)
	}
	if res.Entry.AssetCode != "USDT" {
		t.Errorf("Expected normalized code USDT, got %q", res.Entry.AssetCode)
	}
}

func TestLedger_ConcurrentPostings_SameKeySerialized(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newTestStorage(t))

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.PostEntry(ctx, "acct-1", "USDT", domain.EntryDeposit, decimal.NewFromInt(1), PostOptions{}); err != nil {
				t.Errorf("concurrent PostEntry error: %v", err)
			}
		}()
	}
	wg.Wait()

	agg := NewAggregator(storageOf(l))
	balance, err := agg.Balance(ctx, "acct-1", "USDT")
	if err != nil {
		t.Fatalf("Balance error: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(workers)) {
		t.Errorf("Expected balance %d, got %s", workers, balance)
	}
}

func TestLedger_ConcurrentOverdraw_ExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	l := NewLedger(store)

	// Admin funds the account, a trade spends part of it.
	if _, err := l.PostEntry(ctx, "acct-1", "USDT", domain.EntryAdjustment, decimal.NewFromInt(100), PostOptions{ActorID: "admin"}); err != nil {
		t.Fatalf("adjustment failed: %v", err)
	}
	if _, err := l.PostEntry(ctx, "acct-1", "USDT", domain.EntryTrade, decimal.NewFromInt(-30), PostOptions{}); err != nil {
		t.Fatalf("trade failed: %v", err)
	}

	// A concurrent -90 must lose: only 70 remains.
	_, err := l.PostEntry(ctx, "acct-1", "USDT", domain.EntryTrade, decimal.NewFromInt(-90), PostOptions{})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}

	balance, _ := NewAggregator(store).Balance(ctx, "acct-1", "USDT")
	if !balance.Equal(decimal.NewFromInt(70)) {
		t.Errorf("Expected balance 70, got %s", balance)
	}
}

// storageOf exposes the ledger's store for in-package assertions.
func storageOf(l *Ledger) *storage.Storage {
	return l.store
}
