package ledger

import (
	"context"
	"sync"
	"time"

	"ledger_go/internal/domain"
	"ledger_go/internal/infra/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger is the single writer surface for balance-affecting events. It
// serializes postings per (accountID, assetCode) so two concurrent writers
// can never both read the same previous balance; postings for different
// keys proceed in parallel.
type Ledger struct {
	store *storage.Storage
	muMap map[string]*sync.Mutex // one mutex per posting key
	mapMu sync.Mutex             // protects muMap itself
}

// PostOptions carries the optional fields of a posting.
type PostOptions struct {
	Subtype   string
	Reference string // defaults to a fresh UUID
	Note      string
	ActorID   string
}

// NewLedger creates a ledger over the given store.
func NewLedger(store *storage.Storage) *Ledger {
	return &Ledger{
		store: store,
		muMap: make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) keyLock(accountID, assetCode string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	key := accountID + "\x00" + assetCode
	if _, exists := l.muMap[key]; !exists {
		l.muMap[key] = &sync.Mutex{}
	}
	return l.muMap[key]
}

// PostEntry validates and appends one ledger entry. The resulting balance is
// previous balance + delta; a negative result rejects the posting with
// ErrInsufficientBalance and writes nothing.
func (l *Ledger) PostEntry(ctx context.Context, accountID, assetCode, entryType string, delta decimal.Decimal, opts PostOptions) (*domain.PostEntryResult, error) {
	assetCode = domain.NormalizeAssetCode(assetCode)

	if delta.IsZero() {
		return nil, &domain.PostingError{AccountID: accountID, AssetCode: assetCode, Err: domain.ErrInvalidAmount}
	}

	mu := l.keyLock(accountID, assetCode)
	mu.Lock()
	defer mu.Unlock()

	prev, err := l.store.LatestEntry(ctx, accountID, assetCode)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "latest entry", Err: err}
	}

	prevBalance := decimal.Zero
	if prev != nil {
		prevBalance = prev.ResultingBalance
	}

	newBalance := prevBalance.Add(delta)
	if newBalance.IsNegative() {
		return nil, &domain.PostingError{AccountID: accountID, AssetCode: assetCode, Err: domain.ErrInsufficientBalance}
	}

	reference := opts.Reference
	if reference == "" {
		reference = uuid.NewString()
	}

	entry := domain.LedgerEntry{
		AccountID:        accountID,
		AssetCode:        assetCode,
		AmountDelta:      delta,
		ResultingBalance: newBalance,
		EntryType:        entryType,
		Subtype:          opts.Subtype,
		Reference:        reference,
		Note:             opts.Note,
		ActorID:          opts.ActorID,
		CreatedAt:        time.Now().UTC(),
	}
	if err := l.store.AppendEntry(ctx, &entry); err != nil {
		return nil, &domain.PersistenceError{Op: "append entry", Err: err}
	}

	return &domain.PostEntryResult{Entry: entry, NewBalance: newBalance}, nil
}

// Entries returns an account's posting history, most recent first.
func (l *Ledger) Entries(ctx context.Context, accountID string, limit int) ([]domain.LedgerEntry, error) {
	return l.store.EntriesByAccount(ctx, accountID, limit)
}
