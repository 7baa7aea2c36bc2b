package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger entry types. Subtypes are free-form and caller-defined
// (e.g. "BUY"/"SELL" under EntryTrade).
const (
	EntryAdjustment = "ADJUSTMENT"
	EntryDeposit    = "DEPOSIT"
	EntryWithdrawal = "WITHDRAWAL"
	EntryTrade      = "TRADE"
)

// LedgerEntry is one immutable balance-affecting record. Entries are only
// ever appended; corrections are new entries. The autoincrement ID doubles
// as the tie-break when two entries share a creation timestamp.
type LedgerEntry struct {
	ID               uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID        string          `gorm:"index:idx_ledger_key,priority:1" json:"account_id"`
	AssetCode        string          `gorm:"index:idx_ledger_key,priority:2" json:"asset_code"` // always uppercase
	AmountDelta      decimal.Decimal `json:"amount_delta"`
	ResultingBalance decimal.Decimal `json:"resulting_balance"`
	EntryType        string          `json:"entry_type"`
	Subtype          string          `json:"subtype"`
	Reference        string          `json:"reference"`
	Note             string          `json:"note"`
	ActorID          string          `json:"actor_id"` // who authorized the posting
	CreatedAt        time.Time       `gorm:"index:idx_ledger_key,priority:3" json:"created_at"`
}

// PostEntryResult is returned by the ledger for a successful posting.
type PostEntryResult struct {
	Entry      LedgerEntry     `json:"entry"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// AssetBalance is one row of an account's aggregated holdings.
type AssetBalance struct {
	AssetCode string          `json:"asset_code"`
	Balance   decimal.Decimal `json:"balance"`
}

// NormalizeAssetCode canonicalizes an asset code for storage and lookup.
func NormalizeAssetCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
