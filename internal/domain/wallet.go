package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SummaryRow is one asset line of a wallet valuation.
type SummaryRow struct {
	AssetCode string          `json:"asset_code"`
	Balance   decimal.Decimal `json:"balance"`
	Price     decimal.Decimal `json:"price"`
	FiatValue decimal.Decimal `json:"fiat_value"`
}

// WalletSummarySnapshot is a derived, cacheable valuation of one account.
// It is never persisted; it can always be rebuilt from the ledger plus
// current asset prices, so discarding a stale one is safe.
type WalletSummarySnapshot struct {
	AccountID  string          `json:"account_id"`
	Rows       []SummaryRow    `json:"balances"`
	TotalFiat  decimal.Decimal `json:"total_fiat"`
	ComputedAt time.Time       `json:"computed_at"`
}
