package domain

import "errors"

var (
	// ErrInvalidAmount is returned when a posting delta is zero or not a
	// finite number. Never retried.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientBalance is returned when a posting would drive the
	// resulting balance negative. Business-rule rejection, never retried.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrFeedUnavailable is returned when the external price feed cannot be
	// reached. Non-fatal: market-tracked assets keep their previous price
	// for that tick.
	ErrFeedUnavailable = errors.New("price feed unavailable")

	// ErrAssetNotFound is returned when an asset code is not registered.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrConfigNotFound is returned when the configuration file is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)

// PersistenceError wraps a store failure with the operation that hit it.
// The price engine logs these and lets the next scheduled tick retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "persistence failure [" + e.Op + "]: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PostingError carries the rejected posting's key alongside the rule that
// rejected it, so callers can surface both.
type PostingError struct {
	AccountID string
	AssetCode string
	Err       error
}

func (e *PostingError) Error() string {
	return "posting rejected [" + e.AccountID + "/" + e.AssetCode + "]: " + e.Err.Error()
}

func (e *PostingError) Unwrap() error {
	return e.Err
}
