package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ledger_go/internal/domain"

	"github.com/shopspring/decimal"
)

// PriceSource is the pluggable batch price feed. Implementations must
// tolerate partial data: symbols absent from the result simply keep their
// previous price.
type PriceSource interface {
	FetchPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// coincapAsset mirrors one element of the CoinCap assets response
type coincapAsset struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	PriceUsd string `json:"priceUsd"`
}

type coincapResponse struct {
	Data []coincapAsset `json:"data"`
}

// HTTPPriceSource fetches USD prices for a batch of tickers in one call.
type HTTPPriceSource struct {
	apiURL     string
	httpClient *http.Client
}

// NewHTTPPriceSource creates a feed client. timeout bounds the whole fetch
// so a stalled provider can never hold up an engine tick.
func NewHTTPPriceSource(apiURL string, timeout time.Duration) *HTTPPriceSource {
	if apiURL == "" {
		apiURL = "https://api.coincap.io/v2/assets"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPPriceSource{
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchPrices returns {ticker symbol -> USD price} for the requested batch.
// Unknown or unparsable symbols are omitted from the map.
func (s *HTTPPriceSource) FetchPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	url := s.apiURL + "?ids=" + strings.Join(symbols, ",")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	// Browser-like User-Agent to avoid bot detection
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", domain.ErrFeedUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFeedUnavailable, err)
	}

	var data coincapResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFeedUnavailable, err)
	}

	prices := make(map[string]decimal.Decimal, len(data.Data))
	for _, a := range data.Data {
		price, err := decimal.NewFromString(a.PriceUsd)
		if err != nil || price.IsNegative() {
			continue // partial data tolerated
		}
		prices[a.ID] = price
	}
	return prices, nil
}
