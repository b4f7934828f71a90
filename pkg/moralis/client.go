// Package moralis reads ERC-20 token balances from the Moralis deep-index API.
package moralis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kash/onboarding-service/internal/errs"
	"github.com/shopspring/decimal"
)

const vendorName = "moralis"

// Client is a client for interacting with the Moralis API.
type Client struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

// NewClient creates a new Moralis API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// TokenBalance is one ERC-20 holding in base units.
type TokenBalance struct {
	TokenAddress string          `json:"token_address"`
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Decimals     int             `json:"decimals"`
	Balance      decimal.Decimal `json:"balance"`
}

// ERC20Balances lists the Ethereum mainnet token balances of address.
func (c *Client) ERC20Balances(ctx context.Context, address string) ([]TokenBalance, error) {
	endpoint := fmt.Sprintf("%s/api/v2/%s/erc20?chain=eth", c.BaseURL, url.PathEscape(address))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-API-KEY", c.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to Moralis: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Message string `json:"message"`
		}
		b, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(b, &body)
		return nil, &errs.VendorError{Vendor: vendorName, Status: resp.StatusCode, Detail: body.Message}
	}

	var balances []TokenBalance
	if err := json.NewDecoder(resp.Body).Decode(&balances); err != nil {
		return nil, fmt.Errorf("failed to decode Moralis response: %w", err)
	}
	return balances, nil
}
