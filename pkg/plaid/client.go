/**
 * @description
 * This package provides a minimal Plaid client: link tokens for the mobile Link flow and
 * processor tokens that hand a linked bank account to Prime Trust or Wyre.
 */
package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kash/onboarding-service/internal/errs"
)

const vendorName = "plaid"

// Processors a processor token can be issued for.
const (
	ProcessorPrimeTrust = "prime_trust"
	ProcessorWyre       = "wyre"
)

// Client is a client for interacting with the Plaid API.
type Client struct {
	BaseURL    string
	ClientID   string
	Secret     string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a new Plaid API client.
func NewClient(baseURL, clientID, secret string) *Client {
	return &Client{
		BaseURL:  baseURL,
		ClientID: clientID,
		Secret:   secret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
}

// LinkMetadata is the metadata object the Link SDK returns on success.
type LinkMetadata struct {
	PublicToken string `json:"public_token"`
	Accounts    []struct {
		ID string `json:"id"`
	} `json:"accounts"`
}

// ParseLinkMetadata decodes the JSON metadata string sent by the app.
func ParseLinkMetadata(raw string) (*LinkMetadata, error) {
	var m LinkMetadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("%w: plaid metadata: %v", errs.ErrInvalidInput, err)
	}
	if m.PublicToken == "" || len(m.Accounts) == 0 || m.Accounts[0].ID == "" {
		return nil, fmt.Errorf("%w: plaid metadata needs public_token and an account", errs.ErrInvalidInput)
	}
	return &m, nil
}

// CreateLinkToken creates a Link token for a fresh session.
func (c *Client) CreateLinkToken(ctx context.Context) (string, error) {
	req := map[string]any{
		"user":          map[string]string{"client_user_id": strconv.FormatInt(c.now().UnixMilli(), 10)},
		"client_name":   "Kash.io",
		"products":      []string{"auth"},
		"language":      "en",
		"country_codes": []string{"US"},
	}
	var resp struct {
		LinkToken string `json:"link_token"`
	}
	if err := c.post(ctx, "/link/token/create", req, &resp); err != nil {
		return "", err
	}
	return resp.LinkToken, nil
}

// ExchangePublicToken swaps a Link public token for an item access token.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (string, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.post(ctx, "/item/public_token/exchange", map[string]string{"public_token": publicToken}, &resp); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// CreateProcessorToken issues a processor token for accountID.
func (c *Client) CreateProcessorToken(ctx context.Context, accessToken, accountID, processor string) (string, error) {
	req := map[string]string{
		"access_token": accessToken,
		"account_id":   accountID,
		"processor":    processor,
	}
	var resp struct {
		ProcessorToken string `json:"processor_token"`
	}
	if err := c.post(ctx, "/processor/token/create", req, &resp); err != nil {
		return "", err
	}
	return resp.ProcessorToken, nil
}

// ProcessorTokenFromMetadata runs the public token exchange and processor token creation
// for the first account in the Link metadata.
func (c *Client) ProcessorTokenFromMetadata(ctx context.Context, rawMetadata, processor string) (string, error) {
	meta, err := ParseLinkMetadata(rawMetadata)
	if err != nil {
		return "", err
	}
	accessToken, err := c.ExchangePublicToken(ctx, meta.PublicToken)
	if err != nil {
		return "", err
	}
	return c.CreateProcessorToken(ctx, accessToken, meta.Accounts[0].ID, processor)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("PLAID-CLIENT-ID", c.ClientID)
	httpReq.Header.Set("PLAID-SECRET", c.Secret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to Plaid: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			ErrorMessage   string `json:"error_message"`
			DisplayMessage string `json:"display_message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		detail := e.DisplayMessage
		if detail == "" {
			detail = e.ErrorMessage
		}
		return &errs.VendorError{Vendor: vendorName, Status: resp.StatusCode, Detail: detail}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode Plaid response: %w", err)
	}
	return nil
}
