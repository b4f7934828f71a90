/**
 * @description
 * This package provides a client for the Wyre API. Every call is authenticated as the
 * end user with the secret key the service generated for them, so most methods take the
 * secret key explicitly.
 *
 * @notes
 * - Responses the app renders as-is (account details, payment methods, transfers) are
 *   returned as json.RawMessage.
 * - Wyre errors carry a `message` field which is surfaced as the vendor detail.
 */
package wyre

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kash/onboarding-service/internal/errs"
)

const vendorName = "wyre"

// Profile field ids.
const (
	FieldResidenceAddress = "individualResidenceAddress"
	FieldGovernmentID     = "individualGovernmentId"
	FieldProofOfAddress   = "individualProofOfAddress"
)

// Client is a client for interacting with the Wyre API.
type Client struct {
	BaseURL           string
	ReferrerAccountID string
	httpClient        *http.Client
	now               func() time.Time
}

// NewClient creates a new Wyre API client. referrerAccountID is the platform account new
// subaccounts are created under.
func NewClient(baseURL, referrerAccountID string) *Client {
	return &Client{
		BaseURL:           baseURL,
		ReferrerAccountID: referrerAccountID,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
}

// ProfileField is one KYC attribute of a Wyre account.
type ProfileField struct {
	FieldID string `json:"fieldId" validate:"required"`
	Value   any    `json:"value"`
}

// Account is a Wyre account.
type Account struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// DocumentUpload is a single KYC document.
type DocumentUpload struct {
	FieldID         string
	DocumentType    string
	DocumentSubType string
	ContentType     string
	Content         []byte
}

// TransferRequest is a transfer quote request.
type TransferRequest struct {
	AutoConfirm        bool    `json:"autoConfirm"`
	SourceCurrency     string  `json:"sourceCurrency"`
	DestCurrency       string  `json:"destCurrency"`
	SourceAmount       string  `json:"sourceAmount"`
	DestAmount         *string `json:"destAmount"`
	Preview            bool    `json:"preview"`
	AmountIncludesFees bool    `json:"amountIncludesFees"`
	Dest               string  `json:"dest"`
	Source             string  `json:"source"`
}

// NewACHTransfer builds a USD ACH to ethereum transfer preview.
func NewACHTransfer(paymentMethodID, destAddress, destCurrency, amount string) TransferRequest {
	return TransferRequest{
		SourceCurrency:     "USD",
		DestCurrency:       destCurrency,
		SourceAmount:       amount,
		Preview:            true,
		AmountIncludesFees: true,
		Dest:               "ethereum:" + destAddress,
		Source:             "paymentmethod:" + paymentMethodID + ":ach",
	}
}

// AuthenticateSecretKey registers secretKey with Wyre.
func (c *Client) AuthenticateSecretKey(ctx context.Context, secretKey string) error {
	return c.do(ctx, http.MethodPost, "/v2/sessions/auth/key", "", map[string]string{"secretKey": secretKey}, nil)
}

// CreateAccount creates an individual US subaccount under the referrer account.
func (c *Client) CreateAccount(ctx context.Context, secretKey string) (*Account, error) {
	req := map[string]any{
		"type":              "INDIVIDUAL",
		"country":           "US",
		"subaccount":        true,
		"referrerAccountId": c.ReferrerAccountID,
	}
	var acc Account
	if err := c.do(ctx, http.MethodPost, "/v3/accounts", secretKey, req, &acc); err != nil {
		return nil, err
	}
	if acc.ID == "" {
		return nil, &errs.VendorError{Vendor: vendorName, Status: http.StatusBadGateway, Detail: "account id missing"}
	}
	return &acc, nil
}

func accountPath(accountID string) string {
	return "/v3/accounts/" + url.PathEscape(accountID)
}

// UpdateAccount submits profile fields.
func (c *Client) UpdateAccount(ctx context.Context, secretKey, accountID string, fields []ProfileField) (json.RawMessage, error) {
	var out json.RawMessage
	path := accountPath(accountID) + "?masqueradeAs=" + url.QueryEscape(accountID)
	if err := c.do(ctx, http.MethodPost, path, secretKey, map[string]any{"profileFields": fields}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAccount returns the account document.
func (c *Client) GetAccount(ctx context.Context, secretKey, accountID string) (json.RawMessage, error) {
	var out json.RawMessage
	path := accountPath(accountID) + "?masqueradeAs=" + url.QueryEscape(accountID)
	if err := c.do(ctx, http.MethodGet, path, secretKey, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProfileFieldStatuses returns the per-field review statuses.
func (c *Client) ProfileFieldStatuses(ctx context.Context, secretKey, accountID string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, accountPath(accountID)+"/profileFieldsStatuses", secretKey, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UploadDocument posts the raw document bytes to the profile field.
func (c *Client) UploadDocument(ctx context.Context, secretKey, accountID string, doc DocumentUpload) error {
	q := url.Values{}
	q.Set("documentType", doc.DocumentType)
	if doc.DocumentSubType != "" {
		q.Set("documentSubType", doc.DocumentSubType)
	}
	q.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	path := accountPath(accountID) + "/" + url.PathEscape(doc.FieldID) + "?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(doc.Content))
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+secretKey)
	httpReq.Header.Set("Content-Type", doc.ContentType)
	return c.send(httpReq, nil)
}

// CreatePaymentMethod links a bank account from a Plaid processor token.
func (c *Client) CreatePaymentMethod(ctx context.Context, secretKey, processorToken string) (json.RawMessage, error) {
	req := map[string]string{
		"plaidProcessorToken": processorToken,
		"paymentMethodType":   "LOCAL_TRANSFER",
		"country":             "US",
	}
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/v2/paymentMethods", secretKey, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPaymentMethods returns the user's payment methods.
func (c *Client) ListPaymentMethods(ctx context.Context, secretKey string) (json.RawMessage, error) {
	var out struct {
		Data json.RawMessage `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/paymentMethods", secretKey, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return json.RawMessage("[]"), nil
	}
	return out.Data, nil
}

// CreateTransfer creates a transfer quote.
func (c *Client) CreateTransfer(ctx context.Context, secretKey string, req TransferRequest) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/v3/transfers", secretKey, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ConfirmTransfer confirms a previously quoted transfer.
func (c *Client) ConfirmTransfer(ctx context.Context, secretKey, transferID string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/v3/transfers/"+url.PathEscape(transferID), secretKey, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path, secretKey string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if secretKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+secretKey)
	}
	return c.send(httpReq, out)
}

func (c *Client) send(httpReq *http.Request, out any) error {
	httpReq.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to Wyre: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode Wyre response: %w", err)
	}
	return nil
}

func handleErrorResponse(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	b, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(b, &body)
	return &errs.VendorError{Vendor: vendorName, Status: resp.StatusCode, Detail: body.Message}
}
