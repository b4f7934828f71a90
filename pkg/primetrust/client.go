/**
 * @description
 * This package provides a client for the Prime Trust custody and KYC API. It wraps the
 * JSON:API resources the onboarding service uses (accounts, contacts, uploaded
 * documents, KYC document checks, funds and asset transfer methods, quotes and asset
 * disbursements) and maps them into typed Go structs.
 *
 * @dependencies
 * - github.com/kash/onboarding-service/internal/errs: VendorError for upstream failures.
 * - github.com/shopspring/decimal: amounts and unit counts.
 *
 * @notes
 * - Every request is authenticated with the bearer JWT supplied by a TokenSource.
 * - Error bodies follow the JSON:API shape; the first error detail is surfaced to callers.
 */
package primetrust

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kash/onboarding-service/internal/errs"
)

const vendorName = "prime trust"

// TokenSource yields the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is a client for interacting with the Prime Trust API.
type Client struct {
	BaseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient creates a new Prime Trust API client.
func NewClient(baseURL string, tokens TokenSource) *Client {
	return &Client{
		BaseURL: baseURL,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// do sends a JSON request and decodes a successful response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	return c.send(ctx, method, path, "application/json", reader, out, headers)
}

// send executes a request with a pre-encoded body.
func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader, out any, headers map[string]string) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}
	if err := c.setHeaders(ctx, httpReq); err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to Prime Trust: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode Prime Trust response: %w", err)
	}
	return nil
}

// setHeaders attaches the bearer token.
func (c *Client) setHeaders(ctx context.Context, req *http.Request) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("prime trust token: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

type errorBody struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// handleErrorResponse turns a failed response into an errs.VendorError.
func handleErrorResponse(resp *http.Response) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.VendorError{Vendor: vendorName, Status: resp.StatusCode}
	}
	var eb errorBody
	if json.Unmarshal(bodyBytes, &eb) == nil && len(eb.Errors) > 0 {
		detail := eb.Errors[0].Detail
		if detail == "" {
			detail = eb.Errors[0].Title
		}
		return &errs.VendorError{Vendor: vendorName, Status: resp.StatusCode, Detail: detail}
	}
	return &errs.VendorError{Vendor: vendorName, Status: resp.StatusCode}
}
