/**
 * @description
 * This package provides a client for the Baanx card issuing API: user creation, user
 * lookup, widget sessions and KYC submission.
 *
 * @notes
 * - Baanx authenticates with a static access token in the Authorization header.
 * - Baanx reports some failures as 200 responses carrying an `error` field; those are
 *   treated exactly like non-2xx responses.
 */
package baanx

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

const vendorName = "baanx"

// Client is a client for interacting with the Baanx API.
type Client struct {
	BaseURL     string
	AccessToken string
	httpClient  *http.Client
}

// NewClient creates a new Baanx API client.
func NewClient(baseURL, accessToken string) *Client {
	return &Client{
		BaseURL:     baseURL,
		AccessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreateUserRequest is the Baanx user payload.
type CreateUserRequest struct {
	ExternalID      string `json:"external_id"`
	Title           string `json:"title,omitempty"`
	Gender          string `json:"gender,omitempty"`
	AddressLine1    string `json:"addressLine1"`
	AddressLine2    string `json:"addressLine2,omitempty"`
	CityOrTown      string `json:"cityOrTown"`
	CountryName     string `json:"countryName"`
	CountryCode     string `json:"country_code"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	SelectedCountry string `json:"selected_country"`
	Email           string `json:"email"`
	PhoneNumber     string `json:"phone_number"`
	Postcode        string `json:"postcode"`
	DateOfBirth     string `json:"dateOfBirth"`
}

// User is the subset of the Baanx user the service reads; the raw body is kept for
// pass-through responses.
type User struct {
	ID         string          `json:"id"`
	ExternalID string          `json:"external_id"`
	Email      string          `json:"email"`
	Raw        json.RawMessage `json:"-"`
}

// Session is a widget session.
type Session struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	AccessToken string          `json:"access_token"`
	ExpiryDate  string          `json:"expiry_date"`
	Raw         json.RawMessage `json:"-"`
}

// KycImage is one of the three KYC images.
type KycImage struct {
	Context string `json:"context" validate:"required"`
	Content string `json:"content" validate:"required"`
}

type kycRequest struct {
	ExternalID string     `json:"externalId"`
	Images     []KycImage `json:"images"`
}

// CreateUser registers a user under externalID.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	var u User
	raw, err := c.do(ctx, http.MethodPost, "/v1/user", req, &u)
	if err != nil {
		return nil, err
	}
	u.Raw = raw
	return &u, nil
}

// GetUser fetches a user by external id.
func (c *Client) GetUser(ctx context.Context, externalID string) (*User, error) {
	var u User
	raw, err := c.do(ctx, http.MethodGet, "/v1/user/"+externalID, nil, &u)
	if err != nil {
		return nil, err
	}
	u.Raw = raw
	return &u, nil
}

// CreateSession opens a widget session for externalID.
func (c *Client) CreateSession(ctx context.Context, externalID string) (*Session, error) {
	var s Session
	raw, err := c.do(ctx, http.MethodPost, "/v1/session", map[string]string{"externalId": externalID}, &s)
	if err != nil {
		return nil, err
	}
	s.Raw = raw
	return &s, nil
}

// SubmitKyc submits KYC images and returns the verification request id.
func (c *Client) SubmitKyc(ctx context.Context, externalID string, images []KycImage) (string, error) {
	var resp struct {
		RequestID string `json:"requestId"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/v1/kyc/submit", kycRequest{ExternalID: externalID, Images: images}, &resp); err != nil {
		return "", err
	}
	if resp.RequestID == "" {
		return "", &errs.VendorError{Vendor: vendorName, Status: http.StatusOK, Detail: "Submit KYC verification failed"}
	}
	return resp.RequestID, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to Baanx: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Baanx response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, vendorError(resp.StatusCode, raw)
	}
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && len(envelope.Error) > 0 && string(envelope.Error) != "null" {
		return nil, vendorError(resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("failed to decode Baanx response: %w", err)
		}
	}
	return raw, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.AccessToken)
}

// vendorError maps a Baanx error body. The error field is either a string or an object
// with a message.
func vendorError(status int, raw []byte) error {
	if status < 400 {
		status = http.StatusBadRequest
	}
	var body struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return &errs.VendorError{Vendor: vendorName, Status: status}
	}
	var detail string
	if json.Unmarshal(body.Error, &detail) != nil {
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Error, &obj) == nil {
			detail = obj.Message
		}
	}
	if detail == "" {
		detail = body.Message
	}
	return &errs.VendorError{Vendor: vendorName, Status: status, Detail: detail}
}
