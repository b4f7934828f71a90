/**
 * @description
 * This package provides a client for the Solaris banking API: persons, tax
 * identifications, mobile number verification, video identification and checking
 * accounts.
 *
 * @dependencies
 * - golang.org/x/oauth2/clientcredentials: access tokens for every request.
 *
 * @notes
 * - The oauth2 transport caches the access token and renews it when it expires.
 * - Solaris errors arrive as {"errors":[{"title","detail"}]}; the first detail is surfaced.
 */
package solaris

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kash/onboarding-service/internal/errs"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const vendorName = "solaris"

// Client is a client for interacting with the Solaris API.
type Client struct {
	BaseURL    string
	httpClient *http.Client
}

// NewClient creates a Solaris client authenticated with client credentials.
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	cfg := clientcredentials.Config{
		ClientID:     apiKey,
		ClientSecret: apiSecret,
		TokenURL:     baseURL + "/oauth/token",
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	base := &http.Client{Timeout: 15 * time.Second}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := cfg.Client(ctx)
	httpClient.Timeout = 30 * time.Second
	return &Client{BaseURL: baseURL, httpClient: httpClient}
}

// NewClientWithHTTP creates a client over a preconfigured HTTP client.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{BaseURL: baseURL, httpClient: httpClient}
}

// Address is a postal address.
type Address struct {
	Line1      string `json:"line_1" validate:"required"`
	Line2      string `json:"line_2,omitempty"`
	PostalCode string `json:"postal_code" validate:"required"`
	City       string `json:"city" validate:"required"`
	Country    string `json:"country" validate:"required,len=2"`
	State      string `json:"state,omitempty"`
}

// TaxInformation is the person's tax status.
type TaxInformation struct {
	MaritalStatus string `json:"marital_status"`
}

// CreatePersonRequest is the person payload.
type CreatePersonRequest struct {
	Salutation                  string         `json:"salutation"`
	FirstName                   string         `json:"first_name"`
	LastName                    string         `json:"last_name"`
	BirthDate                   string         `json:"birth_date"`
	BirthCity                   string         `json:"birth_city"`
	BirthCountry                string         `json:"birth_country"`
	Email                       string         `json:"email"`
	Nationality                 string         `json:"nationality"`
	Address                     Address        `json:"address"`
	MobileNumber                string         `json:"mobile_number"`
	EmploymentStatus            string         `json:"employment_status"`
	TaxInformation              TaxInformation `json:"tax_information"`
	FatcaRelevant               bool           `json:"fatca_relevant"`
	FatcaCrsConfirmedAt         string         `json:"fatca_crs_confirmed_at"`
	TermsConditionsSignedAt     string         `json:"terms_conditions_signed_at"`
	OwnEconomicInterestSignedAt string         `json:"own_economic_interest_signed_at"`
}

// Person is a Solaris person.
type Person struct {
	ID           string  `json:"id"`
	FirstName    string  `json:"first_name"`
	LastName     string  `json:"last_name"`
	Email        string  `json:"email"`
	MobileNumber string  `json:"mobile_number"`
	BirthDate    string  `json:"birth_date"`
	Nationality  string  `json:"nationality"`
	Address      Address `json:"address"`
}

// TaxIdentification is a person's tax id.
type TaxIdentification struct {
	ID                string `json:"id,omitempty"`
	Number            string `json:"number,omitempty"`
	Country           string `json:"country"`
	Primary           bool   `json:"primary"`
	ReasonNoTin       string `json:"reason_no_tin,omitempty"`
	ReasonDescription string `json:"reason_description,omitempty"`
}

// MobileNumber is the verification state of a person's phone.
type MobileNumber struct {
	ID       string `json:"id"`
	Number   string `json:"number"`
	Verified bool   `json:"verified"`
}

// Identification is a KYC identification session.
type Identification struct {
	ID                   string `json:"id"`
	Reference            string `json:"reference"`
	URL                  string `json:"url"`
	Status               string `json:"status"`
	Method               string `json:"method"`
	CompletedAt          string `json:"completed_at,omitempty"`
	EstimatedWaitingTime int    `json:"estimated_waiting_time,omitempty"`
}

// Money is an amount in minor units.
type Money struct {
	Value    int64  `json:"value"`
	Unit     string `json:"unit"`
	Currency string `json:"currency"`
}

// Account is a Solaris bank account.
type Account struct {
	ID               string `json:"id"`
	IBAN             string `json:"iban"`
	BIC              string `json:"bic"`
	Type             string `json:"type"`
	Balance          Money  `json:"balance"`
	AvailableBalance Money  `json:"available_balance"`
	LockingStatus    string `json:"locking_status"`
	PersonID         string `json:"person_id"`
}

func personPath(personID string) string { return "/v1/persons/" + url.PathEscape(personID) }

// CreatePerson creates a person.
func (c *Client) CreatePerson(ctx context.Context, req CreatePersonRequest) (*Person, error) {
	var p Person
	if err := c.do(ctx, http.MethodPost, "/v1/persons", req, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, &errs.VendorError{Vendor: vendorName, Status: http.StatusBadGateway, Detail: "person id missing"}
	}
	return &p, nil
}

// GetPerson fetches a person.
func (c *Client) GetPerson(ctx context.Context, personID string) (*Person, error) {
	var p Person
	if err := c.do(ctx, http.MethodGet, personPath(personID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateTaxIdentification adds a tax id to a person.
func (c *Client) CreateTaxIdentification(ctx context.Context, personID string, req TaxIdentification) (*TaxIdentification, error) {
	var out TaxIdentification
	if err := c.do(ctx, http.MethodPost, personPath(personID)+"/tax_identifications", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) mobileNumber(ctx context.Context, path string, body any) (*MobileNumber, error) {
	var out MobileNumber
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateMobileNumber registers the person's phone number.
func (c *Client) CreateMobileNumber(ctx context.Context, personID, number string) (*MobileNumber, error) {
	return c.mobileNumber(ctx, personPath(personID)+"/mobile_number", map[string]string{"number": number})
}

// AuthorizeMobileNumber sends an SMS challenge.
func (c *Client) AuthorizeMobileNumber(ctx context.Context, personID, number string) (*MobileNumber, error) {
	return c.mobileNumber(ctx, personPath(personID)+"/mobile_number/authorize", map[string]string{"number": number})
}

// ConfirmMobileNumber answers the SMS challenge.
func (c *Client) ConfirmMobileNumber(ctx context.Context, personID, number, token string) (*MobileNumber, error) {
	return c.mobileNumber(ctx, personPath(personID)+"/mobile_number/confirm", map[string]string{"number": number, "token": token})
}

// CreateIdentification starts an identification with method and language.
func (c *Client) CreateIdentification(ctx context.Context, personID, method, language string) (*Identification, error) {
	var out Identification
	body := map[string]string{"method": method, "language": language}
	if err := c.do(ctx, http.MethodPost, personPath(personID)+"/identifications", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestIdentification generates the identification URL.
func (c *Client) RequestIdentification(ctx context.Context, personID, identificationID string) (*Identification, error) {
	var out Identification
	path := personPath(personID) + "/identifications/" + url.PathEscape(identificationID) + "/request"
	if err := c.do(ctx, http.MethodPatch, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAccount opens a personal checking account.
func (c *Client) CreateAccount(ctx context.Context, personID string) (*Account, error) {
	var out Account
	body := map[string]string{"type": "CHECKING_PERSONAL", "purpose": "Main Account"}
	if err := c.do(ctx, http.MethodPost, personPath(personID)+"/accounts", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAccount fetches an account.
func (c *Client) GetAccount(ctx context.Context, personID, accountID string) (*Account, error) {
	var out Account
	if err := c.do(ctx, http.MethodGet, personPath(personID)+"/accounts/"+url.PathEscape(accountID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
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
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to Solaris: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode Solaris response: %w", err)
	}
	return nil
}

func handleErrorResponse(resp *http.Response) error {
	var body struct {
		Errors []struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	b, _ := io.ReadAll(resp.Body)
	if json.Unmarshal(b, &body) == nil && len(body.Errors) > 0 {
		detail := body.Errors[0].Detail
		if detail == "" {
			detail = body.Errors[0].Title
		}
		return &errs.VendorError{Vendor: vendorName, Status: resp.StatusCode, Detail: detail}
	}
	return &errs.VendorError{Vendor: vendorName, Status: resp.StatusCode}
}
