package primetrust

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Resource types used in request envelopes.
const (
	TypeAccount              = "account"
	TypeContacts             = "contacts"
	TypeKycDocumentChecks    = "kyc-document-checks"
	TypeFundsTransferMethods = "funds-transfer-methods"
	TypeQuotes               = "quotes"
	TypeAssetDisbursements   = "asset-disbursements"
	TypeAssetTransferMethods = "asset-transfer-methods"
	TypeContactRelationships = "contact-relationships"
)

// Quote transaction types.
const (
	QuoteBuy  = "buy"
	QuoteSell = "sell"
)

// StatusOpened is the account status once KYC is complete.
const StatusOpened = "opened"

// Envelope wraps every request body.
type Envelope struct {
	Data RequestData `json:"data"`
}

// RequestData is a JSON:API request resource.
type RequestData struct {
	Type       string `json:"type"`
	Attributes any    `json:"attributes"`
}

type resource struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	Attributes    json.RawMessage         `json:"attributes"`
	Relationships map[string]relationship `json:"relationships,omitempty"`
}

type relationship struct {
	Data json.RawMessage `json:"data"`
}

type linkage struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// firstID returns the first related id whether data is an object or an array.
func (r relationship) firstID() string {
	var many []linkage
	if json.Unmarshal(r.Data, &many) == nil && len(many) > 0 {
		return many[0].ID
	}
	var one linkage
	if json.Unmarshal(r.Data, &one) == nil {
		return one.ID
	}
	return ""
}

type document struct {
	Data     json.RawMessage `json:"data"`
	Included []resource      `json:"included"`
}

var errMalformed = errors.New("malformed Prime Trust response")

func (d document) one() (resource, error) {
	var r resource
	if err := json.Unmarshal(d.Data, &r); err != nil {
		return r, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if r.ID == "" {
		return r, fmt.Errorf("%w: resource without id", errMalformed)
	}
	return r, nil
}

func (d document) many() ([]resource, error) {
	var rs []resource
	if err := json.Unmarshal(d.Data, &rs); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return rs, nil
}

func (r resource) decode(v any) error {
	if len(r.Attributes) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Attributes, v); err != nil {
		return fmt.Errorf("%w: %s attributes: %v", errMalformed, r.Type, err)
	}
	return nil
}

// Account is a custodial account.
type Account struct {
	ID        string `json:"id"`
	ContactID string `json:"contact_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
}

type accountAttributes struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Contact is a person or company attached to an account.
type Contact struct {
	ID                        string          `json:"contact_id"`
	Name                      string          `json:"name"`
	Email                     string          `json:"email,omitempty"`
	AmlCleared                bool            `json:"aml-cleared"`
	CipCleared                bool            `json:"cip-cleared"`
	CipStatus                 string          `json:"cip-status,omitempty"`
	IdentityConfirmed         bool            `json:"identity-confirmed"`
	IdentityDocumentsVerified bool            `json:"identity-documents-verified"`
	KycRequiredActions        json.RawMessage `json:"kyc-required-actions,omitempty"`
}

type contactAttributes struct {
	Name                       string          `json:"name"`
	Email                      string          `json:"email"`
	AmlCleared                 bool            `json:"aml-cleared"`
	CipCleared                 bool            `json:"cip-cleared"`
	CipStatus                  string          `json:"cip-status"`
	IdentityConfirmed          bool            `json:"identity-confirmed"`
	IdentityDocumentsVerified  bool            `json:"identity-documents-verified"`
	IdentityDocumentsConfirmed bool            `json:"identity-documents-confirmed"`
	KycRequiredActions         json.RawMessage `json:"kyc-required-actions"`
}

func toContact(r resource) (Contact, error) {
	var a contactAttributes
	if err := r.decode(&a); err != nil {
		return Contact{}, err
	}
	return Contact{
		ID:                        r.ID,
		Name:                      a.Name,
		Email:                     a.Email,
		AmlCleared:                a.AmlCleared,
		CipCleared:                a.CipCleared,
		CipStatus:                 a.CipStatus,
		IdentityConfirmed:         a.IdentityConfirmed,
		IdentityDocumentsVerified: a.IdentityDocumentsVerified || a.IdentityDocumentsConfirmed,
		KycRequiredActions:        a.KycRequiredActions,
	}, nil
}

// Check is an included kyc-document-check or cip-check.
type Check struct {
	ID     string
	Type   string
	Status string
}

func toChecks(included []resource) []Check {
	out := make([]Check, 0, len(included))
	for _, r := range included {
		var a struct {
			Status string `json:"status"`
		}
		_ = r.decode(&a)
		out = append(out, Check{ID: r.ID, Type: r.Type, Status: a.Status})
	}
	return out
}

// KycDocumentCheck requests verification of uploaded documents for a contact.
type KycDocumentCheck struct {
	ContactID          string `json:"contact-id"`
	UploadedDocumentID string `json:"uploaded-document-id"`
	BacksideDocumentID string `json:"backside-document-id,omitempty"`
	DocumentType       string `json:"kyc-document-type"`
	Identity           bool   `json:"identity"`
	IdentityPhoto      bool   `json:"identity-photo"`
	ProofOfAddress     bool   `json:"proof-of-address"`
	Country            string `json:"kyc-document-country"`
}

// UploadRequest is one file sent to /v2/uploaded-documents.
type UploadRequest struct {
	ContactID   string
	Label       string
	Description string
	FileName    string
	Content     []byte
	Public      bool
}

// FundsTransferMethod is a linked bank account.
type FundsTransferMethod struct {
	ID              string
	Inactive        bool
	BankAccountType string
	BankName        string
}

// CashTotals are the USD balances of an account.
type CashTotals struct {
	Disbursable     decimal.Decimal `json:"disbursable"`
	PendingTransfer decimal.Decimal `json:"pending-transfer"`
	Settled         decimal.Decimal `json:"settled"`
}

// AssetTransfer is a crypto movement into or out of an account.
type AssetTransfer struct {
	ID        string
	Status    string
	UnitCount decimal.Decimal
}

// AssetTransferMethod is a deposit or withdrawal wallet.
type AssetTransferMethod struct {
	ID            string
	WalletAddress string
	Tag           string
}

// QuoteRequest asks for a buy or sell price.
type QuoteRequest struct {
	AccountID       string           `json:"account-id"`
	AssetID         string           `json:"asset-id"`
	Hot             bool             `json:"hot"`
	TransactionType string           `json:"transaction-type"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	UnitCount       *decimal.Decimal `json:"unit-count,omitempty"`
}

// Quote is a priced trade.
type Quote struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	UnitCount decimal.Decimal `json:"unit-count"`
}

// Settled reports whether the quote has been filled.
func (q Quote) Settled() bool { return q.Status == "settled" || q.Status == "executed" }

// AssetDisbursement moves assets out to an external wallet.
type AssetDisbursement struct {
	AccountID           string                     `json:"account-id"`
	UnitCount           decimal.Decimal            `json:"unit-count"`
	HotTransfer         bool                       `json:"hot-transfer"`
	AssetTransferMethod AssetTransferMethodRequest `json:"asset-transfer-method"`
}

// AssetTransferMethodRequest describes the wallet on the other side of a transfer.
type AssetTransferMethodRequest struct {
	AssetID           string `json:"asset-id"`
	ContactID         string `json:"contact-id"`
	WalletAddress     string `json:"wallet-address,omitempty"`
	TransferDirection string `json:"transfer-direction"`
	SingleUse         bool   `json:"single-use"`
	AssetTransferType string `json:"asset-transfer-type"`
}
