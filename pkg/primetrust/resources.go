package primetrust

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// CreateAccount opens a custodial account. attributes is the caller's account payload;
// webhookURL is injected as webhook-config when set.
func (c *Client) CreateAccount(ctx context.Context, attributes map[string]any, webhookURL string) (*Account, error) {
	if attributes == nil {
		attributes = map[string]any{}
	}
	if webhookURL != "" {
		attributes["webhook-config"] = map[string]string{"url": webhookURL}
	}
	req := Envelope{Data: RequestData{Type: TypeAccount, Attributes: attributes}}

	var doc document
	if err := c.do(ctx, http.MethodPost, "/v2/accounts?include=contacts", req, &doc, nil); err != nil {
		return nil, err
	}
	r, err := doc.one()
	if err != nil {
		return nil, err
	}
	acc, err := toAccount(r)
	if err != nil {
		return nil, err
	}
	if acc.ContactID == "" {
		return nil, fmt.Errorf("%w: account %s has no contact", errMalformed, acc.ID)
	}
	return acc, nil
}

func toAccount(r resource) (*Account, error) {
	var a accountAttributes
	if err := r.decode(&a); err != nil {
		return nil, err
	}
	acc := &Account{ID: r.ID, Name: a.Name, Status: a.Status}
	if rel, ok := r.Relationships["contacts"]; ok {
		acc.ContactID = rel.firstID()
	}
	return acc, nil
}

// GetAccount fetches an account.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	var doc document
	if err := c.do(ctx, http.MethodGet, "/v2/accounts/"+url.PathEscape(accountID), nil, &doc, nil); err != nil {
		return nil, err
	}
	r, err := doc.one()
	if err != nil {
		return nil, err
	}
	return toAccount(r)
}

// PatchAccount updates account attributes, for example a business questionnaire.
func (c *Client) PatchAccount(ctx context.Context, accountID string, data any) error {
	return c.do(ctx, http.MethodPatch, "/v2/accounts/"+url.PathEscape(accountID), map[string]any{"data": data}, nil, nil)
}

// GetContact fetches a single contact.
func (c *Client) GetContact(ctx context.Context, contactID string) (*Contact, error) {
	var doc document
	if err := c.do(ctx, http.MethodGet, "/v2/contacts/"+url.PathEscape(contactID), nil, &doc, nil); err != nil {
		return nil, err
	}
	r, err := doc.one()
	if err != nil {
		return nil, err
	}
	contact, err := toContact(r)
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// ContactsWithChecks is a contact list plus the checks included with it.
type ContactsWithChecks struct {
	Contacts []Contact
	Checks   []Check
}

func (c *Client) contactsWithChecks(ctx context.Context, path string) (*ContactsWithChecks, error) {
	var doc document
	if err := c.do(ctx, http.MethodGet, path, nil, &doc, nil); err != nil {
		return nil, err
	}
	rs, err := doc.many()
	if err != nil {
		return nil, err
	}
	out := &ContactsWithChecks{Checks: toChecks(doc.Included)}
	for _, r := range rs {
		contact, err := toContact(r)
		if err != nil {
			return nil, err
		}
		out.Contacts = append(out.Contacts, contact)
	}
	return out, nil
}

// AccountContacts lists the contacts of an account with their KYC document and CIP checks.
func (c *Client) AccountContacts(ctx context.Context, accountID string) (*ContactsWithChecks, error) {
	path := "/v2/contacts?account.id=" + url.QueryEscape(accountID) + "&include=kyc-document-checks,cip-checks"
	return c.contactsWithChecks(ctx, path)
}

// RelatedContactsStatus lists the contacts related to contactID with their KYC document checks.
func (c *Client) RelatedContactsStatus(ctx context.Context, contactID string) (*ContactsWithChecks, error) {
	path := "/v2/contacts/" + url.PathEscape(contactID) + "/related-to-contacts?include=kyc-document-checks"
	return c.contactsWithChecks(ctx, path)
}

// RelatedContacts returns the contacts included as related to contactID.
func (c *Client) RelatedContacts(ctx context.Context, contactID string) ([]Contact, error) {
	var doc document
	path := "/v2/contacts/" + url.PathEscape(contactID) + "?include=related-to-contacts"
	if err := c.do(ctx, http.MethodGet, path, nil, &doc, nil); err != nil {
		return nil, err
	}
	out := make([]Contact, 0, len(doc.Included))
	for _, r := range doc.Included {
		contact, err := toContact(r)
		if err != nil {
			return nil, err
		}
		out = append(out, contact)
	}
	return out, nil
}

// CreateContact adds a contact, for example a business beneficial owner.
func (c *Client) CreateContact(ctx context.Context, attributes map[string]any) (*Contact, error) {
	req := Envelope{Data: RequestData{Type: TypeContacts, Attributes: attributes}}
	var doc document
	if err := c.do(ctx, http.MethodPost, "/v2/contacts", req, &doc, nil); err != nil {
		return nil, err
	}
	r, err := doc.one()
	if err != nil {
		return nil, err
	}
	contact, err := toContact(r)
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// PatchContact updates contact attributes.
func (c *Client) PatchContact(ctx context.Context, contactID string, data any) error {
	return c.do(ctx, http.MethodPatch, "/v2/contacts/"+url.PathEscape(contactID), map[string]any{"data": data}, nil, nil)
}

// DeleteContact removes a contact.
func (c *Client) DeleteContact(ctx context.Context, contactID string) error {
	return c.do(ctx, http.MethodDelete, "/v2/contacts/"+url.PathEscape(contactID), nil, nil, nil)
}

// CreateContactRelationship links two contacts under label.
func (c *Client) CreateContactRelationship(ctx context.Context, label, fromContactID, toContactID string) error {
	req := Envelope{Data: RequestData{Type: TypeContactRelationships, Attributes: map[string]string{
		"label":           label,
		"from-contact-id": fromContactID,
		"to-contact-id":   toContactID,
	}}}
	return c.do(ctx, http.MethodPost, "/v2/contact-relationships", req, nil, nil)
}

// CreateKycDocumentCheck starts verification of uploaded documents.
func (c *Client) CreateKycDocumentCheck(ctx context.Context, check KycDocumentCheck) (string, error) {
	if check.Country == "" {
		check.Country = "US"
	}
	req := Envelope{Data: RequestData{Type: TypeKycDocumentChecks, Attributes: check}}
	var doc document
	if err := c.do(ctx, http.MethodPost, "/v2/kyc-document-checks", req, &doc, nil); err != nil {
		return "", err
	}
	r, err := doc.one()
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// CreateFundsTransferMethod links a bank account from a Plaid processor token.
func (c *Client) CreateFundsTransferMethod(ctx context.Context, contactID, processorToken string) (*FundsTransferMethod, error) {
	req := Envelope{Data: RequestData{Type: TypeFundsTransferMethods, Attributes: map[string]string{
		"contact-id":            contactID,
		"plaid-processor-token": processorToken,
		"funds-transfer-type":   "ach",
		"ach-check-type":        "personal",
	}}}
	var doc document
	if err := c.do(ctx, http.MethodPost, "/v2/funds-transfer-methods?include=bank", req, &doc, nil); err != nil {
		return nil, err
	}
	r, err := doc.one()
	if err != nil {
		return nil, err
	}
	var a struct {
		Inactive        bool   `json:"inactive"`
		BankAccountType string `json:"bank-account-type"`
	}
	if err := r.decode(&a); err != nil {
		return nil, err
	}
	ftm := &FundsTransferMethod{ID: r.ID, Inactive: a.Inactive, BankAccountType: a.BankAccountType}
	if len(doc.Included) > 0 {
		var bank struct {
			Name string `json:"name"`
		}
		if err := doc.Included[0].decode(&bank); err != nil {
			return nil, err
		}
		ftm.BankName = bank.Name
	}
	return ftm, nil
}

// AccountCashTotals returns the USD balances of an account.
func (c *Client) AccountCashTotals(ctx context.Context, accountID string) (*CashTotals, error) {
	var doc document
	if err := c.do(ctx, http.MethodGet, "/v2/account-cash-totals?account.id="+url.QueryEscape(accountID), nil, &doc, nil); err != nil {
		return nil, err
	}
	rs, err := doc.many()
	if err != nil {
		return nil, err
	}
	totals := &CashTotals{}
	if len(rs) == 0 {
		return totals, nil
	}
	if err := rs[0].decode(totals); err != nil {
		return nil, err
	}
	return totals, nil
}

// GetAssetTransfer fetches an asset transfer.
func (c *Client) GetAssetTransfer(ctx context.Context, id string) (*AssetTransfer, error) {
	var doc document
	if err := c.do(ctx, http.MethodGet, "/v2/asset-transfers/"+url.PathEscape(id), nil, &doc, nil); err != nil {
		return nil, err
	}
	r, err := doc.one()
	if err != nil {
		return nil, err
	}
	var a struct {
		Status    string          `json:"status"`
		UnitCount decimal.Decimal `json:"unit-count"`
	}
	if err := r.decode(&a); err != nil {
		return nil, err
	}
	return &AssetTransfer{ID: r.ID, Status: a.Status, UnitCount: a.UnitCount}, nil
}

// CreateAssetTransferMethod creates a reusable wallet for the contact.
func (c *Client) CreateAssetTransferMethod(ctx context.Context, m AssetTransferMethodRequest) (*AssetTransferMethod, error) {
	req := Envelope{Data: RequestData{Type: TypeAssetTransferMethods, Attributes: m}}
	var doc document
	if err := c.do(ctx, http.MethodPost, "/v2/asset-transfer-methods", req, &doc, nil); err != nil {
		return nil, err
	}
	r, err := doc.one()
	if err != nil {
		return nil, err
	}
	var a struct {
		WalletAddress string `json:"wallet-address"`
		Tag           string `json:"tag"`
	}
	if err := r.decode(&a); err != nil {
		return nil, err
	}
	return &AssetTransferMethod{ID: r.ID, WalletAddress: a.WalletAddress, Tag: a.Tag}, nil
}

func (c *Client) quote(ctx context.Context, method, path string, body any) (*Quote, error) {
	var doc document
	if err := c.do(ctx, method, path, body, &doc, nil); err != nil {
		return nil, err
	}
	r, err := doc.one()
	if err != nil {
		return nil, err
	}
	q := &Quote{}
	if err := r.decode(q); err != nil {
		return nil, err
	}
	q.ID = r.ID
	return q, nil
}

// CreateQuote prices a trade.
func (c *Client) CreateQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	return c.quote(ctx, http.MethodPost, "/v2/quotes", Envelope{Data: RequestData{Type: TypeQuotes, Attributes: req}})
}

// GetQuote fetches a quote.
func (c *Client) GetQuote(ctx context.Context, id string) (*Quote, error) {
	return c.quote(ctx, http.MethodGet, "/v2/quotes/"+url.PathEscape(id), nil)
}

// ExecuteQuote executes a quote.
func (c *Client) ExecuteQuote(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/v2/quotes/"+url.PathEscape(id)+"/execute", nil, nil, nil)
}

// CreateAssetDisbursement sends assets to an external wallet. idempotencyKey must be
// reused across retries of the same disbursement.
func (c *Client) CreateAssetDisbursement(ctx context.Context, idempotencyKey string, d AssetDisbursement) (string, error) {
	req := Envelope{Data: RequestData{Type: TypeAssetDisbursements, Attributes: d}}
	headers := map[string]string{"X-Idempotent-ID-V2": idempotencyKey}
	var doc document
	if err := c.do(ctx, http.MethodPost, "/v2/asset-disbursements?include=asset-transfers", req, &doc, headers); err != nil {
		return "", err
	}
	r, err := doc.one()
	if err != nil {
		return "", err
	}
	return r.ID, nil
}
