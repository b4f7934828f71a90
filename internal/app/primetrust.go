/**
 * @description
 * PrimeTrustService orchestrates personal and business custody accounts at Prime Trust:
 * account creation, KYC documents and checks, business related contacts, Plaid backed
 * bank links, off-ramp wallets and buy quotes.
 *
 * @dependencies
 * - github.com/google/uuid: idempotency keys for asset disbursements.
 * - github.com/shopspring/decimal: quote and balance amounts.
 * - go.uber.org/zap: structured logging.
 *
 * @notes
 * - Every personal operation runs the main-user guard: unknown or blocked users get 403.
 * - Buy quote settlement is polled a bounded number of times; a quote that never
 *   settles is reported instead of blocking the request forever.
 */
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	"github.com/kash/onboarding-service/internal/onboarding"
	"github.com/kash/onboarding-service/pkg/plaid"
	"github.com/kash/onboarding-service/pkg/primetrust"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// disbursementAttempts bounds retries of one asset disbursement under a single key.
const disbursementAttempts = 4

// ErrQuoteNotSettled is returned when a buy quote is still open after polling.
var ErrQuoteNotSettled = errors.New("quote did not settle in time")

// ProcessorTokens turns Plaid Link metadata into a processor token.
type ProcessorTokens interface {
	ProcessorTokenFromMetadata(ctx context.Context, rawMetadata, processor string) (string, error)
}

// PrimeTrustOptions are the tunables of PrimeTrustService.
type PrimeTrustOptions struct {
	USTAssetID        string
	QuotePollInterval time.Duration
	QuotePollAttempts int
	RetryDelay        time.Duration
}

// PrimeTrustService runs the Prime Trust onboarding and money movement flows.
type PrimeTrustService struct {
	api      PrimeTrustAPI
	plaid    ProcessorTokens
	users    UserDirectory
	personal *onboarding.Engine
	business *onboarding.Engine
	opts     PrimeTrustOptions
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewPrimeTrustService wires the service over the personal and business engines.
func NewPrimeTrustService(api PrimeTrustAPI, plaidClient ProcessorTokens, users UserDirectory, personal, business *onboarding.Engine, opts PrimeTrustOptions, logger *zap.Logger) *PrimeTrustService {
	if opts.QuotePollAttempts <= 0 {
		opts.QuotePollAttempts = 30
	}
	return &PrimeTrustService{
		api:      api,
		plaid:    plaidClient,
		users:    users,
		personal: personal,
		business: business,
		opts:     opts,
		logger:   logger.With(zap.String("provider", string(domain.ProviderPrimeTrust))),
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// AccountView is the linkage summary returned after account creation.
type AccountView struct {
	Identity    string      `json:"identity"`
	AccountID   string      `json:"account_id"`
	ContactID   string      `json:"contact_id,omitempty"`
	CurrentStep domain.Step `json:"current_kyc_step"`
	Created     bool        `json:"created"`
}

func accountView(l *domain.Linkage, created bool) *AccountView {
	return &AccountView{
		Identity:    l.Identity,
		AccountID:   l.ExternalAccountID,
		ContactID:   l.ExternalContactID,
		CurrentStep: l.CurrentStep,
		Created:     created,
	}
}

// CreateAccount opens the personal account for identity, or returns the existing one.
func (s *PrimeTrustService) CreateAccount(ctx context.Context, identity string, attributes map[string]any) (*AccountView, error) {
	if _, err := requireMainUser(ctx, s.users, identity); err != nil {
		return nil, err
	}
	l, created, err := s.personal.CreateAccount(ctx, identity, attributes)
	if err != nil {
		return nil, err
	}
	return accountView(l, created), nil
}

// CreateBusinessAccount opens the business account for identity, or returns the existing one.
func (s *PrimeTrustService) CreateBusinessAccount(ctx context.Context, identity string, attributes map[string]any) (*AccountView, error) {
	if _, err := requireMainUser(ctx, s.users, identity); err != nil {
		return nil, err
	}
	l, created, err := s.business.CreateAccount(ctx, identity, attributes)
	if err != nil {
		return nil, err
	}
	return accountView(l, created), nil
}

// UpdateKyc patches the owner contact with corrected KYC data.
func (s *PrimeTrustService) UpdateKyc(ctx context.Context, identity string, data any) error {
	if _, err := requireMainUser(ctx, s.users, identity); err != nil {
		return err
	}
	_, err := s.personal.PatchKyc(ctx, identity, data)
	return err
}

// UpdateBusinessQuestionnaire patches the business account questionnaire.
func (s *PrimeTrustService) UpdateBusinessQuestionnaire(ctx context.Context, identity string, data any) (domain.StepView, error) {
	l, err := s.business.PatchKyc(ctx, identity, data)
	if err != nil {
		return domain.StepView{}, err
	}
	return domain.StepView{CurrentStep: l.CurrentStep, AccountID: l.ExternalAccountID}, nil
}

// UploadDocumentInput is one personal KYC upload.
type UploadDocumentInput struct {
	Identity     string
	Label        string
	File         FileUpload
	Resubmitting bool
}

// UploadDocument uploads a KYC document and applies the document decision table.
func (s *PrimeTrustService) UploadDocument(ctx context.Context, in UploadDocumentInput) (domain.StepView, error) {
	if _, err := requireMainUser(ctx, s.users, in.Identity); err != nil {
		return domain.StepView{}, err
	}
	content, err := decodeFile(in.File.File)
	if err != nil {
		return domain.StepView{}, err
	}
	l, _, err := s.personal.SubmitDocument(ctx, in.Identity, onboarding.Document{
		Label:        in.Label,
		Description:  in.Label,
		FileName:     uploadName(in.File),
		ContentType:  in.File.FileType,
		Content:      content,
		Resubmitting: in.Resubmitting,
	})
	if err != nil {
		return domain.StepView{}, err
	}
	return domain.StepView{CurrentStep: l.CurrentStep, AccountID: l.ExternalAccountID}, nil
}

// UploadBusinessDocuments uploads company documents and moves on to related contacts.
func (s *PrimeTrustService) UploadBusinessDocuments(ctx context.Context, identity string, files []FileUpload) (domain.StepView, error) {
	decoded, err := decodeFiles(files)
	if err != nil {
		return domain.StepView{}, err
	}
	l, _, err := s.business.SubmitDocument(ctx, identity, onboarding.Document{Payload: decoded})
	if err != nil {
		return domain.StepView{}, err
	}
	return domain.StepView{CurrentStep: l.CurrentStep, AccountID: l.ExternalAccountID}, nil
}

// DocumentCheck starts verification of the latest uploads for documentType and returns
// the check id.
func (s *PrimeTrustService) DocumentCheck(ctx context.Context, identity, documentType string) (string, error) {
	if _, err := requireMainUser(ctx, s.users, identity); err != nil {
		return "", err
	}
	l, err := s.personal.RequireAccount(ctx, identity)
	if err != nil {
		return "", err
	}
	check, err := documentCheckFor(l.ExternalContactID, documentType, l.DocumentIDs)
	if err != nil {
		return "", err
	}
	return s.api.CreateKycDocumentCheck(ctx, check)
}

// GetStep returns the personal onboarding step.
func (s *PrimeTrustService) GetStep(ctx context.Context, identity string) (domain.StepView, error) {
	return s.personal.CurrentStep(ctx, identity)
}

// GetBusinessStep returns the business onboarding step.
func (s *PrimeTrustService) GetBusinessStep(ctx context.Context, identity string) (domain.StepView, error) {
	return s.business.CurrentStep(ctx, identity)
}

// UpdateBusinessStep marks the business application as submitted.
func (s *PrimeTrustService) UpdateBusinessStep(ctx context.Context, identity string) (domain.StepView, error) {
	l, err := s.business.Get(ctx, identity)
	if err != nil {
		return domain.StepView{}, err
	}
	if err := s.business.Transition(ctx, l, domain.BusinessStepSubmitted, false); err != nil {
		return domain.StepView{}, err
	}
	return domain.StepView{CurrentStep: l.CurrentStep, AccountID: l.ExternalAccountID}, nil
}

// RelatedContactInput adds a beneficial owner or signer to a business account.
type RelatedContactInput struct {
	Identity        string
	RelationshipsTo string
	Attributes      map[string]any
	Files           []FileUpload
}

// RelatedContactInfo is one related contact of a business.
type RelatedContactInfo struct {
	ContactID string `json:"contact_id"`
	Name      string `json:"name"`
}

// CreateRelatedContact creates the contact, uploads its identity documents, starts the
// document check and links it to the company contact.
func (s *PrimeTrustService) CreateRelatedContact(ctx context.Context, in RelatedContactInput) error {
	files, err := decodeFiles(in.Files)
	if err != nil {
		return err
	}
	l, err := s.business.RequireAccount(ctx, in.Identity)
	if err != nil {
		return err
	}

	attributes := make(map[string]any, len(in.Attributes)+4)
	for k, v := range in.Attributes {
		attributes[k] = v
	}
	attributes["tax-country"] = "US"
	if addr, ok := attributes["primary-address"].(map[string]any); ok {
		attributes["tax-state"] = addr["region"]
	}
	attributes["account-roles"] = []string{"beneficiary"}
	attributes["account-id"] = l.ExternalAccountID
	if err := normalizeContactPhone(attributes); err != nil {
		return err
	}

	contact, err := s.api.CreateContact(ctx, attributes)
	if err != nil {
		return err
	}
	related := domain.RelatedContact{ContactID: contact.ID}
	if related.DocumentIDs, err = uploadAll(ctx, s.api, contact.ID, files); err != nil {
		return err
	}
	if _, err := s.api.CreateKycDocumentCheck(ctx, relatedContactCheck(contact.ID, files, related.DocumentIDs)); err != nil {
		return err
	}
	if err := s.api.CreateContactRelationship(ctx, in.RelationshipsTo, l.ExternalContactID, contact.ID); err != nil {
		return err
	}

	l.Details.RelatedContacts = append(l.Details.RelatedContacts, related)
	s.logger.Info("related contact created", zap.String("identity", in.Identity), zap.String("contact_id", contact.ID))
	return s.business.Transition(ctx, l, domain.BusinessStepQuestionnaire, false)
}

// relatedContactCheck checks a related contact's identity document, front and back
// when two driver's license pages were sent.
func relatedContactCheck(contactID string, files []decodedFile, docIDs []string) primetrust.KycDocumentCheck {
	check := primetrust.KycDocumentCheck{
		ContactID:          contactID,
		DocumentType:       files[0].Label,
		Identity:           true,
		IdentityPhoto:      true,
		UploadedDocumentID: docIDs[len(docIDs)-1],
	}
	if len(files) == 2 && files[0].Label == domain.DocumentDriversLicense {
		check.UploadedDocumentID = docIDs[len(docIDs)-2]
		check.BacksideDocumentID = docIDs[len(docIDs)-1]
	}
	return check
}

// UpdateRelatedContactDocuments uploads replacement documents for a related contact
// and checks them again.
func (s *PrimeTrustService) UpdateRelatedContactDocuments(ctx context.Context, identity, contactID string, files []FileUpload) error {
	decoded, err := decodeFiles(files)
	if err != nil {
		return err
	}
	l, err := s.ownedRelatedContact(ctx, identity, contactID)
	if err != nil {
		return err
	}
	ids, err := uploadAll(ctx, s.api, contactID, decoded)
	if err != nil {
		return err
	}
	if _, err := s.api.CreateKycDocumentCheck(ctx, relatedContactCheck(contactID, decoded, ids)); err != nil {
		return err
	}
	for i := range l.Details.RelatedContacts {
		if l.Details.RelatedContacts[i].ContactID == contactID {
			l.Details.RelatedContacts[i].DocumentIDs = append(l.Details.RelatedContacts[i].DocumentIDs, ids...)
		}
	}
	return s.business.Save(ctx, l)
}

// UpdateRelatedContactInfo patches a related contact's KYC attributes.
func (s *PrimeTrustService) UpdateRelatedContactInfo(ctx context.Context, identity, contactID string, data any) error {
	if _, err := s.ownedRelatedContact(ctx, identity, contactID); err != nil {
		return err
	}
	return s.api.PatchContact(ctx, contactID, data)
}

// RelatedContacts lists the contacts related to the company contact.
func (s *PrimeTrustService) RelatedContacts(ctx context.Context, identity string) ([]RelatedContactInfo, error) {
	l, err := s.business.RequireAccount(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.relatedContacts(ctx, l)
}

func (s *PrimeTrustService) relatedContacts(ctx context.Context, l *domain.Linkage) ([]RelatedContactInfo, error) {
	contacts, err := s.api.RelatedContacts(ctx, l.ExternalContactID)
	if err != nil {
		return nil, err
	}
	out := make([]RelatedContactInfo, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, RelatedContactInfo{ContactID: c.ID, Name: c.Name})
	}
	return out, nil
}

// ownedRelatedContact loads the business record and checks contactID is related to it.
func (s *PrimeTrustService) ownedRelatedContact(ctx context.Context, identity, contactID string) (*domain.Linkage, error) {
	l, err := s.business.RequireAccount(ctx, identity)
	if err != nil {
		return nil, err
	}
	contacts, err := s.relatedContacts(ctx, l)
	if err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(contacts, func(c RelatedContactInfo) bool { return c.ContactID == contactID }) {
		return nil, fmt.Errorf("%w: contact %s is not related to this business", errs.ErrNotFound, contactID)
	}
	return l, nil
}

// DeleteRelatedContact removes a related contact and returns the remaining ones.
func (s *PrimeTrustService) DeleteRelatedContact(ctx context.Context, identity, contactID string) ([]RelatedContactInfo, error) {
	l, err := s.ownedRelatedContact(ctx, identity, contactID)
	if err != nil {
		return nil, err
	}
	if err := s.api.DeleteContact(ctx, contactID); err != nil {
		return nil, err
	}
	l.Details.RelatedContacts = slices.DeleteFunc(l.Details.RelatedContacts, func(c domain.RelatedContact) bool {
		return c.ContactID == contactID
	})
	if err := s.business.Save(ctx, l); err != nil {
		return nil, err
	}
	return s.relatedContacts(ctx, l)
}

// KycStatus is the KYC state of one Prime Trust contact.
type KycStatus struct {
	AmlCleared                      bool            `json:"aml-cleared"`
	CipCleared                      bool            `json:"cip-cleared"`
	CipStatus                       string          `json:"cip-status,omitempty"`
	IdentityDocumentsVerified       bool            `json:"identity-documents-verified"`
	ProofOfAddressDocumentsVerified bool            `json:"proof-of-address-documents-verified"`
	IdentityConfirmed               bool            `json:"identity-confirmed"`
	KycRequiredActions              json.RawMessage `json:"kyc-required-actions,omitempty"`
	KycStatus                       string          `json:"kyc-status"`
	AccountID                       string          `json:"account-id"`
	ContactID                       string          `json:"contact-id,omitempty"`
	Name                            string          `json:"name,omitempty"`
	CompleteStatus                  *bool           `json:"complete-status,omitempty"`
}

func kycStatusOf(c primetrust.Contact, accountID string) KycStatus {
	return KycStatus{
		AmlCleared:                c.AmlCleared,
		CipCleared:                c.CipCleared,
		CipStatus:                 c.CipStatus,
		IdentityDocumentsVerified: c.IdentityDocumentsVerified,
		IdentityConfirmed:         c.IdentityConfirmed,
		KycRequiredActions:        c.KycRequiredActions,
		AccountID:                 accountID,
	}
}

// KycStatus reports the owner contact's checks and whether the account is open.
func (s *PrimeTrustService) KycStatus(ctx context.Context, identity string) (*KycStatus, error) {
	if _, err := requireMainUser(ctx, s.users, identity); err != nil {
		return nil, err
	}
	l, err := s.personal.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !l.HasAccount() {
		return nil, errs.ErrAccountMissing
	}
	contacts, err := s.api.AccountContacts(ctx, l.ExternalAccountID)
	if err != nil {
		return nil, err
	}
	if len(contacts.Contacts) == 0 {
		return nil, fmt.Errorf("%w: account %s has no contacts", errs.ErrNotFound, l.ExternalAccountID)
	}
	acc, err := s.api.GetAccount(ctx, l.ExternalAccountID)
	if err != nil {
		return nil, err
	}

	status := kycStatusOf(contacts.Contacts[0], l.ExternalAccountID)
	status.ProofOfAddressDocumentsVerified = !l.Details.ProofOfAddress || status.IdentityDocumentsVerified
	if len(contacts.Checks) > 0 {
		status.KycStatus = contacts.Checks[0].Status
	}
	if len(contacts.Checks) > 1 {
		status.CipStatus = contacts.Checks[1].Status
	}
	complete := acc.Status == primetrust.StatusOpened
	status.CompleteStatus = &complete
	return &status, nil
}

// BusinessKycStatus is the KYC state of a company and its related contacts.
type BusinessKycStatus struct {
	CompanyStatus         KycStatus   `json:"company_status"`
	RelatedContactsStatus []KycStatus `json:"related_contacts_status"`
}

// RelatedContactsStatus reports the company and related contact KYC states.
func (s *PrimeTrustService) RelatedContactsStatus(ctx context.Context, identity string) (*BusinessKycStatus, error) {
	l, err := s.business.RequireAccount(ctx, identity)
	if err != nil {
		return nil, err
	}
	company, err := s.api.GetContact(ctx, l.ExternalContactID)
	if err != nil {
		return nil, err
	}
	acc, err := s.api.GetAccount(ctx, l.ExternalAccountID)
	if err != nil {
		return nil, err
	}
	related, err := s.api.RelatedContactsStatus(ctx, l.ExternalContactID)
	if err != nil {
		return nil, err
	}

	out := &BusinessKycStatus{CompanyStatus: kycStatusOf(*company, l.ExternalAccountID)}
	out.CompanyStatus.KycStatus = acc.Status
	out.CompanyStatus.ContactID = company.ID
	out.CompanyStatus.Name = company.Name
	out.RelatedContactsStatus = make([]KycStatus, 0, len(related.Contacts))
	for i, c := range related.Contacts {
		st := kycStatusOf(c, l.ExternalAccountID)
		st.ContactID = c.ID
		st.Name = c.Name
		if i < len(related.Checks) {
			st.KycStatus = related.Checks[i].Status
		}
		out.RelatedContactsStatus = append(out.RelatedContactsStatus, st)
	}
	return out, nil
}

// ConnectedBankView is a linked bank as shown to the app.
type ConnectedBankView struct {
	BankAccountName  string `json:"bank-account-name"`
	BankAccountType  string `json:"bank-account-type"`
	TransferMethodID string `json:"transfer-method-id"`
	Inactive         bool   `json:"inactive"`
}

func connectedBankViews(banks []domain.ConnectedBank) []ConnectedBankView {
	out := make([]ConnectedBankView, 0, len(banks))
	for _, b := range banks {
		out = append(out, ConnectedBankView{
			BankAccountName:  b.BankName,
			BankAccountType:  b.BankAccountType,
			TransferMethodID: b.FundsTransferMethodID,
			Inactive:         !b.Active,
		})
	}
	return out
}

// CreatePaymentMethod links the bank selected in Plaid Link as an ACH funds transfer
// method and returns the connected banks.
func (s *PrimeTrustService) CreatePaymentMethod(ctx context.Context, identity, metadata string) ([]ConnectedBankView, error) {
	if _, err := requireMainUser(ctx, s.users, identity); err != nil {
		return nil, err
	}
	l, err := s.personal.RequireAccount(ctx, identity)
	if err != nil {
		return nil, err
	}
	token, err := s.plaid.ProcessorTokenFromMetadata(ctx, metadata, plaid.ProcessorPrimeTrust)
	if err != nil {
		return nil, err
	}
	ftm, err := s.api.CreateFundsTransferMethod(ctx, l.ExternalContactID, token)
	if err != nil {
		return nil, err
	}
	l.Details.ConnectedBanks = append(l.Details.ConnectedBanks, domain.ConnectedBank{
		BankName:              ftm.BankName,
		FundsTransferMethodID: ftm.ID,
		Active:                !ftm.Inactive,
		BankAccountType:       ftm.BankAccountType,
	})
	if err := s.personal.Save(ctx, l); err != nil {
		return nil, err
	}
	return connectedBankViews(l.Details.ConnectedBanks), nil
}

// ConnectedBanks lists the banks linked to the personal account.
func (s *PrimeTrustService) ConnectedBanks(ctx context.Context, identity string) ([]ConnectedBankView, error) {
	if _, err := requireMainUser(ctx, s.users, identity); err != nil {
		return nil, err
	}
	l, err := s.personal.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	return connectedBankViews(l.Details.ConnectedBanks), nil
}

// OffRampDetails returns the incoming UST wallet, creating it on first use.
func (s *PrimeTrustService) OffRampDetails(ctx context.Context, identity string) (*domain.AssetTransferInfo, error) {
	if _, err := requireMainUser(ctx, s.users, identity); err != nil {
		return nil, err
	}
	l, err := s.personal.RequireAccount(ctx, identity)
	if err != nil {
		return nil, err
	}
	if l.Details.AssetTransfer != nil {
		return l.Details.AssetTransfer, nil
	}
	m, err := s.api.CreateAssetTransferMethod(ctx, primetrust.AssetTransferMethodRequest{
		AssetID:           s.opts.USTAssetID,
		ContactID:         l.ExternalContactID,
		TransferDirection: "incoming",
		AssetTransferType: "terra",
	})
	if err != nil {
		return nil, err
	}
	l.Details.AssetTransfer = &domain.AssetTransferInfo{WalletAddress: m.WalletAddress, Memo: m.Tag}
	if err := s.personal.Save(ctx, l); err != nil {
		return nil, err
	}
	return l.Details.AssetTransfer, nil
}

// BuyQuoteInput buys an asset with USD and sends it to an external wallet.
type BuyQuoteInput struct {
	Identity      string
	Asset         string
	Amount        decimal.Decimal
	WalletAddress string
}

// BuyQuoteResult reports the executed quote and the disbursement that paid it out.
type BuyQuoteResult struct {
	QuoteID        string          `json:"quote_id"`
	UnitCount      decimal.Decimal `json:"unit_count"`
	DisbursementID string          `json:"disbursement_id"`
}

func (s *PrimeTrustService) assetID(asset string) (string, error) {
	if asset == "" || strings.EqualFold(asset, domain.DenomUST) {
		return s.opts.USTAssetID, nil
	}
	return "", fmt.Errorf("%w: unsupported asset %q", errs.ErrInvalidInput, asset)
}

// BuyQuote prices and executes a buy, waits for it to settle and disburses the units.
func (s *PrimeTrustService) BuyQuote(ctx context.Context, in BuyQuoteInput) (*BuyQuoteResult, error) {
	if _, err := requireMainUser(ctx, s.users, in.Identity); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", errs.ErrInvalidInput)
	}
	assetID, err := s.assetID(in.Asset)
	if err != nil {
		return nil, err
	}
	l, err := s.personal.RequireAccount(ctx, in.Identity)
	if err != nil {
		return nil, err
	}

	amount := in.Amount
	q, err := s.api.CreateQuote(ctx, primetrust.QuoteRequest{
		AccountID:       l.ExternalAccountID,
		AssetID:         assetID,
		Hot:             true,
		TransactionType: primetrust.QuoteBuy,
		Amount:          &amount,
	})
	if err != nil {
		return nil, err
	}
	if err := s.api.ExecuteQuote(ctx, q.ID); err != nil {
		return nil, err
	}
	if err := s.awaitSettlement(ctx, q.ID); err != nil {
		return nil, err
	}

	id, err := s.disburse(ctx, primetrust.AssetDisbursement{
		AccountID:   l.ExternalAccountID,
		UnitCount:   q.UnitCount,
		HotTransfer: true,
		AssetTransferMethod: primetrust.AssetTransferMethodRequest{
			AssetID:           assetID,
			ContactID:         l.ExternalContactID,
			WalletAddress:     in.WalletAddress,
			TransferDirection: "outgoing",
			AssetTransferType: "terra",
		},
	})
	if err != nil {
		return nil, err
	}
	return &BuyQuoteResult{QuoteID: q.ID, UnitCount: q.UnitCount, DisbursementID: id}, nil
}

func (s *PrimeTrustService) awaitSettlement(ctx context.Context, quoteID string) error {
	for attempt := 1; attempt <= s.opts.QuotePollAttempts; attempt++ {
		q, err := s.api.GetQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		if q.Settled() {
			return nil
		}
		s.logger.Debug("quote not settled yet", zap.String("quote_id", quoteID), zap.String("status", q.Status), zap.Int("attempt", attempt))
		if err := s.sleep(ctx, s.opts.QuotePollInterval); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: quote %s after %d checks", ErrQuoteNotSettled, quoteID, s.opts.QuotePollAttempts)
}

// disburse retries the disbursement under one idempotency key so a retried request
// never pays out twice.
func (s *PrimeTrustService) disburse(ctx context.Context, d primetrust.AssetDisbursement) (string, error) {
	key := uuid.NewString()
	var lastErr error
	for attempt := 1; attempt <= disbursementAttempts; attempt++ {
		id, err := s.api.CreateAssetDisbursement(ctx, key, d)
		if err == nil {
			return id, nil
		}
		lastErr = err
		s.logger.Warn("asset disbursement failed", zap.String("idempotency_key", key), zap.Int("attempt", attempt), zap.Error(err))
		if attempt < disbursementAttempts {
			if err := s.sleep(ctx, s.opts.RetryDelay); err != nil {
				return "", err
			}
		}
	}
	return "", lastErr
}

// USDBalance returns the disbursable USD cash of the personal account. ok is false
// when identity has no Prime Trust account.
func (s *PrimeTrustService) USDBalance(ctx context.Context, identity string) (balance decimal.Decimal, ok bool, err error) {
	l, err := s.personal.Get(ctx, identity)
	if errors.Is(err, errs.ErrNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	if !l.HasAccount() {
		return decimal.Zero, false, nil
	}
	totals, err := s.api.AccountCashTotals(ctx, l.ExternalAccountID)
	if err != nil {
		return decimal.Zero, false, err
	}
	return totals.Disbursable, true, nil
}
