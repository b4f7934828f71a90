package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	"github.com/kash/onboarding-service/internal/onboarding"
	"github.com/kash/onboarding-service/pkg/primetrust"
)

// PrimeTrustAPI is the subset of the Prime Trust client the services use.
type PrimeTrustAPI interface {
	CreateAccount(ctx context.Context, attributes map[string]any, webhookURL string) (*primetrust.Account, error)
	GetAccount(ctx context.Context, accountID string) (*primetrust.Account, error)
	PatchAccount(ctx context.Context, accountID string, data any) error
	GetContact(ctx context.Context, contactID string) (*primetrust.Contact, error)
	AccountContacts(ctx context.Context, accountID string) (*primetrust.ContactsWithChecks, error)
	RelatedContactsStatus(ctx context.Context, contactID string) (*primetrust.ContactsWithChecks, error)
	RelatedContacts(ctx context.Context, contactID string) ([]primetrust.Contact, error)
	CreateContact(ctx context.Context, attributes map[string]any) (*primetrust.Contact, error)
	PatchContact(ctx context.Context, contactID string, data any) error
	DeleteContact(ctx context.Context, contactID string) error
	CreateContactRelationship(ctx context.Context, label, fromContactID, toContactID string) error
	CreateKycDocumentCheck(ctx context.Context, check primetrust.KycDocumentCheck) (string, error)
	UploadDocument(ctx context.Context, up primetrust.UploadRequest) (string, error)
	CreateFundsTransferMethod(ctx context.Context, contactID, processorToken string) (*primetrust.FundsTransferMethod, error)
	AccountCashTotals(ctx context.Context, accountID string) (*primetrust.CashTotals, error)
	GetAssetTransfer(ctx context.Context, id string) (*primetrust.AssetTransfer, error)
	CreateAssetTransferMethod(ctx context.Context, m primetrust.AssetTransferMethodRequest) (*primetrust.AssetTransferMethod, error)
	CreateQuote(ctx context.Context, req primetrust.QuoteRequest) (*primetrust.Quote, error)
	GetQuote(ctx context.Context, id string) (*primetrust.Quote, error)
	ExecuteQuote(ctx context.Context, id string) error
	CreateAssetDisbursement(ctx context.Context, idempotencyKey string, d primetrust.AssetDisbursement) (string, error)
}

// primeTrustVendor opens personal custody accounts.
type primeTrustVendor struct {
	api        PrimeTrustAPI
	webhookURL string
}

// NewPrimeTrustVendor returns the personal account capability set.
func NewPrimeTrustVendor(api PrimeTrustAPI, webhookURL string) onboarding.Vendor {
	return &primeTrustVendor{api: api, webhookURL: webhookURL}
}

func (v *primeTrustVendor) Flow() onboarding.Flow { return onboarding.PrimeTrustFlow }

func (v *primeTrustVendor) CreateExternalAccount(ctx context.Context, l *domain.Linkage, payload any) (onboarding.AccountResult, error) {
	return createPrimeTrustAccount(ctx, v.api, v.webhookURL, payload)
}

// SubmitDocument uploads one identity or address document. A passport upload asks
// for proof of address next; anything else completes the document steps.
func (v *primeTrustVendor) SubmitDocument(ctx context.Context, l *domain.Linkage, doc onboarding.Document) (onboarding.DocumentResult, error) {
	id, err := v.api.UploadDocument(ctx, primetrust.UploadRequest{
		ContactID:   l.ExternalContactID,
		Label:       doc.Label,
		Description: doc.Description,
		FileName:    doc.FileName,
		Content:     primetrust.ShrinkImage(doc.Content, doc.FileName),
		Public:      true,
	})
	if err != nil {
		return onboarding.DocumentResult{}, err
	}
	res := onboarding.DocumentResult{DocumentIDs: []string{id}, Next: domain.PrimeTrustStepSubmitted}
	if strings.Contains(doc.Label, domain.DocumentPassport) {
		res.Next = domain.PrimeTrustStepProofOfAddress
		l.Details.ProofOfAddress = true
	}
	return res, nil
}

func (v *primeTrustVendor) PatchKyc(ctx context.Context, l *domain.Linkage, payload any) (domain.Step, error) {
	return "", v.api.PatchContact(ctx, l.ExternalContactID, payload)
}

// primeTrustBusinessVendor opens business custody accounts.
type primeTrustBusinessVendor struct {
	api        PrimeTrustAPI
	webhookURL string
}

// NewPrimeTrustBusinessVendor returns the business account capability set.
func NewPrimeTrustBusinessVendor(api PrimeTrustAPI, webhookURL string) onboarding.Vendor {
	return &primeTrustBusinessVendor{api: api, webhookURL: webhookURL}
}

func (v *primeTrustBusinessVendor) Flow() onboarding.Flow { return onboarding.PrimeTrustBusinessFlow }

func (v *primeTrustBusinessVendor) CreateExternalAccount(ctx context.Context, l *domain.Linkage, payload any) (onboarding.AccountResult, error) {
	return createPrimeTrustAccount(ctx, v.api, v.webhookURL, payload)
}

// SubmitDocument uploads the company documents carried in doc.Payload.
func (v *primeTrustBusinessVendor) SubmitDocument(ctx context.Context, l *domain.Linkage, doc onboarding.Document) (onboarding.DocumentResult, error) {
	files, ok := doc.Payload.([]decodedFile)
	if !ok || len(files) == 0 {
		return onboarding.DocumentResult{}, fmt.Errorf("%w: no files", errs.ErrInvalidInput)
	}
	ids, err := uploadAll(ctx, v.api, l.ExternalContactID, files)
	if err != nil {
		return onboarding.DocumentResult{}, err
	}
	return onboarding.DocumentResult{DocumentIDs: ids, Next: domain.BusinessStepRelatedContacts}, nil
}

// PatchKyc sends the business questionnaire. Answering it at the questionnaire step
// submits the application.
func (v *primeTrustBusinessVendor) PatchKyc(ctx context.Context, l *domain.Linkage, payload any) (domain.Step, error) {
	if err := v.api.PatchAccount(ctx, l.ExternalAccountID, payload); err != nil {
		return "", err
	}
	if l.CurrentStep == domain.BusinessStepQuestionnaire {
		return domain.BusinessStepSubmitted, nil
	}
	return "", nil
}

func createPrimeTrustAccount(ctx context.Context, api PrimeTrustAPI, webhookURL string, payload any) (onboarding.AccountResult, error) {
	attributes, ok := payload.(map[string]any)
	if !ok {
		return onboarding.AccountResult{}, fmt.Errorf("%w: account attributes must be an object", errs.ErrInvalidInput)
	}
	if owner, ok := attributes["owner"].(map[string]any); ok {
		if err := normalizeContactPhone(owner); err != nil {
			return onboarding.AccountResult{}, err
		}
	}
	acc, err := api.CreateAccount(ctx, attributes, webhookURL)
	if err != nil {
		return onboarding.AccountResult{}, err
	}
	return onboarding.AccountResult{AccountID: acc.ID, ContactID: acc.ContactID}, nil
}

// normalizeContactPhone rewrites primary-phone-number.number to E.164.
func normalizeContactPhone(contact map[string]any) error {
	phone, ok := contact["primary-phone-number"].(map[string]any)
	if !ok {
		return nil
	}
	number, _ := phone["number"].(string)
	if number == "" {
		return nil
	}
	country, _ := phone["country"].(string)
	normalized, err := normalizePhone(number, country)
	if err != nil {
		return err
	}
	phone["number"] = normalized
	return nil
}

// decodedFile is a FileUpload after base64 decoding.
type decodedFile struct {
	Label   string
	Name    string
	Content []byte
}

func decodeFiles(files []FileUpload) ([]decodedFile, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files", errs.ErrInvalidInput)
	}
	out := make([]decodedFile, 0, len(files))
	for _, f := range files {
		content, err := decodeFile(f.File)
		if err != nil {
			return nil, err
		}
		out = append(out, decodedFile{Label: f.Label, Name: uploadName(f), Content: content})
	}
	return out, nil
}

func uploadAll(ctx context.Context, api PrimeTrustAPI, contactID string, files []decodedFile) ([]string, error) {
	ids := make([]string, 0, len(files))
	for _, f := range files {
		id, err := api.UploadDocument(ctx, primetrust.UploadRequest{ContactID: contactID, FileName: f.Name, Content: f.Content})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// documentCheckFor builds the KYC check for the most recent uploads. A driver's license
// is checked front and back, a passport by its last page, and anything else as a
// proof of address.
func documentCheckFor(contactID, documentType string, docIDs []string) (primetrust.KycDocumentCheck, error) {
	check := primetrust.KycDocumentCheck{
		ContactID:     contactID,
		DocumentType:  documentType,
		Identity:      true,
		IdentityPhoto: true,
	}
	switch documentType {
	case domain.DocumentDriversLicense:
		if len(docIDs) < 2 {
			return check, fmt.Errorf("%w: a driver's license needs front and back uploads", errs.ErrInvalidInput)
		}
		check.UploadedDocumentID = docIDs[len(docIDs)-2]
		check.BacksideDocumentID = docIDs[len(docIDs)-1]
		return check, nil
	case domain.DocumentPassport:
	default:
		check.DocumentType = domain.DocumentPassport
		check.ProofOfAddress = true
	}
	if len(docIDs) == 0 {
		return check, fmt.Errorf("%w: no uploaded documents", errs.ErrInvalidInput)
	}
	check.UploadedDocumentID = docIDs[len(docIDs)-1]
	return check, nil
}
