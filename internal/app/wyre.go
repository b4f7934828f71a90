/**
 * @description
 * WyreService onboards users to Wyre subaccounts. Every Wyre call is made as the user
 * with a secret key this service generates and stores encrypted on the linkage record.
 *
 * @notes
 * - Steps: ADDRESS after the account exists, DOCUMENTS after the KYC details,
 *   PAYMENT_METHOD after the proof of address upload and SUBMITTED once a bank is linked.
 */
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	"github.com/kash/onboarding-service/internal/onboarding"
	"github.com/kash/onboarding-service/pkg/plaid"
	"github.com/kash/onboarding-service/pkg/wyre"
	"go.uber.org/zap"
)

// WyreAPI is the subset of the Wyre client the service uses.
type WyreAPI interface {
	AuthenticateSecretKey(ctx context.Context, secretKey string) error
	CreateAccount(ctx context.Context, secretKey string) (*wyre.Account, error)
	UpdateAccount(ctx context.Context, secretKey, accountID string, fields []wyre.ProfileField) (json.RawMessage, error)
	GetAccount(ctx context.Context, secretKey, accountID string) (json.RawMessage, error)
	ProfileFieldStatuses(ctx context.Context, secretKey, accountID string) (json.RawMessage, error)
	UploadDocument(ctx context.Context, secretKey, accountID string, doc wyre.DocumentUpload) error
	CreatePaymentMethod(ctx context.Context, secretKey, processorToken string) (json.RawMessage, error)
	ListPaymentMethods(ctx context.Context, secretKey string) (json.RawMessage, error)
	CreateTransfer(ctx context.Context, secretKey string, req wyre.TransferRequest) (json.RawMessage, error)
	ConfirmTransfer(ctx context.Context, secretKey, transferID string) (json.RawMessage, error)
}

// PlaidAPI issues Link tokens and processor tokens.
type PlaidAPI interface {
	ProcessorTokens
	CreateLinkToken(ctx context.Context) (string, error)
}

const wyreSecretBytes = 30

func newWyreSecret() (string, error) {
	b := make([]byte, wyreSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate wyre secret key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// wyreKycDetails is the first KYC submission: profile fields plus the residence address.
type wyreKycDetails struct {
	Fields  []wyre.ProfileField
	Address any
}

type wyreVendor struct {
	api WyreAPI
}

// NewWyreVendor returns the Wyre capability set.
func NewWyreVendor(api WyreAPI) onboarding.Vendor {
	return &wyreVendor{api: api}
}

func (v *wyreVendor) Flow() onboarding.Flow { return onboarding.WyreFlow }

func (v *wyreVendor) CreateExternalAccount(ctx context.Context, l *domain.Linkage, payload any) (onboarding.AccountResult, error) {
	secret, err := newWyreSecret()
	if err != nil {
		return onboarding.AccountResult{}, err
	}
	if err := v.api.AuthenticateSecretKey(ctx, secret); err != nil {
		return onboarding.AccountResult{}, err
	}
	acc, err := v.api.CreateAccount(ctx, secret)
	if err != nil {
		return onboarding.AccountResult{}, err
	}
	return onboarding.AccountResult{AccountID: acc.ID, Secret: secret}, nil
}

// SubmitDocument uploads one document. The proof of address completes the document step.
func (v *wyreVendor) SubmitDocument(ctx context.Context, l *domain.Linkage, doc onboarding.Document) (onboarding.DocumentResult, error) {
	up, ok := doc.Payload.(wyre.DocumentUpload)
	if !ok {
		return onboarding.DocumentResult{}, fmt.Errorf("%w: unexpected Wyre document %T", errs.ErrInvalidInput, doc.Payload)
	}
	if err := v.api.UploadDocument(ctx, l.ExternalSecret, l.ExternalAccountID, up); err != nil {
		return onboarding.DocumentResult{}, err
	}
	var res onboarding.DocumentResult
	if up.FieldID == wyre.FieldProofOfAddress {
		res.Next = domain.WyreStepPaymentMethod
		l.Details.ProofOfAddress = true
	}
	return res, nil
}

// PatchKyc updates profile fields. The first submission, which carries the address,
// moves the record on to documents.
func (v *wyreVendor) PatchKyc(ctx context.Context, l *domain.Linkage, payload any) (domain.Step, error) {
	switch p := payload.(type) {
	case wyreKycDetails:
		fields := make([]wyre.ProfileField, 0, len(p.Fields)+1)
		fields = append(fields, p.Fields...)
		fields = append(fields, wyre.ProfileField{FieldID: wyre.FieldResidenceAddress, Value: p.Address})
		if _, err := v.api.UpdateAccount(ctx, l.ExternalSecret, l.ExternalAccountID, fields); err != nil {
			return "", err
		}
		l.Details.KycInitiated = true
		return domain.WyreStepDocuments, nil
	case []wyre.ProfileField:
		if _, err := v.api.UpdateAccount(ctx, l.ExternalSecret, l.ExternalAccountID, p); err != nil {
			return "", err
		}
		return "", nil
	default:
		return "", fmt.Errorf("%w: unexpected Wyre KYC payload %T", errs.ErrInvalidInput, payload)
	}
}

// WyreService runs Wyre onboarding and ACH transfers.
type WyreService struct {
	api    WyreAPI
	plaid  PlaidAPI
	engine *onboarding.Engine
	logger *zap.Logger
}

// NewWyreService wires the Wyre service.
func NewWyreService(api WyreAPI, plaidClient PlaidAPI, engine *onboarding.Engine, logger *zap.Logger) *WyreService {
	return &WyreService{
		api:    api,
		plaid:  plaidClient,
		engine: engine,
		logger: logger.With(zap.String("provider", string(domain.ProviderWyre))),
	}
}

// CreateUser creates the Wyre subaccount and returns its id. An existing account is
// re-authenticated with its stored secret.
func (s *WyreService) CreateUser(ctx context.Context, identity string) (string, error) {
	l, created, err := s.engine.CreateAccount(ctx, identity, nil)
	if err != nil {
		return "", err
	}
	if !created {
		if err := s.api.AuthenticateSecretKey(ctx, l.ExternalSecret); err != nil {
			return "", err
		}
	}
	return l.ExternalAccountID, nil
}

// SubmitKycDetails sends the personal details and the residence address.
func (s *WyreService) SubmitKycDetails(ctx context.Context, identity string, fields []wyre.ProfileField, address any) (domain.StepView, error) {
	l, err := s.engine.PatchKyc(ctx, identity, wyreKycDetails{Fields: fields, Address: address})
	if err != nil {
		return domain.StepView{}, err
	}
	return domain.StepView{CurrentStep: l.CurrentStep, AccountID: l.ExternalAccountID}, nil
}

// UpdateKyc corrects profile fields after a rejection.
func (s *WyreService) UpdateKyc(ctx context.Context, identity string, fields []wyre.ProfileField) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: no profile fields", errs.ErrInvalidInput)
	}
	_, err := s.engine.PatchKyc(ctx, identity, fields)
	return err
}

// WyreDocumentInput is one Wyre KYC upload.
type WyreDocumentInput struct {
	Identity        string
	FieldID         string
	DocumentType    string
	DocumentSubType string
	File            FileUpload
}

// UploadDocument uploads a KYC document to its profile field.
func (s *WyreService) UploadDocument(ctx context.Context, in WyreDocumentInput) (domain.StepView, error) {
	content, err := decodeFile(in.File.File)
	if err != nil {
		return domain.StepView{}, err
	}
	l, _, err := s.engine.SubmitDocument(ctx, in.Identity, onboarding.Document{
		Label:       in.FieldID,
		ContentType: in.File.FileType,
		Content:     content,
		Payload: wyre.DocumentUpload{
			FieldID:         in.FieldID,
			DocumentType:    in.DocumentType,
			DocumentSubType: in.DocumentSubType,
			ContentType:     in.File.FileType,
			Content:         content,
		},
	})
	if err != nil {
		return domain.StepView{}, err
	}
	return domain.StepView{CurrentStep: l.CurrentStep, AccountID: l.ExternalAccountID}, nil
}

// CreatePaymentMethod links the bank selected in Plaid Link and submits the application.
func (s *WyreService) CreatePaymentMethod(ctx context.Context, identity, metadata string) (json.RawMessage, error) {
	l, err := s.engine.RequireAccount(ctx, identity)
	if err != nil {
		return nil, err
	}
	token, err := s.plaid.ProcessorTokenFromMetadata(ctx, metadata, plaid.ProcessorWyre)
	if err != nil {
		return nil, err
	}
	out, err := s.api.CreatePaymentMethod(ctx, l.ExternalSecret, token)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Transition(ctx, l, domain.WyreStepSubmitted, false); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPaymentMethods returns the linked payment methods.
func (s *WyreService) ListPaymentMethods(ctx context.Context, identity string) (json.RawMessage, error) {
	l, err := s.engine.RequireAccount(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.api.ListPaymentMethods(ctx, l.ExternalSecret)
}

// TransferQuoteInput previews an ACH purchase delivered to an ethereum address.
type TransferQuoteInput struct {
	Identity            string
	PaymentMethod       string
	DestinationAddress  string
	DestinationCurrency string
	Amount              string
}

// CreateTransferQuote previews an ACH transfer.
func (s *WyreService) CreateTransferQuote(ctx context.Context, in TransferQuoteInput) (json.RawMessage, error) {
	l, err := s.engine.RequireAccount(ctx, in.Identity)
	if err != nil {
		return nil, err
	}
	req := wyre.NewACHTransfer(in.PaymentMethod, in.DestinationAddress, in.DestinationCurrency, in.Amount)
	return s.api.CreateTransfer(ctx, l.ExternalSecret, req)
}

// ConfirmTransfer confirms a previewed transfer.
func (s *WyreService) ConfirmTransfer(ctx context.Context, identity, transferID string) (json.RawMessage, error) {
	l, err := s.engine.RequireAccount(ctx, identity)
	if err != nil {
		return nil, err
	}
	out, err := s.api.ConfirmTransfer(ctx, l.ExternalSecret, transferID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("transfer confirmed", zap.String("identity", identity), zap.String("transfer_id", transferID))
	return out, nil
}

// AccountStatus returns the review status of each profile field.
func (s *WyreService) AccountStatus(ctx context.Context, identity string) (json.RawMessage, error) {
	l, err := s.engine.RequireAccount(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.api.ProfileFieldStatuses(ctx, l.ExternalSecret, l.ExternalAccountID)
}

// Account returns the Wyre account as the user sees it.
func (s *WyreService) Account(ctx context.Context, identity string) (json.RawMessage, error) {
	l, err := s.engine.RequireAccount(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.api.GetAccount(ctx, l.ExternalSecret, l.ExternalAccountID)
}

// GetStep returns the Wyre onboarding step.
func (s *WyreService) GetStep(ctx context.Context, identity string) (domain.StepView, error) {
	return s.engine.CurrentStep(ctx, identity)
}

// LinkToken creates a Plaid Link token for the bank selection widget.
func (s *WyreService) LinkToken(ctx context.Context) (string, error) {
	return s.plaid.CreateLinkToken(ctx)
}
