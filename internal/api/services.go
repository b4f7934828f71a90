package api

import (
	"context"
	"encoding/json"

	"github.com/kash/onboarding-service/internal/app"
	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/pkg/baanx"
	"github.com/kash/onboarding-service/pkg/solaris"
	"github.com/kash/onboarding-service/pkg/wyre"
	"github.com/shopspring/decimal"
)

// PrimeTrustService is the personal and business Prime Trust onboarding surface.
type PrimeTrustService interface {
	CreateAccount(ctx context.Context, identity string, attributes map[string]any) (*app.AccountView, error)
	CreateBusinessAccount(ctx context.Context, identity string, attributes map[string]any) (*app.AccountView, error)
	UpdateKyc(ctx context.Context, identity string, data any) error
	UpdateBusinessQuestionnaire(ctx context.Context, identity string, data any) (domain.StepView, error)
	UploadDocument(ctx context.Context, in app.UploadDocumentInput) (domain.StepView, error)
	UploadBusinessDocuments(ctx context.Context, identity string, files []app.FileUpload) (domain.StepView, error)
	DocumentCheck(ctx context.Context, identity, documentType string) (string, error)
	GetStep(ctx context.Context, identity string) (domain.StepView, error)
	GetBusinessStep(ctx context.Context, identity string) (domain.StepView, error)
	UpdateBusinessStep(ctx context.Context, identity string) (domain.StepView, error)
	CreateRelatedContact(ctx context.Context, in app.RelatedContactInput) error
	UpdateRelatedContactDocuments(ctx context.Context, identity, contactID string, files []app.FileUpload) error
	UpdateRelatedContactInfo(ctx context.Context, identity, contactID string, data any) error
	RelatedContacts(ctx context.Context, identity string) ([]app.RelatedContactInfo, error)
	DeleteRelatedContact(ctx context.Context, identity, contactID string) ([]app.RelatedContactInfo, error)
	KycStatus(ctx context.Context, identity string) (*app.KycStatus, error)
	RelatedContactsStatus(ctx context.Context, identity string) (*app.BusinessKycStatus, error)
	CreatePaymentMethod(ctx context.Context, identity, metadata string) ([]app.ConnectedBankView, error)
	ConnectedBanks(ctx context.Context, identity string) ([]app.ConnectedBankView, error)
	OffRampDetails(ctx context.Context, identity string) (*domain.AssetTransferInfo, error)
	BuyQuote(ctx context.Context, in app.BuyQuoteInput) (*app.BuyQuoteResult, error)
	USDBalance(ctx context.Context, identity string) (decimal.Decimal, bool, error)
}

// BaanxService is the Baanx onboarding surface.
type BaanxService interface {
	CreateUser(ctx context.Context, identity string, req baanx.CreateUserRequest) (json.RawMessage, error)
	InitSession(ctx context.Context, identity string) (*app.BaanxSession, error)
	SubmitKyc(ctx context.Context, identity string, images []baanx.KycImage) error
	PassKyc(ctx context.Context, identity string) error
}

// WyreService is the Wyre onboarding surface.
type WyreService interface {
	CreateUser(ctx context.Context, identity string) (string, error)
	SubmitKycDetails(ctx context.Context, identity string, fields []wyre.ProfileField, address any) (domain.StepView, error)
	UpdateKyc(ctx context.Context, identity string, fields []wyre.ProfileField) error
	UploadDocument(ctx context.Context, in app.WyreDocumentInput) (domain.StepView, error)
	CreatePaymentMethod(ctx context.Context, identity, metadata string) (json.RawMessage, error)
	ListPaymentMethods(ctx context.Context, identity string) (json.RawMessage, error)
	CreateTransferQuote(ctx context.Context, in app.TransferQuoteInput) (json.RawMessage, error)
	ConfirmTransfer(ctx context.Context, identity, transferID string) (json.RawMessage, error)
	AccountStatus(ctx context.Context, identity string) (json.RawMessage, error)
	Account(ctx context.Context, identity string) (json.RawMessage, error)
	GetStep(ctx context.Context, identity string) (domain.StepView, error)
	LinkToken(ctx context.Context) (string, error)
}

// SolarisService is the Solaris person and account surface.
type SolarisService interface {
	CreatePerson(ctx context.Context, identity string, in app.SolarisPersonInput) error
	GetPerson(ctx context.Context, identity string) (*app.PersonView, error)
	CreateIdentification(ctx context.Context, identity string) (*solaris.Identification, error)
	AuthorizeMobile(ctx context.Context, identity string) error
	ConfirmMobile(ctx context.Context, identity, token string) error
	OpenAccount(ctx context.Context, identity string) (*domain.Linkage, error)
	GetAccount(ctx context.Context, identity string) (*solaris.Account, error)
}

// WebhookService handles vendor callbacks.
type WebhookService interface {
	PrimeTrust(ctx context.Context, evt app.PrimeTrustEvent) error
	SolarisIdentifications(ctx context.Context, batch []app.IdentificationUpdate)
	BaanxKycStatus(ctx context.Context, st app.BaanxKycStatus) error
}

// BalanceService serves balance charts.
type BalanceService interface {
	UserBalances(ctx context.Context, identity string, r domain.ChartRange) ([]domain.BalanceStatistic, error)
}

// KreditsService is the kredits ledger surface.
type KreditsService interface {
	Create(ctx context.Context, in app.KreditsCreateInput) error
	Deposit(ctx context.Context, identity string, amount decimal.Decimal) error
	Withdraw(ctx context.Context, identity string, amount decimal.Decimal) error
	Get(ctx context.Context, identity string) (*domain.KreditsAccount, error)
	GetLog(ctx context.Context, identity string) ([]domain.KreditsLog, error)
	UpgradeTier(ctx context.Context, identity string) (*domain.KreditsAccount, error)
}

// RateLimiter admits or rejects one request for subject within scope.
type RateLimiter interface {
	Allow(ctx context.Context, scope, subject string) (allowed bool, retryAfterSeconds int, err error)
}
