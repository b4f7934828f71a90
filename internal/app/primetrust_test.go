package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	"github.com/kash/onboarding-service/pkg/plaid"
	"github.com/kash/onboarding-service/pkg/primetrust"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const pngHello = "data:image/png;base64,aGVsbG8="

type ptFixture struct {
	svc  *PrimeTrustService
	api  *ptStub
	repo *memRepo
	pub  *recPublisher
	plad *processorStub
}

func newPTFixture(t *testing.T) *ptFixture {
	t.Helper()
	api := &ptStub{contacts: map[string]primetrust.Contact{}}
	repo := newMemRepo()
	pub := &recPublisher{}
	plad := &processorStub{}
	users := userStub{
		"alice":   {Identity: "alice", Email: "alice@example.com"},
		"mallory": {Identity: "mallory", Blocked: true},
	}
	svc := NewPrimeTrustService(api, plad, users,
		newEngine(NewPrimeTrustVendor(api, "https://hooks.example.com/pt"), repo, pub),
		newEngine(NewPrimeTrustBusinessVendor(api, "https://hooks.example.com/pt"), repo, pub),
		PrimeTrustOptions{USTAssetID: "ust-asset", QuotePollAttempts: 3},
		zap.NewNop())
	svc.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return &ptFixture{svc: svc, api: api, repo: repo, pub: pub, plad: plad}
}

func (f *ptFixture) withAccount(p domain.Provider, step domain.Step) {
	f.repo.put(domain.Linkage{
		Identity:          "alice",
		Provider:          p,
		ExternalAccountID: "acc-1",
		ExternalContactID: "contact-1",
		CurrentStep:       step,
	})
}

func TestPrimeTrust_MainUserGuard(t *testing.T) {
	f := newPTFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateAccount(ctx, "mallory", map[string]any{})
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = f.svc.CreateAccount(ctx, "nobody", map[string]any{})
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = f.svc.ConnectedBanks(ctx, "mallory")
	assert.ErrorIs(t, err, errs.ErrForbidden)
	assert.Empty(t, f.api.created)
}

func TestPrimeTrust_CreateAccount(t *testing.T) {
	f := newPTFixture(t)
	ctx := context.Background()
	attrs := map[string]any{
		"owner": map[string]any{
			"name":                 "Alice",
			"primary-phone-number": map[string]any{"country": "us", "number": "(201) 555-0123"},
		},
	}

	view, err := f.svc.CreateAccount(ctx, "alice", attrs)
	require.NoError(t, err)
	assert.True(t, view.Created)
	assert.Equal(t, "acc-1", view.AccountID)
	assert.Equal(t, "contact-1", view.ContactID)
	assert.Equal(t, domain.PrimeTrustStepDocuments, view.CurrentStep)

	phone := f.api.created[0]["owner"].(map[string]any)["primary-phone-number"].(map[string]any)
	assert.Equal(t, "+12015550123", phone["number"])
	assert.Contains(t, f.pub.keys(), domain.RoutingStepChanged)

	again, err := f.svc.CreateAccount(ctx, "alice", attrs)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Len(t, f.api.created, 1)
}

func TestPrimeTrust_CreateAccountRejectsBadPhone(t *testing.T) {
	f := newPTFixture(t)
	attrs := map[string]any{
		"owner": map[string]any{"primary-phone-number": map[string]any{"number": "12"}},
	}
	_, err := f.svc.CreateAccount(context.Background(), "alice", attrs)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	assert.Empty(t, f.api.created)
}

func TestPrimeTrust_UploadDocumentRequiresAccount(t *testing.T) {
	f := newPTFixture(t)
	_, err := f.svc.UploadDocument(context.Background(), UploadDocumentInput{
		Identity: "alice",
		Label:    domain.DocumentPassport,
		File:     FileUpload{File: pngHello, FileType: "image/png"},
	})
	assert.ErrorIs(t, err, errs.ErrAccountMissing)
}

func TestPrimeTrust_PassportThenProofOfAddress(t *testing.T) {
	f := newPTFixture(t)
	f.withAccount(domain.ProviderPrimeTrust, domain.PrimeTrustStepDocuments)
	ctx := context.Background()

	view, err := f.svc.UploadDocument(ctx, UploadDocumentInput{
		Identity: "alice",
		Label:    domain.DocumentPassport,
		File:     FileUpload{File: pngHello, FileType: "image/png"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PrimeTrustStepProofOfAddress, view.CurrentStep)
	require.Len(t, f.api.uploads, 1)
	assert.Equal(t, "contact-1", f.api.uploads[0].ContactID)
	assert.Equal(t, []byte("hello"), f.api.uploads[0].Content)
	assert.True(t, f.repo.get(domain.ProviderPrimeTrust, "alice").Details.ProofOfAddress)

	view, err = f.svc.UploadDocument(ctx, UploadDocumentInput{
		Identity: "alice",
		Label:    domain.DocumentProofOfAddress,
		File:     FileUpload{File: pngHello, FileName: "bill.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PrimeTrustStepSubmitted, view.CurrentStep)
	assert.Equal(t, []string{"doc-1", "doc-2"}, f.repo.get(domain.ProviderPrimeTrust, "alice").DocumentIDs)
}

func TestPrimeTrust_ResubmittingJumpsToSubmitted(t *testing.T) {
	f := newPTFixture(t)
	f.withAccount(domain.ProviderPrimeTrust, domain.PrimeTrustStepDocuments)

	view, err := f.svc.UploadDocument(context.Background(), UploadDocumentInput{
		Identity:     "alice",
		Label:        domain.DocumentPassport,
		File:         FileUpload{File: pngHello, FileType: "image/png"},
		Resubmitting: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PrimeTrustStepSubmitted, view.CurrentStep)
}

func TestPrimeTrust_DocumentCheck(t *testing.T) {
	f := newPTFixture(t)
	f.withAccount(domain.ProviderPrimeTrust, domain.PrimeTrustStepSubmitted)
	ctx := context.Background()

	_, err := f.svc.DocumentCheck(ctx, "alice", domain.DocumentDriversLicense)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	l := f.repo.get(domain.ProviderPrimeTrust, "alice")
	l.DocumentIDs = []string{"d1", "d2", "d3"}
	f.repo.put(l)

	id, err := f.svc.DocumentCheck(ctx, "alice", domain.DocumentDriversLicense)
	require.NoError(t, err)
	assert.Equal(t, "check-1", id)
	check := f.api.checks[0]
	assert.Equal(t, "d2", check.UploadedDocumentID)
	assert.Equal(t, "d3", check.BacksideDocumentID)

	_, err = f.svc.DocumentCheck(ctx, "alice", domain.DocumentProofOfAddress)
	require.NoError(t, err)
	check = f.api.checks[1]
	assert.Equal(t, domain.DocumentPassport, check.DocumentType)
	assert.True(t, check.ProofOfAddress)
	assert.Equal(t, "d3", check.UploadedDocumentID)
}

func TestDecodeFile(t *testing.T) {
	content, err := decodeFile(pngHello)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	_, err = decodeFile("not base64!")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = decodeFile("data:image/png;base64,")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestUploadName(t *testing.T) {
	assert.Regexp(t, `^[0-9a-f-]{36}\.png$`, uploadName(FileUpload{FileType: "image/png"}))
	assert.Regexp(t, `^[0-9a-f-]{36}\.pdf$`, uploadName(FileUpload{FileName: "statement.final.pdf"}))
}

func TestPrimeTrust_BusinessRelatedContacts(t *testing.T) {
	f := newPTFixture(t)
	f.withAccount(domain.ProviderPrimeTrustBusiness, domain.BusinessStepRelatedContacts)
	ctx := context.Background()

	err := f.svc.CreateRelatedContact(ctx, RelatedContactInput{
		Identity:        "alice",
		RelationshipsTo: "beneficial-owner",
		Attributes: map[string]any{
			"name":            "Bob",
			"primary-address": map[string]any{"region": "CA"},
		},
		Files: []FileUpload{
			{Label: domain.DocumentDriversLicense, File: pngHello, FileType: "image/png"},
			{Label: domain.DocumentDriversLicense, File: pngHello, FileType: "image/png"},
		},
	})
	require.NoError(t, err)

	attrs := f.api.created[0]
	assert.Equal(t, "US", attrs["tax-country"])
	assert.Equal(t, "CA", attrs["tax-state"])
	assert.Equal(t, "acc-1", attrs["account-id"])
	assert.Equal(t, "rc-1", f.api.uploads[0].ContactID)
	assert.Equal(t, "doc-1", f.api.checks[0].UploadedDocumentID)
	assert.Equal(t, "doc-2", f.api.checks[0].BacksideDocumentID)
	assert.Equal(t, [3]string{"beneficial-owner", "contact-1", "rc-1"}, f.api.relationships[0])

	l := f.repo.get(domain.ProviderPrimeTrustBusiness, "alice")
	assert.Equal(t, domain.BusinessStepQuestionnaire, l.CurrentStep)
	require.Len(t, l.Details.RelatedContacts, 1)
	assert.Equal(t, []string{"doc-1", "doc-2"}, l.Details.RelatedContacts[0].DocumentIDs)

	contacts, err := f.svc.RelatedContacts(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []RelatedContactInfo{{ContactID: "rc-1", Name: "Bob"}}, contacts)

	_, err = f.svc.DeleteRelatedContact(ctx, "alice", "rc-9")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	remaining, err := f.svc.DeleteRelatedContact(ctx, "alice", "rc-1")
	require.NoError(t, err)
	assert.Empty(t, remaining)
	assert.Equal(t, []string{"rc-1"}, f.api.deleted)
	assert.Empty(t, f.repo.get(domain.ProviderPrimeTrustBusiness, "alice").Details.RelatedContacts)
}

func TestPrimeTrust_QuestionnaireSubmits(t *testing.T) {
	f := newPTFixture(t)
	f.withAccount(domain.ProviderPrimeTrustBusiness, domain.BusinessStepQuestionnaire)

	view, err := f.svc.UpdateBusinessQuestionnaire(context.Background(), "alice", map[string]any{"q1": "yes"})
	require.NoError(t, err)
	assert.Equal(t, domain.BusinessStepSubmitted, view.CurrentStep)
	assert.Equal(t, []string{"acc-1"}, f.api.patchedIDs)
}

func TestPrimeTrust_CreatePaymentMethod(t *testing.T) {
	f := newPTFixture(t)
	f.withAccount(domain.ProviderPrimeTrust, domain.PrimeTrustStepPaymentMethod)

	banks, err := f.svc.CreatePaymentMethod(context.Background(), "alice", `{"public_token":"p"}`)
	require.NoError(t, err)
	assert.Equal(t, []string{plaid.ProcessorPrimeTrust}, f.plad.processors)
	assert.Equal(t, []ConnectedBankView{{
		BankAccountName:  "Chase",
		BankAccountType:  "checking",
		TransferMethodID: "ftm-tok",
	}}, banks)
}

func TestPrimeTrust_KycStatus(t *testing.T) {
	f := newPTFixture(t)
	f.withAccount(domain.ProviderPrimeTrust, domain.PrimeTrustStepSubmitted)
	f.api.contacts["contact-1"] = primetrust.Contact{ID: "contact-1", AmlCleared: true, CipCleared: true, IdentityDocumentsVerified: true}
	f.api.checkStatuses = []primetrust.Check{{Status: "verified"}, {Status: "approved"}}
	f.api.accountStatus = primetrust.StatusOpened

	st, err := f.svc.KycStatus(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, st.AmlCleared)
	assert.True(t, st.ProofOfAddressDocumentsVerified)
	assert.Equal(t, "verified", st.KycStatus)
	assert.Equal(t, "approved", st.CipStatus)
	require.NotNil(t, st.CompleteStatus)
	assert.True(t, *st.CompleteStatus)
}

func TestPrimeTrust_OffRampDetailsCreatedOnce(t *testing.T) {
	f := newPTFixture(t)
	f.withAccount(domain.ProviderPrimeTrust, domain.PrimeTrustStepSubmitted)
	ctx := context.Background()

	info, err := f.svc.OffRampDetails(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "terra1wallet", info.WalletAddress)
	assert.Equal(t, "memo-1", info.Memo)

	stored := f.repo.get(domain.ProviderPrimeTrust, "alice").Details.AssetTransfer
	require.NotNil(t, stored)
	assert.Equal(t, *info, *stored)
}

func TestPrimeTrust_BuyQuote(t *testing.T) {
	f := newPTFixture(t)
	f.withAccount(domain.ProviderPrimeTrust, domain.PrimeTrustStepSubmitted)
	f.api.quoteStatuses = []string{"pending", "settled"}
	f.api.disburseErrs = []error{errors.New("timeout"), nil}

	res, err := f.svc.BuyQuote(context.Background(), BuyQuoteInput{
		Identity:      "alice",
		Asset:         "UST",
		Amount:        decimal.NewFromInt(100),
		WalletAddress: "terra1dest",
	})
	require.NoError(t, err)
	assert.Equal(t, "q-1", res.QuoteID)
	assert.Equal(t, "disb-1", res.DisbursementID)
	assert.True(t, res.UnitCount.Equal(decimal.RequireFromString("99.5")))
	assert.Equal(t, "ust-asset", f.api.quotes[0].AssetID)
	assert.Equal(t, primetrust.QuoteBuy, f.api.quotes[0].TransactionType)

	require.Len(t, f.api.disbursements, 2)
	assert.Equal(t, f.api.disbursements[0], f.api.disbursements[1])
}

func TestPrimeTrust_BuyQuoteNeverSettles(t *testing.T) {
	f := newPTFixture(t)
	f.withAccount(domain.ProviderPrimeTrust, domain.PrimeTrustStepSubmitted)
	f.api.quoteStatuses = []string{"pending", "pending", "pending", "pending"}

	_, err := f.svc.BuyQuote(context.Background(), BuyQuoteInput{Identity: "alice", Amount: decimal.NewFromInt(5)})
	assert.ErrorIs(t, err, ErrQuoteNotSettled)
	assert.Empty(t, f.api.disbursements)
}

func TestPrimeTrust_BuyQuoteRejectsInput(t *testing.T) {
	f := newPTFixture(t)
	f.withAccount(domain.ProviderPrimeTrust, domain.PrimeTrustStepSubmitted)
	ctx := context.Background()

	_, err := f.svc.BuyQuote(ctx, BuyQuoteInput{Identity: "alice", Amount: decimal.Zero})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = f.svc.BuyQuote(ctx, BuyQuoteInput{Identity: "alice", Asset: "DOGE", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestPrimeTrust_USDBalance(t *testing.T) {
	f := newPTFixture(t)
	ctx := context.Background()

	_, ok, err := f.svc.USDBalance(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	f.withAccount(domain.ProviderPrimeTrust, domain.PrimeTrustStepSubmitted)
	f.api.cash = decimal.RequireFromString("12.34")
	bal, ok, err := f.svc.USDBalance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, bal.Equal(decimal.RequireFromString("12.34")))
}
