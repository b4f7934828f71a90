package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	"github.com/kash/onboarding-service/internal/onboarding"
	"github.com/kash/onboarding-service/pkg/baanx"
	"go.uber.org/zap"
)

// BaanxAPI is the subset of the Baanx client the service uses.
type BaanxAPI interface {
	CreateUser(ctx context.Context, req baanx.CreateUserRequest) (*baanx.User, error)
	GetUser(ctx context.Context, externalID string) (*baanx.User, error)
	CreateSession(ctx context.Context, externalID string) (*baanx.Session, error)
	SubmitKyc(ctx context.Context, externalID string, images []baanx.KycImage) (string, error)
}

// Baanx deposit currencies with a bank transfer reference code.
const (
	CurrencyEUR = "EUR"
	CurrencyGBP = "GBP"
)

// baanxVendor registers card holders. The Baanx external id is generated here and
// stored as the record's account id.
type baanxVendor struct {
	api BaanxAPI
}

// NewBaanxVendor returns the Baanx capability set.
func NewBaanxVendor(api BaanxAPI) onboarding.Vendor {
	return &baanxVendor{api: api}
}

func (v *baanxVendor) Flow() onboarding.Flow { return onboarding.BaanxFlow }

func (v *baanxVendor) CreateExternalAccount(ctx context.Context, l *domain.Linkage, payload any) (onboarding.AccountResult, error) {
	req, ok := payload.(baanx.CreateUserRequest)
	if !ok {
		return onboarding.AccountResult{}, fmt.Errorf("%w: unexpected Baanx user payload %T", errs.ErrInvalidInput, payload)
	}
	req.ExternalID = uuid.NewString()
	user, err := v.api.CreateUser(ctx, req)
	if err != nil {
		return onboarding.AccountResult{}, err
	}
	return onboarding.AccountResult{AccountID: req.ExternalID, ContactID: user.ID}, nil
}

// SubmitDocument sends the three KYC images carried in doc.Payload. The previous
// decision is cleared and the new request id becomes the record's KYC reference.
func (v *baanxVendor) SubmitDocument(ctx context.Context, l *domain.Linkage, doc onboarding.Document) (onboarding.DocumentResult, error) {
	images, ok := doc.Payload.([]baanx.KycImage)
	if !ok || len(images) == 0 {
		return onboarding.DocumentResult{}, fmt.Errorf("%w: no KYC images", errs.ErrInvalidInput)
	}
	l.Details.KycStatus = 0
	l.Details.KycReason = ""
	l.KycReference = ""

	requestID, err := v.api.SubmitKyc(ctx, l.ExternalAccountID, images)
	if err != nil {
		return onboarding.DocumentResult{}, err
	}
	l.KycReference = requestID
	return onboarding.DocumentResult{Next: domain.BaanxStepKycSubmitted}, nil
}

func (v *baanxVendor) PatchKyc(ctx context.Context, l *domain.Linkage, payload any) (domain.Step, error) {
	return "", fmt.Errorf("%w: Baanx KYC data cannot be patched", errs.ErrInvalidInput)
}

// BaanxService runs card holder onboarding at Baanx.
type BaanxService struct {
	api    BaanxAPI
	engine *onboarding.Engine
	events onboarding.Publisher
	lookup LinkageLookup
	logger *zap.Logger
}

// LinkageLookup finds records by vendor side references, for webhooks.
type LinkageLookup interface {
	GetByContactID(ctx context.Context, provider domain.Provider, contactID string) (*domain.Linkage, error)
	GetByKycReference(ctx context.Context, provider domain.Provider, reference string) (*domain.Linkage, error)
}

// NewBaanxService wires the Baanx service.
func NewBaanxService(api BaanxAPI, engine *onboarding.Engine, lookup LinkageLookup, events onboarding.Publisher, logger *zap.Logger) *BaanxService {
	return &BaanxService{
		api:    api,
		engine: engine,
		events: events,
		lookup: lookup,
		logger: logger.With(zap.String("provider", string(domain.ProviderBaanx))),
	}
}

// CreateUser registers identity at Baanx, or returns the user already registered.
func (s *BaanxService) CreateUser(ctx context.Context, identity string, req baanx.CreateUserRequest) (json.RawMessage, error) {
	l, _, err := s.engine.CreateAccount(ctx, identity, req)
	if err != nil {
		return nil, err
	}
	user, err := s.api.GetUser(ctx, l.ExternalAccountID)
	if err != nil {
		return nil, err
	}
	return user.Raw, nil
}

// BaanxSession is the widget session plus the user's KYC state.
type BaanxSession struct {
	KycStatus      *int              `json:"kyc_status"`
	KycReason      string            `json:"kyc_reason,omitempty"`
	ReferenceCodes map[string]string `json:"reference_codes"`
	UserPassKyc    bool              `json:"user_pass_kyc"`
	User           json.RawMessage   `json:"user"`
	Session        json.RawMessage   `json:"session"`
}

// ReferenceCode is the bank transfer reference for deposits in currency.
func ReferenceCode(currency, externalID string) string {
	return "KASH" + currency + externalID
}

func (s *BaanxService) registered(ctx context.Context, identity string) (*domain.Linkage, error) {
	l, err := s.engine.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !l.HasAccount() {
		return nil, fmt.Errorf("%w: Baanx user for %s", errs.ErrNotFound, identity)
	}
	return l, nil
}

// InitSession opens a widget session for a registered user.
func (s *BaanxService) InitSession(ctx context.Context, identity string) (*BaanxSession, error) {
	l, err := s.registered(ctx, identity)
	if err != nil {
		return nil, err
	}
	user, err := s.api.GetUser(ctx, l.ExternalAccountID)
	if err != nil {
		return nil, err
	}
	session, err := s.api.CreateSession(ctx, l.ExternalAccountID)
	if err != nil {
		return nil, err
	}

	out := &BaanxSession{
		KycReason: l.Details.KycReason,
		ReferenceCodes: map[string]string{
			CurrencyEUR: ReferenceCode(CurrencyEUR, l.ExternalAccountID),
			CurrencyGBP: ReferenceCode(CurrencyGBP, l.ExternalAccountID),
		},
		UserPassKyc: l.Details.UserPassKyc,
		User:        user.Raw,
		Session:     session.Raw,
	}
	if l.Details.KycStatus != 0 {
		status := l.Details.KycStatus
		out.KycStatus = &status
	}
	return out, nil
}

// SubmitKyc sends the KYC images and records the verification request.
func (s *BaanxService) SubmitKyc(ctx context.Context, identity string, images []baanx.KycImage) error {
	if _, err := s.registered(ctx, identity); err != nil {
		return err
	}
	_, _, err := s.engine.SubmitDocument(ctx, identity, onboarding.Document{Payload: images})
	return err
}

// PassKyc records that the user passed KYC outside the widget.
func (s *BaanxService) PassKyc(ctx context.Context, identity string) error {
	l, err := s.registered(ctx, identity)
	if err != nil {
		return err
	}
	l.Details.UserPassKyc = true
	return s.engine.Save(ctx, l)
}

// BaanxKycStatus is the KYC decision callback.
type BaanxKycStatus struct {
	RequestID     string `json:"requestId" validate:"required"`
	RequestStatus int    `json:"requestStatus"`
	Reason        string `json:"reason"`
}

// ApplyKycStatus stores a KYC decision on the record that submitted requestID. A
// verified decision completes the flow. Unknown request ids are logged and ignored.
func (s *BaanxService) ApplyKycStatus(ctx context.Context, st BaanxKycStatus) error {
	l, err := s.lookup.GetByKycReference(ctx, domain.ProviderBaanx, st.RequestID)
	if errors.Is(err, errs.ErrNotFound) {
		s.logger.Warn("kyc status for unknown request", zap.String("request_id", st.RequestID))
		return nil
	}
	if err != nil {
		return err
	}

	l.Details.KycStatus = st.RequestStatus
	l.Details.KycReason = st.Reason
	next := l.CurrentStep
	if st.RequestStatus == domain.BaanxKycVerified {
		next = domain.BaanxStepVerified
	}
	if err := s.engine.Transition(ctx, l, next, false); err != nil {
		return err
	}
	s.logger.Info("kyc status updated", zap.String("identity", l.Identity), zap.Int("status", st.RequestStatus))

	evt := domain.KycStatusEvent{
		Identity: l.Identity,
		Provider: domain.ProviderBaanx,
		Status:   fmt.Sprint(st.RequestStatus),
		Reason:   st.Reason,
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, domain.RoutingKycStatus, evt); err != nil {
			s.logger.Warn("failed to publish kyc status", zap.String("identity", l.Identity), zap.Error(err))
		}
	}
	return nil
}
