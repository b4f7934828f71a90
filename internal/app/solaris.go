/**
 * @description
 * SolarisService onboards persons to Solaris banking: person and tax identification,
 * mobile number verification, video identification and the checking account that is
 * opened once identification succeeds.
 *
 * @dependencies
 * - github.com/ttacon/libphonenumber: mobile numbers are sent to Solaris in E.164.
 *
 * @notes
 * - The Solaris person id is both the account id and the contact id of the record; the
 *   checking account id lives in the record details.
 * - Opening the checking account is guarded by the stored account id, so a replayed
 *   identification callback never opens a second account.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	"github.com/kash/onboarding-service/internal/onboarding"
	"github.com/kash/onboarding-service/pkg/solaris"
	"go.uber.org/zap"
)

// SolarisAPI is the subset of the Solaris client the service uses.
type SolarisAPI interface {
	CreatePerson(ctx context.Context, req solaris.CreatePersonRequest) (*solaris.Person, error)
	GetPerson(ctx context.Context, personID string) (*solaris.Person, error)
	CreateTaxIdentification(ctx context.Context, personID string, req solaris.TaxIdentification) (*solaris.TaxIdentification, error)
	CreateMobileNumber(ctx context.Context, personID, number string) (*solaris.MobileNumber, error)
	AuthorizeMobileNumber(ctx context.Context, personID, number string) (*solaris.MobileNumber, error)
	ConfirmMobileNumber(ctx context.Context, personID, number, token string) (*solaris.MobileNumber, error)
	CreateIdentification(ctx context.Context, personID, method, language string) (*solaris.Identification, error)
	RequestIdentification(ctx context.Context, personID, identificationID string) (*solaris.Identification, error)
	CreateAccount(ctx context.Context, personID string) (*solaris.Account, error)
	GetAccount(ctx context.Context, personID, accountID string) (*solaris.Account, error)
}

const (
	identificationMethod   = "idnow"
	identificationLanguage = "EN"
	reasonHaveTaxID        = "HAVE_TAX_ID"
)

// SolarisPersonInput is everything needed to register a person.
type SolarisPersonInput struct {
	CardPlan                  string
	Person                    solaris.CreatePersonRequest
	FatcaCrsConfirmed         bool
	TermsConditionsSigned     bool
	OwnEconomicInterestSigned bool
	TaxIdentification         string
	ReasonNoTin               string
	ReasonDescription         string
}

type solarisVendor struct {
	api SolarisAPI
	now func() time.Time
}

// NewSolarisVendor returns the Solaris capability set.
func NewSolarisVendor(api SolarisAPI) onboarding.Vendor {
	return &solarisVendor{api: api, now: time.Now}
}

func (v *solarisVendor) Flow() onboarding.Flow { return onboarding.SolarisFlow }

// CreateExternalAccount creates the person, its primary tax identification and the
// mobile number to verify.
func (v *solarisVendor) CreateExternalAccount(ctx context.Context, l *domain.Linkage, payload any) (onboarding.AccountResult, error) {
	in, ok := payload.(SolarisPersonInput)
	if !ok {
		return onboarding.AccountResult{}, fmt.Errorf("%w: unexpected Solaris person payload %T", errs.ErrInvalidInput, payload)
	}
	req, err := v.personRequest(in)
	if err != nil {
		return onboarding.AccountResult{}, err
	}

	person, err := v.api.CreatePerson(ctx, req)
	if err != nil {
		return onboarding.AccountResult{}, err
	}
	tax, err := v.api.CreateTaxIdentification(ctx, person.ID, taxIdentification(in))
	if err != nil {
		return onboarding.AccountResult{}, err
	}
	mobile := person.MobileNumber
	if mobile == "" {
		mobile = req.MobileNumber
	}
	if _, err := v.api.CreateMobileNumber(ctx, person.ID, mobile); err != nil {
		return onboarding.AccountResult{}, err
	}

	l.Details.TaxIdentificationID = tax.ID
	l.Details.PreOrderCardType = in.CardPlan
	l.Details.MobileNumber = mobile
	return onboarding.AccountResult{AccountID: person.ID, ContactID: person.ID}, nil
}

func (v *solarisVendor) personRequest(in SolarisPersonInput) (solaris.CreatePersonRequest, error) {
	req := in.Person
	mobile, err := normalizePhone(req.MobileNumber, req.Address.Country)
	if err != nil {
		return req, err
	}
	req.MobileNumber = mobile
	if req.BirthDate, err = dateOnly(req.BirthDate); err != nil {
		return req, err
	}
	now := v.now().UTC().Format(time.RFC3339)
	if in.FatcaCrsConfirmed {
		req.FatcaCrsConfirmedAt = now
	}
	if in.TermsConditionsSigned {
		req.TermsConditionsSignedAt = now
	}
	if in.OwnEconomicInterestSigned {
		req.OwnEconomicInterestSignedAt = now
	}
	return req, nil
}

// dateOnly accepts a date or an RFC 3339 timestamp and returns YYYY-MM-DD.
func dateOnly(s string) (string, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.Format(time.DateOnly), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return "", fmt.Errorf("%w: birth date %q", errs.ErrInvalidInput, s)
	}
	return t.Format(time.DateOnly), nil
}

func taxIdentification(in SolarisPersonInput) solaris.TaxIdentification {
	tin := solaris.TaxIdentification{
		Number:            in.TaxIdentification,
		Country:           in.Person.BirthCountry,
		Primary:           true,
		ReasonDescription: in.ReasonDescription,
	}
	if in.ReasonNoTin != reasonHaveTaxID {
		tin.ReasonNoTin = in.ReasonNoTin
	}
	return tin
}

func (v *solarisVendor) SubmitDocument(ctx context.Context, l *domain.Linkage, doc onboarding.Document) (onboarding.DocumentResult, error) {
	return onboarding.DocumentResult{}, fmt.Errorf("%w: Solaris identifies persons by video, not documents", errs.ErrInvalidInput)
}

func (v *solarisVendor) PatchKyc(ctx context.Context, l *domain.Linkage, payload any) (domain.Step, error) {
	return "", fmt.Errorf("%w: Solaris person data cannot be patched", errs.ErrInvalidInput)
}

// SolarisService runs Solaris person onboarding.
type SolarisService struct {
	api    SolarisAPI
	users  UserDirectory
	engine *onboarding.Engine
	lookup LinkageLookup
	events onboarding.Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewSolarisService wires the Solaris service.
func NewSolarisService(api SolarisAPI, users UserDirectory, engine *onboarding.Engine, lookup LinkageLookup, events onboarding.Publisher, logger *zap.Logger) *SolarisService {
	return &SolarisService{
		api:    api,
		users:  users,
		engine: engine,
		lookup: lookup,
		events: events,
		logger: logger.With(zap.String("provider", string(domain.ProviderSolaris))),
		now:    time.Now,
	}
}

// CreatePerson registers identity at Solaris. A second registration is rejected.
func (s *SolarisService) CreatePerson(ctx context.Context, identity string, in SolarisPersonInput) error {
	if _, err := requireMainUser(ctx, s.users, identity); err != nil {
		return err
	}
	existing, err := s.engine.Get(ctx, identity)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	if existing.HasAccount() {
		return fmt.Errorf("%w: Solaris person for %s", errs.ErrAlreadyExists, identity)
	}
	_, created, err := s.engine.CreateAccount(ctx, identity, in)
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("%w: Solaris person for %s", errs.ErrAlreadyExists, identity)
	}
	s.logger.Info("person created", zap.String("identity", identity))
	return nil
}

// IdentificationView describes where the person stands in video identification.
type IdentificationView struct {
	Status         string `json:"status"`
	Final          string `json:"final"`
	RequiredAction string `json:"required_action"`
	Description    string `json:"description"`
}

var identificationViews = map[string]IdentificationView{
	"created":            {Final: "NO", RequiredAction: "REQUEST_URL", Description: "The identification process was initiated."},
	"pending":            {Final: "NO", RequiredAction: "NONE", Description: "A video identification URL was generated. The customer has yet to go through the video identification."},
	"pending_successful": {Final: "NO", RequiredAction: "NONE", Description: "Solaris is reviewing the customer. Opening a bank account is not permitted yet."},
	"successful":         {Final: "YES", RequiredAction: "NONE", Description: "The customer was successfully video identified."},
	"aborted":            {Final: "NO", RequiredAction: "RETRY_BY_CUSTOMER", Description: "The customer aborted but can still identify using the same URL."},
	"canceled":           {Final: "NO", RequiredAction: "RETRY_BY_CUSTOMER", Description: "The provider canceled the identification. The customer should identify again using the same URL."},
	"failed":             {Final: "NO", RequiredAction: "NEW_IDENTIFICATION", Description: "The video identification was unsuccessful."},
}

func identificationView(id *domain.Identification) *IdentificationView {
	if id == nil {
		return nil
	}
	view, ok := identificationViews[id.Status]
	if !ok {
		return &IdentificationView{Status: id.Status, Final: "NO", RequiredAction: "NONE"}
	}
	view.Status = id.Status
	return &view
}

// PersonView is the person as shown to the app.
type PersonView struct {
	ID               string              `json:"id"`
	Email            string              `json:"email"`
	MobileNumber     string              `json:"mobile_number"`
	Identification   *IdentificationView `json:"identification"`
	PreOrderCardType string              `json:"pre_order_card_type"`
	AccountApproved  bool                `json:"account_approved"`
	CurrentStep      domain.Step         `json:"current_step"`
}

func (s *SolarisService) person(ctx context.Context, identity string) (*domain.Linkage, error) {
	if _, err := requireMainUser(ctx, s.users, identity); err != nil {
		return nil, err
	}
	l, err := s.engine.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !l.HasAccount() {
		return nil, fmt.Errorf("%w: Solaris person for %s", errs.ErrNotFound, identity)
	}
	return l, nil
}

// GetPerson merges the Solaris person with the stored onboarding state.
func (s *SolarisService) GetPerson(ctx context.Context, identity string) (*PersonView, error) {
	l, err := s.person(ctx, identity)
	if err != nil {
		return nil, err
	}
	p, err := s.api.GetPerson(ctx, l.ExternalAccountID)
	if err != nil {
		return nil, err
	}
	return &PersonView{
		ID:               p.ID,
		Email:            p.Email,
		MobileNumber:     p.MobileNumber,
		Identification:   identificationView(l.Details.Identification),
		PreOrderCardType: l.Details.PreOrderCardType,
		AccountApproved:  l.Details.AccountApproved,
		CurrentStep:      l.CurrentStep,
	}, nil
}

// CreateIdentification starts a video identification and returns its URL.
func (s *SolarisService) CreateIdentification(ctx context.Context, identity string) (*solaris.Identification, error) {
	l, err := s.person(ctx, identity)
	if err != nil {
		return nil, err
	}
	created, err := s.api.CreateIdentification(ctx, l.ExternalAccountID, identificationMethod, identificationLanguage)
	if err != nil {
		return nil, err
	}
	requested, err := s.api.RequestIdentification(ctx, l.ExternalAccountID, created.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	l.Details.Identification = &domain.Identification{
		ExternalID: created.ID,
		Status:     requested.Status,
		Method:     requested.Method,
		Reference:  requested.Reference,
		URL:        requested.URL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.engine.Transition(ctx, l, domain.SolarisStepIdentification, false); err != nil {
		return nil, err
	}
	return requested, nil
}

func (s *SolarisService) mobileNumber(ctx context.Context, l *domain.Linkage) (string, error) {
	if l.Details.MobileNumber != "" {
		return l.Details.MobileNumber, nil
	}
	p, err := s.api.GetPerson(ctx, l.ExternalAccountID)
	if err != nil {
		return "", err
	}
	return p.MobileNumber, nil
}

// AuthorizeMobile sends the SMS challenge to the person's mobile number.
func (s *SolarisService) AuthorizeMobile(ctx context.Context, identity string) error {
	l, err := s.person(ctx, identity)
	if err != nil {
		return err
	}
	number, err := s.mobileNumber(ctx, l)
	if err != nil {
		return err
	}
	_, err = s.api.AuthorizeMobileNumber(ctx, l.ExternalAccountID, number)
	return err
}

// ConfirmMobile answers the SMS challenge with token.
func (s *SolarisService) ConfirmMobile(ctx context.Context, identity, token string) error {
	l, err := s.person(ctx, identity)
	if err != nil {
		return err
	}
	number, err := s.mobileNumber(ctx, l)
	if err != nil {
		return err
	}
	_, err = s.api.ConfirmMobileNumber(ctx, l.ExternalAccountID, number, token)
	return err
}

// OpenAccount opens the checking account of an identified person.
func (s *SolarisService) OpenAccount(ctx context.Context, identity string) (*domain.Linkage, error) {
	var l *domain.Linkage
	err := s.engine.WithLock(ctx, identity, func() error {
		var err error
		if l, err = s.person(ctx, identity); err != nil {
			return err
		}
		if l.Details.Identification == nil || l.Details.Identification.Status != domain.SolarisIdentificationSuccessful {
			return fmt.Errorf("%w: identification has not succeeded", errs.ErrInvalidInput)
		}
		return s.openAccount(ctx, l)
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// openAccount creates the checking account unless one is already stored.
// Callers hold the engine lock for l.Identity and pass a record read under it.
func (s *SolarisService) openAccount(ctx context.Context, l *domain.Linkage) error {
	if l.Details.CheckingAccountID != "" {
		return nil
	}
	acc, err := s.api.CreateAccount(ctx, l.ExternalAccountID)
	if err != nil {
		return err
	}
	l.Details.CheckingAccountID = acc.ID
	l.Details.AccountApproved = true
	if err := s.engine.Transition(ctx, l, domain.SolarisStepAccountOpened, false); err != nil {
		return err
	}
	s.logger.Info("checking account opened", zap.String("identity", l.Identity), zap.String("account_id", acc.ID))

	if s.events != nil {
		evt := domain.AccountOpenedEvent{Identity: l.Identity, Provider: domain.ProviderSolaris, AccountID: acc.ID}
		if err := s.events.Publish(ctx, domain.RoutingAccountOpened, evt); err != nil {
			s.logger.Warn("failed to publish account opened", zap.String("identity", l.Identity), zap.Error(err))
		}
	}
	return nil
}

// GetAccount returns the checking account.
func (s *SolarisService) GetAccount(ctx context.Context, identity string) (*solaris.Account, error) {
	l, err := s.person(ctx, identity)
	if err != nil {
		return nil, err
	}
	if l.Details.CheckingAccountID == "" {
		return nil, fmt.Errorf("%w: no checking account for %s", errs.ErrNotFound, identity)
	}
	return s.api.GetAccount(ctx, l.ExternalAccountID, l.Details.CheckingAccountID)
}

// IdentificationUpdate is one identification status callback.
type IdentificationUpdate struct {
	ID       string `json:"id"`
	PersonID string `json:"person_id" validate:"required"`
	Status   string `json:"status" validate:"required"`
}

// ApplyIdentification stores an identification status and opens the checking account
// when it succeeded. Unknown persons are logged and skipped.
func (s *SolarisService) ApplyIdentification(ctx context.Context, u IdentificationUpdate) error {
	l, err := s.lookup.GetByContactID(ctx, domain.ProviderSolaris, u.PersonID)
	if errors.Is(err, errs.ErrNotFound) {
		s.logger.Warn("identification for unknown person", zap.String("person_id", u.PersonID))
		return nil
	}
	if err != nil {
		return err
	}

	identity := l.Identity
	return s.engine.WithLock(ctx, identity, func() error {
		l, err := s.engine.Get(ctx, identity)
		if err != nil {
			return err
		}
		if l.Details.Identification == nil {
			l.Details.Identification = &domain.Identification{ExternalID: u.ID, CreatedAt: s.now().UTC()}
		}
		from := l.Details.Identification.Status
		l.Details.Identification.Status = u.Status
		l.Details.Identification.UpdatedAt = s.now().UTC()
		if err := s.engine.Save(ctx, l); err != nil {
			return err
		}
		s.logger.Info("identification status updated",
			zap.String("person_id", u.PersonID), zap.String("from", from), zap.String("to", u.Status))

		if u.Status == domain.SolarisIdentificationSuccessful {
			return s.openAccount(ctx, l)
		}
		return nil
	})
}
