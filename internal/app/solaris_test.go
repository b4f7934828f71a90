package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	"github.com/kash/onboarding-service/pkg/solaris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type solarisStub struct {
	persons    []solaris.CreatePersonRequest
	taxIDs     []solaris.TaxIdentification
	mobiles    []string
	authorized []string
	confirmed  []string

	mu           sync.Mutex
	accounts     int
	accountDelay time.Duration
}

func (s *solarisStub) CreatePerson(ctx context.Context, req solaris.CreatePersonRequest) (*solaris.Person, error) {
	s.persons = append(s.persons, req)
	return &solaris.Person{ID: "person-1", Email: req.Email, MobileNumber: req.MobileNumber}, nil
}

func (s *solarisStub) GetPerson(ctx context.Context, personID string) (*solaris.Person, error) {
	return &solaris.Person{ID: personID, Email: "alice@example.com", MobileNumber: "+4915112345678"}, nil
}

func (s *solarisStub) CreateTaxIdentification(ctx context.Context, personID string, req solaris.TaxIdentification) (*solaris.TaxIdentification, error) {
	s.taxIDs = append(s.taxIDs, req)
	req.ID = "tin-1"
	return &req, nil
}

func (s *solarisStub) CreateMobileNumber(ctx context.Context, personID, number string) (*solaris.MobileNumber, error) {
	s.mobiles = append(s.mobiles, number)
	return &solaris.MobileNumber{ID: "mob-1", Number: number}, nil
}

func (s *solarisStub) AuthorizeMobileNumber(ctx context.Context, personID, number string) (*solaris.MobileNumber, error) {
	s.authorized = append(s.authorized, number)
	return &solaris.MobileNumber{ID: "mob-1", Number: number}, nil
}

func (s *solarisStub) ConfirmMobileNumber(ctx context.Context, personID, number, token string) (*solaris.MobileNumber, error) {
	s.confirmed = append(s.confirmed, token)
	return &solaris.MobileNumber{ID: "mob-1", Number: number, Verified: true}, nil
}

func (s *solarisStub) CreateIdentification(ctx context.Context, personID, method, language string) (*solaris.Identification, error) {
	return &solaris.Identification{ID: "ident-1", Method: method, Status: "created"}, nil
}

func (s *solarisStub) RequestIdentification(ctx context.Context, personID, identificationID string) (*solaris.Identification, error) {
	return &solaris.Identification{
		ID:        identificationID,
		Method:    identificationMethod,
		Status:    "pending",
		Reference: "ref-1",
		URL:       "https://id.example.com/ref-1",
	}, nil
}

func (s *solarisStub) CreateAccount(ctx context.Context, personID string) (*solaris.Account, error) {
	time.Sleep(s.accountDelay)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts++
	return &solaris.Account{ID: "chk-1", PersonID: personID, IBAN: "DE00"}, nil
}

func (s *solarisStub) GetAccount(ctx context.Context, personID, accountID string) (*solaris.Account, error) {
	return &solaris.Account{ID: accountID, PersonID: personID, IBAN: "DE00"}, nil
}

var solarisNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newSolarisFixture() (*SolarisService, *solarisStub, *memRepo, *recPublisher) {
	api := &solarisStub{}
	repo := newMemRepo()
	pub := &recPublisher{}
	users := userStub{
		"alice":   {Identity: "alice", Email: "alice@example.com"},
		"mallory": {Identity: "mallory", Blocked: true},
	}
	vendor := &solarisVendor{api: api, now: func() time.Time { return solarisNow }}
	svc := NewSolarisService(api, users, newLockedEngine(vendor, repo, pub), repo, pub, zap.NewNop())
	svc.now = func() time.Time { return solarisNow }
	return svc, api, repo, pub
}

func personInput() SolarisPersonInput {
	return SolarisPersonInput{
		CardPlan: "premium",
		Person: solaris.CreatePersonRequest{
			FirstName:    "Alice",
			LastName:     "Doe",
			BirthDate:    "1990-04-02T00:00:00Z",
			BirthCountry: "DE",
			Email:        "alice@example.com",
			MobileNumber: "0151 12345678",
			Address:      solaris.Address{Line1: "Hauptstr. 1", PostalCode: "10115", City: "Berlin", Country: "DE"},
		},
		TermsConditionsSigned: true,
		TaxIdentification:     "12345678901",
		ReasonNoTin:           reasonHaveTaxID,
	}
}

func TestSolaris_CreatePerson(t *testing.T) {
	svc, api, repo, _ := newSolarisFixture()
	ctx := context.Background()

	require.NoError(t, svc.CreatePerson(ctx, "alice", personInput()))
	require.Len(t, api.persons, 1)
	req := api.persons[0]
	assert.Equal(t, "+4915112345678", req.MobileNumber)
	assert.Equal(t, "1990-04-02", req.BirthDate)
	assert.Equal(t, "2024-03-01T10:00:00Z", req.TermsConditionsSignedAt)
	assert.Empty(t, req.FatcaCrsConfirmedAt)

	require.Len(t, api.taxIDs, 1)
	assert.Equal(t, "DE", api.taxIDs[0].Country)
	assert.True(t, api.taxIDs[0].Primary)
	assert.Empty(t, api.taxIDs[0].ReasonNoTin)
	assert.Equal(t, []string{"+4915112345678"}, api.mobiles)

	l := repo.get(domain.ProviderSolaris, "alice")
	assert.Equal(t, "person-1", l.ExternalAccountID)
	assert.Equal(t, "person-1", l.ExternalContactID)
	assert.Equal(t, "tin-1", l.Details.TaxIdentificationID)
	assert.Equal(t, "premium", l.Details.PreOrderCardType)
	assert.Equal(t, domain.SolarisStepPersonCreated, l.CurrentStep)

	err := svc.CreatePerson(ctx, "alice", personInput())
	assert.ErrorIs(t, err, errs.ErrAlreadyExists)
	assert.Len(t, api.persons, 1)
}

func TestSolaris_CreatePersonGuards(t *testing.T) {
	svc, api, _, _ := newSolarisFixture()
	ctx := context.Background()

	assert.ErrorIs(t, svc.CreatePerson(ctx, "mallory", personInput()), errs.ErrForbidden)
	assert.ErrorIs(t, svc.CreatePerson(ctx, "nobody", personInput()), errs.ErrForbidden)

	in := personInput()
	in.Person.BirthDate = "02/04/1990"
	assert.ErrorIs(t, svc.CreatePerson(ctx, "alice", in), errs.ErrInvalidInput)
	assert.Empty(t, api.persons)
}

func TestSolaris_NoTinReason(t *testing.T) {
	svc, api, _, _ := newSolarisFixture()
	in := personInput()
	in.TaxIdentification = ""
	in.ReasonNoTin = "NOT_ASSIGNED"
	in.ReasonDescription = "student"

	require.NoError(t, svc.CreatePerson(context.Background(), "alice", in))
	assert.Equal(t, "NOT_ASSIGNED", api.taxIDs[0].ReasonNoTin)
	assert.Equal(t, "student", api.taxIDs[0].ReasonDescription)
}

func TestSolaris_IdentificationOpensAccountOnce(t *testing.T) {
	svc, api, repo, pub := newSolarisFixture()
	ctx := context.Background()
	require.NoError(t, svc.CreatePerson(ctx, "alice", personInput()))

	ident, err := svc.CreateIdentification(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "https://id.example.com/ref-1", ident.URL)
	l := repo.get(domain.ProviderSolaris, "alice")
	assert.Equal(t, domain.SolarisStepIdentification, l.CurrentStep)
	require.NotNil(t, l.Details.Identification)
	assert.Equal(t, "pending", l.Details.Identification.Status)

	view, err := svc.GetPerson(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, view.Identification)
	assert.Equal(t, "NO", view.Identification.Final)
	assert.False(t, view.AccountApproved)

	_, err = svc.OpenAccount(ctx, "alice")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	update := IdentificationUpdate{ID: "ident-1", PersonID: "person-1", Status: domain.SolarisIdentificationSuccessful}
	require.NoError(t, svc.ApplyIdentification(ctx, update))
	require.NoError(t, svc.ApplyIdentification(ctx, update))
	assert.Equal(t, 1, api.accounts)

	l = repo.get(domain.ProviderSolaris, "alice")
	assert.Equal(t, "chk-1", l.Details.CheckingAccountID)
	assert.True(t, l.Details.AccountApproved)
	assert.Equal(t, domain.SolarisStepAccountOpened, l.CurrentStep)
	assert.Contains(t, pub.keys(), domain.RoutingAccountOpened)

	acc, err := svc.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "chk-1", acc.ID)

	view, err = svc.GetPerson(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "YES", view.Identification.Final)
}

func TestSolaris_ConcurrentIdentificationCallbacksOpenOneAccount(t *testing.T) {
	svc, api, repo, _ := newSolarisFixture()
	ctx := context.Background()
	require.NoError(t, svc.CreatePerson(ctx, "alice", personInput()))
	api.accountDelay = 50 * time.Millisecond

	update := IdentificationUpdate{ID: "ident-1", PersonID: "person-1", Status: domain.SolarisIdentificationSuccessful}
	errCh := make(chan error, 3)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- svc.ApplyIdentification(ctx, update)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		_, err := svc.OpenAccount(ctx, "alice")
		errCh <- err
	}()
	wg.Wait()
	close(errCh)

	for err := range errCh {
		// OpenAccount may run before any callback stored the successful status.
		if err != nil {
			assert.ErrorIs(t, err, errs.ErrInvalidInput)
		}
	}
	assert.Equal(t, 1, api.accounts)
	l := repo.get(domain.ProviderSolaris, "alice")
	assert.Equal(t, "chk-1", l.Details.CheckingAccountID)
	assert.Equal(t, domain.SolarisStepAccountOpened, l.CurrentStep)
}

func TestSolaris_FailedIdentificationKeepsStep(t *testing.T) {
	svc, api, repo, _ := newSolarisFixture()
	ctx := context.Background()
	require.NoError(t, svc.CreatePerson(ctx, "alice", personInput()))
	_, err := svc.CreateIdentification(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, svc.ApplyIdentification(ctx, IdentificationUpdate{PersonID: "person-1", Status: domain.SolarisIdentificationFailed}))
	l := repo.get(domain.ProviderSolaris, "alice")
	assert.Equal(t, domain.SolarisStepIdentification, l.CurrentStep)
	assert.Equal(t, domain.SolarisIdentificationFailed, l.Details.Identification.Status)
	assert.Zero(t, api.accounts)

	_, err = svc.GetAccount(ctx, "alice")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSolaris_UnknownPersonSkipped(t *testing.T) {
	svc, api, _, _ := newSolarisFixture()
	err := svc.ApplyIdentification(context.Background(), IdentificationUpdate{PersonID: "ghost", Status: domain.SolarisIdentificationSuccessful})
	require.NoError(t, err)
	assert.Zero(t, api.accounts)
}

func TestSolaris_MobileVerification(t *testing.T) {
	svc, api, _, _ := newSolarisFixture()
	ctx := context.Background()

	assert.ErrorIs(t, svc.AuthorizeMobile(ctx, "alice"), errs.ErrNotFound)

	require.NoError(t, svc.CreatePerson(ctx, "alice", personInput()))
	require.NoError(t, svc.AuthorizeMobile(ctx, "alice"))
	require.NoError(t, svc.ConfirmMobile(ctx, "alice", "212212"))
	assert.Equal(t, []string{"+4915112345678"}, api.authorized)
	assert.Equal(t, []string{"212212"}, api.confirmed)
}

func TestIdentificationView(t *testing.T) {
	assert.Nil(t, identificationView(nil))

	v := identificationView(&domain.Identification{Status: "failed"})
	assert.Equal(t, "NEW_IDENTIFICATION", v.RequiredAction)
	assert.Equal(t, "failed", v.Status)

	v = identificationView(&domain.Identification{Status: "mystery"})
	assert.Equal(t, "NONE", v.RequiredAction)
}
