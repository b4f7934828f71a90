package onboarding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRepo struct {
	mu        sync.Mutex
	records   map[string]domain.Linkage
	updateErr error
}

func newMemRepo() *memRepo { return &memRepo{records: map[string]domain.Linkage{}} }

func (r *memRepo) key(p domain.Provider, identity string) string { return string(p) + "/" + identity }

func (r *memRepo) GetByIdentity(ctx context.Context, p domain.Provider, identity string) (*domain.Linkage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.records[r.key(p, identity)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	l.DocumentIDs = append([]string(nil), l.DocumentIDs...)
	return &l, nil
}

func (r *memRepo) CreateBase(ctx context.Context, p domain.Provider, identity string, step domain.Step) (*domain.Linkage, bool, error) {
	r.mu.Lock()
	k := r.key(p, identity)
	_, exists := r.records[k]
	if !exists {
		r.records[k] = domain.Linkage{Identity: identity, Provider: p, CurrentStep: step}
	}
	r.mu.Unlock()
	l, err := r.GetByIdentity(ctx, p, identity)
	return l, !exists, err
}

func (r *memRepo) Update(ctx context.Context, l *domain.Linkage) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.key(l.Provider, l.Identity)
	if _, ok := r.records[k]; !ok {
		return errs.ErrNotFound
	}
	r.records[k] = *l
	return nil
}

type mutexLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	err   error
}

func (m *mutexLocker) Obtain(ctx context.Context, key string) (func(), error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	if m.locks == nil {
		m.locks = map[string]*sync.Mutex{}
	}
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock, nil
}

type vendorStub struct {
	flow      Flow
	creates   atomic.Int32
	createErr error
	docResult DocumentResult
	patchNext domain.Step
}

func (v *vendorStub) Flow() Flow { return v.flow }

func (v *vendorStub) CreateExternalAccount(ctx context.Context, l *domain.Linkage, payload any) (AccountResult, error) {
	v.creates.Add(1)
	if v.createErr != nil {
		return AccountResult{}, v.createErr
	}
	l.Details.KycInitiated = true
	return AccountResult{AccountID: "acc-" + l.Identity, ContactID: "contact-" + l.Identity}, nil
}

func (v *vendorStub) SubmitDocument(ctx context.Context, l *domain.Linkage, doc Document) (DocumentResult, error) {
	return v.docResult, nil
}

func (v *vendorStub) PatchKyc(ctx context.Context, l *domain.Linkage, payload any) (domain.Step, error) {
	return v.patchNext, nil
}

type publisherStub struct {
	mu     sync.Mutex
	events []domain.StepChangedEvent
}

func (p *publisherStub) Publish(ctx context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if evt, ok := payload.(domain.StepChangedEvent); ok {
		p.events = append(p.events, evt)
	}
	return nil
}

func newTestEngine(v *vendorStub, repo *memRepo) (*Engine, *publisherStub) {
	pub := &publisherStub{}
	return NewEngine(v, repo, &mutexLocker{}, pub, zap.NewNop()), pub
}

func TestEngine_CreateAccount_ConcurrentCallsCreateOnce(t *testing.T) {
	v := &vendorStub{flow: PrimeTrustFlow}
	repo := newMemRepo()
	e, pub := newTestEngine(v, repo)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := e.CreateAccount(context.Background(), "u1", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, v.creates.Load())
	require.Len(t, repo.records, 1)
	l, err := repo.GetByIdentity(context.Background(), domain.ProviderPrimeTrust, "u1")
	require.NoError(t, err)
	assert.Equal(t, "acc-u1", l.ExternalAccountID)
	assert.Equal(t, domain.PrimeTrustStepDocuments, l.CurrentStep)
	assert.True(t, l.Details.KycInitiated)
	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.PrimeTrustStepAddress, pub.events[0].From)
}

func TestEngine_CreateAccount_ExistingIsUnchanged(t *testing.T) {
	v := &vendorStub{flow: WyreFlow}
	repo := newMemRepo()
	repo.records["wyre/u1"] = domain.Linkage{Identity: "u1", Provider: domain.ProviderWyre,
		ExternalAccountID: "AC_1", CurrentStep: domain.WyreStepPaymentMethod}
	e, _ := newTestEngine(v, repo)

	l, created, err := e.CreateAccount(context.Background(), "u1", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "AC_1", l.ExternalAccountID)
	assert.Equal(t, domain.WyreStepPaymentMethod, l.CurrentStep)
	assert.Zero(t, v.creates.Load())
}

func TestEngine_CreateAccount_VendorErrorLeavesShell(t *testing.T) {
	vendorErr := &errs.VendorError{Vendor: "prime trust", Status: 422, Detail: "bad ssn"}
	v := &vendorStub{flow: PrimeTrustFlow, createErr: vendorErr}
	repo := newMemRepo()
	e, _ := newTestEngine(v, repo)

	_, _, err := e.CreateAccount(context.Background(), "u1", nil)
	require.ErrorIs(t, err, vendorErr)

	l, err := repo.GetByIdentity(context.Background(), domain.ProviderPrimeTrust, "u1")
	require.NoError(t, err)
	assert.False(t, l.HasAccount())
	assert.Equal(t, domain.PrimeTrustStepAddress, l.CurrentStep)
}

func TestEngine_CreateAccount_LockNotObtained(t *testing.T) {
	v := &vendorStub{flow: BaanxFlow}
	e := NewEngine(v, newMemRepo(), &mutexLocker{err: errs.ErrLockNotObtained}, nil, zap.NewNop())

	_, _, err := e.CreateAccount(context.Background(), "u1", nil)
	require.ErrorIs(t, err, errs.ErrLockNotObtained)
	assert.Zero(t, v.creates.Load())
}

func TestEngine_WithLock(t *testing.T) {
	v := &vendorStub{flow: SolarisFlow}
	locker := &mutexLocker{}
	e := NewEngine(v, newMemRepo(), locker, nil, zap.NewNop())

	var held bool
	require.NoError(t, e.WithLock(context.Background(), "u1", func() error {
		held = true
		return nil
	}))
	assert.True(t, held)
	_, ok := locker.locks[lockKey(domain.ProviderSolaris, "u1")]
	assert.True(t, ok)

	fnErr := errors.New("boom")
	assert.ErrorIs(t, e.WithLock(context.Background(), "u1", func() error { return fnErr }), fnErr)

	locker.err = errs.ErrLockNotObtained
	called := false
	err := e.WithLock(context.Background(), "u1", func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, errs.ErrLockNotObtained)
	assert.False(t, called)
}

func TestEngine_CreateAccount_UpdateFailurePropagates(t *testing.T) {
	v := &vendorStub{flow: SolarisFlow}
	repo := newMemRepo()
	repo.updateErr = errors.New("db down")
	e, _ := newTestEngine(v, repo)

	_, _, err := e.CreateAccount(context.Background(), "u1", nil)
	require.EqualError(t, err, "db down")
}

func TestEngine_CurrentStep(t *testing.T) {
	repo := newMemRepo()
	e, _ := newTestEngine(&vendorStub{flow: PrimeTrustBusinessFlow}, repo)

	view, err := e.CurrentStep(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, domain.BusinessStepCompanyInfo, view.CurrentStep)
	assert.Empty(t, repo.records)

	repo.records["prime_trust_business/u2"] = domain.Linkage{Identity: "u2", Provider: domain.ProviderPrimeTrustBusiness,
		ExternalAccountID: "acc", CurrentStep: domain.BusinessStepQuestionnaire}
	view, err = e.CurrentStep(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, domain.BusinessStepQuestionnaire, view.CurrentStep)
	assert.Equal(t, "acc", view.AccountID)
}

func TestEngine_SubmitDocument(t *testing.T) {
	tests := []struct {
		name         string
		next         domain.Step
		resubmitting bool
		want         domain.Step
	}{
		{"passport", domain.PrimeTrustStepProofOfAddress, false, domain.PrimeTrustStepProofOfAddress},
		{"drivers license", domain.PrimeTrustStepSubmitted, false, domain.PrimeTrustStepSubmitted},
		{"resubmission", domain.PrimeTrustStepProofOfAddress, true, domain.PrimeTrustStepSubmitted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			repo.records["prime_trust/u1"] = domain.Linkage{Identity: "u1", Provider: domain.ProviderPrimeTrust,
				ExternalAccountID: "acc", CurrentStep: domain.PrimeTrustStepDocuments, DocumentIDs: []string{"d0"}}
			v := &vendorStub{flow: PrimeTrustFlow, docResult: DocumentResult{DocumentIDs: []string{"d1"}, Next: tt.next}}
			e, _ := newTestEngine(v, repo)

			l, _, err := e.SubmitDocument(context.Background(), "u1", Document{Label: "x", Resubmitting: tt.resubmitting})
			require.NoError(t, err)
			assert.Equal(t, tt.want, l.CurrentStep)
			assert.Equal(t, []string{"d0", "d1"}, repo.records["prime_trust/u1"].DocumentIDs)
		})
	}
}

func TestEngine_SubmitDocument_RequiresAccount(t *testing.T) {
	repo := newMemRepo()
	repo.records["prime_trust/shell"] = domain.Linkage{Identity: "shell", Provider: domain.ProviderPrimeTrust,
		CurrentStep: domain.PrimeTrustStepAddress}
	e, _ := newTestEngine(&vendorStub{flow: PrimeTrustFlow}, repo)

	_, _, err := e.SubmitDocument(context.Background(), "missing", Document{})
	require.ErrorIs(t, err, errs.ErrAccountMissing)
	_, _, err = e.SubmitDocument(context.Background(), "shell", Document{})
	require.ErrorIs(t, err, errs.ErrAccountMissing)
}

func TestEngine_PatchKyc_ClearsReason(t *testing.T) {
	repo := newMemRepo()
	repo.records["baanx/u1"] = domain.Linkage{Identity: "u1", Provider: domain.ProviderBaanx, ExternalAccountID: "ext",
		CurrentStep: domain.BaanxStepCreated, Details: domain.LinkageDetails{KycReason: "blurry"}}
	e, _ := newTestEngine(&vendorStub{flow: BaanxFlow, patchNext: domain.BaanxStepKycSubmitted}, repo)

	l, err := e.PatchKyc(context.Background(), "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, l.Details.KycReason)
	assert.Equal(t, domain.BaanxStepKycSubmitted, repo.records["baanx/u1"].CurrentStep)
}
