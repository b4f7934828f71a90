package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	"github.com/kash/onboarding-service/internal/onboarding"
	"github.com/kash/onboarding-service/pkg/primetrust"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type memRepo struct {
	mu      sync.Mutex
	records map[string]domain.Linkage
}

func newMemRepo() *memRepo { return &memRepo{records: map[string]domain.Linkage{}} }

func (r *memRepo) key(p domain.Provider, identity string) string { return string(p) + "/" + identity }

func clone(l domain.Linkage) *domain.Linkage {
	l.DocumentIDs = append([]string(nil), l.DocumentIDs...)
	l.Details.RelatedContacts = append([]domain.RelatedContact(nil), l.Details.RelatedContacts...)
	l.Details.ConnectedBanks = append([]domain.ConnectedBank(nil), l.Details.ConnectedBanks...)
	if l.Details.Identification != nil {
		ident := *l.Details.Identification
		l.Details.Identification = &ident
	}
	if l.Details.AssetTransfer != nil {
		at := *l.Details.AssetTransfer
		l.Details.AssetTransfer = &at
	}
	return &l
}

func (r *memRepo) put(l domain.Linkage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[r.key(l.Provider, l.Identity)] = l
}

func (r *memRepo) get(p domain.Provider, identity string) domain.Linkage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[r.key(p, identity)]
}

func (r *memRepo) GetByIdentity(ctx context.Context, p domain.Provider, identity string) (*domain.Linkage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.records[r.key(p, identity)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return clone(l), nil
}

func (r *memRepo) find(p domain.Provider, match func(domain.Linkage) bool) (*domain.Linkage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.records {
		if l.Provider == p && match(l) {
			return clone(l), nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r *memRepo) GetByContactID(ctx context.Context, p domain.Provider, contactID string) (*domain.Linkage, error) {
	return r.find(p, func(l domain.Linkage) bool { return l.ExternalContactID == contactID })
}

func (r *memRepo) GetByKycReference(ctx context.Context, p domain.Provider, ref string) (*domain.Linkage, error) {
	return r.find(p, func(l domain.Linkage) bool { return l.KycReference == ref })
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
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.key(l.Provider, l.Identity)
	if _, ok := r.records[k]; !ok {
		return errs.ErrNotFound
	}
	r.records[k] = *clone(*l)
	return nil
}

type nopLocker struct{}

func (nopLocker) Obtain(context.Context, string) (func(), error) { return func() {}, nil }

// keyedLocker serializes callers per key in process.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocker) Obtain(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*sync.Mutex{}
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock, nil
}

type published struct {
	key     string
	payload any
}

type recPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recPublisher) Publish(ctx context.Context, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{key: key, payload: payload})
	return nil
}

func (p *recPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.key)
	}
	return out
}

type userStub map[string]domain.User

func (u userStub) GetByIdentity(ctx context.Context, identity string) (*domain.User, error) {
	user, ok := u[identity]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &user, nil
}

func (u userStub) GetByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	for _, user := range u {
		if user.ReferralCode == code {
			return &user, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (u userStub) ListActive(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	for _, user := range u {
		if !user.Blocked {
			out = append(out, user)
		}
	}
	return out, nil
}

func newEngine(v onboarding.Vendor, repo *memRepo, pub *recPublisher) *onboarding.Engine {
	return onboarding.NewEngine(v, repo, nopLocker{}, pub, zap.NewNop())
}

func newLockedEngine(v onboarding.Vendor, repo *memRepo, pub *recPublisher) *onboarding.Engine {
	return onboarding.NewEngine(v, repo, &keyedLocker{}, pub, zap.NewNop())
}

// ptStub records Prime Trust calls and answers from its fields.
type ptStub struct {
	mu sync.Mutex

	uploads       []primetrust.UploadRequest
	checks        []primetrust.KycDocumentCheck
	relationships [][3]string
	patchedIDs    []string
	deleted       []string
	created       []map[string]any
	quotes        []primetrust.QuoteRequest
	disbursements []string

	contacts      map[string]primetrust.Contact
	related       []primetrust.Contact
	accountStatus string
	checkStatuses []primetrust.Check
	quoteStatuses []string
	disburseErrs  []error
	transfer      primetrust.AssetTransfer
	cash          decimal.Decimal
	createErr     error
	executeErr    error
}

func (s *ptStub) CreateAccount(ctx context.Context, attributes map[string]any, webhookURL string) (*primetrust.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = append(s.created, attributes)
	return &primetrust.Account{ID: "acc-1", ContactID: "contact-1", Status: "pending"}, nil
}

func (s *ptStub) GetAccount(ctx context.Context, accountID string) (*primetrust.Account, error) {
	return &primetrust.Account{ID: accountID, Status: s.accountStatus}, nil
}

func (s *ptStub) PatchAccount(ctx context.Context, accountID string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patchedIDs = append(s.patchedIDs, accountID)
	return nil
}

func (s *ptStub) GetContact(ctx context.Context, contactID string) (*primetrust.Contact, error) {
	c, ok := s.contacts[contactID]
	if !ok {
		return nil, &errs.VendorError{Vendor: "prime_trust", Status: 404}
	}
	return &c, nil
}

func (s *ptStub) AccountContacts(ctx context.Context, accountID string) (*primetrust.ContactsWithChecks, error) {
	out := &primetrust.ContactsWithChecks{Checks: s.checkStatuses}
	for _, c := range s.contacts {
		out.Contacts = append(out.Contacts, c)
	}
	return out, nil
}

func (s *ptStub) RelatedContactsStatus(ctx context.Context, contactID string) (*primetrust.ContactsWithChecks, error) {
	return &primetrust.ContactsWithChecks{Contacts: s.relatedSnapshot(), Checks: s.checkStatuses}, nil
}

func (s *ptStub) relatedSnapshot() []primetrust.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]primetrust.Contact(nil), s.related...)
}

func (s *ptStub) RelatedContacts(ctx context.Context, contactID string) ([]primetrust.Contact, error) {
	return s.relatedSnapshot(), nil
}

func (s *ptStub) CreateContact(ctx context.Context, attributes map[string]any) (*primetrust.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, attributes)
	c := primetrust.Contact{ID: fmt.Sprintf("rc-%d", len(s.related)+1), Name: fmt.Sprint(attributes["name"])}
	s.related = append(s.related, c)
	return &c, nil
}

func (s *ptStub) PatchContact(ctx context.Context, contactID string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patchedIDs = append(s.patchedIDs, contactID)
	return nil
}

func (s *ptStub) DeleteContact(ctx context.Context, contactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, contactID)
	kept := s.related[:0]
	for _, c := range s.related {
		if c.ID != contactID {
			kept = append(kept, c)
		}
	}
	s.related = kept
	return nil
}

func (s *ptStub) CreateContactRelationship(ctx context.Context, label, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relationships = append(s.relationships, [3]string{label, from, to})
	return nil
}

func (s *ptStub) CreateKycDocumentCheck(ctx context.Context, check primetrust.KycDocumentCheck) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, check)
	return fmt.Sprintf("check-%d", len(s.checks)), nil
}

func (s *ptStub) UploadDocument(ctx context.Context, up primetrust.UploadRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, up)
	return fmt.Sprintf("doc-%d", len(s.uploads)), nil
}

func (s *ptStub) CreateFundsTransferMethod(ctx context.Context, contactID, processorToken string) (*primetrust.FundsTransferMethod, error) {
	return &primetrust.FundsTransferMethod{ID: "ftm-" + processorToken, BankName: "Chase", BankAccountType: "checking"}, nil
}

func (s *ptStub) AccountCashTotals(ctx context.Context, accountID string) (*primetrust.CashTotals, error) {
	return &primetrust.CashTotals{Disbursable: s.cash}, nil
}

func (s *ptStub) GetAssetTransfer(ctx context.Context, id string) (*primetrust.AssetTransfer, error) {
	t := s.transfer
	t.ID = id
	return &t, nil
}

func (s *ptStub) CreateAssetTransferMethod(ctx context.Context, m primetrust.AssetTransferMethodRequest) (*primetrust.AssetTransferMethod, error) {
	return &primetrust.AssetTransferMethod{ID: "atm-1", WalletAddress: "terra1wallet", Tag: "memo-1"}, nil
}

func (s *ptStub) CreateQuote(ctx context.Context, req primetrust.QuoteRequest) (*primetrust.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, req)
	return &primetrust.Quote{ID: fmt.Sprintf("q-%d", len(s.quotes)), Status: "pending", UnitCount: decimal.RequireFromString("99.5")}, nil
}

func (s *ptStub) GetQuote(ctx context.Context, id string) (*primetrust.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := "settled"
	if len(s.quoteStatuses) > 0 {
		status, s.quoteStatuses = s.quoteStatuses[0], s.quoteStatuses[1:]
	}
	return &primetrust.Quote{ID: id, Status: status}, nil
}

func (s *ptStub) ExecuteQuote(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executeErr
}

func (s *ptStub) CreateAssetDisbursement(ctx context.Context, key string, d primetrust.AssetDisbursement) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disbursements = append(s.disbursements, key)
	if len(s.disburseErrs) > 0 {
		err := s.disburseErrs[0]
		s.disburseErrs = s.disburseErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return "disb-1", nil
}

type processorStub struct {
	processors []string
}

func (p *processorStub) ProcessorTokenFromMetadata(ctx context.Context, raw, processor string) (string, error) {
	p.processors = append(p.processors, processor)
	return "tok", nil
}
