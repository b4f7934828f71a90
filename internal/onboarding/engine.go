/**
 * @description
 * The onboarding engine drives one provider's linkage record through its flow. Every
 * provider plugs in through the Vendor capability interface; the engine owns locking,
 * persistence, step transitions and step-change events.
 *
 * @dependencies
 * - go.uber.org/zap: structured logging.
 *
 * @notes
 * - CreateAccount is earliest-wins: a record that already holds a vendor account is
 *   returned untouched and the vendor is not called again.
 * - If the vendor call succeeds but the write fails, the error is returned so the
 *   caller sees the divergence instead of a silent success.
 */
package onboarding

import (
	"context"
	"errors"
	"fmt"

	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	"go.uber.org/zap"
)

// Repository is the linkage persistence the engine needs.
type Repository interface {
	GetByIdentity(ctx context.Context, provider domain.Provider, identity string) (*domain.Linkage, error)
	CreateBase(ctx context.Context, provider domain.Provider, identity string, step domain.Step) (*domain.Linkage, bool, error)
	Update(ctx context.Context, l *domain.Linkage) error
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// AccountResult carries the identifiers a vendor issues on account creation.
type AccountResult struct {
	AccountID    string
	ContactID    string
	Secret       string
	KycReference string
}

// Document is one KYC upload.
type Document struct {
	Label        string
	Description  string
	FileName     string
	ContentType  string
	Content      []byte
	Resubmitting bool
	Payload      any
}

// DocumentResult is the vendor's answer to an upload: the issued ids and the step the
// record should move to. An empty Next keeps the current step.
type DocumentResult struct {
	DocumentIDs []string
	Next        domain.Step
}

// Vendor is the per-provider capability set. Implementations may mutate l.Details;
// the engine persists whatever they leave there.
type Vendor interface {
	Flow() Flow
	CreateExternalAccount(ctx context.Context, l *domain.Linkage, payload any) (AccountResult, error)
	SubmitDocument(ctx context.Context, l *domain.Linkage, doc Document) (DocumentResult, error)
	PatchKyc(ctx context.Context, l *domain.Linkage, payload any) (domain.Step, error)
}

// Engine runs one vendor's onboarding flow.
type Engine struct {
	vendor Vendor
	flow   Flow
	repo   Repository
	locker Locker
	events Publisher
	logger *zap.Logger
}

// NewEngine wires an engine for vendor.
func NewEngine(vendor Vendor, repo Repository, locker Locker, events Publisher, logger *zap.Logger) *Engine {
	flow := vendor.Flow()
	return &Engine{
		vendor: vendor,
		flow:   flow,
		repo:   repo,
		locker: locker,
		events: events,
		logger: logger.With(zap.String("provider", string(flow.Provider))),
	}
}

// Flow returns the engine's step sequence.
func (e *Engine) Flow() Flow { return e.flow }

// CreateAccount creates the vendor account for identity unless one already exists.
// created reports whether the vendor was called.
func (e *Engine) CreateAccount(ctx context.Context, identity string, payload any) (l *domain.Linkage, created bool, err error) {
	release, err := e.locker.Obtain(ctx, lockKey(e.flow.Provider, identity))
	if err != nil {
		return nil, false, err
	}
	defer release()

	l, _, err = e.repo.CreateBase(ctx, e.flow.Provider, identity, e.flow.Initial())
	if err != nil {
		return nil, false, err
	}
	if l.HasAccount() {
		e.logger.Info("vendor account already linked", zap.String("identity", identity))
		return l, false, nil
	}

	res, err := e.vendor.CreateExternalAccount(ctx, l, payload)
	if err != nil {
		return nil, false, err
	}
	if res.AccountID == "" {
		return nil, false, fmt.Errorf("%s returned no account id for %s", e.flow.Provider, identity)
	}
	l.ExternalAccountID = res.AccountID
	if res.ContactID != "" {
		l.ExternalContactID = res.ContactID
	}
	if res.Secret != "" {
		l.ExternalSecret = res.Secret
	}
	if res.KycReference != "" {
		l.KycReference = res.KycReference
	}

	from := l.CurrentStep
	if l.CurrentStep, err = e.flow.Advance(from, e.flow.AfterAccount, false); err != nil {
		return nil, false, err
	}
	if err := e.repo.Update(ctx, l); err != nil {
		e.logger.Error("vendor account created but linkage update failed",
			zap.String("identity", identity), zap.Error(err))
		return nil, false, err
	}
	e.logger.Info("vendor account linked", zap.String("identity", identity), zap.String("step", string(l.CurrentStep)))
	e.publishStep(ctx, l, from)
	return l, true, nil
}

// SubmitDocument uploads doc for identity and applies the vendor's step decision.
func (e *Engine) SubmitDocument(ctx context.Context, identity string, doc Document) (*domain.Linkage, DocumentResult, error) {
	l, err := e.RequireAccount(ctx, identity)
	if err != nil {
		return nil, DocumentResult{}, err
	}
	res, err := e.vendor.SubmitDocument(ctx, l, doc)
	if err != nil {
		return nil, DocumentResult{}, err
	}
	l.DocumentIDs = append(l.DocumentIDs, res.DocumentIDs...)

	next := res.Next
	if next == "" {
		next = l.CurrentStep
	}
	if err := e.Transition(ctx, l, next, doc.Resubmitting); err != nil {
		return nil, DocumentResult{}, err
	}
	return l, res, nil
}

// PatchKyc forwards updated KYC attributes to the vendor and clears the last rejection reason.
func (e *Engine) PatchKyc(ctx context.Context, identity string, payload any) (*domain.Linkage, error) {
	l, err := e.RequireAccount(ctx, identity)
	if err != nil {
		return nil, err
	}
	next, err := e.vendor.PatchKyc(ctx, l, payload)
	if err != nil {
		return nil, err
	}
	l.Details.KycReason = ""
	if next == "" {
		next = l.CurrentStep
	}
	if err := e.Transition(ctx, l, next, false); err != nil {
		return nil, err
	}
	return l, nil
}

// CurrentStep returns the stored step, or the initial step when no record exists.
func (e *Engine) CurrentStep(ctx context.Context, identity string) (domain.StepView, error) {
	l, err := e.repo.GetByIdentity(ctx, e.flow.Provider, identity)
	if errors.Is(err, errs.ErrNotFound) {
		return domain.StepView{CurrentStep: e.flow.Initial()}, nil
	}
	if err != nil {
		return domain.StepView{}, err
	}
	step := l.CurrentStep
	if step == "" {
		step = e.flow.Initial()
	}
	return domain.StepView{CurrentStep: step, AccountID: l.ExternalAccountID}, nil
}

// WithLock runs fn while holding the same per-identity lock CreateAccount takes.
// fn must not call CreateAccount for the same identity.
func (e *Engine) WithLock(ctx context.Context, identity string, fn func() error) error {
	release, err := e.locker.Obtain(ctx, lockKey(e.flow.Provider, identity))
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// Get returns the record for identity or errs.ErrNotFound.
func (e *Engine) Get(ctx context.Context, identity string) (*domain.Linkage, error) {
	return e.repo.GetByIdentity(ctx, e.flow.Provider, identity)
}

// RequireAccount returns the record for identity when its vendor account exists.
func (e *Engine) RequireAccount(ctx context.Context, identity string) (*domain.Linkage, error) {
	l, err := e.repo.GetByIdentity(ctx, e.flow.Provider, identity)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrAccountMissing
	}
	if err != nil {
		return nil, err
	}
	if !l.HasAccount() {
		return nil, errs.ErrAccountMissing
	}
	return l, nil
}

// Transition moves l toward next and persists it.
func (e *Engine) Transition(ctx context.Context, l *domain.Linkage, next domain.Step, resubmitting bool) error {
	from := l.CurrentStep
	to, err := e.flow.Advance(from, next, resubmitting)
	if err != nil {
		return err
	}
	l.CurrentStep = to
	if err := e.repo.Update(ctx, l); err != nil {
		return err
	}
	e.publishStep(ctx, l, from)
	return nil
}

// Save persists l without a step change.
func (e *Engine) Save(ctx context.Context, l *domain.Linkage) error {
	return e.repo.Update(ctx, l)
}

func (e *Engine) publishStep(ctx context.Context, l *domain.Linkage, from domain.Step) {
	if e.events == nil || from == l.CurrentStep {
		return
	}
	evt := domain.StepChangedEvent{Identity: l.Identity, Provider: l.Provider, From: from, To: l.CurrentStep}
	if err := e.events.Publish(ctx, domain.RoutingStepChanged, evt); err != nil {
		e.logger.Warn("failed to publish step change", zap.String("identity", l.Identity), zap.Error(err))
	}
}
