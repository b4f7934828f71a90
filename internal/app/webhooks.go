/**
 * @description
 * WebhookService applies asynchronous provider callbacks to linkage records.
 *
 * @notes
 * - Callbacks for unknown resource types or unknown records are logged and ignored.
 * - Errors are returned to the handler for logging; the sender always gets a success
 *   response once its payload parsed.
 * - A cleared asset transfer is sold at most once; the claim is released when the
 *   sell fails so a redelivery can retry it.
 */
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	"github.com/kash/onboarding-service/internal/onboarding"
	"github.com/kash/onboarding-service/pkg/primetrust"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Prime Trust webhook vocabulary.
const (
	ResourceAssetTransfers = "asset_transfers"
	ResourceContact        = "contact"

	changeContingenciesCleared = "contingencies-cleared-on"
	changeIdentityConfirmed    = "identity-confirmed"
	actionUpdate               = "update"
)

// PrimeTrustEvent is one Prime Trust webhook notification. Prime Trust sends the
// resource fields both snake and kebab cased depending on the resource.
type PrimeTrustEvent struct {
	ID           string
	Action       string
	AccountID    string
	ResourceID   string
	ResourceType string
	Changes      []string
}

type primeTrustEventJSON struct {
	ID              string `json:"id"`
	Action          string `json:"action"`
	AccountID       string `json:"account_id"`
	AccountIDKebab  string `json:"account-id"`
	ResourceID      string `json:"resource_id"`
	ResourceIDKebab string `json:"resource-id"`
	ResourceType    string `json:"resource_type"`
	ResourceKebab   string `json:"resource-type"`
	Data            struct {
		Changes []string `json:"changes"`
	} `json:"data"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// UnmarshalJSON accepts both field spellings.
func (e *PrimeTrustEvent) UnmarshalJSON(b []byte) error {
	var raw primeTrustEventJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*e = PrimeTrustEvent{
		ID:           raw.ID,
		Action:       raw.Action,
		AccountID:    firstNonEmpty(raw.AccountID, raw.AccountIDKebab),
		ResourceID:   firstNonEmpty(raw.ResourceID, raw.ResourceIDKebab),
		ResourceType: firstNonEmpty(raw.ResourceType, raw.ResourceKebab),
		Changes:      raw.Data.Changes,
	}
	return nil
}

// LinkageRecords reads and writes linkage records outside an engine.
type LinkageRecords interface {
	LinkageLookup
	Update(ctx context.Context, l *domain.Linkage) error
}

// WebhookService dispatches provider callbacks.
type WebhookService struct {
	pt         PrimeTrustAPI
	ustAssetID string
	records    LinkageRecords
	sales      SaleClaims
	users      UserDirectory
	solaris    *SolarisService
	baanx      *BaanxService
	events     onboarding.Publisher
	logger     *zap.Logger
}

// SaleClaims deduplicates off-ramp sells per asset transfer.
type SaleClaims interface {
	Claim(ctx context.Context, transferID, accountID string) (bool, error)
	Complete(ctx context.Context, transferID, quoteID string) error
	Release(ctx context.Context, transferID string) error
}

// NewWebhookService wires the webhook service.
func NewWebhookService(pt PrimeTrustAPI, ustAssetID string, records LinkageRecords, sales SaleClaims, users UserDirectory, solaris *SolarisService, baanx *BaanxService, events onboarding.Publisher, logger *zap.Logger) *WebhookService {
	return &WebhookService{
		pt:         pt,
		ustAssetID: ustAssetID,
		records:    records,
		sales:      sales,
		users:      users,
		solaris:    solaris,
		baanx:      baanx,
		events:     events,
		logger:     logger.Named("webhooks"),
	}
}

// PrimeTrust handles one Prime Trust notification.
func (s *WebhookService) PrimeTrust(ctx context.Context, evt PrimeTrustEvent) error {
	log := s.logger.With(
		zap.String("resource_type", evt.ResourceType),
		zap.String("resource_id", evt.ResourceID),
		zap.String("action", evt.Action),
	)
	switch evt.ResourceType {
	case ResourceAssetTransfers:
		if evt.Action != actionUpdate || !slices.Contains(evt.Changes, changeContingenciesCleared) {
			return nil
		}
		return s.sellClearedTransfer(ctx, evt, log)
	case ResourceContact:
		if !slices.Contains(evt.Changes, changeIdentityConfirmed) {
			return nil
		}
		return s.confirmIdentity(ctx, evt.ResourceID, log)
	default:
		log.Info("ignoring prime trust notification")
		return nil
	}
}

// sellClearedTransfer converts UST that arrived in the off-ramp wallet to USD.
func (s *WebhookService) sellClearedTransfer(ctx context.Context, evt PrimeTrustEvent, log *zap.Logger) error {
	transfer, err := s.pt.GetAssetTransfer(ctx, evt.ResourceID)
	if err != nil {
		return fmt.Errorf("get asset transfer %s: %w", evt.ResourceID, err)
	}
	if !transfer.UnitCount.IsPositive() {
		log.Info("cleared transfer carries no units")
		return nil
	}
	claimed, err := s.sales.Claim(ctx, evt.ResourceID, evt.AccountID)
	if err != nil {
		return err
	}
	if !claimed {
		log.Info("cleared transfer already sold")
		return nil
	}

	quoteID, err := s.sell(ctx, evt.AccountID, transfer.UnitCount)
	if err != nil {
		if relErr := s.sales.Release(ctx, evt.ResourceID); relErr != nil {
			log.Error("failed to release off-ramp claim", zap.Error(relErr))
		}
		return err
	}
	if err := s.sales.Complete(ctx, evt.ResourceID, quoteID); err != nil {
		log.Warn("off-ramp sell executed but not recorded", zap.String("quote_id", quoteID), zap.Error(err))
	}
	log.Info("off-ramp sell executed", zap.String("quote_id", quoteID), zap.String("units", transfer.UnitCount.String()))
	return nil
}

func (s *WebhookService) sell(ctx context.Context, accountID string, units decimal.Decimal) (string, error) {
	quote, err := s.pt.CreateQuote(ctx, primetrust.QuoteRequest{
		AccountID:       accountID,
		AssetID:         s.ustAssetID,
		Hot:             false,
		TransactionType: primetrust.QuoteSell,
		UnitCount:       &units,
	})
	if err != nil {
		return "", fmt.Errorf("create sell quote: %w", err)
	}
	if err := s.pt.ExecuteQuote(ctx, quote.ID); err != nil {
		return "", fmt.Errorf("execute sell quote %s: %w", quote.ID, err)
	}
	return quote.ID, nil
}

// confirmIdentity marks the record owning contactID as identity confirmed and
// publishes the notification once.
func (s *WebhookService) confirmIdentity(ctx context.Context, contactID string, log *zap.Logger) error {
	var l *domain.Linkage
	for _, p := range []domain.Provider{domain.ProviderPrimeTrust, domain.ProviderPrimeTrustBusiness} {
		found, err := s.records.GetByContactID(ctx, p, contactID)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		l = found
		break
	}
	if l == nil {
		log.Warn("identity confirmation for unknown contact")
		return nil
	}
	if l.Details.IdentityConfirmed {
		log.Info("identity already confirmed", zap.String("identity", l.Identity))
		return nil
	}

	l.Details.IdentityConfirmed = true
	if err := s.records.Update(ctx, l); err != nil {
		return err
	}
	log.Info("identity confirmed", zap.String("identity", l.Identity))

	evt := domain.IdentityConfirmedEvent{Identity: l.Identity, Provider: l.Provider, ContactID: contactID}
	if user, err := s.users.GetByIdentity(ctx, l.Identity); err == nil {
		evt.Email = user.Email
	} else if contact, err := s.pt.GetContact(ctx, contactID); err == nil {
		evt.Email = contact.Email
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, domain.RoutingIdentityConfirmed, evt); err != nil {
			log.Warn("failed to publish identity confirmed", zap.Error(err))
		}
	}
	return nil
}

// SolarisIdentifications applies a batch of identification callbacks. A failing item is
// logged and the rest of the batch is still applied.
func (s *WebhookService) SolarisIdentifications(ctx context.Context, batch []IdentificationUpdate) {
	if len(batch) == 0 {
		s.logger.Warn("empty identification webhook")
		return
	}
	for _, u := range batch {
		if err := s.solaris.ApplyIdentification(ctx, u); err != nil {
			s.logger.Error("failed to apply identification",
				zap.String("person_id", u.PersonID), zap.String("status", u.Status), zap.Error(err))
		}
	}
}

// BaanxKycStatus applies a Baanx KYC decision.
func (s *WebhookService) BaanxKycStatus(ctx context.Context, st BaanxKycStatus) error {
	return s.baanx.ApplyKycStatus(ctx, st)
}
