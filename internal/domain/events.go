package domain

// Routing keys published on the onboarding events exchange.
const (
	EventsExchange = "onboarding_events"

	RoutingStepChanged       = "onboarding.step.changed"
	RoutingIdentityConfirmed = "onboarding.identity.confirmed"
	RoutingAccountOpened     = "onboarding.account.opened"
	RoutingKycStatus         = "onboarding.kyc.status"
	RoutingReferralRewarded  = "kredits.referral.rewarded"
)

// StepChangedEvent is emitted whenever a linkage record moves to a new step.
type StepChangedEvent struct {
	Identity string   `json:"identity"`
	Provider Provider `json:"provider"`
	From     Step     `json:"from"`
	To       Step     `json:"to"`
}

// IdentityConfirmedEvent asks downstream consumers to notify the user.
type IdentityConfirmedEvent struct {
	Identity  string   `json:"identity"`
	Provider  Provider `json:"provider"`
	ContactID string   `json:"contact_id"`
	Email     string   `json:"email,omitempty"`
}

// AccountOpenedEvent is emitted after a vendor account is opened from a webhook.
type AccountOpenedEvent struct {
	Identity  string   `json:"identity"`
	Provider  Provider `json:"provider"`
	AccountID string   `json:"account_id"`
}

// KycStatusEvent relays a vendor KYC decision.
type KycStatusEvent struct {
	Identity string   `json:"identity"`
	Provider Provider `json:"provider"`
	Status   string   `json:"status"`
	Reason   string   `json:"reason,omitempty"`
}

// ReferralRewardedEvent asks downstream consumers to email the referrer.
type ReferralRewardedEvent struct {
	ReferrerIdentity string `json:"referrer_identity"`
	ReferrerEmail    string `json:"referrer_email,omitempty"`
	ReferredIdentity string `json:"referred_identity"`
	Kredits          string `json:"kredits"`
}
