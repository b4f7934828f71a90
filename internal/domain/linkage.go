/**
 * @description
 * Core onboarding models: the provider enum, the onboarding step type and the linkage
 * record that joins an internal identity to a vendor account.
 *
 * @notes
 * - ExternalAccountID and ExternalSecret are always plaintext in this struct. The store
 *   encrypts them on write and decrypts them on read.
 * - Details holds the provider specific auxiliary fields and is persisted as jsonb.
 */
package domain

import "time"

// Provider identifies one vendor onboarding pipeline.
type Provider string

const (
	ProviderBaanx              Provider = "baanx"
	ProviderPrimeTrust         Provider = "prime_trust"
	ProviderPrimeTrustBusiness Provider = "prime_trust_business"
	ProviderWyre               Provider = "wyre"
	ProviderSolaris            Provider = "solaris"
)

// Providers lists every supported provider.
var Providers = []Provider{
	ProviderBaanx,
	ProviderPrimeTrust,
	ProviderPrimeTrustBusiness,
	ProviderWyre,
	ProviderSolaris,
}

// Step is a position in a provider's onboarding workflow.
type Step string

// Linkage is the per (identity, provider) onboarding record.
type Linkage struct {
	Identity          string
	Provider          Provider
	ExternalAccountID string
	ExternalContactID string
	ExternalSecret    string
	KycReference      string
	CurrentStep       Step
	DocumentIDs       []string
	Details           LinkageDetails
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasAccount reports whether the vendor account has been created.
func (l *Linkage) HasAccount() bool {
	return l != nil && l.ExternalAccountID != ""
}

// LastDocuments returns the n most recently uploaded document ids, oldest first.
func (l *Linkage) LastDocuments(n int) []string {
	if n <= 0 || len(l.DocumentIDs) < n {
		return nil
	}
	out := make([]string, n)
	copy(out, l.DocumentIDs[len(l.DocumentIDs)-n:])
	return out
}

// LinkageDetails carries provider auxiliary fields.
type LinkageDetails struct {
	KycInitiated      bool `json:"kyc_initiated,omitempty"`
	ProofOfAddress    bool `json:"proof_of_address,omitempty"`
	IdentityConfirmed bool `json:"identity_confirmed,omitempty"`

	KycStatus   int    `json:"kyc_status,omitempty"`
	KycReason   string `json:"kyc_reason,omitempty"`
	UserPassKyc bool   `json:"user_pass_kyc,omitempty"`

	CardID               string `json:"card_id,omitempty"`
	PushTransferMethodID string `json:"push_transfer_method_id,omitempty"`
	WireTransferMethodID string `json:"wire_transfer_method_id,omitempty"`

	ConnectedBanks  []ConnectedBank    `json:"connected_banks,omitempty"`
	AssetTransfer   *AssetTransferInfo `json:"asset_transfer,omitempty"`
	RelatedContacts []RelatedContact   `json:"related_contacts,omitempty"`

	TaxIdentificationID string          `json:"tax_identification_id,omitempty"`
	CheckingAccountID   string          `json:"checking_account_id,omitempty"`
	PreOrderCardType    string          `json:"pre_order_card_type,omitempty"`
	AccountApproved     bool            `json:"account_approved,omitempty"`
	MobileNumber        string          `json:"mobile_number,omitempty"`
	Identification      *Identification `json:"identification,omitempty"`
}

// ConnectedBank is a bank linked through a funds transfer method.
type ConnectedBank struct {
	BankName              string `json:"bank_name"`
	FundsTransferMethodID string `json:"funds_transfer_method_id"`
	Active                bool   `json:"active"`
	BankAccountType       string `json:"bank_account_type"`
}

// AssetTransferInfo is the incoming wallet used for off-ramp transfers.
type AssetTransferInfo struct {
	WalletAddress string `json:"wallet_address"`
	Memo          string `json:"memo"`
}

// RelatedContact is a business beneficial owner or signer.
type RelatedContact struct {
	ContactID   string   `json:"contact_id"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// Identification tracks a video/bank identification attempt.
type Identification struct {
	ExternalID string    `json:"external_identification_id"`
	Status     string    `json:"status"`
	Method     string    `json:"method,omitempty"`
	Reference  string    `json:"reference,omitempty"`
	URL        string    `json:"url,omitempty"`
	CreatedAt  time.Time `json:"created_date"`
	UpdatedAt  time.Time `json:"updated_date"`
}

// StepView is the read model returned by get-step endpoints.
type StepView struct {
	CurrentStep Step   `json:"current_kyc_step"`
	AccountID   string `json:"account_id,omitempty"`
}
