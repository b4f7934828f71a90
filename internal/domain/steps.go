package domain

// Prime Trust personal steps.
const (
	PrimeTrustStepAddress        Step = "ADDRESS"
	PrimeTrustStepDocuments      Step = "DOCUMENTS"
	PrimeTrustStepProofOfAddress Step = "PROOF_OF_ADDRESS"
	PrimeTrustStepPaymentMethod  Step = "PAYMENT_METHOD"
	PrimeTrustStepSubmitted      Step = "SUBMITTED"
)

// Prime Trust business steps.
const (
	BusinessStepCompanyInfo     Step = "COMPANY_INFO"
	BusinessStepRelatedContacts Step = "RELATED_CONTACTS"
	BusinessStepQuestionnaire   Step = "QUESTIONNAIRE"
	BusinessStepSubmitted       Step = "SUBMITTED"
)

// Wyre steps.
const (
	WyreStepAddress       Step = "ADDRESS"
	WyreStepDocuments     Step = "DOCUMENTS"
	WyreStepPaymentMethod Step = "PAYMENT_METHOD"
	WyreStepSubmitted     Step = "SUBMITTED"
)

// Baanx steps.
const (
	BaanxStepCreated      Step = "CREATED"
	BaanxStepKycSubmitted Step = "KYC_SUBMITTED"
	BaanxStepVerified     Step = "VERIFIED"
)

// Solaris steps.
const (
	SolarisStepPersonCreated  Step = "PERSON_CREATED"
	SolarisStepIdentification Step = "IDENTIFICATION"
	SolarisStepAccountOpened  Step = "ACCOUNT_OPENED"
)

// Prime Trust document labels.
const (
	DocumentDriversLicense = "drivers_license"
	DocumentPassport       = "passport"
	DocumentProofOfAddress = "proof_of_address"
)

// Baanx KYC request statuses reported by the status webhook.
const (
	BaanxKycStarted   = 7001
	BaanxKycSubmitted = 7002
	BaanxKycVerified  = 9001
	BaanxKycDenied    = 9102
	BaanxKycResubmit  = 9103
	BaanxKycExpired   = 9104
	BaanxKycIssue     = 400
)

// Solaris identification statuses.
const (
	SolarisIdentificationSuccessful = "successful"
	SolarisIdentificationFailed     = "failed"
)
