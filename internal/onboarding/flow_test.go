package onboarding

import (
	"testing"

	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowAdvance(t *testing.T) {
	tests := []struct {
		name         string
		flow         Flow
		current      domain.Step
		next         domain.Step
		resubmitting bool
		want         domain.Step
	}{
		{"passport moves to proof of address", PrimeTrustFlow, domain.PrimeTrustStepDocuments, domain.PrimeTrustStepProofOfAddress, false, domain.PrimeTrustStepProofOfAddress},
		{"drivers license skips to submitted", PrimeTrustFlow, domain.PrimeTrustStepDocuments, domain.PrimeTrustStepSubmitted, false, domain.PrimeTrustStepSubmitted},
		{"resubmission always submitted", PrimeTrustFlow, domain.PrimeTrustStepAddress, domain.PrimeTrustStepDocuments, true, domain.PrimeTrustStepSubmitted},
		{"never moves backward", PrimeTrustFlow, domain.PrimeTrustStepSubmitted, domain.PrimeTrustStepDocuments, false, domain.PrimeTrustStepSubmitted},
		{"same step is a no-op", WyreFlow, domain.WyreStepDocuments, domain.WyreStepDocuments, false, domain.WyreStepDocuments},
		{"business questionnaire", PrimeTrustBusinessFlow, domain.BusinessStepRelatedContacts, domain.BusinessStepQuestionnaire, false, domain.BusinessStepQuestionnaire},
		{"stored payment method finishes at submitted", PrimeTrustFlow, domain.PrimeTrustStepPaymentMethod, domain.PrimeTrustStepSubmitted, false, domain.PrimeTrustStepSubmitted},
		{"stored payment method keeps position", PrimeTrustFlow, domain.PrimeTrustStepPaymentMethod, domain.PrimeTrustStepProofOfAddress, false, domain.PrimeTrustStepPaymentMethod},
		{"unknown current adopts next", BaanxFlow, "", domain.BaanxStepKycSubmitted, false, domain.BaanxStepKycSubmitted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.flow.Advance(tt.current, tt.next, tt.resubmitting)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlowAdvance_UnknownStep(t *testing.T) {
	got, err := SolarisFlow.Advance(domain.SolarisStepPersonCreated, domain.PrimeTrustStepDocuments, false)
	require.ErrorIs(t, err, errs.ErrInvalidTransition)
	assert.Equal(t, domain.SolarisStepPersonCreated, got)
}

func TestFlowBoundaries(t *testing.T) {
	for _, p := range domain.Providers {
		f, ok := FlowFor(p)
		require.True(t, ok, p)
		assert.True(t, f.Contains(f.AfterAccount), p)
	}
	assert.Equal(t, domain.PrimeTrustStepAddress, PrimeTrustFlow.Initial())
	assert.Equal(t, domain.BusinessStepSubmitted, PrimeTrustBusinessFlow.Terminal())
	assert.Equal(t, domain.BusinessStepCompanyInfo, PrimeTrustBusinessFlow.Initial())

	_, ok := FlowFor("unknown")
	assert.False(t, ok)
}
