/**
 * @description
 * Step sequences for every provider onboarding pipeline and the transition rule shared
 * by all of them.
 *
 * @notes
 * - A step never moves backward. Asking for an earlier step keeps the current one.
 * - A resubmission always lands on the terminal step.
 */
package onboarding

import (
	"fmt"

	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
)

// Flow is one provider's ordered step sequence.
type Flow struct {
	Provider     domain.Provider
	Steps        []domain.Step
	AfterAccount domain.Step
}

// Initial is the step reported before any record exists.
func (f Flow) Initial() domain.Step { return f.Steps[0] }

// Terminal is the last step of the flow.
func (f Flow) Terminal() domain.Step { return f.Steps[len(f.Steps)-1] }

func (f Flow) index(s domain.Step) int {
	for i, step := range f.Steps {
		if step == s {
			return i
		}
	}
	return -1
}

// Contains reports whether s belongs to the flow.
func (f Flow) Contains(s domain.Step) bool { return f.index(s) >= 0 }

// Advance returns the step a record at current moves to when next is requested.
func (f Flow) Advance(current, next domain.Step, resubmitting bool) (domain.Step, error) {
	if resubmitting {
		return f.Terminal(), nil
	}
	to := f.index(next)
	if to < 0 {
		return current, fmt.Errorf("%w: %s has no step %q", errs.ErrInvalidTransition, f.Provider, next)
	}
	from := f.index(current)
	if from < 0 {
		// Records created before the flow existed start over from the requested step.
		return next, nil
	}
	if to < from {
		return current, nil
	}
	return next, nil
}

var (
	PrimeTrustFlow = Flow{
		Provider: domain.ProviderPrimeTrust,
		Steps: []domain.Step{
			domain.PrimeTrustStepAddress,
			domain.PrimeTrustStepDocuments,
			domain.PrimeTrustStepProofOfAddress,
			// No operation moves here; kept so stored PAYMENT_METHOD records stay ordered.
			domain.PrimeTrustStepPaymentMethod,
			domain.PrimeTrustStepSubmitted,
		},
		AfterAccount: domain.PrimeTrustStepDocuments,
	}

	PrimeTrustBusinessFlow = Flow{
		Provider: domain.ProviderPrimeTrustBusiness,
		Steps: []domain.Step{
			domain.BusinessStepCompanyInfo,
			domain.BusinessStepRelatedContacts,
			domain.BusinessStepQuestionnaire,
			domain.BusinessStepSubmitted,
		},
		AfterAccount: domain.BusinessStepRelatedContacts,
	}

	WyreFlow = Flow{
		Provider: domain.ProviderWyre,
		Steps: []domain.Step{
			domain.WyreStepAddress,
			domain.WyreStepDocuments,
			domain.WyreStepPaymentMethod,
			domain.WyreStepSubmitted,
		},
		AfterAccount: domain.WyreStepAddress,
	}

	BaanxFlow = Flow{
		Provider: domain.ProviderBaanx,
		Steps: []domain.Step{
			domain.BaanxStepCreated,
			domain.BaanxStepKycSubmitted,
			domain.BaanxStepVerified,
		},
		AfterAccount: domain.BaanxStepCreated,
	}

	SolarisFlow = Flow{
		Provider: domain.ProviderSolaris,
		Steps: []domain.Step{
			domain.SolarisStepPersonCreated,
			domain.SolarisStepIdentification,
			domain.SolarisStepAccountOpened,
		},
		AfterAccount: domain.SolarisStepPersonCreated,
	}
)

// FlowFor returns the flow registered for provider.
func FlowFor(provider domain.Provider) (Flow, bool) {
	for _, f := range []Flow{PrimeTrustFlow, PrimeTrustBusinessFlow, WyreFlow, BaanxFlow, SolarisFlow} {
		if f.Provider == provider {
			return f, true
		}
	}
	return Flow{}, false
}
