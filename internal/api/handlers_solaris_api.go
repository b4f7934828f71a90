package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/kash/onboarding-service/internal/app"
	"github.com/kash/onboarding-service/pkg/solaris"
)

type solarisPersonRequest struct {
	Identity                  string                      `json:"identity" validate:"required"`
	CardPlan                  string                      `json:"card_plan"`
	Person                    solaris.CreatePersonRequest `json:"person"`
	FatcaCrsConfirmed         bool                        `json:"fatca_crs_confirmed"`
	TermsConditionsSigned     bool                        `json:"terms_conditions_signed"`
	OwnEconomicInterestSigned bool                        `json:"own_economic_interest_signed"`
	TaxIdentification         string                      `json:"tax_identification"`
	ReasonNoTin               string                      `json:"reason_no_tin"`
	ReasonDescription         string                      `json:"reason_description"`
}

type solarisConfirmRequest struct {
	Identity string `json:"identity" validate:"required"`
	Token    string `json:"token" validate:"required"`
}

type solarisAccountResponse struct {
	AccountID   string `json:"account_id"`
	CurrentStep string `json:"current_step"`
}

func (h *Handlers) handleSolarisCreatePerson(w http.ResponseWriter, r *http.Request) {
	var req solarisPersonRequest
	if !bind(w, r, &req) {
		return
	}
	err := h.solaris.CreatePerson(r.Context(), req.Identity, app.SolarisPersonInput{
		CardPlan:                  req.CardPlan,
		Person:                    req.Person,
		FatcaCrsConfirmed:         req.FatcaCrsConfirmed,
		TermsConditionsSigned:     req.TermsConditionsSigned,
		OwnEconomicInterestSigned: req.OwnEconomicInterestSigned,
		TaxIdentification:         req.TaxIdentification,
		ReasonNoTin:               req.ReasonNoTin,
		ReasonDescription:         req.ReasonDescription,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Person created"})
}

func (h *Handlers) handleSolarisMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := queryIdentity(w, r)
	if !ok {
		return
	}
	person, err := h.solaris.GetPerson(r.Context(), identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}

func (h *Handlers) handleSolarisIdentification(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !bind(w, r, &req) {
		return
	}
	ident, err := h.solaris.CreateIdentification(r.Context(), req.Identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ident)
}

func (h *Handlers) handleSolarisAuthorizePhone(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.solaris.AuthorizeMobile(r.Context(), req.Identity); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Verification code sent"})
}

func (h *Handlers) handleSolarisConfirmPhone(w http.ResponseWriter, r *http.Request) {
	var req solarisConfirmRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.solaris.ConfirmMobile(r.Context(), req.Identity, req.Token); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Mobile number confirmed"})
}

func (h *Handlers) handleSolarisOpenAccount(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !bind(w, r, &req) {
		return
	}
	l, err := h.solaris.OpenAccount(r.Context(), req.Identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, solarisAccountResponse{AccountID: l.Details.CheckingAccountID, CurrentStep: string(l.CurrentStep)})
}

func (h *Handlers) handleSolarisGetAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := queryIdentity(w, r)
	if !ok {
		return
	}
	account, err := h.solaris.GetAccount(r.Context(), identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// decodeIdentificationUpdates accepts a single callback object or an array of them.
func decodeIdentificationUpdates(body []byte) ([]app.IdentificationUpdate, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []app.IdentificationUpdate
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, err
		}
		return batch, nil
	}
	var one app.IdentificationUpdate
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	return []app.IdentificationUpdate{one}, nil
}

func (h *Handlers) handleSolarisIdentificationHook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeBodyError(w, err, "Could not read request body")
		return
	}
	batch, err := decodeIdentificationUpdates(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid webhook body")
		return
	}
	h.webhooks.SolarisIdentifications(r.Context(), batch)
	writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}
