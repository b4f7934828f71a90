package api

import (
	"encoding/json"
	"net/http"

	"github.com/kash/onboarding-service/internal/app"
	"github.com/kash/onboarding-service/pkg/baanx"
	"go.uber.org/zap"
)

type baanxUserRequest struct {
	Identity string `json:"identity" validate:"required"`
	baanx.CreateUserRequest
}

type baanxKycRequest struct {
	Identity string           `json:"identity" validate:"required"`
	Images   []baanx.KycImage `json:"images" validate:"required,min=1,dive"`
}

func (h *Handlers) handleBaanxCreateUser(w http.ResponseWriter, r *http.Request) {
	var req baanxUserRequest
	if !bind(w, r, &req) {
		return
	}
	user, err := h.baanx.CreateUser(r.Context(), req.Identity, req.CreateUserRequest)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) handleBaanxSession(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !bind(w, r, &req) {
		return
	}
	session, err := h.baanx.InitSession(r.Context(), req.Identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) handleBaanxSubmitKyc(w http.ResponseWriter, r *http.Request) {
	var req baanxKycRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.baanx.SubmitKyc(r.Context(), req.Identity, req.Images); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "KYC submitted"})
}

func (h *Handlers) handleBaanxPassKyc(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.baanx.PassKyc(r.Context(), req.Identity); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "KYC passed"})
}

func (h *Handlers) handleBaanxKycStatus(w http.ResponseWriter, r *http.Request) {
	var st app.BaanxKycStatus
	limitBody(w, r)
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		writeBodyError(w, err, "Invalid webhook body")
		return
	}
	if err := h.webhooks.BaanxKycStatus(r.Context(), st); err != nil {
		h.logger.Error("baanx kyc status webhook failed", zap.String("request_id", st.RequestID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}
