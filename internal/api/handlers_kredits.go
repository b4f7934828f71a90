package api

import (
	"net/http"

	"github.com/kash/onboarding-service/internal/app"
	"github.com/kash/onboarding-service/internal/domain"
	"github.com/shopspring/decimal"
)

type kreditsCreateRequest struct {
	Identity      string `json:"identity" validate:"required"`
	WalletAddress string `json:"walletAddress"`
	ReferralCode  string `json:"referral_code"`
	Referrer      string `json:"referrer"`
}

type kreditsAmountRequest struct {
	Identity string          `json:"identity" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

type balancesRequest struct {
	Identity string            `json:"identity" validate:"required"`
	Range    domain.ChartRange `json:"range" validate:"required"`
}

func (h *Handlers) handleKreditsCreate(w http.ResponseWriter, r *http.Request) {
	var req kreditsCreateRequest
	if !bind(w, r, &req) {
		return
	}
	err := h.kredits.Create(r.Context(), app.KreditsCreateInput{
		Identity:      req.Identity,
		WalletAddress: req.WalletAddress,
		ReferralCode:  req.ReferralCode,
		Referrer:      req.Referrer,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Kredits account created"})
}

func (h *Handlers) handleKreditsDeposit(w http.ResponseWriter, r *http.Request) {
	var req kreditsAmountRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.kredits.Deposit(r.Context(), req.Identity, req.Amount); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Deposit recorded"})
}

func (h *Handlers) handleKreditsWithdraw(w http.ResponseWriter, r *http.Request) {
	var req kreditsAmountRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.kredits.Withdraw(r.Context(), req.Identity, req.Amount); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Withdrawal recorded"})
}

func (h *Handlers) handleKreditsGet(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !bind(w, r, &req) {
		return
	}
	account, err := h.kredits.Get(r.Context(), req.Identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handlers) handleKreditsLog(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !bind(w, r, &req) {
		return
	}
	logs, err := h.kredits.GetLog(r.Context(), req.Identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if logs == nil {
		logs = []domain.KreditsLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handlers) handleKreditsUpgradeTier(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !bind(w, r, &req) {
		return
	}
	account, err := h.kredits.UpgradeTier(r.Context(), req.Identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handlers) handleUserBalances(w http.ResponseWriter, r *http.Request) {
	var req balancesRequest
	if !bind(w, r, &req) {
		return
	}
	stats, err := h.balances.UserBalances(r.Context(), req.Identity, req.Range)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
