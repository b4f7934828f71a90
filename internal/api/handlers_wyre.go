package api

import (
	"encoding/json"
	"net/http"

	"github.com/kash/onboarding-service/internal/app"
	"github.com/kash/onboarding-service/pkg/wyre"
)

type wyreKycDetailsRequest struct {
	Identity string              `json:"identity" validate:"required"`
	Fields   []wyre.ProfileField `json:"profileFields" validate:"required,min=1,dive"`
	Address  any                 `json:"address" validate:"required"`
}

type wyreKycUpdateRequest struct {
	Identity string              `json:"identity" validate:"required"`
	Fields   []wyre.ProfileField `json:"profileFields" validate:"required,min=1,dive"`
}

type wyreUploadRequest struct {
	Identity        string         `json:"identity" validate:"required"`
	FieldID         string         `json:"fieldId" validate:"required"`
	DocumentType    string         `json:"documentType"`
	DocumentSubType string         `json:"documentSubType"`
	File            app.FileUpload `json:"file"`
}

type wyrePaymentRequest struct {
	Identity string `json:"identity" validate:"required"`
	Metadata string `json:"metadata" validate:"required"`
}

type wyreTransferQuoteRequest struct {
	Identity            string `json:"identity" validate:"required"`
	PaymentMethod       string `json:"paymentMethod" validate:"required"`
	DestinationAddress  string `json:"destAddress" validate:"required"`
	DestinationCurrency string `json:"destCurrency" validate:"required"`
	Amount              string `json:"amount" validate:"required,numeric"`
}

type wyreConfirmRequest struct {
	Identity   string `json:"identity" validate:"required"`
	TransferID string `json:"transferId" validate:"required"`
}

type wyreAccountResponse struct {
	AccountID string `json:"account_id"`
}

type linkTokenResponse struct {
	LinkToken string `json:"link_token"`
}

func (h *Handlers) writeRaw(w http.ResponseWriter, r *http.Request, raw json.RawMessage, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

func (h *Handlers) handleWyreCreateUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := queryIdentity(w, r)
	if !ok {
		return
	}
	id, err := h.wyre.CreateUser(r.Context(), identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wyreAccountResponse{AccountID: id})
}

func (h *Handlers) handleWyreKycDetails(w http.ResponseWriter, r *http.Request) {
	var req wyreKycDetailsRequest
	if !bind(w, r, &req) {
		return
	}
	step, err := h.wyre.SubmitKycDetails(r.Context(), req.Identity, req.Fields, req.Address)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (h *Handlers) handleWyreGetStep(w http.ResponseWriter, r *http.Request) {
	identity, ok := queryIdentity(w, r)
	if !ok {
		return
	}
	step, err := h.wyre.GetStep(r.Context(), identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (h *Handlers) handleWyreUploadDocument(w http.ResponseWriter, r *http.Request) {
	var req wyreUploadRequest
	if !bind(w, r, &req) {
		return
	}
	step, err := h.wyre.UploadDocument(r.Context(), app.WyreDocumentInput{
		Identity:        req.Identity,
		FieldID:         req.FieldID,
		DocumentType:    req.DocumentType,
		DocumentSubType: req.DocumentSubType,
		File:            req.File,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (h *Handlers) handleWyreKycUpdate(w http.ResponseWriter, r *http.Request) {
	var req wyreKycUpdateRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.wyre.UpdateKyc(r.Context(), req.Identity, req.Fields); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "KYC details updated"})
}

func (h *Handlers) handleWyreCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req wyrePaymentRequest
	if !bind(w, r, &req) {
		return
	}
	raw, err := h.wyre.CreatePaymentMethod(r.Context(), req.Identity, req.Metadata)
	h.writeRaw(w, r, raw, err)
}

func (h *Handlers) handleWyrePaymentMethods(w http.ResponseWriter, r *http.Request) {
	identity, ok := queryIdentity(w, r)
	if !ok {
		return
	}
	raw, err := h.wyre.ListPaymentMethods(r.Context(), identity)
	h.writeRaw(w, r, raw, err)
}

func (h *Handlers) handleWyreTransferQuote(w http.ResponseWriter, r *http.Request) {
	var req wyreTransferQuoteRequest
	if !bind(w, r, &req) {
		return
	}
	raw, err := h.wyre.CreateTransferQuote(r.Context(), app.TransferQuoteInput{
		Identity:            req.Identity,
		PaymentMethod:       req.PaymentMethod,
		DestinationAddress:  req.DestinationAddress,
		DestinationCurrency: req.DestinationCurrency,
		Amount:              req.Amount,
	})
	h.writeRaw(w, r, raw, err)
}

func (h *Handlers) handleWyreConfirmTransfer(w http.ResponseWriter, r *http.Request) {
	var req wyreConfirmRequest
	if !bind(w, r, &req) {
		return
	}
	raw, err := h.wyre.ConfirmTransfer(r.Context(), req.Identity, req.TransferID)
	h.writeRaw(w, r, raw, err)
}

func (h *Handlers) handleWyreAccountStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := queryIdentity(w, r)
	if !ok {
		return
	}
	raw, err := h.wyre.AccountStatus(r.Context(), identity)
	h.writeRaw(w, r, raw, err)
}

func (h *Handlers) handleWyreKycInfo(w http.ResponseWriter, r *http.Request) {
	identity, ok := queryIdentity(w, r)
	if !ok {
		return
	}
	raw, err := h.wyre.Account(r.Context(), identity)
	h.writeRaw(w, r, raw, err)
}

func (h *Handlers) handleWyreLinkToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.wyre.LinkToken(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, linkTokenResponse{LinkToken: token})
}
