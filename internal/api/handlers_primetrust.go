package api

import (
	"encoding/json"
	"net/http"

	"github.com/kash/onboarding-service/internal/app"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ptAccountRequest struct {
	Identity   string         `json:"identity" validate:"required"`
	Attributes map[string]any `json:"attributes" validate:"required"`
}

type ptDataRequest struct {
	Identity string `json:"identity" validate:"required"`
	Data     any    `json:"data" validate:"required"`
}

type ptUploadRequest struct {
	Identity     string         `json:"identity" validate:"required"`
	Label        string         `json:"label" validate:"required"`
	Resubmitting bool           `json:"resubmitting"`
	File         app.FileUpload `json:"file" validate:"required"`
}

type ptFilesRequest struct {
	Identity string           `json:"identity" validate:"required"`
	Files    []app.FileUpload `json:"files" validate:"required,min=1,dive"`
}

type ptRelatedContactRequest struct {
	Identity        string           `json:"identity" validate:"required"`
	RelationshipsTo string           `json:"relationships_to" validate:"required"`
	Attributes      map[string]any   `json:"attributes" validate:"required"`
	Files           []app.FileUpload `json:"files" validate:"dive"`
}

type ptContactRequest struct {
	Identity  string `json:"identity" validate:"required"`
	ContactID string `json:"contact_id" validate:"required"`
}

type ptContactDataRequest struct {
	Identity  string `json:"identity" validate:"required"`
	ContactID string `json:"contact_id" validate:"required"`
	Data      any    `json:"data" validate:"required"`
}

type ptContactFilesRequest struct {
	Identity  string           `json:"identity" validate:"required"`
	ContactID string           `json:"contact_id" validate:"required"`
	Files     []app.FileUpload `json:"files" validate:"required,min=1,dive"`
}

type ptKycCheckRequest struct {
	Identity     string `json:"identity" validate:"required"`
	DocumentType string `json:"document_type" validate:"required"`
}

type ptPaymentMethodRequest struct {
	Identity string `json:"identity" validate:"required"`
	Metadata string `json:"metadata" validate:"required"`
}

type ptBuyQuoteRequest struct {
	Identity      string          `json:"identity" validate:"required"`
	Asset         string          `json:"asset"`
	Amount        decimal.Decimal `json:"amount"`
	WalletAddress string          `json:"wallet_address" validate:"required"`
}

type kycCheckResponse struct {
	CheckID string `json:"check_id"`
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
	Exists  bool            `json:"exists"`
}

func (h *Handlers) handlePTCreateUser(w http.ResponseWriter, r *http.Request) {
	var req ptAccountRequest
	if !bind(w, r, &req) {
		return
	}
	view, err := h.primeTrust.CreateAccount(r.Context(), req.Identity, req.Attributes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if view.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, view)
}

func (h *Handlers) handlePTCreateBusiness(w http.ResponseWriter, r *http.Request) {
	var req ptAccountRequest
	if !bind(w, r, &req) {
		return
	}
	view, err := h.primeTrust.CreateBusinessAccount(r.Context(), req.Identity, req.Attributes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if view.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, view)
}

func (h *Handlers) handlePTUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req ptDataRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.primeTrust.UpdateKyc(r.Context(), req.Identity, req.Data); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "KYC details updated"})
}

func (h *Handlers) handlePTQuestionnaire(w http.ResponseWriter, r *http.Request) {
	var req ptDataRequest
	if !bind(w, r, &req) {
		return
	}
	step, err := h.primeTrust.UpdateBusinessQuestionnaire(r.Context(), req.Identity, req.Data)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (h *Handlers) handlePTGetStep(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !bind(w, r, &req) {
		return
	}
	step, err := h.primeTrust.GetStep(r.Context(), req.Identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (h *Handlers) handlePTGetBusinessStep(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !bind(w, r, &req) {
		return
	}
	step, err := h.primeTrust.GetBusinessStep(r.Context(), req.Identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (h *Handlers) handlePTUpdateBusinessStep(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !bind(w, r, &req) {
		return
	}
	step, err := h.primeTrust.UpdateBusinessStep(r.Context(), req.Identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (h *Handlers) handlePTUploadDocument(w http.ResponseWriter, r *http.Request) {
	var req ptUploadRequest
	if !bind(w, r, &req) {
		return
	}
	step, err := h.primeTrust.UploadDocument(r.Context(), app.UploadDocumentInput{
		Identity:     req.Identity,
		Label:        req.Label,
		File:         req.File,
		Resubmitting: req.Resubmitting,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (h *Handlers) handlePTUploadBusinessDocuments(w http.ResponseWriter, r *http.Request) {
	var req ptFilesRequest
	if !bind(w, r, &req) {
		return
	}
	step, err := h.primeTrust.UploadBusinessDocuments(r.Context(), req.Identity, req.Files)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (h *Handlers) handlePTCreateRelatedContact(w http.ResponseWriter, r *http.Request) {
	var req ptRelatedContactRequest
	if !bind(w, r, &req) {
		return
	}
	err := h.primeTrust.CreateRelatedContact(r.Context(), app.RelatedContactInput{
		Identity:        req.Identity,
		RelationshipsTo: req.RelationshipsTo,
		Attributes:      req.Attributes,
		Files:           req.Files,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Related contact created"})
}

func (h *Handlers) handlePTRelatedContacts(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !bind(w, r, &req) {
		return
	}
	contacts, err := h.primeTrust.RelatedContacts(r.Context(), req.Identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (h *Handlers) handlePTRelatedContactsStatus(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !bind(w, r, &req) {
		return
	}
	status, err := h.primeTrust.RelatedContactsStatus(r.Context(), req.Identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handlers) handlePTDeleteRelatedContact(w http.ResponseWriter, r *http.Request) {
	var req ptContactRequest
	if !bind(w, r, &req) {
		return
	}
	contacts, err := h.primeTrust.DeleteRelatedContact(r.Context(), req.Identity, req.ContactID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (h *Handlers) handlePTUpdateRelatedContact(w http.ResponseWriter, r *http.Request) {
	var req ptContactDataRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.primeTrust.UpdateRelatedContactInfo(r.Context(), req.Identity, req.ContactID, req.Data); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Related contact updated"})
}

func (h *Handlers) handlePTUpdateRelatedContactDocuments(w http.ResponseWriter, r *http.Request) {
	var req ptContactFilesRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.primeTrust.UpdateRelatedContactDocuments(r.Context(), req.Identity, req.ContactID, req.Files); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Related contact documents updated"})
}

func (h *Handlers) handlePTKycStatus(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !bind(w, r, &req) {
		return
	}
	status, err := h.primeTrust.KycStatus(r.Context(), req.Identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handlers) handlePTKycCheck(w http.ResponseWriter, r *http.Request) {
	var req ptKycCheckRequest
	if !bind(w, r, &req) {
		return
	}
	id, err := h.primeTrust.DocumentCheck(r.Context(), req.Identity, req.DocumentType)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, kycCheckResponse{CheckID: id})
}

func (h *Handlers) handlePTCreatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req ptPaymentMethodRequest
	if !bind(w, r, &req) {
		return
	}
	banks, err := h.primeTrust.CreatePaymentMethod(r.Context(), req.Identity, req.Metadata)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, banks)
}

func (h *Handlers) handlePTConnectedBanks(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !bind(w, r, &req) {
		return
	}
	banks, err := h.primeTrust.ConnectedBanks(r.Context(), req.Identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, banks)
}

func (h *Handlers) handlePTOffRampDetails(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !bind(w, r, &req) {
		return
	}
	details, err := h.primeTrust.OffRampDetails(r.Context(), req.Identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *Handlers) handlePTBuyQuote(w http.ResponseWriter, r *http.Request) {
	var req ptBuyQuoteRequest
	if !bind(w, r, &req) {
		return
	}
	res, err := h.primeTrust.BuyQuote(r.Context(), app.BuyQuoteInput{
		Identity:      req.Identity,
		Asset:         req.Asset,
		Amount:        req.Amount,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) handlePTAccountBalance(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !bind(w, r, &req) {
		return
	}
	balance, ok, err := h.primeTrust.USDBalance(r.Context(), req.Identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance, Exists: ok})
}

// handlePTHook answers 200 for every notification it can parse; processing errors
// are only logged so Prime Trust does not keep retrying.
func (h *Handlers) handlePTHook(w http.ResponseWriter, r *http.Request) {
	var evt app.PrimeTrustEvent
	limitBody(w, r)
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		writeBodyError(w, err, "Invalid webhook body")
		return
	}
	if err := h.webhooks.PrimeTrust(r.Context(), evt); err != nil {
		h.logger.Error("prime trust webhook failed",
			zap.String("resource_type", evt.ResourceType),
			zap.String("resource_id", evt.ResourceID),
			zap.Error(err),
		)
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}
