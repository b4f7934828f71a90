/**
 * @description
 * HTTP handlers for the onboarding service. Handlers parse and validate the request,
 * call the matching service and write the JSON response. Errors are mapped to status
 * codes in respond.go.
 *
 * @notes
 * - Callers are authenticated by the gateway; the acting user arrives as `identity`
 *   in the body (or the query string on GET routes).
 */
package api

import (
	"net/http"

	"go.uber.org/zap"
)

// Services groups the application services exposed over HTTP.
type Services struct {
	PrimeTrust PrimeTrustService
	Baanx      BaanxService
	Wyre       WyreService
	Solaris    SolarisService
	Webhooks   WebhookService
	Balances   BalanceService
	Kredits    KreditsService
}

// Handlers holds the services the route handlers call.
type Handlers struct {
	primeTrust PrimeTrustService
	baanx      BaanxService
	wyre       WyreService
	solaris    SolarisService
	webhooks   WebhookService
	balances   BalanceService
	kredits    KreditsService
	logger     *zap.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(s Services, logger *zap.Logger) *Handlers {
	return &Handlers{
		primeTrust: s.PrimeTrust,
		baanx:      s.Baanx,
		wyre:       s.Wyre,
		solaris:    s.Solaris,
		webhooks:   s.Webhooks,
		balances:   s.Balances,
		kredits:    s.Kredits,
		logger:     logger.Named("api"),
	}
}

type identityRequest struct {
	Identity string `json:"identity" validate:"required"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeServiceError(w, r, h.logger, err)
}

// queryIdentity reads identity from the query string, writing a 400 when absent.
func queryIdentity(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Validation failed", Fields: map[string]string{"identity": "required"}})
		return "", false
	}
	return identity, true
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("healthy"))
}
