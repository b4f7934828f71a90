/**
 * @description
 * HTTP router setup for the onboarding service using go-chi/chi. Routes are grouped
 * per provider; mutating onboarding routes share the per-identity rate limiter and
 * every vendor webhook is signature checked with that vendor's secret.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: router and standard middleware.
 * - github.com/go-chi/cors: CORS for the consumer app.
 */
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// WebhookSecrets holds the HMAC secret per webhook sender. An empty secret disables
// the check for that sender.
type WebhookSecrets struct {
	PrimeTrust string
	Baanx      string
	Solaris    string
}

// RouterOptions configures the cross-cutting middleware.
type RouterOptions struct {
	AllowedOrigins []string
	Webhooks       WebhookSecrets
	Limiter        RateLimiter
	Logger         *zap.Logger
}

// NewRouter creates a new chi router and registers the onboarding routes.
func NewRouter(h *Handlers, opts RouterOptions) *chi.Mux {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.handleHealth)

	limited := RateLimitByIdentity(opts.Limiter, "onboarding", log)

	r.Route("/prime-trust", func(r chi.Router) {
		r.With(VerifySignature(opts.Webhooks.PrimeTrust)).Post("/hook", h.handlePTHook)

		r.Post("/user/get-kyc-step", h.handlePTGetStep)
		r.Post("/user/kyc-status", h.handlePTKycStatus)
		r.Post("/user/connected-banks", h.handlePTConnectedBanks)
		r.Post("/user/off-ramp-details", h.handlePTOffRampDetails)
		r.Post("/user/account-balance", h.handlePTAccountBalance)
		r.Post("/business/get-step", h.handlePTGetBusinessStep)
		r.Post("/business/get-related-contacts", h.handlePTRelatedContacts)
		r.Post("/business/get-related-contacts-status", h.handlePTRelatedContactsStatus)

		r.Group(func(r chi.Router) {
			r.Use(limited)
			r.Post("/user/create", h.handlePTCreateUser)
			r.Post("/user/update", h.handlePTUpdateUser)
			r.Post("/user/create-payment-method", h.handlePTCreatePaymentMethod)
			r.Post("/user/kyc-check", h.handlePTKycCheck)
			r.Post("/user/buy-quote", h.handlePTBuyQuote)
			r.Post("/kyc/upload-documents", h.handlePTUploadDocument)
			r.Post("/business/create", h.handlePTCreateBusiness)
			r.Post("/business/questionnaire", h.handlePTQuestionnaire)
			r.Post("/business/update-step", h.handlePTUpdateBusinessStep)
			r.Post("/business/update-related-contact", h.handlePTUpdateRelatedContact)
			r.Post("/business/delete-related-contact", h.handlePTDeleteRelatedContact)
			r.Post("/business/kyc/upload-documents", h.handlePTUploadBusinessDocuments)
			r.Post("/business/kyc/create-related-contacts", h.handlePTCreateRelatedContact)
			r.Post("/business/kyc/update-related-contacts-documents", h.handlePTUpdateRelatedContactDocuments)
		})
	})

	r.Route("/baanx", func(r chi.Router) {
		r.With(VerifySignature(opts.Webhooks.Baanx)).Post("/user/kyc/status", h.handleBaanxKycStatus)

		r.Group(func(r chi.Router) {
			r.Use(limited)
			r.Post("/user", h.handleBaanxCreateUser)
			r.Post("/user/session", h.handleBaanxSession)
			r.Post("/user/kyc", h.handleBaanxSubmitKyc)
			r.Post("/user/kyc/pass", h.handleBaanxPassKyc)
		})
	})

	r.Route("/wyre", func(r chi.Router) {
		r.Get("/user/get-kyc-step", h.handleWyreGetStep)
		r.Get("/user/payment-methods", h.handleWyrePaymentMethods)
		r.Get("/user/account-status", h.handleWyreAccountStatus)
		r.Get("/user/kyc-info", h.handleWyreKycInfo)
		r.Get("/plaid/link-token", h.handleWyreLinkToken)

		r.Group(func(r chi.Router) {
			r.Use(limited)
			r.Post("/user/create", h.handleWyreCreateUser)
			r.Post("/user/kyc-details", h.handleWyreKycDetails)
			r.Post("/user/upload-documents", h.handleWyreUploadDocument)
			r.Post("/user/kyc-update", h.handleWyreKycUpdate)
			r.Post("/user/create-payment", h.handleWyreCreatePayment)
			r.Post("/user/create-transfer-quote", h.handleWyreTransferQuote)
			r.Post("/user/confirm-transfer-quote", h.handleWyreConfirmTransfer)
		})
	})

	r.Route("/solaris", func(r chi.Router) {
		r.With(VerifySignature(opts.Webhooks.Solaris)).Post("/webhooks/identification", h.handleSolarisIdentificationHook)

		r.Route("/persons", func(r chi.Router) {
			r.Get("/me", h.handleSolarisMe)
			r.Get("/account/get", h.handleSolarisGetAccount)

			r.Group(func(r chi.Router) {
				r.Use(limited)
				r.Post("/", h.handleSolarisCreatePerson)
				r.Post("/identification", h.handleSolarisIdentification)
				r.Post("/phone/authorize", h.handleSolarisAuthorizePhone)
				r.Post("/phone/confirm", h.handleSolarisConfirmPhone)
				r.Post("/account", h.handleSolarisOpenAccount)
			})
		})
	})

	r.Post("/user/balances", h.handleUserBalances)

	r.Route("/kredits", func(r chi.Router) {
		r.Post("/create", h.handleKreditsCreate)
		r.Post("/deposit", h.handleKreditsDeposit)
		r.Post("/withdraw", h.handleKreditsWithdraw)
		r.Post("/get", h.handleKreditsGet)
		r.Post("/get-log", h.handleKreditsLog)
		r.Post("/upgrade-tier", h.handleKreditsUpgradeTier)
	})

	return r
}
