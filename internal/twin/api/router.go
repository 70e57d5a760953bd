// Package api implements the storefront twin's commerce, guest-identity
// and gateway-simulator endpoints.
package api

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wondertwin-ai/storefront/internal/twin/core"
	"github.com/wondertwin-ai/storefront/internal/twin/store"
)

// Handler holds the API handler state.
type Handler struct {
	state  *store.State
	mw     *core.Middleware
	cfg    *core.Config
	tokens *tokenIssuer
	logger *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(s *store.State, mw *core.Middleware, cfg *core.Config, logger *zap.Logger) *Handler {
	cfg.Defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		state:  s,
		mw:     mw,
		cfg:    cfg,
		tokens: &tokenIssuer{secret: []byte(cfg.Secret), ttl: cfg.GuestTokenTTL, now: s.Clock.Now},
		logger: logger,
	}
}

// Routes mounts the API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.FaultInjection)

		r.Get("/products/{id}", h.GetProduct)
		r.Get("/stores/{slug}", h.GetStore)
		r.Post("/orders/validate-cart", h.ValidateCart)

		r.Group(func(r chi.Router) {
			r.Use(h.requireBuyer)
			r.Use(h.mw.Idempotency)
			r.Post("/orders", h.CreateOrder)
			r.Post("/payments/initiate", h.InitiatePayment)
			r.Post("/payments/free", h.CompleteFreeOrder)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.optionalGuest)
			r.Use(h.mw.Idempotency)
			r.Post("/orders/guest", h.CreateGuestOrder)
			r.Post("/payments/initiate/guest", h.InitiateGuestPayment)
			r.Post("/payments/free/guest", h.CompleteFreeGuestOrder)
		})

		r.Post("/payments/verify", h.VerifyPayment)

		r.Post("/guest/otp/request", h.RequestOTP)
		r.Post("/guest/otp/verify", h.VerifyOTP)
		r.Group(func(r chi.Router) {
			r.Use(h.requireGuest)
			r.Get("/guest/session", h.GuestSession)
			r.Get("/guest/downloads", h.GuestDownloads)
		})
	})

	// Gateway simulator, standing in for the hosted payment widget.
	r.Route("/gateway/sessions/{id}", func(r chi.Router) {
		r.Use(h.mw.FaultInjection)
		r.Get("/", h.GetGatewaySession)
		r.Post("/pay", h.GatewayPay)
		r.Post("/dismiss", h.GatewayDismiss)
		r.Post("/fail", h.GatewayFail)
	})

	r.Get("/admin/otp", h.AdminGetOTP)
}
