package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wondertwin-ai/storefront/internal/payment"
	"github.com/wondertwin-ai/storefront/internal/twin/core"
	"github.com/wondertwin-ai/storefront/internal/twin/store"
)

type paymentRequest struct {
	OrderID      string `json:"orderId"`
	GuestEmail   string `json:"guestEmail"`
	CustomAmount *int64 `json:"customAmount"`
}

type paymentSession struct {
	OrderID        string `json:"orderId"`
	GatewayOrderID string `json:"gatewayOrderId"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"keyId"`
	Description    string `json:"description,omitempty"`
}

// lookupOrder finds the order and checks the caller owns it, writing the
// error response otherwise.
func (h *Handler) lookupOrder(w http.ResponseWriter, id string, owns func(store.Order) bool) (store.Order, bool) {
	if id == "" {
		core.Error(w, http.StatusBadRequest, "orderId is required")
		return store.Order{}, false
	}
	o, ok := h.state.Orders.Get(id)
	if !ok || !owns(o) {
		core.Error(w, http.StatusNotFound, "order not found")
		return store.Order{}, false
	}
	if o.Status != store.OrderPending {
		core.Error(w, http.StatusConflict, "order is already "+o.Status)
		return store.Order{}, false
	}
	return o, true
}

func (h *Handler) ownsAsBuyer(r *http.Request) func(store.Order) bool {
	buyer := buyerFrom(r.Context())
	return func(o store.Order) bool { return o.BuyerID == buyer }
}

func ownsAsGuest(email string) func(store.Order) bool {
	email = strings.TrimSpace(email)
	return func(o store.Order) bool { return o.IsGuest() && email != "" && strings.EqualFold(o.GuestEmail, email) }
}

func (h *Handler) initiate(w http.ResponseWriter, order store.Order, custom *int64) {
	amount := order.TotalAmount
	if custom != nil {
		if *custom <= 0 {
			core.Error(w, http.StatusBadRequest, "customAmount must be positive")
			return
		}
		if *custom < order.TotalAmount {
			core.Error(w, http.StatusBadRequest, "customAmount is below the order total")
			return
		}
		amount = *custom
	}
	if amount <= 0 {
		core.Error(w, http.StatusBadRequest, "order total is zero; complete it as a free order")
		return
	}

	sess := store.GatewaySession{
		ID:        "gord_" + uuid.NewString(),
		OrderID:   order.ID,
		Amount:    amount,
		Currency:  order.Currency,
		Status:    store.SessionCreated,
		CreatedAt: h.state.Clock.Now(),
	}
	h.state.Sessions.Set(sess.ID, sess)
	h.logger.Info("payment initiated",
		zap.String("order_id", order.ID),
		zap.String("gateway_order_id", sess.ID),
		zap.Int64("amount", amount),
	)
	core.JSON(w, http.StatusOK, paymentSession{
		OrderID:        order.ID,
		GatewayOrderID: sess.ID,
		Amount:         amount,
		Currency:       sess.Currency,
		KeyID:          h.cfg.KeyID,
		Description:    pluralItems(len(order.ProductIDs)),
	})
}

func pluralItems(n int) string {
	if n == 1 {
		return "1 item"
	}
	return strconv.Itoa(n) + " items"
}

// InitiatePayment handles POST /payments/initiate.
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !decode(w, r, &req) {
		return
	}
	order, ok := h.lookupOrder(w, req.OrderID, h.ownsAsBuyer(r))
	if !ok {
		return
	}
	h.initiate(w, order, req.CustomAmount)
}

// InitiateGuestPayment handles POST /payments/initiate/guest.
func (h *Handler) InitiateGuestPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !decode(w, r, &req) {
		return
	}
	order, ok := h.lookupOrder(w, req.OrderID, ownsAsGuest(req.GuestEmail))
	if !ok {
		return
	}
	h.initiate(w, order, req.CustomAmount)
}

// markPaid settles a pending order. It reports false when the order was
// no longer pending.
func (h *Handler) markPaid(orderID string, amount int64) (store.Order, bool) {
	now := h.state.Clock.Now()
	var out store.Order
	settled := false
	h.state.Orders.Update(orderID, func(o *store.Order) bool {
		if o.Status != store.OrderPending {
			return false
		}
		o.Status = store.OrderPaid
		o.PaidAmount = amount
		o.PaidAt = &now
		out = *o
		settled = true
		return true
	})
	return out, settled
}

type verifyRequest struct {
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	GatewaySignature string `json:"gatewaySignature"`
}

// VerifyPayment handles POST /payments/verify. A receipt that does not
// check out is answered with success=false rather than an error status.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decode(w, r, &req) {
		return
	}
	fail := func(reason string) {
		h.logger.Warn("payment verification failed",
			zap.String("gateway_order_id", req.GatewayOrderID),
			zap.String("reason", reason),
		)
		core.JSON(w, http.StatusOK, map[string]any{"success": false, "message": reason})
	}

	sess, ok := h.state.Sessions.Get(req.GatewayOrderID)
	if !ok {
		fail("unknown gateway order")
		return
	}
	if !payment.Verify(req.GatewayOrderID, req.GatewayPaymentID, req.GatewaySignature, h.cfg.Secret) {
		fail("signature mismatch")
		return
	}
	if sess.Status != store.SessionPaid || sess.PaymentID != req.GatewayPaymentID {
		fail("payment not captured")
		return
	}

	if !sess.Verified {
		h.markPaid(sess.OrderID, sess.Amount)
		h.state.Sessions.Update(sess.ID, func(s *store.GatewaySession) bool {
			s.Verified = true
			return true
		})
	}
	core.JSON(w, http.StatusOK, map[string]any{"success": true, "orderId": sess.OrderID})
}

type freeResult struct {
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	AccessToken string `json:"accessToken,omitempty"`
}

func (h *Handler) completeFree(w http.ResponseWriter, order store.Order) {
	if order.TotalAmount != 0 {
		core.Error(w, http.StatusBadRequest, "order is not free")
		return
	}
	paid, ok := h.markPaid(order.ID, 0)
	if !ok {
		core.Error(w, http.StatusConflict, "order is no longer pending")
		return
	}
	h.logger.Info("free order completed", zap.String("order_id", paid.ID))
	core.JSON(w, http.StatusOK, freeResult{OrderID: paid.ID, Status: paid.Status, AccessToken: paid.AccessToken})
}

// CompleteFreeOrder handles POST /payments/free.
func (h *Handler) CompleteFreeOrder(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !decode(w, r, &req) {
		return
	}
	order, ok := h.lookupOrder(w, req.OrderID, h.ownsAsBuyer(r))
	if !ok {
		return
	}
	h.completeFree(w, order)
}

// CompleteFreeGuestOrder handles POST /payments/free/guest.
func (h *Handler) CompleteFreeGuestOrder(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !decode(w, r, &req) {
		return
	}
	order, ok := h.lookupOrder(w, req.OrderID, ownsAsGuest(req.GuestEmail))
	if !ok {
		return
	}
	h.completeFree(w, order)
}
