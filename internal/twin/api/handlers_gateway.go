package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wondertwin-ai/storefront/internal/payment"
	"github.com/wondertwin-ai/storefront/internal/twin/core"
	"github.com/wondertwin-ai/storefront/internal/twin/store"
)

const defaultDeclineReason = "Payment declined by issuer"

// GetGatewaySession handles GET /gateway/sessions/{id}.
func (h *Handler) GetGatewaySession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.state.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		core.Error(w, http.StatusNotFound, "gateway session not found")
		return
	}
	core.JSON(w, http.StatusOK, sess)
}

// GatewayPay handles POST /gateway/sessions/{id}/pay: the buyer completes
// payment and the gateway returns a signed receipt.
func (h *Handler) GatewayPay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	paymentID := "pay_" + uuid.NewString()
	sig := payment.Sign(id, paymentID, h.cfg.Secret)

	var status string
	found := h.state.Sessions.Update(id, func(s *store.GatewaySession) bool {
		status = s.Status
		if s.Status == store.SessionPaid {
			return false
		}
		s.Status = store.SessionPaid
		s.PaymentID = paymentID
		s.Signature = sig
		return true
	})
	if !found {
		core.Error(w, http.StatusNotFound, "gateway session not found")
		return
	}
	if status == store.SessionPaid {
		core.Error(w, http.StatusConflict, "gateway session already paid")
		return
	}

	h.logger.Info("gateway payment captured", zap.String("gateway_order_id", id), zap.String("payment_id", paymentID))
	core.JSON(w, http.StatusOK, map[string]any{
		"status": "paid",
		"receipt": payment.Receipt{
			GatewayOrderID:   id,
			GatewayPaymentID: paymentID,
			Signature:        sig,
		},
	})
}

// GatewayDismiss handles POST /gateway/sessions/{id}/dismiss. The session
// stays open so the buyer can try again.
func (h *Handler) GatewayDismiss(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.state.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		core.Error(w, http.StatusNotFound, "gateway session not found")
		return
	}
	if sess.Status == store.SessionPaid {
		core.Error(w, http.StatusConflict, "gateway session already paid")
		return
	}
	core.JSON(w, http.StatusOK, map[string]any{"status": "dismissed"})
}

// GatewayFail handles POST /gateway/sessions/{id}/fail. An optional
// {"reason": "..."} body overrides the decline reason.
func (h *Handler) GatewayFail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	reason := body.Reason
	if reason == "" {
		reason = defaultDeclineReason
	}

	var status string
	found := h.state.Sessions.Update(chi.URLParam(r, "id"), func(s *store.GatewaySession) bool {
		status = s.Status
		if s.Status == store.SessionPaid {
			return false
		}
		s.Status = store.SessionFailed
		return true
	})
	if !found {
		core.Error(w, http.StatusNotFound, "gateway session not found")
		return
	}
	if status == store.SessionPaid {
		core.Error(w, http.StatusConflict, "gateway session already paid")
		return
	}
	core.JSON(w, http.StatusOK, map[string]any{"status": "failed", "reason": reason})
}
