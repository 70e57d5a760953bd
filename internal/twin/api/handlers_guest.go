package api

import (
	"crypto/rand"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wondertwin-ai/storefront/internal/guest"
	"github.com/wondertwin-ai/storefront/internal/twin/core"
	"github.com/wondertwin-ai/storefront/internal/twin/store"
)

const (
	otpLength      = 6
	maxOTPAttempts = 5
)

type otpRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// recipient normalizes the request to one address and its channel.
func (req otpRequest) recipient() (to, channel, problem string) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	phone := strings.TrimSpace(req.Phone)
	switch {
	case email != "" && phone != "":
		return "", "", "give either email or phone, not both"
	case email != "":
		if !guest.ValidEmail(email) {
			return "", "", "email is not valid"
		}
		return email, "email", ""
	case phone != "":
		if !guest.ValidPhone(phone) {
			return "", "", "phone is not valid"
		}
		return phone, "sms", ""
	default:
		return "", "", "email or phone is required"
	}
}

func generateCode(length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String()
}

// latestOTP returns the most recently created code sent to to in one of
// the given statuses.
func (h *Handler) latestOTP(to string, statuses ...string) (store.OTP, bool) {
	var best store.OTP
	found := false
	for _, o := range h.state.OTPs.Filter(func(o store.OTP) bool { return o.To == to }) {
		match := len(statuses) == 0
		for _, s := range statuses {
			match = match || o.Status == s
		}
		if match && (!found || !o.CreatedAt.Before(best.CreatedAt)) {
			best, found = o, true
		}
	}
	return best, found
}

// RequestOTP handles POST /guest/otp/request.
func (h *Handler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !decode(w, r, &req) {
		return
	}
	to, channel, problem := req.recipient()
	if problem != "" {
		core.Error(w, http.StatusBadRequest, problem)
		return
	}

	now := h.state.Clock.Now()
	otp := store.OTP{
		ID:        "otp_" + uuid.NewString(),
		To:        to,
		Channel:   channel,
		Code:      generateCode(otpLength),
		Status:    store.OTPPending,
		CreatedAt: now,
		ExpiresAt: now.Add(h.state.OTPTTL),
	}
	h.state.OTPs.Set(otp.ID, otp)
	h.logger.Info("otp sent", zap.String("to", to), zap.String("channel", channel))

	core.JSON(w, http.StatusCreated, map[string]any{
		"channel":   channel,
		"to":        to,
		"expiresAt": otp.ExpiresAt,
	})
}

// VerifyOTP handles POST /guest/otp/verify and issues a guest token.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !decode(w, r, &req) {
		return
	}
	to, channel, problem := req.recipient()
	if problem != "" {
		core.Error(w, http.StatusBadRequest, problem)
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		core.Error(w, http.StatusBadRequest, "code is required")
		return
	}

	pending, ok := h.latestOTP(to, store.OTPPending)
	if !ok {
		core.Error(w, http.StatusBadRequest, "no pending code for "+to)
		return
	}

	now := h.state.Clock.Now()
	var status string
	h.state.OTPs.Update(pending.ID, func(o *store.OTP) bool {
		switch {
		case o.Status != store.OTPPending:
			status = "stale"
			return false
		case now.After(o.ExpiresAt):
			o.Status = store.OTPExpired
		case o.Code == code:
			o.Status = store.OTPApproved
		default:
			o.Attempts++
			if o.Attempts >= maxOTPAttempts {
				o.Status = store.OTPLocked
			}
		}
		status = o.Status
		if status == store.OTPPending {
			status = "mismatch"
		}
		return true
	})

	switch status {
	case store.OTPApproved:
	case store.OTPExpired:
		core.Error(w, http.StatusBadRequest, "code has expired")
		return
	case store.OTPLocked:
		core.Error(w, http.StatusBadRequest, "too many attempts; request a new code")
		return
	default:
		core.Error(w, http.StatusBadRequest, "invalid code")
		return
	}

	var email, phone string
	if channel == "email" {
		email = to
	} else {
		phone = to
	}
	token, exp, err := h.tokens.issue(email, phone)
	if err != nil {
		core.Error(w, http.StatusInternalServerError, "failed to issue token: "+err.Error())
		return
	}
	h.logger.Info("guest verified", zap.String("to", to))
	core.JSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"email":     email,
		"phone":     phone,
		"expiresAt": exp,
	})
}

// GuestSession handles GET /guest/session.
func (h *Handler) GuestSession(w http.ResponseWriter, r *http.Request) {
	claims := guestFrom(r.Context())
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	core.JSON(w, http.StatusOK, map[string]any{
		"token":     bearer(r),
		"email":     claims.Email,
		"phone":     claims.Phone,
		"expiresAt": exp,
	})
}

type download struct {
	OrderID     string    `json:"orderId"`
	ProductID   string    `json:"productId"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PurchasedAt time.Time `json:"purchasedAt"`
}

// GuestDownloads handles GET /guest/downloads: every product in a paid
// guest order placed under the token's email or phone.
func (h *Handler) GuestDownloads(w http.ResponseWriter, r *http.Request) {
	claims := guestFrom(r.Context())
	orders := h.state.Orders.Filter(func(o store.Order) bool {
		if o.Status != store.OrderPaid || !o.IsGuest() {
			return false
		}
		return (claims.Email != "" && strings.EqualFold(o.GuestEmail, claims.Email)) ||
			(claims.Phone != "" && o.GuestPhone == claims.Phone)
	})

	out := []download{}
	for _, o := range orders {
		purchased := o.CreatedAt
		if o.PaidAt != nil {
			purchased = *o.PaidAt
		}
		for _, id := range o.ProductIDs {
			p, ok := h.state.Products.Get(id)
			if !ok {
				continue
			}
			out = append(out, download{OrderID: o.ID, ProductID: p.ID, Title: p.Title, URL: p.DownloadURL, PurchasedAt: purchased})
		}
	}
	core.JSON(w, http.StatusOK, map[string]any{"downloads": out})
}

// AdminGetOTP handles GET /admin/otp?to= and returns the latest code sent.
func (h *Handler) AdminGetOTP(w http.ResponseWriter, r *http.Request) {
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if to == "" {
		core.Error(w, http.StatusBadRequest, "'to' query parameter is required")
		return
	}
	if strings.Contains(to, "@") {
		to = strings.ToLower(to)
	}
	otp, ok := h.latestOTP(to)
	if !ok {
		core.JSON(w, http.StatusOK, map[string]any{"to": to, "found": false})
		return
	}
	core.JSON(w, http.StatusOK, map[string]any{
		"to":     to,
		"code":   otp.Code,
		"status": otp.Status,
		"found":  true,
	})
}
