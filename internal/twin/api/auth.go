package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wondertwin-ai/storefront/internal/twin/core"
)

const tokenIssuerName = "storefront-twin"

type ctxKey int

const (
	buyerKey ctxKey = iota
	guestKey
)

// guestClaims identifies a verified guest.
type guestClaims struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (ti *tokenIssuer) issue(email, phone string) (string, time.Time, error) {
	now := ti.now()
	exp := now.Add(ti.ttl)
	subject := email
	if subject == "" {
		subject = phone
	}
	claims := guestClaims{
		Email: email,
		Phone: phone,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuerName,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (ti *tokenIssuer) parse(token string) (*guestClaims, error) {
	claims := &guestClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return ti.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// requireBuyer accepts any non-empty bearer token as the buyer's identity.
func (h *Handler) requireBuyer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearer(r)
		if tok == "" {
			core.Error(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), buyerKey, tok)))
	})
}

// requireGuest demands a valid guest token.
func (h *Handler) requireGuest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := h.tokens.parse(bearer(r))
		if err != nil {
			core.Error(w, http.StatusUnauthorized, guestTokenMessage(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), guestKey, claims)))
	})
}

// optionalGuest lets anonymous requests through but rejects a presented
// token that does not validate.
func (h *Handler) optionalGuest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearer(r)
		if tok == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := h.tokens.parse(tok)
		if err != nil {
			core.Error(w, http.StatusUnauthorized, guestTokenMessage(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), guestKey, claims)))
	})
}

func guestTokenMessage(err error) string {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return "guest session expired"
	}
	return "invalid guest token"
}

func buyerFrom(ctx context.Context) string {
	id, _ := ctx.Value(buyerKey).(string)
	return id
}

func guestFrom(ctx context.Context) *guestClaims {
	c, _ := ctx.Value(guestKey).(*guestClaims)
	return c
}
