// Package guest manages the guest buyer's verified session: the OTP round
// trip, the persisted bearer token, startup re-validation and logout on 401.
package guest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/wondertwin-ai/storefront/internal/api"
	"github.com/wondertwin-ai/storefront/internal/localstore"
)

// TokenKey is the local storage key of the persisted session.
const TokenKey = "guest.token"

// ErrNoSession is returned by operations that need a verified guest.
var ErrNoSession = errors.New("no guest session")

// Client is the subset of the guest-identity API the manager uses.
// *api.Client satisfies it.
type Client interface {
	RequestGuestOTP(ctx context.Context, id api.GuestIdentifier) (*api.OTPChallenge, error)
	VerifyGuestOTP(ctx context.Context, id api.GuestIdentifier, code string) (*api.GuestSession, error)
	ValidateGuestToken(ctx context.Context, token string) (*api.GuestSession, error)
	GuestDownloads(ctx context.Context, token string) ([]api.Download, error)
}

// Manager holds at most one guest session. It is safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	session *api.GuestSession
	client  Client
	storage localstore.Storage
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager and loads any persisted session without contacting
// the server. Call Restore to re-validate it.
func New(client Client, storage localstore.Storage, opts ...Option) *Manager {
	m := &Manager{
		client:  client,
		storage: storage,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	m.load()
	return m
}

// RequestOTP sends a one-time code to exactly one of email or phone.
func (m *Manager) RequestOTP(ctx context.Context, id api.GuestIdentifier) (*api.OTPChallenge, error) {
	id, err := normalize(id)
	if err != nil {
		return nil, err
	}
	ch, err := m.client.RequestGuestOTP(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("requesting code for %s: %w", id, err)
	}
	return ch, nil
}

// VerifyOTP exchanges code for a session and persists it.
func (m *Manager) VerifyOTP(ctx context.Context, id api.GuestIdentifier, code string) (*api.GuestSession, error) {
	id, err := normalize(id)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("code is required")
	}
	sess, err := m.client.VerifyGuestOTP(ctx, id, code)
	if err != nil {
		return nil, fmt.Errorf("verifying code for %s: %w", id, err)
	}
	if sess.Token == "" {
		return nil, errors.New("verification returned no token")
	}
	if sess.Email == "" {
		sess.Email = id.Email
	}
	if sess.Phone == "" {
		sess.Phone = id.Phone
	}

	m.mu.Lock()
	m.session = copySession(sess)
	m.persistLocked()
	m.mu.Unlock()

	m.logger.Info("guest verified", zap.String("guest", id.String()))
	return copySession(sess), nil
}

// Restore re-validates a persisted token. A token whose exp claim has
// passed is dropped without a network call; a 401 logs the guest out;
// any other error keeps the token and is returned.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	token := m.Token()
	if token == "" {
		return false, nil
	}
	if m.expired(token) {
		m.logger.Info("guest token expired, discarding")
		m.Logout()
		return false, nil
	}

	sess, err := m.client.ValidateGuestToken(ctx, token)
	if err != nil {
		if api.IsUnauthorized(err) {
			m.logger.Info("guest token rejected, logging out")
			m.Logout()
			return false, nil
		}
		m.logger.Warn("guest token validation failed, keeping token", zap.Error(err))
		return true, fmt.Errorf("validating guest token: %w", err)
	}

	m.mu.Lock()
	if m.session != nil && m.session.Token == token {
		if sess.Email != "" {
			m.session.Email = sess.Email
		}
		if sess.Phone != "" {
			m.session.Phone = sess.Phone
		}
		if !sess.ExpiresAt.IsZero() {
			m.session.ExpiresAt = sess.ExpiresAt
		}
		m.persistLocked()
	}
	m.mu.Unlock()
	return true, nil
}

// Session returns a copy of the current session, or nil.
func (m *Manager) Session() *api.GuestSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copySession(m.session)
}

// Token returns the current bearer token, or "".
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.Token
}

// TokenSource adapts the manager for api.WithGuestTokenSource.
func (m *Manager) TokenSource() api.TokenSource {
	return func(context.Context) (string, error) { return m.Token(), nil }
}

// Active reports whether a session is held.
func (m *Manager) Active() bool {
	return m.Token() != ""
}

// Logout forgets the session locally.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	if err := m.storage.Remove(TokenKey); err != nil {
		m.logger.Warn("removing guest token failed", zap.Error(err))
	}
}

// HandleUnauthorized logs the guest out when err is a 401 for a request
// carrying the guest token and a session is held. A 401 on the buyer's own
// token says nothing about the guest session and is ignored. It reports
// whether it logged out.
func (m *Manager) HandleUnauthorized(err error) bool {
	if !api.IsGuestUnauthorized(err) || !m.Active() {
		return false
	}
	m.logger.Info("guest request unauthorized, logging out")
	m.Logout()
	return true
}

// Downloads lists the guest's purchased products.
func (m *Manager) Downloads(ctx context.Context) ([]api.Download, error) {
	token := m.Token()
	if token == "" {
		return nil, ErrNoSession
	}
	list, err := m.client.GuestDownloads(ctx, token)
	if err != nil {
		m.HandleUnauthorized(err)
		return nil, fmt.Errorf("listing downloads: %w", err)
	}
	return list, nil
}

// expired inspects the token's exp claim without verifying the signature.
// Opaque or claim-less tokens are left to the server.
func (m *Manager) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !m.now().Before(exp.Time)
}

func (m *Manager) load() {
	raw, err := m.storage.Get(TokenKey)
	if err != nil {
		if !errors.Is(err, localstore.ErrNotFound) {
			m.logger.Warn("reading guest token failed", zap.Error(err))
		}
		return
	}
	var sess api.GuestSession
	if err := json.Unmarshal(raw, &sess); err != nil || sess.Token == "" {
		m.logger.Warn("discarding unreadable guest token", zap.Error(err))
		return
	}
	m.session = &sess
}

func (m *Manager) persistLocked() {
	data, err := json.Marshal(m.session)
	if err != nil {
		m.logger.Warn("encoding guest token failed", zap.Error(err))
		return
	}
	if err := m.storage.Set(TokenKey, data); err != nil {
		m.logger.Warn("persisting guest token failed", zap.Error(err))
	}
}

func normalize(id api.GuestIdentifier) (api.GuestIdentifier, error) {
	id.Email = strings.TrimSpace(id.Email)
	id.Phone = strings.TrimSpace(id.Phone)
	switch {
	case id.Email != "" && id.Phone != "":
		return id, errors.New("give either an email or a phone, not both")
	case id.Email != "":
		if !ValidEmail(id.Email) {
			return id, fmt.Errorf("invalid email %q", id.Email)
		}
	case id.Phone != "":
		if !ValidPhone(id.Phone) {
			return id, fmt.Errorf("invalid phone %q", id.Phone)
		}
	default:
		return id, errors.New("an email or phone is required")
	}
	return id, nil
}

func copySession(s *api.GuestSession) *api.GuestSession {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
