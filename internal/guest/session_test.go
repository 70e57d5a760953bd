package guest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wondertwin-ai/storefront/internal/api"
	"github.com/wondertwin-ai/storefront/internal/localstore"
)

type fakeClient struct {
	validateCalls int
	validateErr   error
	downloadsErr  error
	lastID        api.GuestIdentifier
	token         string
}

func (f *fakeClient) RequestGuestOTP(_ context.Context, id api.GuestIdentifier) (*api.OTPChallenge, error) {
	f.lastID = id
	return &api.OTPChallenge{Channel: "email", To: id.String()}, nil
}

func (f *fakeClient) VerifyGuestOTP(_ context.Context, id api.GuestIdentifier, code string) (*api.GuestSession, error) {
	if code != "123456" {
		return nil, &api.Error{StatusCode: http.StatusBadRequest, Message: "invalid code"}
	}
	return &api.GuestSession{Token: f.token}, nil
}

func (f *fakeClient) ValidateGuestToken(_ context.Context, token string) (*api.GuestSession, error) {
	f.validateCalls++
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	return &api.GuestSession{Token: token, Email: "server@b.co"}, nil
}

func (f *fakeClient) GuestDownloads(_ context.Context, token string) ([]api.Download, error) {
	if f.downloadsErr != nil {
		return nil, f.downloadsErr
	}
	return []api.Download{{ProductID: "p1"}}, nil
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "guest",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestVerifyPersistsAndRestores(t *testing.T) {
	storage := localstore.NewMemory()
	fc := &fakeClient{token: signed(t, time.Now().Add(time.Hour))}
	m := New(fc, storage)

	_, err := m.RequestOTP(context.Background(), api.GuestIdentifier{Email: " a@b.co "})
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", fc.lastID.Email)

	sess, err := m.VerifyOTP(context.Background(), api.GuestIdentifier{Email: "a@b.co"}, "123456")
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", sess.Email)
	assert.True(t, m.Active())

	reloaded := New(fc, storage)
	assert.Equal(t, fc.token, reloaded.Token())

	ok, err := reloaded.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, fc.validateCalls)
	assert.Equal(t, "server@b.co", reloaded.Session().Email)
}

func TestVerifyWrongCodeKeepsNoSession(t *testing.T) {
	m := New(&fakeClient{token: "x"}, localstore.NewMemory())
	_, err := m.VerifyOTP(context.Background(), api.GuestIdentifier{Email: "a@b.co"}, "000000")
	require.Error(t, err)
	assert.False(t, m.Active())
}

func TestIdentifierValidation(t *testing.T) {
	m := New(&fakeClient{}, localstore.NewMemory())
	ctx := context.Background()

	_, err := m.RequestOTP(ctx, api.GuestIdentifier{})
	assert.Error(t, err)
	_, err = m.RequestOTP(ctx, api.GuestIdentifier{Email: "a@b.co", Phone: "5550100"})
	assert.Error(t, err)
	_, err = m.RequestOTP(ctx, api.GuestIdentifier{Email: "nope"})
	assert.Error(t, err)
	_, err = m.RequestOTP(ctx, api.GuestIdentifier{Phone: "12"})
	assert.Error(t, err)
	_, err = m.RequestOTP(ctx, api.GuestIdentifier{Phone: "+1 (555) 010-0100"})
	assert.NoError(t, err)
}

func TestRestoreDropsExpiredTokenWithoutNetwork(t *testing.T) {
	storage := localstore.NewMemory()
	fc := &fakeClient{token: signed(t, time.Now().Add(-time.Minute))}
	m := New(fc, storage)
	_, err := m.VerifyOTP(context.Background(), api.GuestIdentifier{Email: "a@b.co"}, "123456")
	require.NoError(t, err)

	ok, err := m.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, fc.validateCalls)
	assert.False(t, m.Active())
	_, err = storage.Get(TokenKey)
	assert.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestRestoreUnauthorizedLogsOut(t *testing.T) {
	fc := &fakeClient{token: "opaque-token"}
	m := New(fc, localstore.NewMemory())
	_, err := m.VerifyOTP(context.Background(), api.GuestIdentifier{Phone: "5550100"}, "123456")
	require.NoError(t, err)

	fc.validateErr = &api.Error{StatusCode: http.StatusUnauthorized}
	ok, err := m.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, fc.validateCalls)
	assert.False(t, m.Active())
}

func TestRestoreTransientErrorKeepsToken(t *testing.T) {
	fc := &fakeClient{token: "opaque-token"}
	m := New(fc, localstore.NewMemory())
	_, err := m.VerifyOTP(context.Background(), api.GuestIdentifier{Email: "a@b.co"}, "123456")
	require.NoError(t, err)

	fc.validateErr = errors.New("connection refused")
	ok, err := m.Restore(context.Background())
	assert.Error(t, err)
	assert.True(t, ok)
	assert.Equal(t, "opaque-token", m.Token())
}

func TestRestoreWithoutSession(t *testing.T) {
	fc := &fakeClient{}
	ok, err := New(fc, localstore.NewMemory()).Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, fc.validateCalls)
}

func TestHandleUnauthorized(t *testing.T) {
	fc := &fakeClient{token: "opaque-token"}
	m := New(fc, localstore.NewMemory())

	assert.False(t, m.HandleUnauthorized(&api.Error{StatusCode: http.StatusUnauthorized, Credential: api.CredentialGuest}), "no session to drop")

	_, err := m.VerifyOTP(context.Background(), api.GuestIdentifier{Email: "a@b.co"}, "123456")
	require.NoError(t, err)
	assert.False(t, m.HandleUnauthorized(&api.Error{StatusCode: http.StatusInternalServerError}))
	assert.True(t, m.Active())
	assert.True(t, m.HandleUnauthorized(&api.Error{StatusCode: http.StatusUnauthorized, Credential: api.CredentialGuest}))
	assert.False(t, m.Active())
}

func TestBuyerUnauthorizedKeepsGuestSession(t *testing.T) {
	fc := &fakeClient{token: "opaque-token"}
	m := New(fc, localstore.NewMemory())
	_, err := m.VerifyOTP(context.Background(), api.GuestIdentifier{Email: "a@b.co"}, "123456")
	require.NoError(t, err)

	buyer401 := fmt.Errorf("create order: %w", &api.Error{StatusCode: http.StatusUnauthorized, Credential: api.CredentialBuyer})
	assert.False(t, m.HandleUnauthorized(buyer401))
	assert.False(t, m.HandleUnauthorized(&api.Error{StatusCode: http.StatusUnauthorized}), "sent without a token")
	assert.True(t, m.Active())
	assert.Equal(t, "opaque-token", m.Token())
}

func TestDownloads(t *testing.T) {
	fc := &fakeClient{token: "opaque-token"}
	m := New(fc, localstore.NewMemory())

	_, err := m.Downloads(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = m.VerifyOTP(context.Background(), api.GuestIdentifier{Email: "a@b.co"}, "123456")
	require.NoError(t, err)
	list, err := m.Downloads(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	fc.downloadsErr = &api.Error{StatusCode: http.StatusUnauthorized, Credential: api.CredentialGuest}
	_, err = m.Downloads(context.Background())
	assert.Error(t, err)
	assert.False(t, m.Active())
}

func TestCorruptPersistedTokenIgnored(t *testing.T) {
	storage := localstore.NewMemory()
	require.NoError(t, storage.Set(TokenKey, []byte("{not json")))
	assert.False(t, New(&fakeClient{}, storage).Active())
}

func TestValidators(t *testing.T) {
	for _, s := range []string{"a@b.co", "first.last@sub.example.com"} {
		assert.True(t, ValidEmail(s), s)
	}
	for _, s := range []string{"", "a@b", "a b@c.d", "@b.co", "a@.co@"} {
		assert.False(t, ValidEmail(s), s)
	}
	for _, s := range []string{"555010", "+91 98765 43210", "(555) 010-0100", "1.555.010.0100"} {
		assert.True(t, ValidPhone(s), s)
	}
	for _, s := range []string{"", "12345", "1234567890123456", "555-CALL-NOW"} {
		assert.False(t, ValidPhone(s), s)
	}
}
