package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wondertwin-ai/storefront/internal/payment"
	"github.com/wondertwin-ai/storefront/internal/testutil"
	"github.com/wondertwin-ai/storefront/internal/twin"
	"github.com/wondertwin-ai/storefront/internal/twin/core"
	"github.com/wondertwin-ai/storefront/internal/twin/store"
)

const secret = "test-secret"

func setup(t *testing.T) (*testutil.TwinClient, *testutil.AdminClient, *store.State) {
	t.Helper()
	tw, state, err := twin.New(&core.Config{Secret: secret}, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(tw)
	t.Cleanup(srv.Close)
	tc := testutil.NewTwinClient(t, srv)
	return tc, testutil.NewAdminClient(tc), state
}

type order struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	TotalAmount int64    `json:"totalAmount"`
	ProductIDs  []string `json:"productIds"`
	AccessToken string   `json:"accessToken"`
}

type session struct {
	OrderID        string `json:"orderId"`
	GatewayOrderID string `json:"gatewayOrderId"`
	Amount         int64  `json:"amount"`
	KeyID          string `json:"keyId"`
}

type receipt struct {
	Status  string          `json:"status"`
	Reason  string          `json:"reason"`
	Receipt payment.Receipt `json:"receipt"`
}

func TestGetProductAndStore(t *testing.T) {
	tc, _, _ := setup(t)

	m := tc.Get("/products/prod_field_kit").AssertStatus(http.StatusOK).JSONMap()
	assert.Equal(t, "Field Recording Kit", m["title"])
	assert.Equal(t, float64(800), m["comparePrice"])
	assert.Equal(t, "aurora", m["store"].(map[string]any)["slug"])

	tc.Get("/products/prod_drum_loops").AssertStatus(http.StatusNotFound)
	tc.Get("/products/nope").AssertStatus(http.StatusNotFound)

	tc.Get("/stores/Inkwell").AssertStatus(http.StatusOK).AssertBodyContains("Inkwell Type")
	tc.Get("/stores/none").AssertStatus(http.StatusNotFound)
}

func TestValidateCartGroupsByStore(t *testing.T) {
	tc, _, _ := setup(t)

	var res struct {
		Valid  bool `json:"valid"`
		Stores []struct {
			StoreID        string `json:"storeId"`
			StoreName      string `json:"storeName"`
			StoreAvailable bool   `json:"storeAvailable"`
			Items          []struct {
				ProductID string   `json:"productId"`
				Valid     bool     `json:"valid"`
				Errors    []string `json:"errors"`
			} `json:"items"`
		} `json:"stores"`
		TotalItems   int `json:"totalItems"`
		ValidItems   int `json:"validItems"`
		InvalidItems int `json:"invalidItems"`
	}
	tc.Post("/orders/validate-cart", map[string]any{
		"productIds": []string{"prod_field_kit", "prod_serif", "prod_drum_loops", "prod_old_zine", "ghost", "prod_field_kit"},
	}).AssertStatus(http.StatusOK).JSON(&res)

	assert.False(t, res.Valid)
	assert.Equal(t, 5, res.TotalItems)
	assert.Equal(t, 2, res.ValidItems)
	assert.Equal(t, 3, res.InvalidItems)

	require.Len(t, res.Stores, 4)
	assert.Equal(t, "store_aurora", res.Stores[0].StoreID)
	require.Len(t, res.Stores[0].Items, 2)
	assert.Equal(t, []string{"Product is no longer available"}, res.Stores[0].Items[1].Errors)

	assert.Equal(t, "store_closed", res.Stores[2].StoreID)
	assert.False(t, res.Stores[2].StoreAvailable)
	assert.Equal(t, []string{"Store is not accepting orders"}, res.Stores[2].Items[0].Errors)

	assert.Equal(t, "Unknown store", res.Stores[3].StoreName)
	assert.Equal(t, []string{"Product not found"}, res.Stores[3].Items[0].Errors)
}

func TestCreateOrderRequiresAuth(t *testing.T) {
	tc, _, _ := setup(t)
	tc.Post("/orders", map[string]any{"productIds": []string{"prod_serif"}}).AssertStatus(http.StatusUnauthorized)
}

func TestCreateOrderRejectsInvalidCart(t *testing.T) {
	tc, _, _ := setup(t)
	buyer := tc.WithToken("user_1")
	buyer.Post("/orders", map[string]any{"productIds": []string{}}).AssertStatus(http.StatusBadRequest)
	buyer.Post("/orders", map[string]any{"productIds": []string{"prod_serif", "prod_drum_loops"}}).
		AssertStatus(http.StatusBadRequest).
		AssertBodyContains("prod_drum_loops")
}

func TestAuthenticatedPaidCheckout(t *testing.T) {
	tc, _, state := setup(t)
	buyer := tc.WithToken("user_1")

	var o order
	buyer.Post("/orders", map[string]any{"productIds": []string{"prod_field_kit", "prod_synth_pads", "prod_serif"}}).
		AssertStatus(http.StatusCreated).JSON(&o)
	assert.Equal(t, int64(1100), o.TotalAmount)
	assert.Equal(t, "pending", o.Status)

	tc.WithToken("user_2").Post("/payments/initiate", map[string]any{"orderId": o.ID}).AssertStatus(http.StatusNotFound)

	var s session
	buyer.Post("/payments/initiate", map[string]any{"orderId": o.ID}).AssertStatus(http.StatusOK).JSON(&s)
	assert.Equal(t, int64(1100), s.Amount)
	assert.NotEmpty(t, s.KeyID)

	var rc receipt
	tc.Post("/gateway/sessions/"+s.GatewayOrderID+"/pay", nil).AssertStatus(http.StatusOK).JSON(&rc)
	assert.Equal(t, "paid", rc.Status)
	assert.True(t, payment.Verify(rc.Receipt.GatewayOrderID, rc.Receipt.GatewayPaymentID, rc.Receipt.Signature, secret))

	tc.Post("/gateway/sessions/"+s.GatewayOrderID+"/pay", nil).AssertStatus(http.StatusConflict)

	m := buyer.Post("/payments/verify", rc.Receipt).AssertStatus(http.StatusOK).JSONMap()
	assert.Equal(t, true, m["success"])

	stored, _ := state.Orders.Get(o.ID)
	assert.Equal(t, store.OrderPaid, stored.Status)
	assert.Equal(t, int64(1100), stored.PaidAmount)

	buyer.Post("/payments/initiate", map[string]any{"orderId": o.ID}).AssertStatus(http.StatusConflict)

	var res struct {
		Stores []struct {
			Items []struct {
				Errors []string `json:"errors"`
			} `json:"items"`
		} `json:"stores"`
	}
	buyer.Post("/orders/validate-cart", map[string]any{"productIds": []string{"prod_serif"}}).JSON(&res)
	assert.Equal(t, []string{"You already own this product"}, res.Stores[0].Items[0].Errors)
}

func TestVerifyRejectsForgedReceipt(t *testing.T) {
	tc, _, _ := setup(t)
	buyer := tc.WithToken("user_1")

	var o order
	buyer.Post("/orders", map[string]any{"productIds": []string{"prod_serif"}}).JSON(&o)
	var s session
	buyer.Post("/payments/initiate", map[string]any{"orderId": o.ID}).JSON(&s)

	forged := payment.Receipt{GatewayOrderID: s.GatewayOrderID, GatewayPaymentID: "pay_x", Signature: payment.Sign(s.GatewayOrderID, "pay_x", "wrong")}
	m := buyer.Post("/payments/verify", forged).AssertStatus(http.StatusOK).JSONMap()
	assert.Equal(t, false, m["success"])

	// Correctly signed but never captured by the gateway.
	unpaid := payment.Receipt{GatewayOrderID: s.GatewayOrderID, GatewayPaymentID: "pay_x", Signature: payment.Sign(s.GatewayOrderID, "pay_x", secret)}
	m = buyer.Post("/payments/verify", unpaid).AssertStatus(http.StatusOK).JSONMap()
	assert.Equal(t, false, m["success"])
}

func TestCustomAmount(t *testing.T) {
	tc, _, _ := setup(t)
	buyer := tc.WithToken("user_1")
	var o order
	buyer.Post("/orders", map[string]any{"productIds": []string{"prod_serif"}}).JSON(&o)

	buyer.Post("/payments/initiate", map[string]any{"orderId": o.ID, "customAmount": 0}).AssertStatus(http.StatusBadRequest)
	buyer.Post("/payments/initiate", map[string]any{"orderId": o.ID, "customAmount": 499}).AssertStatus(http.StatusBadRequest)

	var s session
	buyer.Post("/payments/initiate", map[string]any{"orderId": o.ID, "customAmount": 750}).AssertStatus(http.StatusOK).JSON(&s)
	assert.Equal(t, int64(750), s.Amount)
}

func TestFreeOrder(t *testing.T) {
	tc, _, _ := setup(t)
	buyer := tc.WithToken("user_1")

	var o order
	buyer.Post("/orders", map[string]any{"productIds": []string{"prod_wallpaper"}}).AssertStatus(http.StatusCreated).JSON(&o)
	assert.Zero(t, o.TotalAmount)

	buyer.Post("/payments/initiate", map[string]any{"orderId": o.ID}).AssertStatus(http.StatusBadRequest)
	buyer.Post("/payments/free", map[string]any{"orderId": o.ID}).AssertStatus(http.StatusOK).AssertBodyContains(`"paid"`)
	buyer.Post("/payments/free", map[string]any{"orderId": o.ID}).AssertStatus(http.StatusConflict)

	var paid order
	buyer.Post("/orders", map[string]any{"productIds": []string{"prod_serif"}}).JSON(&paid)
	buyer.Post("/payments/free", map[string]any{"orderId": paid.ID}).AssertStatus(http.StatusBadRequest)
}

func TestGatewayDismissAndFail(t *testing.T) {
	tc, _, _ := setup(t)
	buyer := tc.WithToken("user_1")
	var o order
	buyer.Post("/orders", map[string]any{"productIds": []string{"prod_serif"}}).JSON(&o)
	var s session
	buyer.Post("/payments/initiate", map[string]any{"orderId": o.ID}).JSON(&s)

	tc.Post("/gateway/sessions/"+s.GatewayOrderID+"/dismiss", nil).AssertStatus(http.StatusOK).AssertBodyContains("dismissed")

	var rc receipt
	tc.Post("/gateway/sessions/"+s.GatewayOrderID+"/fail", map[string]string{"reason": "insufficient funds"}).
		AssertStatus(http.StatusOK).JSON(&rc)
	assert.Equal(t, "failed", rc.Status)
	assert.Equal(t, "insufficient funds", rc.Reason)

	tc.Get("/gateway/sessions/"+s.GatewayOrderID).AssertStatus(http.StatusOK).AssertBodyContains(`"failed"`)
	tc.Post("/gateway/sessions/missing/pay", nil).AssertStatus(http.StatusNotFound)
}

func verifyGuest(t *testing.T, tc *testutil.TwinClient, ac *testutil.AdminClient, email string) string {
	t.Helper()
	tc.Post("/guest/otp/request", map[string]string{"email": email}).AssertStatus(http.StatusCreated)
	code := ac.OTP(email)
	require.Len(t, code, 6)
	var out struct {
		Token string `json:"token"`
		Email string `json:"email"`
	}
	tc.Post("/guest/otp/verify", map[string]string{"email": email, "code": code}).AssertStatus(http.StatusOK).JSON(&out)
	require.NotEmpty(t, out.Token)
	return out.Token
}

func TestGuestCheckoutAndDownloads(t *testing.T) {
	tc, ac, _ := setup(t)
	token := verifyGuest(t, tc, ac, "Guest@Example.com")
	g := tc.WithToken(token)

	g.Get("/guest/session").AssertStatus(http.StatusOK).AssertBodyContains("guest@example.com")

	var o order
	g.Post("/orders/guest", map[string]any{"productIds": []string{"prod_field_kit"}, "guestEmail": "guest@example.com", "guestPhone": "+91 98765 43210"}).
		AssertStatus(http.StatusCreated).JSON(&o)
	assert.NotEmpty(t, o.AccessToken)

	tc.Post("/payments/initiate/guest", map[string]any{"orderId": o.ID, "guestEmail": "other@example.com"}).AssertStatus(http.StatusNotFound)

	var s session
	tc.Post("/payments/initiate/guest", map[string]any{"orderId": o.ID, "guestEmail": "GUEST@example.com"}).AssertStatus(http.StatusOK).JSON(&s)
	var rc receipt
	tc.Post("/gateway/sessions/"+s.GatewayOrderID+"/pay", nil).JSON(&rc)
	g.Post("/payments/verify", rc.Receipt).AssertStatus(http.StatusOK).AssertBodyContains(`"success":true`)

	var dl struct {
		Downloads []struct {
			ProductID string `json:"productId"`
			URL       string `json:"url"`
		} `json:"downloads"`
	}
	g.Get("/guest/downloads").AssertStatus(http.StatusOK).JSON(&dl)
	require.Len(t, dl.Downloads, 1)
	assert.Equal(t, "prod_field_kit", dl.Downloads[0].ProductID)
	assert.NotEmpty(t, dl.Downloads[0].URL)
}

func TestGuestOrderValidation(t *testing.T) {
	tc, _, _ := setup(t)
	tc.Post("/orders/guest", map[string]any{"productIds": []string{"prod_serif"}}).AssertStatus(http.StatusBadRequest)
	tc.Post("/orders/guest", map[string]any{"productIds": []string{"prod_serif"}, "guestEmail": "a@b.co", "guestPhone": "12"}).AssertStatus(http.StatusBadRequest)
	tc.WithToken("garbage").Post("/orders/guest", map[string]any{"productIds": []string{"prod_serif"}, "guestEmail": "a@b.co"}).AssertStatus(http.StatusUnauthorized)
}

func TestGuestTokenExpires(t *testing.T) {
	tc, ac, _ := setup(t)
	token := verifyGuest(t, tc, ac, "a@b.co")

	tc.WithToken(token).Get("/guest/session").AssertStatus(http.StatusOK)
	ac.AdvanceTime("25h").AssertStatus(http.StatusOK)
	tc.WithToken(token).Get("/guest/session").AssertStatus(http.StatusUnauthorized).AssertBodyContains("expired")
	tc.Get("/guest/downloads").AssertStatus(http.StatusUnauthorized)
}

func TestOTPRules(t *testing.T) {
	tc, ac, _ := setup(t)

	tc.Post("/guest/otp/request", map[string]string{}).AssertStatus(http.StatusBadRequest)
	tc.Post("/guest/otp/request", map[string]string{"email": "a@b.co", "phone": "5550100"}).AssertStatus(http.StatusBadRequest)
	tc.Post("/guest/otp/verify", map[string]string{"email": "a@b.co", "code": "123456"}).AssertStatus(http.StatusBadRequest)

	t.Run("lockout", func(t *testing.T) {
		tc.Post("/guest/otp/request", map[string]string{"phone": "+1 555 010 0100"}).AssertStatus(http.StatusCreated)
		code := ac.OTP("+1 555 010 0100")
		wrong := "000000"
		if code == wrong {
			wrong = "111111"
		}
		for i := 0; i < 4; i++ {
			tc.Post("/guest/otp/verify", map[string]string{"phone": "+1 555 010 0100", "code": wrong}).
				AssertStatus(http.StatusBadRequest).AssertBodyContains("invalid code")
		}
		tc.Post("/guest/otp/verify", map[string]string{"phone": "+1 555 010 0100", "code": wrong}).
			AssertBodyContains("too many attempts")
		tc.Post("/guest/otp/verify", map[string]string{"phone": "+1 555 010 0100", "code": code}).
			AssertStatus(http.StatusBadRequest)
	})

	t.Run("expiry", func(t *testing.T) {
		tc.Post("/guest/otp/request", map[string]string{"email": "late@b.co"}).AssertStatus(http.StatusCreated)
		code := ac.OTP("late@b.co")
		ac.AdvanceTime("11m")
		tc.Post("/guest/otp/verify", map[string]string{"email": "late@b.co", "code": code}).
			AssertStatus(http.StatusBadRequest).AssertBodyContains("expired")
	})

	ac.Get("/admin/otp").AssertStatus(http.StatusBadRequest)
	ac.Get("/admin/otp?to=nobody@b.co").AssertStatus(http.StatusOK).AssertBodyContains(`"found":false`)
}

func TestIdempotentOrderCreation(t *testing.T) {
	tc, _, state := setup(t)
	buyer := tc.WithToken("user_1")
	h := map[string]string{"Idempotency-Key": "checkout-1"}
	body := map[string]any{"productIds": []string{"prod_serif"}}

	var first, second order
	buyer.Do(http.MethodPost, "/orders", body, h).AssertStatus(http.StatusCreated).JSON(&first)
	resp := buyer.Do(http.MethodPost, "/orders", body, h).AssertStatus(http.StatusCreated)
	resp.JSON(&second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "true", resp.Headers.Get("Idempotent-Replayed"))
	assert.Equal(t, 1, state.Orders.Count())
}

func TestFaultInjectionOnValidateCart(t *testing.T) {
	tc, ac, _ := setup(t)
	ac.InjectFault("/orders/validate-cart", core.Fault{StatusCode: http.StatusServiceUnavailable}).AssertStatus(http.StatusOK)
	tc.Post("/orders/validate-cart", map[string]any{"productIds": []string{"prod_serif"}}).AssertStatus(http.StatusServiceUnavailable)
	ac.Health().AssertStatus(http.StatusOK)
	ac.Reset().AssertStatus(http.StatusOK)
	tc.Post("/orders/validate-cart", map[string]any{"productIds": []string{"prod_serif"}}).AssertStatus(http.StatusOK)
}
