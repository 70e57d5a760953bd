package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/wondertwin-ai/storefront/internal/api"
	"github.com/wondertwin-ai/storefront/internal/cart"
	"github.com/wondertwin-ai/storefront/internal/checkout"
	"github.com/wondertwin-ai/storefront/internal/guest"
	"github.com/wondertwin-ai/storefront/internal/localstore"
	"github.com/wondertwin-ai/storefront/internal/payment"
	"github.com/wondertwin-ai/storefront/internal/tenant"
	"github.com/wondertwin-ai/storefront/internal/testutil"
	"github.com/wondertwin-ai/storefront/internal/twin"
	"github.com/wondertwin-ai/storefront/internal/twin/core"
)

type checkoutWorld struct {
	t      *testing.T
	srv    *httptest.Server
	admin  *testutil.AdminClient
	cart   *cart.Store
	guests *guest.Manager
	tenant *tenant.Resolver
	action payment.Action

	notices  []checkout.Notice
	result   *checkout.Result
	err      error
	download []api.Download
}

func (w *checkoutWorld) close() {
	if w.srv != nil {
		w.srv.Close()
	}
}

func (w *checkoutWorld) aRunningTwin() error {
	tw, _, err := twin.New(&core.Config{Secret: "bdd-secret"}, nil)
	if err != nil {
		return err
	}
	w.srv = httptest.NewServer(tw)
	w.admin = testutil.NewAdminClient(testutil.NewTwinClient(w.t, w.srv))
	w.cart = cart.New(localstore.NewMemory())
	w.guests = guest.New(api.New(w.srv.URL, api.WithHTTPClient(w.srv.Client())), localstore.NewMemory())
	w.action = payment.ActionPay
	return nil
}

func (w *checkoutWorld) browsing(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	w.tenant = tenant.New(tenant.Config{SubdomainRouting: true, BaseDomain: "storefront.test"}, u)
	return nil
}

func (w *checkoutWorld) client(buyer string) *api.Client {
	opts := []api.Option{
		api.WithHTTPClient(w.srv.Client()),
		api.WithGuestTokenSource(w.guests.TokenSource()),
	}
	if buyer != "" {
		opts = append(opts, api.WithTokenSource(api.StaticToken(buyer)))
	}
	return api.New(w.srv.URL, opts...)
}

func (w *checkoutWorld) orchestrator(buyer string) *checkout.Orchestrator {
	widget := payment.NewTwinWidget(w.srv.URL, w.action, nil)
	widget.HTTP = w.srv.Client()
	return checkout.New(checkout.Deps{
		Cart:           w.cart,
		Commerce:       w.client(buyer),
		Widget:         widget,
		Notifier:       checkout.NotifierFunc(func(n checkout.Notice) { w.notices = append(w.notices, n) }),
		Tenant:         w.tenant,
		OnUnauthorized: w.guests.HandleUnauthorized,
	})
}

func (w *checkoutWorld) cartHolds(list string) error {
	c := w.client("")
	for _, id := range strings.Split(list, ",") {
		p, err := c.GetProduct(context.Background(), strings.TrimSpace(id))
		if err != nil {
			return fmt.Errorf("fetching %s: %w", id, err)
		}
		w.cart.AddItem(p, 1)
	}
	return nil
}

func (w *checkoutWorld) widgetWill(action string) error {
	a, err := payment.ParseAction(action)
	if err != nil {
		return err
	}
	w.action = a
	return nil
}

func (w *checkoutWorld) validationFailing() error {
	w.admin.InjectFault("/orders/validate-cart", map[string]any{"status_code": http.StatusServiceUnavailable}).
		AssertStatus(http.StatusOK)
	return nil
}

func (w *checkoutWorld) checkoutAsBuyer(buyer string) error {
	w.result, w.err = w.orchestrator(buyer).Checkout(context.Background(), checkout.Buyer{Name: buyer}, checkout.Options{})
	return nil
}

func (w *checkoutWorld) checkoutPaying(buyer string, amount int) error {
	custom := int64(amount)
	w.result, w.err = w.orchestrator(buyer).Checkout(context.Background(), checkout.Buyer{Name: buyer}, checkout.Options{CustomAmount: &custom})
	return nil
}

func (w *checkoutWorld) checkoutAsGuest(email, phone string) error {
	w.result, w.err = w.orchestrator("").GuestCheckout(context.Background(), checkout.Buyer{Email: email, Phone: phone}, checkout.Options{})
	return nil
}

func (w *checkoutWorld) checkoutEnds(state string) error {
	if w.result == nil {
		return fmt.Errorf("no checkout result (err: %v)", w.err)
	}
	if got := w.result.State.String(); got != state {
		return fmt.Errorf("checkout ended %q, want %q (err: %v)", got, state, w.err)
	}
	if state == "succeeded" && w.err != nil {
		return fmt.Errorf("unexpected error: %w", w.err)
	}
	return nil
}

func (w *checkoutWorld) sentTo(want string) error {
	if w.result.RedirectURL != want {
		return fmt.Errorf("redirected to %q, want %q", w.result.RedirectURL, want)
	}
	return nil
}

func (w *checkoutWorld) sentToDownloads() error {
	prefix := "https://storefront.test/downloads?token=acc_"
	if !strings.HasPrefix(w.result.RedirectURL, prefix) {
		return fmt.Errorf("redirected to %q, want prefix %q", w.result.RedirectURL, prefix)
	}
	return nil
}

func (w *checkoutWorld) cartEmpty() error {
	if n := w.cart.ItemCount(); n != 0 {
		return fmt.Errorf("cart has %d items", n)
	}
	return nil
}

func (w *checkoutWorld) cartHoldsCount(n int) error {
	if got := w.cart.ItemCount(); got != n {
		return fmt.Errorf("cart has %d items, want %d", got, n)
	}
	return nil
}

func (w *checkoutWorld) toldMessage(msg string) error {
	for _, n := range w.notices {
		if n.Message == msg {
			return nil
		}
	}
	return fmt.Errorf("no notice %q in %+v", msg, w.notices)
}

func (w *checkoutWorld) alreadyOwns(buyer, productID string) error {
	res, err := w.client(buyer).ValidateCart(context.Background(), []string{productID})
	if err != nil {
		return err
	}
	return expectItemError(res, productID, "You already own this product")
}

func (w *checkoutWorld) reportedAs(productID, msg string) error {
	if w.result == nil || w.result.Validation == nil {
		return errors.New("no validation result")
	}
	return expectItemError(w.result.Validation.Result, productID, msg)
}

func expectItemError(res *api.CartValidationResult, productID, msg string) error {
	for _, s := range res.Invalid() {
		for _, it := range s.Items {
			if it.ProductID != productID {
				continue
			}
			for _, e := range it.Errors {
				if e == msg {
					return nil
				}
			}
			return fmt.Errorf("%s errors %v, want %q", productID, it.Errors, msg)
		}
	}
	return fmt.Errorf("%s was not reported invalid", productID)
}

func (w *checkoutWorld) removeUnavailable() error {
	w.orchestrator("").RemoveInvalid(*w.result.Validation)
	w.result, w.err = nil, nil
	return nil
}

func (w *checkoutWorld) orderWasFree() error {
	if !w.result.Free {
		return errors.New("order was not completed as free")
	}
	return nil
}

func (w *checkoutWorld) signInAsGuest(email string) error {
	id := api.GuestIdentifier{Email: email}
	if _, err := w.guests.RequestOTP(context.Background(), id); err != nil {
		return err
	}
	code := w.admin.OTP(email)
	if code == "" {
		return fmt.Errorf("no code sent to %s", email)
	}
	_, err := w.guests.VerifyOTP(context.Background(), id, code)
	return err
}

func (w *checkoutWorld) downloadsInclude(productID string) error {
	downloads, err := w.guests.Downloads(context.Background())
	if err != nil {
		return err
	}
	w.download = downloads
	for _, d := range downloads {
		if d.ProductID == productID {
			return nil
		}
	}
	return fmt.Errorf("%s not in downloads %+v", productID, downloads)
}

func TestCheckoutFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			w := &checkoutWorld{t: t}
			ctx.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
				w.close()
				return ctx, err
			})

			ctx.Step(`^a running storefront twin$`, w.aRunningTwin)
			ctx.Step(`^I am browsing "([^"]*)"$`, w.browsing)
			ctx.Step(`^my cart holds "([^"]*)"$`, w.cartHolds)
			ctx.Step(`^the payment widget will "([^"]*)"$`, w.widgetWill)
			ctx.Step(`^cart validation is failing$`, w.validationFailing)
			ctx.Step(`^I check out as buyer "([^"]*)"$`, w.checkoutAsBuyer)
			ctx.Step(`^I check out as buyer "([^"]*)" paying (\d+)$`, w.checkoutPaying)
			ctx.Step(`^I check out as guest "([^"]*)" with phone "([^"]*)"$`, w.checkoutAsGuest)
			ctx.Step(`^checkout ends "([^"]*)"$`, w.checkoutEnds)
			ctx.Step(`^I am sent to "([^"]*)"$`, w.sentTo)
			ctx.Step(`^I am sent to the guest downloads page$`, w.sentToDownloads)
			ctx.Step(`^my cart is empty$`, w.cartEmpty)
			ctx.Step(`^my cart holds (\d+) items?$`, w.cartHoldsCount)
			ctx.Step(`^I am told "([^"]*)"$`, w.toldMessage)
			ctx.Step(`^buyer "([^"]*)" already owns "([^"]*)"$`, w.alreadyOwns)
			ctx.Step(`^"([^"]*)" is reported as "([^"]*)"$`, w.reportedAs)
			ctx.Step(`^I remove the unavailable items$`, w.removeUnavailable)
			ctx.Step(`^the order was free$`, w.orderWasFree)
			ctx.Step(`^I sign in as guest "([^"]*)" with the code I was sent$`, w.signInAsGuest)
			ctx.Step(`^my downloads include "([^"]*)"$`, w.downloadsInclude)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run checkout feature tests")
	}
}
