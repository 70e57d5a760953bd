// Package checkout drives a purchase from the cart to a paid order:
// pre-flight cart validation, order creation, payment initiation, the
// payment widget, server-side receipt verification, and the post-payment
// redirect. Authenticated buyers and guests follow the same flow.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wondertwin-ai/storefront/internal/api"
	"github.com/wondertwin-ai/storefront/internal/cart"
	"github.com/wondertwin-ai/storefront/internal/guest"
	"github.com/wondertwin-ai/storefront/internal/payment"
	"github.com/wondertwin-ai/storefront/internal/tenant"
)

// Post-payment destinations on the main site.
const (
	LibraryPath   = "/library"
	DownloadsPath = "/downloads"
)

// Commerce is the remote API the orchestrator calls. *api.Client
// satisfies it.
type Commerce interface {
	ValidateCart(ctx context.Context, productIDs []string) (*api.CartValidationResult, error)
	CreateOrder(ctx context.Context, productIDs []string) (*api.Order, error)
	CreateGuestOrder(ctx context.Context, productIDs []string, email, phone string) (*api.Order, error)
	InitiatePayment(ctx context.Context, orderID string, customAmount *int64) (*api.PaymentSession, error)
	InitiateGuestPayment(ctx context.Context, orderID, email string, customAmount *int64) (*api.PaymentSession, error)
	VerifyPayment(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (bool, error)
	CompleteFreeOrder(ctx context.Context, orderID string) (*api.FreeOrderResult, error)
	CompleteFreeGuestOrder(ctx context.Context, orderID, email string) (*api.FreeOrderResult, error)
}

// Deps are the collaborators of an Orchestrator. Cart, Commerce and Widget
// are required.
type Deps struct {
	Cart      *cart.Store
	Commerce  Commerce
	Widget    payment.Widget
	Notifier  Notifier
	Navigator Navigator
	Tenant    *tenant.Resolver
	Logger    *zap.Logger

	// OnUnauthorized is told about 401 responses to requests sent with the
	// guest token, typically (*guest.Manager).HandleUnauthorized. It reports
	// whether it dropped the session; if so the step fails without an error
	// notice. Buyer-token 401s never reach it.
	OnUnauthorized func(error) bool
}

// Buyer identifies who is paying. Email and Phone are required for guests
// and used as widget prefill for everyone.
type Buyer struct {
	Name  string
	Email string
	Phone string
}

// Options tune one checkout run.
type Options struct {
	// CustomAmount overrides the order total (pay-what-you-want). It must
	// be positive.
	CustomAmount *int64
}

// Validation is the outcome of the pre-flight cart check.
type Validation struct {
	Result *api.CartValidationResult
	// FailedOpen is set when the check itself failed and the cart was
	// let through.
	FailedOpen bool
	Err        error
}

// Valid reports whether checkout may proceed.
func (v Validation) Valid() bool {
	return v.FailedOpen || !v.Result.HasInvalid()
}

// Invalid returns only the invalid items, grouped by store.
func (v Validation) Invalid() []api.StoreValidation {
	if v.FailedOpen {
		return nil
	}
	return v.Result.Invalid()
}

// InvalidProductIDs lists the products that blocked checkout.
func (v Validation) InvalidProductIDs() []string {
	if v.FailedOpen {
		return nil
	}
	return v.Result.InvalidProductIDs()
}

// PaymentResult is the outcome of the payment widget.
type PaymentResult struct {
	Success   bool
	Cancelled bool
	Receipt   payment.Receipt
	Err       error

	// loggedOut is set when verification hit a guest 401 that ended the
	// guest session.
	loggedOut bool
}

// Result summarizes a checkout run that got past its preconditions.
type Result struct {
	State       State
	Order       *api.Order
	Validation  *Validation
	Free        bool
	RedirectURL string
}

// Orchestrator runs checkouts. One instance is shared per buyer session;
// at most one checkout runs at a time.
type Orchestrator struct {
	deps     Deps
	logger   *zap.Logger
	state    atomic.Int32
	inFlight atomic.Bool
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Navigator == nil {
		deps.Navigator = nopNavigator{}
	}
	return &Orchestrator{deps: deps, logger: deps.Logger}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// InFlight reports whether a checkout is running.
func (o *Orchestrator) InFlight() bool {
	return o.inFlight.Load()
}

func (o *Orchestrator) setState(s State) {
	prev := State(o.state.Swap(int32(s)))
	if prev != s {
		o.logger.Debug("checkout state", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// ValidateCart checks ids with the server. Any failure of the check itself
// fails open: the result is treated as valid and the error is logged.
func (o *Orchestrator) ValidateCart(ctx context.Context, ids []string) Validation {
	res, err := o.deps.Commerce.ValidateCart(ctx, ids)
	if err != nil {
		o.logger.Warn("cart validation failed, proceeding", zap.Error(err), zap.Int("items", len(ids)))
		return Validation{FailedOpen: true, Err: err}
	}
	return Validation{Result: res}
}

// RemoveInvalid drops every product that failed validation from the cart.
func (o *Orchestrator) RemoveInvalid(v Validation) {
	ids := v.InvalidProductIDs()
	if len(ids) == 0 {
		return
	}
	o.deps.Cart.RemoveItems(ids...)
	o.logger.Info("removed unavailable items", zap.Strings("product_ids", ids))
}

// CreateOrder creates an authenticated order. It returns nil on failure,
// after notifying the buyer.
func (o *Orchestrator) CreateOrder(ctx context.Context, ids []string) *api.Order {
	order, err := o.deps.Commerce.CreateOrder(ctx, ids)
	if err != nil {
		o.stepFailed("create order", err)
		return nil
	}
	return order
}

// CreateGuestOrder creates a guest order. It returns nil on failure, after
// notifying the buyer.
func (o *Orchestrator) CreateGuestOrder(ctx context.Context, ids []string, email, phone string) *api.Order {
	order, err := o.deps.Commerce.CreateGuestOrder(ctx, ids, email, phone)
	if err != nil {
		o.stepFailed("create guest order", err)
		return nil
	}
	return order
}

func checkCustomAmount(amount *int64) error {
	if amount != nil && *amount <= 0 {
		return fieldError("amount", "Enter an amount greater than zero")
	}
	return nil
}

// InitiatePayment opens a gateway session for an authenticated order. A
// non-positive custom amount is rejected before any call.
func (o *Orchestrator) InitiatePayment(ctx context.Context, orderID string, customAmount *int64) (*api.PaymentSession, error) {
	if err := checkCustomAmount(customAmount); err != nil {
		return nil, err
	}
	sess, err := o.deps.Commerce.InitiatePayment(ctx, orderID, customAmount)
	if err != nil {
		o.stepFailed("initiate payment", err)
		return nil, fmt.Errorf("initiating payment for %s: %w", orderID, err)
	}
	return sess, nil
}

// InitiateGuestPayment is InitiatePayment for guest orders.
func (o *Orchestrator) InitiateGuestPayment(ctx context.Context, orderID, email string, customAmount *int64) (*api.PaymentSession, error) {
	if err := checkCustomAmount(customAmount); err != nil {
		return nil, err
	}
	sess, err := o.deps.Commerce.InitiateGuestPayment(ctx, orderID, email, customAmount)
	if err != nil {
		o.stepFailed("initiate guest payment", err)
		return nil, fmt.Errorf("initiating guest payment for %s: %w", orderID, err)
	}
	return sess, nil
}

// VerifyPayment asks the server to check the gateway receipt.
func (o *Orchestrator) VerifyPayment(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (bool, error) {
	ok, _, err := o.verify(ctx, gatewayOrderID, gatewayPaymentID, signature)
	return ok, err
}

func (o *Orchestrator) verify(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (ok, loggedOut bool, err error) {
	ok, err = o.deps.Commerce.VerifyPayment(ctx, gatewayOrderID, gatewayPaymentID, signature)
	if err != nil {
		o.logger.Error("payment verification request failed",
			zap.String("gateway_order_id", gatewayOrderID),
			zap.Error(err),
		)
		return false, o.unauthorized(err), err
	}
	if !ok {
		o.logger.Warn("payment receipt rejected", zap.String("gateway_order_id", gatewayOrderID))
	}
	return ok, false, nil
}

// OpenPaymentWidget shows the widget for sess and waits for its single
// terminal event. A paid event is verified server-side before it counts
// as success.
func (o *Orchestrator) OpenPaymentWidget(ctx context.Context, sess *api.PaymentSession, buyer Buyer) PaymentResult {
	ev, err := o.deps.Widget.Open(ctx, payment.Session{
		KeyID:          sess.KeyID,
		GatewayOrderID: sess.GatewayOrderID,
		Amount:         sess.Amount,
		Currency:       sess.Currency,
		Name:           buyer.Name,
		Description:    sess.Description,
	}, payment.Prefill{Email: buyer.Email, Phone: buyer.Phone})
	if err != nil {
		o.logger.Error("payment widget failed", zap.String("gateway_order_id", sess.GatewayOrderID), zap.Error(err))
		return PaymentResult{Err: fmt.Errorf("payment widget: %w", err)}
	}

	switch ev.Kind {
	case payment.Paid:
	case payment.Dismissed:
		return PaymentResult{Cancelled: true}
	case payment.Failed:
		reason := ev.Reason
		if reason == "" {
			reason = MsgPaymentFailed
		}
		return PaymentResult{Err: fmt.Errorf("%w: %s", ErrPaymentFailed, reason)}
	default:
		o.logger.Error("payment widget returned unknown event",
			zap.String("gateway_order_id", sess.GatewayOrderID),
			zap.Stringer("kind", ev.Kind),
		)
		return PaymentResult{Err: fmt.Errorf("payment widget: unexpected event %v", ev.Kind)}
	}

	r := ev.Receipt
	ok, loggedOut, err := o.verify(ctx, r.GatewayOrderID, r.GatewayPaymentID, r.Signature)
	if err != nil {
		return PaymentResult{Receipt: r, Err: fmt.Errorf("%w: %w", ErrPaymentUnverified, err), loggedOut: loggedOut}
	}
	if !ok {
		return PaymentResult{Receipt: r, Err: ErrPaymentUnverified}
	}
	return PaymentResult{Success: true, Receipt: r}
}

// Checkout buys the cart contents as an authenticated buyer.
func (o *Orchestrator) Checkout(ctx context.Context, buyer Buyer, opts Options) (*Result, error) {
	if err := checkCustomAmount(opts.CustomAmount); err != nil {
		return nil, err
	}
	return o.run(ctx, flow{buyer: buyer, opts: opts})
}

// GuestCheckout buys the cart contents as a guest. Email and phone are
// checked before anything is sent.
func (o *Orchestrator) GuestCheckout(ctx context.Context, buyer Buyer, opts Options) (*Result, error) {
	buyer.Email = strings.TrimSpace(buyer.Email)
	buyer.Phone = strings.TrimSpace(buyer.Phone)
	if err := ValidateGuest(buyer); err != nil {
		return nil, err
	}
	if err := checkCustomAmount(opts.CustomAmount); err != nil {
		return nil, err
	}
	return o.run(ctx, flow{buyer: buyer, opts: opts, guest: true})
}

// ValidateGuest checks the guest contact fields.
func ValidateGuest(b Buyer) *FieldError {
	fields := map[string]string{}
	switch {
	case strings.TrimSpace(b.Email) == "":
		fields["email"] = "Email is required"
	case !guest.ValidEmail(b.Email):
		fields["email"] = "Enter a valid email address"
	}
	switch {
	case strings.TrimSpace(b.Phone) == "":
		fields["phone"] = "Phone number is required"
	case !guest.ValidPhone(b.Phone):
		fields["phone"] = "Enter a valid phone number"
	}
	if len(fields) == 0 {
		return nil
	}
	return &FieldError{Fields: fields}
}

type flow struct {
	buyer Buyer
	opts  Options
	guest bool
}

func (o *Orchestrator) run(ctx context.Context, f flow) (*Result, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return nil, ErrCheckoutInFlight
	}
	defer o.inFlight.Store(false)

	ids := o.deps.Cart.ProductIDs()
	if len(ids) == 0 {
		return nil, ErrEmptyCart
	}

	o.setState(Validating)
	v := o.ValidateCart(ctx, ids)
	if !v.Valid() {
		o.setState(Blocked)
		o.logger.Info("checkout blocked by unavailable items", zap.Strings("product_ids", v.InvalidProductIDs()))
		return &Result{State: Blocked, Validation: &v}, nil
	}

	// The cart may have changed while validation was in flight.
	ids = o.deps.Cart.ProductIDs()
	if len(ids) == 0 {
		o.setState(Idle)
		return nil, ErrEmptyCart
	}

	o.setState(CreatingOrder)
	var order *api.Order
	if f.guest {
		order = o.CreateGuestOrder(ctx, ids, f.buyer.Email, f.buyer.Phone)
	} else {
		order = o.CreateOrder(ctx, ids)
	}
	if order == nil {
		o.setState(Failed)
		return &Result{State: Failed, Validation: &v}, errors.New("order could not be created")
	}
	res := &Result{Order: order, Validation: &v}

	if order.TotalAmount == 0 && f.opts.CustomAmount == nil {
		return o.completeFree(ctx, f, res)
	}

	o.setState(InitiatingPayment)
	var sess *api.PaymentSession
	var err error
	if f.guest {
		sess, err = o.InitiateGuestPayment(ctx, order.ID, f.buyer.Email, f.opts.CustomAmount)
	} else {
		sess, err = o.InitiatePayment(ctx, order.ID, f.opts.CustomAmount)
	}
	if err != nil {
		o.setState(Failed)
		res.State = Failed
		return res, err
	}

	o.setState(WidgetOpen)
	pr := o.OpenPaymentWidget(ctx, sess, f.buyer)
	switch {
	case pr.Success:
		o.succeed(f, res, order.AccessToken, MsgSuccess)
		return res, nil
	case pr.Cancelled:
		o.setState(Cancelled)
		res.State = Cancelled
		o.deps.Notifier.Notify(Notice{Kind: NoticeInfo, Message: MsgCancelled})
		o.logger.Info("payment cancelled", zap.String("order_id", order.ID))
		return res, nil
	default:
		o.setState(Failed)
		res.State = Failed
		o.logger.Error("payment failed", zap.String("order_id", order.ID), zap.Error(pr.Err))
		if !pr.loggedOut {
			o.deps.Notifier.Notify(Notice{Kind: NoticeError, Title: "Payment failed", Message: failureMessage(pr.Err)})
		}
		return res, pr.Err
	}
}

func (o *Orchestrator) completeFree(ctx context.Context, f flow, res *Result) (*Result, error) {
	o.setState(CompletingFree)
	res.Free = true
	var (
		free *api.FreeOrderResult
		err  error
	)
	if f.guest {
		free, err = o.deps.Commerce.CompleteFreeGuestOrder(ctx, res.Order.ID, f.buyer.Email)
	} else {
		free, err = o.deps.Commerce.CompleteFreeOrder(ctx, res.Order.ID)
	}
	if err != nil {
		o.stepFailed("complete free order", err)
		o.setState(Failed)
		res.State = Failed
		return res, fmt.Errorf("completing free order %s: %w", res.Order.ID, err)
	}
	token := res.Order.AccessToken
	if token == "" {
		token = free.AccessToken
	}
	o.succeed(f, res, token, MsgFreeSuccess)
	return res, nil
}

// succeed clears the cart, closes the cart UI and navigates to the
// library or, for guests, the downloads page.
func (o *Orchestrator) succeed(f flow, res *Result, accessToken, msg string) {
	o.deps.Cart.Clear()
	o.deps.Navigator.CloseCart()

	path := LibraryPath
	if f.guest {
		path = DownloadsPath
		if accessToken != "" {
			path += "?token=" + url.QueryEscape(accessToken)
		}
	}
	res.RedirectURL = o.mainSiteURL(path)
	res.State = Succeeded
	o.setState(Succeeded)

	o.deps.Notifier.Notify(Notice{Kind: NoticeSuccess, Message: msg})
	o.logger.Info("checkout succeeded",
		zap.String("order_id", res.Order.ID),
		zap.Bool("guest", f.guest),
		zap.Bool("free", res.Free),
	)
	o.deps.Navigator.Navigate(res.RedirectURL)
}

func (o *Orchestrator) mainSiteURL(path string) string {
	if o.deps.Tenant == nil {
		return path
	}
	return o.deps.Tenant.MainSiteURL(path)
}

// stepFailed reports a transport failure of one step.
func (o *Orchestrator) stepFailed(step string, err error) {
	o.logger.Error("checkout step failed", zap.String("step", step), zap.Error(err))
	if o.unauthorized(err) {
		return
	}
	o.deps.Notifier.Notify(Notice{Kind: NoticeError, Message: MsgGeneric})
}

// unauthorized hands a guest-token 401 to the hook and reports whether the
// guest session was dropped.
func (o *Orchestrator) unauthorized(err error) bool {
	if o.deps.OnUnauthorized == nil || !api.IsGuestUnauthorized(err) {
		return false
	}
	return o.deps.OnUnauthorized(err)
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, ErrPaymentUnverified):
		return MsgVerifyFailed
	case errors.Is(err, ErrPaymentFailed):
		msg := strings.TrimPrefix(err.Error(), ErrPaymentFailed.Error()+": ")
		if msg == "" {
			return MsgPaymentFailed
		}
		return msg
	default:
		return MsgPaymentFailed
	}
}
