package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"

	"github.com/wondertwin-ai/storefront/internal/checkout"
	"github.com/wondertwin-ai/storefront/internal/money"
	"github.com/wondertwin-ai/storefront/internal/payment"
)

type checkoutFlags struct {
	guest         bool
	name          string
	email         string
	phone         string
	amount        string
	action        string
	removeInvalid bool
}

func parseCheckoutFlags(args []string) (*checkoutFlags, error) {
	var f checkoutFlags
	fs := flag.NewFlagSet("checkout", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&f.guest, "guest", false, "check out as a guest")
	fs.StringVar(&f.name, "name", "", "buyer name shown in the payment widget")
	fs.StringVar(&f.email, "email", "", "guest email")
	fs.StringVar(&f.phone, "phone", "", "guest phone")
	fs.StringVar(&f.amount, "amount", "", "pay-what-you-want amount in major units")
	fs.StringVar(&f.action, "action", "pay", "what the payment widget does: pay, dismiss or fail")
	fs.BoolVar(&f.removeInvalid, "remove-invalid", false, "drop unavailable items when checkout is blocked")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	return &f, nil
}

func (a *app) cmdCheckout(args []string) error {
	f, err := parseCheckoutFlags(args)
	if err != nil {
		return err
	}
	action, err := payment.ParseAction(f.action)
	if err != nil {
		return err
	}
	var opts checkout.Options
	if f.amount != "" {
		amount, err := money.Parse(f.amount)
		if err != nil {
			return err
		}
		opts.CustomAmount = &amount
	}
	if !f.guest && a.cfg.AuthToken == "" {
		return fmt.Errorf("not signed in: set auth_token in the config or SF_AUTH_TOKEN, or use --guest")
	}

	resolver, err := a.resolver()
	if err != nil {
		return err
	}
	guests := a.guests()
	c := a.cart()
	orch := checkout.New(checkout.Deps{
		Cart:     c,
		Commerce: a.client(guests),
		Widget:   payment.NewTwinWidget(a.cfg.Gateway(), action, a.logger.Named("widget")),
		Notifier: checkout.NotifierFunc(func(n checkout.Notice) {
			if n.Title != "" {
				a.printf("[%s] %s: %s\n", n.Kind, n.Title, n.Message)
				return
			}
			a.printf("[%s] %s\n", n.Kind, n.Message)
		}),
		Navigator:      navigator{a},
		Tenant:         resolver,
		Logger:         a.logger.Named("checkout"),
		OnUnauthorized: guests.HandleUnauthorized,
	})

	ctx, cancel := a.context()
	defer cancel()

	buyer := checkout.Buyer{Name: f.name, Email: f.email, Phone: f.phone}
	var res *checkout.Result
	if f.guest {
		res, err = orch.GuestCheckout(ctx, buyer, opts)
	} else {
		res, err = orch.Checkout(ctx, buyer, opts)
	}

	var fe *checkout.FieldError
	if errors.As(err, &fe) {
		a.printFieldErrors(fe)
		return errors.New("checkout details are incomplete")
	}
	if res != nil && res.State == checkout.Blocked {
		a.printBlocked(res.Validation)
		if f.removeInvalid {
			orch.RemoveInvalid(*res.Validation)
			a.printf("\nRemoved unavailable items. Run checkout again to continue.\n")
			return nil
		}
		return errors.New("checkout blocked by unavailable items (rerun with --remove-invalid)")
	}
	if err != nil {
		return err
	}
	if res.Order != nil {
		a.printf("Order %s: %s\n", res.Order.ID, res.State)
	}
	return nil
}

func (a *app) printFieldErrors(fe *checkout.FieldError) {
	names := make([]string, 0, len(fe.Fields))
	for name := range fe.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		a.printf("  --%s: %s\n", name, fe.Fields[name])
	}
}

func (a *app) printBlocked(v *checkout.Validation) {
	a.printf("Some items can't be purchased:\n")
	for _, s := range v.Invalid() {
		a.printf("%s\n", s.StoreName)
		for _, it := range s.Items {
			a.printf("  %-20s %s\n", it.ProductID, it.Title)
			for _, e := range it.Errors {
				a.printf("    - %s\n", e)
			}
		}
	}
}

type navigator struct{ a *app }

func (n navigator) CloseCart() {}

func (n navigator) Navigate(url string) {
	n.a.printf("Continue at %s\n", url)
}
