package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/wondertwin-ai/storefront/internal/api"
)

func parseIdentifier(cmd string, args []string) (api.GuestIdentifier, []string, error) {
	var id api.GuestIdentifier
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&id.Email, "email", "", "guest email")
	fs.StringVar(&id.Phone, "phone", "", "guest phone")
	if err := fs.Parse(args); err != nil {
		return id, nil, err
	}
	return id, fs.Args(), nil
}

func (a *app) cmdGuest(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: sf guest otp|verify|status|logout|downloads")
	}
	m := a.guests()
	ctx, cancel := a.context()
	defer cancel()

	switch args[0] {
	case "otp":
		id, _, err := parseIdentifier("otp", args[1:])
		if err != nil {
			return err
		}
		ch, err := m.RequestOTP(ctx, id)
		if err != nil {
			return err
		}
		a.printf("Code sent by %s to %s, valid until %s\n", ch.Channel, ch.To, ch.ExpiresAt.Local().Format(time.Kitchen))
	case "verify":
		id, rest, err := parseIdentifier("verify", args[1:])
		if err != nil {
			return err
		}
		if len(rest) != 1 {
			return fmt.Errorf("usage: sf guest verify --email|--phone <id> <code>")
		}
		sess, err := m.VerifyOTP(ctx, id, rest[0])
		if err != nil {
			return err
		}
		a.printf("Signed in as %s until %s\n", api.GuestIdentifier{Email: sess.Email, Phone: sess.Phone}, sess.ExpiresAt.Local().Format(time.RFC1123))
	case "status":
		active, err := m.Restore(ctx)
		if !active {
			a.printf("No guest session\n")
			return nil
		}
		sess := m.Session()
		a.printf("Guest %s, expires %s\n", api.GuestIdentifier{Email: sess.Email, Phone: sess.Phone}, sess.ExpiresAt.Local().Format(time.RFC1123))
		if err != nil {
			a.printf("Session could not be re-validated: %v\n", err)
		}
	case "logout":
		m.Logout()
		a.printf("Signed out\n")
	case "downloads":
		downloads, err := m.Downloads(ctx)
		if err != nil {
			return err
		}
		if len(downloads) == 0 {
			a.printf("No downloads\n")
			return nil
		}
		for _, d := range downloads {
			a.printf("%-20s %-32s %s\n", d.ProductID, d.Title, d.URL)
		}
	default:
		return fmt.Errorf("unknown guest command %q", args[0])
	}
	return nil
}
