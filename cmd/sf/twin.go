package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/wondertwin-ai/storefront/internal/twinadmin"
)

// cmdTwin drives the local twin's admin plane at the configured API URL.
func (a *app) cmdTwin(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: sf twin health|reset|seed|state|otp|fault|unfault|advance")
	}
	c := twinadmin.New(a.cfg.APIURL)
	ctx, cancel := a.context()
	defer cancel()

	var (
		out string
		err error
	)
	switch args[0] {
	case "health", "status":
		ok, msg := c.Health(ctx)
		if !ok {
			return fmt.Errorf("twin at %s is unhealthy: %s", a.cfg.APIURL, msg)
		}
		out = msg
	case "reset":
		out, err = c.Reset(ctx)
	case "seed":
		if len(args) != 2 {
			return fmt.Errorf("usage: sf twin seed <file>")
		}
		out, err = c.Seed(ctx, args[1])
	case "state":
		out, err = c.State(ctx)
	case "otp":
		if len(args) != 2 {
			return fmt.Errorf("usage: sf twin otp <email-or-phone>")
		}
		out, err = c.OTP(ctx, args[1])
		if err == nil && out == "" {
			return fmt.Errorf("no code was sent to %s", args[1])
		}
	case "fault":
		if len(args) != 3 {
			return fmt.Errorf("usage: sf twin fault <path> <status>")
		}
		status, convErr := strconv.Atoi(args[2])
		if convErr != nil {
			return fmt.Errorf("invalid status %q", args[2])
		}
		out, err = c.InjectFault(ctx, args[1], twinadmin.Fault{StatusCode: status})
	case "unfault":
		if len(args) != 2 {
			return fmt.Errorf("usage: sf twin unfault <path>")
		}
		out, err = c.RemoveFault(ctx, args[1])
	case "advance":
		if len(args) != 2 {
			return fmt.Errorf("usage: sf twin advance <duration>")
		}
		d, convErr := time.ParseDuration(args[1])
		if convErr != nil {
			return fmt.Errorf("invalid duration %q", args[1])
		}
		out, err = c.AdvanceTime(ctx, d)
	default:
		return fmt.Errorf("unknown twin command %q", args[0])
	}
	if err != nil {
		return err
	}
	a.printf("%s\n", out)
	return nil
}
