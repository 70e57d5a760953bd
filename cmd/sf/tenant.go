package main

import (
	"fmt"
	"net/url"

	"github.com/wondertwin-ai/storefront/internal/tenant"
)

func (a *app) cmdTenant(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: sf tenant resolve|storefront-url|main-url|check")
	}
	r, err := a.resolver()
	if err != nil {
		return err
	}

	switch args[0] {
	case "resolve":
		var tc tenant.Context
		if len(args) > 1 {
			u, err := url.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid url %q: %w", args[1], err)
			}
			tc = r.Resolve(u)
		} else {
			tc = r.Context()
		}
		if tc.IsStorefront {
			a.printf("storefront: %s\n", tc.Subdomain)
		} else {
			a.printf("main site\n")
		}
		a.printf("base domain: %s\n", tc.BaseDomain)
	case "storefront-url":
		if len(args) < 2 {
			return fmt.Errorf("usage: sf tenant storefront-url <slug> [path]")
		}
		a.printf("%s\n", r.StorefrontURL(args[1], optArg(args, 2, "/")))
	case "main-url":
		a.printf("%s\n", r.MainSiteURL(optArg(args, 1, "/")))
	case "check":
		if len(args) != 2 {
			return fmt.Errorf("usage: sf tenant check <slug>")
		}
		switch {
		case tenant.IsReservedSubdomain(args[1]):
			return fmt.Errorf("%q is reserved", args[1])
		case !tenant.IsValidSubdomain(args[1]):
			return fmt.Errorf("%q is not a valid storefront subdomain", args[1])
		}
		a.printf("%s is available as a storefront subdomain\n", args[1])
	default:
		return fmt.Errorf("unknown tenant command %q", args[0])
	}
	return nil
}

func optArg(args []string, i int, def string) string {
	if i < len(args) {
		return args[i]
	}
	return def
}
