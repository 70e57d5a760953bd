package tenant

import (
	"regexp"
	"strings"
)

// reservedRuntime are labels that never resolve to a storefront when seen
// on the current host.
var reservedRuntime = wordSet(
	"www", "api", "admin", "app", "dashboard", "mail", "ftp",
	"static", "cdn", "assets", "help", "support", "blog", "docs", "status",
)

// reservedForSignup extends reservedRuntime with words a seller may not
// claim as a new slug.
var reservedForSignup = wordSet(
	"www", "api", "admin", "app", "dashboard", "mail", "ftp",
	"static", "cdn", "assets", "help", "support", "blog", "docs", "status",
	"smtp", "imap", "pop", "webmail", "ns1", "ns2", "dns", "mx",
	"login", "logout", "signin", "signup", "register", "auth", "oauth", "sso",
	"account", "accounts", "billing", "checkout", "cart", "pay", "payment",
	"payments", "invoice", "wallet", "bank", "secure", "security", "verify",
	"store", "stores", "shop", "shops", "library", "downloads", "guest",
	"dev", "staging", "test", "demo", "internal", "root", "system", "null",
)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// IsReservedSubdomain reports whether label is reserved at resolve time.
// Matching is case-insensitive.
func IsReservedSubdomain(label string) bool {
	return reservedRuntime[strings.ToLower(label)]
}

var slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)

// IsValidSubdomain reports whether candidate may be chosen as a new
// storefront slug: 1-63 lowercase alphanumerics or inner hyphens, starting
// and ending alphanumeric, and not on the signup reserved list.
func IsValidSubdomain(candidate string) bool {
	if !slugPattern.MatchString(candidate) {
		return false
	}
	return !reservedForSignup[candidate]
}
