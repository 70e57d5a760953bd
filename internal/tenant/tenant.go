// Package tenant decides whether the current location is the main site or a
// single seller's storefront, and builds URLs that cross between the two.
//
// Three modes exist. With subdomain routing disabled, and on loopback or IP
// hosts, the storefront is named by the _store query parameter. Otherwise
// the storefront is the label in front of the base domain.
package tenant

import (
	"net"
	"net/url"
	"strings"
	"sync"
)

// StoreParam is the query parameter naming the storefront in query mode.
const StoreParam = "_store"

// Config controls resolution.
type Config struct {
	// SubdomainRouting enables host-based storefront detection. When false
	// only the _store query parameter is consulted, on any host.
	SubdomainRouting bool
	// BaseDomain is the registrable domain the storefront labels sit under.
	// Empty means derive it from the current host.
	BaseDomain string
}

// Context is the resolved tenant for a location. It is recomputed, never
// patched.
type Context struct {
	IsStorefront bool   `json:"isStorefront"`
	Subdomain    string `json:"subdomain,omitempty"`
	BaseDomain   string `json:"baseDomain"`
}

// Resolver resolves tenant context for the current location.
type Resolver struct {
	cfg Config

	mu      sync.RWMutex
	current *url.URL
}

// New creates a Resolver for the given current location. A nil location is
// treated as an empty URL, which resolves to the main site.
func New(cfg Config, current *url.URL) *Resolver {
	r := &Resolver{cfg: cfg}
	r.SetLocation(current)
	return r
}

// SetLocation replaces the current location.
func (r *Resolver) SetLocation(u *url.URL) {
	var cp url.URL
	if u != nil {
		cp = *u
	}
	r.mu.Lock()
	r.current = &cp
	r.mu.Unlock()
}

// Location returns a copy of the current location.
func (r *Resolver) Location() *url.URL {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := *r.current
	return &cp
}

// Context resolves the current location.
func (r *Resolver) Context() Context {
	return r.Resolve(r.Location())
}

// Resolve computes the tenant context for u without touching the current
// location. Malformed or unexpected hosts resolve to the main site.
func (r *Resolver) Resolve(u *url.URL) Context {
	if u == nil {
		return Context{}
	}
	host := strings.ToLower(u.Hostname())
	base := r.baseDomain(host)

	if r.queryMode(host) {
		slug := strings.ToLower(strings.TrimSpace(u.Query().Get(StoreParam)))
		if slug == "" {
			return Context{BaseDomain: base}
		}
		return Context{IsStorefront: true, Subdomain: slug, BaseDomain: base}
	}

	if base == "" || host == base || !strings.HasSuffix(host, "."+base) {
		return Context{BaseDomain: base}
	}
	label := strings.TrimSuffix(host, "."+base)
	if label == "" || strings.Contains(label, ".") || IsReservedSubdomain(label) {
		return Context{BaseDomain: base}
	}
	return Context{IsStorefront: true, Subdomain: label, BaseDomain: base}
}

// StorefrontURL builds a URL for path on the storefront slug, in the same
// mode Resolve uses to read it back.
func (r *Resolver) StorefrontURL(slug, path string) string {
	cur := r.Location()
	host := strings.ToLower(cur.Hostname())
	slug = strings.ToLower(strings.TrimSpace(slug))

	out := r.origin(cur)
	setPath(out, path)
	if r.queryMode(host) {
		q := out.Query()
		q.Set(StoreParam, slug)
		out.RawQuery = q.Encode()
		return out.String()
	}
	out.Host = joinPort(slug+"."+r.baseDomain(host), cur.Port())
	return out.String()
}

// MainSiteURL builds a URL for path on the main site.
func (r *Resolver) MainSiteURL(path string) string {
	cur := r.Location()
	host := strings.ToLower(cur.Hostname())

	out := r.origin(cur)
	setPath(out, path)
	if r.queryMode(host) {
		q := out.Query()
		q.Del(StoreParam)
		out.RawQuery = q.Encode()
		return out.String()
	}
	out.Host = joinPort(r.baseDomain(host), cur.Port())
	return out.String()
}

// queryMode reports whether the storefront is carried in the query string.
func (r *Resolver) queryMode(host string) bool {
	return !r.cfg.SubdomainRouting || isLoopbackOrIP(host)
}

func (r *Resolver) baseDomain(host string) string {
	if r.cfg.BaseDomain != "" {
		return strings.ToLower(strings.TrimPrefix(r.cfg.BaseDomain, "."))
	}
	return DeriveBaseDomain(host)
}

func (r *Resolver) origin(cur *url.URL) *url.URL {
	scheme := cur.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return &url.URL{Scheme: scheme, Host: cur.Host}
}

func setPath(u *url.URL, path string) {
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	p, q, _ := strings.Cut(path, "?")
	u.Path = p
	u.RawQuery = q
}

func joinPort(host, port string) string {
	if port == "" {
		return host
	}
	return net.JoinHostPort(host, port)
}

func isLoopbackOrIP(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	return net.ParseIP(host) != nil
}

// twoPartSuffixes are public suffixes with two labels; a base domain under
// them keeps three labels.
var twoPartSuffixes = map[string]bool{
	"co.in":  true,
	"net.in": true,
	"org.in": true,
	"co.uk":  true,
	"org.uk": true,
	"me.uk":  true,
	"com.au": true,
	"net.au": true,
	"org.au": true,
	"co.nz":  true,
	"com.br": true,
	"co.jp":  true,
	"com.sg": true,
	"co.za":  true,
}

// DeriveBaseDomain returns the last two labels of host, or the last three
// when the last two form a known two-part public suffix. Hosts with too few
// labels are returned unchanged.
func DeriveBaseDomain(host string) string {
	host = strings.Trim(strings.ToLower(host), ".")
	if host == "" || isLoopbackOrIP(host) {
		return host
	}
	labels := strings.Split(host, ".")
	n := len(labels)
	if n <= 2 {
		return host
	}
	keep := 2
	if twoPartSuffixes[labels[n-2]+"."+labels[n-1]] {
		keep = 3
	}
	if keep > n {
		keep = n
	}
	return strings.Join(labels[n-keep:], ".")
}
