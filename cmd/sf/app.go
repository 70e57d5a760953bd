package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/wondertwin-ai/storefront/internal/api"
	"github.com/wondertwin-ai/storefront/internal/cart"
	"github.com/wondertwin-ai/storefront/internal/config"
	"github.com/wondertwin-ai/storefront/internal/guest"
	"github.com/wondertwin-ai/storefront/internal/localstore"
	"github.com/wondertwin-ai/storefront/internal/logging"
	"github.com/wondertwin-ai/storefront/internal/tenant"
)

const requestTimeout = 30 * time.Second

// app holds what every command needs: config, logger, device storage and
// the output stream.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	storage localstore.Storage
	http    *http.Client
	out     io.Writer
}

func newApp(cfgPath string, out io.Writer) (*app, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgPath != "" {
		cfg, err = config.LoadFrom(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.NewCLI(cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		storage: localstore.NewDir(cfg.DataDir),
		http:    &http.Client{Timeout: requestTimeout},
		out:     out,
	}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) cart() *cart.Store {
	return cart.New(a.storage, cart.WithLogger(a.logger.Named("cart")))
}

// guests returns the guest session manager. Its client carries no tokens;
// guest endpoints take the session token explicitly.
func (a *app) guests() *guest.Manager {
	base := api.New(a.cfg.APIURL, api.WithHTTPClient(a.http), api.WithLogger(a.logger.Named("api")))
	return guest.New(base, a.storage, guest.WithLogger(a.logger.Named("guest")))
}

// client returns a commerce client that sends the configured buyer token
// and, when g is set, the guest session token.
func (a *app) client(g *guest.Manager) *api.Client {
	opts := []api.Option{
		api.WithHTTPClient(a.http),
		api.WithLogger(a.logger.Named("api")),
	}
	if a.cfg.AuthToken != "" {
		opts = append(opts, api.WithTokenSource(api.StaticToken(a.cfg.AuthToken)))
	}
	if g != nil {
		opts = append(opts, api.WithGuestTokenSource(g.TokenSource()))
	}
	return api.New(a.cfg.APIURL, opts...)
}

func (a *app) resolver() (*tenant.Resolver, error) {
	u, err := url.Parse(a.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", a.cfg.Location, err)
	}
	return tenant.New(tenant.Config{
		SubdomainRouting: a.cfg.SubdomainRouting,
		BaseDomain:       a.cfg.BaseDomain,
	}, u), nil
}

func (a *app) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*requestTimeout)
}
