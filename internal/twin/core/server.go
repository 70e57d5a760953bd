// Package core is the storefront twin's HTTP base: configuration, the chi
// router with its middleware chain, lifecycle, and JSON response helpers.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Config holds the twin's runtime settings.
type Config struct {
	Name     string
	Port     int
	Latency  time.Duration
	FailRate float64
	SeedFile string
	Verbose  bool

	// Secret signs guest tokens and gateway receipts.
	Secret string
	// KeyID is the public gateway key handed to the payment widget.
	KeyID    string
	Currency string
	// GuestTokenTTL bounds guest session lifetime.
	GuestTokenTTL time.Duration
}

// Defaults fills zero fields.
func (c *Config) Defaults() {
	if c.Name == "" {
		c.Name = "twin-storefront"
	}
	if c.Secret == "" {
		c.Secret = "twin-gateway-secret"
	}
	if c.KeyID == "" {
		c.KeyID = "key_twin_storefront"
	}
	if c.Currency == "" {
		c.Currency = "INR"
	}
	if c.GuestTokenTTL <= 0 {
		c.GuestTokenTTL = 24 * time.Hour
	}
}

// DefaultPort is used when neither --port nor PORT is given.
const DefaultPort = 8090

// ParseFlags reads twin settings from args. PORT and TWIN_SECRET fill the
// port and secret when the flags are absent.
func ParseFlags(name string, args []string) (*Config, error) {
	cfg := &Config{Name: name}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", 0, "HTTP listen port")
	fs.DurationVar(&cfg.Latency, "latency", 0, "Base simulated latency")
	fs.Float64Var(&cfg.FailRate, "fail-rate", 0.0, "Random failure rate 0.0-1.0")
	fs.StringVar(&cfg.SeedFile, "seed-file", "", "Path to JSON fixture for initial state")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Enable debug logging")
	fs.StringVar(&cfg.Secret, "secret", "", "Secret for guest tokens and gateway receipts")
	fs.StringVar(&cfg.Currency, "currency", "", "Currency code for payment sessions")
	fs.DurationVar(&cfg.GuestTokenTTL, "guest-token-ttl", 0, "Guest session lifetime")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Port == 0 {
		if p := os.Getenv("PORT"); p != "" {
			port, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("invalid PORT %q: %w", p, err)
			}
			cfg.Port = port
		}
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Secret == "" {
		cfg.Secret = os.Getenv("TWIN_SECRET")
	}
	if cfg.FailRate < 0 || cfg.FailRate > 1 {
		return nil, fmt.Errorf("fail-rate must be within 0.0-1.0, got %v", cfg.FailRate)
	}
	cfg.Defaults()
	return cfg, nil
}

// Twin wraps a chi router with the common middleware and serves it.
type Twin struct {
	Config *Config
	Router *chi.Mux
	Logger *zap.Logger
	mw     *Middleware
}

// New builds a Twin. A nil logger disables logging.
func New(cfg *Config, logger *zap.Logger) *Twin {
	cfg.Defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("twin", cfg.Name))

	r := chi.NewRouter()
	mw := NewMiddleware(cfg, logger)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Gateway-Key"},
		ExposedHeaders:   []string{"Idempotent-Replayed"},
		AllowCredentials: false,
		MaxAge:           3600,
	}))
	r.Use(mw.RequestLog)
	r.Use(mw.LatencyInjection)
	r.Use(mw.RandomFailure)

	return &Twin{Config: cfg, Router: r, Logger: logger, mw: mw}
}

// Middleware exposes the request log, fault registry and idempotency cache.
func (t *Twin) Middleware() *Middleware {
	return t.mw
}

// ServeHTTP lets tests drive the twin through httptest.
func (t *Twin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.Router.ServeHTTP(w, r)
}

// Serve listens on the configured port until ctx is cancelled, then shuts
// down gracefully.
func (t *Twin) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", t.Config.Port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", t.Config.Port, err)
	}
	srv := &http.Server{
		Handler:      t.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		t.Logger.Info("starting twin", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	t.Logger.Info("shutting down twin")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error writes {"error":{"message","type","code"}}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    http.StatusText(status),
			"code":    status,
		},
	})
}
