package core

import (
	"bytes"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequestLogEntry is one recorded request.
type RequestLogEntry struct {
	Timestamp  time.Time     `json:"timestamp"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	Route      string        `json:"route,omitempty"`
	Fault      string        `json:"fault,omitempty"`
	StatusCode int           `json:"status_code"`
	Duration   time.Duration `json:"duration_ms"`
	RequestID  string        `json:"request_id,omitempty"`
}

// RequestLog is a bounded ring of recent requests.
type RequestLog struct {
	mu      sync.RWMutex
	entries []RequestLogEntry
	maxSize int
}

// NewRequestLog creates a log holding at most maxSize entries.
func NewRequestLog(maxSize int) *RequestLog {
	return &RequestLog{entries: make([]RequestLogEntry, 0, maxSize), maxSize: maxSize}
}

// Add appends e, evicting the oldest entry when full.
func (rl *RequestLog) Add(e RequestLogEntry) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.entries) >= rl.maxSize {
		rl.entries = rl.entries[1:]
	}
	rl.entries = append(rl.entries, e)
}

// Entries returns a copy of the log.
func (rl *RequestLog) Entries() []RequestLogEntry {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	out := make([]RequestLogEntry, len(rl.entries))
	copy(out, rl.entries)
	return out
}

// Clear empties the log.
func (rl *RequestLog) Clear() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.entries = rl.entries[:0]
}

// FaultHeader names the fault key that answered a request.
const FaultHeader = "X-Twin-Fault"

// Fault is an injected failure for one path or route pattern.
type Fault struct {
	StatusCode int           `json:"status_code"`
	Body       string        `json:"body,omitempty"`
	Delay      time.Duration `json:"delay_ms,omitempty"`
	Rate       float64       `json:"rate"` // 0.0-1.0; 0 means always
}

// FaultRegistry maps request paths or route patterns to faults. Patterns
// use chi syntax: {name} matches one segment and a trailing * matches the
// rest, so /payments/initiate/* covers /payments/initiate/guest and
// /gateway/sessions/{id}/pay covers every gateway session. An exact path
// beats any pattern; among patterns the longest wins.
type FaultRegistry struct {
	mu     sync.RWMutex
	faults map[string]Fault
}

// NewFaultRegistry creates an empty registry.
func NewFaultRegistry() *FaultRegistry {
	return &FaultRegistry{faults: make(map[string]Fault)}
}

// Set registers f for path.
func (fr *FaultRegistry) Set(path string, f Fault) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if f.Rate == 0 {
		f.Rate = 1.0
	}
	fr.faults[path] = f
}

// Remove drops the fault for path and reports whether there was one.
func (fr *FaultRegistry) Remove(path string) bool {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	_, ok := fr.faults[path]
	delete(fr.faults, path)
	return ok
}

// Check returns the fault to apply to path, if any fires.
func (fr *FaultRegistry) Check(path string) *Fault {
	_, f := fr.check(path)
	return f
}

func (fr *FaultRegistry) check(path string) (string, *Fault) {
	key, f, ok := fr.Match(path)
	if !ok || (f.Rate < 1.0 && rand.Float64() >= f.Rate) {
		return "", nil
	}
	return key, &f
}

// Match returns the registered key and fault covering path, ignoring Rate.
func (fr *FaultRegistry) Match(path string) (string, Fault, bool) {
	fr.mu.RLock()
	defer fr.mu.RUnlock()
	if f, ok := fr.faults[path]; ok {
		return path, f, true
	}
	var (
		best  string
		fault Fault
		found bool
	)
	for pattern, f := range fr.faults {
		if !isPattern(pattern) || !matchRoute(pattern, path) {
			continue
		}
		if !found || len(pattern) > len(best) || (len(pattern) == len(best) && pattern < best) {
			best, fault, found = pattern, f, true
		}
	}
	return best, fault, found
}

func isPattern(key string) bool {
	return strings.HasSuffix(key, "/*") || strings.Contains(key, "{")
}

func matchRoute(pattern, path string) bool {
	want := strings.Split(strings.TrimPrefix(pattern, "/"), "/")
	got := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, seg := range want {
		if seg == "*" && i == len(want)-1 {
			return len(got) > i
		}
		if i >= len(got) {
			return false
		}
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if seg != got[i] {
			return false
		}
	}
	return len(want) == len(got)
}

// All returns a copy of the registry.
func (fr *FaultRegistry) All() map[string]Fault {
	fr.mu.RLock()
	defer fr.mu.RUnlock()
	out := make(map[string]Fault, len(fr.faults))
	for k, v := range fr.faults {
		out[k] = v
	}
	return out
}

// Reset removes every fault.
func (fr *FaultRegistry) Reset() {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.faults = make(map[string]Fault)
}

type cachedResponse struct {
	status int
	body   []byte
}

// IdempotencyCache remembers POST responses by Idempotency-Key.
type IdempotencyCache struct {
	mu      sync.RWMutex
	entries map[string]cachedResponse
}

// NewIdempotencyCache creates an empty cache.
func NewIdempotencyCache() *IdempotencyCache {
	return &IdempotencyCache{entries: make(map[string]cachedResponse)}
}

func (c *IdempotencyCache) get(key string) (cachedResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *IdempotencyCache) put(key string, status int, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cachedResponse{status: status, body: body}
}

// Reset forgets every key.
func (c *IdempotencyCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedResponse)
}

// Middleware holds the shared middleware state.
type Middleware struct {
	cfg        *Config
	logger     *zap.Logger
	ReqLog     *RequestLog
	Faults     *FaultRegistry
	Idempotent *IdempotencyCache
}

// NewMiddleware creates the middleware set for cfg.
func NewMiddleware(cfg *Config, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{
		cfg:        cfg,
		logger:     logger,
		ReqLog:     NewRequestLog(1000),
		Faults:     NewFaultRegistry(),
		Idempotent: NewIdempotencyCache(),
	}
}

type recorder struct {
	http.ResponseWriter
	status int
	body   *bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.body != nil {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

// RequestLog records every request in the ring buffer and logs it at debug.
func (m *Middleware) RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &recorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		var route string
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		fault := rec.Header().Get(FaultHeader)
		m.ReqLog.Add(RequestLogEntry{
			Timestamp:  start,
			Method:     r.Method,
			Path:       r.URL.Path,
			Route:      route,
			Fault:      fault,
			StatusCode: rec.status,
			Duration:   elapsed,
			RequestID:  chimw.GetReqID(r.Context()),
		})
		m.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("route", route),
			zap.String("fault", fault),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed),
		)
	})
}

// LatencyInjection sleeps 80-120% of the configured latency per request.
func (m *Middleware) LatencyInjection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.cfg.Latency > 0 {
			jitter := 0.8 + rand.Float64()*0.4
			time.Sleep(time.Duration(float64(m.cfg.Latency) * jitter))
		}
		next.ServeHTTP(w, r)
	})
}

// RandomFailure answers 500 at the configured rate.
func (m *Middleware) RandomFailure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.cfg.FailRate > 0 && rand.Float64() < m.cfg.FailRate {
			Error(w, http.StatusInternalServerError, "simulated random failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FaultInjection applies registered faults. Mount it inside API route
// groups only so /admin stays reachable.
func (m *Middleware) FaultInjection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, fault := m.Faults.check(r.URL.Path)
		if fault == nil {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set(FaultHeader, key)
		if fault.Delay > 0 {
			time.Sleep(fault.Delay)
		}
		if fault.StatusCode == 0 {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fault.StatusCode)
		if fault.Body != "" {
			fmt.Fprint(w, fault.Body)
		} else {
			fmt.Fprintf(w, `{"error":{"message":"injected fault","type":"api_error","code":%d}}`, fault.StatusCode)
		}
	})
}

// Idempotency replays the cached response for a repeated Idempotency-Key
// on POST requests.
func (m *Middleware) Idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if r.Method != http.MethodPost || key == "" {
			next.ServeHTTP(w, r)
			return
		}
		key = r.URL.Path + "|" + key
		if cached, ok := m.Idempotent.get(key); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(cached.status)
			_, _ = w.Write(cached.body)
			return
		}
		rec := &recorder{ResponseWriter: w, status: http.StatusOK, body: &bytes.Buffer{}}
		next.ServeHTTP(rec, r)
		if rec.status < 500 {
			m.Idempotent.put(key, rec.status, rec.body.Bytes())
		}
	})
}
