// Package admin serves the twin's /admin/* control plane: state reset,
// snapshot and load, fault injection, request inspection and the
// simulated clock.
package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wondertwin-ai/storefront/internal/twin/core"
	"github.com/wondertwin-ai/storefront/internal/twin/store"
)

// StateStore is the state the control plane manages.
type StateStore interface {
	Snapshot() any
	LoadState(data []byte) error
	Reset()
}

// Handler serves /admin.
type Handler struct {
	state  StateStore
	mw     *core.Middleware
	clock  *store.Clock
	logger *zap.Logger
}

// NewHandler creates the admin handler. clock may be nil.
func NewHandler(state StateStore, mw *core.Middleware, clock *store.Clock, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{state: state, mw: mw, clock: clock, logger: logger}
}

// Routes mounts the endpoints under /admin.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Post("/reset", h.handleReset)
		r.Get("/state", h.handleGetState)
		r.Post("/state", h.handleLoadState)
		r.Post("/fault/*", h.handleInjectFault)
		r.Delete("/fault/*", h.handleRemoveFault)
		r.Get("/faults", h.handleListFaults)
		r.Get("/requests", h.handleGetRequests)
		r.Post("/time/advance", h.handleTimeAdvance)
		r.Get("/time", h.handleGetTime)
		r.Get("/health", h.handleHealth)
	})
}

// faultPath turns the wildcard remainder into the request path it guards,
// so /admin/fault/orders/validate-cart targets /orders/validate-cart.
func faultPath(r *http.Request) string {
	return "/" + strings.TrimPrefix(chi.URLParam(r, "*"), "/")
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.state.Reset()
	h.mw.ReqLog.Clear()
	h.mw.Faults.Reset()
	h.mw.Idempotent.Reset()
	if h.clock != nil {
		h.clock.Reset()
	}
	h.logger.Info("state reset")
	core.JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, http.StatusOK, h.state.Snapshot())
}

func (h *Handler) handleLoadState(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		core.Error(w, http.StatusBadRequest, "failed to read body: "+err.Error())
		return
	}
	if err := h.state.LoadState(body); err != nil {
		core.Error(w, http.StatusBadRequest, "failed to load state: "+err.Error())
		return
	}
	core.JSON(w, http.StatusOK, map[string]string{"status": "loaded"})
}

func (h *Handler) handleInjectFault(w http.ResponseWriter, r *http.Request) {
	path := faultPath(r)
	var fault core.Fault
	if err := json.NewDecoder(r.Body).Decode(&fault); err != nil {
		core.Error(w, http.StatusBadRequest, "invalid fault config: "+err.Error())
		return
	}
	h.mw.Faults.Set(path, fault)
	h.logger.Info("fault injected", zap.String("path", path), zap.Int("status", fault.StatusCode))
	core.JSON(w, http.StatusOK, map[string]any{"status": "injected", "endpoint": path, "fault": fault})
}

func (h *Handler) handleRemoveFault(w http.ResponseWriter, r *http.Request) {
	path := faultPath(r)
	if !h.mw.Faults.Remove(path) {
		core.Error(w, http.StatusNotFound, "no fault registered for "+path)
		return
	}
	core.JSON(w, http.StatusOK, map[string]any{"status": "removed", "endpoint": path})
}

func (h *Handler) handleListFaults(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, http.StatusOK, h.mw.Faults.All())
}

func (h *Handler) handleGetRequests(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, http.StatusOK, h.mw.ReqLog.Entries())
}

func (h *Handler) handleTimeAdvance(w http.ResponseWriter, r *http.Request) {
	if h.clock == nil {
		core.Error(w, http.StatusBadRequest, "simulated clock not configured")
		return
	}
	var req struct {
		Duration string `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.Error(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		core.Error(w, http.StatusBadRequest, "invalid duration: "+err.Error())
		return
	}
	if d < 0 {
		core.Error(w, http.StatusBadRequest, "duration must not be negative")
		return
	}
	h.clock.Advance(d)
	core.JSON(w, http.StatusOK, map[string]any{
		"status":    "advanced",
		"duration":  d.String(),
		"offset":    h.clock.Offset().String(),
		"simulated": h.clock.Now().Format(time.RFC3339),
	})
}

func (h *Handler) handleGetTime(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"real": time.Now().Format(time.RFC3339)}
	if h.clock != nil {
		out["simulated"] = h.clock.Now().Format(time.RFC3339)
		out["offset"] = h.clock.Offset().String()
	}
	core.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
