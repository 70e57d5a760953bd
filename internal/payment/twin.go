package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Action selects what TwinWidget does with an opened session.
type Action string

const (
	ActionPay     Action = "pay"
	ActionDismiss Action = "dismiss"
	ActionFail    Action = "fail"
)

// ParseAction accepts pay, dismiss, cancel or fail.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pay":
		return ActionPay, nil
	case "dismiss", "cancel":
		return ActionDismiss, nil
	case "fail":
		return ActionFail, nil
	default:
		return "", fmt.Errorf("unknown payment action %q (want pay, dismiss or fail)", s)
	}
}

// TwinWidget drives the storefront twin's gateway simulator in place of a
// hosted widget. Choose picks the action per session; nil means pay.
type TwinWidget struct {
	BaseURL string
	HTTP    *http.Client
	Choose  func(Session) Action
	Logger  *zap.Logger
}

// NewTwinWidget creates a widget that always performs action.
func NewTwinWidget(baseURL string, action Action, logger *zap.Logger) *TwinWidget {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TwinWidget{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{},
		Choose:  func(Session) Action { return action },
		Logger:  logger,
	}
}

type gatewayResult struct {
	Status  string  `json:"status"`
	Reason  string  `json:"reason"`
	Receipt Receipt `json:"receipt"`
}

// Open posts the chosen action to /gateway/sessions/{id}/{action} and maps
// the simulator's answer to an Event.
func (w *TwinWidget) Open(ctx context.Context, s Session, p Prefill) (Event, error) {
	action := ActionPay
	if w.Choose != nil {
		action = w.Choose(s)
	}
	hc := w.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	body, err := json.Marshal(map[string]string{"email": p.Email, "contact": p.Phone})
	if err != nil {
		return Event{}, err
	}
	u := fmt.Sprintf("%s/gateway/sessions/%s/%s", strings.TrimRight(w.BaseURL, "/"), url.PathEscape(s.GatewayOrderID), action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return Event{}, fmt.Errorf("building gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.KeyID != "" {
		req.Header.Set("X-Gateway-Key", s.KeyID)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return Event{}, fmt.Errorf("opening gateway session %s: %w", s.GatewayOrderID, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Event{}, fmt.Errorf("reading gateway response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Event{}, fmt.Errorf("gateway session %s: status %d: %s", s.GatewayOrderID, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var res gatewayResult
	if err := json.Unmarshal(data, &res); err != nil {
		return Event{}, fmt.Errorf("decoding gateway response: %w", err)
	}
	logger.Debug("gateway event",
		zap.String("gateway_order_id", s.GatewayOrderID),
		zap.String("status", res.Status),
	)

	switch res.Status {
	case "paid":
		return Event{Kind: Paid, Receipt: res.Receipt}, nil
	case "dismissed":
		return Event{Kind: Dismissed}, nil
	case "failed":
		return Event{Kind: Failed, Reason: res.Reason}, nil
	default:
		return Event{}, fmt.Errorf("gateway session %s: unexpected status %q", s.GatewayOrderID, res.Status)
	}
}
