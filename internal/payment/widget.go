// Package payment is the boundary to the hosted payment widget. The widget
// is opened with a gateway session and reports exactly one terminal event.
package payment

import (
	"context"
	"fmt"
)

// EventKind is the widget's terminal outcome.
type EventKind int

// The zero EventKind is not a valid outcome, so an empty Event is never
// mistaken for a payment.
const (
	// Paid means the gateway captured the payment and returned a receipt.
	Paid EventKind = iota + 1
	// Dismissed means the buyer closed the widget.
	Dismissed
	// Failed means the gateway declined or errored.
	Failed
)

func (k EventKind) String() string {
	switch k {
	case Paid:
		return "paid"
	case Dismissed:
		return "dismissed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Session is what the widget needs to render a checkout.
type Session struct {
	KeyID          string
	GatewayOrderID string
	Amount         int64
	Currency       string
	Name           string
	Description    string
}

// Prefill carries buyer details shown in the widget.
type Prefill struct {
	Email string
	Phone string
}

// Receipt is the gateway's proof of payment, checked server-side.
type Receipt struct {
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"gatewaySignature"`
}

// Event is the widget's single terminal report.
type Event struct {
	Kind    EventKind
	Receipt Receipt
	Reason  string
}

// Widget opens a payment UI and blocks until it reports an event or ctx
// is done. An error means the widget could not be opened or driven at all.
type Widget interface {
	Open(ctx context.Context, s Session, p Prefill) (Event, error)
}

// WidgetFunc adapts a function to Widget.
type WidgetFunc func(ctx context.Context, s Session, p Prefill) (Event, error)

// Open calls f.
func (f WidgetFunc) Open(ctx context.Context, s Session, p Prefill) (Event, error) {
	return f(ctx, s, p)
}
