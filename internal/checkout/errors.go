package checkout

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrCheckoutInFlight rejects a second checkout while one is running.
	ErrCheckoutInFlight = errors.New("checkout already in progress")
	// ErrEmptyCart is returned when there is nothing to buy.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrPaymentFailed wraps a gateway decline.
	ErrPaymentFailed = errors.New("payment failed")
	// ErrPaymentUnverified means the gateway reported success but the
	// server did not accept the receipt.
	ErrPaymentUnverified = errors.New("payment could not be verified")
)

// FieldError carries inline validation messages keyed by field name. It is
// shown next to the inputs, never as a toast.
type FieldError struct {
	Fields map[string]string
}

func (e *FieldError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Field returns the message for name, or "".
func (e *FieldError) Field(name string) string {
	return e.Fields[name]
}

func fieldError(field, msg string) *FieldError {
	return &FieldError{Fields: map[string]string{field: msg}}
}
