package checkout

import "fmt"

// State is the orchestrator's position in the checkout flow.
type State int32

const (
	Idle State = iota
	Validating
	Blocked
	CreatingOrder
	InitiatingPayment
	WidgetOpen
	CompletingFree
	Succeeded
	Cancelled
	Failed
)

var stateNames = [...]string{
	Idle:              "idle",
	Validating:        "validating",
	Blocked:           "blocked",
	CreatingOrder:     "creating_order",
	InitiatingPayment: "initiating_payment",
	WidgetOpen:        "widget_open",
	CompletingFree:    "completing_free",
	Succeeded:         "succeeded",
	Cancelled:         "cancelled",
	Failed:            "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Terminal reports whether s ends a checkout run.
func (s State) Terminal() bool {
	switch s {
	case Blocked, Succeeded, Cancelled, Failed:
		return true
	}
	return false
}
