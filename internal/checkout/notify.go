package checkout

// NoticeKind classifies a toast.
type NoticeKind int

const (
	NoticeSuccess NoticeKind = iota
	NoticeInfo
	NoticeError
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeSuccess:
		return "success"
	case NoticeInfo:
		return "info"
	default:
		return "error"
	}
}

// Notice is a transient message for the buyer.
type Notice struct {
	Kind    NoticeKind
	Title   string
	Message string
}

// Buyer-facing messages.
const (
	MsgGeneric       = "Something went wrong. Please try again."
	MsgCancelled     = "Payment cancelled"
	MsgSuccess       = "Payment successful"
	MsgFreeSuccess   = "Order complete"
	MsgPaymentFailed = "Payment failed. Please try again."
	MsgVerifyFailed  = "We could not confirm your payment. If you were charged, please contact support."
)

// Notifier shows notices.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify calls f.
func (f NotifierFunc) Notify(n Notice) { f(n) }

// Navigator is the UI surface the orchestrator drives after success.
type Navigator interface {
	CloseCart()
	Navigate(url string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notice) {}

type nopNavigator struct{}

func (nopNavigator) CloseCart()      {}
func (nopNavigator) Navigate(string) {}
