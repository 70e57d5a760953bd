package store

import "time"

// Store is a seller.
type Store struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Available bool   `json:"available"`
}

// Product is a digital product listed by a store.
type Product struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Price        int64  `json:"price"`
	ComparePrice *int64 `json:"comparePrice,omitempty"`
	StoreID      string `json:"storeId"`
	Published    bool   `json:"published"`
	DownloadURL  string `json:"downloadUrl,omitempty"`
}

// Order statuses.
const (
	OrderPending = "pending"
	OrderPaid    = "paid"
)

// Order is a buyer's or guest's order.
type Order struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	ProductIDs  []string   `json:"productIds"`
	TotalAmount int64      `json:"totalAmount"`
	PaidAmount  int64      `json:"paidAmount"`
	Currency    string     `json:"currency"`
	BuyerID     string     `json:"buyerId,omitempty"`
	GuestEmail  string     `json:"guestEmail,omitempty"`
	GuestPhone  string     `json:"guestPhone,omitempty"`
	AccessToken string     `json:"accessToken,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	PaidAt      *time.Time `json:"paidAt,omitempty"`
}

// IsGuest reports whether the order was placed without an account.
func (o Order) IsGuest() bool {
	return o.BuyerID == ""
}

// Gateway session statuses.
const (
	SessionCreated = "created"
	SessionPaid    = "paid"
	SessionFailed  = "failed"
)

// GatewaySession is the simulated gateway's view of one payment attempt.
type GatewaySession struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	PaymentID string    `json:"paymentId,omitempty"`
	Signature string    `json:"signature,omitempty"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
}

// OTP statuses.
const (
	OTPPending  = "pending"
	OTPApproved = "approved"
	OTPExpired  = "expired"
	OTPLocked   = "locked"
)

// OTP is a one-time code sent to an email or phone.
type OTP struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Channel   string    `json:"channel"`
	Code      string    `json:"code"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
