package api

import "time"

// ItemValidation is the server's verdict on one cart product.
type ItemValidation struct {
	ProductID string   `json:"productId"`
	Title     string   `json:"title"`
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors,omitempty"`
}

// StoreValidation groups item verdicts by owning store.
type StoreValidation struct {
	StoreID        string           `json:"storeId"`
	StoreName      string           `json:"storeName"`
	StoreSlug      string           `json:"storeSlug"`
	StoreAvailable bool             `json:"storeAvailable"`
	Items          []ItemValidation `json:"items"`
}

// CartValidationResult is the response of POST /orders/validate-cart.
type CartValidationResult struct {
	Valid        bool              `json:"valid"`
	Stores       []StoreValidation `json:"stores"`
	TotalItems   int               `json:"totalItems"`
	ValidItems   int               `json:"validItems"`
	InvalidItems int               `json:"invalidItems"`
}

// HasInvalid reports whether any item failed validation.
func (r *CartValidationResult) HasInvalid() bool {
	if r == nil {
		return false
	}
	if !r.Valid || r.InvalidItems > 0 {
		return true
	}
	for _, s := range r.Stores {
		for _, it := range s.Items {
			if !it.Valid {
				return true
			}
		}
	}
	return false
}

// Invalid returns only the invalid items, still grouped by store. Stores
// with no invalid items are omitted.
func (r *CartValidationResult) Invalid() []StoreValidation {
	if r == nil {
		return nil
	}
	var out []StoreValidation
	for _, s := range r.Stores {
		bad := s
		bad.Items = nil
		for _, it := range s.Items {
			if !it.Valid {
				bad.Items = append(bad.Items, it)
			}
		}
		if len(bad.Items) > 0 {
			out = append(out, bad)
		}
	}
	return out
}

// InvalidProductIDs flattens Invalid into product ids.
func (r *CartValidationResult) InvalidProductIDs() []string {
	var ids []string
	for _, s := range r.Invalid() {
		for _, it := range s.Items {
			ids = append(ids, it.ProductID)
		}
	}
	return ids
}

// Order is a created order.
type Order struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	ProductIDs  []string  `json:"productIds"`
	TotalAmount int64     `json:"totalAmount"`
	Currency    string    `json:"currency"`
	GuestEmail  string    `json:"guestEmail,omitempty"`
	GuestPhone  string    `json:"guestPhone,omitempty"`
	AccessToken string    `json:"accessToken,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PaymentSession describes a gateway checkout the payment widget can open.
type PaymentSession struct {
	OrderID        string `json:"orderId"`
	GatewayOrderID string `json:"gatewayOrderId"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"keyId"`
	Description    string `json:"description,omitempty"`
}

// FreeOrderResult is the response of the zero-amount completion endpoints.
type FreeOrderResult struct {
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	AccessToken string `json:"accessToken,omitempty"`
}

// GuestIdentifier names a guest by email or phone. Exactly one is expected.
type GuestIdentifier struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// String returns whichever identifier is set.
func (g GuestIdentifier) String() string {
	if g.Email != "" {
		return g.Email
	}
	return g.Phone
}

// OTPChallenge is returned when a code has been sent.
type OTPChallenge struct {
	Channel   string    `json:"channel"`
	To        string    `json:"to"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// GuestSession is a verified guest identity.
type GuestSession struct {
	Token     string    `json:"token"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Download is one purchased product the guest may fetch.
type Download struct {
	OrderID     string    `json:"orderId"`
	ProductID   string    `json:"productId"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PurchasedAt time.Time `json:"purchasedAt"`
}
