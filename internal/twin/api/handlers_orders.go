package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wondertwin-ai/storefront/internal/guest"
	"github.com/wondertwin-ai/storefront/internal/twin/core"
	"github.com/wondertwin-ai/storefront/internal/twin/store"
)

// Item validation messages.
const (
	msgProductNotFound = "Product not found"
	msgUnpublished     = "Product is no longer available"
	msgStoreClosed     = "Store is not accepting orders"
	msgAlreadyOwned    = "You already own this product"
)

type itemValidation struct {
	ProductID string   `json:"productId"`
	Title     string   `json:"title"`
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors,omitempty"`
}

type storeValidation struct {
	StoreID        string           `json:"storeId"`
	StoreName      string           `json:"storeName"`
	StoreSlug      string           `json:"storeSlug"`
	StoreAvailable bool             `json:"storeAvailable"`
	Items          []itemValidation `json:"items"`
}

type cartValidation struct {
	Valid        bool              `json:"valid"`
	Stores       []storeValidation `json:"stores"`
	TotalItems   int               `json:"totalItems"`
	ValidItems   int               `json:"validItems"`
	InvalidItems int               `json:"invalidItems"`
}

// validate checks every id and groups the verdicts by store in first-seen
// order. owned lists products the caller already paid for.
func (h *Handler) validate(ids []string, owned map[string]bool) cartValidation {
	res := cartValidation{Stores: []storeValidation{}}
	index := map[string]int{}

	for _, id := range ids {
		item := itemValidation{ProductID: id, Valid: true}
		storeID := ""
		p, ok := h.state.Products.Get(id)
		if !ok {
			item.Errors = append(item.Errors, msgProductNotFound)
		} else {
			item.Title = p.Title
			storeID = p.StoreID
			if !p.Published {
				item.Errors = append(item.Errors, msgUnpublished)
			}
			if owned[id] {
				item.Errors = append(item.Errors, msgAlreadyOwned)
			}
		}

		i, seen := index[storeID]
		if !seen {
			sv := storeValidation{StoreID: storeID, StoreName: "Unknown store"}
			if st, ok := h.state.Stores.Get(storeID); ok {
				sv.StoreName, sv.StoreSlug, sv.StoreAvailable = st.Name, st.Slug, st.Available
			}
			res.Stores = append(res.Stores, sv)
			i = len(res.Stores) - 1
			index[storeID] = i
		}
		if ok && !res.Stores[i].StoreAvailable {
			item.Errors = append(item.Errors, msgStoreClosed)
		}
		item.Valid = len(item.Errors) == 0

		res.Stores[i].Items = append(res.Stores[i].Items, item)
		res.TotalItems++
		if item.Valid {
			res.ValidItems++
		} else {
			res.InvalidItems++
		}
	}
	res.Valid = res.InvalidItems == 0
	return res
}

type productIDsRequest struct {
	ProductIDs []string `json:"productIds"`
	GuestEmail string   `json:"guestEmail"`
	GuestPhone string   `json:"guestPhone"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		core.Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// ValidateCart handles POST /orders/validate-cart. A buyer token, when
// present, also flags products the buyer already owns.
func (h *Handler) ValidateCart(w http.ResponseWriter, r *http.Request) {
	var req productIDsRequest
	if !decode(w, r, &req) {
		return
	}
	var owned map[string]bool
	if buyer := bearer(r); buyer != "" {
		owned = h.state.PaidProductIDs(func(o store.Order) bool { return o.BuyerID == buyer })
	}
	core.JSON(w, http.StatusOK, h.validate(dedupe(req.ProductIDs), owned))
}

// newOrder validates ids and builds a pending order, or writes a 400.
func (h *Handler) newOrder(w http.ResponseWriter, ids []string, owned map[string]bool) (store.Order, bool) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		core.Error(w, http.StatusBadRequest, "productIds is required")
		return store.Order{}, false
	}
	v := h.validate(ids, owned)
	if !v.Valid {
		var bad []string
		for _, s := range v.Stores {
			for _, it := range s.Items {
				if !it.Valid {
					bad = append(bad, fmt.Sprintf("%s (%s)", it.ProductID, strings.Join(it.Errors, ", ")))
				}
			}
		}
		core.Error(w, http.StatusBadRequest, "cart contains unavailable products: "+strings.Join(bad, "; "))
		return store.Order{}, false
	}

	var total int64
	for _, id := range ids {
		p, _ := h.state.Products.Get(id)
		total += p.Price
	}
	return store.Order{
		ID:          "ord_" + uuid.NewString(),
		Status:      store.OrderPending,
		ProductIDs:  ids,
		TotalAmount: total,
		Currency:    h.cfg.Currency,
		CreatedAt:   h.state.Clock.Now(),
	}, true
}

// CreateOrder handles POST /orders for an authenticated buyer.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req productIDsRequest
	if !decode(w, r, &req) {
		return
	}
	buyer := buyerFrom(r.Context())
	owned := h.state.PaidProductIDs(func(o store.Order) bool { return o.BuyerID == buyer })
	order, ok := h.newOrder(w, req.ProductIDs, owned)
	if !ok {
		return
	}
	order.BuyerID = buyer
	h.state.Orders.Set(order.ID, order)
	h.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.Int64("total", order.TotalAmount),
		zap.Int("items", len(order.ProductIDs)),
	)
	core.JSON(w, http.StatusCreated, order)
}

// CreateGuestOrder handles POST /orders/guest.
func (h *Handler) CreateGuestOrder(w http.ResponseWriter, r *http.Request) {
	var req productIDsRequest
	if !decode(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.GuestEmail))
	phone := strings.TrimSpace(req.GuestPhone)
	if !guest.ValidEmail(email) {
		core.Error(w, http.StatusBadRequest, "a valid guestEmail is required")
		return
	}
	if phone != "" && !guest.ValidPhone(phone) {
		core.Error(w, http.StatusBadRequest, "guestPhone is not a valid phone number")
		return
	}

	order, ok := h.newOrder(w, req.ProductIDs, nil)
	if !ok {
		return
	}
	order.GuestEmail = email
	order.GuestPhone = phone
	order.AccessToken = "acc_" + uuid.NewString()
	h.state.Orders.Set(order.ID, order)
	h.logger.Info("guest order created",
		zap.String("order_id", order.ID),
		zap.Int64("total", order.TotalAmount),
	)
	core.JSON(w, http.StatusCreated, order)
}
