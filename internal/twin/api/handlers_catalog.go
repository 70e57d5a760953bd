package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wondertwin-ai/storefront/internal/twin/core"
	"github.com/wondertwin-ai/storefront/internal/twin/store"
)

type storeView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type productView struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Price        int64      `json:"price"`
	ComparePrice *int64     `json:"comparePrice,omitempty"`
	StoreID      string     `json:"storeId"`
	Store        *storeView `json:"store,omitempty"`
}

func (h *Handler) productView(p store.Product) productView {
	v := productView{
		ID:           p.ID,
		Title:        p.Title,
		Price:        p.Price,
		ComparePrice: p.ComparePrice,
		StoreID:      p.StoreID,
	}
	if st, ok := h.state.Stores.Get(p.StoreID); ok {
		v.Store = &storeView{ID: st.ID, Name: st.Name, Slug: st.Slug}
	}
	return v
}

// GetProduct handles GET /products/{id}. Unpublished products are hidden.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := h.state.Products.Get(chi.URLParam(r, "id"))
	if !ok || !p.Published {
		core.Error(w, http.StatusNotFound, "product not found")
		return
	}
	core.JSON(w, http.StatusOK, h.productView(p))
}

// GetStore handles GET /stores/{slug}.
func (h *Handler) GetStore(w http.ResponseWriter, r *http.Request) {
	slug := strings.ToLower(chi.URLParam(r, "slug"))
	found := h.state.Stores.Filter(func(s store.Store) bool { return s.Slug == slug })
	if len(found) == 0 {
		core.Error(w, http.StatusNotFound, "store not found")
		return
	}
	st := found[0]
	core.JSON(w, http.StatusOK, storeView{ID: st.ID, Name: st.Name, Slug: st.Slug})
}
