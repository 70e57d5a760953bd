package cart

import "time"

// StoreSummary is the minimal seller identity embedded in products and
// cached by the cart so names and slugs survive later product fetches that
// omit it.
type StoreSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Product is a read-only snapshot of a catalog product at the time it was
// added. Prices are integer minor currency units.
type Product struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Price        int64         `json:"price"`
	ComparePrice *int64        `json:"comparePrice,omitempty"`
	StoreID      string        `json:"storeId"`
	Store        *StoreSummary `json:"store,omitempty"`
}

// Savings returns ComparePrice-Price when a higher comparison price is set.
func (p Product) Savings() int64 {
	if p.ComparePrice == nil || *p.ComparePrice <= p.Price {
		return 0
	}
	return *p.ComparePrice - p.Price
}

// Line is one product in the cart. Quantity is always at least 1.
type Line struct {
	Product  Product   `json:"product"`
	Quantity int       `json:"quantity"`
	AddedAt  time.Time `json:"addedAt"`
}

// Total returns the line extension, price x quantity.
func (l Line) Total() int64 {
	return l.Product.Price * int64(l.Quantity)
}

// Summary bundles every derived view of the cart, computed from one
// consistent read of the lines.
type Summary struct {
	Lines             []Line   `json:"lines"`
	ItemCount         int      `json:"itemCount"`
	TotalPrice        int64    `json:"totalPrice"`
	TotalSavings      int64    `json:"totalSavings"`
	StoreCount        int      `json:"storeCount"`
	HasMultipleStores bool     `json:"hasMultipleStores"`
	ProductIDs        []string `json:"productIds"`
	Groups            []Group  `json:"groups"`
}

// Summarize derives a Summary from lines and the store cache.
func Summarize(lines []Line, stores map[string]StoreSummary) Summary {
	s := Summary{
		Lines:      lines,
		ProductIDs: make([]string, 0, len(lines)),
	}
	for _, l := range lines {
		s.ItemCount += l.Quantity
		s.TotalPrice += l.Total()
		s.TotalSavings += l.Product.Savings() * int64(l.Quantity)
		s.ProductIDs = append(s.ProductIDs, l.Product.ID)
	}
	s.Groups = GroupLines(lines, stores)
	s.StoreCount = len(s.Groups)
	s.HasMultipleStores = s.StoreCount > 1
	return s
}
