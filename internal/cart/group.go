package cart

// UnknownStoreName labels a group whose store was never seen with a summary.
const UnknownStoreName = "Unknown store"

// Color is a presentation color for a store group.
type Color struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

// Palette is the fixed set of group colors. Index i maps to Palette[i mod len].
var Palette = [...]Color{
	{Name: "indigo", Hex: "#6366f1"},
	{Name: "emerald", Hex: "#10b981"},
	{Name: "amber", Hex: "#f59e0b"},
	{Name: "rose", Hex: "#f43f5e"},
	{Name: "sky", Hex: "#0ea5e9"},
	{Name: "violet", Hex: "#8b5cf6"},
	{Name: "teal", Hex: "#14b8a6"},
	{Name: "orange", Hex: "#f97316"},
}

// ColorFor maps a color index onto the palette.
func ColorFor(index int) Color {
	n := len(Palette)
	return Palette[((index%n)+n)%n]
}

// Group is the derived per-store partition of the cart. It is never stored.
type Group struct {
	StoreID    string `json:"storeId"`
	StoreName  string `json:"storeName"`
	StoreSlug  string `json:"storeSlug"`
	ColorIndex int    `json:"colorIndex"`
	Color      Color  `json:"color"`
	Items      []Line `json:"items"`
	TotalPrice int64  `json:"totalPrice"`
}

// GroupLines partitions lines by store in first-seen order. Color indexes
// follow that order starting at 0, so they are stable only while the line
// order and the set of stores are; removing the first line of a store can
// shift the colors of the stores after it.
func GroupLines(lines []Line, stores map[string]StoreSummary) []Group {
	groups := make([]Group, 0)
	index := make(map[string]int)

	for _, l := range lines {
		sid := l.Product.StoreID
		gi, ok := index[sid]
		if !ok {
			gi = len(groups)
			index[sid] = gi
			name, slug := storeLabel(sid, l.Product, stores)
			groups = append(groups, Group{
				StoreID:    sid,
				StoreName:  name,
				StoreSlug:  slug,
				ColorIndex: gi,
				Color:      ColorFor(gi),
			})
		}
		groups[gi].Items = append(groups[gi].Items, l)
		groups[gi].TotalPrice += l.Total()
	}
	return groups
}

// storeLabel resolves a display name and slug: cache first, then the
// product's embedded summary.
func storeLabel(storeID string, p Product, stores map[string]StoreSummary) (string, string) {
	if s, ok := stores[storeID]; ok && s.Name != "" {
		return s.Name, s.Slug
	}
	if p.Store != nil && p.Store.Name != "" {
		return p.Store.Name, p.Store.Slug
	}
	return UnknownStoreName, ""
}
