package store

import (
	"encoding/json"
	"time"
)

// DefaultOTPTTL is how long a code stays valid.
const DefaultOTPTTL = 10 * time.Minute

// State is the whole twin state.
type State struct {
	Stores   *Table[Store]
	Products *Table[Product]
	Orders   *Table[Order]
	Sessions *Table[GatewaySession]
	OTPs     *Table[OTP]
	Clock    *Clock
	OTPTTL   time.Duration

	seed *Snapshot
}

// Snapshot is the JSON form of State used by /admin/state and seed files.
type Snapshot struct {
	Stores   map[string]Store          `json:"stores,omitempty"`
	Products map[string]Product        `json:"products,omitempty"`
	Orders   map[string]Order          `json:"orders,omitempty"`
	Sessions map[string]GatewaySession `json:"sessions,omitempty"`
	OTPs     map[string]OTP            `json:"otps,omitempty"`
}

// New creates a State seeded with seed, or with DemoCatalog when seed is nil.
func New(seed *Snapshot) *State {
	if seed == nil {
		seed = DemoCatalog()
	}
	s := &State{
		Stores:   NewTable[Store](),
		Products: NewTable[Product](),
		Orders:   NewTable[Order](),
		Sessions: NewTable[GatewaySession](),
		OTPs:     NewTable[OTP](),
		Clock:    NewClock(),
		OTPTTL:   DefaultOTPTTL,
		seed:     seed,
	}
	s.apply(seed)
	return s
}

// Snapshot returns the full state.
func (s *State) Snapshot() any {
	return Snapshot{
		Stores:   s.Stores.Snapshot(),
		Products: s.Products.Snapshot(),
		Orders:   s.Orders.Snapshot(),
		Sessions: s.Sessions.Snapshot(),
		OTPs:     s.OTPs.Snapshot(),
	}
}

// LoadState replaces the tables present in data. Absent tables are kept.
func (s *State) LoadState(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.apply(&snap)
	return nil
}

// Reset drops all state and reloads the seed.
func (s *State) Reset() {
	s.Stores.Reset()
	s.Products.Reset()
	s.Orders.Reset()
	s.Sessions.Reset()
	s.OTPs.Reset()
	s.Clock.Reset()
	s.apply(s.seed)
}

func (s *State) apply(snap *Snapshot) {
	if snap == nil {
		return
	}
	if snap.Stores != nil {
		s.Stores.Load(snap.Stores)
	}
	if snap.Products != nil {
		s.Products.Load(snap.Products)
	}
	if snap.Orders != nil {
		s.Orders.Load(snap.Orders)
	}
	if snap.Sessions != nil {
		s.Sessions.Load(snap.Sessions)
	}
	if snap.OTPs != nil {
		s.OTPs.Load(snap.OTPs)
	}
}

// ParseSnapshot decodes a seed file.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// PaidProductIDs returns the set of products in paid orders matching owns.
func (s *State) PaidProductIDs(owns func(Order) bool) map[string]bool {
	out := make(map[string]bool)
	for _, o := range s.Orders.Filter(func(o Order) bool { return o.Status == OrderPaid && owns(o) }) {
		for _, id := range o.ProductIDs {
			out[id] = true
		}
	}
	return out
}

func price(v int64) *int64 { return &v }

// DemoCatalog is the default seed: three stores, one of them closed, and a
// mix of paid, free, discounted and unpublished products.
func DemoCatalog() *Snapshot {
	stores := []Store{
		{ID: "store_aurora", Name: "Aurora Audio", Slug: "aurora", Available: true},
		{ID: "store_inkwell", Name: "Inkwell Type", Slug: "inkwell", Available: true},
		{ID: "store_closed", Name: "Dusty Shelf", Slug: "dusty", Available: false},
	}
	products := []Product{
		{ID: "prod_field_kit", Title: "Field Recording Kit", Price: 500, ComparePrice: price(800), StoreID: "store_aurora", Published: true},
		{ID: "prod_synth_pads", Title: "Analog Synth Pads", Price: 100, StoreID: "store_aurora", Published: true},
		{ID: "prod_drum_loops", Title: "Drum Loops Vol. 2", Price: 1200, StoreID: "store_aurora", Published: false},
		{ID: "prod_serif", Title: "Serif Display Family", Price: 500, StoreID: "store_inkwell", Published: true},
		{ID: "prod_wallpaper", Title: "Letterform Wallpapers", Price: 0, StoreID: "store_inkwell", Published: true},
		{ID: "prod_old_zine", Title: "Old Zine Scans", Price: 300, StoreID: "store_closed", Published: true},
	}
	snap := &Snapshot{
		Stores:   make(map[string]Store, len(stores)),
		Products: make(map[string]Product, len(products)),
	}
	for _, st := range stores {
		snap.Stores[st.ID] = st
	}
	for _, p := range products {
		p.DownloadURL = "https://cdn.storefront.test/files/" + p.ID + ".zip"
		snap.Products[p.ID] = p
	}
	return snap
}
