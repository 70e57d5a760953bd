package store

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableOrderAndOverwrite(t *testing.T) {
	tb := NewTable[string]()
	tb.Set("b", "1")
	tb.Set("a", "2")
	tb.Set("b", "3")

	assert.Equal(t, []string{"3", "2"}, tb.List())
	assert.Equal(t, 2, tb.Count())

	v, ok := tb.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	assert.True(t, tb.Delete("b"))
	assert.False(t, tb.Delete("b"))
	assert.Equal(t, []string{"2"}, tb.List())
}

func TestTableUpdate(t *testing.T) {
	tb := NewTable[int]()
	tb.Set("n", 1)

	assert.True(t, tb.Update("n", func(v *int) bool { *v++; return true }))
	assert.True(t, tb.Update("n", func(v *int) bool { *v = 100; return false }))
	v, _ := tb.Get("n")
	assert.Equal(t, 2, v, "rejected update must not be stored")
	assert.False(t, tb.Update("missing", func(*int) bool { return true }))
}

func TestTableConcurrentUpdate(t *testing.T) {
	tb := NewTable[int]()
	tb.Set("n", 0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tb.Update("n", func(v *int) bool { *v++; return true })
		}()
	}
	wg.Wait()
	v, _ := tb.Get("n")
	assert.Equal(t, 50, v)
}

func TestTableSnapshotLoad(t *testing.T) {
	tb := NewTable[string]()
	tb.Load(map[string]string{"z": "last", "a": "first"})
	assert.Equal(t, []string{"first", "last"}, tb.List())
	assert.Equal(t, map[string]string{"z": "last", "a": "first"}, tb.Snapshot())

	tb.Reset()
	assert.Zero(t, tb.Count())
}

func TestClock(t *testing.T) {
	c := NewClock()
	before := c.Now()
	c.Advance(48 * time.Hour)
	assert.Equal(t, 48*time.Hour, c.Offset())
	assert.True(t, c.Now().Sub(before) >= 48*time.Hour)
	c.Reset()
	assert.Zero(t, c.Offset())
}

func TestStateResetRestoresSeed(t *testing.T) {
	s := New(nil)
	require.Equal(t, 3, s.Stores.Count())
	require.Equal(t, 6, s.Products.Count())

	s.Products.Delete("prod_serif")
	s.Orders.Set("ord_1", Order{ID: "ord_1", Status: OrderPaid})
	s.Clock.Advance(time.Hour)

	s.Reset()
	assert.Equal(t, 6, s.Products.Count())
	assert.Zero(t, s.Orders.Count())
	assert.Zero(t, s.Clock.Offset())
}

func TestStateLoadKeepsAbsentTables(t *testing.T) {
	s := New(nil)
	data, err := json.Marshal(Snapshot{Orders: map[string]Order{"ord_1": {ID: "ord_1"}}})
	require.NoError(t, err)
	require.NoError(t, s.LoadState(data))

	assert.Equal(t, 1, s.Orders.Count())
	assert.Equal(t, 6, s.Products.Count())
	assert.Error(t, s.LoadState([]byte("{")))
}

func TestPaidProductIDs(t *testing.T) {
	s := New(&Snapshot{})
	s.Orders.Set("o1", Order{ID: "o1", Status: OrderPaid, BuyerID: "u1", ProductIDs: []string{"a", "b"}})
	s.Orders.Set("o2", Order{ID: "o2", Status: OrderPending, BuyerID: "u1", ProductIDs: []string{"c"}})
	s.Orders.Set("o3", Order{ID: "o3", Status: OrderPaid, BuyerID: "u2", ProductIDs: []string{"d"}})

	got := s.PaidProductIDs(func(o Order) bool { return o.BuyerID == "u1" })
	assert.Equal(t, map[string]bool{"a": true, "b": true}, got)
}
