// Package index implements the engine's exclusive owner of live working
// orders (spec §3 "Ownership & lifecycle", §4.2 C3 OrderIndex). It keeps a
// client-order-id map plus, per instrument, price-ordered bid and ask
// lists used by the matching engine's iteration.
//
// The per-instrument sides are github.com/tidwall/btree.BTreeG trees
// keyed by (sort price, insertion sequence) — a direct generalization of
// the teacher's internal/engine/orderbook.go PriceLevels btree, lifted
// from "one btree entry per aggregated price level" to "one btree entry
// per working order", since the matching engine (spec §4.6) walks
// individual orders in price-time priority rather than aggregated levels.
package index

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"simulex/internal/model"
)

type entry struct {
	order *model.Order
	seq   uint64
}

func sortPrice(o *model.Order) decimal.Decimal {
	switch o.OrderType {
	case model.Market:
		return decimal.Zero
	case model.StopMarket:
		return o.Price // stop price
	case model.StopLimit:
		if o.IsTriggered {
			return o.Price // limit leg once triggered
		}
		return o.Trigger
	default: // Limit
		return o.Price
	}
}

type side = btree.BTreeG[*entry]

// Index owns the client-order-id -> Order map and per-instrument sorted
// side trees. It is mutated only from the single engine driver goroutine.
type Index struct {
	byCid map[string]*model.Order
	bids  map[string]*side
	asks  map[string]*side
	seq   uint64
}

func New() *Index {
	return &Index{
		byCid: make(map[string]*model.Order),
		bids:  make(map[string]*side),
		asks:  make(map[string]*side),
	}
}

// Get looks up an order by client-order-id regardless of status. Every
// order ever submitted stays resolvable here for the lifetime of a
// replay — OTO parent-status checks (spec §4.5) and modify/cancel-by-cid
// lookups both need to find terminal orders, not just working ones.
// "Removed on terminal transitions" (spec §3) governs membership in the
// *working* side lists below, not this history map.
func (ix *Index) Get(cid string) (*model.Order, bool) {
	o, ok := ix.byCid[cid]
	return o, ok
}

// Insert adds or replaces an order in the cid map, and — if its status is
// working (spec invariant 2) — in its instrument's sorted side tree.
func (ix *Index) Insert(o *model.Order) {
	ix.byCid[o.ClientOrderID] = o
	if !o.Status.IsWorking() {
		return
	}
	ix.seq++
	tree := ix.sideTreeFor(o, true)
	tree.Set(&entry{order: o, seq: ix.seq})
}

// Deactivate removes an order from its instrument's working side tree,
// leaving it resolvable via Get. Called on every terminal transition
// (Filled/Canceled/Expired/Rejected), satisfying invariant 2 ("cid
// appears in the working index iff status in {Accepted, PartiallyFilled,
// Triggered}") for the working-index view (Bids/Asks/WorkingOrders).
func (ix *Index) Deactivate(o *model.Order) {
	ix.removeFromSide(o)
}

// removeFromSide removes an order from its side tree without evicting it
// from the cid map. Deactivate and Resort both go through it.
func (ix *Index) removeFromSide(o *model.Order) {
	tree := ix.sideTreeFor(o, false)
	if tree == nil {
		return
	}
	// The tree is keyed by (price, seq); a plain Order doesn't carry its
	// own insertion seq, so locate the exact entry by identity instead of
	// reconstructing a pivot key.
	var toDelete *entry
	tree.Scan(func(e *entry) bool {
		if e.order == o {
			toDelete = e
			return false
		}
		return true
	})
	if toDelete != nil {
		tree.Delete(toDelete)
	}
}

// Resort removes and reinserts an order into its side tree — used when an
// order's sort key changes (e.g. a StopLimit order triggering, which
// switches its sort price from trigger to limit).
func (ix *Index) Resort(o *model.Order) {
	ix.removeFromSide(o)
	if !o.Status.IsWorking() {
		return
	}
	ix.seq++
	tree := ix.sideTreeFor(o, true)
	tree.Set(&entry{order: o, seq: ix.seq})
}

func (ix *Index) sideTreeFor(o *model.Order, create bool) *side {
	m := ix.bids
	if o.Side == model.Sell {
		m = ix.asks
	}
	t, ok := m[o.InstrumentID]
	if !ok {
		if !create {
			return nil
		}
		if o.Side == model.Buy {
			t = btree.NewBTreeG(func(a, b *entry) bool {
				pa, pb := sortPrice(a.order), sortPrice(b.order)
				if pa.Equal(pb) {
					return a.seq < b.seq
				}
				return pa.GreaterThan(pb) // descending
			})
		} else {
			t = btree.NewBTreeG(func(a, b *entry) bool {
				pa, pb := sortPrice(a.order), sortPrice(b.order)
				if pa.Equal(pb) {
					return a.seq < b.seq
				}
				return pa.LessThan(pb) // ascending
			})
		}
		m[o.InstrumentID] = t
	}
	return t
}

// Bids returns a stable snapshot (shallow copy) of the bid side for an
// instrument, in price-time priority. Matching must iterate a snapshot
// because matching mutates the underlying tree (spec §4.2).
func (ix *Index) Bids(instrumentID string) []*model.Order {
	return snapshot(ix.bids[instrumentID])
}

// Asks returns a stable snapshot of the ask side for an instrument.
func (ix *Index) Asks(instrumentID string) []*model.Order {
	return snapshot(ix.asks[instrumentID])
}

func snapshot(t *side) []*model.Order {
	if t == nil {
		return nil
	}
	out := make([]*model.Order, 0, t.Len())
	t.Scan(func(e *entry) bool {
		out = append(out, e.order)
		return true
	})
	return out
}

// WorkingOrders returns every working order across all instruments
// (spec §4.2 working_orders(instrument?) with no instrument argument).
func (ix *Index) WorkingOrders() []*model.Order {
	out := make([]*model.Order, 0, len(ix.byCid))
	for _, o := range ix.byCid {
		if o.Status.IsWorking() {
			out = append(out, o)
		}
	}
	return out
}

// Reset clears all state (spec §6 engine.Reset()).
func (ix *Index) Reset() {
	ix.byCid = make(map[string]*model.Order)
	ix.bids = make(map[string]*side)
	ix.asks = make(map[string]*side)
	ix.seq = 0
}
