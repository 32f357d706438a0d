// Package book implements the narrow order-book interaction contract the
// matching engine consumes (spec §2 C2, §3 "Book snapshot view"). The full
// order-book data structure used for historical reconstruction is an
// external collaborator (spec §1); this package is only the matching-time
// view: best bid/ask and a fill-plan simulator that walks price levels.
//
// Price levels are kept in a github.com/tidwall/btree.BTreeG, the same
// structure the teacher's internal/engine/orderbook.go uses for its
// PriceLevels, generalized here to hold an aggregated quote (price, size)
// per level rather than a slice of resting orders — this package models
// the reconstructed *opposing* book a simulated order fills against, not
// the engine's own working-order sides (that is internal/index's job).
package book

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"simulex/internal/model"
)

// FillLevel is one (price, quantity) allocation in a simulated fill plan.
type FillLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// View is the contract the matching engine consumes. Implementations are
// expected to be rebuilt or updated from incoming market data before each
// matching pass (spec §5 ordering guarantee 2: book updated before the
// matching iteration).
type View interface {
	BestBid() (decimal.Decimal, bool)
	BestAsk() (decimal.Decimal, bool)
	// SimulateFills walks the book on the opposing side of an order with
	// the given side, returning the allocation sequence an incoming order
	// of that side and size would receive. When unconstrained is true the
	// walk ignores price (Market / triggered-StopMarket orders sweeping
	// the full ladder); otherwise it stops once a level crosses price
	// (Limit orders, spec §4.6 fill pricing).
	SimulateFills(side model.Side, price decimal.Decimal, unconstrained bool, qty decimal.Decimal) []FillLevel
	Type() model.BookType
}

type level struct {
	price decimal.Decimal
	qty   decimal.Decimal
}

type levels = btree.BTreeG[*level]

// Book is an in-memory reconstruction of one instrument's opposing side
// depth, aggregated per price level. It supports L1 (top-of-book only, one
// level per side) and L2 (full price-level ladder) granularity; L3 MBO
// order-level detail degrades to L2 aggregation here, since the matching
// engine's fill-plan contract only ever needs (price, qty) pairs.
type Book struct {
	bookType model.BookType
	bids     *levels
	asks     *levels
}

func New(bookType model.BookType) *Book {
	bids := btree.NewBTreeG(func(a, b *level) bool {
		return a.price.GreaterThan(b.price) // descending: best bid first
	})
	asks := btree.NewBTreeG(func(a, b *level) bool {
		return a.price.LessThan(b.price) // ascending: best ask first
	})
	return &Book{bookType: bookType, bids: bids, asks: asks}
}

func (b *Book) Type() model.BookType { return b.bookType }

// SetLevel inserts, replaces, or (qty==0) deletes a price level on the
// given side. This is how process_order_book/tick data is applied before
// a matching pass.
func (b *Book) SetLevel(side model.Side, price, qty decimal.Decimal) {
	sideTree := b.bids
	if side == model.Sell {
		sideTree = b.asks
	}
	key := &level{price: price}
	if qty.IsZero() {
		sideTree.Delete(key)
		return
	}
	sideTree.Set(&level{price: price, qty: qty})
}

// SetTopOfBook replaces the entire book with a single L1 top-of-book
// quote, clearing any deeper levels — the correct behavior for an
// L1_TBBO feed (spec §6 book_type).
func (b *Book) SetTopOfBook(bidPx, bidQty, askPx, askQty decimal.Decimal) {
	b.bids = btree.NewBTreeG(b.bids.Less)
	b.asks = btree.NewBTreeG(b.asks.Less)
	if !bidQty.IsZero() {
		b.bids.Set(&level{price: bidPx, qty: bidQty})
	}
	if !askQty.IsZero() {
		b.asks.Set(&level{price: askPx, qty: askQty})
	}
}

func (b *Book) sideTree(side model.Side) *levels {
	if side == Buy {
		return b.asks // a buyer sweeps the ask side
	}
	return b.bids
}

const Buy = model.Buy

func (b *Book) BestBid() (decimal.Decimal, bool) {
	l, ok := b.bids.Min()
	if !ok {
		return decimal.Zero, false
	}
	return l.price, true
}

func (b *Book) BestAsk() (decimal.Decimal, bool) {
	l, ok := b.asks.Min()
	if !ok {
		return decimal.Zero, false
	}
	return l.price, true
}

// SimulateFills walks the opposing ladder (asks for a Buy order, bids for
// a Sell order) accumulating (price, qty) allocations until qty is
// exhausted or the book runs out of depth. When unconstrained is false,
// the walk stops at the first level that does not cross price.
func (b *Book) SimulateFills(side model.Side, price decimal.Decimal, unconstrained bool, qty decimal.Decimal) []FillLevel {
	sideTree := b.sideTree(side)
	remaining := qty
	var plan []FillLevel

	sideTree.Scan(func(l *level) bool {
		if remaining.IsZero() || remaining.IsNegative() {
			return false
		}
		if !unconstrained && !crosses(side, l.price, price) {
			return false
		}
		take := l.qty
		if take.GreaterThan(remaining) {
			take = remaining
		}
		plan = append(plan, FillLevel{Price: l.price, Qty: take})
		remaining = remaining.Sub(take)
		return true
	})
	return plan
}

func crosses(side model.Side, levelPrice, limitPrice decimal.Decimal) bool {
	if side == model.Buy {
		return levelPrice.LessThanOrEqual(limitPrice)
	}
	return levelPrice.GreaterThanOrEqual(limitPrice)
}

// IsMarketable reports whether a limit order of the given side and price
// would cross the opposing best price right now (spec §4.5 submit/modify
// crossing checks). A price equal to the opposing best counts as
// marketable: this is the deterministic submit/modify test, distinct from
// the touch-equal FillModel draw used during matching iteration.
func IsMarketable(side model.Side, price, bestBid, bestAsk decimal.Decimal, bestBidOk, bestAskOk bool) bool {
	if side == model.Buy {
		return bestAskOk && price.GreaterThanOrEqual(bestAsk)
	}
	return bestBidOk && price.LessThanOrEqual(bestBid)
}

// IsStopInMarket reports whether a stop/trigger price is already past the
// market (spec §4.5 StopMarket/StopLimit submit and modify validation).
func IsStopInMarket(side model.Side, stopPrice, bestBid, bestAsk decimal.Decimal, bestBidOk, bestAskOk bool) bool {
	if side == model.Buy {
		return bestAskOk && bestAsk.GreaterThan(stopPrice)
	}
	return bestBidOk && bestBid.LessThan(stopPrice)
}
