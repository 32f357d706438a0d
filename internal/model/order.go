package model

import "github.com/shopspring/decimal"

// Order is the tagged variant over {Market, Limit, StopMarket, StopLimit}.
// Every field in this struct is addressed for all four shapes; which ones
// are meaningful is governed by OrderType (spec §3, §9 — tagged variant
// over dynamic dispatch).
type Order struct {
	ClientOrderID string
	VenueOrderID  string // assigned on accept (or at fill time for Market)
	StrategyID    string
	InstrumentID  string
	Side          Side
	OrderType     OrderType

	Quantity  decimal.Decimal // original
	FilledQty decimal.Decimal
	LeavesQty decimal.Decimal // Quantity - FilledQty

	Price   decimal.Decimal // Limit/StopLimit limit price; StopMarket stop price
	Trigger decimal.Decimal // StopLimit only

	IsPostOnly    bool
	IsReduceOnly  bool
	IsTriggered   bool // StopLimit only
	ExpireTimeNs  int64 // 0 = GTC

	Contingency     Contingency
	ParentOrderID   string
	ChildOrderIDs   []string
	ContingencyIDs  []string // OCO siblings

	Status OrderStatus

	VenuePositionID string
}

// NewOrder builds an order in the Initialized state with leaves quantity
// seeded from the requested quantity, preserving the
// FilledQty+LeavesQty=Quantity invariant from the moment of construction.
func NewOrder(cid, strategyID, instrumentID string, side Side, orderType OrderType, qty decimal.Decimal) Order {
	return Order{
		ClientOrderID: cid,
		StrategyID:    strategyID,
		InstrumentID:  instrumentID,
		Side:          side,
		OrderType:     orderType,
		Quantity:      qty,
		FilledQty:     decimal.Zero,
		LeavesQty:     qty,
		Status:        Initialized,
	}
}

// ApplyFill books a fill against the order, keeping the invariant
// FilledQty+LeavesQty=Quantity intact, and returns whether the order is
// now fully filled.
func (o *Order) ApplyFill(qty decimal.Decimal) bool {
	o.FilledQty = o.FilledQty.Add(qty)
	o.LeavesQty = o.LeavesQty.Sub(qty)
	if o.LeavesQty.IsNegative() {
		o.LeavesQty = decimal.Zero
	}
	if o.LeavesQty.IsZero() {
		o.Status = Filled
		return true
	}
	o.Status = PartiallyFilled
	return false
}

// Reduce clips the order's Quantity/LeavesQty to a smaller resting size
// (used by reduce-only clipping and OCO leaves-qty propagation), preserving
// FilledQty+LeavesQty=Quantity.
func (o *Order) Reduce(newLeavesQty decimal.Decimal) {
	o.Quantity = o.FilledQty.Add(newLeavesQty)
	o.LeavesQty = newLeavesQty
}

// IsMarketable reports whether the order's limit would cross the opposing
// best price if it were resting now.
func (o Order) IsMarketable(bestBid, bestAsk decimal.Decimal, bestBidOk, bestAskOk bool) bool {
	switch o.Side {
	case Buy:
		return bestAskOk && o.Price.GreaterThanOrEqual(bestAsk)
	default:
		return bestBidOk && o.Price.LessThanOrEqual(bestBid)
	}
}
