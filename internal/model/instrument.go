package model

import "github.com/shopspring/decimal"

// Instrument is provided metadata, immutable after load. The engine never
// mutates an Instrument; it reads the price increment to shift slipped and
// residual-walk fill prices and the quote currency to denominate fills and
// commission. Fill prices are not rounded to PricePrecision.
type Instrument struct {
	ID             string
	QuoteCurrency  string
	PricePrecision int32
	PriceIncrement decimal.Decimal
	TickSize       decimal.Decimal

	// index is the 1-based insertion order into the engine, used verbatim
	// in venue-order-id/venue-position-id formatting (spec §4.3). Set by
	// the engine at registration time, not by the caller.
	index int
}

func (i Instrument) Index() int {
	return i.index
}

// WithIndex returns a copy of the instrument stamped with its 1-based
// insertion order. Called once by the engine when an instrument is
// registered at construction.
func (i Instrument) WithIndex(index int) Instrument {
	i.index = index
	return i
}

func (i Instrument) RoundPrice(px decimal.Decimal) decimal.Decimal {
	return px.Round(i.PricePrecision)
}
