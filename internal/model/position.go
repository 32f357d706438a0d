package model

import "github.com/shopspring/decimal"

// Position is external, read-only to the core; it is queried by
// PositionResolver and mutated only indirectly, by the execution client
// applying emitted Fill events (spec §3).
type Position struct {
	ID           string
	InstrumentID string
	Side         PositionSide
	Quantity     decimal.Decimal
}

func (p Position) IsOpen() bool {
	return p.Side != Flat && !p.Quantity.IsZero()
}

// SignedQuantity returns quantity positive for Long, negative for Short.
func (p Position) SignedQuantity() decimal.Decimal {
	switch p.Side {
	case Long:
		return p.Quantity
	case Short:
		return p.Quantity.Neg()
	default:
		return decimal.Zero
	}
}

// PositionCache is the read side of the external position cache the core
// consults. Mutation happens externally, in response to emitted Fill
// events; the core never writes through this interface.
type PositionCache interface {
	// PositionIDForOrder returns the venue-position-id previously recorded
	// against a client-order-id under HEDGING, if any.
	PositionIDForOrder(clientOrderID string) (string, bool)
	// OpenPositionForInstrument returns the (at most one) open position
	// for an instrument under NETTING, if any.
	OpenPositionForInstrument(instrumentID string) (Position, bool)
	// Position looks up a position by id, for reduce-only sizing.
	Position(positionID string) (Position, bool)
}
