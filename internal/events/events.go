// Package events defines the outbound event contract emitted by the
// matching engine (spec §6). Event names are a stable wire contract:
// callers pattern-match on concrete type, not on a Kind enum, the same way
// the teacher's internal/net wire messages are concrete structs per
// message type.
package events

import (
	"github.com/shopspring/decimal"

	"simulex/internal/model"
)

// Event is the common envelope every outbound event carries: it is always
// stamped by the ClockDriver (spec §5, ordering guarantee 4).
type Event interface {
	EventTimestamp() int64
}

// Base is embedded by every concrete event and carries the simulated
// timestamp it was emitted under.
type Base struct {
	TsEventNs int64
}

func (b Base) EventTimestamp() int64 { return b.TsEventNs }

type AccountState struct {
	Base
	AccountID string
	Balances  map[string]model.Money // currency -> total
	Free      map[string]model.Money
	Locked    map[string]model.Money
}

type OrderSubmitted struct {
	Base
	ClientOrderID string
	InstrumentID  string
}

type OrderAccepted struct {
	Base
	ClientOrderID string
	VenueOrderID  string
	InstrumentID  string
}

type OrderRejected struct {
	Base
	ClientOrderID string
	InstrumentID  string
	Reason        string
}

type OrderPendingUpdate struct {
	Base
	ClientOrderID string
}

type OrderPendingCancel struct {
	Base
	ClientOrderID string
}

type OrderModifyRejected struct {
	Base
	ClientOrderID string
	Reason        string
}

type OrderCancelRejected struct {
	Base
	ClientOrderID string
	Reason        string
}

type OrderUpdated struct {
	Base
	ClientOrderID string
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	Trigger       decimal.Decimal
}

type OrderCanceled struct {
	Base
	ClientOrderID string
}

type OrderTriggered struct {
	Base
	ClientOrderID string
}

type OrderExpired struct {
	Base
	ClientOrderID string
}

type OrderFilled struct {
	Base
	ClientOrderID   string
	ExecutionID     string
	VenueOrderID    string
	VenuePositionID string
	InstrumentID    string
	Side            model.Side
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	QuoteCurrency   string
	Commission      model.Money
	LiquiditySide   model.LiquiditySide
}

// Sink receives emitted lifecycle events. Implementations must not block —
// the core calls Emit synchronously from inside Process/ProcessMarket, and
// a blocking sink would violate the single-actor, suspension-free
// scheduling model (spec §5).
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }
