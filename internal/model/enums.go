package model

// Side is the direction of an order.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// OrderType is the tagged-variant discriminant over the four concrete
// order shapes the engine understands. Behavior per type is selected by
// switch in the state machine and matching engine rather than by
// dynamic dispatch (spec §9).
type OrderType int

const (
	Market OrderType = iota
	Limit
	StopMarket
	StopLimit
)

func (t OrderType) String() string {
	switch t {
	case Market:
		return "MARKET"
	case Limit:
		return "LIMIT"
	case StopMarket:
		return "STOP_MARKET"
	case StopLimit:
		return "STOP_LIMIT"
	default:
		return "UNKNOWN"
	}
}

// OrderStatus is the order lifecycle state (spec §3).
type OrderStatus int

const (
	Initialized OrderStatus = iota
	Submitted
	Accepted
	PendingUpdate
	PendingCancel
	Rejected
	Triggered
	PartiallyFilled
	Filled
	Canceled
	Expired
)

func (s OrderStatus) String() string {
	switch s {
	case Initialized:
		return "INITIALIZED"
	case Submitted:
		return "SUBMITTED"
	case Accepted:
		return "ACCEPTED"
	case PendingUpdate:
		return "PENDING_UPDATE"
	case PendingCancel:
		return "PENDING_CANCEL"
	case Rejected:
		return "REJECTED"
	case Triggered:
		return "TRIGGERED"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case Filled:
		return "FILLED"
	case Canceled:
		return "CANCELED"
	case Expired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether the status can never transition further.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case Rejected, Filled, Canceled, Expired:
		return true
	default:
		return false
	}
}

// IsWorking reports whether an order in this status belongs in the
// OrderIndex's per-instrument side lists (spec invariant 2).
func (s OrderStatus) IsWorking() bool {
	switch s {
	case Accepted, PartiallyFilled, Triggered:
		return true
	default:
		return false
	}
}

// Contingency is the linkage discipline an order participates in.
type Contingency int

const (
	NoContingency Contingency = iota
	OTO
	OCO
)

// LiquiditySide records whether a fill provided or removed book liquidity.
type LiquiditySide int

const (
	Maker LiquiditySide = iota
	Taker
)

func (l LiquiditySide) String() string {
	if l == Maker {
		return "MAKER"
	}
	return "TAKER"
}

// OmsType is the order-management-system position discipline (spec §4.7).
type OmsType int

const (
	Hedging OmsType = iota
	Netting
)

// AccountType of the simulated venue account.
type AccountType int

const (
	Cash AccountType = iota
	Margin
	Betting
)

// BookType is the depth granularity the BookView exposes (spec §6).
type BookType int

const (
	L1TBBO BookType = iota
	L2MBP
	L3MBO
)

// PositionSide is the directional state of a Position (spec §3).
type PositionSide int

const (
	Long PositionSide = iota
	Short
	Flat
)
