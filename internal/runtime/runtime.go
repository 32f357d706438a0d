// Package runtime bundles the shared dependencies the order state machine
// and the matching engine both need, the way the teacher's
// internal/engine/orderbook.go keeps a back-pointer to the owning *Engine
// so OrderBook.Match can call engine.Trade. Here that one back-pointer is
// generalized into an explicit dependency bundle passed to both
// collaborators at construction, so neither package needs to import the
// other or the top-level engine package (spec §9 "replace cross-object
// cyclic references ... with id-indexed lookups").
package runtime

import (
	"simulex/internal/account"
	"simulex/internal/book"
	"simulex/internal/clock"
	"simulex/internal/contingency"
	"simulex/internal/events"
	"simulex/internal/fillmodel"
	"simulex/internal/idgen"
	"simulex/internal/index"
	"simulex/internal/model"
	"simulex/internal/position"
)

// InstrumentRegistry is the set of instruments the engine was constructed
// with, each stamped with its 1-based insertion index (spec §4.3).
type InstrumentRegistry struct {
	byID  map[string]model.Instrument
	order []string
}

func NewInstrumentRegistry() *InstrumentRegistry {
	return &InstrumentRegistry{byID: make(map[string]model.Instrument)}
}

// Register adds an instrument and assigns it the next insertion index.
// Only ever called from engine construction, never mid-replay.
func (r *InstrumentRegistry) Register(inst model.Instrument) model.Instrument {
	idx := len(r.order) + 1
	stamped := inst.WithIndex(idx)
	r.byID[inst.ID] = stamped
	r.order = append(r.order, inst.ID)
	return stamped
}

func (r *InstrumentRegistry) Get(id string) (model.Instrument, bool) {
	inst, ok := r.byID[id]
	return inst, ok
}

func (r *InstrumentRegistry) IDs() []string {
	return r.order
}

// BookRegistry holds one book.Book per instrument.
type BookRegistry struct {
	books map[string]*book.Book
}

func NewBookRegistry() *BookRegistry {
	return &BookRegistry{books: make(map[string]*book.Book)}
}

func (r *BookRegistry) Register(instrumentID string, bookType model.BookType) {
	r.books[instrumentID] = book.New(bookType)
}

func (r *BookRegistry) Get(instrumentID string) (*book.Book, bool) {
	b, ok := r.books[instrumentID]
	return b, ok
}

// SinkHolder allows the bound EventSink to be swapped before any
// processing starts (spec §6 register_client), while giving every
// collaborator a stable, never-nil Emit entry point.
type SinkHolder struct {
	sink events.Sink
}

func (h *SinkHolder) Set(s events.Sink) { h.sink = s }

func (h *SinkHolder) Emit(e events.Event) {
	if h.sink == nil {
		return
	}
	h.sink.Emit(e)
}

// Deps is the shared dependency bundle passed to both the order state
// machine and the matching engine.
type Deps struct {
	Instruments *InstrumentRegistry
	Books       *BookRegistry
	Index       *index.Index
	Ids         *idgen.Generator
	Contingency *contingency.Manager
	Positions   *position.Resolver
	PositionCache model.PositionCache
	Account     *account.Adapter
	Clock       *clock.Driver
	Sink        *SinkHolder
	FillModel   *fillmodel.Holder

	// RejectStopOrders mirrors spec §6 construction option
	// reject_stop_orders: when true, a StopMarket whose stop price is
	// already in the market at submit time is rejected rather than
	// accepted resting.
	RejectStopOrders bool
}
