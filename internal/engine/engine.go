// Package engine wires every core collaborator into the single inbound
// API a backtest driver calls (spec §6): construction, client
// registration, the command surface, and the three market-data entry
// points that drive a matching pass. It is the generalization of the
// teacher's Engine type (internal/engine/engine.go), whose one job —
// owning a per-asset OrderBook map and dispatching Trade callbacks — is
// widened here to own the full dependency bundle and drive the state
// machine and matching engine through it instead of a single callback.
package engine

import (
	"github.com/shopspring/decimal"

	"simulex/internal/account"
	"simulex/internal/clock"
	"simulex/internal/config"
	"simulex/internal/contingency"
	"simulex/internal/events"
	"simulex/internal/fillmodel"
	"simulex/internal/idgen"
	"simulex/internal/index"
	"simulex/internal/matching"
	"simulex/internal/model"
	"simulex/internal/position"
	"simulex/internal/queue"
	"simulex/internal/runtime"
	"simulex/internal/statemachine"
)

// Engine is the top-level facade. All mutable state lives inside the
// runtime.Deps bundle and the command queue; Engine itself only holds
// references to its collaborators.
type Engine struct {
	deps     *runtime.Deps
	sm       *statemachine.StateMachine
	matching *matching.Engine
	queue    *queue.Queue
}

// New builds an Engine from loaded Config and the caller's external
// position cache (spec §1 "Position cache" external collaborator). Every
// configured instrument is registered in insertion order, stamping the
// 1-based index spec §4.3 id formats depend on.
func New(cfg config.Config, positionCache model.PositionCache) *Engine {
	if err := cfg.Validate(); err != nil {
		panic("engine: invalid config: " + err.Error())
	}

	instruments := runtime.NewInstrumentRegistry()
	books := runtime.NewBookRegistry()
	for _, ic := range cfg.Instruments {
		inst := instruments.Register(ic.ToInstrument())
		books.Register(inst.ID, ic.ToBookType())
	}

	ids := idgen.New()
	clk := clock.New()
	sink := &runtime.SinkHolder{}

	deps := &runtime.Deps{
		Instruments:      instruments,
		Books:            books,
		Index:            index.New(),
		Ids:              ids,
		Contingency:      contingency.New(),
		Positions:        position.New(cfg.ToOmsType(), positionCache, ids),
		PositionCache:    positionCache,
		Account:          account.New(cfg.Account.ToAccountConfig(), sink, clk.Now),
		Clock:            clk,
		Sink:             sink,
		FillModel:        fillmodel.NewHolder(fillmodel.New(cfg.ToFillModelConfig())),
		RejectStopOrders: cfg.RejectStopOrders,
	}

	sm := statemachine.New(deps)
	return &Engine{
		deps:     deps,
		sm:       sm,
		matching: matching.New(deps, sm),
		queue:    queue.New(),
	}
}

// InitializeAccount emits the opening AccountState (spec §6).
func (e *Engine) InitializeAccount() {
	e.deps.Account.InitializeAccount()
}

// RegisterClient binds the EventSink that receives every emitted lifecycle
// event from this point on (spec §6 register_client).
func (e *Engine) RegisterClient(sink events.Sink) {
	e.deps.Sink.Set(sink)
}

// SetFillModel swaps the active probabilistic fill model (spec §6
// set_fill_model), e.g. between backtest runs with different assumed fill
// rates.
func (e *Engine) SetFillModel(cfg fillmodel.Config) {
	e.deps.FillModel.Set(fillmodel.New(cfg))
}

// AdjustAccount applies an external balance delta, e.g. a funding payment
// or a manual correction (spec §6 adjust_account).
func (e *Engine) AdjustAccount(delta model.Money) {
	e.deps.Account.AdjustAccount(delta)
}

// Send enqueues a trading command for the next process(now_ns) drain
// (spec §6 send(command), §4.4 CommandQueue).
func (e *Engine) Send(cmd queue.Command) {
	e.queue.Send(cmd)
}

// LevelUpdate is one price-level delta in an order-book snapshot/delta
// feed (spec §6 process_order_book).
type LevelUpdate struct {
	Side  model.Side
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// ProcessOrderBook applies a full or incremental order-book update for one
// instrument at nowNs, then drains the command queue and runs a matching
// pass (spec §5 ordering guarantee 1: the clock is set to a market event's
// own time before anything it triggers is emitted; ordering guarantee 2:
// book updated before matching).
func (e *Engine) ProcessOrderBook(instrumentID string, nowNs int64, levels []LevelUpdate) {
	bk, ok := e.deps.Books.Get(instrumentID)
	if !ok {
		panic("engine: unknown book for instrument " + instrumentID)
	}
	for _, lvl := range levels {
		bk.SetLevel(lvl.Side, lvl.Price, lvl.Qty)
	}
	e.deps.Clock.Advance(nowNs)
	e.drainQueue()
	e.matching.OnMarketUpdate(instrumentID)
}

// ProcessTick applies a top-of-book quote update at nowNs (spec §6
// process_tick).
func (e *Engine) ProcessTick(instrumentID string, nowNs int64, bidPx, bidQty, askPx, askQty decimal.Decimal) {
	bk, ok := e.deps.Books.Get(instrumentID)
	if !ok {
		panic("engine: unknown book for instrument " + instrumentID)
	}
	bk.SetTopOfBook(bidPx, bidQty, askPx, askQty)
	e.deps.Clock.Advance(nowNs)
	e.drainQueue()
	e.matching.OnMarketUpdate(instrumentID)
}

// ProcessBar applies an OHLCV bar at nowNs (spec §6 process_bar). The core
// only ever needs a crossable top-of-book to drive fills; a bar is
// collapsed to an L1 quote at its close price on both sides, the same
// simplification backtest engines commonly make when only bar data is
// available (an explicit open-question resolution, see DESIGN.md).
func (e *Engine) ProcessBar(instrumentID string, nowNs int64, open, high, low, close, volume decimal.Decimal) {
	bk, ok := e.deps.Books.Get(instrumentID)
	if !ok {
		panic("engine: unknown book for instrument " + instrumentID)
	}
	bk.SetTopOfBook(close, volume, close, volume)
	e.deps.Clock.Advance(nowNs)
	e.drainQueue()
	e.matching.OnMarketUpdate(instrumentID)
}

// Process advances the simulated clock to now_ns, drains any commands
// queued since the last call, and runs the periodic expiry sweep (spec §6
// process(now_ns)).
func (e *Engine) Process(nowNs int64) {
	e.deps.Clock.Advance(nowNs)
	e.drainQueue()
	e.matching.Tick()
}

func (e *Engine) drainQueue() {
	for _, cmd := range e.queue.Drain() {
		switch c := cmd.(type) {
		case queue.SubmitOrder:
			e.sm.Submit(c.Order)
		case queue.SubmitOrderList:
			for _, o := range c.Orders {
				e.sm.Submit(o)
			}
		case queue.ModifyOrder:
			e.sm.Modify(c.ClientOrderID, c.Quantity, c.Price, c.Trigger)
		case queue.CancelOrder:
			e.sm.Cancel(c.ClientOrderID)
		}
	}
}

// WorkingOrders returns every currently working order across all
// instruments (spec §4.2 working_orders(), exposed for inspection by
// internal/transport).
func (e *Engine) WorkingOrders() []*model.Order {
	return e.deps.Index.WorkingOrders()
}

// Order looks up any order ever submitted by client-order-id, regardless
// of status.
func (e *Engine) Order(clientOrderID string) (*model.Order, bool) {
	return e.deps.Index.Get(clientOrderID)
}

// Reset clears every piece of replay state back to construction-time
// defaults and re-emits the opening AccountState (spec §6 engine.Reset()):
// the queue, the order index, id counters, contingency registrations, the
// clock, and account balances. Instruments, books, the bound EventSink and
// the active fill model survive a reset: books keep their last levels and
// the fill model is not re-seeded, so re-processing the same
// command/market-data stream reproduces the earlier event sequence byte
// for byte only when the book levels and fill-model draws repeat as well
// (for instance after SetFillModel with the original seed).
func (e *Engine) Reset() {
	e.queue.Reset()
	e.deps.Index.Reset()
	e.deps.Ids.Reset()
	e.deps.Contingency.Reset()
	e.deps.Clock.Reset()
	e.deps.Account.Reset()
	e.deps.Account.InitializeAccount()
}
