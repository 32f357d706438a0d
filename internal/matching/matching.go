// Package matching implements MatchingEngine (spec §4.6 C7): the per-
// instrument pass that walks working orders against the reconstructed book
// and drives fills through the order state machine. It owns no order state
// itself — deps.Index is the source of truth — only the walk-and-dispatch
// logic, generalized from the teacher's internal/engine/engine.go Trade
// callback (a single match notification) into a full price/time sweep.
package matching

import (
	"github.com/shopspring/decimal"

	"simulex/internal/book"
	"simulex/internal/fillmodel"
	"simulex/internal/model"
	"simulex/internal/runtime"
	"simulex/internal/statemachine"
)

// Engine is the matching pass driver. It is stateless beyond the shared
// Deps bundle and a handle to the order state machine it issues
// transitions through.
type Engine struct {
	deps *runtime.Deps
	sm   *statemachine.StateMachine
}

func New(deps *runtime.Deps, sm *statemachine.StateMachine) *Engine {
	return &Engine{deps: deps, sm: sm}
}

// OnMarketUpdate runs one matching pass for an instrument: first expiring
// any working order whose expire_time_ns has elapsed, then walking its
// working bids and asks for trigger/fill opportunities against the
// instrument's current book (spec §5 ordering guarantee 2: book updated
// before this runs).
func (e *Engine) OnMarketUpdate(instrumentID string) {
	e.expireInstrument(instrumentID)
	e.matchSide(instrumentID, model.Buy)
	e.matchSide(instrumentID, model.Sell)
}

// Tick runs the periodic, market-update-independent half of matching: an
// expiry sweep across every instrument, so a GTD order expires even during
// a quiet period with no incoming market data (spec §6 process(now_ns)).
func (e *Engine) Tick() {
	for _, id := range e.deps.Instruments.IDs() {
		e.expireInstrument(id)
	}
}

func (e *Engine) expireInstrument(instrumentID string) {
	now := e.deps.Clock.Now()
	for _, o := range e.deps.Index.Bids(instrumentID) {
		e.expireIfDue(o, now)
	}
	for _, o := range e.deps.Index.Asks(instrumentID) {
		e.expireIfDue(o, now)
	}
}

func (e *Engine) expireIfDue(o *model.Order, nowNs int64) {
	if !o.Status.IsWorking() || o.ExpireTimeNs == 0 || nowNs < o.ExpireTimeNs {
		return
	}
	e.sm.Expire(o)
}

func (e *Engine) matchSide(instrumentID string, side model.Side) {
	var working []*model.Order
	if side == model.Buy {
		working = e.deps.Index.Bids(instrumentID)
	} else {
		working = e.deps.Index.Asks(instrumentID)
	}
	if len(working) == 0 {
		return
	}

	instrument, ok := e.deps.Instruments.Get(instrumentID)
	if !ok {
		panic("matching: unknown instrument " + instrumentID)
	}
	bk, ok := e.deps.Books.Get(instrumentID)
	if !ok {
		panic("matching: unknown book for instrument " + instrumentID)
	}
	fm := e.deps.FillModel.Current()

	for _, o := range working {
		if !o.Status.IsWorking() {
			continue // deactivated earlier in this same pass (expiry, OCO/OTO cascade)
		}

		bestBid, bbOk := bk.BestBid()
		bestAsk, baOk := bk.BestAsk()

		switch o.OrderType {
		case model.Limit:
			e.matchLimitLeg(o, instrument, bk, o.Price, bestBid, bestAsk, bbOk, baOk, fm)

		case model.StopMarket:
			if e.stopTriggered(o.Side, o.Price, bestBid, bestAsk, bbOk, baOk, fm) {
				e.sm.ExecuteFill(o, instrument, model.Taker, true, bk)
			}

		case model.StopLimit:
			if !o.IsTriggered {
				if !e.stopTriggered(o.Side, o.Trigger, bestBid, bestAsk, bbOk, baOk, fm) {
					continue
				}
				e.sm.TriggerStopLimit(o)
				bestBid, bbOk = bk.BestBid()
				bestAsk, baOk = bk.BestAsk()
				marketable := isMarketable(o.Side, o.Price, bestBid, bestAsk, bbOk, baOk)
				if marketable && o.IsPostOnly {
					e.sm.RejectWorkingOrder(o, "POST_ONLY trigger would have crossed the market")
					continue
				}
				if marketable {
					e.sm.ExecuteFill(o, instrument, model.Taker, false, bk)
				}
			} else {
				e.matchLimitLeg(o, instrument, bk, o.Price, bestBid, bestAsk, bbOk, baOk, fm)
			}
		}
	}
}

// matchLimitLeg applies the Maker fill test to a resting limit leg
// (plain Limit, or a triggered StopLimit): a crossed book fills
// deterministically, a mere touch fills on a FillModel draw (spec §4.6
// "Fill pricing").
func (e *Engine) matchLimitLeg(o *model.Order, instrument model.Instrument, bk *book.Book, limitPrice, bestBid, bestAsk decimal.Decimal, bbOk, baOk bool, fm *fillmodel.FillModel) {
	var opposing decimal.Decimal
	var opposingOk bool
	if o.Side == model.Buy {
		opposing, opposingOk = bestAsk, baOk
	} else {
		opposing, opposingOk = bestBid, bbOk
	}
	if !opposingOk {
		return
	}

	crosses := crossesStrict(o.Side, limitPrice, opposing)
	touches := opposing.Equal(limitPrice)
	if !crosses && !(touches && fm != nil && fm.IsLimitFilled()) {
		return
	}
	e.sm.ExecuteFill(o, instrument, model.Maker, false, bk)
}

func (e *Engine) stopTriggered(side model.Side, stopPrice, bestBid, bestAsk decimal.Decimal, bbOk, baOk bool, fm *fillmodel.FillModel) bool {
	var opposing decimal.Decimal
	var opposingOk bool
	if side == model.Buy {
		opposing, opposingOk = bestAsk, baOk
	} else {
		opposing, opposingOk = bestBid, bbOk
	}
	if !opposingOk {
		return false
	}
	crosses := stopCrossesStrict(side, stopPrice, opposing) // market has moved past the stop
	touches := opposing.Equal(stopPrice)
	return crosses || (touches && fm != nil && fm.IsStopFilled())
}

// crossesStrict reports whether the market has moved strictly past a
// resting limit's price in the direction that guarantees a fill: for a
// buy, the opposing ask below the reference; for a sell, the opposing bid
// above it.
func crossesStrict(side model.Side, reference, opposing decimal.Decimal) bool {
	if side == model.Buy {
		return opposing.LessThan(reference)
	}
	return opposing.GreaterThan(reference)
}

// stopCrossesStrict reports whether the market has moved strictly past a
// stop/trigger price in the direction that arms it: for a buy, the
// opposing ask above the stop; for a sell, the opposing bid below it
// (the mirror image of crossesStrict — a resting limit fills as the
// market comes back to meet it, a stop triggers as the market runs away
// from it). Mirrors book.IsStopInMarket.
func stopCrossesStrict(side model.Side, stopPrice, opposing decimal.Decimal) bool {
	if side == model.Buy {
		return opposing.GreaterThan(stopPrice)
	}
	return opposing.LessThan(stopPrice)
}

func isMarketable(side model.Side, price, bestBid, bestAsk decimal.Decimal, bestBidOk, bestAskOk bool) bool {
	if side == model.Buy {
		return bestAskOk && price.GreaterThanOrEqual(bestAsk)
	}
	return bestBidOk && price.LessThanOrEqual(bestBid)
}
