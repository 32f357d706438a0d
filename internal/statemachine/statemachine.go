// Package statemachine implements OrderStateMachine (spec §4.5 C6): the
// single authority for every order lifecycle transition, and the shared
// fill-execution path both the submit path and the matching engine call
// into. It is the direct generalization of the teacher's
// internal/engine/engine.go Submit/Cancel handlers, widened from one order
// type to the tagged variant over {Market, Limit, StopMarket, StopLimit}.
package statemachine

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"simulex/internal/book"
	"simulex/internal/events"
	"simulex/internal/model"
	"simulex/internal/runtime"
)

// StateMachine owns every order transition. It holds no state of its own
// beyond the shared Deps bundle — all order state lives in deps.Index.
type StateMachine struct {
	deps *runtime.Deps
}

func New(deps *runtime.Deps) *StateMachine {
	return &StateMachine{deps: deps}
}

func (sm *StateMachine) now() int64 { return sm.deps.Clock.Now() }

// --- event emission helpers -------------------------------------------------

func (sm *StateMachine) emitSubmitted(o *model.Order) {
	sm.deps.Sink.Emit(events.OrderSubmitted{
		Base:          events.Base{TsEventNs: sm.now()},
		ClientOrderID: o.ClientOrderID,
		InstrumentID:  o.InstrumentID,
	})
}

func (sm *StateMachine) emitAccepted(o *model.Order) {
	sm.deps.Sink.Emit(events.OrderAccepted{
		Base:          events.Base{TsEventNs: sm.now()},
		ClientOrderID: o.ClientOrderID,
		VenueOrderID:  o.VenueOrderID,
		InstrumentID:  o.InstrumentID,
	})
}

func (sm *StateMachine) emitRejected(o *model.Order, reason string) {
	sm.deps.Sink.Emit(events.OrderRejected{
		Base:          events.Base{TsEventNs: sm.now()},
		ClientOrderID: o.ClientOrderID,
		InstrumentID:  o.InstrumentID,
		Reason:        reason,
	})
}

func (sm *StateMachine) emitPendingUpdate(cid string) {
	sm.deps.Sink.Emit(events.OrderPendingUpdate{Base: events.Base{TsEventNs: sm.now()}, ClientOrderID: cid})
}

func (sm *StateMachine) emitPendingCancel(cid string) {
	sm.deps.Sink.Emit(events.OrderPendingCancel{Base: events.Base{TsEventNs: sm.now()}, ClientOrderID: cid})
}

func (sm *StateMachine) emitModifyRejected(cid, reason string) {
	sm.deps.Sink.Emit(events.OrderModifyRejected{Base: events.Base{TsEventNs: sm.now()}, ClientOrderID: cid, Reason: reason})
}

func (sm *StateMachine) emitCancelRejected(cid, reason string) {
	sm.deps.Sink.Emit(events.OrderCancelRejected{Base: events.Base{TsEventNs: sm.now()}, ClientOrderID: cid, Reason: reason})
}

func (sm *StateMachine) emitUpdated(o *model.Order) {
	sm.deps.Sink.Emit(events.OrderUpdated{
		Base:          events.Base{TsEventNs: sm.now()},
		ClientOrderID: o.ClientOrderID,
		Quantity:      o.Quantity,
		Price:         o.Price,
		Trigger:       o.Trigger,
	})
}

func (sm *StateMachine) emitCanceled(cid string) {
	sm.deps.Sink.Emit(events.OrderCanceled{Base: events.Base{TsEventNs: sm.now()}, ClientOrderID: cid})
}

func (sm *StateMachine) emitTriggered(cid string) {
	sm.deps.Sink.Emit(events.OrderTriggered{Base: events.Base{TsEventNs: sm.now()}, ClientOrderID: cid})
}

func (sm *StateMachine) emitExpired(cid string) {
	sm.deps.Sink.Emit(events.OrderExpired{Base: events.Base{TsEventNs: sm.now()}, ClientOrderID: cid})
}

// --- submit ------------------------------------------------------------------

// Submit processes one SubmitOrder command (spec §4.5 Submit). A duplicate
// client-order-id is silently dropped, matching the venue's idempotent
// resend handling.
func (sm *StateMachine) Submit(order model.Order) {
	if _, exists := sm.deps.Index.Get(order.ClientOrderID); exists {
		log.Debug().Str("cid", order.ClientOrderID).Msg("statemachine: duplicate client_order_id, dropped")
		return
	}

	o := order
	o.Status = model.Submitted
	sm.emitSubmitted(&o)

	if o.Contingency == model.OTO {
		for _, childCid := range o.ChildOrderIDs {
			sm.deps.Contingency.RegisterOTOChild(childCid, o.ClientOrderID)
		}
	}

	if parentCid, ok := sm.deps.Contingency.ParentOf(o.ClientOrderID); ok {
		parent, found := sm.deps.Index.Get(parentCid)
		if !found {
			panic("statemachine: OTO parent " + parentCid + " missing from order index")
		}
		switch parent.Status {
		case model.Rejected:
			sm.reject(&o, fmt.Sprintf("REJECT OTO from %s", parentCid))
			return
		case model.Filled, model.PartiallyFilled, model.Canceled, model.Expired:
			// Parent already resolved one way or another; fall through to
			// ordinary dispatch below.
		default:
			// Parent still pending (Accepted or otherwise not yet terminal):
			// keep the child recorded but inactive until the parent
			// receives a fill (spec §4.6 post-fill OTO processing).
			sm.deps.Index.Insert(&o)
			return
		}
	}

	instrument, ok := sm.deps.Instruments.Get(o.InstrumentID)
	if !ok {
		panic("statemachine: unknown instrument " + o.InstrumentID)
	}

	if o.IsReduceOnly && sm.reduceOnlyViolation(&o) {
		sm.reject(&o, fmt.Sprintf("REDUCE_ONLY %s would have increased position", o.ClientOrderID))
		return
	}

	bk, ok := sm.deps.Books.Get(o.InstrumentID)
	if !ok {
		panic("statemachine: unknown book for instrument " + o.InstrumentID)
	}
	bestBid, bbOk := bk.BestBid()
	bestAsk, baOk := bk.BestAsk()

	switch o.OrderType {
	case model.Market:
		marketSideHasDepth := (o.Side == model.Buy && baOk) || (o.Side == model.Sell && bbOk)
		if !marketSideHasDepth {
			sm.reject(&o, fmt.Sprintf("no market for %s", o.InstrumentID))
			return
		}
		sm.ExecuteFill(&o, instrument, model.Taker, true, bk)

	case model.Limit:
		marketable := book.IsMarketable(o.Side, o.Price, bestBid, bestAsk, bbOk, baOk)
		if marketable && o.IsPostOnly {
			sm.reject(&o, "POST_ONLY order would have crossed the market")
			return
		}
		sm.accept(&o, instrument)
		if marketable {
			sm.ExecuteFill(&o, instrument, model.Taker, false, bk)
		}

	case model.StopMarket:
		inMarket := book.IsStopInMarket(o.Side, o.Price, bestBid, bestAsk, bbOk, baOk)
		if inMarket && sm.deps.RejectStopOrders {
			sm.reject(&o, "stop price already in the market")
			return
		}
		sm.accept(&o, instrument)

	case model.StopLimit:
		inMarket := book.IsStopInMarket(o.Side, o.Trigger, bestBid, bestAsk, bbOk, baOk)
		if inMarket {
			sm.reject(&o, "trigger price already in the market")
			return
		}
		sm.accept(&o, instrument)
	}
}

func (sm *StateMachine) reject(o *model.Order, reason string) {
	o.Status = model.Rejected
	sm.deps.Index.Insert(o)
	sm.emitRejected(o, reason)
}

func (sm *StateMachine) accept(o *model.Order, instrument model.Instrument) {
	if o.VenueOrderID == "" {
		o.VenueOrderID = sm.deps.Ids.NextVenueOrderID(instrument.Index())
	}
	o.Status = model.Accepted
	sm.deps.Index.Insert(o)
	sm.emitAccepted(o)
}

// reduceOnlyViolation reports whether order would increase exposure rather
// than reduce it: no open position, a closed position, or an order on the
// same side as the existing position's direction (spec §4.5).
func (sm *StateMachine) reduceOnlyViolation(o *model.Order) bool {
	pos, ok := sm.lookupPosition(o)
	if !ok || !pos.IsOpen() {
		return true
	}
	sameDirection := (pos.Side == model.Long && o.Side == model.Buy) || (pos.Side == model.Short && o.Side == model.Sell)
	return sameDirection
}

func (sm *StateMachine) lookupPosition(o *model.Order) (model.Position, bool) {
	var posID string
	switch {
	case o.VenuePositionID != "":
		posID = o.VenuePositionID
	default:
		switch sm.resolverOms() {
		case model.Hedging:
			posID, _ = sm.deps.PositionCache.PositionIDForOrder(o.ClientOrderID)
		default:
			if p, ok := sm.deps.PositionCache.OpenPositionForInstrument(o.InstrumentID); ok {
				posID = p.ID
			}
		}
	}
	if posID == "" {
		return model.Position{}, false
	}
	return sm.deps.PositionCache.Position(posID)
}

func (sm *StateMachine) resolverOms() model.OmsType {
	return sm.deps.Positions.OmsType()
}

// --- modify ------------------------------------------------------------------

// Modify processes one ModifyOrder command (spec §4.5 Modify).
func (sm *StateMachine) Modify(cid string, qty, price, trigger *decimal.Decimal) {
	o, ok := sm.deps.Index.Get(cid)
	if !ok || !o.Status.IsWorking() {
		sm.emitModifyRejected(cid, cid+" not found or not working")
		return
	}

	instrument, ok := sm.deps.Instruments.Get(o.InstrumentID)
	if !ok {
		panic("statemachine: unknown instrument " + o.InstrumentID)
	}
	bk, ok := sm.deps.Books.Get(o.InstrumentID)
	if !ok {
		panic("statemachine: unknown book for instrument " + o.InstrumentID)
	}
	bestBid, bbOk := bk.BestBid()
	bestAsk, baOk := bk.BestAsk()

	sm.emitPendingUpdate(cid)

	switch o.OrderType {
	case model.Limit:
		newPrice := o.Price
		if price != nil {
			newPrice = *price
		}
		marketable := book.IsMarketable(o.Side, newPrice, bestBid, bestAsk, bbOk, baOk)
		if marketable && o.IsPostOnly {
			sm.emitModifyRejected(cid, "POST_ONLY modify would cross the market")
			return
		}
		o.Price = newPrice
		applyQtyChange(o, qty)
		sm.deps.Index.Resort(o)
		sm.emitUpdated(o)
		sm.propagateOCOLeaves(o)
		if marketable {
			sm.ExecuteFill(o, instrument, model.Taker, false, bk)
		}

	case model.StopMarket:
		newStop := o.Price
		if price != nil {
			newStop = *price
		}
		if book.IsStopInMarket(o.Side, newStop, bestBid, bestAsk, bbOk, baOk) {
			sm.emitModifyRejected(cid, "stop price already in the market")
			return
		}
		o.Price = newStop
		applyQtyChange(o, qty)
		sm.deps.Index.Resort(o)
		sm.emitUpdated(o)
		sm.propagateOCOLeaves(o)

	case model.StopLimit:
		if !o.IsTriggered {
			newTrigger := o.Trigger
			if trigger != nil {
				newTrigger = *trigger
			}
			if book.IsStopInMarket(o.Side, newTrigger, bestBid, bestAsk, bbOk, baOk) {
				sm.emitModifyRejected(cid, "trigger price already in the market")
				return
			}
			o.Trigger = newTrigger
			if price != nil {
				o.Price = *price
			}
			applyQtyChange(o, qty)
			sm.deps.Index.Resort(o)
			sm.emitUpdated(o)
			sm.propagateOCOLeaves(o)
		} else {
			newPrice := o.Price
			if price != nil {
				newPrice = *price
			}
			marketable := book.IsMarketable(o.Side, newPrice, bestBid, bestAsk, bbOk, baOk)
			if marketable && o.IsPostOnly {
				sm.emitModifyRejected(cid, "POST_ONLY modify would cross the market")
				return
			}
			o.Price = newPrice
			applyQtyChange(o, qty)
			sm.deps.Index.Resort(o)
			sm.emitUpdated(o)
			sm.propagateOCOLeaves(o)
			if marketable {
				sm.ExecuteFill(o, instrument, model.Taker, false, bk)
			}
		}

	case model.Market:
		// Market orders resolve before they could ever be found working;
		// unreachable in practice.
	}
}

func applyQtyChange(o *model.Order, qty *decimal.Decimal) {
	if qty == nil {
		return
	}
	newLeaves := qty.Sub(o.FilledQty)
	if newLeaves.IsNegative() {
		newLeaves = decimal.Zero
	}
	o.Reduce(newLeaves)
}

func (sm *StateMachine) propagateOCOLeaves(o *model.Order) {
	if o.Contingency != model.OCO {
		return
	}
	for _, sibCid := range o.ContingencyIDs {
		sib, ok := sm.deps.Index.Get(sibCid)
		if !ok {
			panic("statemachine: OCO sibling " + sibCid + " missing from order index")
		}
		if sib.Status.IsTerminal() {
			continue
		}
		sib.Reduce(o.LeavesQty)
		sm.deps.Index.Resort(sib)
		sm.emitUpdated(sib)
	}
}

// --- cancel ------------------------------------------------------------------

// Cancel processes one CancelOrder command (spec §4.5 Cancel). Canceling an
// OCO member cancels its active siblings too, in a single flat pass.
func (sm *StateMachine) Cancel(cid string) {
	o, ok := sm.deps.Index.Get(cid)
	if !ok || !o.Status.IsWorking() {
		sm.emitCancelRejected(cid, cid+" not found or not working")
		return
	}
	sm.emitPendingCancel(cid)
	sm.terminateCanceled(o)

	if o.Contingency == model.OCO {
		for _, sibCid := range o.ContingencyIDs {
			sib, ok := sm.deps.Index.Get(sibCid)
			if !ok {
				panic("statemachine: OCO sibling " + sibCid + " missing from order index")
			}
			if sib.Status.IsTerminal() {
				continue
			}
			sm.terminateCanceled(sib)
		}
	}
}

func (sm *StateMachine) terminateCanceled(o *model.Order) {
	sm.deps.Index.Deactivate(o)
	o.Status = model.Canceled
	sm.emitCanceled(o.ClientOrderID)
}

// Expire transitions a working order past its expire_time_ns (spec §4.5
// Expire, called from the matching engine's per-tick expiry scan). OCO
// siblings are canceled, matching the Cancel path's cascade.
func (sm *StateMachine) Expire(o *model.Order) {
	sm.deps.Index.Deactivate(o)
	o.Status = model.Expired
	sm.emitExpired(o.ClientOrderID)

	if o.Contingency == model.OCO {
		for _, sibCid := range o.ContingencyIDs {
			sib, ok := sm.deps.Index.Get(sibCid)
			if !ok {
				panic("statemachine: OCO sibling " + sibCid + " missing from order index")
			}
			if sib.Status.IsTerminal() {
				continue
			}
			sm.terminateCanceled(sib)
		}
	}
}

// TriggerStopLimit flips a StopLimit order from trigger-watch to its limit
// leg (spec §4.6): emits OrderTriggered and re-sorts it in the index under
// its limit price. The caller (matching engine) is responsible for then
// checking marketability of the limit leg.
func (sm *StateMachine) TriggerStopLimit(o *model.Order) {
	o.IsTriggered = true
	o.Status = model.Triggered
	sm.deps.Index.Resort(o)
	sm.emitTriggered(o.ClientOrderID)
}

// RejectWorkingOrder removes an already-working order from the index and
// rejects it — used when a StopLimit's limit leg turns out marketable
// against a post-only flag immediately after trigger (spec §4.6).
func (sm *StateMachine) RejectWorkingOrder(o *model.Order, reason string) {
	sm.deps.Index.Deactivate(o)
	o.Status = model.Rejected
	sm.emitRejected(o, reason)
}

// --- fill execution ----------------------------------------------------------

// ExecuteFill applies a simulated fill plan to an order: reduce-only
// clipping, stop-price substitution for the first allocation of a
// StopMarket, L1 slippage injection, commission, OrderFilled emission, book
// removal on completion, post-fill contingency processing, and the L1
// residual-walk heuristic (spec §4.6 "Fill pricing" and "Post-fill
// contingency processing"). Called both from Submit/Modify for an
// immediately-marketable order and from the matching engine for a resting
// order touched by the market.
func (sm *StateMachine) ExecuteFill(o *model.Order, instrument model.Instrument, liquidity model.LiquiditySide, unconstrained bool, bk *book.Book) {
	if o.VenueOrderID == "" {
		o.VenueOrderID = sm.deps.Ids.NextVenueOrderID(instrument.Index())
	}

	limitPrice := o.Price
	plan := bk.SimulateFills(o.Side, limitPrice, unconstrained, o.LeavesQty)

	if o.IsReduceOnly {
		plan = sm.clipReduceOnly(o, plan)
	}

	var lastMarketPrice decimal.Decimal
	havePrice := false
	for i, alloc := range plan {
		fillPrice := alloc.Price
		if i == 0 && o.OrderType == model.StopMarket {
			fillPrice = o.Price
		}
		fm := sm.deps.FillModel.Current()
		if bk.Type() == model.L1TBBO && fm != nil && fm.IsSlipped() {
			fillPrice = slip(o.Side, fillPrice, instrument.PriceIncrement)
		}
		sm.applyOneFill(o, instrument, liquidity, fillPrice, alloc.Qty)
		lastMarketPrice = alloc.Price // the book's own quote, never the stop-price override
		havePrice = true
		if o.Status == model.Filled {
			break
		}
	}

	if o.Status == model.Filled {
		sm.deps.Index.Deactivate(o)
	}

	if !o.LeavesQty.IsZero() && bk.Type() == model.L1TBBO && havePrice &&
		(o.OrderType == model.Market || o.OrderType == model.StopMarket) {
		residualPrice := walkResidual(o.Side, lastMarketPrice, instrument.PriceIncrement)
		sm.applyOneFill(o, instrument, liquidity, residualPrice, o.LeavesQty)
		if o.Status == model.Filled {
			sm.deps.Index.Deactivate(o)
		}
	}

	sm.postFillContingency(o, instrument)
}

func (sm *StateMachine) clipReduceOnly(o *model.Order, plan []book.FillLevel) []book.FillLevel {
	pos, ok := sm.lookupPosition(o)
	if !ok {
		return plan
	}
	available := pos.Quantity
	if available.GreaterThanOrEqual(o.LeavesQty) {
		return plan
	}
	newLeaves := available
	if newLeaves.IsNegative() {
		newLeaves = decimal.Zero
	}
	o.Reduce(newLeaves)
	sm.emitUpdated(o)

	var clipped []book.FillLevel
	remaining := newLeaves
	for _, alloc := range plan {
		if remaining.IsZero() || remaining.IsNegative() {
			break
		}
		take := alloc.Qty
		if take.GreaterThan(remaining) {
			take = remaining
		}
		clipped = append(clipped, book.FillLevel{Price: alloc.Price, Qty: take})
		remaining = remaining.Sub(take)
	}
	return clipped
}

func (sm *StateMachine) applyOneFill(o *model.Order, instrument model.Instrument, liquidity model.LiquiditySide, price, qty decimal.Decimal) {
	if qty.IsZero() || qty.IsNegative() {
		return
	}
	if o.VenuePositionID == "" {
		id, generated := sm.deps.Positions.Resolve(o, instrument.Index())
		if id == "" && !generated {
			id = sm.deps.Positions.GenerateNew(instrument.Index())
		}
		o.VenuePositionID = id
	}
	o.ApplyFill(qty)
	commission := sm.deps.Account.CalculateCommission(instrument, qty, price, liquidity)
	sm.deps.Sink.Emit(events.OrderFilled{
		Base:            events.Base{TsEventNs: sm.now()},
		ClientOrderID:   o.ClientOrderID,
		ExecutionID:     sm.deps.Ids.NextExecutionID(),
		VenueOrderID:    o.VenueOrderID,
		VenuePositionID: o.VenuePositionID,
		InstrumentID:    o.InstrumentID,
		Side:            o.Side,
		Quantity:        qty,
		Price:           price,
		QuoteCurrency:   instrument.QuoteCurrency,
		Commission:      commission,
		LiquiditySide:   liquidity,
	})
}

func (sm *StateMachine) postFillContingency(o *model.Order, instrument model.Instrument) {
	if o.Contingency == model.OTO && len(o.ChildOrderIDs) > 0 {
		for _, childCid := range o.ChildOrderIDs {
			child, ok := sm.deps.Index.Get(childCid)
			if !ok {
				panic("statemachine: OTO child " + childCid + " missing from order index")
			}
			if child.VenuePositionID == "" {
				child.VenuePositionID = o.VenuePositionID
			}
			if child.Status == model.Submitted {
				childInstrument, ok := sm.deps.Instruments.Get(child.InstrumentID)
				if !ok {
					panic("statemachine: unknown instrument " + child.InstrumentID)
				}
				sm.accept(child, childInstrument)
			}
		}
	}

	if o.Contingency == model.OCO && len(o.ContingencyIDs) > 0 {
		switch o.Status {
		case model.Filled:
			for _, sibCid := range o.ContingencyIDs {
				sib, ok := sm.deps.Index.Get(sibCid)
				if !ok {
					panic("statemachine: OCO sibling " + sibCid + " missing from order index")
				}
				if sib.Status.IsTerminal() {
					continue
				}
				sm.terminateCanceled(sib)
			}
		case model.PartiallyFilled:
			sm.propagateOCOLeaves(o)
		}
	}

	sm.propagateReduceOnlyFollowUps(o)
}

// propagateReduceOnlyFollowUps keeps every other working reduce-only order
// on the same position in sync with a fill that just changed its size
// (spec §4.6 post-fill contingency processing, reduce-only follow-ups): once
// the position reaches flat they can no longer reduce anything and are
// canceled; if it shrank but is still open, their quantity is clipped down
// to what remains so they can never over-fill the position.
func (sm *StateMachine) propagateReduceOnlyFollowUps(o *model.Order) {
	if o.VenuePositionID == "" {
		return
	}
	pos, ok := sm.deps.PositionCache.Position(o.VenuePositionID)
	if !ok {
		return
	}
	for _, wo := range sm.deps.Index.WorkingOrders() {
		if wo.ClientOrderID == o.ClientOrderID || wo.VenuePositionID != o.VenuePositionID || !wo.IsReduceOnly {
			continue
		}
		if pos.Quantity.IsZero() {
			sm.terminateCanceled(wo)
			continue
		}
		if wo.LeavesQty.GreaterThan(pos.Quantity) {
			wo.Reduce(pos.Quantity)
			sm.deps.Index.Resort(wo)
			sm.emitUpdated(wo)
		}
	}
}

// slip moves a fill price one tick against the trader: up for a buy, down
// for a sell (spec §4.6 L1 slippage injection).
func slip(side model.Side, price, increment decimal.Decimal) decimal.Decimal {
	if side == model.Buy {
		return price.Add(increment)
	}
	return price.Sub(increment)
}

// walkResidual synthesizes the next L1 price one tick past the book price
// of the last allocation (not a stop-price override), in the direction the book would move were it to absorb more size (spec
// §4.6 residual-walk heuristic for Market/StopMarket orders on an L1 book).
func walkResidual(side model.Side, lastPrice, increment decimal.Decimal) decimal.Decimal {
	if side == model.Buy {
		return lastPrice.Add(increment)
	}
	return lastPrice.Sub(increment)
}
