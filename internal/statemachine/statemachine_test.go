package statemachine_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simulex/internal/account"
	"simulex/internal/clock"
	"simulex/internal/contingency"
	"simulex/internal/events"
	"simulex/internal/fillmodel"
	"simulex/internal/idgen"
	"simulex/internal/index"
	"simulex/internal/model"
	"simulex/internal/position"
	"simulex/internal/runtime"
	"simulex/internal/statemachine"
)

type fakeCache struct{}

func (fakeCache) PositionIDForOrder(string) (string, bool)                { return "", false }
func (fakeCache) OpenPositionForInstrument(string) (model.Position, bool) { return model.Position{}, false }
func (fakeCache) Position(string) (model.Position, bool)                 { return model.Position{}, false }

type recordingSink struct{ events []events.Event }

func (s *recordingSink) Emit(e events.Event) { s.events = append(s.events, e) }

func d(s string) decimal.Decimal {
	dec, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return dec
}

// 1. Setup: a single-instrument deps bundle with a seeded L2 book, the
// same shape engine.New assembles, but built directly here so the state
// machine's contingency/reduce-only logic can be exercised in isolation.
func newTestDeps(t *testing.T) (*runtime.Deps, *recordingSink) {
	t.Helper()
	instruments := runtime.NewInstrumentRegistry()
	inst := instruments.Register(model.Instrument{ID: "BTC-USD", QuoteCurrency: "USD", PricePrecision: 2, PriceIncrement: d("0.01")})
	books := runtime.NewBookRegistry()
	books.Register(inst.ID, model.L2MBP)
	bk, _ := books.Get(inst.ID)
	bk.SetLevel(model.Buy, d("99.00"), d("10"))
	bk.SetLevel(model.Sell, d("101.00"), d("10"))

	ids := idgen.New()
	sink := &recordingSink{}
	deps := &runtime.Deps{
		Instruments: instruments,
		Books:       books,
		Index:       index.New(),
		Ids:         ids,
		Contingency: contingency.New(),
		Positions:   position.New(model.Hedging, fakeCache{}, ids),
		Account: account.New(account.Config{
			AccountID:    "acct-1",
			BaseCurrency: "USD",
			StartingBalances: []model.Money{
				model.NewMoney(d("100000"), "USD"),
			},
			DefaultLeverage: d("1"),
		}, sink, func() int64 { return 0 }),
		Clock:     clock.New(),
		Sink:      &runtime.SinkHolder{},
		FillModel: fillmodel.NewHolder(fillmodel.New(fillmodel.Config{PFillOnLimit: 1, PFillOnStop: 1, PSlippage: 0, Seed: 1})),
	}
	deps.Sink.Set(sink)
	return deps, sink
}

func TestSubmit_DuplicateClientOrderIDIsDropped(t *testing.T) {
	deps, sink := newTestDeps(t)
	sm := statemachine.New(deps)

	o := model.NewOrder("cid-1", "strat", "BTC-USD", model.Buy, model.Limit, d("1"))
	o.Price = d("98.00")
	sm.Submit(o)
	before := len(sink.events)
	sm.Submit(o)
	assert.Equal(t, before, len(sink.events), "a duplicate client_order_id must not emit any further events")
}

func TestSubmit_ReduceOnlyWithNoOpenPositionIsRejected(t *testing.T) {
	deps, _ := newTestDeps(t)
	sm := statemachine.New(deps)

	o := model.NewOrder("cid-2", "strat", "BTC-USD", model.Sell, model.Limit, d("1"))
	o.Price = d("102.00")
	o.IsReduceOnly = true
	sm.Submit(o)

	got, ok := deps.Index.Get("cid-2")
	require.True(t, ok)
	assert.Equal(t, model.Rejected, got.Status, "reduce_only with no open position must reject rather than rest")
}

func TestSubmit_OTOChildWaitsUntilParentFills(t *testing.T) {
	deps, _ := newTestDeps(t)
	sm := statemachine.New(deps)

	child := model.NewOrder("child-1", "strat", "BTC-USD", model.Sell, model.Limit, d("1"))
	child.Price = d("105.00")

	parent := model.NewOrder("parent-1", "strat", "BTC-USD", model.Buy, model.Limit, d("1"))
	parent.Price = d("98.00") // rests, does not cross
	parent.Contingency = model.OTO
	parent.ChildOrderIDs = []string{"child-1"}

	sm.Submit(parent)
	gotParent, ok := deps.Index.Get("parent-1")
	require.True(t, ok)
	assert.Equal(t, model.Accepted, gotParent.Status, "parent resting at a non-crossing price must be Accepted, not Filled")

	sm.Submit(child)
	gotChild, ok := deps.Index.Get("child-1")
	require.True(t, ok)
	assert.Equal(t, model.Submitted, gotChild.Status, "an OTO child submitted while its parent rests must wait, not reject")
	assert.Equal(t, model.Submitted, mustGet(t, deps, "child-1").Status, "child stays inactive while the parent is merely resting")

	// 2. Parent fills when the market crosses its resting price.
	bk, _ := deps.Books.Get("BTC-USD")
	bk.SetLevel(model.Sell, d("97.00"), d("10"))
	parentPtr := mustGet(t, deps, "parent-1")
	sm.ExecuteFill(parentPtr, mustInstrument(t, deps, "BTC-USD"), model.Maker, false, bk)

	assert.Equal(t, model.Filled, mustGet(t, deps, "parent-1").Status)
	assert.Equal(t, model.Accepted, mustGet(t, deps, "child-1").Status, "a filled OTO parent must activate its waiting child")
}

func TestCancel_OCOCascadesToSibling(t *testing.T) {
	deps, _ := newTestDeps(t)
	sm := statemachine.New(deps)

	a := model.NewOrder("oco-a", "strat", "BTC-USD", model.Buy, model.Limit, d("1"))
	a.Price = d("95.00")
	a.Contingency = model.OCO
	a.ContingencyIDs = []string{"oco-b"}

	b := model.NewOrder("oco-b", "strat", "BTC-USD", model.Buy, model.Limit, d("1"))
	b.Price = d("94.00")
	b.Contingency = model.OCO
	b.ContingencyIDs = []string{"oco-a"}

	sm.Submit(a)
	sm.Submit(b)
	require.Equal(t, model.Accepted, mustGet(t, deps, "oco-a").Status)
	require.Equal(t, model.Accepted, mustGet(t, deps, "oco-b").Status)

	sm.Cancel("oco-a")

	assert.Equal(t, model.Canceled, mustGet(t, deps, "oco-a").Status)
	assert.Equal(t, model.Canceled, mustGet(t, deps, "oco-b").Status, "canceling one OCO member must cancel its sibling")
}

func TestModify_PostOnlyRejectedWhenMarketMovedAgainstIt(t *testing.T) {
	deps, sink := newTestDeps(t)
	sm := statemachine.New(deps)

	o := model.NewOrder("sell-1", "strat", "BTC-USD", model.Sell, model.Limit, d("5"))
	o.Price = d("101.00")
	o.IsPostOnly = true
	sm.Submit(o)
	require.Equal(t, model.Accepted, mustGet(t, deps, "sell-1").Status)

	bk, _ := deps.Books.Get("BTC-USD")
	bk.SetLevel(model.Buy, d("99.00"), d("0")) // clear the old best bid
	bk.SetLevel(model.Buy, d("102.00"), d("10"))

	price := d("100.50")
	sm.Modify("sell-1", nil, &price, nil)

	got := mustGet(t, deps, "sell-1")
	assert.Equal(t, model.Accepted, got.Status)
	assert.True(t, got.Price.Equal(d("101.00")), "a rejected post-only modify must leave the working price untouched")

	var sawPendingUpdate bool
	var rejectReason string
	for _, e := range sink.events {
		switch ev := e.(type) {
		case events.OrderPendingUpdate:
			sawPendingUpdate = true
		case events.OrderModifyRejected:
			rejectReason = ev.Reason
		}
	}
	assert.True(t, sawPendingUpdate, "a modify attempt must emit OrderPendingUpdate before being rejected")
	assert.Contains(t, rejectReason, "POST_ONLY")
}

func TestCancel_OCOCascadesToSiblingOnFill(t *testing.T) {
	deps, _ := newTestDeps(t)
	sm := statemachine.New(deps)

	limitLeg := model.NewOrder("oco-limit", "strat", "BTC-USD", model.Buy, model.Limit, d("10"))
	limitLeg.Price = d("99.00")
	limitLeg.Contingency = model.OCO
	limitLeg.ContingencyIDs = []string{"oco-stop"}

	stopLeg := model.NewOrder("oco-stop", "strat", "BTC-USD", model.Buy, model.StopMarket, d("10"))
	stopLeg.Price = d("101.00")
	stopLeg.Contingency = model.OCO
	stopLeg.ContingencyIDs = []string{"oco-limit"}

	sm.Submit(limitLeg)
	sm.Submit(stopLeg)
	require.Equal(t, model.Accepted, mustGet(t, deps, "oco-limit").Status)
	require.Equal(t, model.Accepted, mustGet(t, deps, "oco-stop").Status)

	bk, _ := deps.Books.Get("BTC-USD")
	bk.SetLevel(model.Sell, d("101.00"), d("0"))
	bk.SetLevel(model.Sell, d("99.00"), d("10")) // ask drops to 99, crossing the resting limit
	instrument := mustInstrument(t, deps, "BTC-USD")
	sm.ExecuteFill(mustGet(t, deps, "oco-limit"), instrument, model.Maker, false, bk)

	assert.Equal(t, model.Filled, mustGet(t, deps, "oco-limit").Status)
	assert.Equal(t, model.Canceled, mustGet(t, deps, "oco-stop").Status, "the completed OCO leg must cancel its still-working sibling")
}

func TestSubmit_OTOChildRejectedWhenParentRejected(t *testing.T) {
	deps, sink := newTestDeps(t)
	sm := statemachine.New(deps)

	bk, _ := deps.Books.Get("BTC-USD")
	bk.SetLevel(model.Buy, d("99.00"), d("0")) // no bid depth: a Sell Market order has no market

	parent := model.NewOrder("parent-sell", "strat", "BTC-USD", model.Sell, model.Market, d("1"))
	parent.Contingency = model.OTO
	parent.ChildOrderIDs = []string{"child-sell"}
	sm.Submit(parent)
	require.Equal(t, model.Rejected, mustGet(t, deps, "parent-sell").Status, "a Market order with no opposing depth must reject")

	child := model.NewOrder("child-sell", "strat", "BTC-USD", model.Sell, model.Limit, d("1"))
	child.Price = d("103.00")
	sm.Submit(child)

	got := mustGet(t, deps, "child-sell")
	assert.Equal(t, model.Rejected, got.Status, "an OTO child submitted after its parent was rejected must itself reject")

	var reason string
	for _, e := range sink.events {
		if r, ok := e.(events.OrderRejected); ok && r.ClientOrderID == "child-sell" {
			reason = r.Reason
		}
	}
	assert.Contains(t, reason, "REJECT OTO from", "child rejection reason must name the OTO cascade")
}

func mustGet(t *testing.T, deps *runtime.Deps, cid string) *model.Order {
	t.Helper()
	o, ok := deps.Index.Get(cid)
	require.True(t, ok)
	return o
}

func mustInstrument(t *testing.T, deps *runtime.Deps, id string) model.Instrument {
	t.Helper()
	inst, ok := deps.Instruments.Get(id)
	require.True(t, ok)
	return inst
}
