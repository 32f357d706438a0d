package engine_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simulex/internal/config"
	"simulex/internal/engine"
	"simulex/internal/events"
	"simulex/internal/fillmodel"
	"simulex/internal/model"
	"simulex/internal/queue"
)

func queueSubmit(o model.Order) queue.Command {
	return queue.SubmitOrder{Order: o}
}

func cancelOrder(cid string) queue.Command {
	return queue.CancelOrder{ClientOrderID: cid}
}

// fakePositionCache is the simplest PositionCache: no order has ever
// opened a position. Every test below runs under HEDGING and none submits
// a reduce-only order, so its empty answers are all the tests need.
type fakePositionCache struct {
	open map[string]model.Position
}

func newFakePositionCache() *fakePositionCache {
	return &fakePositionCache{open: make(map[string]model.Position)}
}

func (c *fakePositionCache) PositionIDForOrder(clientOrderID string) (string, bool) {
	return "", false
}

func (c *fakePositionCache) OpenPositionForInstrument(instrumentID string) (model.Position, bool) {
	p, ok := c.open[instrumentID]
	return p, ok
}

func (c *fakePositionCache) Position(positionID string) (model.Position, bool) {
	for _, p := range c.open {
		if p.ID == positionID {
			return p, true
		}
	}
	return model.Position{}, false
}

// recordingSink collects every emitted event in order, the same
// append-to-slice fake the retrieved pack's own tests use in place of a
// real network/persistence sink.
type recordingSink struct {
	events []events.Event
}

func (s *recordingSink) Emit(e events.Event) {
	s.events = append(s.events, e)
}

func testConfig() config.Config {
	return config.Config{
		OmsType: "HEDGING",
		Instruments: []config.InstrumentConfig{
			{ID: "BTC-USD", QuoteCurrency: "USD", PricePrecision: 2, PriceIncrement: "0.01", TickSize: "0.01", BookType: "L2_MBP"},
		},
		FillModel: config.FillModelConfig{PFillOnLimit: 1, PFillOnStop: 1, PSlippage: 0, Seed: 1},
		Account: config.AccountConfig{
			AccountID:    "acct-1",
			AccountType:  "CASH",
			BaseCurrency: "USD",
			StartingBalances: []config.StartingBalanceConfig{
				{Currency: "USD", Amount: "100000"},
			},
			DefaultLeverage: "1",
			DefaultCommission: config.CommissionRateConfig{
				MakerBps: "10",
				TakerBps: "20",
			},
		},
	}
}

// stopTestConfig mirrors testConfig but tracks the book at L1_TBBO, the
// only granularity the residual "walk next level" heuristic applies to
// (spec §9 open question: left to BookView's simulator on L2/L3).
func stopTestConfig() config.Config {
	cfg := testConfig()
	cfg.Instruments[0].BookType = "L1_TBBO"
	return cfg
}

func d(s string) decimal.Decimal {
	dec, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return dec
}

// 1. Setup: build an engine with a seeded book and register a recording
// sink to observe every emitted lifecycle event.
func newTestEngine(t *testing.T) (*engine.Engine, *recordingSink) {
	t.Helper()
	cache := newFakePositionCache()
	eng := engine.New(testConfig(), cache)
	sink := &recordingSink{}
	eng.RegisterClient(sink)
	eng.InitializeAccount()
	eng.ProcessTick("BTC-USD", 0, d("99.00"), d("10"), d("101.00"), d("10"))
	return eng, sink
}

func TestSubmit_MarketableLimitFillsImmediately(t *testing.T) {
	eng, sink := newTestEngine(t)

	order := model.NewOrder("cid-1", "strat-1", "BTC-USD", model.Buy, model.Limit, d("5"))
	order.Price = d("101.00")
	eng.Send(queueSubmit(order))
	eng.Process(1)

	got, ok := eng.Order("cid-1")
	require.True(t, ok, "order should be resolvable after submit")
	assert.Equal(t, model.Filled, got.Status, "a limit crossing the ask should fill fully against available depth")
	assert.True(t, got.LeavesQty.IsZero(), "FilledQty+LeavesQty=Quantity invariant: fully filled order has zero leaves")

	var sawAccepted, sawFilled bool
	for _, e := range sink.events {
		switch e.(type) {
		case events.OrderAccepted:
			sawAccepted = true
		case events.OrderFilled:
			sawFilled = true
		}
	}
	assert.True(t, sawAccepted, "a crossing limit order must be accepted as well as filled")
	assert.True(t, sawFilled, "a crossing limit order must emit a fill")
}

func TestSubmit_NonMarketableLimitRestsThenFillsOnCross(t *testing.T) {
	eng, sink := newTestEngine(t)

	order := model.NewOrder("cid-2", "strat-1", "BTC-USD", model.Buy, model.Limit, d("5"))
	order.Price = d("98.00")
	eng.Send(queueSubmit(order))
	eng.Process(1)

	got, ok := eng.Order("cid-2")
	require.True(t, ok)
	assert.Equal(t, model.Accepted, got.Status, "a non-crossing limit order should rest as accepted")

	working := eng.WorkingOrders()
	assert.Len(t, working, 1, "the resting order should appear in the working-order index")

	// 2. Market moves down through the resting bid's price — it should
	// now fill on the next matching pass.
	eng.ProcessTick("BTC-USD", 2, d("96.00"), d("10"), d("97.00"), d("10"))

	got, _ = eng.Order("cid-2")
	assert.Equal(t, model.Filled, got.Status, "crossing the resting limit price should fill it")

	var fillCount int
	for _, e := range sink.events {
		if _, ok := e.(events.OrderFilled); ok {
			fillCount++
		}
	}
	assert.Equal(t, 1, fillCount, "exactly one fill should be emitted for a single fully-filled order")
}

func TestCancel_RemovesWorkingOrder(t *testing.T) {
	eng, _ := newTestEngine(t)

	order := model.NewOrder("cid-3", "strat-1", "BTC-USD", model.Buy, model.Limit, d("5"))
	order.Price = d("98.00")
	eng.Send(queueSubmit(order))
	eng.Process(1)
	require.Len(t, eng.WorkingOrders(), 1)

	eng.Send(cancelOrder("cid-3"))
	eng.Process(2)

	assert.Empty(t, eng.WorkingOrders(), "a canceled order must leave the working index")
	got, ok := eng.Order("cid-3")
	require.True(t, ok, "a canceled order stays resolvable by cid")
	assert.Equal(t, model.Canceled, got.Status)
}

func TestReset_ClearsWorkingStateAndReplaysCleanly(t *testing.T) {
	eng, sink := newTestEngine(t)

	order := model.NewOrder("cid-4", "strat-1", "BTC-USD", model.Buy, model.Limit, d("5"))
	order.Price = d("98.00")
	eng.Send(queueSubmit(order))
	eng.Process(1)
	require.Len(t, eng.WorkingOrders(), 1)

	sink.events = nil
	eng.Reset()
	assert.Empty(t, eng.WorkingOrders(), "reset must clear the working-order index")

	_, ok := eng.Order("cid-4")
	assert.False(t, ok, "reset clears order history too — a fresh replay starts from a blank index")

	var sawAccountState bool
	for _, e := range sink.events {
		if _, ok := e.(events.AccountState); ok {
			sawAccountState = true
		}
	}
	assert.True(t, sawAccountState, "reset must re-emit a fresh opening account state on its own")
}

func TestSetFillModel_ZeroProbabilityStopsTouchFills(t *testing.T) {
	eng, _ := newTestEngine(t)

	order := model.NewOrder("cid-5", "strat-1", "BTC-USD", model.Buy, model.Limit, d("5"))
	order.Price = d("98.00")
	eng.Send(queueSubmit(order))
	eng.Process(1)
	require.Equal(t, model.Accepted, mustOrder(t, eng, "cid-5").Status, "order must rest before the touch scenario")

	eng.SetFillModel(fillmodel.Config{PFillOnLimit: 0, PFillOnStop: 0, PSlippage: 0, Seed: 2})

	// Market moves to exactly touch the resting limit price (ask == 98),
	// not cross it (touch vs cross fill test).
	eng.ProcessTick("BTC-USD", 2, d("97.00"), d("10"), d("98.00"), d("10"))

	assert.Equal(t, model.Accepted, mustOrder(t, eng, "cid-5").Status,
		"with p_fill_on_limit=0 a mere touch must never fill")
}

func TestStopMarket_TriggersOnBreachAndFillsAtStopPrice(t *testing.T) {
	cache := newFakePositionCache()
	eng := engine.New(stopTestConfig(), cache)
	sink := &recordingSink{}
	eng.RegisterClient(sink)
	eng.InitializeAccount()
	eng.ProcessTick("BTC-USD", 0, d("99.00"), d("10"), d("100.00"), d("20"))

	order := model.NewOrder("cid-stop-1", "strat-1", "BTC-USD", model.Buy, model.StopMarket, d("20"))
	order.Price = d("99.50") // stop price
	eng.Send(queueSubmit(order))
	eng.Process(1)
	require.Equal(t, model.Accepted, mustOrder(t, eng, "cid-stop-1").Status, "stop accepted, waiting for a matching pass to evaluate the trigger")

	// Re-drive a matching pass against the same already-breached book.
	eng.ProcessTick("BTC-USD", 2, d("99.00"), d("10"), d("100.00"), d("20"))

	got := mustOrder(t, eng, "cid-stop-1")
	require.Equal(t, model.Filled, got.Status, "a stop whose trigger is already breached must fire on the next matching pass")
	assert.True(t, got.LeavesQty.IsZero())

	var fillPrices []decimal.Decimal
	for _, e := range sink.events {
		if f, ok := e.(events.OrderFilled); ok && f.ClientOrderID == "cid-stop-1" {
			fillPrices = append(fillPrices, f.Price)
		}
	}
	require.Len(t, fillPrices, 1, "fully satisfied at top-of-book depth: exactly one fill, no residual")
	assert.True(t, fillPrices[0].Equal(d("99.50")), "a triggered stop must fill its first allocation at the stop price, not the market price")
}

func TestStopMarket_ResidualWalksFromMarketPriceNotStopPrice(t *testing.T) {
	cache := newFakePositionCache()
	eng := engine.New(stopTestConfig(), cache)
	sink := &recordingSink{}
	eng.RegisterClient(sink)
	eng.InitializeAccount()
	eng.ProcessTick("BTC-USD", 0, d("99.00"), d("10"), d("100.00"), d("20"))

	order := model.NewOrder("cid-stop-2", "strat-1", "BTC-USD", model.Buy, model.StopMarket, d("30"))
	order.Price = d("99.50") // stop price, already breached by the 100.00 ask
	eng.Send(queueSubmit(order))
	eng.Process(1)
	require.Equal(t, model.Accepted, mustOrder(t, eng, "cid-stop-2").Status, "stop accepted, waiting for a matching pass to evaluate the trigger")

	// Re-drive a matching pass against the same already-breached book.
	eng.ProcessTick("BTC-USD", 2, d("99.00"), d("10"), d("100.00"), d("20"))

	got := mustOrder(t, eng, "cid-stop-2")
	require.Equal(t, model.Filled, got.Status)

	var fills []events.OrderFilled
	for _, e := range sink.events {
		if f, ok := e.(events.OrderFilled); ok && f.ClientOrderID == "cid-stop-2" {
			fills = append(fills, f)
		}
	}
	require.Len(t, fills, 2, "20 available at top-of-book plus a 10-unit residual walk")
	assert.True(t, fills[0].Price.Equal(d("99.50")), "first allocation prices at the stop")
	assert.True(t, fills[0].Quantity.Equal(d("20")))
	assert.True(t, fills[1].Price.Equal(d("100.01")), "residual walks one increment past the market's own quote, not the stop price")
	assert.True(t, fills[1].Quantity.Equal(d("10")))
}

func mustOrder(t *testing.T, eng *engine.Engine, cid string) *model.Order {
	t.Helper()
	o, ok := eng.Order(cid)
	require.True(t, ok, "order %s must be resolvable", cid)
	return o
}
