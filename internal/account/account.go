// Package account implements AccountAdapter (spec §4.8 C10): balance
// tracking, commission calculation, and AccountState event emission.
package account

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"simulex/internal/events"
	"simulex/internal/model"
)

// CommissionRate is a simple maker/taker bps schedule per instrument,
// falling back to a venue default when an instrument has no override —
// the same fallback-to-default pattern the teacher's own config loading
// favors over erroring on a missing per-key entry.
type CommissionRate struct {
	MakerBps decimal.Decimal
	TakerBps decimal.Decimal
}

type Config struct {
	AccountID         string
	AccountType       model.AccountType
	BaseCurrency      string // empty if multi-currency
	StartingBalances  []model.Money
	DefaultLeverage   decimal.Decimal
	Leverages         map[string]decimal.Decimal // instrumentID -> leverage
	IsFrozenAccount   bool
	DefaultCommission CommissionRate
	InstrumentRates   map[string]CommissionRate
}

type balance struct {
	total  decimal.Decimal
	free   decimal.Decimal
	locked decimal.Decimal
}

// Adapter applies balance adjustments and emits fresh AccountState events
// (spec §4.8). Currency iteration for events is over an explicit ordered
// slice, not a Go map, so emitted event content is replay-deterministic
// (spec §9 Determinism).
type Adapter struct {
	cfg        Config
	currencies []string // insertion order, for deterministic AccountState emission
	balances   map[string]*balance
	sink       events.Sink
	clockNowNs func() int64
}

func New(cfg Config, sink events.Sink, clockNowNs func() int64) *Adapter {
	return &Adapter{cfg: cfg, sink: sink, clockNowNs: clockNowNs, balances: make(map[string]*balance)}
}

// InitializeAccount emits an AccountState event with the starting
// balances as total and free, locked zero per currency (spec §4.8).
func (a *Adapter) InitializeAccount() {
	a.currencies = nil
	a.balances = make(map[string]*balance)
	for _, m := range a.cfg.StartingBalances {
		a.currencies = append(a.currencies, m.Currency)
		a.balances[m.Currency] = &balance{total: m.Amount, free: m.Amount, locked: decimal.Zero}
	}
	a.emitState()
}

// AdjustAccount applies a delta to total and free for its currency (spec
// §4.8). Frozen accounts silently no-op; a missing balance for the
// currency is an external-cache lookup failure: logged, no event, no
// throw (spec §7).
func (a *Adapter) AdjustAccount(delta model.Money) {
	if a.cfg.IsFrozenAccount {
		return
	}
	bal, ok := a.balances[delta.Currency]
	if !ok {
		log.Error().Str("currency", delta.Currency).Msg("account: adjust_account on unknown currency balance")
		return
	}
	bal.total = bal.total.Add(delta.Amount)
	bal.free = bal.free.Add(delta.Amount)
	a.emitState()
}

// CalculateCommission computes commission for a fill (spec §4.8,
// delegated-to-account-logic). Liquidity side selects maker/taker bps;
// instrument-specific rates override the venue default.
func (a *Adapter) CalculateCommission(instrument model.Instrument, qty, price decimal.Decimal, liquidity model.LiquiditySide) model.Money {
	rate := a.cfg.DefaultCommission
	if r, ok := a.cfg.InstrumentRates[instrument.ID]; ok {
		rate = r
	}
	bps := rate.TakerBps
	if liquidity == model.Maker {
		bps = rate.MakerBps
	}
	notional := qty.Mul(price)
	commission := notional.Mul(bps).Div(decimal.NewFromInt(10000))
	return model.NewMoney(commission, instrument.QuoteCurrency)
}

// Leverage returns the effective leverage for an instrument: its override
// if configured, else the account default (spec §6 default_leverage,
// leverages).
func (a *Adapter) Leverage(instrumentID string) decimal.Decimal {
	if l, ok := a.cfg.Leverages[instrumentID]; ok {
		return l
	}
	return a.cfg.DefaultLeverage
}

func (a *Adapter) emitState() {
	if a.sink == nil {
		return
	}
	balances := make(map[string]model.Money, len(a.currencies))
	free := make(map[string]model.Money, len(a.currencies))
	locked := make(map[string]model.Money, len(a.currencies))
	for _, c := range a.currencies {
		b := a.balances[c]
		balances[c] = model.NewMoney(b.total, c)
		free[c] = model.NewMoney(b.free, c)
		locked[c] = model.NewMoney(b.locked, c)
	}
	a.sink.Emit(events.AccountState{
		Base:      events.Base{TsEventNs: a.clockNowNs()},
		AccountID: a.cfg.AccountID,
		Balances:  balances,
		Free:      free,
		Locked:    locked,
	})
}

// Reset clears balances (spec §6 engine.Reset()); caller re-invokes
// InitializeAccount afterward.
func (a *Adapter) Reset() {
	a.currencies = nil
	a.balances = make(map[string]*balance)
}
