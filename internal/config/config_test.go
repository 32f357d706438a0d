package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simulex/internal/config"
	"simulex/internal/model"
)

const sampleYAML = `
oms_type: NETTING
reject_stop_orders: true
instruments:
  - id: BTC-USD
    quote_currency: USD
    price_precision: 2
    price_increment: "0.01"
    tick_size: "0.01"
    book_type: L2_MBP
fill_model:
  p_fill_on_limit: 0.9
  p_fill_on_stop: 0.8
  p_slippage: 0.1
  seed: 42
account:
  account_id: acct-1
  account_type: MARGIN
  base_currency: USD
  starting_balances:
    - currency: USD
      amount: "50000"
  default_leverage: "5"
  default_commission:
    maker_bps: "2"
    taker_bps: "5"
`

func writeSampleConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "simulex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestLoad_DecodesEveryField(t *testing.T) {
	cfg, err := config.Load(writeSampleConfig(t))
	require.NoError(t, err)

	assert.Equal(t, "NETTING", cfg.OmsType)
	assert.True(t, cfg.RejectStopOrders)
	require.Len(t, cfg.Instruments, 1)
	assert.Equal(t, "BTC-USD", cfg.Instruments[0].ID)
	assert.Equal(t, "L2_MBP", cfg.Instruments[0].BookType)
	assert.InDelta(t, 0.9, cfg.FillModel.PFillOnLimit, 0.0001)
	assert.Equal(t, int64(42), cfg.FillModel.Seed)
	assert.Equal(t, "MARGIN", cfg.Account.AccountType)
}

func TestToOmsType_DefaultsToHedgingOnUnrecognized(t *testing.T) {
	assert.Equal(t, model.Netting, config.Config{OmsType: "NETTING"}.ToOmsType())
	assert.Equal(t, model.Hedging, config.Config{OmsType: "bogus"}.ToOmsType())
	assert.Equal(t, model.Hedging, config.Config{}.ToOmsType())
}

func TestToAccountConfig_ParsesDecimalFields(t *testing.T) {
	cfg, err := config.Load(writeSampleConfig(t))
	require.NoError(t, err)

	accCfg := cfg.Account.ToAccountConfig()
	assert.Equal(t, model.Margin, accCfg.AccountType)
	require.Len(t, accCfg.StartingBalances, 1)
	assert.True(t, accCfg.StartingBalances[0].Amount.Equal(decimal.NewFromInt(50000)))
	assert.True(t, accCfg.DefaultLeverage.Equal(decimal.NewFromInt(5)))
	assert.True(t, accCfg.DefaultCommission.MakerBps.Equal(decimal.NewFromInt(2)))
}

func TestToInstrument_UnparsableDecimalFallsBackToZero(t *testing.T) {
	ic := config.InstrumentConfig{ID: "X", PriceIncrement: "not-a-number"}
	inst := ic.ToInstrument()
	assert.True(t, inst.PriceIncrement.IsZero(), "an unparsable decimal string must fall back to zero, not panic")
}
