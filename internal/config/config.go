// Package config defines the engine's construction-time options and loads
// them from a YAML file with environment overrides (spec §6 "Construction
// options"), following the same github.com/spf13/viper + mapstructure
// pattern 0xtitan6-polymarket-mm's internal/config/config.go uses.
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"simulex/internal/account"
	"simulex/internal/fillmodel"
	"simulex/internal/model"
)

// InstrumentConfig is one instrument's static metadata plus the book
// granularity it should be tracked at.
type InstrumentConfig struct {
	ID             string `mapstructure:"id"`
	QuoteCurrency  string `mapstructure:"quote_currency"`
	PricePrecision int32  `mapstructure:"price_precision"`
	PriceIncrement string `mapstructure:"price_increment"`
	TickSize       string `mapstructure:"tick_size"`
	BookType       string `mapstructure:"book_type"` // L1_TBBO | L2_MBP | L3_MBO
}

// Config is the engine's full construction-option set (spec §6).
type Config struct {
	OmsType          string               `mapstructure:"oms_type"` // HEDGING | NETTING
	RejectStopOrders bool                 `mapstructure:"reject_stop_orders"`
	Instruments      []InstrumentConfig   `mapstructure:"instruments"`
	FillModel        FillModelConfig      `mapstructure:"fill_model"`
	Account          AccountConfig        `mapstructure:"account"`
}

type FillModelConfig struct {
	PFillOnLimit float64 `mapstructure:"p_fill_on_limit"`
	PFillOnStop  float64 `mapstructure:"p_fill_on_stop"`
	PSlippage    float64 `mapstructure:"p_slippage"`
	Seed         int64   `mapstructure:"seed"`
}

type CommissionRateConfig struct {
	MakerBps string `mapstructure:"maker_bps"`
	TakerBps string `mapstructure:"taker_bps"`
}

type StartingBalanceConfig struct {
	Currency string `mapstructure:"currency"`
	Amount   string `mapstructure:"amount"`
}

type AccountConfig struct {
	AccountID         string                          `mapstructure:"account_id"`
	AccountType       string                          `mapstructure:"account_type"` // CASH | MARGIN | BETTING
	BaseCurrency      string                          `mapstructure:"base_currency"`
	StartingBalances  []StartingBalanceConfig         `mapstructure:"starting_balances"`
	DefaultLeverage   string                          `mapstructure:"default_leverage"`
	Leverages         map[string]string               `mapstructure:"leverages"`
	IsFrozenAccount   bool                            `mapstructure:"is_frozen_account"`
	DefaultCommission CommissionRateConfig            `mapstructure:"default_commission"`
	InstrumentRates   map[string]CommissionRateConfig `mapstructure:"instrument_rates"`
}

// Load reads config from a YAML file, with SIMULEX_-prefixed environment
// variables able to override any key (spec's ambient configuration
// surface, following the teacher pack's viper convention of env override
// plus explicit dotted-path replacement).
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("SIMULEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks the construction-time constraints a caller must satisfy
// before the engine can be built: instruments and starting_balances must be
// non-empty, and a single-currency account (base_currency set) may declare
// only one starting balance. These are configuration errors, raised
// synchronously here rather than discovered partway through construction.
func (c Config) Validate() error {
	if len(c.Instruments) == 0 {
		return fmt.Errorf("instruments must be non-empty")
	}
	if len(c.Account.StartingBalances) == 0 {
		return fmt.Errorf("account.starting_balances must be non-empty")
	}
	if c.Account.BaseCurrency != "" && len(c.Account.StartingBalances) != 1 {
		return fmt.Errorf("account.starting_balances must have exactly one entry when base_currency is set, got %d", len(c.Account.StartingBalances))
	}
	return nil
}

// ToFillModelConfig converts the loaded fill-model options to the
// fillmodel package's own Config shape.
func (c Config) ToFillModelConfig() fillmodel.Config {
	return fillmodel.Config{
		PFillOnLimit: c.FillModel.PFillOnLimit,
		PFillOnStop:  c.FillModel.PFillOnStop,
		PSlippage:    c.FillModel.PSlippage,
		Seed:         c.FillModel.Seed,
	}
}

// ToOmsType maps the configured string to the model enum, defaulting to
// HEDGING on anything unrecognized.
func (c Config) ToOmsType() model.OmsType {
	if strings.EqualFold(c.OmsType, "NETTING") {
		return model.Netting
	}
	return model.Hedging
}

// ToAccountType maps the configured string to the model enum, defaulting
// to Cash.
func (c AccountConfig) ToAccountType() model.AccountType {
	switch strings.ToUpper(c.AccountType) {
	case "MARGIN":
		return model.Margin
	case "BETTING":
		return model.Betting
	default:
		return model.Cash
	}
}

// ToAccountConfig converts the loaded account options to account.Config,
// parsing decimal strings. A value that does not parse is not rejected: it
// falls back to zero (balances, commission bps) or one (leverage), so a
// malformed YAML value never panics deep inside the core.
func (c AccountConfig) ToAccountConfig() account.Config {
	out := account.Config{
		AccountID:       c.AccountID,
		AccountType:     c.ToAccountType(),
		BaseCurrency:    c.BaseCurrency,
		IsFrozenAccount: c.IsFrozenAccount,
		Leverages:       make(map[string]decimal.Decimal, len(c.Leverages)),
		InstrumentRates: make(map[string]account.CommissionRate, len(c.InstrumentRates)),
	}
	out.DefaultLeverage = parseDecimalOrOne(c.DefaultLeverage)
	out.DefaultCommission = account.CommissionRate{
		MakerBps: parseDecimalOrZero(c.DefaultCommission.MakerBps),
		TakerBps: parseDecimalOrZero(c.DefaultCommission.TakerBps),
	}
	for _, b := range c.StartingBalances {
		out.StartingBalances = append(out.StartingBalances, model.NewMoney(parseDecimalOrZero(b.Amount), b.Currency))
	}
	for id, lev := range c.Leverages {
		out.Leverages[id] = parseDecimalOrOne(lev)
	}
	for id, rate := range c.InstrumentRates {
		out.InstrumentRates[id] = account.CommissionRate{
			MakerBps: parseDecimalOrZero(rate.MakerBps),
			TakerBps: parseDecimalOrZero(rate.TakerBps),
		}
	}
	return out
}

// ToInstrument converts one configured instrument to its model value
// (unindexed — the engine stamps insertion order at registration) plus the
// book granularity it should be tracked at.
func (c InstrumentConfig) ToInstrument() model.Instrument {
	return model.Instrument{
		ID:             c.ID,
		QuoteCurrency:  c.QuoteCurrency,
		PricePrecision: c.PricePrecision,
		PriceIncrement: parseDecimalOrZero(c.PriceIncrement),
		TickSize:       parseDecimalOrZero(c.TickSize),
	}
}

// ToBookType maps the configured string to the model enum, defaulting to
// L1_TBBO.
func (c InstrumentConfig) ToBookType() model.BookType {
	switch strings.ToUpper(c.BookType) {
	case "L2_MBP":
		return model.L2MBP
	case "L3_MBO":
		return model.L3MBO
	default:
		return model.L1TBBO
	}
}

func parseDecimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseDecimalOrOne(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NewFromInt(1)
	}
	return d
}
