// Package fillmodel implements the engine's probabilistic fill decisions
// (spec §4.1 C1). Every draw flows from a single seeded source so that
// reprocessing the same deterministic event stream with the same seed
// reproduces a byte-identical event sequence (spec §8, Reset law; §9
// Determinism). math/rand's own PRNG is the only seedable, reproducible
// source in play here — none of the retrieved example repos carry a
// simulation/PRNG library, so this is the one place this module reaches
// for the standard library instead of a third-party dependency.
package fillmodel

import "math/rand"

// Config holds the three independent Bernoulli trial probabilities plus
// the replay seed (spec §4.1). Each probability must lie in [0,1]; that is
// a configuration error enforced by New.
type Config struct {
	PFillOnLimit float64
	PFillOnStop  float64
	PSlippage    float64
	Seed         int64
}

type FillModel struct {
	pFillOnLimit float64
	pFillOnStop  float64
	pSlippage    float64
	rng          *rand.Rand
}

func New(cfg Config) *FillModel {
	for _, p := range []float64{cfg.PFillOnLimit, cfg.PFillOnStop, cfg.PSlippage} {
		if p < 0 || p > 1 {
			panic("fillmodel: probability out of [0,1] range")
		}
	}
	return &FillModel{
		pFillOnLimit: cfg.PFillOnLimit,
		pFillOnStop:  cfg.PFillOnStop,
		pSlippage:    cfg.PSlippage,
		rng:          rand.New(rand.NewSource(cfg.Seed)),
	}
}

// IsLimitFilled draws a fresh boolean for "limit order touched the market
// at its limit price — does it fill".
func (f *FillModel) IsLimitFilled() bool {
	return f.rng.Float64() < f.pFillOnLimit
}

// IsStopFilled draws a fresh boolean for "stop price touched the market —
// does it trigger".
func (f *FillModel) IsStopFilled() bool {
	return f.rng.Float64() < f.pFillOnStop
}

// IsSlipped draws a fresh boolean for "aggressive order fill slips one
// increment against the trader".
func (f *FillModel) IsSlipped() bool {
	return f.rng.Float64() < f.pSlippage
}

// Holder lets the bound FillModel be swapped atomically between events
// (spec §6 set_fill_model) without every collaborator holding a stale
// pointer to the replaced instance.
type Holder struct {
	current *FillModel
}

func NewHolder(fm *FillModel) *Holder {
	return &Holder{current: fm}
}

func (h *Holder) Set(fm *FillModel) { h.current = fm }

func (h *Holder) Current() *FillModel { return h.current }
