// Package idgen generates the three identifier families the engine must
// produce in a replay-stable format (spec §4.3): venue-position-id,
// venue-order-id and execution-id.
package idgen

import "fmt"

// Generator holds per-instrument monotonic counters plus one global
// execution-id counter. Instrument index is the 1-based insertion order
// of the instrument into the engine (spec §4.3), supplied by the caller
// at every call rather than looked up here, so this package stays free of
// any dependency on the instrument registry.
type Generator struct {
	posCount  map[int]int
	ordCount  map[int]int
	execCount int
}

func New() *Generator {
	return &Generator{
		posCount: make(map[int]int),
		ordCount: make(map[int]int),
	}
}

// NextVenuePositionID returns "{instrument_index}-{pos_count:03d}" with
// pos_count incremented for this instrument.
func (g *Generator) NextVenuePositionID(instrumentIndex int) string {
	g.posCount[instrumentIndex]++
	return fmt.Sprintf("%d-%03d", instrumentIndex, g.posCount[instrumentIndex])
}

// NextVenueOrderID returns "{instrument_index}-{ord_count:03d}" with
// ord_count incremented for this instrument.
func (g *Generator) NextVenueOrderID(instrumentIndex int) string {
	g.ordCount[instrumentIndex]++
	return fmt.Sprintf("%d-%03d", instrumentIndex, g.ordCount[instrumentIndex])
}

// NextExecutionID returns "{exec_count}" globally monotonic across all
// instruments.
func (g *Generator) NextExecutionID() string {
	g.execCount++
	return fmt.Sprintf("%d", g.execCount)
}

// Reset zeroes every counter (spec §6, engine.Reset()).
func (g *Generator) Reset() {
	g.posCount = make(map[int]int)
	g.ordCount = make(map[int]int)
	g.execCount = 0
}
