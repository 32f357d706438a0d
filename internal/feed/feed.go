// Package feed reads a recorded tick/bar/book-delta stream and drives the
// engine with it one record at a time, the concrete reference implementation of
// the "historical data loading" external collaborator spec.md §1 names
// out of scope for the core. It is the single logical actor spec.md §5
// describes: a Runner owns a *tomb.Tomb for its own start/stop lifecycle
// the way the teacher's cmd/main.go and internal/net/server.go own one for
// the TCP accept loop, but every call into the engine itself
// (engine.Process, ProcessTick, ...) remains a plain synchronous method
// call with no goroutine fan-out.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
	"gopkg.in/tomb.v2"

	"simulex/internal/engine"
	"simulex/internal/model"
)

// RecordKind discriminates the three market-data shapes a recorded
// stream can carry.
type RecordKind string

const (
	KindTick      RecordKind = "tick"
	KindBar       RecordKind = "bar"
	KindBookDelta RecordKind = "book_delta"
)

// Record is one line of a recorded replay file: a newline-delimited JSON
// stream, the simplest format that round-trips decimal.Decimal via its
// own MarshalJSON/UnmarshalJSON without a bespoke parser — the same
// "decode into decimal.Decimal fields directly" approach the teacher pack
// uses wherever it reads prices from disk or the wire.
type Record struct {
	Kind         RecordKind      `json:"kind"`
	TsNs         int64           `json:"ts_ns"`
	InstrumentID string          `json:"instrument_id"`
	BidPx        decimal.Decimal `json:"bid_px,omitempty"`
	BidQty       decimal.Decimal `json:"bid_qty,omitempty"`
	AskPx        decimal.Decimal `json:"ask_px,omitempty"`
	AskQty       decimal.Decimal `json:"ask_qty,omitempty"`
	Open         decimal.Decimal `json:"open,omitempty"`
	High         decimal.Decimal `json:"high,omitempty"`
	Low          decimal.Decimal `json:"low,omitempty"`
	Close        decimal.Decimal `json:"close,omitempty"`
	Volume       decimal.Decimal `json:"volume,omitempty"`
	Side         model.Side      `json:"side,omitempty"`
	Price        decimal.Decimal `json:"price,omitempty"`
	Qty          decimal.Decimal `json:"qty,omitempty"`
}

// Engine is the slice of the engine facade the runner drives, satisfied
// by *engine.Engine. Kept as an interface so tests can drive a fake
// without constructing a full engine.
type Engine interface {
	ProcessTick(instrumentID string, nowNs int64, bidPx, bidQty, askPx, askQty decimal.Decimal)
	ProcessBar(instrumentID string, nowNs int64, open, high, low, close, volume decimal.Decimal)
	ProcessOrderBook(instrumentID string, nowNs int64, levels []engine.LevelUpdate)
	Process(nowNs int64)
}

// Reader decodes newline-delimited JSON Records from an io.Reader.
type Reader struct {
	dec *json.Decoder
}

func NewReader(r io.Reader) *Reader {
	return &Reader{dec: json.NewDecoder(r)}
}

// Next decodes the next record, returning io.EOF when the stream is
// exhausted.
func (rd *Reader) Next() (Record, error) {
	var rec Record
	if err := rd.dec.Decode(&rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Runner drives an Engine from a Reader, optionally rate-limited to a
// fixed number of records per second by golang.org/x/time/rate so a
// replay-monitor UI can actually watch events stream by instead of a
// backtest completing instantaneously. Record timestamps set the
// simulated clock only; they do not pace the replay.
type Runner struct {
	reader  *Reader
	engine  Engine
	limiter *rate.Limiter
	t       tomb.Tomb
}

// NewRunner builds a Runner. A nil limiter disables throttling and
// replays as fast as the reader can decode records.
func NewRunner(reader *Reader, engine Engine, limiter *rate.Limiter) *Runner {
	return &Runner{reader: reader, engine: engine, limiter: limiter}
}

// Start begins the replay loop in a background goroutine owned by the
// runner's tomb, mirroring the teacher's Server.Run pattern of spawning
// its accept loop under tomb.Go.
func (r *Runner) Start(ctx context.Context) {
	r.t.Go(func() error {
		return r.run(ctx)
	})
}

// Stop signals the replay loop to end and blocks until it has, returning
// any error the loop exited with.
func (r *Runner) Stop() error {
	r.t.Kill(nil)
	return r.t.Wait()
}

func (r *Runner) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.t.Dying():
			return nil
		default:
		}

		rec, err := r.reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("feed: decode record: %w", err)
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		r.apply(rec)
		r.engine.Process(rec.TsNs)
	}
}

func (r *Runner) apply(rec Record) {
	switch rec.Kind {
	case KindTick:
		r.engine.ProcessTick(rec.InstrumentID, rec.TsNs, rec.BidPx, rec.BidQty, rec.AskPx, rec.AskQty)
	case KindBar:
		r.engine.ProcessBar(rec.InstrumentID, rec.TsNs, rec.Open, rec.High, rec.Low, rec.Close, rec.Volume)
	case KindBookDelta:
		r.engine.ProcessOrderBook(rec.InstrumentID, rec.TsNs, []engine.LevelUpdate{{Side: rec.Side, Price: rec.Price, Qty: rec.Qty}})
	}
}
