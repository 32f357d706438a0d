// Package queue implements CommandQueue (spec §4.4 C5): an unbounded FIFO
// of trading commands drained by the engine on each tick. There is no
// backpressure and no retries (spec §7) — the queue is single-producer
// (the backtest driver calling Send) and single-consumer (engine.Process).
package queue

import (
	"github.com/shopspring/decimal"

	"simulex/internal/model"
)

// Command is the tagged variant over the four inbound trading commands
// (spec §4.4).
type Command interface {
	isCommand()
}

type SubmitOrder struct {
	Order model.Order
}

func (SubmitOrder) isCommand() {}

// SubmitOrderList submits a batch of orders as a single FIFO-ordered unit
// (spec §4.4 SubmitOrderList).
type SubmitOrderList struct {
	Orders []model.Order
}

func (SubmitOrderList) isCommand() {}

type ModifyOrder struct {
	ClientOrderID string
	Quantity      *decimal.Decimal
	Price         *decimal.Decimal
	Trigger       *decimal.Decimal
}

func (ModifyOrder) isCommand() {}

type CancelOrder struct {
	ClientOrderID string
}

func (CancelOrder) isCommand() {}

// Queue is an unbounded FIFO command buffer.
type Queue struct {
	buf []Command
}

func New() *Queue {
	return &Queue{}
}

// Send enqueues a command. Non-blocking (spec §6 send(command)).
func (q *Queue) Send(cmd Command) {
	q.buf = append(q.buf, cmd)
}

// Drain removes and returns every queued command in FIFO order, emptying
// the queue (spec §4.4 process(now_ns) drains until empty).
func (q *Queue) Drain() []Command {
	out := q.buf
	q.buf = nil
	return out
}

// Reset empties the queue (spec §6 engine.Reset()).
func (q *Queue) Reset() {
	q.buf = nil
}
