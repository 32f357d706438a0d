// Package store persists instrument metadata and an append-only event log
// to sqlite via gorm, the way web3guy0-polybot persists its trade history —
// the concrete reference implementation of the "instrument metadata
// loading" and "persistence" external collaborators spec.md §1 names out
// of scope for the deterministic core. Nothing here sits inside a
// Process/ProcessMarket call: instrument rows are written once at startup
// from config.InstrumentConfig values, and the event log is written by an
// events.Sink, synchronously inside each Emit, after the core has emitted.
package store

import (
	"encoding/json"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"simulex/internal/events"
)

// InstrumentRow is the persisted row for one instrument's static metadata.
type InstrumentRow struct {
	ID             string `gorm:"primaryKey"`
	QuoteCurrency  string
	PricePrecision int32
	PriceIncrement string
	TickSize       string
	BookType       string
}

func (InstrumentRow) TableName() string { return "instruments" }

// EventRow is one emitted event, appended in emission order. Payload
// holds the JSON-encoded concrete event; Kind is its Go type name, so a
// later reader can dispatch without needing this package's own types.
type EventRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	RunID     string `gorm:"index"`
	TsEventNs int64
	Kind      string
	Payload   string
}

func (EventRow) TableName() string { return "events" }

// Store wraps a gorm sqlite connection.
type Store struct {
	db *gorm.DB
}

// Open connects to (or creates) the sqlite database at path and migrates
// the schema, following the same gorm.Open(sqlite.Open(path), ...) +
// AutoMigrate pattern web3guy0-polybot uses for its own persistence layer.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&InstrumentRow{}, &EventRow{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// UpsertInstrument writes or replaces one instrument's metadata row.
func (s *Store) UpsertInstrument(row InstrumentRow) error {
	return s.db.Save(&row).Error
}

// Instruments returns every persisted instrument row, ordered by
// instrument id.
func (s *Store) Instruments() ([]InstrumentRow, error) {
	var rows []InstrumentRow
	if err := s.db.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list instruments: %w", err)
	}
	return rows, nil
}

// EventLogSink is an events.Sink that appends every emitted event to the
// event log table, JSON-encoded. It never blocks the core synchronously
// in a meaningful way beyond a local sqlite write — the same trade-off
// the teacher's own internal/net/server.go accepts for its ReportTrade
// path, writing straight to the wire rather than through a buffered
// channel.
type EventLogSink struct {
	store *Store
	runID string
}

// NewEventLogSink tags every row this sink writes with runID, so events
// from repeated replay runs against the same database file can be told
// apart (e.g. after engine.Reset() and a fresh replay pass).
func NewEventLogSink(s *Store, runID string) *EventLogSink {
	return &EventLogSink{store: s, runID: runID}
}

func (s *EventLogSink) Emit(e events.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	row := EventRow{
		RunID:     s.runID,
		TsEventNs: e.EventTimestamp(),
		Kind:      fmt.Sprintf("%T", e),
		Payload:   string(payload),
	}
	s.store.db.Create(&row)
}

// RecentEvents returns the last n rows of the event log, oldest first,
// for a replay-monitor UI or post-run inspection.
func (s *Store) RecentEvents(n int) ([]EventRow, error) {
	var rows []EventRow
	if err := s.db.Order("id desc").Limit(n).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: recent events: %w", err)
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
