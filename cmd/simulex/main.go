// Command simulex bootstraps the backtest engine: loads environment and
// YAML configuration, opens the instrument/event store, wires the engine,
// transport and metrics, and runs the replay feed until the input stream
// is exhausted or the process receives SIGINT/SIGTERM. It is the direct
// generalization of the teacher's cmd/main.go and cmd/server/server.go —
// both of which wired common+engine+net by hand and drifted out of sync
// with each other (see DESIGN.md) — into a single, config-driven
// entrypoint.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"gopkg.in/tomb.v2"

	"simulex/internal/config"
	"simulex/internal/engine"
	"simulex/internal/events"
	"simulex/internal/feed"
	"simulex/internal/metrics"
	"simulex/internal/model"
	"simulex/internal/store"
	"simulex/internal/transport"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	configPath := flag.String("config", "simulex.yaml", "path to engine config")
	dataPath := flag.String("data", "", "path to a newline-delimited JSON replay file")
	dbPath := flag.String("db", "simulex.db", "path to the sqlite instrument/event store")
	addr := flag.String("addr", ":8080", "HTTP/websocket listen address")
	replayRate := flag.Float64("replay-rate", 0, "records/sec throttle for replay (0 = unthrottled)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("simulex: .env not loaded")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("simulex: load config")
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("simulex: open store")
	}
	defer db.Close()

	for _, ic := range cfg.Instruments {
		row := store.InstrumentRow{
			ID:             ic.ID,
			QuoteCurrency:  ic.QuoteCurrency,
			PricePrecision: ic.PricePrecision,
			PriceIncrement: ic.PriceIncrement,
			TickSize:       ic.TickSize,
			BookType:       ic.BookType,
		}
		if err := db.UpsertInstrument(row); err != nil {
			log.Error().Err(err).Str("instrument", ic.ID).Msg("simulex: persist instrument metadata")
		}
	}

	runID := uuid.New().String()
	log.Info().Str("run_id", runID).Msg("simulex: starting run")

	positionCache := &noopPositionCache{}
	eng := engine.New(cfg, positionCache)

	broadcaster := transport.NewBroadcaster()
	eventSink := store.NewEventLogSink(db, runID)
	reg := prometheus.NewRegistry()
	recorder := metrics.New(reg)
	eng.RegisterClient(fanoutSink{broadcaster, eventSink, recorder})

	eng.InitializeAccount()

	mux := http.NewServeMux()
	mux.Handle("/ws", broadcaster)
	mux.Handle("/api/", http.StripPrefix("/api", transport.NewInspector(eng).Routes()))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpServer := &http.Server{Addr: *addr, Handler: mux}

	var t tomb.Tomb
	t.Go(func() error {
		log.Info().Str("addr", *addr).Msg("simulex: http/websocket listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *dataPath != "" {
		f, err := os.Open(*dataPath)
		if err != nil {
			log.Fatal().Err(err).Msg("simulex: open replay file")
		}
		defer f.Close()

		var limiter *rate.Limiter
		if *replayRate > 0 {
			limiter = rate.NewLimiter(rate.Limit(*replayRate), 1)
		}
		runner := feed.NewRunner(feed.NewReader(f), eng, limiter)
		runner.Start(ctx)
		if err := runner.Stop(); err != nil {
			log.Error().Err(err).Msg("simulex: replay ended with error")
		}
	} else {
		<-ctx.Done()
	}

	if err := httpServer.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("simulex: http shutdown")
	}
	t.Kill(nil)
	if err := t.Wait(); err != nil {
		log.Error().Err(err).Msg("simulex: shutdown")
	}
}

// fanoutSink duplicates every emitted event to the websocket broadcaster,
// the event-log store and the metrics recorder, the same one-event-many-observers
// shape the teacher's Server.ReportTrade/ReportError pair applies across
// every connected client session.
type fanoutSink struct {
	a *transport.Broadcaster
	b *store.EventLogSink
	c *metrics.Recorder
}

func (f fanoutSink) Emit(e events.Event) {
	f.a.Emit(e)
	f.b.Emit(e)
	f.c.Emit(e)
}

// noopPositionCache is the default position cache when no external
// execution client is wired in: every order opens against a freshly
// generated venue-position-id and no position is ever reported open. A
// real deployment replaces this with an adapter over its own OMS state.
type noopPositionCache struct{}

func (noopPositionCache) PositionIDForOrder(clientOrderID string) (string, bool) {
	return "", false
}

func (noopPositionCache) OpenPositionForInstrument(instrumentID string) (model.Position, bool) {
	return model.Position{}, false
}

func (noopPositionCache) Position(positionID string) (model.Position, bool) {
	return model.Position{}, false
}
