// Package transport exposes the emitted event stream to the outside world
// through two async observers that sit strictly downstream of the
// deterministic core: a websocket broadcaster for live replay-monitor UIs,
// and a read-only HTTP inspector. Both are generalizations of the
// teacher's internal/net/server.go client-session map and accept loop —
// sessions there tracked one raw TCP connection each and pushed wire
// Reports to it; here a session tracks one websocket connection and
// pushes JSON-encoded events to it. Neither package participates in
// Process/ProcessMarket: the core calls Emit synchronously, but Emit here
// only hands the event to a buffered per-session channel and returns.
package transport

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"simulex/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientSession is one connected websocket observer, the generalization
// of the teacher's ClientSession (one net.Conn plus its id).
type clientSession struct {
	id   int
	conn *websocket.Conn
	out  chan []byte
}

// Broadcaster is an events.Sink that fans every emitted event out to every
// currently connected websocket session, the same addClientSession /
// deleteClientSession bookkeeping the teacher's Server keeps, generalized
// from a single TCP map to a websocket one.
type Broadcaster struct {
	mu       sync.Mutex
	sessions map[int]*clientSession
	nextID   int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{sessions: make(map[int]*clientSession)}
}

// Emit implements events.Sink. It never blocks on a slow client: a full
// per-session buffer drops the event for that session rather than stall
// the core, the same non-blocking contract events.Sink documents.
func (b *Broadcaster) Emit(e events.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Msg("transport: marshal event for broadcast")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.sessions {
		select {
		case s.out <- payload:
		default:
			log.Warn().Int("session", s.id).Msg("transport: dropping event, session buffer full")
		}
	}
}

// ServeHTTP upgrades the connection to a websocket and registers a new
// session for the lifetime of the connection, mirroring the teacher's
// sessionHandler/handleConnection split: handleConnection owns the
// session's write loop, sessionHandler owns accept-and-register.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("transport: websocket upgrade failed")
		return
	}
	session := b.addSession(conn)
	defer b.deleteSession(session.id)
	b.handleConnection(session)
}

func (b *Broadcaster) addSession(conn *websocket.Conn) *clientSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &clientSession{id: b.nextID, conn: conn, out: make(chan []byte, 256)}
	b.sessions[s.id] = s
	return s
}

func (b *Broadcaster) deleteSession(id int) {
	b.mu.Lock()
	s, ok := b.sessions[id]
	delete(b.sessions, id)
	b.mu.Unlock()
	if ok {
		close(s.out)
		s.conn.Close()
	}
}

// handleConnection drains the session's outbound channel to the
// websocket until it closes or a write fails. Inbound messages are never
// read beyond the control frames gorilla/websocket handles internally —
// this is a push-only observer, not a command channel.
func (b *Broadcaster) handleConnection(s *clientSession) {
	for payload := range s.out {
		if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// SessionCount reports the number of connected observers, for metrics/
// diagnostics.
func (b *Broadcaster) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}
