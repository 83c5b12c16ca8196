// Package dashboard serves a read-only websocket feed of channel
// occupancy events (join, leave, kick, mute, switch, empty, shutdown) for
// an operator-facing live view. It never accepts chat traffic; the feed
// is strictly server-to-spectator.
package dashboard

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// Event is one occupancy change broadcast to every connected spectator.
type Event struct {
	Channel string    `json:"channel"`
	Kind    string    `json:"kind"` // join, leave, kick, mute, switch, empty, shutdown
	User    string    `json:"user,omitempty"`
	Time    time.Time `json:"time"`
}

// Feed fans admin-action notifications out to every connected spectator
// websocket.
type Feed struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu   sync.Mutex
	subs map[*websocket.Conn]chan Event
}

// NewFeed constructs an empty Feed.
func NewFeed(log *slog.Logger) *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:  log,
		subs: make(map[*websocket.Conn]chan Event),
	}
}

// ServeHTTP implements http.Handler so a Feed can be mounted directly or
// used with httptest.NewServer.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.HandleWebSocket(w, r)
}

// HandleWebSocket upgrades the request and streams events to it until the
// client disconnects.
func (f *Feed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Debug("dashboard upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events := make(chan Event, 64)
	f.mu.Lock()
	f.subs[conn] = events
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.subs, conn)
		f.mu.Unlock()
	}()

	f.log.Debug("dashboard spectator connected", "remote", r.RemoteAddr)

	// Drain any client-sent frames so the connection's read side stays
	// serviced; the feed does not accept input.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for ev := range events {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			f.log.Debug("dashboard write failed", "error", err)
			return
		}
	}
}

// Register mounts the spectator feed at /ws on mux.
func (f *Feed) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws", f.HandleWebSocket)
}

// Publish fans out ev to every connected spectator. Slow subscribers are
// dropped rather than allowed to block the publisher.
func (f *Feed) Publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			f.log.Warn("dashboard subscriber too slow, dropping", "remote", conn.RemoteAddr())
		}
	}
}

// AuditFunc adapts Publish to the signature channels expect for their
// audit callback, tagging every administrative action with the current
// time.
func (f *Feed) AuditFunc() func(channel, action, target string) {
	return func(channel, action, target string) {
		f.Publish(Event{Channel: channel, Kind: action, User: target, Time: time.Now()})
	}
}
