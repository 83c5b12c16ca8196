// Package channel implements the per-channel TCP server: connection
// admission, the bounded membership/waiting-queue model, and the
// administrative operations (kick, mute, empty, shutdown) that a
// controller drives in-process.
package channel

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alexmessoussa/Multi-threaded-Chat-Server-Client/internal/protocol"
)

// handshakeTimeout bounds how long a newly accepted connection has to send
// its requested username before the channel gives up on it. The original
// implementation capped the read at 1024 bytes with no deadline; a deadline
// is added here so a slow or hostile peer cannot stall the channel's accept
// loop indefinitely.
const handshakeTimeout = 2 * time.Second

// controlRateLimit bounds how many control-plane events (anything besides a
// plain MESSAGE) a single handler may issue per second, guarding against a
// client that floods /list or /switch.
const controlRateLimit = 5

// Handler owns one accepted TCP connection for the lifetime of its
// membership in a single Channel. All writes to the underlying connection
// go through sendMu so frames from the dispatcher and frames from the
// handler's own read loop never interleave.
type Handler struct {
	conn net.Conn
	id   string // correlation id for diagnostic logging
	log  *slog.Logger

	sendMu sync.Mutex
	closed bool

	name string

	mu    sync.Mutex
	muted bool

	limiter *rate.Limiter
}

// NewHandler wraps an accepted connection. The returned Handler has not
// performed a handshake yet; call Handshake before admitting it anywhere.
func NewHandler(conn net.Conn, id string, log *slog.Logger) *Handler {
	return &Handler{
		conn:    conn,
		id:      id,
		log:     log.With("conn", id, "remote", conn.RemoteAddr().String()),
		limiter: rate.NewLimiter(rate.Limit(controlRateLimit), controlRateLimit),
	}
}

// Handshake reads the client's requested username, bounded to 1024 bytes and
// handshakeTimeout. It does not validate uniqueness or send any reply; the
// caller (Channel) checks the name against current membership and the
// waiting queue under its lock, then calls Admit or Reject.
func (h *Handler) Handshake() (string, error) {
	h.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer h.conn.SetReadDeadline(time.Time{})

	buf := make([]byte, 1024)
	n, err := h.conn.Read(buf)
	if err != nil {
		return "", fmt.Errorf("handshake read: %w", err)
	}
	name := string(buf[:n])
	if name == "" {
		return "", fmt.Errorf("handshake: empty username")
	}
	h.name = name
	return name, nil
}

// Admit sends the handshake acceptance reply, "Y". Used both for an
// immediate join and for a connection placed on the waiting queue.
func (h *Handler) Admit() error {
	return h.sendRaw([]byte("Y"))
}

// Reject sends channelName as the raw handshake reply, the original
// implementation's way of refusing a connection whose requested username
// collides with one already in the channel.
func (h *Handler) Reject(channelName string) error {
	return h.sendRaw([]byte(channelName))
}

// Name returns the handler's current username.
func (h *Handler) Name() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.name
}

// Muted reports whether the channel's dispatcher has muted this handler.
func (h *Handler) Muted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.muted
}

func (h *Handler) setMuted(muted bool) {
	h.mu.Lock()
	h.muted = muted
	h.mu.Unlock()
}

// sendRaw writes a byte slice directly to the connection, used only for the
// handshake reply which predates the framed event codec.
func (h *Handler) sendRaw(data []byte) error {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	if h.closed {
		return fmt.Errorf("handler closed")
	}
	_, err := h.conn.Write(data)
	return err
}

// Send frames and writes one event to the client. Safe for concurrent use;
// the dispatcher and the handler's own reply path both call it.
func (h *Handler) Send(e protocol.Event) error {
	data, err := protocol.Encode(e)
	if err != nil {
		return err
	}
	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	if h.closed {
		return fmt.Errorf("handler closed")
	}
	return protocol.WriteFrame(h.conn, data)
}

// Close shuts down the underlying connection. Idempotent.
func (h *Handler) Close() error {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.conn.Close()
}

// ReadLoop reads framed events from the connection until it errors or the
// connection closes, handing each decoded event to onEvent. It always
// returns a non-nil error (io.EOF on a clean close).
func (h *Handler) ReadLoop(onEvent func(protocol.Event)) error {
	r := bufio.NewReader(h.conn)
	for {
		payload, err := protocol.ReadFrame(r)
		if err != nil {
			return err
		}
		ev, err := protocol.Decode(payload)
		if err != nil {
			h.log.Warn("dropping malformed frame", "error", err)
			continue
		}
		if isControlEvent(ev) && !h.limiter.Allow() {
			h.log.Warn("control rate limit exceeded, dropping event", "type", ev.Type())
			continue
		}
		onEvent(ev)
	}
}

func isControlEvent(e protocol.Event) bool {
	switch e.Type() {
	case protocol.TypeMessage:
		return false
	default:
		return true
	}
}
