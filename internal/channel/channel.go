package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alexmessoussa/Multi-threaded-Chat-Server-Client/internal/protocol"
)

// acceptPollInterval bounds how long Accept blocks before the accept loop
// re-checks for a stop request. The original implementation used the same
// one-second socket timeout for this purpose.
const acceptPollInterval = time.Second

// AuditFunc receives a description of one administrative action (kick,
// mute, empty, shutdown) as it is applied, for the caller to persist or
// surface however it likes (audit log, dashboard feed).
type AuditFunc func(channel, action, target string)

// BanCheckFunc reports whether username has been banned from channel. A
// banned handshake gets the raw reply "banned" instead of "Y", and the
// connection is closed.
type BanCheckFunc func(channel, username string) bool

// Channel is one named, port-bound chat room: a bounded membership set,
// a FIFO queue of connections waiting for a free slot, and the admin
// operations a controller can apply to it.
type Channel struct {
	Name     string
	Port     int
	Capacity int

	dir Directory
	log *slog.Logger

	onAudit  AuditFunc
	isBanned BanCheckFunc

	ln *net.TCPListener

	mu         sync.Mutex
	members    map[string]*Handler
	waiting    []*Handler
	muteTimers map[string]*time.Timer

	admin  chan adminOp
	stopCh chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
}

type adminOp struct {
	kind     protocol.Type
	target   string
	duration time.Duration
	done     chan error
}

// New constructs a Channel. dir is the shared registry used to resolve
// LIST and SWITCH against every other channel on the server; onAudit may
// be nil.
func New(name string, port, capacity int, dir Directory, log *slog.Logger, onAudit AuditFunc) *Channel {
	if onAudit == nil {
		onAudit = func(string, string, string) {}
	}
	return &Channel{
		Name:       name,
		Port:       port,
		Capacity:   capacity,
		dir:        dir,
		log:        log.With("channel", name, "port", port),
		onAudit:    onAudit,
		isBanned:   func(string, string) bool { return false },
		members:    make(map[string]*Handler),
		muteTimers: make(map[string]*time.Timer),
		admin:      make(chan adminOp, 16),
		stopCh:     make(chan struct{}),
	}
}

// SetBanCheck installs the function consulted during handshake to reject
// banned usernames. Must be called before Start.
func (ch *Channel) SetBanCheck(fn BanCheckFunc) {
	if fn != nil {
		ch.isBanned = fn
	}
}

// Start binds the channel's listening port and launches its accept and
// dispatch loops. It returns once the listener is bound; the loops run
// until Stop is called.
func (ch *Channel) Start() error {
	addr := &net.TCPAddr{Port: ch.Port}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return fmt.Errorf("channel %s: listen on port %d: %w", ch.Name, ch.Port, err)
	}
	ch.ln = ln
	ch.Port = ln.Addr().(*net.TCPAddr).Port

	ch.wg.Add(2)
	go ch.acceptLoop()
	go ch.dispatchLoop()

	ch.log.Info("channel listening", "capacity", ch.Capacity)
	return nil
}

// Stop closes the listener and waits for the accept and dispatch loops and
// every connection's read loop to exit. It sends no SHUTDOWN event; call
// Shutdown first to notify and disconnect members. Safe to call more than
// once.
func (ch *Channel) Stop() {
	ch.closeOnce.Do(func() {
		close(ch.stopCh)
		if ch.ln != nil {
			ch.ln.Close()
		}
	})
	ch.wg.Wait()
}

func (ch *Channel) acceptLoop() {
	defer ch.wg.Done()
	for {
		select {
		case <-ch.stopCh:
			return
		default:
		}
		ch.ln.SetDeadline(time.Now().Add(acceptPollInterval))
		conn, err := ch.ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ch.stopCh:
				return
			default:
				ch.log.Warn("accept error", "error", err)
				continue
			}
		}
		ch.onAccept(conn)
	}
}

// onAccept performs the handshake on a freshly accepted connection and
// either admits it into membership, appends it to the FIFO waiting queue,
// or rejects it outright (banned username, or a name collision against the
// union of membership and the waiting queue). The handshake read happens
// before any lock is taken, but onAccept runs on the accept loop, so a slow
// client delays further accepts for up to handshakeTimeout.
func (ch *Channel) onAccept(conn net.Conn) {
	h := NewHandler(conn, uuid.NewString(), ch.log)
	rawName, err := h.Handshake()
	if err != nil {
		ch.log.Warn("handshake failed", "error", err)
		conn.Close()
		return
	}
	if ch.isBanned(ch.Name, rawName) {
		ch.log.Info("rejected banned username", "name", rawName)
		h.sendRaw([]byte("banned"))
		conn.Close()
		return
	}

	ch.mu.Lock()
	if ch.nameTakenLocked(rawName) {
		ch.mu.Unlock()
		h.Reject(ch.Name)
		conn.Close()
		return
	}
	admitNow := len(ch.members) < ch.Capacity
	var waitIdx int
	if admitNow {
		ch.members[rawName] = h
	} else {
		ch.waiting = append(ch.waiting, h)
		waitIdx = len(ch.waiting) - 1
	}
	ch.mu.Unlock()

	if err := h.Admit(); err != nil {
		ch.log.Warn("handshake reply failed", "name", rawName, "error", err)
		ch.departed(h)
		return
	}

	if admitNow {
		ch.announceJoin(h)
	} else {
		h.Send(protocol.MessageEvent{
			Name:    "Server Message",
			Message: fmt.Sprintf("You are in the waiting queue and there are %d user(s) ahead of you.", waitIdx),
		})
	}

	ch.wg.Add(1)
	go func() {
		defer ch.wg.Done()
		err := h.ReadLoop(func(ev protocol.Event) { ch.handleClientEvent(h, ev) })
		if err != nil {
			ch.log.Debug("handler read loop ended", "name", h.Name(), "error", err)
		}
		ch.departed(h)
	}()
}

// nameTakenLocked reports whether name is already in use by a member or a
// waiting connection. Must be called with mu held.
func (ch *Channel) nameTakenLocked(name string) bool {
	if _, taken := ch.members[name]; taken {
		return true
	}
	for _, w := range ch.waiting {
		if w.Name() == name {
			return true
		}
	}
	return false
}

// hasName reports whether name is already in use by a member or a waiting
// connection. Used by the registry to check a SWITCH destination.
func (ch *Channel) hasName(name string) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.nameTakenLocked(name)
}

// announceJoin prints the server-stdout join notice and sends the JOIN
// event to the newly admitted client. h must already be registered in
// ch.members.
func (ch *Channel) announceJoin(h *Handler) {
	name := h.Name()
	fmt.Printf("[Server Message] %s has joined the channel %q.\n", name, ch.Name)
	h.Send(protocol.JoinEvent{Channel: ch.Name})
}

// finishJoin registers h as a member and announces its join. Used to
// promote a handler out of the waiting queue.
func (ch *Channel) finishJoin(h *Handler) {
	ch.mu.Lock()
	ch.members[h.Name()] = h
	ch.mu.Unlock()
	ch.announceJoin(h)
}

// removeMember deletes name from membership (a no-op if absent), drops any
// pending mute timer, and promotes the head of the waiting queue into the
// freed slot if there is anyone waiting. It reports whether name had been a
// member. Safe to call for a name that was never admitted (e.g. one that
// disconnected while still queued).
func (ch *Channel) removeMember(name string) bool {
	ch.mu.Lock()
	_, wasMember := ch.members[name]
	delete(ch.members, name)
	delete(ch.muteTimers, name)
	for i, w := range ch.waiting {
		if w.Name() == name {
			ch.waiting = append(ch.waiting[:i], ch.waiting[i+1:]...)
			break
		}
	}
	var promoted *Handler
	if len(ch.members) < ch.Capacity && len(ch.waiting) > 0 {
		promoted, ch.waiting = ch.waiting[0], ch.waiting[1:]
	}
	ch.mu.Unlock()

	if promoted != nil {
		ch.finishJoin(promoted)
		ch.renotifyWaiting()
	}
	return wasMember
}

// renotifyWaiting sends every remaining waiter its updated 0-based queue
// position. Called after a promotion.
func (ch *Channel) renotifyWaiting() {
	ch.mu.Lock()
	snapshot := append([]*Handler(nil), ch.waiting...)
	ch.mu.Unlock()

	for idx, h := range snapshot {
		h.Send(protocol.MessageEvent{
			Name:    "Server Message",
			Message: fmt.Sprintf("You are in the waiting queue and there are %d user(s) ahead of you.", idx),
		})
	}
}

// handleClientEvent processes one event read from a member's connection.
func (ch *Channel) handleClientEvent(h *Handler, ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.MessageEvent:
		if h.Muted() {
			h.Send(protocol.MessageEvent{Name: "server", Message: "you are muted"})
			return
		}
		ch.broadcastExcept(h.Name(), fmt.Sprintf("%s: %s", h.Name(), e.Message))
	case protocol.WhisperEvent:
		ch.whisper(h, e)
	case protocol.ListEvent:
		ch.replyList(h)
	case protocol.SwitchEvent:
		ch.replySwitch(h, e)
	case protocol.QuitEvent:
		h.Send(protocol.QuitEvent{Name: h.Name()})
		h.Close()
	default:
		ch.log.Warn("unexpected client event", "type", ev.Type(), "name", h.Name())
	}
}

// whisper delivers a private message. The target receives it labeled as
// coming from the sender; the sender gets a confirmation labeled with the
// target's name, and the exchange is logged to server stdout. A target not
// currently in the channel gets a rejection reply instead.
func (ch *Channel) whisper(h *Handler, e protocol.WhisperEvent) {
	ch.mu.Lock()
	target, ok := ch.members[e.Target]
	ch.mu.Unlock()
	if !ok {
		h.Send(protocol.MessageEvent{Name: "Server Message", Message: fmt.Sprintf("%s is not in the channel.", e.Target)})
		return
	}
	sender := h.Name()
	target.Send(protocol.MessageEvent{Name: fmt.Sprintf("%s whispers to you", sender), Message: e.Message})
	h.Send(protocol.MessageEvent{Name: fmt.Sprintf("%s whispers to %s", sender, e.Target), Message: e.Message})
	fmt.Printf("[%s whispers to %s] %s\n", sender, e.Target, e.Message)
}

func (ch *Channel) replyList(h *Handler) {
	summaries := ch.dir.List()
	for _, s := range summaries {
		line := fmt.Sprintf("%s %d Capacity: %d/%d, Queue: %d", s.Name, s.Port, s.Members, s.Capacity, s.Waiting)
		h.Send(protocol.MessageEvent{Name: "Channel", Message: line})
	}
}

// replySwitch moves h to another channel: it checks the destination
// exists and has no colliding name, then removes h from this channel
// (announcing the departure and promoting from the waiting queue, same as
// any other departure) before handing back the destination's port so the
// client can reconnect there.
func (ch *Channel) replySwitch(h *Handler, e protocol.SwitchEvent) {
	port, ok := ch.dir.Lookup(e.Channel)
	if !ok {
		h.Send(protocol.MessageEvent{Name: "Server Message", Message: fmt.Sprintf("Channel %q does not exist.", e.Channel)})
		return
	}
	name := h.Name()
	if ch.dir.HasMember(e.Channel, name) {
		h.Send(protocol.MessageEvent{Name: "Server Message", Message: fmt.Sprintf("Channel %q already has user %s.", e.Channel, name)})
		return
	}

	ch.removeMember(name)
	fmt.Printf("[Server Message] %s has left the channel.\n", name)
	ch.broadcastExcept(name, fmt.Sprintf("%s has left the channel.", name))

	h.Send(protocol.SwitchEvent{Name: name, Channel: fmt.Sprintf("%d", port)})
	h.Close()
}

// broadcastExcept sends a server-labeled message to every current member
// except the one named skip (pass "" to include everyone).
func (ch *Channel) broadcastExcept(skip, message string) {
	ch.mu.Lock()
	targets := make([]*Handler, 0, len(ch.members))
	for name, h := range ch.members {
		if name == skip {
			continue
		}
		targets = append(targets, h)
	}
	ch.mu.Unlock()

	for _, h := range targets {
		h.Send(protocol.MessageEvent{Name: "Server Message", Message: message})
	}
}

// departed handles a handler's connection ending on its own (EOF, error, or
// a clean QUIT that already closed the socket): it removes the handler from
// membership or the waiting queue, announces the departure if it had been a
// member, and promotes the next waiter. Safe to call more than once for the
// same handler.
func (ch *Channel) departed(h *Handler) {
	name := h.Name()
	wasMember := ch.removeMember(name)
	h.Close()
	if wasMember {
		fmt.Printf("[Server Message] %s has left the channel.\n", name)
		ch.broadcastExcept(name, fmt.Sprintf("%s has left the channel.", name))
		ch.log.Info("member departed", "name", name)
	}
}

func (ch *Channel) dispatchLoop() {
	defer ch.wg.Done()
	for {
		select {
		case <-ch.stopCh:
			ch.drainAdmin()
			return
		case op := <-ch.admin:
			op.done <- ch.applyAdmin(op)
		case <-time.After(acceptPollInterval):
		}
	}
}

func (ch *Channel) drainAdmin() {
	for {
		select {
		case op := <-ch.admin:
			op.done <- errors.New("channel is shutting down")
		default:
			return
		}
	}
}

func (ch *Channel) applyAdmin(op adminOp) error {
	switch op.kind {
	case protocol.TypeKick:
		return ch.applyKick(op.target)
	case protocol.TypeMute:
		return ch.applyMute(op.target, op.duration)
	case protocol.TypeEmpty:
		return ch.applyEmpty()
	case protocol.TypeShutdown:
		ch.applyShutdown()
		return nil
	default:
		return fmt.Errorf("channel: unsupported admin op %s", op.kind)
	}
}

func (ch *Channel) applyKick(target string) error {
	ch.mu.Lock()
	h, ok := ch.members[target]
	if !ok {
		for _, w := range ch.waiting {
			if w.Name() == target {
				h, ok = w, true
				break
			}
		}
	}
	ch.mu.Unlock()
	if !ok {
		fmt.Printf("[Server Message] %s is not in the channel.\n", target)
		return fmt.Errorf("no such user in %s: %s", ch.Name, target)
	}

	h.Send(protocol.KickEvent{Target: target})
	ch.removeMember(target)
	h.Close()
	fmt.Printf("[Server Message] Kicked %s.\n", target)
	ch.broadcastExcept(target, fmt.Sprintf("%s has left the channel.", target))
	ch.onAudit(ch.Name, "kick", target)
	return nil
}

// applyMute toggles muted on, and if duration is positive schedules an
// automatic unmute. The original implementation left mute duration and
// unmute notification unspecified; see DESIGN.md for the decision made
// here.
func (ch *Channel) applyMute(target string, duration time.Duration) error {
	ch.mu.Lock()
	h, ok := ch.members[target]
	if !ok {
		ch.mu.Unlock()
		return fmt.Errorf("no such user in %s: %s", ch.Name, target)
	}
	if existing, scheduled := ch.muteTimers[target]; scheduled {
		existing.Stop()
		delete(ch.muteTimers, target)
	}
	if duration > 0 {
		ch.muteTimers[target] = time.AfterFunc(duration, func() { h.setMuted(false) })
	}
	ch.mu.Unlock()

	h.setMuted(true)
	ch.onAudit(ch.Name, "mute", target)
	return nil
}

func (ch *Channel) applyEmpty() error {
	fmt.Printf("[Server Message] %q has been emptied.\n", ch.Name)

	ch.mu.Lock()
	targets := make([]*Handler, 0, len(ch.members))
	for _, h := range ch.members {
		targets = append(targets, h)
	}
	ch.mu.Unlock()

	for _, h := range targets {
		name := h.Name()
		h.Send(protocol.KickEvent{Target: name})
		ch.removeMember(name)
		h.Close()
	}
	ch.onAudit(ch.Name, "empty", "")
	return nil
}

func (ch *Channel) applyShutdown() {
	ch.mu.Lock()
	targets := make([]*Handler, 0, len(ch.members))
	for _, h := range ch.members {
		targets = append(targets, h)
	}
	waiting := ch.waiting
	ch.waiting = nil
	ch.mu.Unlock()

	for _, w := range waiting {
		w.Send(protocol.ShutdownEvent{})
		w.Close()
	}
	for _, h := range targets {
		h.Send(protocol.ShutdownEvent{})
		h.Close()
	}
	ch.onAudit(ch.Name, "shutdown", "")
}

func (ch *Channel) postAdmin(ctx context.Context, kind protocol.Type, target string, duration time.Duration) error {
	done := make(chan error, 1)
	op := adminOp{kind: kind, target: target, duration: duration, done: done}
	select {
	case ch.admin <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-ch.stopCh:
		return fmt.Errorf("channel %s is shutting down", ch.Name)
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kick removes target from the channel, if present.
func (ch *Channel) Kick(ctx context.Context, target string) error {
	return ch.postAdmin(ctx, protocol.TypeKick, target, 0)
}

// Mute silences target. A zero duration mutes until the member departs
// (there is no separate unmute operation); a positive duration auto-unmutes.
func (ch *Channel) Mute(ctx context.Context, target string, duration time.Duration) error {
	return ch.postAdmin(ctx, protocol.TypeMute, target, duration)
}

// Empty removes every current member.
func (ch *Channel) Empty(ctx context.Context) error {
	return ch.postAdmin(ctx, protocol.TypeEmpty, "", 0)
}

// Shutdown notifies every member and tears the channel down. The caller
// still must call Stop to release the listening socket.
func (ch *Channel) Shutdown(ctx context.Context) error {
	return ch.postAdmin(ctx, protocol.TypeShutdown, "", 0)
}

// Summary returns a snapshot of current occupancy for LIST and the admin
// API.
func (ch *Channel) Summary() Summary {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return Summary{
		Name:     ch.Name,
		Port:     ch.Port,
		Members:  len(ch.members),
		Capacity: ch.Capacity,
		Waiting:  len(ch.waiting),
	}
}
