package controller

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingChannel struct {
	mu       sync.Mutex
	kicked   []string
	muted    map[string]time.Duration
	emptied  bool
	shutdown bool
	failNext bool
}

func newRecordingChannel() *recordingChannel {
	return &recordingChannel{muted: make(map[string]time.Duration)}
}

func (c *recordingChannel) Kick(ctx context.Context, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		c.failNext = false
		return errors.New("boom")
	}
	c.kicked = append(c.kicked, target)
	return nil
}

func (c *recordingChannel) Mute(ctx context.Context, target string, duration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted[target] = duration
	return nil
}

func (c *recordingChannel) Empty(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emptied = true
	return nil
}

func (c *recordingChannel) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdown = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runController(t *testing.T, input string, lookup Lookup) (output string, shutdownCalled bool) {
	t.Helper()
	return runControllerWithBans(t, input, lookup, nil)
}

func runControllerWithBans(t *testing.T, input string, lookup Lookup, bans BanStore) (output string, shutdownCalled bool) {
	t.Helper()
	return runControllerFull(t, input, lookup, nil, bans)
}

func runControllerFull(t *testing.T, input string, lookup Lookup, all []Channel, bans BanStore) (output string, shutdownCalled bool) {
	t.Helper()
	var out bytes.Buffer
	var called bool
	ctrl := New(strings.NewReader(input), &out, lookup, all, bans, func() { called = true }, discardLogger())
	ctrl.Run(context.Background())
	return out.String(), called
}

type recordingBanStore struct {
	mu      sync.Mutex
	banned  map[string]string
	unbanned []string
}

func newRecordingBanStore() *recordingBanStore {
	return &recordingBanStore{banned: make(map[string]string)}
}

func (b *recordingBanStore) Ban(channel, username, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.banned[channel+"/"+username] = reason
	return nil
}

func (b *recordingBanStore) Unban(channel, username string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.banned, channel+"/"+username)
	b.unbanned = append(b.unbanned, channel+"/"+username)
	return nil
}

func TestControllerKick(t *testing.T) {
	general := newRecordingChannel()
	lookup := func(name string) (Channel, bool) {
		if name == "general" {
			return general, true
		}
		return nil, false
	}
	out, shutdown := runController(t, "/kick general alice\n", lookup)
	if len(general.kicked) != 1 || general.kicked[0] != "alice" {
		t.Errorf("kicked = %v, want [alice]", general.kicked)
	}
	if shutdown {
		t.Error("shutdown should not be called for /kick")
	}
	if !strings.Contains(out, "kicked alice from general") {
		t.Errorf("output = %q, missing confirmation", out)
	}
}

func TestControllerKickUnknownChannel(t *testing.T) {
	lookup := func(name string) (Channel, bool) { return nil, false }
	out, _ := runController(t, "/kick nowhere alice\n", lookup)
	want := `[Server Message] Channel "nowhere" does not exist.`
	if !strings.Contains(out, want) {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestControllerMuteWithDuration(t *testing.T) {
	general := newRecordingChannel()
	lookup := func(string) (Channel, bool) { return general, true }
	_, _ = runController(t, "/mute general alice 30\n", lookup)
	if general.muted["alice"] != 30*time.Second {
		t.Errorf("muted[alice] = %v, want 30s", general.muted["alice"])
	}
}

func TestControllerMuteIndefinite(t *testing.T) {
	general := newRecordingChannel()
	lookup := func(string) (Channel, bool) { return general, true }
	_, _ = runController(t, "/mute general alice\n", lookup)
	if general.muted["alice"] != 0 {
		t.Errorf("muted[alice] = %v, want 0 (indefinite)", general.muted["alice"])
	}
}

func TestControllerEmpty(t *testing.T) {
	general := newRecordingChannel()
	lookup := func(string) (Channel, bool) { return general, true }
	_, _ = runController(t, "/empty general\n", lookup)
	if !general.emptied {
		t.Error("expected channel to be emptied")
	}
}

func TestControllerShutdownStopsLoop(t *testing.T) {
	lookup := func(string) (Channel, bool) { return nil, false }
	out, shutdown := runController(t, "/shutdown\n/kick general alice\n", lookup)
	if !shutdown {
		t.Error("expected shutdown callback to fire")
	}
	if strings.Contains(out, "kicked") {
		t.Errorf("commands after /shutdown should not run, got %q", out)
	}
}

func TestControllerShutdownTearsDownEveryChannel(t *testing.T) {
	general := newRecordingChannel()
	ops := newRecordingChannel()
	lookup := func(string) (Channel, bool) { return nil, false }
	out, shutdown := runControllerFull(t, "/shutdown\n", lookup, []Channel{general, ops}, nil)
	if !shutdown {
		t.Error("expected shutdown callback to fire")
	}
	if !general.shutdown || !ops.shutdown {
		t.Error("expected every channel to receive Shutdown")
	}
	want := "[Server Message] Server shuts down."
	if !strings.Contains(out, want) {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestControllerShutdownUsage(t *testing.T) {
	lookup := func(string) (Channel, bool) { return nil, false }
	out, shutdown := runController(t, "/shutdown now\n", lookup)
	if shutdown {
		t.Error("malformed /shutdown should not trigger shutdown")
	}
	if !strings.Contains(out, "Usage: /shutdown") {
		t.Errorf("output = %q, want usage message", out)
	}
}

func TestControllerEOFTriggersShutdown(t *testing.T) {
	lookup := func(string) (Channel, bool) { return nil, false }
	_, shutdown := runController(t, "", lookup)
	if !shutdown {
		t.Error("EOF on stdin should trigger shutdown")
	}
}

func TestControllerUnknownCommand(t *testing.T) {
	lookup := func(string) (Channel, bool) { return nil, false }
	out, _ := runController(t, "/frobnicate\n", lookup)
	if !strings.Contains(out, "unknown command") {
		t.Errorf("output = %q, want unknown command message", out)
	}
}

func TestControllerKickPropagatesError(t *testing.T) {
	general := newRecordingChannel()
	general.failNext = true
	lookup := func(string) (Channel, bool) { return general, true }
	out, _ := runController(t, "/kick general alice\n", lookup)
	if !strings.Contains(out, "kick failed") {
		t.Errorf("output = %q, want kick failed message", out)
	}
}

func TestControllerBanAndUnban(t *testing.T) {
	bans := newRecordingBanStore()
	lookup := func(string) (Channel, bool) { return nil, false }
	out, _ := runControllerWithBans(t, "/ban general alice spamming\n/unban general alice\n", lookup, bans)
	if !strings.Contains(out, "banned alice from general") {
		t.Errorf("output = %q, missing ban confirmation", out)
	}
	if !strings.Contains(out, "unbanned alice from general") {
		t.Errorf("output = %q, missing unban confirmation", out)
	}
	if len(bans.unbanned) != 1 || bans.unbanned[0] != "general/alice" {
		t.Errorf("unbanned = %v, want [general/alice]", bans.unbanned)
	}
}

func TestControllerBanWithoutStoreReportsUnavailable(t *testing.T) {
	lookup := func(string) (Channel, bool) { return nil, false }
	out, _ := runController(t, "/ban general alice\n", lookup)
	if !strings.Contains(out, "not configured") {
		t.Errorf("output = %q, want not configured message", out)
	}
}
