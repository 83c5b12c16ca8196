package dashboard

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFeedPublishesToSpectator(t *testing.T) {
	feed := NewFeed(discardLogger())
	server := httptest.NewServer(feed)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server a moment to register the subscriber before publishing.
	time.Sleep(50 * time.Millisecond)
	feed.Publish(Event{Channel: "general", Kind: "join", User: "alice"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Channel != "general" || got.Kind != "join" || got.User != "alice" {
		t.Errorf("got %+v, want channel=general kind=join user=alice", got)
	}
}

func TestAuditFuncPublishesEvent(t *testing.T) {
	feed := NewFeed(discardLogger())
	server := httptest.NewServer(feed)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)
	feed.AuditFunc()("general", "kick", "bob")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Kind != "kick" || got.User != "bob" {
		t.Errorf("got %+v, want kind=kick user=bob", got)
	}
}
