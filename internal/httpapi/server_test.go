package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alexmessoussa/Multi-threaded-Chat-Server-Client/internal/channel"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T, capacity int) *channel.Registry {
	t.Helper()
	reg := channel.NewRegistry()
	ch := channel.New("general", 0, capacity, reg, discardLogger(), nil)
	if err := ch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(ch.Stop)
	reg.Register(ch)
	return reg
}

func TestHealthEndpoint(t *testing.T) {
	reg := newTestRegistry(t, 2)
	srv := New(reg, func() {})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestListChannels(t *testing.T) {
	reg := newTestRegistry(t, 3)
	srv := New(reg, func() {})

	req := httptest.NewRequest(http.MethodGet, "/channels", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"Name":"general"`) {
		t.Errorf("body = %q, missing channel name", rec.Body.String())
	}
}

func TestGetUnknownChannel(t *testing.T) {
	reg := newTestRegistry(t, 1)
	srv := New(reg, func() {})

	req := httptest.NewRequest(http.MethodGet, "/channels/nowhere", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestKickRequiresUser(t *testing.T) {
	reg := newTestRegistry(t, 1)
	srv := New(reg, func() {})

	req := httptest.NewRequest(http.MethodPost, "/channels/general/kick", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestKickUnknownUser(t *testing.T) {
	reg := newTestRegistry(t, 1)
	srv := New(reg, func() {})

	req := httptest.NewRequest(http.MethodPost, "/channels/general/kick", strings.NewReader(`{"user":"nobody"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestShutdownInvokesCallback(t *testing.T) {
	reg := newTestRegistry(t, 1)
	done := make(chan struct{})
	srv := New(reg, func() { close(done) })

	req := httptest.NewRequest(http.MethodPost, "/shutdown", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("expected shutdown callback to fire")
	}
}
