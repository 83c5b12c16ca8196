package metrics

import (
	"bytes"
	"context"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alexmessoussa/Multi-threaded-Chat-Server-Client/internal/channel"
)

type fakeSource struct {
	summaries []channel.Summary
}

func (f fakeSource) List() []channel.Summary { return f.summaries }

func captureLog(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)
	fn()
	return buf.String()
}

func TestRunLogsWhenOccupied(t *testing.T) {
	src := fakeSource{summaries: []channel.Summary{
		{Name: "general", Members: 3, Capacity: 4, Waiting: 1},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var output string
	output = captureLog(t, func() {
		go func() {
			Run(ctx, src, 30*time.Millisecond)
			close(done)
		}()
		time.Sleep(80 * time.Millisecond)
		cancel()
		<-done
	})

	if !strings.Contains(output, "[metrics]") {
		t.Errorf("expected metrics output, got %q", output)
	}
	if !strings.Contains(output, "members=3/4") {
		t.Errorf("expected members=3/4 in output, got %q", output)
	}
}

func TestRunSilentWhenEmpty(t *testing.T) {
	src := fakeSource{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	output := captureLog(t, func() {
		go func() {
			Run(ctx, src, 30*time.Millisecond)
			close(done)
		}()
		time.Sleep(80 * time.Millisecond)
		cancel()
		<-done
	})
	if strings.Contains(output, "[metrics]") {
		t.Errorf("expected no output for empty server, got %q", output)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	src := fakeSource{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, src, 30*time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancel")
	}
}
