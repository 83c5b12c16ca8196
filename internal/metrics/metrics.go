// Package metrics periodically logs aggregate occupancy across every
// channel on the server.
package metrics

import (
	"context"
	"log"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/alexmessoussa/Multi-threaded-Chat-Server-Client/internal/channel"
)

// Source is the subset of *channel.Registry the metrics loop needs.
type Source interface {
	List() []channel.Summary
}

// Run logs occupancy across every channel in source every interval, until
// ctx is canceled. It stays silent when the server is completely idle.
func Run(ctx context.Context, source Source, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report(source)
		}
	}
}

func report(source Source) {
	summaries := source.List()
	var members, waiting, capacity int
	for _, s := range summaries {
		members += s.Members
		waiting += s.Waiting
		capacity += s.Capacity
	}
	if members == 0 && waiting == 0 {
		return
	}
	log.Printf("[metrics] channels=%s members=%s/%s waiting=%s",
		humanize.Comma(int64(len(summaries))),
		humanize.Comma(int64(members)),
		humanize.Comma(int64(capacity)),
		humanize.Comma(int64(waiting)),
	)
}
