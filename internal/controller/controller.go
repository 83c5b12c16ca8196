// Package controller implements the server operator's command console: a
// line-oriented loop over stdin that applies administrative operations to
// channels in-process.
package controller

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alexmessoussa/Multi-threaded-Chat-Server-Client/internal/channel"
)

// Channel is the subset of *channel.Channel the controller drives. Declared
// as an interface so tests can substitute a recording fake.
type Channel interface {
	Kick(ctx context.Context, target string) error
	Mute(ctx context.Context, target string, duration time.Duration) error
	Empty(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Lookup resolves a channel name to a Channel, or reports that none exists.
type Lookup func(name string) (Channel, bool)

// ShutdownFunc is invoked once when Run returns: after an explicit
// /shutdown command, EOF on stdin, or cancellation of Run's context.
type ShutdownFunc func()

// BanStore is the persistence side of /ban and /unban.
type BanStore interface {
	Ban(channel, username, reason string) error
	Unban(channel, username string) error
}

// Controller reads admin commands from an io.Reader (stdin in production)
// and applies them to channels resolved through lookup.
type Controller struct {
	in         *bufio.Scanner
	out        io.Writer
	lookup     Lookup
	all        []Channel
	bans       BanStore
	onShutdown ShutdownFunc
	log        *slog.Logger
}

// New builds a Controller reading commands from r and writing responses to
// w. all lists every channel on the server, for /shutdown to tear down
// directly. onShutdown is called exactly once, when /shutdown is issued,
// stdin reaches EOF (the original implementation's "EOF means shutdown"
// behavior), or Run's context is cancelled. bans may be nil, in which case /ban and /unban report that ban
// persistence is unavailable.
func New(r io.Reader, w io.Writer, lookup Lookup, all []Channel, bans BanStore, onShutdown ShutdownFunc, log *slog.Logger) *Controller {
	return &Controller{
		in:         bufio.NewScanner(r),
		out:        w,
		lookup:     lookup,
		all:        all,
		bans:       bans,
		onShutdown: onShutdown,
		log:        log,
	}
}

// Run blocks reading commands until stdin closes or ctx is cancelled. It
// always triggers onShutdown before returning.
func (c *Controller) Run(ctx context.Context) {
	defer c.onShutdown()

	lines := make(chan string)
	go func() {
		defer close(lines)
		for c.in.Scan() {
			lines <- c.in.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				c.shutdownAll(ctx)
				return
			}
			if c.dispatch(ctx, line) {
				return
			}
		}
	}
}

// dispatch handles one command line and reports whether the controller
// should stop running (an explicit /shutdown was issued).
func (c *Controller) dispatch(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "/shutdown":
		if len(fields) != 1 {
			fmt.Fprintln(c.out, "Usage: /shutdown")
			return false
		}
		c.shutdownAll(ctx)
		return true
	case "/kick":
		c.kick(ctx, fields[1:])
	case "/empty":
		c.empty(ctx, fields[1:])
	case "/mute":
		c.mute(ctx, fields[1:])
	case "/ban":
		c.ban(fields[1:])
	case "/unban":
		c.unban(fields[1:])
	default:
		fmt.Fprintf(c.out, "unknown command: %s\n", fields[0])
	}
	return false
}

func (c *Controller) kick(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.out, "Usage: /kick channel_name client_username")
		return
	}
	ch, ok := c.lookup(args[0])
	if !ok {
		fmt.Fprintf(c.out, "[Server Message] Channel %q does not exist.\n", args[0])
		return
	}
	if err := ch.Kick(ctx, args[1]); err != nil {
		fmt.Fprintf(c.out, "kick failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "kicked %s from %s\n", args[1], args[0])
}

func (c *Controller) empty(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: /empty channel_name")
		return
	}
	ch, ok := c.lookup(args[0])
	if !ok {
		fmt.Fprintf(c.out, "[Server Message] Channel %q does not exist.\n", args[0])
		return
	}
	if err := ch.Empty(ctx); err != nil {
		fmt.Fprintf(c.out, "empty failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "emptied %s\n", args[0])
}

// mute supports an optional trailing duration in seconds. With none given,
// the mute is indefinite.
func (c *Controller) mute(ctx context.Context, args []string) {
	if len(args) != 2 && len(args) != 3 {
		fmt.Fprintln(c.out, "Usage: /mute channel_name client_username [seconds]")
		return
	}
	ch, ok := c.lookup(args[0])
	if !ok {
		fmt.Fprintf(c.out, "[Server Message] Channel %q does not exist.\n", args[0])
		return
	}
	var duration time.Duration
	if len(args) == 3 {
		secs, err := strconv.Atoi(args[2])
		if err != nil || secs < 0 {
			fmt.Fprintf(c.out, "invalid mute duration: %s\n", args[2])
			return
		}
		duration = time.Duration(secs) * time.Second
	}
	if err := ch.Mute(ctx, args[1], duration); err != nil {
		fmt.Fprintf(c.out, "mute failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "muted %s in %s\n", args[1], args[0])
}

func (c *Controller) ban(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "usage: /ban <channel> <user> [reason]")
		return
	}
	if c.bans == nil {
		fmt.Fprintln(c.out, "ban persistence is not configured")
		return
	}
	reason := strings.Join(args[2:], " ")
	if err := c.bans.Ban(args[0], args[1], reason); err != nil {
		fmt.Fprintf(c.out, "ban failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "banned %s from %s\n", args[1], args[0])
}

func (c *Controller) unban(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.out, "usage: /unban <channel> <user>")
		return
	}
	if c.bans == nil {
		fmt.Fprintln(c.out, "ban persistence is not configured")
		return
	}
	if err := c.bans.Unban(args[0], args[1]); err != nil {
		fmt.Fprintf(c.out, "unban failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "unbanned %s from %s\n", args[1], args[0])
}

// shutdownAll tears every channel down directly: each broadcasts SHUTDOWN
// to its members and waiters and stops accepting before this prints the
// final server-wide notice.
func (c *Controller) shutdownAll(ctx context.Context) {
	for _, ch := range c.all {
		if err := ch.Shutdown(ctx); err != nil {
			c.log.Warn("shutdown failed", "error", err)
		}
	}
	fmt.Fprintln(c.out, "[Server Message] Server shuts down.")
}

// AllChannels adapts a slice of *channel.Channel into a Lookup.
func AllChannels(channels []*channel.Channel) Lookup {
	byName := make(map[string]*channel.Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name] = ch
	}
	return func(name string) (Channel, bool) {
		ch, ok := byName[name]
		return ch, ok
	}
}

// Channels adapts a slice of *channel.Channel into the []Channel form New
// expects for its shutdown teardown list.
func Channels(channels []*channel.Channel) []Channel {
	out := make([]Channel, len(channels))
	for i, ch := range channels {
		out[i] = ch
	}
	return out
}
