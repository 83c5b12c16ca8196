// Command chatserver runs a multi-channel TCP chat server: one listening
// port per configured channel, an admin console on stdin, an optional
// REST API, and an optional live spectator dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alexmessoussa/Multi-threaded-Chat-Server-Client/internal/channel"
	"github.com/alexmessoussa/Multi-threaded-Chat-Server-Client/internal/config"
	"github.com/alexmessoussa/Multi-threaded-Chat-Server-Client/internal/controller"
	"github.com/alexmessoussa/Multi-threaded-Chat-Server-Client/internal/dashboard"
	"github.com/alexmessoussa/Multi-threaded-Chat-Server-Client/internal/httpapi"
	"github.com/alexmessoussa/Multi-threaded-Chat-Server-Client/internal/metrics"
	"github.com/alexmessoussa/Multi-threaded-Chat-Server-Client/internal/store"
)

// Exit codes mirror the original implementation's argument/config handling.
const (
	exitUsage         = 4
	exitInvalidConfig = 5
	exitStoreFailure  = 6
)

func main() {
	var (
		dbPath     = flag.String("db", "chatserver.db", "SQLite database path for audit log and bans")
		apiAddr    = flag.String("api-addr", ":8080", "admin REST API listen address (empty to disable)")
		dashAddr   = flag.String("dashboard-addr", ":8081", "spectator dashboard listen address (empty to disable)")
		metricsInt = flag.Duration("metrics-interval", 30*time.Second, "occupancy logging interval")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <afk_time_seconds> <config_file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(exitUsage)
	}

	afkSeconds, err := strconv.Atoi(flag.Arg(0))
	if err != nil || afkSeconds < 0 {
		fmt.Fprintf(os.Stderr, "invalid afk_time: %s\n", flag.Arg(0))
		os.Exit(exitUsage)
	}

	channels, err := config.Load(flag.Arg(1))
	if err != nil {
		var notFound *config.NotFound
		if errors.As(err, &notFound) {
			flag.Usage()
			os.Exit(exitUsage)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitInvalidConfig)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Error("opening store", "error", err)
		os.Exit(exitStoreFailure)
	}
	defer st.Close()

	if err := st.SetSetting("afk_time", strconv.Itoa(afkSeconds)); err != nil {
		log.Warn("persisting afk_time setting", "error", err)
	}

	feed := dashboard.NewFeed(log)
	registry := channel.NewRegistry()

	onAudit := func(ch, action, target string) {
		if err := st.RecordAudit(ch, action, target); err != nil {
			log.Warn("recording audit entry", "channel", ch, "action", action, "error", err)
		}
		feed.AuditFunc()(ch, action, target)
	}

	banCheck := func(ch, username string) bool {
		banned, err := st.IsBanned(ch, username)
		if err != nil {
			log.Warn("checking ban list", "channel", ch, "user", username, "error", err)
			return false
		}
		return banned
	}

	running := make([]*channel.Channel, 0, len(channels))
	for _, desc := range channels {
		ch := channel.New(desc.Name, desc.Port, desc.Capacity, registry, log, onAudit)
		ch.SetBanCheck(banCheck)
		if err := ch.Start(); err != nil {
			log.Error("starting channel", "channel", desc.Name, "error", err)
			os.Exit(exitStoreFailure)
		}
		registry.Register(ch)
		running = append(running, ch)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if *apiAddr != "" {
		api := httpapi.New(registry, stop)
		go func() {
			if err := api.Run(ctx, *apiAddr); err != nil {
				log.Error("http api stopped", "error", err)
			}
		}()
	}
	if *dashAddr != "" {
		go runDashboard(ctx, *dashAddr, feed, log)
	}

	go metrics.Run(ctx, registry, *metricsInt)

	sigCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	ctrl := controller.New(os.Stdin, os.Stdout, controller.AllChannels(running), controller.Channels(running), st, stop, log)
	go ctrl.Run(sigCtx)

	<-sigCtx.Done()
	log.Info("shutting down")
	for _, ch := range running {
		ch.Shutdown(context.Background())
		ch.Stop()
	}
}

func runDashboard(ctx context.Context, addr string, feed *dashboard.Feed, log *slog.Logger) {
	srv := &http.Server{Addr: addr, Handler: feed}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("dashboard server stopped", "error", err)
		}
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}
}
