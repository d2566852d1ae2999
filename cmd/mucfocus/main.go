package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mucfocus/mucfocus/internal/api"
	"github.com/mucfocus/mucfocus/internal/api/middleware"
	"github.com/mucfocus/mucfocus/internal/bridge"
	"github.com/mucfocus/mucfocus/internal/colibri"
	"github.com/mucfocus/mucfocus/internal/config"
	"github.com/mucfocus/mucfocus/internal/database"
	"github.com/mucfocus/mucfocus/internal/focus"
	"github.com/mucfocus/mucfocus/internal/metrics"
	"github.com/mucfocus/mucfocus/internal/muc"
	"github.com/mucfocus/mucfocus/internal/stats"
	"github.com/mucfocus/mucfocus/internal/xmpp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting mucfocus",
		"domain", cfg.Domain,
		"xmpp_addr", cfg.XMPPAddr,
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
	)

	// Open database and run migrations.
	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Conference history: the focus hands finished records to the
	// recorder, which writes them off the signaling path.
	records := database.NewConferenceRecordRepository(db)
	recorder := database.NewRecorder(records)
	go recorder.Run(appCtx)
	database.StartCleanupTicker(appCtx, records, cfg.RecordRetention, time.Hour)

	domainJID, err := cfg.DomainJID()
	if err != nil {
		slog.Error("failed to parse domain", "error", err)
		os.Exit(1)
	}
	bridgeJID, err := cfg.MediaBridgeJID()
	if err != nil {
		slog.Error("failed to parse media bridge address", "error", err)
		os.Exit(1)
	}
	pubsubJID, err := cfg.PubSubServiceJID()
	if err != nil {
		slog.Error("failed to parse pubsub service address", "error", err)
		os.Exit(1)
	}

	selector := bridge.NewSelector(bridgeJID, cfg.BridgeLiveness)

	ctrl := focus.NewController(focus.Config{
		MinParticipants:   cfg.MinParticipants,
		LingerTime:        cfg.LingerTime,
		AllocationTimeout: cfg.AllocationTimeout,
		Options: colibri.Options{
			UseBundle:       cfg.EnableBundle,
			UseDataChannels: cfg.EnableDataChannels,
			UseRTX:          cfg.EnableRTX,
		},
	}, selector, recorder)

	// XMPP component stream to the server.
	comp := xmpp.New(xmpp.Config{
		Addr:   cfg.XMPPAddr,
		Domain: cfg.Domain,
		Secret: cfg.Secret,
	})

	// The room host and the focus are mutually wired: rooms report
	// occupant changes to the focus, the focus drives presence and
	// eviction through the rooms.
	rooms := muc.NewService(muc.Config{
		Domain:      domainJID,
		ServiceName: "Conference focus",
		Features:    focus.Features(),
	}, comp, ctrl)
	ctrl.BindHost(rooms)

	// Bridge replies and Jingle go to the focus first; everything else
	// addressed to the service falls through to the room host.
	comp.OnIQ(ctrl.HandleIQ)
	comp.OnIQ(rooms.HandleIQ)
	comp.OnPresence(rooms.HandlePresence)

	if !cfg.HasPubSub() {
		slog.Info("no pubsub service configured, using static bridge", "bridge", cfg.MediaBridge)
		comp.OnMessage(rooms.HandleMessage)
	} else {
		ingester := stats.NewIngester(pubsubJID, domainJID, cfg.PubSubNode, comp, selector)
		comp.OnMessage(ingester.HandleMessage)
		comp.OnMessage(rooms.HandleMessage)
		// Subscribe a moment after every (re)connect: the grace period
		// gives the other hosts time to initialize, and renewing on
		// reconnect means a server restart cannot silently drop the
		// stats feed.
		comp.OnReady(ingester.SubscribeSoon)
	}

	go comp.Run(appCtx)

	// Prometheus collector over the live focus state plus the history
	// repository.
	prometheus.MustRegister(metrics.NewCollector(
		ctrl,
		&bridgeStatusAdapter{selector: selector},
		records,
		time.Now(),
	))

	limiter := middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig())
	defer limiter.Stop()

	// HTTP server using the api package.
	handler := api.NewServer(ctrl, selector, records, promhttp.Handler(), limiter)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout. Conferences are expired first, then
	// the outbound queue is flushed so the teardown stanzas go out while
	// the component stream is still up.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	ctrl.Shutdown()
	if !comp.Flush(xmpp.FlushTimeout) {
		slog.Warn("outbound queue not flushed, teardown stanzas may be lost")
	}

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("mucfocus stopped")
}

// bridgeStatusAdapter bridges the selector with the metrics package's
// BridgeStatusProvider interface, converting between bridge and metrics
// types.
type bridgeStatusAdapter struct {
	selector *bridge.Selector
}

func (a *bridgeStatusAdapter) BridgeStatuses() []metrics.BridgeStatusEntry {
	infos := a.selector.Snapshot()
	entries := make([]metrics.BridgeStatusEntry, len(infos))
	for i, info := range infos {
		entries[i] = metrics.BridgeStatusEntry{
			JID:             info.JID,
			Live:            info.Live,
			Participants:    info.Stats.Participants,
			UploadBitrate:   info.Stats.UploadBitrate,
			DownloadBitrate: info.Stats.DownloadBitrate,
			CPU:             info.Stats.CPU,
		}
	}
	return entries
}
