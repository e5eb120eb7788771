package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veilrpc/veilrpc/internal/alert"
	"github.com/veilrpc/veilrpc/internal/bus"
	"github.com/veilrpc/veilrpc/internal/config"
	"github.com/veilrpc/veilrpc/internal/database"
	"github.com/veilrpc/veilrpc/internal/drainer"
	"github.com/veilrpc/veilrpc/internal/model"
	"github.com/veilrpc/veilrpc/internal/proxy"
	"github.com/veilrpc/veilrpc/internal/reputation"
)

// Session-pruning cadence. Sessions are bookkeeping only; pruning keeps
// a long-lived relay from accumulating keys for wallets long gone.
const (
	pruneInterval  = 10 * time.Minute
	sessionMaxIdle = 30 * time.Minute
)

// ProxyRuntime aggregates every component of a running relay.
type ProxyRuntime struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *database.ThreatDB
	Engine   *reputation.Engine
	Analyzer *drainer.Analyzer
	Hub      *alert.Hub
	Feed     *alert.OverlayFeed
	Bus      *bus.Bus
	Server   *proxy.Server
}

// Init builds and wires a runtime from the configuration. The returned
// runtime owns its database handle; callers must Teardown it.
func Init(cfg *config.Config, logger *slog.Logger) (*ProxyRuntime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := database.Open(cfg.DatabaseDir(), database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open threat database: %w", err)
	}

	engine := reputation.NewEngine(
		reputation.WithStore(db),
		reputation.WithEngineLogger(logger),
	)
	if err := seedEngine(engine, db, cfg); err != nil {
		_ = db.Close()
		return nil, err
	}

	analyzer := drainer.NewAnalyzer(drainer.WithLogger(logger))

	feed := alert.NewOverlayFeed(0)
	hubOpts := []alert.HubOption{
		alert.WithLogger(logger),
		alert.WithRecorder(db),
		alert.WithMaxPerMinute(cfg.MaxAlertsPerMinute),
		alert.WithCooldowns(cfg.ActivityCooldown, cfg.ErrorCooldown),
	}
	if cfg.NativeAlerts {
		hubOpts = append(hubOpts, alert.WithNativeSender(alert.NewNativeCommandSender()))
	}
	if cfg.OverlayAlerts {
		hubOpts = append(hubOpts, alert.WithOverlaySender(feed))
	}
	hub := alert.NewHub(hubOpts...)

	rt := &ProxyRuntime{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Engine:   engine,
		Analyzer: analyzer,
		Hub:      hub,
		Feed:     feed,
		Bus:      bus.New(bus.WithLogger(logger)),
	}
	rt.subscribe()

	rt.Server = proxy.NewServer(cfg,
		proxy.WithBus(rt.Bus),
		proxy.WithAlerts(hub),
		proxy.WithOverlayFeed(feed),
		proxy.WithLogger(logger),
	)
	return rt, nil
}

// seedEngine loads persisted and configured domain lists into the
// reputation engine.
func seedEngine(engine *reputation.Engine, db *database.ThreatDB, cfg *config.Config) error {
	ctx := context.Background()

	trusted, err := db.TrustedDomains(ctx)
	if err != nil {
		return fmt.Errorf("failed to load trusted domains: %w", err)
	}
	engine.SeedAllow(trusted)

	reported, err := db.ReportedDomains(ctx)
	if err != nil {
		return fmt.Errorf("failed to load reported domains: %w", err)
	}
	engine.SeedDeny(reported)

	if cfg.File != nil {
		engine.SeedAllow(cfg.File.TrustedDomains)
		engine.SeedDeny(cfg.File.BlockedDomains)
	}
	return nil
}

// subscribe wires the detection engines onto the bus.
func (rt *ProxyRuntime) subscribe() {
	rt.Bus.Subscribe(bus.TopicObservation, func(msg *bus.Message) {
		obs, ok := msg.Payload.(bus.Observation)
		if !ok {
			return
		}
		for _, w := range rt.Analyzer.Observe(obs.SessionKey, obs.Method, obs.At) {
			rt.Hub.Notify(warningNotification(w))
		}
	})

	rt.Bus.Subscribe(bus.TopicVerdictCheck, func(msg *bus.Message) {
		action, ok := msg.Payload.(bus.DomainAction)
		if !ok {
			return
		}
		verdict := rt.Engine.Check(action.Domain)
		msg.Reply(verdict)
		if verdict.IsPhishing {
			rt.Hub.Notify(model.Notification{
				Type:    model.NotifyPhishingDetected,
				Title:   "Phishing Detected",
				Message: phishingMessage(verdict),
			})
		}
	})

	rt.Bus.Subscribe(bus.TopicTrustDomain, func(msg *bus.Message) {
		action, ok := msg.Payload.(bus.DomainAction)
		if !ok {
			return
		}
		if err := rt.Engine.Pin(action.Domain); err != nil {
			rt.Logger.Warn("failed to pin domain", "domain", action.Domain, "error", err)
		}
		msg.Reply(nil)
	})

	rt.Bus.Subscribe(bus.TopicReportDomain, func(msg *bus.Message) {
		action, ok := msg.Payload.(bus.DomainAction)
		if !ok {
			return
		}
		if err := rt.Engine.Report(action.Domain); err != nil {
			rt.Logger.Warn("failed to report domain", "domain", action.Domain, "error", err)
		}
		msg.Reply(nil)
	})
}

// warningNotification maps a drainer warning to its notification. Only
// the full drainer sequence gets the dedicated urgent type; individual
// rules ride the throttled suspicious-activity type.
func warningNotification(w model.Warning) model.Notification {
	typ := model.NotifySuspiciousRPC
	if w.Name == drainer.WarnDrainerDetected {
		typ = model.NotifyDrainerDetected
	}
	return model.Notification{
		Type:    typ,
		Title:   w.Name,
		Message: w.Message,
	}
}

// phishingMessage renders the user-facing line for a phishing verdict.
func phishingMessage(v model.DomainVerdict) string {
	if v.LegitimateMatch != "" {
		return fmt.Sprintf("%s looks like %s (%s confidence): %s",
			v.Domain, v.LegitimateMatch, v.ConfidenceText, v.Reason)
	}
	return fmt.Sprintf("%s flagged (%s confidence): %s", v.Domain, v.ConfidenceText, v.Reason)
}

// Run starts the relay and blocks until the context is canceled or the
// server fails. Session pruning runs alongside the server.
func (rt *ProxyRuntime) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.Server.Start(gctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				if n := rt.Analyzer.PruneIdle(now, sessionMaxIdle); n > 0 {
					rt.Logger.Debug("pruned idle sessions", "count", n)
				}
			}
		}
	})
	return g.Wait()
}

// Teardown releases the runtime's resources. Safe to call after Run
// returns.
func (rt *ProxyRuntime) Teardown() error {
	rt.Bus.Close()
	return rt.DB.Close()
}
