// Package agent wires the focus tracker, queue, delivery client and command
// handlers into the running daemon.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/vincentbai/mindfulweb-agent/internal/appconfig"
	"github.com/vincentbai/mindfulweb-agent/internal/bridge"
	"github.com/vincentbai/mindfulweb-agent/internal/database"
	"github.com/vincentbai/mindfulweb-agent/internal/delivery"
	"github.com/vincentbai/mindfulweb-agent/internal/handlers"
	"github.com/vincentbai/mindfulweb-agent/internal/logx"
	"github.com/vincentbai/mindfulweb-agent/internal/models"
	"github.com/vincentbai/mindfulweb-agent/internal/queue"
	"github.com/vincentbai/mindfulweb-agent/internal/server"
	"github.com/vincentbai/mindfulweb-agent/internal/settings"
	"github.com/vincentbai/mindfulweb-agent/internal/status"
	"github.com/vincentbai/mindfulweb-agent/internal/tracker"
	"github.com/vincentbai/mindfulweb-agent/internal/tracking"
	"golang.org/x/sync/errgroup"
	"pkt.systems/pslog"
)

var ErrMissingDependency = errors.New("missing agent dependency")

// Deps are the collaborators supplied by the caller. DB is required.
type Deps struct {
	DB         *database.Database
	Host       *bridge.Host
	HTTPClient *http.Client
	Logger     pslog.Logger
	Now        func() time.Time
}

type Agent struct {
	cfg        appconfig.Config
	log        pslog.Logger
	state      *status.State
	settings   *settings.Settings
	host       *bridge.Host
	tracker    *tracker.Tracker
	queue      *queue.Queue
	delivery   *delivery.Client
	controller *tracking.Controller
	dispatcher *handlers.Dispatcher
	server     *server.Server
	stats      *DailyStats
}

// New builds the agent and restores persisted settings and queued events.
func New(ctx context.Context, cfg appconfig.Config, deps Deps) (*Agent, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("%w: database", ErrMissingDependency)
	}
	log := logx.OrDefault(deps.Logger)
	if deps.Host == nil {
		deps.Host = bridge.NewHost(log)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	a := &Agent{
		cfg:   cfg,
		log:   log.With("component", "agent"),
		state: status.New(),
		host:  deps.Host,
		stats: NewDailyStats(deps.Now),
	}

	var err error
	a.settings, err = settings.New(deps.DB.Settings(), settings.Defaults{
		BackendURL:      cfg.Backend.URL,
		TrackingEnabled: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingDependency, err)
	}
	if err := a.settings.Load(ctx); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	a.queue, err = queue.Open(ctx, deps.DB.Queue(), queue.Options{
		MaxSize: cfg.Queue.MaxSize,
		Logger:  log,
		Now:     deps.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}

	a.delivery, err = delivery.New(a.settings, delivery.Options{
		HTTPClient:     deps.HTTPClient,
		Status:         a.state,
		Logger:         log,
		BatchSize:      cfg.Delivery.BatchSize,
		RequestTimeout: cfg.Delivery.RequestTimeout(),
		HealthTimeout:  cfg.Delivery.HealthTimeout(),
		HealthCooldown: cfg.Delivery.HealthCooldown(),
		Now:            deps.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingDependency, err)
	}

	a.tracker, err = tracker.New(a.host, a, tracker.Options{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingDependency, err)
	}
	a.controller, err = tracking.New(a.tracker, a.settings, a.state, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingDependency, err)
	}

	connection, err := handlers.NewConnectionHandler(a.delivery, a.queue, a.delivery.Deliver, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingDependency, err)
	}
	settingsHandler, err := handlers.NewSettingsHandler(a.controller, a.settings, a.queue, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingDependency, err)
	}
	statusHandler, err := handlers.NewStatusHandler(a.state, a.stats, a.queue)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingDependency, err)
	}
	a.dispatcher, err = handlers.NewDispatcher(connection, settingsHandler, statusHandler, handlers.DispatcherOptions{
		Logger:         log,
		MessageTimeout: cfg.Messages.Timeout(),
		PingTimeout:    cfg.Messages.PingTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingDependency, err)
	}

	a.server, err = server.NewServer(a.host, a.dispatcher, cfg.Agent.ListenAddr, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingDependency, err)
	}
	return a, nil
}

// Emit is the tracker's sink: excepted domains are dropped, everything else
// is queued and counted.
func (a *Agent) Emit(ctx context.Context, kind models.EventKind, domain string) {
	if a.settings.Exceptions().Contains(domain) {
		logx.WithDomain(a.log, domain).Trace("agent event excepted", "kind", kind)
		return
	}
	event := a.queue.Enqueue(ctx, kind, domain)
	a.stats.Record(event)
}

// Run restores tracking and serves until ctx is cancelled. Queued events are
// left in the store on shutdown.
func (a *Agent) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Agent.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Agent.ListenAddr, err)
	}
	return a.RunOn(ctx, ln)
}

// RunOn is Run with an existing listener.
func (a *Agent) RunOn(ctx context.Context, ln net.Listener) error {
	if err := a.controller.Restore(ctx); err != nil {
		_ = ln.Close()
		return err
	}
	defer a.controller.Shutdown()

	a.log.Info("agent started", "addr", ln.Addr().String(), "queued", a.queue.Size(), "tracking", a.state.IsTracking())
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.server.StartOn(groupCtx, ln)
	})
	group.Go(func() error {
		a.flushLoop(groupCtx)
		return nil
	})
	err := group.Wait()
	a.log.Info("agent stopped", "queued", a.queue.Size())
	return err
}

func (a *Agent) flushLoop(ctx context.Context) {
	interval := a.cfg.Delivery.FlushInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Flush(ctx)
		}
	}
}

// Flush drains the queue once if it holds events. Failures are logged and
// retried on the next tick.
func (a *Agent) Flush(ctx context.Context) queue.DrainResult {
	if a.queue.Size() == 0 || a.settings.BackendURL() == "" {
		return queue.DrainResult{Remaining: a.queue.Size()}
	}
	result, err := a.queue.Drain(ctx, a.delivery.Deliver)
	switch {
	case errors.Is(err, queue.ErrDrainInProgress):
		a.log.Debug("agent flush skipped", "reason", "drain in progress")
	case err != nil:
		a.log.Warn("agent flush failed", "sent", result.Sent, "remaining", result.Remaining, "err", err)
	case result.Remaining > 0:
		a.log.Info("agent flush partial", "sent", result.Sent, "remaining", result.Remaining)
	case result.Sent > 0:
		a.log.Debug("agent flush", "sent", result.Sent)
	}
	return result
}

// QueueSize is the number of events waiting for delivery.
func (a *Agent) QueueSize() int {
	return a.queue.Size()
}

// TrackingStatus reports whether tracking is on and the backend reachable.
func (a *Agent) TrackingStatus() status.Snapshot {
	return a.state.Snapshot()
}

func (a *Agent) Host() *bridge.Host {
	return a.host
}

func (a *Agent) Dispatcher() *handlers.Dispatcher {
	return a.dispatcher
}

// Handler exposes the agent's HTTP routes.
func (a *Agent) Handler() http.Handler {
	return a.server.Handler()
}
