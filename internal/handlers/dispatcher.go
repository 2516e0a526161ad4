// Package handlers answers the commands sent by the extension's popup and
// options pages.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/vincentbai/mindfulweb-agent/internal/logx"
	"pkt.systems/pslog"
)

const (
	DefaultMessageTimeout = 5 * time.Second
	DefaultPingTimeout    = 2 * time.Second
)

const errTimedOut = "request timed out"

type DispatcherOptions struct {
	Logger pslog.Logger
	// MessageTimeout bounds every command except CHECK_CONNECTION, which
	// uses PingTimeout.
	MessageTimeout time.Duration
	PingTimeout    time.Duration
}

type Dispatcher struct {
	connection *ConnectionHandler
	settings   *SettingsHandler
	status     *StatusHandler
	log        pslog.Logger
	timeout    time.Duration
	ping       time.Duration
}

func NewDispatcher(connection *ConnectionHandler, settings *SettingsHandler, status *StatusHandler, opts DispatcherOptions) (*Dispatcher, error) {
	if connection == nil || settings == nil || status == nil {
		return nil, errors.New("dispatcher requires connection, settings and status handlers")
	}
	if opts.MessageTimeout <= 0 {
		opts.MessageTimeout = DefaultMessageTimeout
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = DefaultPingTimeout
	}
	return &Dispatcher{
		connection: connection,
		settings:   settings,
		status:     status,
		log:        logx.OrDefault(opts.Logger).With("component", "dispatcher"),
		timeout:    opts.MessageTimeout,
		ping:       opts.PingTimeout,
	}, nil
}

// HandleJSON decodes and dispatches a raw command. Only malformed JSON is
// returned as an error; every other failure is a response value.
func (d *Dispatcher) HandleJSON(ctx context.Context, data []byte) (any, error) {
	cmd, err := Decode(data)
	if errors.Is(err, ErrMalformedCommand) {
		return nil, err
	}
	if err != nil {
		d.log.Debug("command rejected", "err", err)
		return fail(err.Error()), nil
	}
	return d.Dispatch(ctx, cmd), nil
}

// Dispatch runs cmd under its timeout. A handler that overruns is abandoned
// and the caller gets a timeout failure.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) any {
	if cmd == nil {
		return fail("command is required")
	}
	log := logx.WithCommand(d.log, cmd.Type())
	timeout := d.timeout
	if _, ok := cmd.(CheckConnection); ok {
		timeout = d.ping
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan any, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("command panic", "panic", r, "stack", string(debug.Stack()))
				done <- fail(fmt.Sprintf("internal error handling %s", cmd.Type()))
			}
		}()
		done <- d.route(ctx, cmd)
	}()

	select {
	case response := <-done:
		log.Debug("command handled")
		return response
	case <-ctx.Done():
		log.Warn("command timed out", "timeout", timeout)
		return fail(errTimedOut)
	}
}

func (d *Dispatcher) route(ctx context.Context, cmd Command) any {
	switch c := cmd.(type) {
	case CheckConnection:
		return d.connection.CheckConnection(ctx)
	case TestConnection:
		return d.connection.TestConnection(ctx)
	case GetTrackingStatus:
		return d.status.TrackingStatus()
	case SetTrackingEnabled:
		return d.settings.SetTrackingEnabled(ctx, c)
	case GetTodayStats:
		return d.status.TodayStats()
	case UpdateDomainExceptions:
		return d.settings.UpdateDomainExceptions(ctx, c)
	case UpdateBackendURL:
		return d.settings.UpdateBackendURL(ctx, c)
	default:
		return fail(fmt.Sprintf("unsupported command %s", cmd.Type()))
	}
}
