package handlers

import (
	"context"
	"errors"

	"github.com/vincentbai/mindfulweb-agent/internal/domains"
	"github.com/vincentbai/mindfulweb-agent/internal/logx"
	"github.com/vincentbai/mindfulweb-agent/internal/settings"
	"github.com/vincentbai/mindfulweb-agent/internal/tracking"
	"pkt.systems/pslog"
)

type TrackingSwitch interface {
	SetTrackingEnabled(ctx context.Context, enabled bool) (tracking.Result, error)
}

type SettingsWriter interface {
	SetExceptions(ctx context.Context, list []string) (domains.ExceptionSet, error)
	SetBackendURL(ctx context.Context, raw string) error
}

type Purger interface {
	PurgeByDomain(ctx context.Context, set domains.ExceptionSet) int
}

// SettingsHandler applies user changes from the options page.
type SettingsHandler struct {
	tracking TrackingSwitch
	settings SettingsWriter
	queue    Purger
	log      pslog.Logger
}

func NewSettingsHandler(tracking TrackingSwitch, writer SettingsWriter, purger Purger, logger pslog.Logger) (*SettingsHandler, error) {
	if tracking == nil || writer == nil || purger == nil {
		return nil, errors.New("settings handler requires tracking switch, settings and queue")
	}
	return &SettingsHandler{
		tracking: tracking,
		settings: writer,
		queue:    purger,
		log:      logx.OrDefault(logger).With("component", "settings"),
	}, nil
}

func (h *SettingsHandler) SetTrackingEnabled(ctx context.Context, cmd SetTrackingEnabled) any {
	if cmd.Enabled == nil {
		return fail("enabled is required")
	}
	result, err := h.tracking.SetTrackingEnabled(ctx, *cmd.Enabled)
	if err != nil {
		return SetTrackingResponse{IsTracking: result.IsTracking, Error: err.Error()}
	}
	return SetTrackingResponse{Success: result.Success, IsTracking: result.IsTracking}
}

// UpdateDomainExceptions replaces the exception list and drops queued events
// for the excepted domains.
func (h *SettingsHandler) UpdateDomainExceptions(ctx context.Context, cmd UpdateDomainExceptions) any {
	if cmd.Domains == nil {
		return fail("domains is required")
	}
	set, err := h.settings.SetExceptions(ctx, cmd.Domains)
	if err != nil {
		h.log.Warn("domain exceptions not saved", "err", err)
		return fail(err.Error())
	}
	removed := h.queue.PurgeByDomain(ctx, set)
	h.log.Info("domain exceptions updated", "count", set.Len(), "purged", removed)
	return ExceptionsResponse{Success: true, Count: set.Len(), RemovedFromQueue: removed}
}

func (h *SettingsHandler) UpdateBackendURL(ctx context.Context, cmd UpdateBackendURL) any {
	if cmd.URL == nil {
		return fail("url is required")
	}
	if err := h.settings.SetBackendURL(ctx, *cmd.URL); err != nil {
		if !errors.Is(err, settings.ErrInvalidBackendURL) {
			h.log.Warn("backend url not saved", "err", err)
		}
		return BackendURLResponse{Error: err.Error()}
	}
	h.log.Info("backend url updated")
	return BackendURLResponse{Success: true}
}
