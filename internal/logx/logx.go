package logx

import (
	"context"
	"io"

	"github.com/vincentbai/mindfulweb-agent/internal/models"
	"pkt.systems/pslog"
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return pslog.Ctx(ctx)
}

// OrDefault returns logger, or the background logger when it is nil.
func OrDefault(logger pslog.Logger) pslog.Logger {
	if logger != nil {
		return logger
	}
	return pslog.Ctx(context.Background())
}

// Discard returns a logger that drops everything.
func Discard() pslog.Logger {
	return pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, NoColor: true, MinLevel: pslog.ErrorLevel})
}

// WithTab annotates the logger with tab identifiers.
func WithTab(log pslog.Logger, tab models.Tab) pslog.Logger {
	log = log.With("tab", tab.ID)
	if tab.WindowID != 0 {
		log = log.With("window", tab.WindowID)
	}
	return log
}

// WithDomain annotates the logger with a domain when available.
func WithDomain(log pslog.Logger, domain string) pslog.Logger {
	if domain != "" {
		log = log.With("domain", domain)
	}
	return log
}

// WithCommand annotates the logger with the command type being handled.
func WithCommand(log pslog.Logger, command string) pslog.Logger {
	if command != "" {
		log = log.With("command", command)
	}
	return log
}
