package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vincentbai/mindfulweb-agent/internal/appconfig"
	"github.com/vincentbai/mindfulweb-agent/internal/database"
	"github.com/vincentbai/mindfulweb-agent/internal/handlers"
	"github.com/vincentbai/mindfulweb-agent/internal/models"
)

type statusReport struct {
	Reachable  bool
	Tracking   bool
	Online     bool
	Events     int
	Domains    int
	Queue      int
	Oldest     time.Time
	DBBytes    int64
	DBPath     string
	AgentAddr  string
	AgentError error
}

func newStatusCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show agent status and queued events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			report := collectStatus(cmd.Context(), cfg)
			printStatus(cmd.OutOrStdout(), report, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	return cmd
}

func collectStatus(ctx context.Context, cfg appconfig.Config) statusReport {
	report := statusReport{DBPath: cfg.DBPath, AgentAddr: cfg.Agent.ListenAddr}

	tracking, err := postCommand(ctx, http.DefaultClient, cfg.Agent.ListenAddr, map[string]any{"type": handlers.TypeGetTrackingStatus})
	if err != nil {
		report.AgentError = err
	} else {
		report.Reachable = true
		report.Tracking, _ = tracking["isTracking"].(bool)
		report.Online, _ = tracking["isOnline"].(bool)
		if stats, err := postCommand(ctx, http.DefaultClient, cfg.Agent.ListenAddr, map[string]any{"type": handlers.TypeGetTodayStats}); err == nil {
			report.Events = intField(stats, "events")
			report.Domains = intField(stats, "domains")
			report.Queue = intField(stats, "queue")
		}
	}

	if info, err := os.Stat(cfg.DBPath); err == nil {
		report.DBBytes = info.Size()
		if db, err := database.Open(ctx, cfg.DBPath); err == nil {
			if queued, err := db.Queue().Load(ctx); err == nil {
				if !report.Reachable {
					report.Queue = len(queued)
				}
				report.Oldest = oldestTimestamp(queued)
			}
			_ = db.Close()
		}
	}
	return report
}

func printStatus(w io.Writer, report statusReport, now time.Time) {
	if report.Reachable {
		fmt.Fprintf(w, "agent:     running on %s\n", report.AgentAddr)
		fmt.Fprintf(w, "tracking:  %s\n", onOff(report.Tracking))
		fmt.Fprintf(w, "backend:   %s\n", map[bool]string{true: "online", false: "offline"}[report.Online])
		fmt.Fprintf(w, "today:     %s events across %s domains\n", humanize.Comma(int64(report.Events)), humanize.Comma(int64(report.Domains)))
	} else {
		fmt.Fprintf(w, "agent:     not reachable on %s (%v)\n", report.AgentAddr, report.AgentError)
	}
	fmt.Fprintf(w, "queue:     %s events", humanize.Comma(int64(report.Queue)))
	if !report.Oldest.IsZero() {
		fmt.Fprintf(w, ", oldest %s", humanize.RelTime(report.Oldest, now, "ago", "from now"))
	}
	fmt.Fprintln(w)
	if report.DBBytes > 0 {
		fmt.Fprintf(w, "database:  %s (%s)\n", report.DBPath, humanize.Bytes(uint64(report.DBBytes)))
	}
}

func oldestTimestamp(events []models.Event) time.Time {
	var oldest time.Time
	for _, event := range events {
		if oldest.IsZero() || event.Timestamp.Before(oldest) {
			oldest = event.Timestamp
		}
	}
	return oldest
}

func intField(values map[string]any, key string) int {
	if v, ok := values[key].(float64); ok {
		return int(v)
	}
	return 0
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
