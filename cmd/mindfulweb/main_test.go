package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vincentbai/mindfulweb-agent/internal/models"
	"pkt.systems/pslog"
)

func TestDefaultLogOptions(t *testing.T) {
	if got := defaultLogOptions("", false); got.Mode != pslog.ModeStructured {
		t.Fatalf("expected structured mode for non-terminal, got %v", got.Mode)
	}
	if got := defaultLogOptions("", true); got.Mode != pslog.ModeConsole {
		t.Fatalf("expected console mode for terminal, got %v", got.Mode)
	}
	if got := defaultLogOptions("json", false); got.Mode != pslog.ModeConsole {
		t.Fatalf("expected console base when LOG_MODE is set, got %v", got.Mode)
	}
}

func TestBuildCommand(t *testing.T) {
	cmd, err := buildCommand("set-tracking-enabled", true, false, false, nil, false, "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if cmd["type"] != "SET_TRACKING_ENABLED" || cmd["enabled"] != false {
		t.Fatalf("unexpected command %v", cmd)
	}
	if _, ok := cmd["url"]; ok {
		t.Fatalf("unset flags must not be sent: %v", cmd)
	}

	cmd, err = buildCommand("UPDATE_DOMAIN_EXCEPTIONS", false, false, true, nil, false, "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if domains, ok := cmd["domains"].([]string); !ok || len(domains) != 0 {
		t.Fatalf("expected empty domain list, got %v", cmd["domains"])
	}

	if _, err := buildCommand("reboot", false, false, false, nil, false, ""); err == nil {
		t.Fatal("expected unknown command error")
	}
}

func TestAgentURL(t *testing.T) {
	if got := agentURL("127.0.0.1:8123"); got != "http://127.0.0.1:8123" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := agentURL("https://agent.local/"); got != "https://agent.local" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestPostCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/commands" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"isTracking":true,"isOnline":false}`))
	}))
	defer srv.Close()

	out, err := postCommand(context.Background(), srv.Client(), srv.URL, map[string]any{"type": "GET_TRACKING_STATUS"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if out["isTracking"] != true {
		t.Fatalf("unexpected response %v", out)
	}
}

func TestPrintStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, statusReport{
		Reachable: true,
		Tracking:  true,
		Online:    true,
		Events:    1234,
		Domains:   12,
		Queue:     3,
		Oldest:    now.Add(-3 * time.Minute),
		DBBytes:   2048,
		DBPath:    "/tmp/agent.db",
		AgentAddr: "127.0.0.1:8123",
	}, now)
	out := buf.String()
	for _, want := range []string{"tracking:  on", "online", "1,234 events across 12 domains", "3 events, oldest 3 minutes ago", "2.0 kB"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	buf.Reset()
	printStatus(&buf, statusReport{AgentAddr: "127.0.0.1:1", AgentError: errors.New("connection refused")}, now)
	if !strings.Contains(buf.String(), "not reachable") {
		t.Fatalf("expected unreachable agent, got:\n%s", buf.String())
	}
}

func TestOldestTimestamp(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []models.Event{{Timestamp: base.Add(time.Minute)}, {Timestamp: base}, {Timestamp: base.Add(time.Hour)}}
	if got := oldestTimestamp(events); !got.Equal(base) {
		t.Fatalf("expected %v, got %v", base, got)
	}
	if got := oldestTimestamp(nil); !got.IsZero() {
		t.Fatalf("expected zero time, got %v", got)
	}
}

func TestConfigInitAndVersionCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "init", "--config", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out.String(), path) {
		t.Fatalf("expected written path in output, got %q", out.String())
	}

	root = newRootCmd()
	out.Reset()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out.String(), "mindfulweb ") {
		t.Fatalf("unexpected version output %q", out.String())
	}
}
