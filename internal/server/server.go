// Package server exposes the agent to the browser extension over loopback
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/vincentbai/mindfulweb-agent/internal/bridge"
	"github.com/vincentbai/mindfulweb-agent/internal/logx"
	"pkt.systems/pslog"
)

const maxBodyBytes = 1 << 20

// SignalSink receives browser signals.
type SignalSink interface {
	Apply(signal bridge.WireSignal) error
}

// CommandHandler answers a raw command. An error means the payload was not
// a command at all.
type CommandHandler interface {
	HandleJSON(ctx context.Context, data []byte) (any, error)
}

type Server struct {
	signals  SignalSink
	commands CommandHandler
	address  string
	log      pslog.Logger
}

func NewServer(signals SignalSink, commands CommandHandler, address string, logger pslog.Logger) (*Server, error) {
	if signals == nil || commands == nil {
		return nil, errors.New("server requires signal sink and command handler")
	}
	return &Server{
		signals:  signals,
		commands: commands,
		address:  address,
		log:      logx.OrDefault(logger).With("component", "server"),
	}, nil
}

func (s *Server) Address() string {
	return s.address
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleSignals(w http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, request.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	signals, err := bridge.DecodeSignals(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, signal := range signals {
		if err := s.signals.Apply(signal); err != nil {
			s.log.Warn("signal rejected", "type", signal.Type, "err", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCommands(w http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, request.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	response, err := s.commands.HandleJSON(request.Context(), body)
	if err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/signals", s.handleSignals)
	mux.HandleFunc("/commands", s.handleCommands)
	return mux
}

// Handler returns the agent's routes without the listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves on the configured address until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	return Listen(pslog.ContextWithLogger(ctx, s.log), s.address, s.setupRoutes())
}

// StartOn serves on an existing listener until ctx is cancelled.
func (s *Server) StartOn(ctx context.Context, ln net.Listener) error {
	return Serve(pslog.ContextWithLogger(ctx, s.log), ln, s.setupRoutes())
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
