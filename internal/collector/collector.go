// Package collector is a minimal backend that accepts event batches from
// agents and stores them in SQLite.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/vincentbai/mindfulweb-agent/internal/database"
	"github.com/vincentbai/mindfulweb-agent/internal/logx"
	"github.com/vincentbai/mindfulweb-agent/internal/models"
	"github.com/vincentbai/mindfulweb-agent/internal/server"
	"pkt.systems/pslog"
)

const maxBatchBytes = 8 << 20

// EventStore persists delivered events, skipping ids it already holds.
type EventStore interface {
	InsertEvents(ctx context.Context, events []models.Event) (int, error)
}

type Collector struct {
	store   EventStore
	address string
	log     pslog.Logger
}

// AcceptedResponse tells the agent how many events of the batch it may drop.
// Duplicates count as accepted.
type AcceptedResponse struct {
	Accepted int `json:"accepted"`
	Stored   int `json:"stored"`
}

func New(store EventStore, address string, logger pslog.Logger) (*Collector, error) {
	if store == nil {
		return nil, errors.New("collector requires an event store")
	}
	return &Collector{
		store:   store,
		address: address,
		log:     logx.OrDefault(logger).With("component", "collector"),
	}, nil
}

func (c *Collector) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (c *Collector) handleEvents(w http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var batch models.Batch
	if err := json.NewDecoder(http.MaxBytesReader(w, request.Body, maxBatchBytes)).Decode(&batch); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if len(batch.Events) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	for i, event := range batch.Events {
		if err := database.ValidateEvent(event); err != nil {
			http.Error(w, fmt.Sprintf("event %d: %v", i, err), http.StatusBadRequest)
			return
		}
	}
	stored, err := c.store.InsertEvents(request.Context(), batch.Events)
	if err != nil {
		c.log.Error("collector store failed", "events", len(batch.Events), "err", err)
		http.Error(w, "Failed to store events", http.StatusInternalServerError)
		return
	}
	c.log.Info("collector batch stored", "events", len(batch.Events), "stored", stored, "duplicates", len(batch.Events)-stored)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(AcceptedResponse{Accepted: len(batch.Events), Stored: stored})
}

func (c *Collector) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", c.handleHealthz)
	mux.HandleFunc("/events", c.handleEvents)
	return mux
}

func (c *Collector) Handler() http.Handler {
	return c.setupRoutes()
}

// Start serves on the configured address until ctx is cancelled.
func (c *Collector) Start(ctx context.Context) error {
	return server.Listen(pslog.ContextWithLogger(ctx, c.log), c.address, c.setupRoutes())
}

func (c *Collector) StartOn(ctx context.Context, ln net.Listener) error {
	return server.Serve(pslog.ContextWithLogger(ctx, c.log), ln, c.setupRoutes())
}

var _ EventStore = (*database.Database)(nil)
