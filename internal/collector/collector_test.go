package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/vincentbai/mindfulweb-agent/internal/database"
	"github.com/vincentbai/mindfulweb-agent/internal/delivery"
	"github.com/vincentbai/mindfulweb-agent/internal/logx"
	"github.com/vincentbai/mindfulweb-agent/internal/models"
)

func setupTestCollector(t *testing.T) (*Collector, *database.Database) {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "collector.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	c, err := New(db, "127.0.0.1:0", logx.Discard())
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}
	return c, db
}

func postBatch(t *testing.T, c *Collector, batch any) *httptest.ResponseRecorder {
	t.Helper()
	jsonData, err := json.Marshal(batch)
	if err != nil {
		t.Fatalf("Failed to marshal batch: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(jsonData))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c.handleEvents(w, req)
	return w
}

func sampleBatch() models.Batch {
	at := time.Date(2026, 2, 13, 23, 31, 30, 0, time.UTC)
	return models.Batch{Events: []models.Event{
		models.NewEvent(models.KindActive, "example.com", at),
		models.NewEvent(models.KindInactive, "example.com", at.Add(time.Minute)),
	}}
}

func TestHandleHealthz(t *testing.T) {
	c, _ := setupTestCollector(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	c.handleHealthz(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("Expected 200 ok, got %d %q", w.Code, w.Body.String())
	}
}

func TestHandleEventsSuccess(t *testing.T) {
	c, db := setupTestCollector(t)

	w := postBatch(t, c, sampleBatch())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp AcceptedResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Accepted != 2 || resp.Stored != 2 {
		t.Errorf("Expected 2 accepted and stored, got %+v", resp)
	}
	count, err := db.CountEvents(context.Background())
	if err != nil {
		t.Fatalf("Failed to count events: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 stored events, got %d", count)
	}
}

func TestHandleEventsRedeliveryIsIdempotent(t *testing.T) {
	c, db := setupTestCollector(t)
	batch := sampleBatch()

	postBatch(t, c, batch)
	w := postBatch(t, c, batch)

	var resp AcceptedResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Accepted != 2 || resp.Stored != 0 {
		t.Errorf("Expected duplicates accepted but not stored, got %+v", resp)
	}
	if count, _ := db.CountEvents(context.Background()); count != 2 {
		t.Errorf("Expected 2 stored events, got %d", count)
	}
}

func TestHandleEventsRejects(t *testing.T) {
	c, _ := setupTestCollector(t)

	if w := postBatch(t, c, models.Batch{}); w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204 for empty batch, got %d", w.Code)
	}

	invalid := sampleBatch()
	invalid.Events[1].Kind = "focus"
	if w := postBatch(t, c, invalid); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid kind, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader([]byte("{invalid json}")))
	w := httptest.NewRecorder()
	c.handleEvents(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid JSON, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/events", nil)
	w = httptest.NewRecorder()
	c.handleEvents(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

type failingStore struct{}

func (failingStore) InsertEvents(context.Context, []models.Event) (int, error) {
	return 0, errors.New("disk I/O error")
}

func TestHandleEventsStorageFailure(t *testing.T) {
	c, err := New(failingStore{}, "", logx.Discard())
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}
	if w := postBatch(t, c, sampleBatch()); w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestDeliveryClientAgainstCollector(t *testing.T) {
	c, db := setupTestCollector(t)
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	client, err := delivery.New(delivery.URLFunc(func() string { return srv.URL }), delivery.Options{
		HTTPClient: srv.Client(),
		Logger:     logx.Discard(),
		BatchSize:  3,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if result := client.CheckHealth(context.Background(), true); !result.Success {
		t.Fatalf("Expected healthy collector, got %+v", result)
	}

	var events []models.Event
	at := time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		events = append(events, models.NewEvent(models.KindActive, "example.com", at.Add(time.Duration(i)*time.Second)))
	}
	sent, err := client.Deliver(context.Background(), events)
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if sent != 7 {
		t.Errorf("Expected 7 sent, got %d", sent)
	}
	if count, _ := db.CountEvents(context.Background()); count != 7 {
		t.Errorf("Expected 7 stored events, got %d", count)
	}
}
