// Package delivery talks to the remote collector: throttled health probes and
// batched event delivery.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vincentbai/mindfulweb-agent/internal/logx"
	"github.com/vincentbai/mindfulweb-agent/internal/models"
	"github.com/vincentbai/mindfulweb-agent/internal/status"
	"pkt.systems/pslog"
)

const (
	DefaultBatchSize      = 100
	DefaultRequestTimeout = 10 * time.Second
	DefaultHealthTimeout  = 3 * time.Second
	DefaultHealthCooldown = 30 * time.Second
)

var ErrNoBackendURL = errors.New("backend url is not configured")

// URLSource yields the backend base URL at call time.
type URLSource interface {
	BackendURL() string
}

type URLFunc func() string

func (f URLFunc) BackendURL() string { return f() }

// HealthResult is the outcome of a probe. TooFrequent means the probe was
// suppressed by the cooldown and no request was made.
type HealthResult struct {
	Success     bool   `json:"success"`
	TooFrequent bool   `json:"tooFrequent"`
	Error       string `json:"error,omitempty"`
}

type Options struct {
	HTTPClient     *http.Client
	Status         *status.State
	Logger         pslog.Logger
	BatchSize      int
	RequestTimeout time.Duration
	HealthTimeout  time.Duration
	HealthCooldown time.Duration
	Now            func() time.Time
}

type Client struct {
	backend        URLSource
	http           *http.Client
	state          *status.State
	log            pslog.Logger
	batchSize      int
	requestTimeout time.Duration
	healthTimeout  time.Duration
	cooldown       time.Duration
	now            func() time.Time

	// probeMu admits one probe at a time so a burst inside the cooldown
	// yields exactly one network call.
	probeMu sync.Mutex
}

func New(backend URLSource, opts Options) (*Client, error) {
	if backend == nil {
		return nil, errors.New("delivery backend url source is required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Status == nil {
		opts.Status = status.New()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = DefaultHealthTimeout
	}
	if opts.HealthCooldown < 0 {
		opts.HealthCooldown = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		backend:        backend,
		http:           opts.HTTPClient,
		state:          opts.Status,
		log:            logx.OrDefault(opts.Logger).With("component", "delivery"),
		batchSize:      opts.BatchSize,
		requestTimeout: opts.RequestTimeout,
		healthTimeout:  opts.HealthTimeout,
		cooldown:       opts.HealthCooldown,
		now:            opts.Now,
	}, nil
}

// Health returns the snapshot of the last completed probe.
func (c *Client) Health() models.HealthSnapshot {
	return c.state.Health()
}

// CheckHealth probes GET {backend}/healthz. Unless force is set, a probe
// within the cooldown of the previous one is suppressed.
func (c *Client) CheckHealth(ctx context.Context, force bool) HealthResult {
	c.probeMu.Lock()
	defer c.probeMu.Unlock()

	last := c.state.Health()
	if !force && !last.LastCheckedAt.IsZero() && c.now().Sub(last.LastCheckedAt) < c.cooldown {
		c.log.Debug("delivery health check suppressed", "last_checked", last.LastCheckedAt)
		return HealthResult{TooFrequent: true}
	}

	err := c.probe(ctx)
	c.state.RecordHealth(c.now(), err == nil)
	if err != nil {
		c.log.Warn("delivery health check failed", "err", err)
		return HealthResult{Error: err.Error()}
	}
	c.log.Debug("delivery health check ok")
	return HealthResult{Success: true}
}

func (c *Client) probe(ctx context.Context) error {
	endpoint, err := c.endpoint("/healthz")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("check backend health: %w", err)
	}
	defer drainBody(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("check backend health: unexpected status %s", resp.Status)
	}
	return nil
}

type acceptedResponse struct {
	Accepted *int `json:"accepted"`
}

// Deliver posts events in batches and returns how many the backend
// acknowledged. It stops at the first batch that is rejected or only partly
// accepted. The count never exceeds what the backend reported.
func (c *Client) Deliver(ctx context.Context, events []models.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	endpoint, err := c.endpoint("/events")
	if err != nil {
		c.state.SetOnline(false)
		return 0, err
	}

	sent := 0
	for start := 0; start < len(events); start += c.batchSize {
		end := min(start+c.batchSize, len(events))
		chunk := events[start:end]
		accepted, err := c.postBatch(ctx, endpoint, chunk)
		sent += accepted
		if err != nil {
			c.state.SetOnline(false)
			c.log.Warn("delivery batch failed", "sent", sent, "total", len(events), "err", err)
			return sent, err
		}
		if accepted < len(chunk) {
			c.log.Info("delivery batch partially accepted", "accepted", accepted, "batch", len(chunk))
			break
		}
	}
	c.state.SetOnline(true)
	c.log.Debug("delivery complete", "sent", sent, "total", len(events))
	return sent, nil
}

func (c *Client) postBatch(ctx context.Context, endpoint string, chunk []models.Event) (int, error) {
	payload, err := json.Marshal(models.Batch{Events: chunk})
	if err != nil {
		return 0, fmt.Errorf("encode batch: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("deliver events: %w", err)
	}
	defer drainBody(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return len(chunk), nil
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		var body acceptedResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil || body.Accepted == nil {
			// A 2xx without a count acknowledges the whole batch.
			return len(chunk), nil
		}
		return max(0, min(*body.Accepted, len(chunk))), nil
	default:
		return 0, fmt.Errorf("deliver events: unexpected status %s", resp.Status)
	}
}

func (c *Client) endpoint(path string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(c.backend.BackendURL()), "/")
	if base == "" {
		return "", ErrNoBackendURL
	}
	return base + path, nil
}

func drainBody(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<16))
	_ = body.Close()
}
