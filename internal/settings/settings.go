// Package settings persists the user-facing agent settings: the collector
// URL, the domain exception list and the tracking toggle.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/vincentbai/mindfulweb-agent/internal/domains"
)

const (
	keyBackendURL       = "backend_url"
	keyDomainExceptions = "domain_exceptions"
	keyTrackingEnabled  = "tracking_enabled"
)

var ErrInvalidBackendURL = errors.New("backend url must be an absolute http or https url")

// Store is the key-value persistence the settings are kept in.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}

// Defaults apply when a key has never been stored.
type Defaults struct {
	BackendURL      string
	TrackingEnabled bool
}

// Settings caches the persisted values in memory. Writes go to the store
// first and only update the cache once the store accepted them.
type Settings struct {
	store Store

	mu              sync.RWMutex
	backendURL      string
	exceptions      domains.ExceptionSet
	trackingEnabled bool
}

func New(store Store, defaults Defaults) (*Settings, error) {
	if store == nil {
		return nil, errors.New("settings store is required")
	}
	return &Settings{
		store:           store,
		backendURL:      strings.TrimSpace(defaults.BackendURL),
		trackingEnabled: defaults.TrackingEnabled,
	}, nil
}

// Load reads every persisted key, keeping defaults for missing ones.
func (s *Settings) Load(ctx context.Context) error {
	backendURL, ok, err := s.store.Get(ctx, keyBackendURL)
	if err != nil {
		return fmt.Errorf("load backend url: %w", err)
	}
	if ok {
		s.mu.Lock()
		s.backendURL = backendURL
		s.mu.Unlock()
	}

	rawExceptions, ok, err := s.store.Get(ctx, keyDomainExceptions)
	if err != nil {
		return fmt.Errorf("load domain exceptions: %w", err)
	}
	if ok {
		var list []string
		if err := json.Unmarshal([]byte(rawExceptions), &list); err != nil {
			return fmt.Errorf("decode domain exceptions: %w", err)
		}
		s.mu.Lock()
		s.exceptions = domains.NewExceptionSet(list)
		s.mu.Unlock()
	}

	rawEnabled, ok, err := s.store.Get(ctx, keyTrackingEnabled)
	if err != nil {
		return fmt.Errorf("load tracking flag: %w", err)
	}
	if ok {
		enabled, err := strconv.ParseBool(rawEnabled)
		if err != nil {
			return fmt.Errorf("decode tracking flag: %w", err)
		}
		s.mu.Lock()
		s.trackingEnabled = enabled
		s.mu.Unlock()
	}
	return nil
}

func (s *Settings) BackendURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backendURL
}

func (s *Settings) SetBackendURL(ctx context.Context, raw string) error {
	normalized, err := ValidateBackendURL(raw)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, keyBackendURL, normalized); err != nil {
		return fmt.Errorf("save backend url: %w", err)
	}
	s.mu.Lock()
	s.backendURL = normalized
	s.mu.Unlock()
	return nil
}

func (s *Settings) Exceptions() domains.ExceptionSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exceptions
}

// SetExceptions replaces the whole exception list and returns the normalized
// set that was stored.
func (s *Settings) SetExceptions(ctx context.Context, list []string) (domains.ExceptionSet, error) {
	set := domains.NewExceptionSet(list)
	encoded, err := json.Marshal(set.List())
	if err != nil {
		return domains.ExceptionSet{}, fmt.Errorf("encode domain exceptions: %w", err)
	}
	if err := s.store.Put(ctx, keyDomainExceptions, string(encoded)); err != nil {
		return domains.ExceptionSet{}, fmt.Errorf("save domain exceptions: %w", err)
	}
	s.mu.Lock()
	s.exceptions = set
	s.mu.Unlock()
	return set, nil
}

func (s *Settings) TrackingEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trackingEnabled
}

func (s *Settings) SetTrackingEnabled(ctx context.Context, enabled bool) error {
	if err := s.store.Put(ctx, keyTrackingEnabled, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("save tracking flag: %w", err)
	}
	s.mu.Lock()
	s.trackingEnabled = enabled
	s.mu.Unlock()
	return nil
}

// ValidateBackendURL trims the value and strips a trailing slash so paths can
// be appended directly.
func ValidateBackendURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidBackendURL
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBackendURL, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", ErrInvalidBackendURL
	}
	return strings.TrimRight(trimmed, "/"), nil
}
