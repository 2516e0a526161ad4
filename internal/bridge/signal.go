package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vincentbai/mindfulweb-agent/internal/models"
	"github.com/vincentbai/mindfulweb-agent/internal/tracker"
)

// Signal types posted by the extension.
const (
	TypeTabActivated       = "tab_activated"
	TypeTabUpdated         = "tab_updated"
	TypeTabRemoved         = "tab_removed"
	TypeWindowFocusChanged = "window_focus_changed"
)

const statusComplete = "complete"

// WireSignal is the JSON shape of a single browser notification.
type WireSignal struct {
	Type          string `json:"type"`
	TabID         int64  `json:"tabId,omitempty"`
	WindowID      int64  `json:"windowId"`
	URL           string `json:"url,omitempty"`
	Status        string `json:"status,omitempty"`
	Active        bool   `json:"active,omitempty"`
	WindowClosing bool   `json:"windowClosing,omitempty"`
}

func (w WireSignal) Validate() error {
	switch w.Type {
	case TypeTabActivated, TypeTabUpdated, TypeTabRemoved:
		if w.TabID <= 0 {
			return fmt.Errorf("%s: tabId is required", w.Type)
		}
	case TypeWindowFocusChanged:
		if w.WindowID == 0 || w.WindowID < models.WindowNone {
			return fmt.Errorf("%s: invalid windowId %d", w.Type, w.WindowID)
		}
	case "":
		return errors.New("signal type is required")
	default:
		return fmt.Errorf("unknown signal type %q", w.Type)
	}
	return nil
}

// Tracker converts the wire form into the tracker's signal type.
func (w WireSignal) Tracker() (tracker.Signal, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	switch w.Type {
	case TypeTabActivated:
		return tracker.TabActivated{TabID: w.TabID, WindowID: w.WindowID}, nil
	case TypeTabUpdated:
		return tracker.TabUpdated{
			Tab:      models.Tab{ID: w.TabID, WindowID: w.WindowID, URL: w.URL},
			Complete: w.Status == statusComplete,
			Active:   w.Active,
		}, nil
	case TypeTabRemoved:
		return tracker.TabRemoved{TabID: w.TabID, WindowID: w.WindowID, WindowClosing: w.WindowClosing}, nil
	default:
		return tracker.WindowFocusChanged{WindowID: w.WindowID}, nil
	}
}

// DecodeSignals accepts a single signal object or an array of them.
func DecodeSignals(data []byte) ([]WireSignal, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty signal payload")
	}
	var signals []WireSignal
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &signals); err != nil {
			return nil, fmt.Errorf("decode signals: %w", err)
		}
	} else {
		var one WireSignal
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, fmt.Errorf("decode signal: %w", err)
		}
		signals = []WireSignal{one}
	}
	for i, signal := range signals {
		if err := signal.Validate(); err != nil {
			return nil, fmt.Errorf("signal %d: %w", i, err)
		}
	}
	return signals, nil
}
