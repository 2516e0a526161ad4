package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Command type names on the wire.
const (
	TypeCheckConnection        = "CHECK_CONNECTION"
	TypeTestConnection         = "TEST_CONNECTION"
	TypeGetTrackingStatus      = "GET_TRACKING_STATUS"
	TypeSetTrackingEnabled     = "SET_TRACKING_ENABLED"
	TypeGetTodayStats          = "GET_TODAY_STATS"
	TypeUpdateDomainExceptions = "UPDATE_DOMAIN_EXCEPTIONS"
	TypeUpdateBackendURL       = "UPDATE_BACKEND_URL"
)

var (
	ErrMalformedCommand = errors.New("malformed command")
	ErrUnknownCommand   = errors.New("unknown command type")
)

// Command is one of the requests the agent accepts. The set is closed: only
// the types in this file implement it.
type Command interface {
	Type() string
	command()
}

type CheckConnection struct{}

type TestConnection struct{}

type GetTrackingStatus struct{}

type SetTrackingEnabled struct {
	Enabled *bool
}

type GetTodayStats struct{}

type UpdateDomainExceptions struct {
	Domains []string
}

type UpdateBackendURL struct {
	URL *string
}

func (CheckConnection) Type() string        { return TypeCheckConnection }
func (TestConnection) Type() string         { return TypeTestConnection }
func (GetTrackingStatus) Type() string      { return TypeGetTrackingStatus }
func (SetTrackingEnabled) Type() string     { return TypeSetTrackingEnabled }
func (GetTodayStats) Type() string          { return TypeGetTodayStats }
func (UpdateDomainExceptions) Type() string { return TypeUpdateDomainExceptions }
func (UpdateBackendURL) Type() string       { return TypeUpdateBackendURL }

func (CheckConnection) command()        {}
func (TestConnection) command()         {}
func (GetTrackingStatus) command()      {}
func (SetTrackingEnabled) command()     {}
func (GetTodayStats) command()          {}
func (UpdateDomainExceptions) command() {}
func (UpdateBackendURL) command()       {}

type envelope struct {
	Type    string   `json:"type"`
	Enabled *bool    `json:"enabled"`
	Domains []string `json:"domains"`
	URL     *string  `json:"url"`
}

// Decode parses a command envelope. Malformed JSON wraps
// ErrMalformedCommand; an unrecognised type wraps ErrUnknownCommand. Missing
// fields are left for the handler to reject.
func Decode(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	switch env.Type {
	case TypeCheckConnection:
		return CheckConnection{}, nil
	case TypeTestConnection:
		return TestConnection{}, nil
	case TypeGetTrackingStatus:
		return GetTrackingStatus{}, nil
	case TypeSetTrackingEnabled:
		return SetTrackingEnabled{Enabled: env.Enabled}, nil
	case TypeGetTodayStats:
		return GetTodayStats{}, nil
	case TypeUpdateDomainExceptions:
		return UpdateDomainExceptions{Domains: env.Domains}, nil
	case TypeUpdateBackendURL:
		return UpdateBackendURL{URL: env.URL}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, env.Type)
	}
}
