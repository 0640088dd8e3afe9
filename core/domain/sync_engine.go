package domain

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// =============================================================================
// Engine Mode
// =============================================================================

// Mode selects how the engine talks to the outside world. Test and preview
// modes disable real network calls, backoff sleeps and persistent timestamp
// writes while keeping every other code path identical.
type Mode string

const (
	ModeProduction Mode = "production"
	ModeTest       Mode = "test"
	ModePreview    Mode = "preview"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeProduction, "":
		return ModeProduction, nil
	case ModeTest:
		return ModeTest, nil
	case ModePreview:
		return ModePreview, nil
	default:
		return "", fmt.Errorf("unknown sync mode %q", s)
	}
}

// IsLive reports whether the mode performs real network and timing work.
func (m Mode) IsLive() bool {
	return m == ModeProduction
}

// =============================================================================
// Realtime Connection State
// =============================================================================

type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionReconnecting ConnectionStatus = "reconnecting"
	ConnectionDegraded     ConnectionStatus = "degraded"
)

// ConnectionState is informational only. It never gates sync.
type ConnectionState struct {
	Status      ConnectionStatus `json:"status"`
	Attempt     int              `json:"attempt,omitempty"`
	MaxAttempts int              `json:"max_attempts,omitempty"`
}

func Connected() ConnectionState { return ConnectionState{Status: ConnectionConnected} }

func Reconnecting(attempt, max int) ConnectionState {
	return ConnectionState{Status: ConnectionReconnecting, Attempt: attempt, MaxAttempts: max}
}

func Degraded() ConnectionState { return ConnectionState{Status: ConnectionDegraded} }

func (s ConnectionState) String() string {
	if s.Status == ConnectionReconnecting {
		return fmt.Sprintf("reconnecting(%d/%d)", s.Attempt, s.MaxAttempts)
	}
	return string(s.Status)
}

// =============================================================================
// Realtime Change Event
// =============================================================================

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is a push notification from the remote service.
type ChangeEvent struct {
	Table   string          `json:"table"`
	Type    ChangeType      `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
