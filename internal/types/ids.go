// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type SessionKey string
type RunID string
type ActionID string
type SubscriptionID string

// streamSuffix marks the aggregate record that collects a run's deltas.
const streamSuffix = "-stream"

// StreamID returns the id of the streaming record for a run.
func StreamID(runID RunID) ActionID {
	return ActionID(string(runID) + streamSuffix)
}

// IsStreamID reports whether id names a streaming record.
func IsStreamID(id ActionID) bool {
	return strings.HasSuffix(string(id), streamSuffix)
}

func NewSubscriptionID() SubscriptionID {
	return SubscriptionID(uuid.New().String())
}

func NewSessionKey(parts ...string) SessionKey {
	return SessionKey(strings.Join(parts, ":"))
}
