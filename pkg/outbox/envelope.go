package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the current payload schema written by Emit.
const EnvelopeVersion = 1

// ActorRef names who caused an event: an admin's staff id, or a system process such as
// the reservation reaper.
type ActorRef struct {
	Staff string `json:"staff"`
	Role  string `json:"role,omitempty"`
}

// SystemActor is the actor for events raised by background jobs.
func SystemActor(process string) *ActorRef {
	return &ActorRef{Staff: "system", Role: process}
}

// PayloadEnvelope wraps every outbox payload. EventID is the delivery identity the
// notifier deduplicates on; it survives requeueing from the dead letter table.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Validate rejects envelopes this build cannot interpret.
func (e PayloadEnvelope) Validate() error {
	if e.Version < 1 || e.Version > EnvelopeVersion {
		return fmt.Errorf("unsupported envelope version %d", e.Version)
	}
	if _, err := uuid.Parse(e.EventID); err != nil {
		return fmt.Errorf("envelope event id: %w", err)
	}
	if len(e.Data) == 0 {
		return fmt.Errorf("envelope %s has no data", e.EventID)
	}
	return nil
}
