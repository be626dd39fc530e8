package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedMessage indicates an inbound frame that could not be decoded.
// The connection stays open; the frame is logged and dropped.
var ErrMalformedMessage = errors.New("malformed message")

// EventPing is the heartbeat envelope type.
const EventPing = "ping"

// Well-known application event types. They are opaque to the client and
// simply routed to listeners by name.
const (
	EventAnalysisProgress = "analysis_progress"
	EventSessionUpdate    = "session_update"
)

// Envelope is the three-field message unit exchanged over the realtime
// channel. Timestamp is set by the sender at creation time and serialized
// as RFC 3339.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope builds an envelope with the current time, marshaling data as
// the payload.
func NewEnvelope(eventType string, data any) (Envelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal envelope data: %w", err)
	}
	return Envelope{
		Type:      eventType,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Encode serializes an envelope to its wire format.
func Encode(env Envelope) ([]byte, error) {
	if env.Type == "" {
		return nil, fmt.Errorf("%w: empty type", ErrMalformedMessage)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses a wire frame into an envelope. It returns an error wrapping
// ErrMalformedMessage if the frame is not parseable JSON or the type field
// is missing.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return env, nil
}
