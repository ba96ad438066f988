// Package protocol implements the wire format shared by every session
// message: a JSON envelope carrying a dispatch tag and an opaque payload,
// moved over length-prefixed frames.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType tags an envelope for dispatch. Applications define their own
// closed set of constants; the session layer never inspects the payload.
type MessageType string

// ErrMissingType is returned when an inbound envelope carries no type tag.
var ErrMissingType = errors.New("envelope has no type")

// Envelope is the wire shape of every application message.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeEnvelope serializes a type tag and an arbitrary payload value into
// a wire frame.
func EncodeEnvelope(t MessageType, payload any) ([]byte, error) {
	if t == "" {
		return nil, ErrMissingType
	}

	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload for %q: %w", t, err)
		}
		raw = b
	}

	return json.Marshal(Envelope{Type: t, Payload: raw})
}

// DecodeEnvelope parses a wire frame and validates the type tag.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}
