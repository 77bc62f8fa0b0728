package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vidshare/roomchat/internal/types"
)

var (
	// ErrMissingRoom is returned when an envelope has no routing key.
	ErrMissingRoom = errors.New("envelope missing room")
	// ErrNoContent is returned when a message has neither body text nor an
	// attachment URL.
	ErrNoContent = errors.New("message has no text or attachment")
	// ErrEmptyEnvelope is returned when a client envelope carries none of
	// join, leave or publish.
	ErrEmptyEnvelope = errors.New("envelope carries no event")
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the tagged-union envelope for client-to-server events.
// Exactly one of Join, Leave or Publish is set.
type ClientMessage struct {
	BaseMessage
	Join    *Join          `json:"join,omitempty"`
	Leave   *Leave         `json:"leave,omitempty"`
	Publish *types.Message `json:"publish,omitempty"`
}

type Join struct {
	Room string `json:"room"`
}

type Leave struct {
	Room string `json:"room"`
}

// ServerMessage is the tagged-union envelope for server-to-client events:
// either a Response addressed to the requesting connection only, or a
// Message broadcast to a room.
type ServerMessage struct {
	BaseMessage
	Response *Response      `json:"response,omitempty"`
	Message  *types.Message `json:"message,omitempty"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// EncodeMessage serializes a message for transmission. Optional fields that
// are unset are omitted from the payload rather than sent as empty strings.
func EncodeMessage(m types.Message) ([]byte, error) {
	if m.Room == "" {
		return nil, ErrMissingRoom
	}

	return json.Marshal(m)
}

// DecodeMessage parses a message payload, rejecting payloads that carry no
// room. Callers discard rejected payloads with a logged warning.
func DecodeMessage(data []byte) (types.Message, error) {
	var m types.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return types.Message{}, fmt.Errorf("decode message: %w", err)
	}

	if m.Room == "" {
		return types.Message{}, ErrMissingRoom
	}

	return m, nil
}

// DecodeClientMessage parses a client envelope and validates that it carries
// an event. Publish events must name a room and carry content.
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode client message: %w", err)
	}

	if msg.Join == nil && msg.Leave == nil && msg.Publish == nil {
		return nil, ErrEmptyEnvelope
	}

	if msg.Publish != nil {
		if msg.Publish.Room == "" {
			return nil, ErrMissingRoom
		}
		if !msg.Publish.HasContent() {
			return nil, ErrNoContent
		}
	}

	return &msg, nil
}

// Now returns the current UTC time rounded to millisecond precision, the
// resolution carried on the wire.
func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
