package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message types on the socket wire.
const (
	TypeEvent = "event"
	TypeAck   = "ack"
	TypePing  = "ping"
	TypePong  = "pong"
	TypeError = "error"
)

// Message is one websocket frame in either direction.
type Message struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	ID    string          `json:"id,omitempty"`
}

// Envelope is a broadcast as it travels between nodes.
//
// Empty Rooms means every connected socket. Except lists socket IDs (or
// rooms) that must not receive it.
type Envelope struct {
	UID    string          `json:"uid"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	Rooms  []string        `json:"rooms,omitempty"`
	Except []string        `json:"except,omitempty"`
}

// BroadcastOption scopes a broadcast.
type BroadcastOption func(*Envelope)

// To limits a broadcast to sockets in any of rooms.
func To(rooms ...string) BroadcastOption {
	return func(e *Envelope) {
		e.Rooms = append(e.Rooms, rooms...)
	}
}

// Except skips sockets that are in any of rooms. Every socket is in a room
// named after its own ID, so Except(socket.ID()) skips one socket.
func Except(rooms ...string) BroadcastOption {
	return func(e *Envelope) {
		e.Except = append(e.Except, rooms...)
	}
}

func encodeEnvelope(e Envelope) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return b, nil
}

func decodeEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if e.UID == "" || e.Event == "" {
		return Envelope{}, errors.New("decoding envelope: missing uid or event")
	}
	return e, nil
}

// marshalData encodes a broadcast or ack payload. Pre-encoded
// json.RawMessage is passed through.
func marshalData(v any) (json.RawMessage, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return d, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding data: %w", err)
		}
		return b, nil
	}
}
