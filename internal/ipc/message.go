// Package ipc defines the message envelope exchanged between the master and
// its workers, plus the transport and request correlation helpers built on it.
//
// The envelope is deliberately small: a closed set of message types, the
// sending worker's id (0 for the master), an opaque JSON payload and a unix
// millisecond timestamp. Every inbound frame is validated before dispatch;
// malformed frames are reported as errors for the caller to log and drop.
// Validation must never panic and must never take a process down.
package ipc

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies one kind of master⇄worker message.
type Type string

// The closed message type enum. Client-facing kinds (input, shoot, ...) are
// not IPC types; they live in the protocol package and never cross the
// master⇄worker boundary.
const (
	TypeMetrics        Type = "metrics"
	TypeRoomCreated    Type = "room_created"
	TypeRoomDeleted    Type = "room_deleted"
	TypePlayerJoined   Type = "player_joined"
	TypePlayerLeft     Type = "player_left"
	TypeShutdown       Type = "shutdown"
	TypeStatusRequest  Type = "status_request"
	TypeStatusResponse Type = "status_response"
	TypeRoomsRequest   Type = "rooms_request"
	TypeRoomsResponse  Type = "rooms_response"
)

var knownTypes = map[Type]bool{
	TypeMetrics:        true,
	TypeRoomCreated:    true,
	TypeRoomDeleted:    true,
	TypePlayerJoined:   true,
	TypePlayerLeft:     true,
	TypeShutdown:       true,
	TypeStatusRequest:  true,
	TypeStatusResponse: true,
	TypeRoomsRequest:   true,
	TypeRoomsResponse:  true,
}

// KnownType reports whether t is part of the closed enum.
func KnownType(t Type) bool { return knownTypes[t] }

// MasterID is the workerId used on messages originated by the master.
const MasterID = 0

// Message is the IPC envelope. Immutable once constructed.
type Message struct {
	Type      Type            `json:"type"`
	WorkerID  int             `json:"workerId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// New builds an envelope around an arbitrary payload, stamping it with the
// current time. A nil payload becomes an empty JSON object so the data field
// is always present on the wire. Payloads are this package's own plain
// structs, so marshalling cannot fail; if it somehow does, the data stays the
// empty object rather than poisoning the frame.
func New(t Type, workerID int, payload any) Message {
	data := json.RawMessage(`{}`)
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			data = b
		}
	}
	return Message{
		Type:      t,
		WorkerID:  workerID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Decode validates a raw frame and returns the parsed message. A message is
// valid iff it carries a string type from the closed enum, a numeric-or-null
// workerId, a data field (any JSON value, including null), and a numeric
// timestamp. Anything else is an error; the transport logs and drops it.
func Decode(raw []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Message{}, fmt.Errorf("malformed ipc frame: %w", err)
	}

	typRaw, ok := fields["type"]
	if !ok {
		return Message{}, fmt.Errorf("ipc frame missing type")
	}
	var typ Type
	if err := json.Unmarshal(typRaw, &typ); err != nil {
		return Message{}, fmt.Errorf("ipc type is not a string: %w", err)
	}
	if !KnownType(typ) {
		return Message{}, fmt.Errorf("unknown ipc type %q", typ)
	}

	widRaw, ok := fields["workerId"]
	if !ok {
		return Message{}, fmt.Errorf("ipc frame missing workerId")
	}
	var workerID int
	if string(widRaw) != "null" {
		if err := json.Unmarshal(widRaw, &workerID); err != nil {
			return Message{}, fmt.Errorf("ipc workerId is not numeric: %w", err)
		}
	}

	data, ok := fields["data"]
	if !ok {
		return Message{}, fmt.Errorf("ipc frame missing data")
	}

	tsRaw, ok := fields["timestamp"]
	if !ok {
		return Message{}, fmt.Errorf("ipc frame missing timestamp")
	}
	var ts int64
	if err := json.Unmarshal(tsRaw, &ts); err != nil {
		return Message{}, fmt.Errorf("ipc timestamp is not numeric: %w", err)
	}

	return Message{Type: typ, WorkerID: workerID, Data: data, Timestamp: ts}, nil
}

// DecodePayload unmarshals a message's data field into T.
func DecodePayload[T any](msg Message) (T, error) {
	var out T
	if len(msg.Data) == 0 {
		return out, fmt.Errorf("empty payload for %s", msg.Type)
	}
	if err := json.Unmarshal(msg.Data, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", msg.Type, err)
	}
	return out, nil
}
