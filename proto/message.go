package proto

import (
	"encoding/json"
	"fmt"
)

// Message types carried in the "type" field of the envelope.
const (
	TypeRequest  = "request"  // relay -> engine, carries an id and action
	TypeResponse = "response" // engine -> relay, correlated by id
	TypePing     = "ping"     // heartbeat, no id
	TypePong     = "pong"     // heartbeat answer, no id
	TypeEvent    = "event"    // engine -> relay, unsolicited
	TypeConfig   = "config"   // relay -> engine, unsolicited
)

// Message is the wire envelope. One JSON object per frame.
type Message struct {
	ID      string     `json:"id,omitempty"`      // correlation id (request/response only)
	Type    string     `json:"type"`              // one of the Type* constants
	Action  string     `json:"action,omitempty"`  // operation name (e.g. "homes.list")
	Payload Payload    `json:"payload,omitempty"` // polymorphic key/value payload
	Error   *ErrorInfo `json:"error,omitempty"`   // set only on failed responses
}

// DecodeError reports a frame that could not be decoded into a valid
// Message. ID carries the correlation id when it was recoverable from the
// raw frame, so the caller can still answer with an error response.
type DecodeError struct {
	ID  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var validTypes = map[string]bool{
	TypeRequest:  true,
	TypeResponse: true,
	TypePing:     true,
	TypePong:     true,
	TypeEvent:    true,
	TypeConfig:   true,
}

// Encode serializes a message to a single JSON frame.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// Decode parses a single JSON frame into a Message. A frame that is not a
// JSON object, is missing "type", or carries an unrecognized "type" fails
// with *DecodeError; the error retains the frame's id when one was present.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, &DecodeError{ID: recoverID(data), Err: err}
	}
	if msg.Type == "" {
		return Message{}, &DecodeError{ID: msg.ID, Err: fmt.Errorf("missing type field")}
	}
	if !validTypes[msg.Type] {
		return Message{}, &DecodeError{ID: msg.ID, Err: fmt.Errorf("unknown type %q", msg.Type)}
	}
	return msg, nil
}

// recoverID pulls the id out of a frame that failed full decoding.
func recoverID(data []byte) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.ID
}

// NewResponse builds a successful response correlated to a request.
func NewResponse(id, action string, payload Payload) Message {
	return Message{ID: id, Type: TypeResponse, Action: action, Payload: payload}
}

// NewErrorResponse builds a failed response carrying a protocol error code.
func NewErrorResponse(id, action, code, message string) Message {
	return Message{ID: id, Type: TypeResponse, Action: action, Error: &ErrorInfo{Code: code, Message: message}}
}

// NewEvent builds an unsolicited event message.
func NewEvent(action string, payload Payload) Message {
	return Message{Type: TypeEvent, Action: action, Payload: payload}
}

// Ping builds an outbound heartbeat message.
func Ping() Message {
	return Message{Type: TypePing}
}

// Pong builds the answer to an inbound ping.
func Pong() Message {
	return Message{Type: TypePong}
}
