package models

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// Well-known envelope kinds. Any other kind is passed through untouched.
const (
	KindCommand = "command"
	KindResult  = "result"
	KindPing    = "ping"
	KindPong    = "pong"
)

var ErrInvalidMessage = errors.New("message is not valid json")

// Message is an opaque payload exchanged between the window and the worker.
// It is forwarded byte for byte and never re-encoded.
type Message json.RawMessage

// Envelope is the optional tagged shape of a message.
type Envelope struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body,omitempty"`
}

// NewMessage encodes an envelope into a message.
func NewMessage(kind string, body any) (Message, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	msg, err := json.Marshal(Envelope{Kind: kind, Body: raw})
	if err != nil {
		return nil, err
	}

	return Message(msg), nil
}

// Kind returns the envelope kind, or an empty string if the message
// does not carry one.
func (m Message) Kind() string {
	return gjson.GetBytes(m, "kind").String()
}

// Body returns the raw envelope body, or nil if there is none.
func (m Message) Body() json.RawMessage {
	body := gjson.GetBytes(m, "body")
	if !body.Exists() {
		return nil
	}

	return json.RawMessage(body.Raw)
}

// Valid reports whether the message can be framed on a json stream.
func (m Message) Valid() bool {
	return len(m) > 0 && json.Valid(m)
}

// MarshalJSON keeps the payload verbatim when a message is embedded.
func (m Message) MarshalJSON() ([]byte, error) {
	if !m.Valid() {
		return nil, ErrInvalidMessage
	}

	return m, nil
}

// UnmarshalJSON stores a copy of the raw payload.
func (m *Message) UnmarshalJSON(data []byte) error {
	if m == nil {
		return errors.New("models.Message: UnmarshalJSON on nil pointer")
	}

	*m = append((*m)[0:0], data...)

	return nil
}
