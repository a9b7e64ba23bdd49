package support

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderGuest Sender = "GUEST"
	SenderUser  Sender = "USER"
	SenderStaff Sender = "STAFF"
	SenderBot   Sender = "BOT"
)

// Valid reports whether s is one of the known sender types.
func (s Sender) Valid() bool {
	switch s {
	case SenderGuest, SenderUser, SenderStaff, SenderBot:
		return true
	}
	return false
}

var ErrMalformedMessage = errors.New("malformed message")

// Message is one immutable turn of a support conversation.
type Message struct {
	ID         ID        `json:"id,omitempty"`
	ChatID     ID        `json:"chat_id,omitempty"`
	Content    string    `json:"content"`
	SenderType Sender    `json:"sender_type"`
	SenderID   ID        `json:"sender_id,omitempty"`
	SenderName string    `json:"sender_name,omitempty"`
	CreatedAt  Timestamp `json:"created_at"`
}

// Validate rejects frames that cannot be rendered.
func (m Message) Validate() error {
	if !m.SenderType.Valid() {
		return fmt.Errorf("%w: unknown sender_type %q", ErrMalformedMessage, m.SenderType)
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("%w: empty content", ErrMalformedMessage)
	}
	return nil
}

// IdentityKey returns the key used to deduplicate a message across history
// and live delivery. Server ids win; otherwise sender, content and timestamp
// form a composite key.
func (m Message) IdentityKey() string {
	if m.ID != "" {
		return "id:" + string(m.ID)
	}
	return "k:" + string(m.SenderType) + "|" + m.Content + "|" + m.CreatedAt.Key()
}

// ParseMessage decodes an inbound frame and validates it.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// ID is an opaque server identifier. The backend emits integers but the
// client never does arithmetic on them.
type ID string

// UnmarshalJSON accepts JSON numbers, strings and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers so the backend keeps its integer columns.
func (id ID) MarshalJSON() ([]byte, error) {
	if id != "" && isDigits(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Timestamp wraps time.Time and tolerates the timestamp layouts the backend
// produces: RFC 3339, zone-less ISO-8601 and Python's str(datetime).
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses s with the accepted layouts. Zone-less values are UTC.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" {
		return Timestamp{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t.UTC()}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unsupported timestamp %q", s)
}

// NewTimestamp wraps t in UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Key is the canonical string form used inside identity keys.
func (t Timestamp) Key() string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
