package support

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseMessageAcceptsBackendFrame(t *testing.T) {
	raw := []byte(`{"content":"hello","sender_type":"STAFF","created_at":"2025-01-02 03:04:05.123456"}`)

	msg, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage err: %v", err)
	}
	want := time.Date(2025, 1, 2, 3, 4, 5, 123456000, time.UTC)
	if !msg.CreatedAt.Equal(want) {
		t.Fatalf("unexpected timestamp: got %s want %s", msg.CreatedAt, want)
	}
	if msg.SenderType != SenderStaff {
		t.Fatalf("unexpected sender: %s", msg.SenderType)
	}
}

func TestParseMessageNumericID(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"id":42,"chat_id":7,"content":"hi","sender_type":"BOT","created_at":"2025-01-02T03:04:05Z"}`))
	if err != nil {
		t.Fatalf("ParseMessage err: %v", err)
	}
	if msg.ID != "42" || msg.ChatID != "7" {
		t.Fatalf("unexpected ids: %q %q", msg.ID, msg.ChatID)
	}
	if got := msg.IdentityKey(); got != "id:42" {
		t.Fatalf("unexpected identity key: %s", got)
	}
}

func TestParseMessageRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"content":`,
		"unknown sender": `{"content":"x","sender_type":"ROBOT"}`,
		"empty content":  `{"content":"  ","sender_type":"BOT"}`,
		"bad timestamp":  `{"content":"x","sender_type":"BOT","created_at":"yesterday"}`,
	}
	for name, raw := range cases {
		if _, err := ParseMessage([]byte(raw)); !errors.Is(err, ErrMalformedMessage) {
			t.Fatalf("%s: expected ErrMalformedMessage, got %v", name, err)
		}
	}
}

func TestIdentityKeyFallsBackToComposite(t *testing.T) {
	ts := NewTimestamp(time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC))
	a := Message{Content: "hi", SenderType: SenderGuest, CreatedAt: ts}
	b := Message{Content: "hi", SenderType: SenderGuest, CreatedAt: ts}
	c := Message{Content: "hi", SenderType: SenderBot, CreatedAt: ts}

	if a.IdentityKey() != b.IdentityKey() {
		t.Fatal("identical messages should share a key")
	}
	if a.IdentityKey() == c.IdentityKey() {
		t.Fatal("different senders must not collide")
	}
}

func TestOutboundFrameNumericSenderID(t *testing.T) {
	data, err := json.Marshal(OutboundFrame{Content: "hi", SenderType: SenderUser, SenderID: "12"})
	if err != nil {
		t.Fatalf("marshal err: %v", err)
	}
	want := `{"content":"hi","sender_type":"USER","sender_id":12}`
	if string(data) != want {
		t.Fatalf("unexpected frame: got %s want %s", data, want)
	}

	data, _ = json.Marshal(OutboundFrame{Content: "hi", SenderType: SenderGuest})
	if string(data) != `{"content":"hi","sender_type":"GUEST"}` {
		t.Fatalf("sender_id should be omitted for guests: %s", data)
	}
}

func TestOwnerContextSender(t *testing.T) {
	if OwnerGuest.Sender() != SenderGuest || OwnerUser.Sender() != SenderUser || OwnerStaff.Sender() != SenderStaff {
		t.Fatal("unexpected owner -> sender mapping")
	}
}
