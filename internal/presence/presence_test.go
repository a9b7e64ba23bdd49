package presence

import (
	"testing"

	"github.com/risklock/livesync/internal/model/support"
	"github.com/risklock/livesync/internal/transport"
)

func TestClassify(t *testing.T) {
	bot := support.Message{Content: "hello", SenderType: support.SenderBot}
	guest := support.Message{Content: "hi", SenderType: support.SenderGuest}
	staff := support.Message{Content: "I'm here", SenderType: support.SenderStaff, SenderName: "Dana"}

	tests := []struct {
		name  string
		msgs  []support.Message
		state transport.State
		want  Status
	}{
		{"empty", nil, transport.StateOpen, BotHandling},
		{"bot only", []support.Message{bot, guest}, transport.StateOpen, BotHandling},
		{"staff joined", []support.Message{bot, staff}, transport.StateOpen, StaffActive},
		{"staff stays after bot replies", []support.Message{staff, bot, guest, bot}, transport.StateOpen, StaffActive},
		{"reconnecting keeps staff", []support.Message{staff}, transport.StateClosed, StaffActive},
		{"offline", []support.Message{staff}, transport.StateOffline, Offline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.msgs, tt.state); got != tt.want {
				t.Fatalf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyIsSticky(t *testing.T) {
	msgs := []support.Message{{Content: "joined", SenderType: support.SenderStaff}}
	for i := 0; i < 20; i++ {
		msgs = append(msgs, support.Message{Content: "bot", SenderType: support.SenderBot})
		if got := Classify(msgs, transport.StateOpen); got != StaffActive {
			t.Fatalf("after %d bot messages status = %s", i+1, got)
		}
	}
}

func TestAgentName(t *testing.T) {
	if got := AgentName(nil); got != DefaultAgentName {
		t.Fatalf("AgentName(nil) = %q", got)
	}
	msgs := []support.Message{
		{Content: "a", SenderType: support.SenderStaff, SenderName: "Dana"},
		{Content: "b", SenderType: support.SenderStaff, SenderName: "Lee"},
		{Content: "c", SenderType: support.SenderStaff},
	}
	if got := AgentName(msgs); got != "Lee" {
		t.Fatalf("AgentName() = %q, want Lee", got)
	}
	if got := Label(StaffActive, "Lee"); got != "Chatting with Lee" {
		t.Fatalf("Label() = %q", got)
	}
}
