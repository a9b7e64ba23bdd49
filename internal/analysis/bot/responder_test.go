package bot

import "testing"

func TestRespond(t *testing.T) {
	tests := []struct {
		text     string
		intent   Intent
		escalate bool
	}{
		{"What does it COST?", Pricing, false},
		{"pricing and setup", Pricing, false},
		{"how do I connect MT5", Setup, false},
		{"I need a human", Escalate, true},
		{"help!", Escalate, true},
		{"hello there", Fallback, false},
		{"", Fallback, false},
	}

	for _, tt := range tests {
		got := Respond(tt.text)
		if got.Intent != tt.intent {
			t.Errorf("Respond(%q) intent = %s, want %s", tt.text, got.Intent, tt.intent)
		}
		if got.Escalate != tt.escalate {
			t.Errorf("Respond(%q) escalate = %v, want %v", tt.text, got.Escalate, tt.escalate)
		}
		if got.Content == "" {
			t.Errorf("Respond(%q) returned empty content", tt.text)
		}
	}
}
