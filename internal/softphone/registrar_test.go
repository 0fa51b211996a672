package softphone

import (
	"testing"
)

func TestParseContactExpires(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{"simple", "<sip:1001@pbx.example.com>;expires=3600", 3600},
		{"uppercase param", "<sip:1001@pbx.example.com>;EXPIRES=120", 120},
		{"trailing params", "<sip:1001@pbx.example.com>;expires=60;q=0.5", 60},
		{"no param", "<sip:1001@pbx.example.com>", 0},
		{"garbage value", "<sip:1001@pbx.example.com>;expires=abc", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseContactExpires(tt.value); got != tt.want {
				t.Errorf("parseContactExpires(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseExpiresHeader(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"600", 600},
		{" 300 ", 300},
		{"abc", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseExpiresHeader(tt.value); got != tt.want {
			t.Errorf("parseExpiresHeader(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestRegistrar_StopWhenStoppedIsNoOp(t *testing.T) {
	var transitions []ConnectionState
	r := NewRegistrar(nil, nil, SipSettings{}, AccountCredentials{}, testLogger(),
		func(state ConnectionState, _ error) {
			transitions = append(transitions, state)
		})

	r.Stop()
	r.Stop()

	if len(transitions) != 0 {
		t.Errorf("stop on a stopped registrar emitted %v", transitions)
	}
	if r.State() != ConnectionStopped {
		t.Errorf("state = %v, want stopped", r.State())
	}
}

func TestRegistrar_SetStateSuppressesDuplicates(t *testing.T) {
	var count int
	r := NewRegistrar(nil, nil, SipSettings{}, AccountCredentials{}, testLogger(),
		func(ConnectionState, error) { count++ })

	r.setState(ConnectionStarted, nil)
	r.setState(ConnectionStarted, nil)
	r.setState(ConnectionStopped, nil)

	if count != 2 {
		t.Errorf("notifications = %d, want 2", count)
	}
}
