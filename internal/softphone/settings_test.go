package softphone

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dialdesk/dialdesk/internal/database/models"
)

type fakeConfigRepo struct {
	values map[string]string
	err    error
}

func (f *fakeConfigRepo) Get(_ context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.values[key], nil
}

func (f *fakeConfigRepo) Set(_ context.Context, key, value string) error {
	f.values[key] = value
	return nil
}

func (f *fakeConfigRepo) GetAll(context.Context) ([]models.SystemConfig, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAgent() *models.Agent {
	return &models.Agent{
		ID:          1,
		Username:    "alice",
		Role:        models.RoleAgent,
		SIPNumber:   "1001",
		SIPPassword: "secret",
		Active:      true,
	}
}

func TestResolver_Complete(t *testing.T) {
	repo := &fakeConfigRepo{values: map[string]string{
		models.ConfigSIPServerDomain: "pbx.example.com",
		models.ConfigSIPProtocol:     "wss",
		models.ConfigSIPServerPort:   "7443",
	}}
	r := NewResolver(repo, testLogger())

	settings, creds, ok, err := r.Resolve(context.Background(), testAgent())
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected ok")
	}
	if settings.Domain != "pbx.example.com" || settings.Port != 7443 || settings.Transport != "WSS" {
		t.Errorf("settings = %+v", settings)
	}
	if creds.Number != "1001" || creds.Password != "secret" {
		t.Errorf("creds = %+v", creds)
	}
}

func TestResolver_MissingHalves(t *testing.T) {
	full := map[string]string{
		models.ConfigSIPServerDomain: "pbx.example.com",
		models.ConfigSIPServerPort:   "8089",
	}

	tests := []struct {
		name   string
		values map[string]string
		agent  *models.Agent
	}{
		{
			name:   "no server domain",
			values: map[string]string{},
			agent:  testAgent(),
		},
		{
			name:   "no extension number",
			values: full,
			agent: &models.Agent{
				ID: 1, Username: "alice", SIPPassword: "secret",
			},
		},
		{
			name:   "no extension password",
			values: full,
			agent: &models.Agent{
				ID: 1, Username: "alice", SIPNumber: "1001",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(&fakeConfigRepo{values: tt.values}, testLogger())
			_, _, ok, err := r.Resolve(context.Background(), tt.agent)
			if err != nil {
				t.Fatalf("missing config must not be an error, got %v", err)
			}
			if ok {
				t.Error("expected ok=false")
			}
		})
	}
}

func TestResolver_PortDefaults(t *testing.T) {
	tests := []struct {
		name string
		port string
		want int
	}{
		{"missing", "", defaultSIPPort},
		{"garbage", "not-a-port", defaultSIPPort},
		{"out of range", "99999", defaultSIPPort},
		{"valid", "5063", 5063},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := map[string]string{
				models.ConfigSIPServerDomain: "pbx.example.com",
			}
			if tt.port != "" {
				values[models.ConfigSIPServerPort] = tt.port
			}
			r := NewResolver(&fakeConfigRepo{values: values}, testLogger())
			settings, _, ok, err := r.Resolve(context.Background(), testAgent())
			if err != nil || !ok {
				t.Fatalf("ok=%v err=%v", ok, err)
			}
			if settings.Port != tt.want {
				t.Errorf("port = %d, want %d", settings.Port, tt.want)
			}
		})
	}
}

func TestResolver_StorageError(t *testing.T) {
	r := NewResolver(&fakeConfigRepo{err: errors.New("disk gone")}, testLogger())
	_, _, ok, err := r.Resolve(context.Background(), testAgent())
	if err == nil {
		t.Fatal("expected error")
	}
	if ok {
		t.Error("ok must be false on error")
	}
}

func TestTransportForProtocol(t *testing.T) {
	tests := []struct {
		protocol string
		want     string
	}{
		{"ws", "WS"},
		{"wss", "WSS"},
		{"sip", "WSS"},
		{"pjsip", "WSS"},
		{"", "WSS"},
	}
	for _, tt := range tests {
		if got := transportForProtocol(tt.protocol); got != tt.want {
			t.Errorf("transportForProtocol(%q) = %q, want %q", tt.protocol, got, tt.want)
		}
	}
}
