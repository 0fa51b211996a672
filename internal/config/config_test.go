package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(nil)
	if err != nil {
		t.Fatalf("load() error: %v", err)
	}
	if cfg.DataDir != defaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaultDataDir)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
	if cfg.MediaDir != defaultDataDir+"/media" {
		t.Errorf("MediaDir = %q, want %q", cfg.MediaDir, defaultDataDir+"/media")
	}
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	cfg, err := load([]string{"-http-port", "9090", "-log-level", "DEBUG", "-data-dir", "/tmp/dd"})
	if err != nil {
		t.Fatalf("load() error: %v", err)
	}
	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	// Log level is normalized to lowercase.
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.DataDir != "/tmp/dd" {
		t.Errorf("DataDir = %q, want /tmp/dd", cfg.DataDir)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DIALDESK_HTTP_PORT", "8181")
	t.Setenv("DIALDESK_LOG_FORMAT", "json")

	cfg, err := load(nil)
	if err != nil {
		t.Fatalf("load() error: %v", err)
	}
	if cfg.HTTPPort != 8181 {
		t.Errorf("HTTPPort = %d, want 8181", cfg.HTTPPort)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
}

func TestLoadFlagBeatsEnv(t *testing.T) {
	t.Setenv("DIALDESK_HTTP_PORT", "8181")

	cfg, err := load([]string{"-http-port", "9191"})
	if err != nil {
		t.Fatalf("load() error: %v", err)
	}
	if cfg.HTTPPort != 9191 {
		t.Errorf("HTTPPort = %d, want 9191 (flag should beat env)", cfg.HTTPPort)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"http port too high", []string{"-http-port", "70000"}},
		{"rtp min below 1024", []string{"-rtp-port-min", "80"}},
		{"rtp max below min", []string{"-rtp-port-min", "40000", "-rtp-port-max", "40001"}},
		{"odd rtp min", []string{"-rtp-port-min", "40001"}},
		{"unknown log level", []string{"-log-level", "verbose"}},
		{"unknown log format", []string{"-log-format", "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := load(tt.args); err == nil {
				t.Errorf("load(%v) succeeded, want error", tt.args)
			}
		})
	}
}

func TestJWTSecretBytes(t *testing.T) {
	// Auto-generated when empty.
	cfg := &Config{}
	key, err := cfg.JWTSecretBytes()
	if err != nil {
		t.Fatalf("JWTSecretBytes() error: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("generated key length = %d, want 32", len(key))
	}
	if cfg.JWTSecret == "" {
		t.Error("generated key was not stored back in config")
	}

	// Rejects keys of the wrong size.
	cfg = &Config{JWTSecret: "abcd"}
	if _, err := cfg.JWTSecretBytes(); err == nil {
		t.Error("JWTSecretBytes() accepted a short key")
	}

	// Rejects non-hex input.
	cfg = &Config{JWTSecret: "zz"}
	if _, err := cfg.JWTSecretBytes(); err == nil {
		t.Error("JWTSecretBytes() accepted non-hex input")
	}
}
