package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the DialDesk console service.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir    string
	HTTPPort   int
	RTPPortMin int
	RTPPortMax int
	LogLevel   string
	LogFormat  string // log output format: "text" or "json"
	JWTSecret  string // hex-encoded 32-byte secret for operator JWT signing
	ArchiveDSN string // PostgreSQL DSN for the call-log archive (empty disables)
	PBXAPIURL  string // base URL of the PBX management HTTP API
	PBXAPIUser string // PBX API account
	PBXAPIPass string // PBX API password
	MediaDir   string // directory for audio device files
}

// defaults
const (
	defaultDataDir    = "./data"
	defaultHTTPPort   = 8080
	defaultRTPPortMin = 40000
	defaultRTPPortMax = 50000
	defaultLogLevel   = "info"
	defaultLogFormat  = "text"
)

// envPrefix is the prefix for all DialDesk environment variables.
const envPrefix = "DIALDESK_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("dialdesk", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for database and file storage")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.IntVar(&cfg.RTPPortMin, "rtp-port-min", defaultRTPPortMin, "minimum UDP port for RTP media")
	fs.IntVar(&cfg.RTPPortMax, "rtp-port-max", defaultRTPPortMax, "maximum UDP port for RTP media")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for operator JWT signing (auto-generated if empty)")
	fs.StringVar(&cfg.ArchiveDSN, "archive-dsn", "", "PostgreSQL DSN for the call-log archive (disabled if empty)")
	fs.StringVar(&cfg.PBXAPIURL, "pbx-api-url", "", "base URL of the PBX management API")
	fs.StringVar(&cfg.PBXAPIUser, "pbx-api-user", "", "PBX management API user")
	fs.StringVar(&cfg.PBXAPIPass, "pbx-api-pass", "", "PBX management API password")
	fs.StringVar(&cfg.MediaDir, "media-dir", "", "directory for audio files (defaults to <data-dir>/media)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"data-dir":     envPrefix + "DATA_DIR",
		"http-port":    envPrefix + "HTTP_PORT",
		"rtp-port-min": envPrefix + "RTP_PORT_MIN",
		"rtp-port-max": envPrefix + "RTP_PORT_MAX",
		"log-level":    envPrefix + "LOG_LEVEL",
		"log-format":   envPrefix + "LOG_FORMAT",
		"jwt-secret":   envPrefix + "JWT_SECRET",
		"archive-dsn":  envPrefix + "ARCHIVE_DSN",
		"pbx-api-url":  envPrefix + "PBX_API_URL",
		"pbx-api-user": envPrefix + "PBX_API_USER",
		"pbx-api-pass": envPrefix + "PBX_API_PASS",
		"media-dir":    envPrefix + "MEDIA_DIR",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "rtp-port-min":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RTPPortMin = v
			}
		case "rtp-port-max":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RTPPortMax = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "jwt-secret":
			cfg.JWTSecret = val
		case "archive-dsn":
			cfg.ArchiveDSN = val
		case "pbx-api-url":
			cfg.PBXAPIURL = val
		case "pbx-api-user":
			cfg.PBXAPIUser = val
		case "pbx-api-pass":
			cfg.PBXAPIPass = val
		case "media-dir":
			cfg.MediaDir = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.RTPPortMin < 1024 || c.RTPPortMin > 65534 {
		return fmt.Errorf("rtp-port-min must be between 1024 and 65534, got %d", c.RTPPortMin)
	}
	if c.RTPPortMax < c.RTPPortMin+2 || c.RTPPortMax > 65535 {
		return fmt.Errorf("rtp-port-max must be between rtp-port-min+2 and 65535, got %d", c.RTPPortMax)
	}
	// RTP ports must be even (RTP uses even ports, RTCP uses the next odd port).
	if c.RTPPortMin%2 != 0 {
		return fmt.Errorf("rtp-port-min must be even, got %d", c.RTPPortMin)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	if c.MediaDir == "" {
		c.MediaDir = c.DataDir + "/media"
	}

	return nil
}

// SlogLevel converts the configured log level string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// JWTSecretBytes returns the decoded 32-byte JWT signing secret.
// If no secret is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating jwt secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(key)
		slog.Warn("no jwt-secret configured, generated ephemeral key (tokens will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// LocalHostname returns the host to advertise in SIP Contact headers when
// the engine needs a local identity. Falls back to the first non-loopback
// IPv4 address, then to "localhost".
func LocalHostname() string {
	hostname, err := os.Hostname()
	if err == nil && hostname != "" {
		return hostname
	}
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
				return ipNet.IP.String()
			}
		}
	}
	return "localhost"
}
