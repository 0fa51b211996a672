package softphone

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dialdesk/dialdesk/internal/database"
	"github.com/dialdesk/dialdesk/internal/database/models"
)

// SipSettings describes the server side of a softphone connection.
type SipSettings struct {
	Domain    string
	Port      int
	Transport string // "WS" or "WSS"
}

// AccountCredentials are an operator's extension credentials on the PBX.
type AccountCredentials struct {
	Number   string
	Password string
}

// defaultSIPPort is used when the system config has no sip_server_port row.
const defaultSIPPort = 8089

// Resolver assembles softphone connection settings from the system config
// store and an operator's account row.
type Resolver struct {
	config database.SystemConfigRepository
	logger *slog.Logger
}

// NewResolver creates a settings resolver.
func NewResolver(config database.SystemConfigRepository, logger *slog.Logger) *Resolver {
	return &Resolver{
		config: config,
		logger: logger.With("subsystem", "settings-resolver"),
	}
}

// Resolve reads the SIP server settings and the agent's extension
// credentials. When either half is missing it returns ok=false and the
// engine must not start registration; missing configuration is a normal
// condition, not an error. An error is returned only for storage failures.
func (r *Resolver) Resolve(ctx context.Context, agent *models.Agent) (SipSettings, AccountCredentials, bool, error) {
	var settings SipSettings
	var creds AccountCredentials

	domain, err := r.config.Get(ctx, models.ConfigSIPServerDomain)
	if err != nil {
		return settings, creds, false, fmt.Errorf("reading sip server domain: %w", err)
	}
	if domain == "" {
		r.logger.Debug("sip server domain not configured")
		return settings, creds, false, nil
	}

	protocol, err := r.config.Get(ctx, models.ConfigSIPProtocol)
	if err != nil {
		return settings, creds, false, fmt.Errorf("reading sip protocol: %w", err)
	}

	portStr, err := r.config.Get(ctx, models.ConfigSIPServerPort)
	if err != nil {
		return settings, creds, false, fmt.Errorf("reading sip server port: %w", err)
	}
	port := defaultSIPPort
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil || p < 1 || p > 65535 {
			r.logger.Warn("invalid sip_server_port value, using default",
				"value", portStr,
				"default", defaultSIPPort,
			)
		} else {
			port = p
		}
	}

	if agent.SIPNumber == "" || agent.SIPPassword == "" {
		r.logger.Debug("agent has no extension credentials", "agent", agent.Username)
		return settings, creds, false, nil
	}

	settings = SipSettings{
		Domain:    domain,
		Port:      port,
		Transport: transportForProtocol(protocol),
	}
	creds = AccountCredentials{
		Number:   agent.SIPNumber,
		Password: agent.SIPPassword,
	}
	return settings, creds, true, nil
}

// transportForProtocol maps the stored protocol value to a SIP transport.
// Plain "ws" selects unencrypted WebSocket; everything else, including the
// legacy "sip" and "pjsip" values, uses secure WebSocket.
func transportForProtocol(protocol string) string {
	if protocol == "ws" {
		return "WS"
	}
	return "WSS"
}
