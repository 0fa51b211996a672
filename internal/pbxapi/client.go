// Package pbxapi is a client for the PBX's call-detail query API. The API
// is a legacy HTTP surface that answers with pipe-delimited text records,
// one per line; this package turns those into structs the console can use.
package pbxapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseSize caps how much of a PBX response is read. The API has no
// pagination; a runaway report is truncated rather than buffered whole.
const maxResponseSize = 1 << 20

// Client talks to the PBX call-detail API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	user       string
	pass       string
	logger     *slog.Logger
}

// NewClient creates a PBX API client. baseURL is the API root, e.g.
// "https://pbx.example.com/api". user and pass are the API account, sent
// as query parameters the way the PBX expects.
func NewClient(baseURL, user, pass string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		user:       user,
		pass:       pass,
		logger:     logger.With("subsystem", "pbxapi"),
	}
}

// Configured reports whether the client has an endpoint to talk to.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.user != ""
}

// AgentStatus is one live agent row from the PBX.
type AgentStatus struct {
	Extension string
	Name      string
	Status    string // READY, INCALL, PAUSED, OFFLINE
	Campaign  string
	// SecondsInStatus is how long the agent has been in the current state.
	SecondsInStatus int
}

// AgentLiveStatus returns the PBX's live view of all logged-in agents.
func (c *Client) AgentLiveStatus(ctx context.Context) ([]AgentStatus, error) {
	lines, err := c.query(ctx, "agent_status", nil)
	if err != nil {
		return nil, err
	}

	out := make([]AgentStatus, 0, len(lines))
	for i, line := range lines {
		st, err := parseAgentStatus(line)
		if err != nil {
			return nil, fmt.Errorf("pbxapi: line %d: %w", i+1, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// CampaignStats is one campaign summary row.
type CampaignStats struct {
	Campaign  string
	Dialed    int
	Answered  int
	Dropped   int
	AvgLength int // seconds
}

// CampaignCallStats returns per-campaign call counters for a date
// (YYYY-MM-DD).
func (c *Client) CampaignCallStats(ctx context.Context, date string) ([]CampaignStats, error) {
	lines, err := c.query(ctx, "campaign_stats", url.Values{"date": {date}})
	if err != nil {
		return nil, err
	}

	out := make([]CampaignStats, 0, len(lines))
	for i, line := range lines {
		st, err := parseCampaignStats(line)
		if err != nil {
			return nil, fmt.Errorf("pbxapi: line %d: %w", i+1, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// RecordingLookup returns the download URL for a call's recording, or
// empty when the PBX has none for that call.
func (c *Client) RecordingLookup(ctx context.Context, callID string) (string, error) {
	lines, err := c.query(ctx, "recording_lookup", url.Values{"call_id": {callID}})
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", nil
	}

	fields := splitRecord(lines[0])
	// call_id|location
	if len(fields) < 2 {
		return "", fmt.Errorf("pbxapi: malformed recording record %q", lines[0])
	}
	return fields[1], nil
}

// query performs one API call and returns the non-empty response lines.
// The PBX reports failures in-band with an "ERROR:" first line.
func (c *Client) query(ctx context.Context, function string, params url.Values) ([]string, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("pbxapi: client not configured")
	}

	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("function", function)
	q.Set("user", c.user)
	q.Set("pass", c.pass)

	reqURL := c.baseURL + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("pbxapi: creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pbxapi: sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("pbxapi: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pbxapi: %s returned status %d", function, resp.StatusCode)
	}

	lines := splitLines(string(body))
	if len(lines) > 0 && strings.HasPrefix(lines[0], "ERROR:") {
		return nil, fmt.Errorf("pbxapi: %s: %s", function, strings.TrimSpace(strings.TrimPrefix(lines[0], "ERROR:")))
	}

	c.logger.Debug("pbx query", "function", function, "records", len(lines))
	return lines, nil
}
