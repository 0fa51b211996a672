package pbxapi

import (
	"fmt"
	"strconv"
	"strings"
)

// splitLines breaks a response body into trimmed, non-empty lines.
func splitLines(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// splitRecord splits one pipe-delimited record into trimmed fields.
func splitRecord(line string) []string {
	fields := strings.Split(line, "|")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// parseAgentStatus parses "extension|name|status|campaign|seconds".
func parseAgentStatus(line string) (AgentStatus, error) {
	fields := splitRecord(line)
	if len(fields) < 5 {
		return AgentStatus{}, fmt.Errorf("malformed agent record %q", line)
	}

	seconds, err := strconv.Atoi(fields[4])
	if err != nil {
		return AgentStatus{}, fmt.Errorf("bad seconds in agent record %q: %w", line, err)
	}

	return AgentStatus{
		Extension:       fields[0],
		Name:            fields[1],
		Status:          fields[2],
		Campaign:        fields[3],
		SecondsInStatus: seconds,
	}, nil
}

// parseCampaignStats parses "campaign|dialed|answered|dropped|avg_length".
func parseCampaignStats(line string) (CampaignStats, error) {
	fields := splitRecord(line)
	if len(fields) < 5 {
		return CampaignStats{}, fmt.Errorf("malformed campaign record %q", line)
	}

	nums := make([]int, 4)
	for i, f := range fields[1:5] {
		n, err := strconv.Atoi(f)
		if err != nil {
			return CampaignStats{}, fmt.Errorf("bad number in campaign record %q: %w", line, err)
		}
		nums[i] = n
	}

	return CampaignStats{
		Campaign:  fields[0],
		Dialed:    nums[0],
		Answered:  nums[1],
		Dropped:   nums[2],
		AvgLength: nums[3],
	}, nil
}
