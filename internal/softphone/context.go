package softphone

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dialdesk/dialdesk/internal/database/models"
)

// CallContext carries what is known about the current or most recent call
// so the operator can file a disposition. It is created before the INVITE
// goes out and deliberately outlives the session: a terminated call still
// needs its disposition.
type CallContext struct {
	LeadID      *int64
	PhoneNumber string
	Direction   Direction
	// StartTime is set exactly once, when the session first reaches
	// Established. It stays nil for calls that never connect.
	StartTime *time.Time
}

// Context returns a copy of the current call context, or nil when none
// exists.
func (e *Engine) Context() *CallContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.callCtx == nil {
		return nil
	}
	cc := *e.callCtx
	return &cc
}

// ClearContext dismisses the call context without filing a disposition.
func (e *Engine) ClearContext() {
	e.mu.Lock()
	e.callCtx = nil
	e.mu.Unlock()
}

// SubmitDisposition files a call log for the current call context and
// clears it. The context survives a storage failure so the operator can
// retry. Duration is the rounded wall time since the call connected and is
// null for calls that never reached Established.
func (e *Engine) SubmitDisposition(ctx context.Context, status, notes string) (*models.CallLog, error) {
	e.mu.Lock()
	cc := e.callCtx
	e.mu.Unlock()

	if cc == nil {
		return nil, ErrNoCallContext
	}
	if !models.ValidDisposition(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDisposition, status)
	}

	log := &models.CallLog{
		AgentID:     e.agent.ID,
		LeadID:      cc.LeadID,
		PhoneNumber: cc.PhoneNumber,
		Direction:   cc.Direction.String(),
		Status:      status,
		Notes:       notes,
		Duration:    durationSeconds(cc.StartTime, time.Now()),
	}

	if err := e.calls.Create(ctx, log); err != nil {
		return nil, fmt.Errorf("saving call log: %w", err)
	}

	e.mu.Lock()
	e.callCtx = nil
	e.mu.Unlock()

	if e.archiver != nil {
		if err := e.archiver.ArchiveCallLog(ctx, log); err != nil {
			e.logger.Warn("archiving call log failed", "call_log", log.ID, "error", err)
		}
	}

	e.logger.Info("disposition filed",
		"number", log.PhoneNumber,
		"status", log.Status,
	)
	return log, nil
}

// durationSeconds rounds the elapsed time since start to whole seconds.
// Returns nil when the call never connected.
func durationSeconds(start *time.Time, now time.Time) *int {
	if start == nil {
		return nil
	}
	d := int(math.Round(now.Sub(*start).Seconds()))
	if d < 0 {
		d = 0
	}
	return &d
}
