package softphone

import (
	"context"
	"fmt"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/dialdesk/dialdesk/internal/media"
)

// handleInvite processes an inbound INVITE arriving over the registered
// connection. A second call while one is live is refused with 486; the
// engine never queues calls. Under AcceptPolicyAuto the call is answered
// immediately, under AcceptPolicyManual it is parked until Answer.
func (e *Engine) handleInvite(req *sip.Request, tx sip.ServerTransaction) {
	caller := "unknown"
	if from := req.From(); from != nil && from.Address.User != "" {
		caller = from.Address.User
	}

	e.mu.Lock()
	if e.closed || e.sess != nil {
		e.mu.Unlock()
		e.respond(req, tx, 486, "Busy Here")
		e.logger.Info("inbound call refused, line busy", "caller", caller)
		return
	}

	e.generation++
	sess := &callSession{
		id:         uuid.NewString(),
		generation: e.generation,
		direction:  DirectionInbound,
		number:     caller,
		machine:    newSessionFSM(),
		inviteReq:  req,
		serverTx:   tx,
	}
	_ = sess.machine.Event(context.Background(), evProceed)

	// Inbound calls get a context too so a disposition can be filed,
	// but no lead binding: caller to lead matching is not attempted.
	e.callCtx = &CallContext{
		PhoneNumber: caller,
		Direction:   DirectionInbound,
	}
	e.sess = sess
	policy := e.opts.Policy
	e.mu.Unlock()

	e.respond(req, tx, 100, "Trying")
	e.respond(req, tx, 180, "Ringing")

	e.logger.Info("inbound call", "caller", caller, "call", sess.id)
	e.publish(Event{Kind: EventIncomingCall, Number: caller, Generation: sess.generation})
	e.publishSessionState(sess, SessionEstablishing)

	if policy == AcceptPolicyAuto {
		if err := e.accept(sess); err != nil {
			e.logger.Error("auto-answer failed", "call", sess.id, "error", err)
			e.rejectInbound(sess, 500, "Server Internal Error")
			e.finishSession(sess, err)
		}
	}
}

// Answer accepts the parked inbound call under AcceptPolicyManual.
func (e *Engine) Answer() error {
	e.mu.Lock()
	sess := e.sess
	if sess == nil || sess.direction != DirectionInbound ||
		sess.state() != SessionEstablishing || sess.answered {
		e.mu.Unlock()
		return ErrNoPendingCall
	}
	e.mu.Unlock()

	if err := e.accept(sess); err != nil {
		e.rejectInbound(sess, 500, "Server Internal Error")
		e.finishSession(sess, err)
		return err
	}
	return nil
}

// accept sends the 200 OK with our SDP answer. The session stays in
// Establishing until the caller's ACK confirms the dialog.
func (e *Engine) accept(sess *callSession) error {
	bridge, err := media.NewBridge(e.opts.LocalIP, e.opts.RTPPorts, e.opts.NewSource(), e.opts.NewSink(), e.logger)
	if err != nil {
		return fmt.Errorf("creating media bridge: %w", err)
	}
	if body := sess.inviteReq.Body(); len(body) > 0 {
		if err := bridge.Connect(body); err != nil {
			bridge.Close()
			return fmt.Errorf("negotiating remote offer: %w", err)
		}
	}
	answer, err := bridge.LocalDescription()
	if err != nil {
		bridge.Close()
		return fmt.Errorf("building sdp answer: %w", err)
	}

	res := sip.NewResponseFromRequest(sess.inviteReq, 200, "OK", answer)
	res.AppendHeader(sip.NewHeader("Contact",
		fmt.Sprintf("<sip:%s@%s>", e.creds.Number, e.ua.Hostname())))
	res.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	if err := sess.serverTx.Respond(res); err != nil {
		bridge.Close()
		return fmt.Errorf("sending 200 ok: %w", err)
	}

	e.mu.Lock()
	sess.answered = true
	sess.inviteRes = res
	sess.bridge = bridge
	sess.tracks = bridge
	e.mu.Unlock()

	e.logger.Info("inbound call answered", "call", sess.id)
	return nil
}

// handleAck confirms an answered inbound call, moving it to Established.
func (e *Engine) handleAck(req *sip.Request, _ sip.ServerTransaction) {
	e.mu.Lock()
	sess := e.sess
	if sess == nil || sess.direction != DirectionInbound || !sess.answered ||
		sess.state() != SessionEstablishing || !sameCallID(req, sess.inviteReq) {
		e.mu.Unlock()
		return
	}
	_ = sess.machine.Event(context.Background(), evEstablish)
	if e.callCtx != nil && e.callCtx.StartTime == nil {
		now := time.Now()
		e.callCtx.StartTime = &now
	}
	e.mu.Unlock()

	e.logger.Info("call established", "call", sess.id, "number", sess.number)
	e.publishSessionState(sess, SessionEstablished)
}

// handleBye ends the call at the remote side's request. The call context
// survives so the operator can still file a disposition.
func (e *Engine) handleBye(req *sip.Request, tx sip.ServerTransaction) {
	e.respond(req, tx, 200, "OK")

	e.mu.Lock()
	sess := e.sess
	if sess == nil || !sameCallID(req, sess.inviteReq) {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.logger.Info("remote hangup", "call", sess.id)
	e.finishSession(sess, nil)
}

// handleCancel tears down an unanswered inbound call the caller gave up on.
func (e *Engine) handleCancel(req *sip.Request, tx sip.ServerTransaction) {
	e.respond(req, tx, 200, "OK")

	e.mu.Lock()
	sess := e.sess
	if sess == nil || sess.direction != DirectionInbound || sess.answered ||
		!sameCallID(req, sess.inviteReq) {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.rejectInbound(sess, 487, "Request Terminated")
	e.logger.Info("inbound call canceled by caller", "call", sess.id)
	e.finishSession(sess, nil)
}

// rejectInbound answers the pending INVITE transaction with a failure
// status. Errors are logged only; the transaction may already be gone.
func (e *Engine) rejectInbound(sess *callSession, status int, reason string) {
	if sess.serverTx == nil || sess.answered {
		return
	}
	e.respond(sess.inviteReq, sess.serverTx, status, reason)
}

// respond sends a simple response on a server transaction.
func (e *Engine) respond(req *sip.Request, tx sip.ServerTransaction, status int, reason string) {
	res := sip.NewResponseFromRequest(req, status, reason, nil)
	if err := tx.Respond(res); err != nil {
		e.logger.Debug("sending response failed",
			"status", status,
			"method", req.Method.String(),
			"error", err,
		)
	}
}

// sameCallID reports whether two requests belong to the same dialog.
func sameCallID(a, b *sip.Request) bool {
	ca, cb := a.CallID(), b.CallID()
	return ca != nil && cb != nil && ca.Value() == cb.Value()
}
