package softphone

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/dialdesk/dialdesk/internal/media"
)

// byeResponseTimeout bounds how long a fire-and-forget BYE waits for its
// response before the transaction is abandoned.
const byeResponseTimeout = 10 * time.Second

// destinationRe matches what an operator can dial: digits with an
// optional leading +, including the * and # extension prefixes. The URI
// parser is far more permissive, so the check happens here before any
// request is built.
var destinationRe = regexp.MustCompile(`^\+?[0-9*#]{1,32}$`)

// callSession is the engine's single live call. At most one exists per
// engine; the generation number lets late transaction events recognize
// that they belong to a session the operator already abandoned.
type callSession struct {
	id         string
	generation uint64
	direction  Direction
	number     string
	machine    *fsm.FSM

	inviteReq *sip.Request
	inviteRes *sip.Response
	serverTx  sip.ServerTransaction // inbound only
	answered  bool                  // inbound: 200 already sent

	bridge *media.Bridge
	tracks media.TrackHandle

	cseq uint32
}

// state returns the session's current lifecycle state.
func (s *callSession) state() SessionState {
	return sessionStateOf(s.machine.Current())
}

// nextCSeq returns the next in-dialog sequence number.
func (s *callSession) nextCSeq() uint32 {
	s.cseq++
	return s.cseq
}

// Dial places an outbound call to destination. The call context is
// recorded before any signaling so a disposition can be filed even if the
// INVITE never completes. Only one call may exist at a time; a second Dial
// is refused, never queued.
func (e *Engine) Dial(ctx context.Context, destination string, leadID *int64) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	if e.registrar == nil || e.registrar.State() != ConnectionStarted {
		e.mu.Unlock()
		return ErrNotRegistered
	}
	if e.sess != nil {
		e.mu.Unlock()
		return ErrCallInProgress
	}

	if !destinationRe.MatchString(destination) {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrInvalidDestination, destination)
	}
	targetStr := fmt.Sprintf("sip:%s@%s", destination, e.settings.Domain)
	var target sip.Uri
	if err := sip.ParseUri(targetStr, &target); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrInvalidDestination, destination)
	}

	// The context exists from this point on, whatever the call's fate.
	e.callCtx = &CallContext{
		LeadID:      leadID,
		PhoneNumber: destination,
		Direction:   DirectionOutbound,
	}

	bridge, err := media.NewBridge(e.opts.LocalIP, e.opts.RTPPorts, e.opts.NewSource(), e.opts.NewSink(), e.logger)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("creating media bridge: %w", err)
	}
	offer, err := bridge.LocalDescription()
	if err != nil {
		bridge.Close()
		e.mu.Unlock()
		return fmt.Errorf("building sdp offer: %w", err)
	}

	e.generation++
	sess := &callSession{
		id:         uuid.NewString(),
		generation: e.generation,
		direction:  DirectionOutbound,
		number:     destination,
		machine:    newSessionFSM(),
		bridge:     bridge,
		tracks:     bridge,
	}
	_ = sess.machine.Event(ctx, evProceed)

	req := e.buildInvite(target, offer)
	sess.inviteReq = req
	e.sess = sess
	e.mu.Unlock()

	e.publishSessionState(sess, SessionEstablishing)
	e.logger.Info("dialing", "number", destination, "call", sess.id)

	// Signaling outlives the caller's context; the transaction is
	// terminated by the invite loop.
	tx, err := e.client.TransactionRequest(context.Background(), req)
	if err != nil {
		e.finishSession(sess, fmt.Errorf("sending invite: %w", err))
		return fmt.Errorf("sending invite: %w", err)
	}

	go e.inviteLoop(sess, tx, req, targetStr)
	return nil
}

// buildInvite assembles the outbound INVITE carrying the SDP offer. Via,
// Call-ID, CSeq and Max-Forwards are filled in by the client.
func (e *Engine) buildInvite(target sip.Uri, offer []byte) *sip.Request {
	req := sip.NewRequest(sip.INVITE, target)
	req.SetTransport(e.settings.Transport)

	fromTag := uuid.NewString()[:8]
	req.AppendHeader(sip.NewHeader("From",
		fmt.Sprintf("<sip:%s@%s>;tag=%s", e.creds.Number, e.settings.Domain, fromTag)))
	req.AppendHeader(sip.NewHeader("To", fmt.Sprintf("<%s>", target.String())))
	req.AppendHeader(sip.NewHeader("Contact",
		fmt.Sprintf("<sip:%s@%s>", e.creds.Number, e.ua.Hostname())))
	req.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	req.SetBody(offer)
	return req
}

// inviteLoop consumes responses to an outbound INVITE: provisional
// progress, one digest retry, then a final answer or failure.
func (e *Engine) inviteLoop(sess *callSession, tx sip.ClientTransaction, req *sip.Request, targetURI string) {
	defer func() { tx.Terminate() }()

	authRetried := false
	for {
		select {
		case <-tx.Done():
			e.finishSession(sess, fmt.Errorf("invite transaction terminated: %w", tx.Err()))
			return
		case res := <-tx.Responses():
			switch {
			case res.StatusCode < 200:
				e.logger.Debug("call progress",
					"call", sess.id,
					"status", int(res.StatusCode),
					"reason", res.Reason,
				)

			case res.StatusCode == 401 || res.StatusCode == 407:
				if authRetried {
					e.finishSession(sess, fmt.Errorf("invite auth rejected with status %d", res.StatusCode))
					return
				}
				authRetried = true

				authReq, err := answerChallenge(req, res, targetURI, e.creds)
				if err != nil {
					e.finishSession(sess, err)
					return
				}
				newTx, err := e.client.TransactionRequest(context.Background(), authReq,
					sipgo.ClientRequestIncreaseCSEQ,
					sipgo.ClientRequestAddVia,
				)
				if err != nil {
					e.finishSession(sess, fmt.Errorf("sending authenticated invite: %w", err))
					return
				}
				tx.Terminate()
				tx = newTx
				req = authReq

			case res.StatusCode < 300:
				ack := buildACKFor2xx(req, res)
				if err := e.client.WriteRequest(ack); err != nil {
					e.logger.Warn("sending ack failed", "call", sess.id, "error", err)
				}
				e.confirmOutbound(sess, req, res)
				return

			case res.StatusCode == 487:
				// Our own CANCEL completed.
				e.finishSession(sess, nil)
				return

			default:
				e.finishSession(sess, fmt.Errorf("call failed: %d %s", res.StatusCode, res.Reason))
				return
			}
		}
	}
}

// confirmOutbound moves an answered outbound call to Established. If the
// operator hung up while the 200 was in flight, the session reference is
// already gone; the late answer is discarded locally and the remote dialog
// is torn down with an immediate BYE.
func (e *Engine) confirmOutbound(sess *callSession, req *sip.Request, res *sip.Response) {
	e.mu.Lock()
	if e.sess == nil || e.sess.generation != sess.generation {
		e.mu.Unlock()
		e.logger.Debug("late answer for abandoned call, tearing down", "call", sess.id)
		bye := inDialogFromUAC(req, res, sip.BYE, req.CSeq().SeqNo+1)
		e.sendInDialog(bye, sess.id)
		return
	}

	sess.inviteReq = req
	sess.inviteRes = res
	sess.cseq = req.CSeq().SeqNo
	_ = sess.machine.Event(context.Background(), evEstablish)
	if e.callCtx != nil && e.callCtx.StartTime == nil {
		now := time.Now()
		e.callCtx.StartTime = &now
	}
	e.mu.Unlock()

	if body := res.Body(); len(body) > 0 {
		if err := sess.bridge.Connect(body); err != nil {
			e.logger.Warn("connecting call media failed", "call", sess.id, "error", err)
		}
	}

	e.logger.Info("call established", "call", sess.id, "number", sess.number)
	e.publishSessionState(sess, SessionEstablished)
}

// Hangup ends the current call. The signaling depends on where the call
// is: an established call gets a BYE, an outbound call still ringing gets
// a CANCEL, and an unanswered inbound call is rejected with 486. An
// inbound call already answered but not yet ACKed has a dialog the far
// end committed to, so it gets a BYE as well. The local session is reset
// immediately without waiting for the network.
func (e *Engine) Hangup() error {
	e.mu.Lock()
	sess := e.sess
	if sess == nil {
		e.mu.Unlock()
		return ErrNoActiveCall
	}
	state := sess.state()
	answered := sess.answered

	var bye *sip.Request
	if state == SessionEstablished ||
		(state == SessionEstablishing && sess.direction == DirectionInbound && answered) {
		bye = sess.newInDialogRequest(sip.BYE, e.ua.Hostname(), e.creds.Number)
	}
	// The machine must agree with the event stream before anyone sees
	// either; a State snapshot taken during teardown reports terminating.
	_ = sess.machine.Event(context.Background(), evTerminate)
	e.mu.Unlock()

	e.publishSessionState(sess, SessionTerminating)

	switch {
	case bye != nil:
		e.sendInDialog(bye, sess.id)

	case state == SessionEstablishing && sess.direction == DirectionOutbound:
		e.sendCancel(sess)

	case state == SessionEstablishing && sess.direction == DirectionInbound:
		e.rejectInbound(sess, 486, "Busy Here")
	}

	e.finishSession(sess, nil)
	return nil
}

// sendCancel cancels a pending outbound INVITE. The CANCEL mirrors the
// INVITE's Call-ID, From and To so the far end can match it.
func (e *Engine) sendCancel(sess *callSession) {
	req := sess.inviteReq
	cancel := sip.NewRequest(sip.CANCEL, req.Recipient)
	cancel.SetTransport(req.Transport())

	if cid := req.CallID(); cid != nil {
		cancel.AppendHeader(sip.NewHeader("Call-ID", cid.Value()))
	}
	if from := req.From(); from != nil {
		cancel.AppendHeader(sip.NewHeader("From", from.Value()))
	}
	if to := req.To(); to != nil {
		cancel.AppendHeader(sip.NewHeader("To", to.Value()))
	}
	if cseq := req.CSeq(); cseq != nil {
		cancel.AppendHeader(&sip.CSeqHeader{SeqNo: cseq.SeqNo, MethodName: sip.CANCEL})
	}

	tx, err := e.client.TransactionRequest(context.Background(), cancel, sipgo.ClientRequestBuild)
	if err != nil {
		e.logger.Debug("sending cancel failed", "call", sess.id, "error", err)
		return
	}
	tx.Terminate()
}

// sendInDialog fires an in-dialog request and logs the outcome without
// blocking the caller.
func (e *Engine) sendInDialog(req *sip.Request, callID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), byeResponseTimeout)
		defer cancel()

		tx, err := e.client.TransactionRequest(ctx, req)
		if err != nil {
			e.logger.Debug("sending in-dialog request failed",
				"call", callID,
				"method", req.Method.String(),
				"error", err,
			)
			return
		}
		defer tx.Terminate()

		res, err := getResponse(ctx, tx)
		if err != nil {
			e.logger.Debug("in-dialog request got no response",
				"call", callID,
				"method", req.Method.String(),
				"error", err,
			)
			return
		}
		e.logger.Debug("in-dialog request answered",
			"call", callID,
			"method", req.Method.String(),
			"status", int(res.StatusCode),
		)
	}()
}

// Transfer performs a blind transfer of the established call to
// destination via an in-dialog REFER. A far-end rejection is returned as
// an error and leaves the session untouched; on acceptance the far end
// continues the transfer and ends the call with its own BYE.
func (e *Engine) Transfer(ctx context.Context, destination string) error {
	e.mu.Lock()
	sess := e.sess
	if sess == nil {
		e.mu.Unlock()
		return ErrNoActiveCall
	}
	if sess.state() != SessionEstablished {
		e.mu.Unlock()
		return ErrNotEstablished
	}
	if !destinationRe.MatchString(destination) {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrInvalidDestination, destination)
	}
	domain := e.settings.Domain
	refer := sess.newInDialogRequest(sip.REFER, e.ua.Hostname(), e.creds.Number)
	e.mu.Unlock()

	referTo := fmt.Sprintf("sip:%s@%s", destination, domain)
	refer.AppendHeader(sip.NewHeader("Refer-To", fmt.Sprintf("<%s>", referTo)))
	refer.AppendHeader(sip.NewHeader("Referred-By",
		fmt.Sprintf("<sip:%s@%s>", e.creds.Number, domain)))

	tx, err := e.client.TransactionRequest(ctx, refer)
	if err != nil {
		return fmt.Errorf("sending refer: %w", err)
	}
	defer tx.Terminate()

	res, err := getResponse(ctx, tx)
	if err != nil {
		return fmt.Errorf("waiting for refer response: %w", err)
	}
	if res.StatusCode >= 300 {
		return fmt.Errorf("transfer refused: %d %s", res.StatusCode, res.Reason)
	}

	e.logger.Info("transfer accepted", "call", sess.id, "target", destination)
	return nil
}

// ToggleMute flips the engine mute flag and applies it to the local
// outbound audio tracks only; the remote side keeps playing. Returns the
// new mute state.
func (e *Engine) ToggleMute() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess := e.sess
	if sess == nil || sess.state() != SessionEstablished {
		return false, ErrNotEstablished
	}

	e.muted = !e.muted
	for _, t := range sess.tracks.LocalAudioTracks() {
		t.SetEnabled(!e.muted)
	}
	return e.muted, nil
}

// Muted reports the engine mute flag.
func (e *Engine) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

// finishSession closes out a session: the state machine reaches
// Terminated, the media bridge is released, mute is reset and the session
// slot is freed. Stale calls, recognized by generation, are ignored; the
// live session already moved on.
func (e *Engine) finishSession(sess *callSession, cause error) {
	e.mu.Lock()
	if e.sess == nil || e.sess.generation != sess.generation {
		e.mu.Unlock()
		return
	}
	_ = sess.machine.Event(context.Background(), evFinish)
	e.sess = nil
	e.muted = false
	e.mu.Unlock()

	if sess.bridge != nil {
		sess.bridge.Close()
	}

	if cause != nil {
		e.logger.Warn("call ended with error", "call", sess.id, "error", cause)
		e.publish(Event{Kind: EventError, Err: cause, Generation: sess.generation, Number: sess.number})
	} else {
		e.logger.Info("call ended", "call", sess.id)
	}
	e.publishSessionState(sess, SessionTerminated)
}

// newInDialogRequest builds an in-dialog request oriented to the session's
// direction. localHost and localUser form the Contact for requests we
// originate as the called party.
func (s *callSession) newInDialogRequest(method sip.RequestMethod, localHost, localUser string) *sip.Request {
	if s.direction == DirectionOutbound {
		return inDialogFromUAC(s.inviteReq, s.inviteRes, method, s.nextCSeq())
	}
	return inDialogFromUAS(s.inviteReq, s.inviteRes, method, s.nextCSeq(), localHost, localUser)
}

// inDialogFromUAC builds an in-dialog request for a dialog we originated:
// the route set comes from the response's Record-Route, the target from
// its Contact, and From/To keep the INVITE's orientation.
func inDialogFromUAC(inviteReq *sip.Request, inviteRes *sip.Response, method sip.RequestMethod, seq uint32) *sip.Request {
	recipient := &inviteReq.Recipient
	if contact := inviteRes.Contact(); contact != nil {
		recipient = &contact.Address
	}

	req := sip.NewRequest(method, *recipient.Clone())
	req.SipVersion = inviteReq.SipVersion

	// Route set from Record-Route, reversed.
	recordRoutes := inviteRes.GetHeaders("Record-Route")
	for i := len(recordRoutes) - 1; i >= 0; i-- {
		if rr, ok := recordRoutes[i].(*sip.RecordRouteHeader); ok {
			req.AppendHeader(&sip.RouteHeader{Address: *rr.Address.Clone()})
		}
	}

	if h := inviteReq.From(); h != nil {
		req.AppendHeader(sip.HeaderClone(h))
	}
	if h := inviteRes.To(); h != nil {
		req.AppendHeader(sip.HeaderClone(h))
	} else if h := inviteReq.To(); h != nil {
		req.AppendHeader(sip.HeaderClone(h))
	}
	if h := inviteReq.CallID(); h != nil {
		req.AppendHeader(sip.HeaderClone(h))
	}
	req.AppendHeader(&sip.CSeqHeader{SeqNo: seq, MethodName: method})

	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)

	if h := inviteReq.Contact(); h != nil {
		req.AppendHeader(sip.HeaderClone(h))
	}

	req.SetTransport(inviteReq.Transport())
	return req
}

// inDialogFromUAS builds an in-dialog request for a dialog the far end
// originated: our identity comes from the To of our 200 (which carries our
// tag) and the target from the INVITE's Contact.
func inDialogFromUAS(inviteReq *sip.Request, inviteRes *sip.Response, method sip.RequestMethod, seq uint32, localHost, localUser string) *sip.Request {
	recipient := &inviteReq.Recipient
	if contact := inviteReq.Contact(); contact != nil {
		recipient = &contact.Address
	}

	req := sip.NewRequest(method, *recipient.Clone())
	req.SipVersion = inviteReq.SipVersion

	if h := inviteRes.To(); h != nil {
		req.AppendHeader(sip.NewHeader("From", h.Value()))
	}
	if h := inviteReq.From(); h != nil {
		req.AppendHeader(sip.NewHeader("To", h.Value()))
	}
	if h := inviteReq.CallID(); h != nil {
		req.AppendHeader(sip.HeaderClone(h))
	}
	req.AppendHeader(&sip.CSeqHeader{SeqNo: seq, MethodName: method})

	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)

	req.AppendHeader(sip.NewHeader("Contact",
		fmt.Sprintf("<sip:%s@%s>", localUser, localHost)))

	req.SetTransport(inviteReq.Transport())
	return req
}

// buildACKFor2xx builds the ACK confirming a 2xx response to our INVITE.
func buildACKFor2xx(inviteReq *sip.Request, inviteRes *sip.Response) *sip.Request {
	recipient := &inviteReq.Recipient
	if contact := inviteRes.Contact(); contact != nil {
		recipient = &contact.Address
	}

	ack := sip.NewRequest(sip.ACK, *recipient.Clone())
	ack.SipVersion = inviteReq.SipVersion

	if len(inviteReq.GetHeaders("Route")) > 0 {
		sip.CopyHeaders("Route", inviteReq, ack)
	}

	if h := inviteReq.From(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	// To carries the remote tag from the response.
	if h := inviteRes.To(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	if h := inviteReq.CallID(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	// Same sequence number as the INVITE, method changed to ACK.
	if h := inviteReq.CSeq(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	if cseq := ack.CSeq(); cseq != nil {
		cseq.MethodName = sip.ACK
	}

	maxFwd := sip.MaxForwardsHeader(70)
	ack.AppendHeader(&maxFwd)

	if h := inviteReq.Contact(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}

	ack.SetTransport(inviteReq.Transport())
	ack.SetSource(inviteReq.Source())
	return ack
}
