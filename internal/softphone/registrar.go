package softphone

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"
)

const (
	// registerExpiry is the registration lifetime requested from the PBX.
	registerExpiry = 600
	// unregisterTimeout bounds the best-effort un-REGISTER on Stop.
	unregisterTimeout = 5 * time.Second
)

// Registrar maintains a single operator registration against the PBX over
// WebSocket transport. State changes are pushed through the onState
// callback, never polled. A registration failure, initial or refresh,
// returns the registrar to Stopped; it never reconnects on its own.
type Registrar struct {
	ua       *sipgo.UserAgent
	client   *sipgo.Client
	settings SipSettings
	creds    AccountCredentials
	logger   *slog.Logger
	onState  func(state ConnectionState, err error)

	mu     sync.Mutex
	state  ConnectionState
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRegistrar creates a registration manager for one operator extension.
// onState receives every state transition; err is non-nil when the
// transition was caused by a failure.
func NewRegistrar(ua *sipgo.UserAgent, client *sipgo.Client, settings SipSettings, creds AccountCredentials, logger *slog.Logger, onState func(ConnectionState, error)) *Registrar {
	return &Registrar{
		ua:       ua,
		client:   client,
		settings: settings,
		creds:    creds,
		logger:   logger.With("subsystem", "registrar", "extension", creds.Number),
		onState:  onState,
		state:    ConnectionStopped,
	}
}

// State returns the current connection state.
func (r *Registrar) State() ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start begins registration. Calling Start while the registrar is already
// starting or started is a no-op.
func (r *Registrar) Start() {
	r.mu.Lock()
	if r.state != ConnectionStopped {
		r.mu.Unlock()
		return
	}
	r.state = ConnectionStarting
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	done := make(chan struct{})
	r.done = done
	r.mu.Unlock()

	r.onState(ConnectionStarting, nil)
	go r.run(ctx, done)
}

// Stop cancels the registration loop and sends a best-effort un-REGISTER.
// Stopping an already stopped registrar is a no-op.
func (r *Registrar) Stop() {
	r.mu.Lock()
	if r.state == ConnectionStopped || r.state == ConnectionStopping {
		r.mu.Unlock()
		return
	}
	wasStarted := r.state == ConnectionStarted
	r.state = ConnectionStopping
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	r.onState(ConnectionStopping, nil)
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	if wasStarted {
		ctx, cancelUnreg := context.WithTimeout(context.Background(), unregisterTimeout)
		if _, err := r.sendRegister(ctx, 0); err != nil {
			r.logger.Debug("un-register failed", "error", err)
		}
		cancelUnreg()
	}

	r.setState(ConnectionStopped, nil)
}

// run performs the initial registration and then refreshes it at 80% of
// the server-granted expiry. Any failure stops the loop; the operator
// restarts the engine manually.
func (r *Registrar) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	r.logger.Info("starting registration",
		"domain", r.settings.Domain,
		"port", r.settings.Port,
		"transport", r.settings.Transport,
	)

	granted, err := r.sendRegister(ctx, registerExpiry)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("registration failed", "error", err)
		r.setState(ConnectionStopped, fmt.Errorf("registration failed: %w", err))
		return
	}

	r.logger.Info("registered", "expires_in", granted)
	r.setState(ConnectionStarted, nil)

	for {
		// Refresh before expiry. 80% of the server-granted value leaves
		// headroom for network delays.
		refresh := time.Duration(float64(granted)*0.8) * time.Second
		select {
		case <-ctx.Done():
			return
		case <-time.After(refresh):
		}

		granted, err = r.sendRegister(ctx, registerExpiry)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("registration refresh failed", "error", err)
			r.setState(ConnectionStopped, fmt.Errorf("registration refresh failed: %w", err))
			return
		}
		r.logger.Debug("registration refreshed", "expires_in", granted)
	}
}

// setState records and publishes a state transition. Transitions to the
// current state are suppressed except when carrying an error.
func (r *Registrar) setState(state ConnectionState, err error) {
	r.mu.Lock()
	if r.state == state && err == nil {
		r.mu.Unlock()
		return
	}
	r.state = state
	r.mu.Unlock()
	r.onState(state, err)
}

// sendRegister sends a REGISTER with digest auth handling and returns the
// server-granted expiry. expiry 0 un-registers the contact.
func (r *Registrar) sendRegister(ctx context.Context, expiry int) (int, error) {
	recipientStr := fmt.Sprintf("sip:%s:%d", r.settings.Domain, r.settings.Port)
	var recipient sip.Uri
	if err := sip.ParseUri(recipientStr, &recipient); err != nil {
		return 0, fmt.Errorf("parsing recipient uri: %w", err)
	}

	req := sip.NewRequest(sip.REGISTER, recipient)
	req.SetTransport(r.settings.Transport)

	aor := fmt.Sprintf("<sip:%s@%s>", r.creds.Number, r.settings.Domain)
	req.AppendHeader(sip.NewHeader("From", aor))
	req.AppendHeader(sip.NewHeader("To", aor))

	contactURI := fmt.Sprintf("<sip:%s@%s>", r.creds.Number, r.ua.Hostname())
	req.AppendHeader(sip.NewHeader("Contact", contactURI))
	req.AppendHeader(sip.NewHeader("Expires", fmt.Sprintf("%d", expiry)))

	tx, err := r.client.TransactionRequest(ctx, req, sipgo.ClientRequestRegisterBuild)
	if err != nil {
		return 0, fmt.Errorf("sending register: %w", err)
	}

	res, err := getResponse(ctx, tx)
	tx.Terminate()
	if err != nil {
		return 0, fmt.Errorf("waiting for register response: %w", err)
	}

	if res.StatusCode == 401 || res.StatusCode == 407 {
		authReq, err := answerChallenge(req, res, recipientStr, r.creds)
		if err != nil {
			return 0, err
		}

		tx2, err := r.client.TransactionRequest(ctx, authReq,
			sipgo.ClientRequestIncreaseCSEQ,
			sipgo.ClientRequestAddVia,
		)
		if err != nil {
			return 0, fmt.Errorf("sending authenticated register: %w", err)
		}

		res, err = getResponse(ctx, tx2)
		tx2.Terminate()
		if err != nil {
			return 0, fmt.Errorf("waiting for authenticated register response: %w", err)
		}
	}

	if res.StatusCode != 200 {
		return 0, fmt.Errorf("register failed with status %d %s", res.StatusCode, res.Reason)
	}

	granted := expiry
	if contactHdr := res.GetHeader("Contact"); contactHdr != nil {
		if parsed := parseContactExpires(contactHdr.Value()); parsed > 0 {
			granted = parsed
		}
	} else if expiresHdr := res.GetHeader("Expires"); expiresHdr != nil {
		if parsed := parseExpiresHeader(expiresHdr.Value()); parsed > 0 {
			granted = parsed
		}
	}

	return granted, nil
}

// answerChallenge clones req with an Authorization (or Proxy-Authorization)
// header answering the digest challenge in res.
func answerChallenge(req *sip.Request, res *sip.Response, uri string, creds AccountCredentials) (*sip.Request, error) {
	authHeader := "WWW-Authenticate"
	authzHeader := "Authorization"
	if res.StatusCode == 407 {
		authHeader = "Proxy-Authenticate"
		authzHeader = "Proxy-Authorization"
	}

	challenge := res.GetHeader(authHeader)
	if challenge == nil {
		return nil, fmt.Errorf("received %d but no %s header", res.StatusCode, authHeader)
	}

	chal, err := digest.ParseChallenge(challenge.Value())
	if err != nil {
		return nil, fmt.Errorf("parsing auth challenge: %w", err)
	}

	cred, err := digest.Digest(chal, digest.Options{
		Method:   req.Method.String(),
		URI:      uri,
		Username: creds.Number,
		Password: creds.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("computing digest: %w", err)
	}

	authReq := req.Clone()
	authReq.RemoveHeader("Via")
	authReq.AppendHeader(sip.NewHeader(authzHeader, cred.String()))
	return authReq, nil
}

// getResponse waits for a final or provisional response on a client
// transaction, honoring context cancellation.
func getResponse(ctx context.Context, tx sip.ClientTransaction) (*sip.Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-tx.Done():
		return nil, fmt.Errorf("transaction terminated: %w", tx.Err())
	case res := <-tx.Responses():
		return res, nil
	}
}

// parseContactExpires extracts the expires parameter from a Contact header
// value such as <sip:user@host>;expires=3600. Returns 0 when absent.
func parseContactExpires(contactValue string) int {
	lower := strings.ToLower(contactValue)
	idx := strings.Index(lower, ";expires=")
	if idx < 0 {
		return 0
	}
	rest := contactValue[idx+len(";expires="):]

	end := strings.IndexAny(rest, ";,> \t")
	if end > 0 {
		rest = rest[:end]
	}

	val, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0
	}
	return val
}

// parseExpiresHeader parses an Expires header value. Returns 0 on failure.
func parseExpiresHeader(value string) int {
	val, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return val
}
