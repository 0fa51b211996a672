// Package softphone embeds a SIP user agent per console operator: it
// registers the operator's extension against the PBX over WebSocket,
// drives at most one call session at a time and tracks the call context
// the operator files dispositions against.
package softphone

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/dialdesk/dialdesk/internal/database"
	"github.com/dialdesk/dialdesk/internal/database/models"
	"github.com/dialdesk/dialdesk/internal/media"
)

// Archiver mirrors filed call logs to an external store. Archive failures
// are logged and never block the operator.
type Archiver interface {
	ArchiveCallLog(ctx context.Context, log *models.CallLog) error
}

// EngineOptions configures engine construction.
type EngineOptions struct {
	// Policy selects inbound call handling. Default answers immediately.
	Policy AcceptPolicy
	// LocalIP is the address RTP sockets bind to.
	LocalIP string
	// RTPPorts is the port range media bridges allocate from.
	RTPPorts media.PortRange
	// NewSource and NewSink create the audio devices for each call.
	NewSource func() media.AudioSource
	NewSink   func() media.AudioSink
	// Archiver optionally mirrors call logs; nil disables archiving.
	Archiver Archiver
}

func (o *EngineOptions) fillDefaults() {
	if o.LocalIP == "" {
		o.LocalIP = "127.0.0.1"
	}
	if o.RTPPorts.Min == 0 {
		o.RTPPorts = media.PortRange{Min: 10000, Max: 20000}
	}
	if o.NewSource == nil {
		o.NewSource = func() media.AudioSource { return media.SilenceSource{} }
	}
	if o.NewSink == nil {
		o.NewSink = func() media.AudioSink { return media.DiscardSink{} }
	}
}

// sipClient covers the sipgo.Client surface the engine sends requests
// through. Tests substitute a recording client.
type sipClient interface {
	TransactionRequest(ctx context.Context, req *sip.Request, options ...sipgo.ClientRequestOption) (sip.ClientTransaction, error)
	WriteRequest(req *sip.Request, options ...sipgo.ClientRequestOption) error
	Close() error
}

// Engine is one operator's softphone. It owns the SIP user agent, the
// registration lifecycle and the single call session slot. All methods
// are safe for concurrent use.
type Engine struct {
	agent    *models.Agent
	settings SipSettings
	creds    AccountCredentials
	calls    database.CallLogRepository
	archiver Archiver
	opts     EngineOptions
	logger   *slog.Logger

	ua        *sipgo.UserAgent
	client    sipClient
	server    *sipgo.Server
	registrar *Registrar

	mu         sync.Mutex
	closed     bool
	sess       *callSession
	generation uint64
	muted      bool
	callCtx    *CallContext

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewEngine creates a softphone engine for one operator. The SIP stack is
// not built until Start.
func NewEngine(agent *models.Agent, settings SipSettings, creds AccountCredentials, calls database.CallLogRepository, opts EngineOptions, logger *slog.Logger) *Engine {
	opts.fillDefaults()
	return &Engine{
		agent:    agent,
		settings: settings,
		creds:    creds,
		calls:    calls,
		archiver: opts.Archiver,
		opts:     opts,
		logger: logger.With(
			"subsystem", "softphone",
			"agent", agent.Username,
		),
		subs: make(map[int]chan Event),
	}
}

// Agent returns the operator this engine belongs to.
func (e *Engine) Agent() *models.Agent { return e.agent }

// Start brings up the SIP stack on first use and begins registration.
// Starting an engine that is already starting or started is a no-op.
// Registration failures arrive through the event stream; the engine does
// not reconnect on its own.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	if e.registrar == nil {
		if err := e.buildStack(); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	registrar := e.registrar
	e.mu.Unlock()

	registrar.Start()
	return nil
}

// buildStack creates the user agent, client, server and registrar.
// Inbound requests arrive over the WebSocket connection the client
// establishes and are dispatched to the server handlers. Caller holds e.mu.
func (e *Engine) buildStack() error {
	ua, err := sipgo.NewUA(
		sipgo.WithUserAgent("DialDesk"),
		sipgo.WithUserAgentHostname(e.settings.Domain),
	)
	if err != nil {
		return fmt.Errorf("creating sip user agent: %w", err)
	}

	client, err := sipgo.NewClient(ua,
		sipgo.WithClientLogger(e.logger),
	)
	if err != nil {
		ua.Close()
		return fmt.Errorf("creating sip client: %w", err)
	}

	server, err := sipgo.NewServer(ua,
		sipgo.WithServerLogger(e.logger),
	)
	if err != nil {
		client.Close()
		ua.Close()
		return fmt.Errorf("creating sip server: %w", err)
	}

	server.OnInvite(e.handleInvite)
	server.OnAck(e.handleAck)
	server.OnBye(e.handleBye)
	server.OnCancel(e.handleCancel)

	e.ua = ua
	e.client = client
	e.server = server
	e.registrar = NewRegistrar(ua, client, e.settings, e.creds, e.logger, e.onConnectionState)
	return nil
}

// onConnectionState forwards registrar transitions to subscribers.
func (e *Engine) onConnectionState(state ConnectionState, err error) {
	if err != nil {
		e.publish(Event{Kind: EventError, Err: err})
	}
	e.publish(Event{Kind: EventConnectionState, ConnectionState: state})
}

// Stop hangs up any live call and unregisters. Stopping a stopped engine
// is a no-op. The call context is kept; an interrupted call still needs
// its disposition.
func (e *Engine) Stop() {
	e.mu.Lock()
	registrar := e.registrar
	hasCall := e.sess != nil
	e.mu.Unlock()

	if hasCall {
		if err := e.Hangup(); err != nil {
			e.logger.Debug("hangup during stop failed", "error", err)
		}
	}
	if registrar != nil {
		registrar.Stop()
	}
}

// ConnectionState returns the registration state.
func (e *Engine) ConnectionState() ConnectionState {
	e.mu.Lock()
	registrar := e.registrar
	e.mu.Unlock()
	if registrar == nil {
		return ConnectionStopped
	}
	return registrar.State()
}

// EngineState is a point-in-time snapshot for the control surface.
type EngineState struct {
	AgentID         int64           `json:"agent_id"`
	ConnectionState ConnectionState `json:"-"`
	SessionState    SessionState    `json:"-"`
	Connection      string          `json:"connection_state"`
	Session         string          `json:"session_state"`
	Direction       string          `json:"direction,omitempty"`
	Number          string          `json:"number,omitempty"`
	Muted           bool            `json:"muted"`
	PendingAnswer   bool            `json:"pending_answer"`
	Context         *CallContext    `json:"call_context,omitempty"`
}

// State snapshots the engine for the control surface.
func (e *Engine) State() EngineState {
	conn := e.ConnectionState()

	e.mu.Lock()
	defer e.mu.Unlock()

	st := EngineState{
		AgentID:         e.agent.ID,
		ConnectionState: conn,
		Connection:      conn.String(),
		SessionState:    SessionInitial,
		Session:         SessionInitial.String(),
		Muted:           e.muted,
	}
	if e.sess != nil {
		st.SessionState = e.sess.state()
		st.Session = st.SessionState.String()
		st.Direction = e.sess.direction.String()
		st.Number = e.sess.number
		st.PendingAnswer = e.sess.direction == DirectionInbound &&
			!e.sess.answered && st.SessionState == SessionEstablishing
	}
	if e.callCtx != nil {
		cc := *e.callCtx
		st.Context = &cc
	}
	return st
}

// Subscribe registers an event listener. The subscription must be closed
// when no longer needed; the engine closes all remaining subscriptions on
// shutdown.
func (e *Engine) Subscribe() *Subscription {
	ch := make(chan Event, 16)

	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()

	var once sync.Once
	return &Subscription{
		C: ch,
		cancel: func() {
			once.Do(func() {
				e.subMu.Lock()
				if _, ok := e.subs[id]; ok {
					delete(e.subs, id)
					close(ch)
				}
				e.subMu.Unlock()
			})
		},
	}
}

// publish fans an event out to all subscribers. Slow subscribers drop
// events rather than stall the signaling path.
func (e *Engine) publish(ev Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for id, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.logger.Debug("dropping event for slow subscriber",
				"subscriber", id,
				"kind", ev.Kind.String(),
			)
		}
	}
}

// publishSessionState emits a session state event tagged with the
// session's generation.
func (e *Engine) publishSessionState(sess *callSession, state SessionState) {
	e.publish(Event{
		Kind:         EventSessionState,
		SessionState: state,
		Generation:   sess.generation,
		Number:       sess.number,
	})
}

// Close shuts the engine down: live call hung up, registration removed,
// SIP stack closed and every subscription released.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.Stop()

	e.mu.Lock()
	if e.server != nil {
		e.server.Close()
	}
	if e.client != nil {
		e.client.Close()
	}
	if e.ua != nil {
		e.ua.Close()
	}
	e.mu.Unlock()

	e.subMu.Lock()
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
	e.subMu.Unlock()
}

// Manager owns one engine per operator. Engines are created lazily on
// first use with settings resolved at that moment; a missing SIP
// configuration refuses engine creation with ErrNotConfigured.
type Manager struct {
	resolver *Resolver
	agents   database.AgentRepository
	calls    database.CallLogRepository
	opts     EngineOptions
	logger   *slog.Logger

	mu      sync.Mutex
	engines map[int64]*Engine
	closed  bool
}

// NewManager creates the engine registry.
func NewManager(resolver *Resolver, agents database.AgentRepository, calls database.CallLogRepository, opts EngineOptions, logger *slog.Logger) *Manager {
	return &Manager{
		resolver: resolver,
		agents:   agents,
		calls:    calls,
		opts:     opts,
		logger:   logger.With("subsystem", "engine-manager"),
		engines:  make(map[int64]*Engine),
	}
}

// Engine returns the operator's engine, creating it on first use.
func (m *Manager) Engine(ctx context.Context, agentID int64) (*Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrEngineClosed
	}
	if eng, ok := m.engines[agentID]; ok {
		return eng, nil
	}

	agent, err := m.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("loading agent %d: %w", agentID, err)
	}
	if agent == nil {
		return nil, fmt.Errorf("agent %d not found", agentID)
	}

	settings, creds, ok, err := m.resolver.Resolve(ctx, agent)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotConfigured
	}

	eng := NewEngine(agent, settings, creds, m.calls, m.opts, m.logger)
	m.engines[agentID] = eng
	return eng, nil
}

// Lookup returns the operator's engine if one exists.
func (m *Manager) Lookup(agentID int64) (*Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eng, ok := m.engines[agentID]
	return eng, ok
}

// Engines returns all live engines, for metrics and shutdown.
func (m *Manager) Engines() []*Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Engine, 0, len(m.engines))
	for _, eng := range m.engines {
		out = append(out, eng)
	}
	return out
}

// Release closes and removes the operator's engine. Settings are
// re-resolved when a new engine is created.
func (m *Manager) Release(agentID int64) {
	m.mu.Lock()
	eng, ok := m.engines[agentID]
	delete(m.engines, agentID)
	m.mu.Unlock()
	if ok {
		eng.Close()
	}
}

// Close shuts down every engine.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	engines := make([]*Engine, 0, len(m.engines))
	for id, eng := range m.engines {
		engines = append(engines, eng)
		delete(m.engines, id)
	}
	m.mu.Unlock()

	for _, eng := range engines {
		eng.Close()
	}
}
