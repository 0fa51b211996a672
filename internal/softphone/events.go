package softphone

// EventKind discriminates engine events.
type EventKind int

const (
	// EventConnectionState reports a registration state change.
	EventConnectionState EventKind = iota
	// EventSessionState reports a call session state change.
	EventSessionState
	// EventIncomingCall reports a new inbound call offer.
	EventIncomingCall
	// EventError reports a non-fatal protocol or registration error.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnectionState:
		return "connection_state"
	case EventSessionState:
		return "session_state"
	case EventIncomingCall:
		return "incoming_call"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single engine notification delivered to subscribers.
type Event struct {
	Kind            EventKind
	ConnectionState ConnectionState
	SessionState    SessionState
	// Generation identifies which session a session event belongs to.
	Generation uint64
	// Number is the remote party for session and incoming-call events.
	Number string
	Err    error
}

// Subscription is a registered event listener. Events arrive on C until
// Close is called or the engine shuts down, at which point C is closed.
type Subscription struct {
	C      <-chan Event
	cancel func()
}

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}
