package softphone

import "github.com/looplab/fsm"

// ConnectionState describes the registration lifecycle of an engine.
type ConnectionState int

const (
	ConnectionStopped ConnectionState = iota
	ConnectionStarting
	ConnectionStarted
	ConnectionStopping
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStopped:
		return "stopped"
	case ConnectionStarting:
		return "starting"
	case ConnectionStarted:
		return "started"
	case ConnectionStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// SessionState describes the lifecycle of a call session.
type SessionState int

const (
	SessionInitial SessionState = iota
	SessionEstablishing
	SessionEstablished
	SessionTerminating
	SessionTerminated
)

func (s SessionState) String() string {
	switch s {
	case SessionInitial:
		return "initial"
	case SessionEstablishing:
		return "establishing"
	case SessionEstablished:
		return "established"
	case SessionTerminating:
		return "terminating"
	case SessionTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Direction of a call session relative to the agent.
type Direction int

const (
	DirectionOutbound Direction = iota
	DirectionInbound
)

func (d Direction) String() string {
	if d == DirectionInbound {
		return "inbound"
	}
	return "outbound"
}

// AcceptPolicy controls how an engine handles inbound INVITEs.
type AcceptPolicy int

const (
	// AcceptPolicyAuto answers inbound calls as soon as they arrive.
	AcceptPolicyAuto AcceptPolicy = iota
	// AcceptPolicyManual parks inbound calls until Answer is called.
	AcceptPolicyManual
)

// FSM state and event names for the session machine.
const (
	fsmInitial      = "initial"
	fsmEstablishing = "establishing"
	fsmEstablished  = "established"
	fsmTerminating  = "terminating"
	fsmTerminated   = "terminated"

	evProceed   = "proceed"   // INVITE sent or received
	evEstablish = "establish" // 2xx confirmed
	evTerminate = "terminate" // BYE/CANCEL in flight
	evFinish    = "finish"    // session fully closed
)

// newSessionFSM builds the per-session state machine. Terminated is
// absorbing; evFinish is accepted from every live state so teardown
// paths never fight the machine.
func newSessionFSM() *fsm.FSM {
	return fsm.NewFSM(
		fsmInitial,
		fsm.Events{
			{Name: evProceed, Src: []string{fsmInitial}, Dst: fsmEstablishing},
			{Name: evEstablish, Src: []string{fsmEstablishing}, Dst: fsmEstablished},
			{Name: evTerminate, Src: []string{fsmEstablishing, fsmEstablished}, Dst: fsmTerminating},
			{Name: evFinish, Src: []string{fsmInitial, fsmEstablishing, fsmEstablished, fsmTerminating}, Dst: fsmTerminated},
		},
		fsm.Callbacks{},
	)
}

// sessionStateOf maps an FSM state name to the exported enum.
func sessionStateOf(name string) SessionState {
	switch name {
	case fsmEstablishing:
		return SessionEstablishing
	case fsmEstablished:
		return SessionEstablished
	case fsmTerminating:
		return SessionTerminating
	case fsmTerminated:
		return SessionTerminated
	default:
		return SessionInitial
	}
}
