package softphone

import "errors"

// Sentinel errors returned by engine operations.
var (
	// ErrNotConfigured means the system config or the agent row is missing
	// the SIP settings needed to register.
	ErrNotConfigured = errors.New("sip settings not configured")
	// ErrNotRegistered means the operation requires an active registration.
	ErrNotRegistered = errors.New("softphone not registered")
	// ErrCallInProgress means a call session already exists; calls are
	// never queued.
	ErrCallInProgress = errors.New("call already in progress")
	// ErrNoActiveCall means the operation requires a live session.
	ErrNoActiveCall = errors.New("no active call")
	// ErrNotEstablished means the operation requires a connected call.
	ErrNotEstablished = errors.New("call not established")
	// ErrNoPendingCall means there is no parked inbound call to answer.
	ErrNoPendingCall = errors.New("no pending inbound call")
	// ErrInvalidDestination means the dial or transfer target does not
	// form a valid SIP URI.
	ErrInvalidDestination = errors.New("invalid destination")
	// ErrNoCallContext means there is no call to file a disposition for.
	ErrNoCallContext = errors.New("no call context")
	// ErrInvalidDisposition means the status is not a recognized value.
	ErrInvalidDisposition = errors.New("invalid disposition status")
	// ErrEngineClosed means the engine has been shut down.
	ErrEngineClosed = errors.New("engine closed")
)
