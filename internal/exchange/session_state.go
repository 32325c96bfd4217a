package exchange

import (
	"errors"

	"github.com/google/uuid"
)

type SessionState int32

const (
	StateIdle SessionState = iota
	StateHandshaking
	StateConnected
	StateAuthenticating
	StateReady
	StateReconnecting
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type SessionEventKind int

const (
	SessionReady SessionEventKind = iota + 1
	SessionMessage
	SessionReconnecting
	SessionExhausted
	SessionClosed
)

func (k SessionEventKind) String() string {
	switch k {
	case SessionReady:
		return "ready"
	case SessionMessage:
		return "message"
	case SessionReconnecting:
		return "reconnecting"
	case SessionExhausted:
		return "exhausted"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionEvent то, что сессия отдаёт владельцу. Tag = account id или "feed".
type SessionEvent struct {
	Kind      SessionEventKind
	SessionID uuid.UUID
	Tag       string
	Frame     Frame // SessionMessage
	Attempt   int   // SessionReconnecting
	Err       error // SessionReconnecting, SessionExhausted
}

var (
	ErrNotReady         = errors.New("session is not ready")
	ErrRetriesExhausted = errors.New("session retries exhausted")
	ErrAlreadyStarted   = errors.New("session already started")

	errHandshakeTimeout = errors.New("probe handshake timeout")
	errServerClosed     = errors.New("server closed the session")
	errForcedReconnect  = errors.New("reconnect requested")
	errTooManyMalformed = errors.New("too many malformed frames")
)
