// Package session tracks the single WhatsApp session's pairing and
// connection lifecycle. Writes happen only from the supervisor's dispatcher
// goroutine; reads come from the pipeline, the queue and the control plane.
package session

import "sync"

type State int

const (
	StateUninitialized State = iota
	StatePairing
	StateAuthenticated
	StateReady
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePairing:
		return "pairing"
	case StateAuthenticated:
		return "authenticated"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is the process-wide connection state machine. There are no
// terminal states: DISCONNECTED goes back to PAIRING or READY as the
// transport recovers.
type Session struct {
	mu          sync.RWMutex
	state       State
	pairingCode string
	ready       bool
}

func New() *Session {
	return &Session{state: StateUninitialized}
}

// OnPairingCode stores the freshly issued pairing code and enters PAIRING.
// Ignored once the session is already authenticated: late QR events from
// the provider must not regress the state.
func (s *Session) OnPairingCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAuthenticated || s.state == StateReady {
		return
	}
	s.state = StatePairing
	s.pairingCode = code
}

// OnAuthenticated moves to AUTHENTICATED. Provider events may repeat, so a
// second call is a no-op rather than an error.
func (s *Session) OnAuthenticated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAuthenticated || s.state == StateReady {
		return
	}
	s.state = StateAuthenticated
}

// OnReady marks the session usable for traffic. The pairing code is
// cleared: it is only visible between issuance and ready.
func (s *Session) OnReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateReady
	s.pairingCode = ""
	s.ready = true
}

// OnDisconnected drops readiness immediately so no send can observe a
// stale-true flag after the disconnect event is processed.
func (s *Session) OnDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateDisconnected
	s.ready = false
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// PairingCode returns the current pairing code, or "" outside the pairing
// window.
func (s *Session) PairingCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pairingCode
}

// IsReady is the single source of truth for whether the transport will
// accept sends.
func (s *Session) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}
