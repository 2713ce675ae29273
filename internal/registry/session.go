// Package registry implements the in-memory session table (spec §3, §4.3):
// identity by id, ordered parameter bag, fd/handle ownership, and the
// monotonic Pending→Connecting→Active→Closing→Closed lifecycle.
//
// Grounded on internal/tunnel/session.go's Registry (mutex-guarded map,
// Register/Get/All) generalized from "one session per server id" to the
// full session model, and on spec.md's Design Notes §9, which calls out the
// teacher's process-wide singleton registry (internal/terminal/session.go's
// package-level var) as a wart: this Registry is always an explicit
// instance, constructed by the caller and passed into the control-plane
// client at Create time.
package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Kind is the session's protocol family (spec §3).
type Kind string

const (
	KindVNC    Kind = "vnc"
	KindRDP    Kind = "rdp"
	KindSSH    Kind = "ssh"
	KindSFTP   Kind = "sftp"
	KindTelnet Kind = "telnet"
	KindTunnel Kind = "tunnel"
)

// State is one point in the session lifecycle. Transitions are monotonic:
// there is no path back to an earlier state.
type State int32

const (
	StatePending State = iota
	StateConnecting
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MaxIDLength is the maximum byte length of a session id (spec §3).
const MaxIDLength = 63

// MaxParams is the maximum number of parameter-bag entries (spec §3).
const MaxParams = 64

// MaxSessions is the registry-wide capacity (spec §3, §8 boundary test).
const MaxSessions = 256

var (
	// ErrDuplicateID is returned by Create for an id already in the table.
	ErrDuplicateID = fmt.Errorf("registry: duplicate session id")
	// ErrFull is returned by Create when the registry already holds MaxSessions.
	ErrFull = fmt.Errorf("registry: maximum sessions reached")
	// ErrNotFound is returned by operations addressing a missing session id.
	ErrNotFound = fmt.Errorf("registry: session not found")
	// ErrTooManyParams is returned by AddParam past MaxParams entries.
	ErrTooManyParams = fmt.Errorf("registry: too many parameters")
)

// Closer is the protocol-specific cleanup a driver installs on its session;
// Registry.Remove and Destroy invoke it at most once.
type Closer func() error

// Session is one live (or winding-down) remote-access session. The worker
// goroutine spawned for it is the sole mutator of protocol-specific handles
// once the session reaches Connecting; all other fields on Session are
// either immutable after Create or internally synchronized.
type Session struct {
	ID   string
	Kind Kind
	Host string
	Port int

	state atomic.Int32

	mu         sync.Mutex
	params     map[string]string
	paramOrder []string
	closer     Closer
	closeOnce  sync.Once

	// ConnectionID is the graphical-proxy-assigned id returned to the
	// coordinator on SessionOpenResult so later SessionJoin requests can
	// address this session by it.
	ConnectionID string

	// Ctx/Cancel scope the session's worker goroutine; Cancel is invoked by
	// Registry.Remove/Destroy to unblock any I/O the worker is waiting on.
	Ctx    context.Context
	Cancel context.CancelFunc
}

func newSession(id string, kind Kind, host string, port int) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:     id,
		Kind:   kind,
		Host:   host,
		Port:   port,
		params: make(map[string]string),
		Ctx:    ctx,
		Cancel: cancel,
	}
	s.state.Store(int32(StatePending))
	return s
}

// State returns the session's current lifecycle state. Safe for concurrent
// use; readers that observe anything other than StateActive must treat the
// session as terminating (spec §5).
func (s *Session) State() State {
	return State(s.state.Load())
}

// SetState advances the session's lifecycle state. Only the session's own
// worker goroutine may call this after the session leaves Pending.
func (s *Session) SetState(st State) {
	s.state.Store(int32(st))
}

// SetCloser installs the protocol-specific cleanup invoked on removal.
func (s *Session) SetCloser(c Closer) {
	s.mu.Lock()
	s.closer = c
	s.mu.Unlock()
}

// Close runs the installed Closer exactly once, cancels the session's
// context, and reports the Closer's error (nil if none was installed).
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		c := s.closer
		s.mu.Unlock()
		s.Cancel()
		if c != nil {
			err = c()
		}
	})
	return err
}

// AddParam appends or updates a key in the session's ordered parameter bag.
func (s *Session) AddParam(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.params[key]; !exists && len(s.paramOrder) >= MaxParams {
		return ErrTooManyParams
	}
	if _, exists := s.params[key]; !exists {
		s.paramOrder = append(s.paramOrder, key)
	}
	s.params[key] = value
	return nil
}

// Param returns the value for key, or ("", false) when absent.
func (s *Session) Param(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.params[key]
	return v, ok
}

// ParamOr returns the value for key, or fallback when absent.
func (s *Session) ParamOr(key, fallback string) string {
	if v, ok := s.Param(key); ok {
		return v
	}
	return fallback
}

// Params returns a snapshot of the parameter bag in insertion order.
func (s *Session) Params() []KV {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]KV, 0, len(s.paramOrder))
	for _, k := range s.paramOrder {
		out = append(out, KV{Key: k, Value: s.params[k]})
	}
	return out
}

// KV is one ordered parameter-bag entry.
type KV struct {
	Key   string
	Value string
}

// Registry is the process-wide (but never package-global — see the package
// doc) table of active sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	max      int
}

// New returns an empty Registry capped at max sessions (0 means
// MaxSessions).
func New(max int) *Registry {
	if max <= 0 {
		max = MaxSessions
	}
	return &Registry{sessions: make(map[string]*Session), max: max}
}

// Create allocates and registers a new session in StatePending.
func (r *Registry) Create(id string, kind Kind, host string, port int) (*Session, error) {
	if len(id) == 0 || len(id) > MaxIDLength {
		return nil, fmt.Errorf("registry: invalid session id length %d", len(id))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[id]; exists {
		return nil, ErrDuplicateID
	}
	if len(r.sessions) >= r.max {
		return nil, ErrFull
	}
	s := newSession(id, kind, host, port)
	r.sessions[id] = s
	return s, nil
}

// Find returns the session for id, or (nil, false) when absent.
func (r *Registry) Find(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes id from the table and closes its session (idempotent: a
// missing id is a silent no-op, matching spec §8's SessionClose round-trip
// property).
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if ok {
		_ = s.Close()
	}
}

// Len returns the number of currently registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Destroy removes every session, closing each one's resources and
// releasing its parameter bag. After Destroy returns, the registry holds
// no sessions and can be reused (Create will succeed again).
func (r *Registry) Destroy() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		_ = s.Close()
	}
}
