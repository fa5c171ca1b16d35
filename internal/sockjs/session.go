// Package sockjs implements the SockJS session layer and its transport
// handlers (spec.md §4.5), grounded on
// original_source/vase/sockjs/__init__.py's Session/SockJsHandler and
// original_source/vase/sockjs/handlers.py's per-transport handlers.
package sockjs

import (
	"context"
	"sync"

	"github.com/go-vase/vase/internal/endpoint"
)

// State is a session's position in the NEW -> OPEN -> (CLOSING ->
// CLOSED) | TERMINATED state machine (spec.md §4.5 "Session state
// machine").
type State int

const (
	StateNew State = iota
	StateOpen
	StateClosing
	StateClosed
	StateTerminated
)

// Waiter is a re-armable completion signal: a session-initiating poll
// parks on Chan() until Signal rearms it, used both for new outbound
// messages and for session close (spec.md §4.5 "Outbound wake-up").
type Waiter struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewWaiter returns an unsignaled waiter.
func NewWaiter() *Waiter { return &Waiter{ch: make(chan struct{})} }

// Chan returns the channel to select on; it closes exactly once per
// Signal call and is replaced immediately after.
func (w *Waiter) Chan() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ch
}

// Signal wakes any poll currently parked on Chan and rearms it for the
// next park.
func (w *Waiter) Signal() {
	w.mu.Lock()
	defer w.mu.Unlock()
	close(w.ch)
	w.ch = make(chan struct{})
}

// Session is one SockJS logical connection, addressed by its session
// id and shared across however many HTTP polls attach to it over its
// lifetime.
type Session struct {
	mu       sync.Mutex
	id       string
	state    State
	ep       endpoint.Base
	attached bool
	outbound []string
	waiter   *Waiter
}

func newSession(id string, ep endpoint.Base) *Session {
	return &Session{id: id, state: StateNew, ep: ep, waiter: NewWaiter()}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attached reports whether a session-initiating poll currently owns
// this session (spec.md §4.5 invariant: "at most one session-initiating
// poll is attached at a time").
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

// tryAttach attempts to attach a new session-initiating poll. Per
// spec.md §4.5 invariant #7 / E2E scenario #6, a second initiating poll
// arriving while one is already attached does NOT get torn down itself
// — instead it terminates the session and wakes the already-attached
// poll, which is the one that must deliver `c[2010]` and return; the
// triggering poll (and any later poll, since the session stays
// terminated) gets `c[1002]`.
func (s *Session) tryAttach() (ok bool, goAwayCode int) {
	s.mu.Lock()
	if s.attached {
		s.state = StateTerminated
		s.mu.Unlock()
		s.waiter.Signal()
		return false, 1002
	}
	if s.state == StateTerminated {
		s.mu.Unlock()
		return false, 1002
	}
	s.attached = true
	s.mu.Unlock()
	return true, 0
}

// detach clears the attached flag, called when the attached poll's
// connection is lost (spec.md §4.5).
func (s *Session) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = false
}

// markOpenIfNew transitions NEW -> OPEN, invoking on_connect exactly
// once, and reports whether this call performed that transition.
func (s *Session) markOpenIfNew(ctx context.Context, t endpoint.Transport) bool {
	s.mu.Lock()
	isNew := s.state == StateNew
	if isNew {
		s.state = StateOpen
	}
	s.mu.Unlock()
	if isNew {
		s.ep.OnConnect(ctx, t)
	}
	return isNew
}

// pushOutbound appends an outgoing message and wakes a parked poll
// (FakeTransport.send in the original).
func (s *Session) pushOutbound(msg string) {
	s.mu.Lock()
	s.outbound = append(s.outbound, msg)
	s.mu.Unlock()
	s.waiter.Signal()
}

// drainOutbound removes and returns every pending outbound message.
func (s *Session) drainOutbound() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.outbound
	s.outbound = nil
	return out
}

// closeFromApp transitions to CLOSING (FakeTransport.close in the
// original) and wakes any parked poll so it can deliver the go-away
// frame.
func (s *Session) closeFromApp() {
	s.mu.Lock()
	if s.state == StateOpen || s.state == StateNew {
		s.state = StateClosing
	}
	s.mu.Unlock()
	s.waiter.Signal()
}

// finishClose transitions CLOSING -> CLOSED, called by the poll that
// delivers the go-away frame.
func (s *Session) finishClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosing {
		s.state = StateClosed
	}
}

// consume delivers pending inbound messages to the endpoint in order
// (spec.md §4.5 "Inbound delivery"). Errors from OnMessage propagate to
// the caller, matching the WebSocket handler's "exceptions from the
// endpoint" handling in spirit, though a SockJS send-transport has no
// transport to close — it reports a 500 instead (see transports.go).
func (s *Session) consume(ctx context.Context, msgs []string) error {
	for _, m := range msgs {
		if err := s.ep.OnMessage(ctx, []byte(m)); err != nil {
			return err
		}
	}
	return nil
}

// Store holds sessions by id for one SockJS-registered endpoint.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore returns an empty session store.
func NewStore() *Store { return &Store{sessions: make(map[string]*Session)} }

// Get returns the session for id, if any.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

// GetOrCreate returns the existing session for id, or creates one with
// ep and stores it.
func (st *Store) GetOrCreate(id string, ep endpoint.Base) (sess *Session, created bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		return s, false
	}
	s := newSession(id, ep)
	st.sessions[id] = s
	return s, true
}
