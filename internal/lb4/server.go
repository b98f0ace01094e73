package lb4

import (
	"net"
	"time"
)

// State is a Server's administrative state (§3 Server).
type State uint8

const (
	// StateActive servers are eligible for scheduling.
	StateActive State = iota + 1
	// StateDeactive servers are draining: never scheduled, but serve the
	// sessions they already own until those sessions end.
	StateDeactive
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDeactive:
		return "deactive"
	default:
		return unknownStr
	}
}

// Server is a backend endpoint: its forwarding mode, administrative state,
// scheduling weight, and the set of sessions currently bound to it (C4).
//
// A Server belongs to at most one Service, identified by which Service's
// PrivateInterfaces set contains the server's NIC. It is tracked in that
// Service's active or inactive list according to State, never both, never
// neither, for as long as such a Service exists.
type Server struct {
	Endpoint Endpoint
	Weight   int
	State    State
	Mode     ForwardMode
	// MAC is the link-layer address DR mode rewrites packets towards. Only
	// meaningful when Mode is DR.
	MAC net.HardwareAddr

	// Service is the server's sole service, nil if no service's
	// PrivateInterfaces currently covers this server's NIC.
	Service *Service

	modeName string
	sessions map[*Session]struct{}

	removeTimer TimerID
	freed       bool

	ifc    *Interface
	timers *Timers
}

// AddServer registers a new backend at ep with the given scheduling weight
// (negative weights are clamped to zero) and default state ACTIVE, mode NAT
// (§4.3 Construction). It is linked into the active list of the one
// existing Service (if any) whose PrivateInterfaces set contains ep.NIC.
func (r *Registry) AddServer(ep Endpoint, weight int) (*Server, error) {
	if weight < 0 {
		weight = 0
	}
	ifc := r.Interface(ep.NIC)
	if _, exists := ifc.Servers[ep.Key()]; exists {
		return nil, ErrDuplicateEndpoint
	}

	mode, err := NewForwardMode(ModeNAT, ep.Protocol)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		Endpoint: ep,
		Weight:   weight,
		State:    StateActive,
		Mode:     mode,
		modeName: ModeNAT,
		sessions: make(map[*Session]struct{}),
		ifc:      ifc,
		timers:   ifc.Timers,
	}
	ifc.Servers[ep.Key()] = srv

	for _, svc := range r.Services() {
		if svc.PrivateInterfaces.Has(ep.NIC) {
			svc.registerServer(srv)
			break
		}
	}
	return srv, nil
}

// RemoveServer begins or forces removal of the server at ep (§4.3 Graceful
// removal / Forced removal). now is the current time, used to arm any
// drain timer. force bypasses the grace period entirely.
func (r *Registry) RemoveServer(ep Endpoint, now time.Time, wait time.Duration, force bool) error {
	ifc := r.Interface(ep.NIC)
	srv, ok := ifc.Servers[ep.Key()]
	if !ok {
		return ErrNotFound
	}
	if force {
		srv.removeForce()
		return nil
	}
	srv.remove(now, wait)
	return nil
}

// ReactivateServer cancels any pending drain and returns the server to
// ACTIVE, re-admitting it to its service's active list (§5 Cancellation:
// "callers that need to cancel must do so by re-adding the server/service
// before the deadline elapses").
func (r *Registry) ReactivateServer(ep Endpoint) error {
	ifc := r.Interface(ep.NIC)
	srv, ok := ifc.Servers[ep.Key()]
	if !ok {
		return ErrNotFound
	}
	srv.reactivate()
	return nil
}

// Servers returns every registered server across every NIC, for
// administrative listings (§12 SUPPLEMENTED FEATURES: "server list dump").
func (r *Registry) Servers() []*Server {
	var out []*Server
	for _, ifc := range r.ifces {
		for _, srv := range ifc.Servers {
			out = append(out, srv)
		}
	}
	return out
}

// SetMode changes the server's forwarding mode, rejecting unknown names
// (§4.2: "must be rejected for unknown modes").
func (s *Server) SetMode(name string) error {
	mode, err := NewForwardMode(name, s.Endpoint.Protocol)
	if err != nil {
		return err
	}
	s.Mode = mode
	s.modeName = name
	return nil
}

// Live reports whether the server has not yet been force-removed. Session
// back-references must check this before dereferencing Mode or Endpoint
// (§9 Design Notes: invalidation-safe handle).
func (s *Server) Live() bool { return !s.freed }

// SessionCount returns the number of sessions currently bound to s, the
// cardinality the least-sessions discipline compares.
func (s *Server) SessionCount() int { return len(s.sessions) }

func (s *Server) addSession(sess *Session) {
	s.sessions[sess] = struct{}{}
}

func (s *Server) dropSession(sess *Session) {
	delete(s.sessions, sess)
}

// remove implements §4.3 Graceful removal.
func (s *Server) remove(now time.Time, wait time.Duration) {
	if len(s.sessions) == 0 {
		s.removeForce()
		return
	}
	s.State = StateDeactive
	if s.Service != nil {
		s.Service.demote(s)
	}
	if wait > 0 {
		s.removeTimer = s.timers.Add(now, wait, 0, serverForceDeadlineCallback, serverDrainCtx{server: s})
	} else {
		s.removeTimer = s.timers.Add(now, drainPollInterval, drainPollInterval, serverPollCallback, serverDrainCtx{server: s})
	}
}

// removeForce implements §4.3 Forced removal. Idempotent: a second call on
// an already-freed server is a no-op (§8 Round-trip: "Double-removal of a
// server with -f is a no-op on the second call").
func (s *Server) removeForce() {
	if s.freed {
		return
	}
	s.timers.Remove(s.removeTimer)
	s.removeTimer = 0

	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	for _, sess := range sessions {
		if s.Service != nil {
			s.Service.FreeSession(sess)
		} else if sess.table != nil {
			sess.table.Remove(sess)
		}
	}
	s.sessions = nil

	if s.Service != nil {
		s.Service.unregisterServer(s)
	}
	delete(s.ifc.Servers, s.Endpoint.Key())
	s.freed = true
}

func (s *Server) reactivate() {
	if s.freed {
		return
	}
	s.timers.Remove(s.removeTimer)
	s.removeTimer = 0
	s.State = StateActive
	if s.Service != nil {
		s.Service.promote(s)
	}
}

// ServerSnapshot is a read-only view of a Server for administrative
// listings (§12 SUPPLEMENTED FEATURES: "server list dump").
type ServerSnapshot struct {
	Endpoint Endpoint
	State    State
	Mode     string
	Weight   int
	Sessions int
}

// Snapshot returns a point-in-time copy of the server's observable state.
func (s *Server) Snapshot() ServerSnapshot {
	return ServerSnapshot{
		Endpoint: s.Endpoint,
		State:    s.State,
		Mode:     s.modeName,
		Weight:   s.Weight,
		Sessions: len(s.sessions),
	}
}
