package lb4

import "time"

// DefaultSessionTimeout is the idle timeout applied to new sessions unless
// the owning Service specifies otherwise (§4.1: "Timeout default: 30s of
// idleness").
const DefaultSessionTimeout = 30 * time.Second

// finGrace is the grace period after both sides of a TCP flow have sent FIN
// before the session is freed (§4.1 set_fin: "a short (3ms) grace timer").
const finGrace = 3 * time.Millisecond

// Session is bidirectional flow state for one client<->backend pair
// (§3 Session).
type Session struct {
	// Private is the backend-facing endpoint after rewrite.
	Private Endpoint
	// Public is the client-facing endpoint before rewrite.
	Public Endpoint

	// Server is a non-owning reference to the server handling this
	// session. It must be validated with Server.Live before use: the
	// server may have been force-removed while sessions referencing it
	// still existed transiently (§9 Design Notes: generation-checked
	// handle).
	Server *Server

	// Service owns the free-session hook and default timeout for this
	// session.
	Service *Service

	// FIN is set once both directions of a TCP flow have signalled
	// termination. Unused for UDP.
	FIN bool

	// Data is forwarding-mode-specific session payload (e.g. NAT mapping
	// state). Populated by the mode's session_alloc factory.
	Data any

	timer TimerID
	table *SessionTable
}

// SessionTable is the per-NIC bidirectional keyed map of active flows
// (C2). A session is reachable by two keys — one from its public endpoint,
// one from its private endpoint — both pointing at the same *Session.
type SessionTable struct {
	byKey  map[Key]*Session
	timers *Timers
	clock  func() time.Time
}

// NewSessionTable creates an empty session table driven by timers.
func NewSessionTable(timers *Timers) *SessionTable {
	return &SessionTable{
		byKey:  make(map[Key]*Session),
		timers: timers,
		clock:  time.Now,
	}
}

// Len returns the number of distinct sessions (not map entries) in the
// table.
func (t *SessionTable) Len() int {
	seen := make(map[*Session]struct{}, len(t.byKey))
	for _, s := range t.byKey {
		seen[s] = struct{}{}
	}
	return len(seen)
}

// Lookup finds a session by its packed key, resetting its idle timer on a
// hit (§4.1 lookup). Queries on reply packets use the private key; queries
// on client packets use the public key.
func (t *SessionTable) Lookup(key Key) (*Session, bool) {
	s, ok := t.byKey[key]
	if !ok {
		return nil, false
	}
	t.Recharge(s)
	return s, true
}

// Insert registers a session under both its public and private keys
// atomically. Fails with ErrDuplicateEndpoint if either key is already
// occupied (§4.1 insert).
func (t *SessionTable) Insert(s *Session) error {
	pubKey, privKey := s.Public.Key(), s.Private.Key()
	if _, ok := t.byKey[pubKey]; ok {
		return ErrDuplicateEndpoint
	}
	if pubKey != privKey {
		if _, ok := t.byKey[privKey]; ok {
			return ErrDuplicateEndpoint
		}
	}
	t.byKey[pubKey] = s
	t.byKey[privKey] = s
	return nil
}

// Remove cancels the session's idle timer and unregisters both keys
// (§4.1 remove).
func (t *SessionTable) Remove(s *Session) {
	t.timers.Remove(s.timer)
	s.timer = 0
	delete(t.byKey, s.Public.Key())
	delete(t.byKey, s.Private.Key())
}

// Recharge arms the session's idle timer if none is active, or pushes its
// expiry forward otherwise. A no-op if the session is in FIN state
// (§4.1 recharge).
func (t *SessionTable) Recharge(s *Session) {
	if s.FIN {
		return
	}

	timeout := DefaultSessionTimeout
	if s.Service != nil && s.Service.Timeout > 0 {
		timeout = s.Service.Timeout
	}

	now := t.clock()
	if !t.timers.Active(s.timer) {
		s.timer = t.timers.Add(now, timeout, timeout, sessionExpireCallback, sessionExpireCtx{table: t, session: s})
		return
	}
	t.timers.Update(now, s.timer)
}

// SetFin cancels any prior timer on the session and arms the short FIN
// grace timer after which the session is freed (§4.1 set_fin).
func (t *SessionTable) SetFin(s *Session) {
	t.timers.Remove(s.timer)
	s.FIN = true
	s.timer = t.timers.Add(t.clock(), finGrace, 0, sessionExpireCallback, sessionExpireCtx{table: t, session: s})
}

// forwardMode returns the session's server's forwarding mode, or a mode
// that always drops if the server has since been force-removed (§9 Design
// Notes: the non-owning Server reference must be validated before use).
func (s *Session) forwardMode() ForwardMode {
	if s.Server == nil || !s.Server.Live() {
		return deadMode{}
	}
	return s.Server.Mode
}

type sessionExpireCtx struct {
	table   *SessionTable
	session *Session
}

// sessionExpireCallback is the top-level timer handler for idle/FIN-grace
// expiry (§9 Design Notes: nested timer callbacks re-expressed as top-level
// handlers plus an explicit context struct).
func sessionExpireCallback(ctx any) bool {
	c := ctx.(sessionExpireCtx)
	c.session.timer = 0
	if c.session.Service != nil {
		c.session.Service.FreeSession(c.session)
	} else {
		c.table.Remove(c.session)
	}
	return false
}
