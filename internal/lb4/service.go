package lb4

import "time"

// ServiceState is a Service's administrative state (§3 Service), distinct
// from a Server's State.
type ServiceState uint8

const (
	// ServiceOK services accept new flows.
	ServiceOK ServiceState = iota + 1
	// ServiceRemoving services are draining and schedule no new flows.
	ServiceRemoving
)

func (s ServiceState) String() string {
	switch s {
	case ServiceOK:
		return "ok"
	case ServiceRemoving:
		return "removing"
	default:
		return unknownStr
	}
}

// NICSet is an unordered collection of NICs, used for a Service's
// private-side interface mapping (§3 Service, §12 "multiple private
// interfaces per service").
type NICSet map[NIC]struct{}

// NewNICSet builds a NICSet from nics.
func NewNICSet(nics ...NIC) NICSet {
	s := make(NICSet, len(nics))
	for _, n := range nics {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether nic is a member of the set.
func (s NICSet) Has(nic NIC) bool {
	_, ok := s[nic]
	return ok
}

// Service is a virtual endpoint: the VIP, a scheduling discipline, the
// private-side interfaces its backends may live on, and the active/inactive
// partitioning of those backends (C5).
type Service struct {
	Public            Endpoint
	Discipline        Discipline
	PrivateInterfaces NICSet
	// Timeout is the idle timeout applied to sessions created for this
	// service; zero means DefaultSessionTimeout.
	Timeout time.Duration
	State   ServiceState

	active   []*Server
	inactive []*Server
	cursor   int

	removeTimer TimerID
	freed       bool

	ifc    *Interface
	timers *Timers
}

// AddService registers a new virtual service at pub, scheduling with
// discipline among backends on privateNICs (§4.4 Construction). Every
// pre-existing Server on one of privateNICs that is not already claimed by
// another service is classified into svc's active or inactive list
// immediately (§12: "servers registering into a service added after them").
func (r *Registry) AddService(pub Endpoint, discipline Discipline, privateNICs []NIC, timeout time.Duration) (*Service, error) {
	ifc := r.Interface(pub.NIC)
	if _, exists := ifc.Services[pub.Key()]; exists {
		return nil, ErrDuplicateEndpoint
	}

	svc := &Service{
		Public:            pub,
		Discipline:        discipline,
		PrivateInterfaces: NewNICSet(privateNICs...),
		Timeout:           timeout,
		State:             ServiceOK,
		ifc:               ifc,
		timers:            ifc.Timers,
	}
	ifc.Services[pub.Key()] = svc

	for _, nic := range privateNICs {
		pifc := r.Interface(nic)
		for _, srv := range pifc.Servers {
			if srv.Service == nil {
				svc.registerServer(srv)
			}
		}
	}
	return svc, nil
}

// RemoveService begins or forces removal of the service at pub, mirroring
// RemoveServer at the service granularity (§4.6).
func (r *Registry) RemoveService(pub Endpoint, now time.Time, wait time.Duration, force bool) error {
	ifc := r.Interface(pub.NIC)
	svc, ok := ifc.Services[pub.Key()]
	if !ok {
		return ErrNotFound
	}
	if force {
		svc.removeForce()
		return nil
	}
	svc.remove(now, wait)
	return nil
}

// Services returns every registered service across every NIC, for
// administrative listings (§12 SUPPLEMENTED FEATURES: "service list dump").
func (r *Registry) Services() []*Service {
	var out []*Service
	for _, ifc := range r.ifces {
		for _, svc := range ifc.Services {
			out = append(out, svc)
		}
	}
	return out
}

// ServiceByKey looks up the service at pub, if any.
func (r *Registry) ServiceByKey(pub Endpoint) (*Service, bool) {
	ifc := r.Interface(pub.NIC)
	svc, ok := ifc.Services[pub.Key()]
	return svc, ok
}

func (svc *Service) registerServer(srv *Server) {
	srv.Service = svc
	if srv.State == StateActive {
		svc.active = append(svc.active, srv)
	} else {
		svc.inactive = append(svc.inactive, srv)
	}
}

func (svc *Service) unregisterServer(srv *Server) {
	svc.active = removeServer(svc.active, srv)
	svc.inactive = removeServer(svc.inactive, srv)
	srv.Service = nil
}

func (svc *Service) demote(srv *Server) {
	svc.active = removeServer(svc.active, srv)
	svc.inactive = append(svc.inactive, srv)
}

func (svc *Service) promote(srv *Server) {
	svc.inactive = removeServer(svc.inactive, srv)
	svc.active = append(svc.active, srv)
}

func removeServer(list []*Server, target *Server) []*Server {
	out := list[:0]
	for _, s := range list {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

func (svc *Service) sessionCount() int {
	n := 0
	for _, s := range svc.active {
		n += len(s.sessions)
	}
	for _, s := range svc.inactive {
		n += len(s.sessions)
	}
	return n
}

// NewFlow schedules a backend for client and allocates, inserts, and binds
// the resulting Session (§4.4 Session allocation). Returns ErrNoActiveServer
// if the service is removing or has no active backend.
func (svc *Service) NewFlow(client Endpoint, table *SessionTable) (*Session, error) {
	if svc.State != ServiceOK {
		return nil, ErrNoActiveServer
	}
	srv := Schedule(svc, client.Addr)
	if srv == nil {
		return nil, ErrNoActiveServer
	}

	sess := srv.Mode.AllocSession(client, svc.Public, srv)
	sess.Service = svc
	if err := table.Insert(sess); err != nil {
		return nil, err
	}
	sess.table = table
	srv.addSession(sess)
	table.Recharge(sess)
	return sess, nil
}

// FreeSession is the free-session hook (§4.1, §4.3): it unregisters the
// session from its table and unlinks it from its server's session set.
func (svc *Service) FreeSession(s *Session) {
	if s.table != nil {
		s.table.Remove(s)
	}
	if s.Server != nil {
		s.Server.dropSession(s)
	}
}

// remove implements §4.6 Graceful removal at the service granularity.
func (svc *Service) remove(now time.Time, wait time.Duration) {
	if svc.sessionCount() == 0 {
		svc.removeForce()
		return
	}
	svc.State = ServiceRemoving
	if wait > 0 {
		svc.removeTimer = svc.timers.Add(now, wait, 0, serviceForceDeadlineCallback, serviceDrainCtx{service: svc})
	} else {
		svc.removeTimer = svc.timers.Add(now, drainPollInterval, drainPollInterval, servicePollCallback, serviceDrainCtx{service: svc})
	}
}

// removeForce implements §4.6 Forced removal at the service granularity.
// Idempotent, matching Server.removeForce.
func (svc *Service) removeForce() {
	if svc.freed {
		return
	}
	svc.timers.Remove(svc.removeTimer)
	svc.removeTimer = 0

	all := make([]*Server, 0, len(svc.active)+len(svc.inactive))
	all = append(all, svc.active...)
	all = append(all, svc.inactive...)
	for _, s := range all {
		sessions := make([]*Session, 0, len(s.sessions))
		for sess := range s.sessions {
			sessions = append(sessions, sess)
		}
		for _, sess := range sessions {
			svc.FreeSession(sess)
		}
		s.Service = nil
	}
	svc.active = nil
	svc.inactive = nil

	delete(svc.ifc.Services, svc.Public.Key())
	svc.freed = true
}

// ServiceSnapshot is a read-only view of a Service for administrative
// listings (§12 SUPPLEMENTED FEATURES: "service list dump").
type ServiceSnapshot struct {
	Public     Endpoint
	Discipline Discipline
	State      ServiceState
	Active     []ServerSnapshot
	Inactive   []ServerSnapshot
}

// Snapshot returns a point-in-time copy of the service's observable state.
func (svc *Service) Snapshot() ServiceSnapshot {
	snap := ServiceSnapshot{Public: svc.Public, Discipline: svc.Discipline, State: svc.State}
	for _, s := range svc.active {
		snap.Active = append(snap.Active, s.Snapshot())
	}
	for _, s := range svc.inactive {
		snap.Inactive = append(snap.Inactive, s.Snapshot())
	}
	return snap
}
