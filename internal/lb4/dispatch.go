package lb4

import (
	"net/netip"
	"time"
)

// Dispatcher implements C8: per-packet classification and routing across a
// Registry's services, sessions, and forwarding modes. One Dispatcher
// serves one NIC worker loop; it and the Timers it ticks must never be
// called from more than one goroutine at a time (§5 Concurrency model).
type Dispatcher struct {
	Registry *Registry
	clock    func() time.Time
}

// NewDispatcher creates a Dispatcher over reg.
func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{Registry: reg, clock: time.Now}
}

// Result is the outcome of dispatching one packet.
type Result struct {
	// Packet is the rewritten frame to transmit. Nil if Drop is true.
	Packet []byte
	// NIC is the interface Packet must be sent on.
	NIC NIC
	// Drop indicates the packet was consumed without producing output
	// (no match, scheduling failure, or a administrative/control frame).
	Drop bool

	// Service and Mode identify the flow a forwarded packet belonged to,
	// for callers that record per-service metrics. Zero value when Drop
	// is true.
	Service netip.AddrPort
	Mode    string
}

// Step processes one packet received on nic (§4.7):
//
//  1. If its source tuple matches a Session's private key, treat it as a
//     server->client reply along that session.
//  2. Else if it matches a Service's public endpoint on nic, treat it as
//     client->VIP: forward along an existing session, or schedule one.
//  3. Else drop it (administrative protocols such as ARP/ICMP are handled
//     by the out-of-scope NIC layer, not here).
//
// Both branches key the session lookup by the packet's own source tuple
// rather than its destination: a reply is always sent BY the backend, so
// its source is invariantly the backend's own (private-key) address
// regardless of forwarding mode, while a request's source is invariantly
// the client's (public-key) address. Keying on destination instead would
// require mode-specific handling, since NAT and DNAT disagree on where a
// reply is addressed (the VIP under NAT, which masquerades the request's
// source; the client under DNAT).
//
// The reply check runs first and is pinned to the session's private key
// specifically (not just "any hit"): under a NAT-masqueraded service, a
// reply's destination is the VIP itself, which would otherwise also pass
// the service-match test in step 2 and be misread as a new client flow.
func (d *Dispatcher) Step(nic NIC, raw []byte) (Result, error) {
	dec, err := decodeFrame(raw)
	if err != nil {
		return Result{Drop: true}, nil
	}
	proto, srcPort, dstPort, err := dec.ports()
	if err != nil {
		return Result{Drop: true}, nil
	}
	srcAddr, dstAddr := dec.addresses()

	ifc := d.Registry.Interface(nic)
	srcKey := NewKey(proto, srcAddr, srcPort)
	dstKey := NewKey(proto, dstAddr, dstPort)

	if sess, found := ifc.Sessions.Lookup(srcKey); found && sess.Private.Key() == srcKey {
		out, ferr := d.forwardLeg(dec, raw, ifc, sess, false)
		if ferr != nil {
			return Result{Drop: true}, ferr
		}
		return sessionResult(out, sess.Public.NIC, sess), nil
	}

	if svc, isService := ifc.Services[dstKey]; isService {
		sess, found := ifc.Sessions.Lookup(srcKey)
		if !found {
			client := Endpoint{NIC: nic, Protocol: proto, Addr: srcAddr, Port: srcPort}
			var allocErr error
			sess, allocErr = svc.NewFlow(client, ifc.Sessions)
			if allocErr != nil {
				return Result{Drop: true}, allocErr
			}
		}
		out, ferr := d.forwardLeg(dec, raw, ifc, sess, true)
		if ferr != nil {
			return Result{Drop: true}, ferr
		}
		return sessionResult(out, sess.Private.NIC, sess), nil
	}

	return Result{Drop: true}, ErrSessionMiss
}

// sessionResult builds the successful-forward Result, attaching the
// service/mode labels a caller's metrics collector needs.
func sessionResult(out []byte, nic NIC, sess *Session) Result {
	r := Result{Packet: out, NIC: nic}
	if sess.Service != nil {
		r.Service = netip.AddrPortFrom(sess.Service.Public.Addr, sess.Service.Public.Port)
	}
	if sess.Server != nil {
		r.Mode = sess.Server.Mode.Name()
	}
	return r
}

// forwardLeg rewrites raw for one leg of sess's flow and, for TCP flows
// that have just signalled termination, arms the FIN grace timer
// (§4.1 set_fin) instead of the ordinary idle recharge.
func (d *Dispatcher) forwardLeg(dec *decoded, raw []byte, ifc *Interface, sess *Session, clientToServer bool) ([]byte, error) {
	out, err := sess.forwardMode().Forward(raw, sess, clientToServer)
	if err != nil {
		return nil, err
	}
	if dec.tcp != nil && (dec.tcp.FIN || dec.tcp.RST) {
		ifc.Sessions.SetFin(sess)
	}
	return out, nil
}
