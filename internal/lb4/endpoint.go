package lb4

import (
	"encoding/binary"
	"net/netip"

	"github.com/gopacket/gopacket/layers"
)

// -------------------------------------------------------------------------
// Protocol
// -------------------------------------------------------------------------

// Protocol is the transport protocol of an Endpoint (§3 Endpoint).
type Protocol uint8

const (
	// TCP identifies a TCP endpoint.
	TCP Protocol = iota + 1
	// UDP identifies a UDP endpoint.
	UDP
)

// String returns the human-readable protocol name.
func (p Protocol) String() string {
	switch p {
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	default:
		return unknownStr
	}
}

// IPProtocol converts to the gopacket/layers IP protocol number used when
// decoding and re-serializing the transport header.
func (p Protocol) IPProtocol() layers.IPProtocol {
	switch p {
	case UDP:
		return layers.IPProtocolUDP
	default:
		return layers.IPProtocolTCP
	}
}

// ParseProtocol maps the CLI's "-t"/"-u" flags, spelled out as "tcp"/"udp",
// to a Protocol.
func ParseProtocol(name string) (Protocol, error) {
	switch name {
	case "tcp":
		return TCP, nil
	case "udp":
		return UDP, nil
	default:
		return 0, ErrUnknownProtocol
	}
}

const unknownStr = "unknown"

// -------------------------------------------------------------------------
// Key — §3 "Keys throughout the system pack (protocol, addr, port) into a
// single 64-bit value: proto<<48 | addr<<16 | port"
// -------------------------------------------------------------------------

// Key is the packed (protocol, address, port) lookup key used by every map
// in this package.
type Key uint64

// NewKey packs a protocol, IPv4 address, and port into a Key.
func NewKey(proto Protocol, addr netip.Addr, port uint16) Key {
	a4 := addr.As4()
	addr32 := binary.BigEndian.Uint32(a4[:])
	return Key(uint64(proto)<<48 | uint64(addr32)<<16 | uint64(port))
}

// -------------------------------------------------------------------------
// Endpoint — §3 "Immutable 4-tuple: owning interface reference, protocol,
// IPv4 address, port."
// -------------------------------------------------------------------------

// Endpoint is an immutable (NIC, protocol, address, port) tuple.
type Endpoint struct {
	NIC      NIC
	Protocol Protocol
	Addr     netip.Addr
	Port     uint16
}

// Key returns the packed lookup key for this endpoint.
func (e Endpoint) Key() Key {
	return NewKey(e.Protocol, e.Addr, e.Port)
}

// -------------------------------------------------------------------------
// NIC — §6 "NIC contract" (external collaborator)
// -------------------------------------------------------------------------

// NIC is the external network-interface contract this package consumes. An
// implementation owns the physical/virtual packet source and sink; this
// package never constructs one. See internal/netio for a concrete
// AF_PACKET-backed implementation.
//
// NIC values must be comparable (used as Registry/Interface map keys);
// concrete implementations should therefore be pointer types.
type NIC interface {
	// Name identifies the interface for logging and admin listings.
	Name() string

	// HasInput reports whether a packet is ready to be read without
	// blocking (§6 NIC contract: has_input).
	HasInput() bool

	// Input reads one packet; ok is false if none was available (§6: input).
	Input() (pkt []byte, ok bool)

	// Output transmits pkt on this interface (§6: output). The callee does
	// not retain pkt past the call.
	Output(pkt []byte) error
}

// -------------------------------------------------------------------------
// Interface — C1 per-NIC association bundle
// -------------------------------------------------------------------------

// Interface bundles the three named mappings a NIC carries: SERVERS,
// SERVICES, and SESSIONS (§3 Interface). Created lazily by Registry on
// first insertion, destroyed when empty and the owning NIC is torn down.
type Interface struct {
	nic      NIC
	Servers  map[Key]*Server
	Services map[Key]*Service
	Sessions *SessionTable
	Timers   *Timers

	// pause carries administrative quiesce requests; see Quiesce/Drain.
	pause chan pauseRequest
}

func newInterface(nic NIC) *Interface {
	timers := NewTimers()
	return &Interface{
		nic:      nic,
		Servers:  make(map[Key]*Server),
		Services: make(map[Key]*Service),
		Sessions: NewSessionTable(timers),
		Timers:   timers,
		pause:    make(chan pauseRequest, 1),
	}
}

// empty reports whether this interface bundle holds no state and may be
// dropped when its owning NIC is torn down.
func (ifc *Interface) empty() bool {
	return len(ifc.Servers) == 0 && len(ifc.Services) == 0 && ifc.Sessions.Len() == 0
}

// -------------------------------------------------------------------------
// Registry — ni_count()/ni_get(i) plus per-NIC Interface bundles
// -------------------------------------------------------------------------

// Registry tracks the set of known NICs and lazily creates the per-NIC
// Interface bundle (SERVERS/SERVICES/SESSIONS) the rest of this package
// operates on.
type Registry struct {
	nics  []NIC
	ifces map[NIC]*Interface
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ifces: make(map[NIC]*Interface)}
}

// Count returns the number of registered NICs (§6: count()).
func (r *Registry) Count() int { return len(r.nics) }

// Get returns the i-th registered NIC, or nil if i is out of range
// (§6: get(i)).
func (r *Registry) Get(i int) NIC {
	if i < 0 || i >= len(r.nics) {
		return nil
	}
	return r.nics[i]
}

// All returns every registered NIC.
func (r *Registry) All() []NIC {
	out := make([]NIC, len(r.nics))
	copy(out, r.nics)
	return out
}

// Register adds a NIC to the registry if not already present.
func (r *Registry) Register(nic NIC) {
	if _, ok := r.ifces[nic]; ok {
		return
	}
	r.nics = append(r.nics, nic)
	r.ifces[nic] = newInterface(nic)
}

// Interface returns the Interface bundle for nic, creating it lazily if nic
// was not explicitly registered.
func (r *Registry) Interface(nic NIC) *Interface {
	ifc, ok := r.ifces[nic]
	if !ok {
		ifc = newInterface(nic)
		r.ifces[nic] = ifc
		r.nics = append(r.nics, nic)
	}
	return ifc
}

// Teardown removes nic from the registry if its Interface bundle is empty.
// A non-empty bundle is left in place; the caller must drain it first.
func (r *Registry) Teardown(nic NIC) bool {
	ifc, ok := r.ifces[nic]
	if !ok || !ifc.empty() {
		return false
	}
	delete(r.ifces, nic)
	for i, n := range r.nics {
		if n == nic {
			r.nics = append(r.nics[:i], r.nics[i+1:]...)
			break
		}
	}
	return true
}
