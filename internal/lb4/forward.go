package lb4

import (
	"errors"
	"net"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// Forwarding mode names, used both administratively (server.SetMode) and
// as the return value of ForwardMode.Name (§4.2).
const (
	ModeNAT  = "nat"
	ModeDNAT = "dnat"
	ModeDR   = "dr"
)

// errNoReplyPath is returned by DR's Forward for the reply leg: DR sessions
// never see a reply through the balancer (§4.2 DR).
var errNoReplyPath = errors.New("lb4: forwarding mode has no reply path")

// ForwardMode rewrites packets for one flow direction and manufactures the
// Session a newly scheduled flow needs (C3).
type ForwardMode interface {
	// Name is the administrative mode name ("nat", "dnat", "dr").
	Name() string

	// AllocSession builds the Session for a flow just scheduled to server.
	// vip is the owning service's public endpoint.
	AllocSession(client, vip Endpoint, server *Server) *Session

	// Forward rewrites pkt for one leg of the flow: clientToServer selects
	// the request path (true) or the reply path (false). Returns the
	// rewritten packet; pkt is not mutated past what the headers require.
	Forward(pkt []byte, sess *Session, clientToServer bool) ([]byte, error)
}

// NewForwardMode resolves a mode name to its forwarding mode. There is one
// type per mode (NAT, DNAT, DR), and each handles both TCP and UDP: the
// rewrite logic dispatches on whether the packet in hand carries a TCP or
// UDP layer, so proto is accepted but not used. Returns ErrUnknownMode for
// any name other than "nat", "dnat", "dr".
func NewForwardMode(name string, proto Protocol) (ForwardMode, error) {
	switch name {
	case ModeNAT:
		return &natMode{}, nil
	case ModeDNAT:
		return &dnatMode{}, nil
	case ModeDR:
		return &drMode{}, nil
	default:
		return nil, ErrUnknownMode
	}
}

// deadMode is the forwarding mode of a session whose server has been
// force-removed: the non-owning Session.Server reference is still set but
// no longer live, so any further forward attempt drops the packet instead
// of dereferencing stale state (§9 Design Notes).
type deadMode struct{}

func (deadMode) Name() string { return "dead" }
func (deadMode) AllocSession(_, _ Endpoint, _ *Server) *Session { return nil }
func (deadMode) Forward(_ []byte, _ *Session, _ bool) ([]byte, error) {
	return nil, ErrSessionMiss
}

// decoded holds the parsed Ethernet+IPv4+{TCP,UDP} layers of one frame, the
// granularity at which every rewrite step below operates.
type decoded struct {
	pkt gopacket.Packet
	eth *layers.Ethernet
	ip  *layers.IPv4
	tcp *layers.TCP
	udp *layers.UDP
}

func decodeFrame(raw []byte) (*decoded, error) {
	pkt := gopacket.NewPacket(raw, layers.LayerTypeEthernet, gopacket.DecodeOptions{
		Lazy:   true,
		NoCopy: true,
	})
	ethLayer := pkt.Layer(layers.LayerTypeEthernet)
	ipLayer := pkt.Layer(layers.LayerTypeIPv4)
	if ethLayer == nil || ipLayer == nil {
		return nil, errors.New("lb4: not an Ethernet/IPv4 frame")
	}

	d := &decoded{
		pkt: pkt,
		eth: ethLayer.(*layers.Ethernet),
		ip:  ipLayer.(*layers.IPv4),
	}
	if l := pkt.Layer(layers.LayerTypeTCP); l != nil {
		d.tcp = l.(*layers.TCP)
	}
	if l := pkt.Layer(layers.LayerTypeUDP); l != nil {
		d.udp = l.(*layers.UDP)
	}
	return d, nil
}

// ports returns the transport protocol and (src, dst) ports of the decoded
// frame, or an error if it carries neither TCP nor UDP.
func (d *decoded) ports() (Protocol, uint16, uint16, error) {
	switch {
	case d.tcp != nil:
		return TCP, uint16(d.tcp.SrcPort), uint16(d.tcp.DstPort), nil
	case d.udp != nil:
		return UDP, uint16(d.udp.SrcPort), uint16(d.udp.DstPort), nil
	default:
		return 0, 0, 0, errors.New("lb4: neither TCP nor UDP")
	}
}

// addresses returns the decoded frame's (src, dst) IPv4 addresses.
func (d *decoded) addresses() (src, dst netip.Addr) {
	src, _ = netip.AddrFromSlice(d.ip.SrcIP.To4())
	dst, _ = netip.AddrFromSlice(d.ip.DstIP.To4())
	return src, dst
}

// serialize re-encodes the (possibly mutated) layers, recomputing IP and
// transport checksums (§6 Wire: "checksums MUST be recomputed incrementally
// after any header rewrite").
func (d *decoded) serialize() ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	layerList := []gopacket.SerializableLayer{d.eth, d.ip}
	switch {
	case d.tcp != nil:
		if err := d.tcp.SetNetworkLayerForChecksum(d.ip); err != nil {
			return nil, err
		}
		layerList = append(layerList, d.tcp)
	case d.udp != nil:
		if err := d.udp.SetNetworkLayerForChecksum(d.ip); err != nil {
			return nil, err
		}
		layerList = append(layerList, d.udp)
	}
	if tl := d.pkt.TransportLayer(); tl != nil {
		if payload := tl.LayerPayload(); len(payload) > 0 {
			layerList = append(layerList, gopacket.Payload(payload))
		}
	}

	if err := gopacket.SerializeLayers(buf, opts, layerList...); err != nil {
		return nil, err
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out, nil
}

// setIPPort rewrites either the source or destination IP and transport
// port of the decoded frame.
func setIPPort(d *decoded, src bool, addr netip.Addr, port uint16) {
	a4 := addr.As4()
	ip := net.IPv4(a4[0], a4[1], a4[2], a4[3])
	if src {
		d.ip.SrcIP = ip
	} else {
		d.ip.DstIP = ip
	}
	switch {
	case d.tcp != nil:
		if src {
			d.tcp.SrcPort = layers.TCPPort(port)
		} else {
			d.tcp.DstPort = layers.TCPPort(port)
		}
	case d.udp != nil:
		if src {
			d.udp.SrcPort = layers.UDPPort(port)
		} else {
			d.udp.DstPort = layers.UDPPort(port)
		}
	}
}

// decrementTTL implements "TTL is decremented on NAT and DNAT paths; not on
// DR" (§6 Wire) for the two modes that call it.
func decrementTTL(d *decoded) {
	if d.ip.TTL > 0 {
		d.ip.TTL--
	}
}
