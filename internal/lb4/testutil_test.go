package lb4

import (
	"net"
	"net/netip"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// fakeNIC is an in-memory NIC used throughout this package's tests: an
// output queue the test can inspect, and an input queue the test can feed.
type fakeNIC struct {
	name string
	in   [][]byte
	out  [][]byte
}

func newFakeNIC(name string) *fakeNIC { return &fakeNIC{name: name} }

func (n *fakeNIC) Name() string    { return n.name }
func (n *fakeNIC) HasInput() bool  { return len(n.in) > 0 }
func (n *fakeNIC) Output(pkt []byte) error {
	n.out = append(n.out, pkt)
	return nil
}

func (n *fakeNIC) Input() ([]byte, bool) {
	if len(n.in) == 0 {
		return nil, false
	}
	pkt := n.in[0]
	n.in = n.in[1:]
	return pkt, true
}

// buildTCP constructs a minimal Ethernet+IPv4+TCP frame for use as test
// input to the forwarding modes and the dispatcher.
func buildTCP(t *testing.T, srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP netip.Addr, srcPort, dstPort uint16, flags tcpFlags) []byte {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IP(srcIP.AsSlice()),
		DstIP:    net.IP(dstIP.AsSlice()),
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Window:  1024,
		SYN:     flags.syn,
		FIN:     flags.fin,
		ACK:     flags.ack,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("SetNetworkLayerForChecksum: %v", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload("x")); err != nil {
		t.Fatalf("SerializeLayers: %v", err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}

type tcpFlags struct {
	syn, fin, ack bool
}

func mustAddr(s string) netip.Addr {
	a, err := netip.ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}

func mustMAC(s string) net.HardwareAddr {
	m, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return m
}
