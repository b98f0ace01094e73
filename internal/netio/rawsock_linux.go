//go:build linux

package netio

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// -------------------------------------------------------------------------
// RawNIC — AF_PACKET socket bound to a single Linux interface
// -------------------------------------------------------------------------

// rawBufferSize is the per-read buffer, sized for a standard Ethernet MTU
// plus headroom for jumbo frames.
const rawBufferSize = 9216

// RawNIC implements the lb4.NIC contract over an AF_PACKET SOCK_RAW socket
// bound to one network interface. One RawNIC corresponds to one worker
// loop (§5 Concurrency model): Input/Output/HasInput are not safe to call
// from more than one goroutine at a time, matching the single-threaded-
// per-NIC model the rest of the package assumes.
type RawNIC struct {
	name    string
	fd      int
	ifIndex int
	mu      sync.Mutex
}

// NewRawNIC opens an AF_PACKET socket bound to the named interface and
// configured to receive every Ethernet frame (ETH_P_ALL), matching the
// load balancer's need to see both client requests and server replies
// arriving on the same wire.
func NewRawNIC(name string) (*RawNIC, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("lookup interface %s: %w", name, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("open AF_PACKET socket on %s: %w", name, err)
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind AF_PACKET socket to %s: %w", name, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("set nonblocking on %s: %w", name, err)
	}

	return &RawNIC{name: name, fd: fd, ifIndex: iface.Index}, nil
}

// Name identifies the interface for logging and admin listings.
func (n *RawNIC) Name() string { return n.name }

// HasInput polls the socket with a zero timeout, reporting whether a
// frame is ready to be read without blocking.
func (n *RawNIC) HasInput() bool {
	fds := []unix.PollFd{{Fd: int32(n.fd), Events: unix.POLLIN}} //nolint:gosec // G115: socket fds are small positive ints.
	nReady, err := unix.Poll(fds, 0)
	if err != nil || nReady <= 0 {
		return false
	}
	return fds[0].Revents&unix.POLLIN != 0
}

// Input reads one Ethernet frame. ok is false if the socket had nothing
// to read (e.g. EAGAIN on a nonblocking fd) or the read failed.
func (n *RawNIC) Input() ([]byte, bool) {
	buf := make([]byte, rawBufferSize)
	nRead, _, err := unix.Recvfrom(n.fd, buf, 0)
	if err != nil || nRead <= 0 {
		return nil, false
	}
	return buf[:nRead], true
}

// Output transmits pkt as a raw Ethernet frame on this interface.
func (n *RawNIC) Output(pkt []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	addr := unix.SockaddrLinklayer{Ifindex: n.ifIndex}
	if err := unix.Sendto(n.fd, pkt, 0, &addr); err != nil {
		return fmt.Errorf("send on %s: %w", n.name, err)
	}
	return nil
}

// Close releases the underlying socket.
func (n *RawNIC) Close() error {
	if err := unix.Close(n.fd); err != nil {
		return fmt.Errorf("close %s: %w", n.name, err)
	}
	return nil
}

// htons converts a host-byte-order uint16 to network byte order. The
// kernel's sockaddr_ll.sll_protocol field is always network-order
// regardless of host endianness.
func htons(host uint16) uint16 {
	return (host << 8) | (host >> 8)
}
