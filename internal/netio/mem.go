package netio

import "sync"

// -------------------------------------------------------------------------
// MemNIC — in-memory lb4.NIC for tests and offline tooling
// -------------------------------------------------------------------------

// MemNIC is an in-memory implementation of the lb4.NIC contract backed by
// a FIFO queue instead of a socket. It exists for integration tests and
// CLI dry-run tooling that need a NIC without root privileges or a real
// interface; production use is RawNIC.
type MemNIC struct {
	name string
	mu   sync.Mutex
	in   [][]byte
	out  [][]byte
}

// NewMemNIC creates a MemNIC named name.
func NewMemNIC(name string) *MemNIC {
	return &MemNIC{name: name}
}

// Name identifies the interface for logging and admin listings.
func (m *MemNIC) Name() string { return m.name }

// HasInput reports whether a queued frame is waiting to be read.
func (m *MemNIC) HasInput() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.in) > 0
}

// Input pops the oldest queued frame.
func (m *MemNIC) Input() ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.in) == 0 {
		return nil, false
	}
	pkt := m.in[0]
	m.in = m.in[1:]
	return pkt, true
}

// Output appends pkt to the transmitted-frames queue, copying it so the
// caller may reuse its buffer.
func (m *MemNIC) Output(pkt []byte) error {
	cp := make([]byte, len(pkt))
	copy(cp, pkt)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = append(m.out, cp)
	return nil
}

// Inject enqueues pkt as if it had arrived on the wire.
func (m *MemNIC) Inject(pkt []byte) {
	cp := make([]byte, len(pkt))
	copy(cp, pkt)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.in = append(m.in, cp)
}

// Sent drains and returns every frame transmitted via Output so far.
func (m *MemNIC) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.out
	m.out = nil
	return out
}
