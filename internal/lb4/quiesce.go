package lb4

import "context"

// This package takes no lock on Servers/Services/Sessions: a Dispatcher and
// the Timers it ticks are assumed single-goroutine-per-NIC (see doc.go).
// Administrative commands arrive on a separate goroutine, so they cannot
// call into a live Interface directly. Instead they quiesce it first: the
// owning worker goroutine is made to block at its next tick boundary, between
// packets, until the caller resumes it (§5 Concurrency model: "worker loops
// process one packet batch, then drain administrative queues, then re-enter
// the packet loop").

// pauseRequest is sent on an Interface's pause channel to ask its owning
// worker goroutine to stop touching that Interface's state until resume is
// closed.
type pauseRequest struct {
	ack    chan struct{}
	resume chan struct{}
}

// Quiesce blocks this Interface's owning worker goroutine at its next call
// to Drain and returns a resume function the caller must invoke exactly
// once to let it continue. While paused, no goroutine but the caller may
// touch this Interface's Servers/Services/Sessions state.
func (ifc *Interface) Quiesce(ctx context.Context) (resume func(), err error) {
	req := pauseRequest{ack: make(chan struct{}), resume: make(chan struct{})}

	select {
	case ifc.pause <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case <-req.ack:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return func() { close(req.resume) }, nil
}

// Drain services at most one pending pause request for this Interface. The
// owning worker calls this once per iteration, at the same point it ticks
// Timers — between packets, never mid-forward.
func (ifc *Interface) Drain() {
	select {
	case req := <-ifc.pause:
		close(req.ack)
		<-req.resume
	default:
	}
}

// QuiesceAll pauses every registered NIC's worker goroutine and returns a
// single resume function that releases all of them. Administrative
// operations use this rather than a single Interface's Quiesce because one
// service/server mutation can reach across NICs (a service's private
// interfaces, or the service a new server joins, may live on a different
// NIC than the endpoint named in the request), so every Interface a command
// could touch must be paused before it runs, not just the one named in the
// request.
func (r *Registry) QuiesceAll(ctx context.Context) (resume func(), err error) {
	resumes := make([]func(), 0, len(r.nics))
	for _, nic := range r.nics {
		ifc := r.Interface(nic)
		res, err := ifc.Quiesce(ctx)
		if err != nil {
			for i := len(resumes) - 1; i >= 0; i-- {
				resumes[i]()
			}
			return nil, err
		}
		resumes = append(resumes, res)
	}

	return func() {
		for i := len(resumes) - 1; i >= 0; i-- {
			resumes[i]()
		}
	}, nil
}
