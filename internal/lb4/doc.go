// Package lb4 implements the core of a layer-4 load balancer: endpoint and
// interface bookkeeping, the session table, the NAT/DNAT/DR forwarding
// modes, server and service lifecycle (including graceful drain), the
// backend scheduler, and the per-packet dispatcher that ties them together.
//
// The package assumes the single-threaded-per-NIC cooperative model: a
// Dispatcher and the Timer it drives are never called concurrently from
// more than one goroutine. Callers that run one worker per NIC get this for
// free; nothing in this package takes a lock on the packet-processing path.
//
// A second goroutine that needs to add or remove a server/service — an
// administrative caller — must never call a Registry mutator directly while
// workers are running. It must first pause the Interfaces it may touch with
// Interface.Quiesce or Registry.QuiesceAll, whose resume function it holds
// until the mutation is done; see quiesce.go.
package lb4
