package lb4

import "errors"

// Sentinel errors for the error kinds named in the load balancer's error
// handling design. Packet-path errors (AllocFailed, TableFull,
// NoActiveServer, SessionMiss) degrade a single packet; admin-boundary
// errors (UnknownMode, UnknownSchedule, DuplicateEndpoint) reject a single
// administrative command. Neither tears down existing state.
var (
	// ErrAllocFailed indicates a session or buffer could not be allocated.
	ErrAllocFailed = errors.New("lb4: allocation failed")

	// ErrTableFull indicates a map insertion failed because the table is full.
	ErrTableFull = errors.New("lb4: table full")

	// ErrUnknownMode indicates an unrecognized forwarding mode.
	ErrUnknownMode = errors.New("lb4: unknown forwarding mode")

	// ErrUnknownSchedule indicates an unrecognized scheduling discipline.
	ErrUnknownSchedule = errors.New("lb4: unknown scheduling discipline")

	// ErrNoActiveServer indicates the scheduler found no active backend.
	ErrNoActiveServer = errors.New("lb4: no active server")

	// ErrDuplicateEndpoint indicates an endpoint is already registered.
	ErrDuplicateEndpoint = errors.New("lb4: duplicate endpoint")

	// ErrSessionMiss indicates a reply packet matched no known session.
	ErrSessionMiss = errors.New("lb4: session miss on reply")

	// ErrNotFound indicates a lookup (server, service, session) found nothing.
	ErrNotFound = errors.New("lb4: not found")

	// ErrUnknownProtocol indicates an unrecognized transport protocol name.
	ErrUnknownProtocol = errors.New("lb4: unknown protocol")
)
