package lb4

import "time"

// drainPollInterval is the period of the wait=0 "poll until empty" drain
// timer (§4.6 Poll-until-empty).
const drainPollInterval = time.Second

// serverDrainCtx is the explicit context struct the deferred-removal timer
// callbacks for a Server close over. Carrying it explicitly (rather than a
// closure over local scope) keeps the timer subsystem free of nested
// function definitions (§9 Design Notes).
type serverDrainCtx struct {
	server *Server
}

// serverForceDeadlineCallback is the one-shot handler for a wait>0 server
// removal: force the removal regardless of remaining sessions (§4.6
// Force-after-deadline).
func serverForceDeadlineCallback(ctx any) bool {
	c := ctx.(serverDrainCtx)
	c.server.removeTimer = 0
	c.server.removeForce()
	return false
}

// serverPollCallback is the periodic handler for a wait=0 server removal:
// finalize once the session set drains, otherwise keep polling (§4.6
// Poll-until-empty).
func serverPollCallback(ctx any) bool {
	c := ctx.(serverDrainCtx)
	if len(c.server.sessions) > 0 {
		return true
	}
	c.server.removeTimer = 0
	c.server.removeForce()
	return false
}

// serviceDrainCtx is the service-granularity counterpart of serverDrainCtx.
type serviceDrainCtx struct {
	service *Service
}

// serviceForceDeadlineCallback mirrors serverForceDeadlineCallback at the
// service granularity.
func serviceForceDeadlineCallback(ctx any) bool {
	c := ctx.(serviceDrainCtx)
	c.service.removeTimer = 0
	c.service.removeForce()
	return false
}

// servicePollCallback mirrors serverPollCallback at the service granularity.
func servicePollCallback(ctx any) bool {
	c := ctx.(serviceDrainCtx)
	if c.service.sessionCount() > 0 {
		return true
	}
	c.service.removeTimer = 0
	c.service.removeForce()
	return false
}
