package lb4

import (
	"encoding/binary"
	"math/rand/v2"
	"net/netip"
)

// Discipline selects which of the five scheduling policies a Service uses
// (C6).
type Discipline uint8

const (
	// RoundRobin advances a cursor through the active list.
	RoundRobin Discipline = iota + 1
	// WeightedRoundRobin distributes selections proportionally to weight.
	WeightedRoundRobin
	// Random picks uniformly among the active list.
	Random
	// LeastSessions picks the active server with the fewest sessions.
	LeastSessions
	// SourceHash picks deterministically by client address.
	SourceHash
)

func (d Discipline) String() string {
	switch d {
	case RoundRobin:
		return "rr"
	case WeightedRoundRobin:
		return "w"
	case Random:
		return "r"
	case LeastSessions:
		return "l"
	case SourceHash:
		return "h"
	default:
		return unknownStr
	}
}

// ParseDiscipline maps the CLI's single-letter discipline codes
// (§6: "-s {rr|w|r|l|h}") to a Discipline.
func ParseDiscipline(code string) (Discipline, error) {
	switch code {
	case "rr":
		return RoundRobin, nil
	case "w":
		return WeightedRoundRobin, nil
	case "r":
		return Random, nil
	case "l":
		return LeastSessions, nil
	case "h":
		return SourceHash, nil
	default:
		return 0, ErrUnknownSchedule
	}
}

// Schedule picks an active server for a new flow from clientAddr, or nil
// if the service has no active backend (§4.5).
func Schedule(svc *Service, clientAddr netip.Addr) *Server {
	switch svc.Discipline {
	case RoundRobin:
		return scheduleRoundRobin(svc)
	case WeightedRoundRobin:
		return scheduleWeightedRoundRobin(svc)
	case Random:
		return scheduleRandom(svc)
	case LeastSessions:
		return scheduleLeastSessions(svc)
	case SourceHash:
		return scheduleSourceHash(svc, clientAddr)
	default:
		return nil
	}
}

func scheduleRoundRobin(svc *Service) *Server {
	n := len(svc.active)
	if n == 0 {
		return nil
	}
	srv := svc.active[svc.cursor%n]
	svc.cursor++
	return srv
}

// scheduleWeightedRoundRobin sums the active list's weights, advances the
// cursor modulo that sum, then walks the list subtracting each server's
// weight until the cursor goes negative (§4.5: "the source contains a
// bitwise-AND where modulo was intended; implementers MUST use %"). An
// all-zero-weight active list degrades to plain round-robin rather than
// looping forever (§8 Boundary).
func scheduleWeightedRoundRobin(svc *Service) *Server {
	n := len(svc.active)
	if n == 0 {
		return nil
	}
	total := 0
	for _, s := range svc.active {
		total += s.Weight
	}
	if total <= 0 {
		return scheduleRoundRobin(svc)
	}

	svc.cursor = (svc.cursor + 1) % total
	walk := svc.cursor
	for _, s := range svc.active {
		walk -= s.Weight
		if walk < 0 {
			return s
		}
	}
	return svc.active[n-1]
}

func scheduleRandom(svc *Service) *Server {
	n := len(svc.active)
	if n == 0 {
		return nil
	}
	return svc.active[rand.N(n)]
}

// scheduleLeastSessions scans the active list for the smallest session
// count, updating the running minimum together with the candidate server
// in the same comparison (§4.5, §9 Open Question (b): the source updates
// the candidate without the minimum, a bug fixed here).
func scheduleLeastSessions(svc *Service) *Server {
	if len(svc.active) == 0 {
		return nil
	}
	best := svc.active[0]
	min := best.SessionCount()
	for _, s := range svc.active[1:] {
		if c := s.SessionCount(); c < min {
			min = c
			best = s
		}
	}
	return best
}

func scheduleSourceHash(svc *Service, clientAddr netip.Addr) *Server {
	n := len(svc.active)
	if n == 0 {
		return nil
	}
	a4 := clientAddr.As4()
	addr32 := binary.BigEndian.Uint32(a4[:])
	return svc.active[int(addr32)%n]
}
