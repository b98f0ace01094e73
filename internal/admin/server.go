package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/ardenflow/l4lb/internal/lb4"
)

// Server accepts administrative connections on a Unix domain socket and
// dispatches one JSON Request/Response pair per connection against a
// lb4.Registry (§6 Administrative CLI).
type Server struct {
	reg    *lb4.Registry
	nics   map[string]lb4.NIC
	logger *slog.Logger

	listener net.Listener
}

// NewServer builds a Server over reg. nics maps the interface names the CLI
// grammar's "NI" argument spells out to the NIC values reg was populated
// with; a name absent from nics is rejected as a semantic failure rather
// than silently creating an unregistered interface.
func NewServer(reg *lb4.Registry, nics map[string]lb4.NIC, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{reg: reg, nics: nics, logger: logger}
}

// adminOpTimeout bounds how long a command waits to quiesce every NIC's
// worker goroutine before giving up. A worker only ever blocks a quiesce
// request for the few instructions between Timers.Tick and its next input
// poll, so a stalled response past this window means a worker has wedged.
const adminOpTimeout = 2 * time.Second

// withRegistry pauses every NIC's dispatch worker, runs fn, then resumes
// them. Every read or mutation of reg's Servers/Services maps and the
// Service/Server structs they hold must go through this: those goroutines
// run concurrently with live packet forwarding, which touches the same
// state with no locking of its own (internal/lb4's single-goroutine-per-NIC
// assumption — see lb4.doc.go), so calling a Registry method directly from
// here would race.
func (s *Server) withRegistry(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), adminOpTimeout)
	defer cancel()

	resume, err := s.reg.QuiesceAll(ctx)
	if err != nil {
		return fmt.Errorf("admin: quiesce workers: %w", err)
	}
	defer resume()

	return fn()
}

// Serve listens on socketPath and handles connections until ctx is
// cancelled. A stale socket file left by a crashed prior instance is
// removed before binding.
func (s *Server) Serve(ctx context.Context, socketPath string) error {
	if conn, err := net.DialTimeout("unix", socketPath, 200*time.Millisecond); err == nil {
		conn.Close()
		return fmt.Errorf("admin: another instance is already listening on %s", socketPath)
	}
	os.Remove(socketPath)

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("admin: listen on %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("admin: chmod %s: %w", socketPath, err)
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.logger.Info("admin socket listening", "path", socketPath)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				os.Remove(socketPath)
				return nil
			}
			s.logger.Error("admin accept failed", "error", err)
			continue
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	if !scanner.Scan() {
		return
	}

	var req Request
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		s.reply(conn, Response{ExitCode: -1, Error: "malformed request: " + err.Error()})
		return
	}

	resp := s.dispatch(req)
	s.reply(conn, resp)
}

func (s *Server) reply(conn net.Conn, resp Response) {
	enc := json.NewEncoder(conn)
	if err := enc.Encode(resp); err != nil {
		s.logger.Error("admin encode response failed", "error", err)
	}
}

func (s *Server) dispatch(req Request) Response {
	switch req.Op {
	case OpServiceAdd:
		return s.serviceAdd(req)
	case OpServiceDelete:
		return s.serviceDelete(req)
	case OpServiceList:
		return s.serviceList()
	case OpServerAdd:
		return s.serverAdd(req)
	case OpServerDelete:
		return s.serverDelete(req)
	case OpServerList:
		return s.serverList()
	default:
		return Response{ExitCode: -1, Error: "unknown operation: " + string(req.Op)}
	}
}

func fail(err error) Response {
	return Response{ExitCode: -1, Error: err.Error()}
}

func (s *Server) resolveNIC(name string) (lb4.NIC, error) {
	nic, ok := s.nics[name]
	if !ok {
		return nil, fmt.Errorf("admin: unknown interface %q", name)
	}
	return nic, nil
}

func (s *Server) endpoint(addr, protocol, nicName string) (lb4.Endpoint, error) {
	var ep lb4.Endpoint

	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return ep, fmt.Errorf("admin: invalid address %q: %w", addr, err)
	}
	proto, err := lb4.ParseProtocol(protocol)
	if err != nil {
		return ep, err
	}
	nic, err := s.resolveNIC(nicName)
	if err != nil {
		return ep, err
	}

	ep.NIC = nic
	ep.Protocol = proto
	ep.Addr = ap.Addr()
	ep.Port = ap.Port()
	return ep, nil
}

func (s *Server) serviceAdd(req Request) Response {
	pub, err := s.endpoint(req.Public, req.Protocol, req.NIC)
	if err != nil {
		return fail(err)
	}
	discipline, err := lb4.ParseDiscipline(req.Discipline)
	if err != nil {
		return fail(err)
	}

	privateNICs := make([]lb4.NIC, 0, len(req.PrivateNICs))
	for _, name := range req.PrivateNICs {
		nic, err := s.resolveNIC(name)
		if err != nil {
			return fail(err)
		}
		privateNICs = append(privateNICs, nic)
	}
	if len(privateNICs) == 0 {
		privateNICs = append(privateNICs, pub.NIC)
	}

	err = s.withRegistry(func() error {
		_, err := s.reg.AddService(pub, discipline, privateNICs, 0)
		return err
	})
	if err != nil {
		return fail(err)
	}
	return Response{ExitCode: 0}
}

func (s *Server) serviceDelete(req Request) Response {
	pub, err := s.endpoint(req.Public, req.Protocol, req.NIC)
	if err != nil {
		return fail(err)
	}
	err = s.withRegistry(func() error {
		return s.reg.RemoveService(pub, time.Now(), 0, req.Force)
	})
	if err != nil {
		return fail(err)
	}
	return Response{ExitCode: 0}
}

func (s *Server) serviceList() Response {
	var views []ServiceView
	err := s.withRegistry(func() error {
		for _, svc := range s.reg.Services() {
			views = append(views, serviceView(svc.Snapshot()))
		}
		return nil
	})
	if err != nil {
		return fail(err)
	}
	return Response{ExitCode: 0, Services: views}
}

func (s *Server) serverAdd(req Request) Response {
	ep, err := s.endpoint(req.Address, req.Protocol, req.NIC)
	if err != nil {
		return fail(err)
	}

	err = s.withRegistry(func() error {
		srv, err := s.reg.AddServer(ep, req.Weight)
		if err != nil {
			return err
		}
		if req.Mode != "" {
			return srv.SetMode(req.Mode)
		}
		return nil
	})
	if err != nil {
		return fail(err)
	}
	return Response{ExitCode: 0}
}

func (s *Server) serverDelete(req Request) Response {
	ep, err := s.endpoint(req.Address, req.Protocol, req.NIC)
	if err != nil {
		return fail(err)
	}
	wait := time.Duration(req.WaitMicros) * time.Microsecond
	err = s.withRegistry(func() error {
		return s.reg.RemoveServer(ep, time.Now(), wait, req.Force)
	})
	if err != nil {
		return fail(err)
	}
	return Response{ExitCode: 0}
}

func (s *Server) serverList() Response {
	var views []ServerView
	err := s.withRegistry(func() error {
		for _, srv := range s.reg.Servers() {
			views = append(views, serverView(srv.Snapshot()))
		}
		return nil
	})
	if err != nil {
		return fail(err)
	}
	return Response{ExitCode: 0, Servers: views}
}

func serviceView(snap lb4.ServiceSnapshot) ServiceView {
	v := ServiceView{
		Public:     endpointString(snap.Public),
		Discipline: snap.Discipline.String(),
		State:      snap.State.String(),
	}
	for _, srv := range snap.Active {
		v.Active = append(v.Active, endpointString(srv.Endpoint))
	}
	for _, srv := range snap.Inactive {
		v.Inactive = append(v.Inactive, endpointString(srv.Endpoint))
	}
	return v
}

func serverView(snap lb4.ServerSnapshot) ServerView {
	return ServerView{
		Endpoint: endpointString(snap.Endpoint),
		Weight:   snap.Weight,
		State:    snap.State.String(),
		Mode:     snap.Mode,
		Sessions: snap.Sessions,
	}
}

func endpointString(ep lb4.Endpoint) string {
	return netip.AddrPortFrom(ep.Addr, ep.Port).String()
}
