package admin_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ardenflow/l4lb/internal/admin"
	"github.com/ardenflow/l4lb/internal/lb4"
	"github.com/ardenflow/l4lb/internal/netio"
)

func startServer(t *testing.T, reg *lb4.Registry, nics map[string]lb4.NIC) (*admin.Client, func()) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "admin.sock")
	srv := admin.NewServer(reg, nics, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, socketPath) }()

	// Stand in for l4lbd's per-NIC dispatch workers: every admin command
	// quiesces each registered NIC and waits for its worker to reach Drain.
	var workers sync.WaitGroup
	for _, nic := range reg.All() {
		ifc := reg.Interface(nic)
		workers.Add(1)
		go func() {
			defer workers.Done()
			for ctx.Err() == nil {
				ifc.Drain()
				time.Sleep(time.Millisecond)
			}
		}()
	}

	client := admin.NewClient(socketPath, 2*time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := client.Call(admin.Request{Op: admin.OpServiceList}); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("admin server never became reachable at %s", socketPath)
		}
		time.Sleep(5 * time.Millisecond)
	}

	return client, func() {
		cancel()
		workers.Wait()
		if err := <-done; err != nil {
			t.Fatalf("Serve: %v", err)
		}
	}
}

func TestServerServiceAndServerRoundTrip(t *testing.T) {
	t.Parallel()

	reg := lb4.NewRegistry()
	nic := netio.NewMemNIC("eth0")
	nics := map[string]lb4.NIC{"eth0": nic}
	reg.Register(nic)

	client, stop := startServer(t, reg, nics)
	defer stop()

	addResp, err := client.Call(admin.Request{
		Op:         admin.OpServiceAdd,
		Public:     "10.0.0.1:80",
		Protocol:   "tcp",
		NIC:        "eth0",
		Discipline: "rr",
	})
	if err != nil {
		t.Fatalf("Call service_add: %v", err)
	}
	if addResp.ExitCode != 0 {
		t.Fatalf("service_add ExitCode = %d, error = %q", addResp.ExitCode, addResp.Error)
	}

	srvResp, err := client.Call(admin.Request{
		Op:       admin.OpServerAdd,
		Address:  "10.0.0.2:8080",
		Protocol: "tcp",
		NIC:      "eth0",
		Weight:   1,
		Mode:     "nat",
	})
	if err != nil {
		t.Fatalf("Call server_add: %v", err)
	}
	if srvResp.ExitCode != 0 {
		t.Fatalf("server_add ExitCode = %d, error = %q", srvResp.ExitCode, srvResp.Error)
	}

	listResp, err := client.Call(admin.Request{Op: admin.OpServiceList})
	if err != nil {
		t.Fatalf("Call service_list: %v", err)
	}
	if len(listResp.Services) != 1 {
		t.Fatalf("Services = %d, want 1", len(listResp.Services))
	}
	if got := listResp.Services[0].Active; len(got) != 1 || got[0] != "10.0.0.2:8080" {
		t.Fatalf("Active = %v, want [10.0.0.2:8080]", got)
	}

	serversResp, err := client.Call(admin.Request{Op: admin.OpServerList})
	if err != nil {
		t.Fatalf("Call server_list: %v", err)
	}
	if len(serversResp.Servers) != 1 {
		t.Fatalf("Servers = %d, want 1", len(serversResp.Servers))
	}
	if serversResp.Servers[0].Mode != "nat" {
		t.Fatalf("Mode = %q, want nat", serversResp.Servers[0].Mode)
	}
}

func TestServerDuplicateServiceRejected(t *testing.T) {
	t.Parallel()

	reg := lb4.NewRegistry()
	nic := netio.NewMemNIC("eth0")
	nics := map[string]lb4.NIC{"eth0": nic}
	reg.Register(nic)

	client, stop := startServer(t, reg, nics)
	defer stop()

	req := admin.Request{Op: admin.OpServiceAdd, Public: "10.0.0.1:80", Protocol: "tcp", NIC: "eth0", Discipline: "rr"}
	if resp, err := client.Call(req); err != nil || resp.ExitCode != 0 {
		t.Fatalf("first service_add: resp=%+v err=%v", resp, err)
	}

	resp, err := client.Call(req)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.ExitCode != -1 || resp.Error == "" {
		t.Fatalf("duplicate service_add = %+v, want ExitCode -1 with an error", resp)
	}
}

func TestServerUnknownInterfaceRejected(t *testing.T) {
	t.Parallel()

	reg := lb4.NewRegistry()
	client, stop := startServer(t, reg, map[string]lb4.NIC{})
	defer stop()

	resp, err := client.Call(admin.Request{
		Op: admin.OpServerAdd, Address: "10.0.0.2:8080", Protocol: "tcp", NIC: "ghost",
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.ExitCode != -1 || resp.Error == "" {
		t.Fatalf("server_add on unknown NIC = %+v, want ExitCode -1 with an error", resp)
	}
}

func TestServerUnknownProtocolRejected(t *testing.T) {
	t.Parallel()

	reg := lb4.NewRegistry()
	nic := netio.NewMemNIC("eth0")
	client, stop := startServer(t, reg, map[string]lb4.NIC{"eth0": nic})
	defer stop()

	resp, err := client.Call(admin.Request{
		Op: admin.OpServerAdd, Address: "10.0.0.2:8080", Protocol: "sctp", NIC: "eth0",
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.ExitCode != -1 || resp.Error == "" {
		t.Fatalf("server_add with bad protocol = %+v, want ExitCode -1 with an error", resp)
	}
}
