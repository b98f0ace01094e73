package lb4

import (
	"testing"
	"time"
)

func TestServiceDuplicateEndpointRejected(t *testing.T) {
	r := NewRegistry()
	pub := newFakeNIC("pub0")
	priv := newFakeNIC("priv0")
	pubEP := Endpoint{NIC: pub, Protocol: TCP, Addr: mustAddr("10.0.0.1"), Port: 80}

	if _, err := r.AddService(pubEP, RoundRobin, []NIC{priv}, 0); err != nil {
		t.Fatalf("first AddService: %v", err)
	}
	if _, err := r.AddService(pubEP, RoundRobin, []NIC{priv}, 0); err != ErrDuplicateEndpoint {
		t.Fatalf("err = %v, want ErrDuplicateEndpoint", err)
	}
}

func TestServiceNewFlowDropsWhenNoActiveServer(t *testing.T) {
	r := NewRegistry()
	pub := newFakeNIC("pub0")
	priv := newFakeNIC("priv0")
	pubEP := Endpoint{NIC: pub, Protocol: TCP, Addr: mustAddr("10.0.0.1"), Port: 80}
	svc, _ := r.AddService(pubEP, RoundRobin, []NIC{priv}, 0)

	ifc := r.Interface(pub)
	client := Endpoint{NIC: pub, Protocol: TCP, Addr: mustAddr("1.2.3.4"), Port: 5000}
	if _, err := svc.NewFlow(client, ifc.Sessions); err != ErrNoActiveServer {
		t.Fatalf("err = %v, want ErrNoActiveServer", err)
	}
}

func TestServiceNewFlowInsertsSessionUnderClientKey(t *testing.T) {
	r := NewRegistry()
	pub := newFakeNIC("pub0")
	priv := newFakeNIC("priv0")
	pubEP := Endpoint{NIC: pub, Protocol: TCP, Addr: mustAddr("10.0.0.1"), Port: 80}
	svc, _ := r.AddService(pubEP, RoundRobin, []NIC{priv}, 0)
	srv := newTestServer(t, r, priv, "192.168.0.2", 8080, 1)

	ifc := r.Interface(pub)
	client := Endpoint{NIC: pub, Protocol: TCP, Addr: mustAddr("1.2.3.4"), Port: 5000}
	sess, err := svc.NewFlow(client, ifc.Sessions)
	if err != nil {
		t.Fatalf("NewFlow: %v", err)
	}
	if sess.Server != srv {
		t.Fatalf("session bound to wrong server")
	}
	if got, ok := ifc.Sessions.Lookup(client.Key()); !ok || got != sess {
		t.Fatalf("session not indexed under client key")
	}
	if srv.SessionCount() != 1 {
		t.Fatalf("SessionCount() = %d, want 1", srv.SessionCount())
	}
}

func TestServiceGracefulRemovalThenForceOnEmpty(t *testing.T) {
	r := NewRegistry()
	pub := newFakeNIC("pub0")
	priv := newFakeNIC("priv0")
	pubEP := Endpoint{NIC: pub, Protocol: TCP, Addr: mustAddr("10.0.0.1"), Port: 80}
	svc, _ := r.AddService(pubEP, RoundRobin, []NIC{priv}, 0)

	// No servers, no sessions: graceful removal finalizes immediately.
	svc.remove(time.Unix(0, 0), 0)
	if !svc.freed {
		t.Fatalf("service with no sessions was not freed immediately")
	}

	ifc := r.Interface(pub)
	if _, exists := ifc.Services[pubEP.Key()]; exists {
		t.Fatalf("service still registered after removal")
	}
}

func TestServiceSnapshotReflectsLists(t *testing.T) {
	r := NewRegistry()
	pub := newFakeNIC("pub0")
	priv := newFakeNIC("priv0")
	pubEP := Endpoint{NIC: pub, Protocol: TCP, Addr: mustAddr("10.0.0.1"), Port: 80}
	svc, _ := r.AddService(pubEP, RoundRobin, []NIC{priv}, 0)
	newTestServer(t, r, priv, "192.168.0.2", 8080, 1)

	snap := svc.Snapshot()
	if len(snap.Active) != 1 {
		t.Fatalf("Active len = %d, want 1", len(snap.Active))
	}
	if snap.Public != pubEP {
		t.Fatalf("Public endpoint mismatch in snapshot")
	}
}
