package lb4

import "testing"

func TestDispatcherSchedulesNewFlowThenReusesSession(t *testing.T) {
	r := NewRegistry()
	pub := newFakeNIC("pub0")
	priv := newFakeNIC("priv0")

	vip := Endpoint{NIC: pub, Protocol: TCP, Addr: mustAddr("10.0.0.1"), Port: 80}
	if _, err := r.AddService(vip, RoundRobin, []NIC{priv}, 0); err != nil {
		t.Fatalf("AddService: %v", err)
	}
	srv := newTestServer(t, r, priv, "192.168.0.2", 8080, 1)
	srv.MAC = mustMAC("02:00:00:00:00:ff")

	d := NewDispatcher(r)
	req := buildTCP(t, mustMAC("02:00:00:00:00:01"), mustMAC("02:00:00:00:00:02"),
		mustAddr("1.2.3.4"), vip.Addr, 5000, vip.Port, tcpFlags{syn: true})

	res, err := d.Step(pub, req)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Drop {
		t.Fatalf("first packet was dropped")
	}
	if res.NIC != priv {
		t.Fatalf("forwarded to wrong NIC")
	}
	if srv.SessionCount() != 1 {
		t.Fatalf("SessionCount() = %d, want 1 after first packet", srv.SessionCount())
	}

	// A second packet on the same flow must reuse the session rather than
	// scheduling again.
	res2, err := d.Step(pub, req)
	if err != nil {
		t.Fatalf("Step (2nd): %v", err)
	}
	if res2.Drop {
		t.Fatalf("second packet was dropped")
	}
	if srv.SessionCount() != 1 {
		t.Fatalf("SessionCount() = %d, want still 1 after repeat packet", srv.SessionCount())
	}
}

func TestDispatcherDropsWhenNoActiveServer(t *testing.T) {
	r := NewRegistry()
	pub := newFakeNIC("pub0")
	priv := newFakeNIC("priv0")
	vip := Endpoint{NIC: pub, Protocol: TCP, Addr: mustAddr("10.0.0.1"), Port: 80}
	r.AddService(vip, RoundRobin, []NIC{priv}, 0)

	d := NewDispatcher(r)
	req := buildTCP(t, mustMAC("02:00:00:00:00:01"), mustMAC("02:00:00:00:00:02"),
		mustAddr("1.2.3.4"), vip.Addr, 5000, vip.Port, tcpFlags{syn: true})

	res, err := d.Step(pub, req)
	if !res.Drop {
		t.Fatalf("packet with no active server was not dropped")
	}
	if err != ErrNoActiveServer {
		t.Fatalf("err = %v, want ErrNoActiveServer", err)
	}
}

// The session table is per-NIC (§5), so this exercises the common
// deployment where one NIC carries both the VIP and the backend: the
// backend's replies ingress on the same Interface the request did.
func TestDispatcherReplyLegMatchesByServerSourceTuple(t *testing.T) {
	r := NewRegistry()
	nic := newFakeNIC("eth0")
	vip := Endpoint{NIC: nic, Protocol: TCP, Addr: mustAddr("10.0.0.1"), Port: 80}
	r.AddService(vip, RoundRobin, []NIC{nic}, 0)
	srv := newTestServer(t, r, nic, "192.168.0.2", 8080, 1)

	d := NewDispatcher(r)
	req := buildTCP(t, mustMAC("02:00:00:00:00:01"), mustMAC("02:00:00:00:00:02"),
		mustAddr("1.2.3.4"), vip.Addr, 5000, vip.Port, tcpFlags{syn: true})
	if _, err := d.Step(nic, req); err != nil {
		t.Fatalf("Step (request): %v", err)
	}

	// Reply leg: sent by the server, source = server's own address, which
	// NAT's request-leg rewrite made the expected destination (VIP).
	reply := buildTCP(t, mustMAC("02:00:00:00:00:02"), mustMAC("02:00:00:00:00:01"),
		srv.Endpoint.Addr, vip.Addr, srv.Endpoint.Port, vip.Port, tcpFlags{ack: true})

	res, err := d.Step(nic, reply)
	if err != nil {
		t.Fatalf("Step (reply): %v", err)
	}
	if res.Drop {
		t.Fatalf("reply was dropped")
	}
	if res.NIC != nic {
		t.Fatalf("reply forwarded to wrong NIC")
	}
}
