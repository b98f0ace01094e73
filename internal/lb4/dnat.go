package lb4

// dnatMode is destination-only NAT (§4.2 DNAT): the client address is
// preserved on the forward leg, so the server must be configured to route
// its replies back through the balancer for the reverse rewrite to apply.
type dnatMode struct{}

// dnatData is the DNAT session payload: the VIP the reply leg restores as
// source address.
type dnatData struct {
	VIP Endpoint
}

func (m *dnatMode) Name() string { return ModeDNAT }

func (m *dnatMode) AllocSession(client, vip Endpoint, server *Server) *Session {
	return &Session{
		Public:  client,
		Private: server.Endpoint,
		Server:  server,
		Data:    dnatData{VIP: vip},
	}
}

func (m *dnatMode) Forward(pkt []byte, sess *Session, clientToServer bool) ([]byte, error) {
	d, err := decodeFrame(pkt)
	if err != nil {
		return nil, err
	}

	if clientToServer {
		setIPPort(d, false, sess.Private.Addr, sess.Private.Port)
	} else {
		data := sess.Data.(dnatData)
		setIPPort(d, true, data.VIP.Addr, data.VIP.Port)
	}
	decrementTTL(d)
	return d.serialize()
}
