package lb4

// natMode is full NAT (§4.2 NAT): both source and destination are rewritten
// on each leg, so the backend sees the balancer's own address rather than
// the client's, and needs no special route back through the balancer.
type natMode struct{}

// natData is the NAT session payload: the VIP address/port the balancer
// masquerades as on the client<->server leg and restores on replies.
type natData struct {
	VIP Endpoint
}

func (*natMode) Name() string { return ModeNAT }

func (m *natMode) AllocSession(client, vip Endpoint, server *Server) *Session {
	return &Session{
		Public:  client,
		Private: server.Endpoint,
		Server:  server,
		Data:    natData{VIP: vip},
	}
}

func (m *natMode) Forward(pkt []byte, sess *Session, clientToServer bool) ([]byte, error) {
	d, err := decodeFrame(pkt)
	if err != nil {
		return nil, err
	}
	data := sess.Data.(natData)

	if clientToServer {
		setIPPort(d, false, sess.Private.Addr, sess.Private.Port)
		setIPPort(d, true, data.VIP.Addr, data.VIP.Port)
	} else {
		setIPPort(d, true, data.VIP.Addr, data.VIP.Port)
		setIPPort(d, false, sess.Public.Addr, sess.Public.Port)
	}
	decrementTTL(d)
	return d.serialize()
}
