package lb4

// drMode is Direct Return (§4.2 DR): only the Ethernet destination address
// is rewritten; IP headers are untouched and no reply ever passes back
// through the balancer, so sessions are created optimistically and rely
// entirely on idle timeout for cleanup.
type drMode struct{}

func (m *drMode) Name() string { return ModeDR }

func (m *drMode) AllocSession(client, vip Endpoint, server *Server) *Session {
	return &Session{
		Public:  client,
		Private: server.Endpoint,
		Server:  server,
	}
}

func (m *drMode) Forward(pkt []byte, sess *Session, clientToServer bool) ([]byte, error) {
	if !clientToServer {
		return nil, errNoReplyPath
	}
	d, err := decodeFrame(pkt)
	if err != nil {
		return nil, err
	}
	if sess.Server == nil || sess.Server.MAC == nil {
		return nil, ErrAllocFailed
	}
	d.eth.DstMAC = sess.Server.MAC
	return d.serialize()
}
