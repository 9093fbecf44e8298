package exporter

func (state ConnState) String() (text string) {
	switch state {
	case ConnDisconnected:
		text = "disconnected"
	case ConnAwaitingResponse:
		text = "awaiting-response"
	case ConnConnected:
		text = "connected"
	default:
		text = "invalid"
	}
	return
}

func (state BindingState) String() (text string) {
	switch state {
	case BindingDisconnected:
		text = "disconnected"
	case BindingInitiating:
		text = "initiating"
	case BindingReady:
		text = "ready"
	case BindingActive:
		text = "active"
	default:
		text = "invalid"
	}
	return
}

// Session the binding belongs to
func (binding *Binding) Session() *Session { return binding.session }

// Peer the binding targets
func (binding *Binding) Peer() *Peer { return binding.peer }

// Binding is eligible for selection
func (binding *Binding) selectable() (ok bool) {
	if binding.State != BindingReady && binding.State != BindingActive {
		return
	}
	conn := binding.peer.conn
	ok = conn != nil && conn.State == ConnConnected
	return
}

// Current active binding, nil when none
func (session *Session) Active() *Binding { return session.active }

// Bindings in first seen order
func (session *Session) Bindings() []*Binding { return session.bindings }

// Delivery state, nil once the session is stopped
func (session *Session) Context() *TransmissionContext { return session.tc.Get() }

// Sequence number the next record will carry
func (session *Session) NextDSN() uint64 { return session.nextDSN }

// Records dropped by teardown
func (session *Session) Lost() uint64 { return session.lost }

// Peer connection, nil before the first connect attempt
func (peer *Peer) Connection() *Connection { return peer.conn }

func (peer *Peer) binding(session *Session) (found *Binding) {
	for _, binding := range peer.bindings {
		if binding.session == session {
			found = binding
			return
		}
	}
	return
}
