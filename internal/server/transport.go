package server

import (
	"time"

	"github.com/gasbugs/AC/internal/protocol"
	"github.com/gasbugs/AC/internal/snapshot"
)

// Peer is a transport connection handle. Implementations must be comparable.
type Peer interface {
	// Address returns the remote host without the port.
	Address() string
	Port() uint16
}

// TransportEventType is the kind of a TransportEvent.
type TransportEventType int

const (
	TransportConnect TransportEventType = iota + 1
	TransportReceive
	TransportDisconnect
)

// TransportEvent is one event drained from the transport.
type TransportEvent struct {
	Type     TransportEventType
	Peer     Peer
	Channel  protocol.Channel
	Data     []byte
	Reliable bool
}

// Transport is the game network. Service waits at most timeout for the next
// event. Send takes ownership of the frame and must call its Done method
// once the frame has been queued or has failed to queue.
type Transport interface {
	Service(timeout time.Duration) (TransportEvent, bool)
	Send(p Peer, ch protocol.Channel, f *snapshot.Frame)
	Disconnect(p Peer, reason protocol.DisconnectReason)
}

// clientSink routes broadcaster frames to connections by id.
type clientSink struct {
	s *Server
}

func (k clientSink) Send(id int, ch protocol.Channel, f *snapshot.Frame) {
	c := k.s.client(id)
	if c == nil || c.peer == nil {
		f.Done()
		return
	}
	k.s.sendFrame(c, ch, f)
}
