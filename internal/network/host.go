// Package network binds the game server to the wire: the ENet host that
// carries the game protocol and the UDP responder for status queries.
package network

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/codecat/go-enet"
	"github.com/rs/zerolog"

	"github.com/gasbugs/AC/internal/protocol"
	"github.com/gasbugs/AC/internal/server"
	"github.com/gasbugs/AC/internal/snapshot"
	"github.com/gasbugs/AC/internal/util"
)

var initOnce sync.Once

// peer is the server-side handle of one ENet connection.
type peer struct {
	p    enet.Peer
	host string
	port uint16
}

func (p *peer) Address() string { return p.host }
func (p *peer) Port() uint16    { return p.port }

// Host is the ENet game transport. It is driven from the tick goroutine
// only.
type Host struct {
	logger zerolog.Logger
	host   enet.Host
	peers  map[enet.Peer]*peer
	port   int
}

// Listen opens the game port. maxClients bounds the number of ENet peers;
// uprate limits the outgoing bandwidth in bytes per second, zero meaning
// unlimited.
func Listen(ip string, port, maxClients, uprate int) (*Host, error) {
	initOnce.Do(func() { enet.Initialize() })

	addr := enet.NewListenAddress(uint16(port))
	if ip != "" {
		addr.SetHost(ip)
	}
	h, err := enet.NewHost(addr, uint64(maxClients), protocol.NumChannels, 0, uint32(uprate))
	if err != nil {
		return nil, fmt.Errorf("failed to open game port %d: %w", port, err)
	}
	logger := util.ComponentLogger("enet")
	logger.Info().Str("ip", ip).Int("port", port).Int("peers", maxClients).Int("uprate", uprate).Msg("game port open")
	return &Host{
		logger: logger,
		host:   h,
		peers:  make(map[enet.Peer]*peer),
		port:   port,
	}, nil
}

// Service waits at most timeout for the next network event.
func (h *Host) Service(timeout time.Duration) (server.TransportEvent, bool) {
	for {
		ev := h.host.Service(uint32(timeout / time.Millisecond))
		switch ev.GetType() {
		case enet.EventNone:
			return server.TransportEvent{}, false

		case enet.EventConnect:
			p := h.wrap(ev.GetPeer())
			return server.TransportEvent{Type: server.TransportConnect, Peer: p}, true

		case enet.EventReceive:
			pkt := ev.GetPacket()
			data := append([]byte(nil), pkt.GetData()...)
			reliable := pkt.GetFlags()&enet.PacketFlagReliable != 0
			pkt.Destroy()
			p, ok := h.peers[ev.GetPeer()]
			if !ok {
				// data from a peer we never saw connect
				timeout = 0
				continue
			}
			return server.TransportEvent{
				Type:     server.TransportReceive,
				Peer:     p,
				Channel:  protocol.Channel(ev.GetChannelID()),
				Data:     data,
				Reliable: reliable,
			}, true

		case enet.EventDisconnect:
			p, ok := h.peers[ev.GetPeer()]
			if !ok {
				timeout = 0
				continue
			}
			delete(h.peers, ev.GetPeer())
			return server.TransportEvent{Type: server.TransportDisconnect, Peer: p}, true
		}
		return server.TransportEvent{}, false
	}
}

func (h *Host) wrap(ep enet.Peer) *peer {
	if p, ok := h.peers[ep]; ok {
		return p
	}
	addr := ep.GetAddress()
	p := &peer{p: ep, port: addr.GetPort()}
	p.host = addr.String()
	if host, _, err := net.SplitHostPort(p.host); err == nil {
		p.host = host
	}
	h.peers[ep] = p
	return p
}

// Send copies the frame into an ENet packet and releases it. go-enet has no
// packet free callback, so the frame cannot be held until delivery.
func (h *Host) Send(sp server.Peer, ch protocol.Channel, f *snapshot.Frame) {
	defer f.Done()
	p, ok := sp.(*peer)
	if !ok {
		return
	}
	flags := enet.PacketFlags(0)
	if f.Reliable() {
		flags = enet.PacketFlagReliable
	}
	if err := p.p.SendBytes(f.Bytes(), uint8(ch), flags); err != nil {
		h.logger.Debug().Err(err).Str("host", p.host).Msg("send failed")
	}
}

// Disconnect asks the peer to leave once its queued packets are out. The
// peer is forgotten at once so no further events are reported for it.
func (h *Host) Disconnect(sp server.Peer, reason protocol.DisconnectReason) {
	p, ok := sp.(*peer)
	if !ok {
		return
	}
	delete(h.peers, p.p)
	p.p.DisconnectLater(uint32(reason))
}

// Close disconnects every peer and releases the host.
func (h *Host) Close() {
	for ep := range h.peers {
		ep.DisconnectNow(uint32(protocol.DiscNone))
	}
	h.peers = nil
	h.host.Destroy()
	h.logger.Info().Int("port", h.port).Msg("game port closed")
}

// Peers returns the number of connected peers.
func (h *Host) Peers() int { return len(h.peers) }

func (h *Host) String() string { return "enet:" + strconv.Itoa(h.port) }
