package server

import (
	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/flag"
	"github.com/gasbugs/AC/internal/protocol"
)

// disconnect drops c for reason and tells its peer.
func (s *Server) disconnect(c *Client, reason protocol.DisconnectReason) {
	s.teardown(c, reason, true)
}

// teardown removes c from the session. notifyPeer is false when the peer
// already went away on its own.
func (s *Server) teardown(c *Client, reason protocol.DisconnectReason, notifyPeer bool) {
	if c == nil || c.peer == nil {
		return
	}
	authed := c.Authed()
	if authed {
		for _, fl := range s.flags.Carried(c.ID) {
			s.flagAction(fl, flag.Lost, -1)
		}
		s.findScore(c, true).save(&c.State)
	}

	ev := s.logger.Info().Int("cn", c.ID).Str("host", c.Host).Str("name", c.Name)
	if reason != protocol.DiscNone {
		ev = ev.Str("reason", reason.String())
	}
	ev.Msg("client disconnected")

	if notifyPeer && s.transport != nil {
		s.transport.Disconnect(c.peer, reason)
	}
	delete(s.byPeer, c.peer)
	c.peer = nil
	role := c.Role
	c.Role = protocol.RoleDefault
	c.Stage = StageConnecting
	c.events.clear()
	c.position = c.position[:0]
	c.messages = c.messages[:0]
	s.votes.Forget(c.ID)

	if authed {
		s.broadcast(protocol.ChannelReliable, protocol.Build(protocol.MsgCDis, c.ID), nil)
		s.evaluateVote(false)
	}
	p := clientPayload(c, reason.String())
	p.Role = role.String()
	s.emit(events.EventClientDisconnected, p)
}
