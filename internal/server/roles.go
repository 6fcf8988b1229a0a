package server

import (
	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/protocol"
)

// changeRole sets the role of c. Claiming admin needs a password hash that
// matches an admin credential unless force is set. A wrong hash disconnects.
func (s *Server) changeRole(c *Client, role protocol.Role, hash string, force bool) {
	granted := force || role == protocol.RoleDefault
	if !granted && role == protocol.RoleAdmin && hash != "" {
		if e, ok := s.passwords.Check(c.Name, hash, c.Salt); ok && !e.DenyAdmin {
			granted = true
			s.logger.Info().Int("cn", c.ID).Str("name", c.Name).Int("pwd_line", e.Line).Msg("admin password accepted")
		}
	}

	switch {
	case granted:
		if c.Role == role {
			break
		}
		if role == protocol.RoleAdmin {
			s.connected(func(o *Client) {
				if o != c && o.Role == protocol.RoleAdmin {
					o.Role = protocol.RoleDefault
				}
			})
		}
		c.Role = role
		op, r := c.ID, int(role)
		if role == protocol.RoleDefault {
			op, r = -1, -1
		}
		s.broadcast(protocol.ChannelReliable, protocol.Build(protocol.MsgServOpInfo, op, r), nil)
		s.logger.Info().Int("cn", c.ID).Str("host", c.Host).Str("name", c.Name).Str("role", role.String()).Msg("role changed")
		s.emit(events.EventRoleChanged, clientPayload(c, ""))
	case hash != "":
		s.logger.Warn().Int("cn", c.ID).Str("host", c.Host).Str("name", c.Name).Msg("failed admin login")
		s.disconnect(c, protocol.DiscAdminLoginFail)
		return
	}
	s.evaluateVote(false)
}
