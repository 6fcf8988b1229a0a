package server

import (
	"time"

	"github.com/gasbugs/AC/internal/balance"
	"github.com/gasbugs/AC/internal/protocol"
)

const (
	forceTeamInterval = 2 * time.Second
	forcedRecently    = 3 * time.Second
)

// balancePlayers returns the players the team balancer may consider.
func (s *Server) balancePlayers() []balance.Player {
	flagMode := s.game.mode.Flags()
	var out []balance.Player
	s.connected(func(c *Client) {
		if !c.Authed() {
			return
		}
		ps := &c.State
		out = append(out, balance.Player{
			ID:        c.ID,
			Team:      c.TeamIndex(),
			Frags:     ps.Frags,
			Deaths:    ps.Deaths,
			FlagScore: ps.FlagScore,
			Pinned:    flagMode && len(s.flags.Carried(c.ID)) > 0,
			LastMoved: c.lastAutoForce,
			Forced:    !c.lastForce.IsZero() && s.now.Sub(c.lastForce) < forcedRecently,
		})
	})
	return out
}

// freeTeam picks the team for a joining connection.
func (s *Server) freeTeam(c *Client) int {
	return balance.FreeTeam(s.balancePlayers(), c.ID, s.game.mode.Flags(), s.rnd)
}

// forceTeam moves c to team. The client applies the change itself; notify
// tells everybody else.
func (s *Server) forceTeam(c *Client, team int, respawn, notify bool) bool {
	if team < 0 || team > 1 || (!c.lastForce.IsZero() && s.now.Sub(c.lastForce) < forceTeamInterval) {
		return false
	}
	flags := 0
	if respawn {
		flags = 1
		if !notify {
			flags |= 2
		}
	}
	s.sendTo(c, protocol.ChannelReliable, protocol.Build(protocol.MsgForceTeam, team, flags))
	c.lastForce = s.now
	c.Team = TeamName(team)
	if notify {
		s.broadcast(protocol.ChannelReliable, protocol.Build(protocol.MsgForceNotify, c.ID, team), c)
	}
	s.logger.Info().Int("cn", c.ID).Str("name", c.Name).Str("team", c.Team).Msg("player forced to team")
	return true
}

// shuffleTeams deals every player out anew.
func (s *Server) shuffleTeams(notify bool) {
	moves := balance.Shuffle(s.balancePlayers(), s.game.millis, s.game.mode.Flags(), s.rnd)
	for _, m := range moves {
		c := s.client(m.ID)
		if c == nil || c.TeamIndex() == m.Team {
			continue
		}
		c.lastForce = time.Time{}
		s.forceTeam(c, m.Team, false, notify)
	}
}

// refill evens out the team sizes. With now set even a small imbalance is
// fixed at once.
func (s *Server) refill(now bool) {
	moves := s.refiller.Refill(s.balancePlayers(), s.game.millis, now, s.game.mode.Flags(), s.rnd)
	for _, m := range moves {
		c := s.client(m.ID)
		if c == nil {
			continue
		}
		if s.forceTeam(c, m.Team, true, true) {
			c.lastAutoForce = s.game.millis
		}
	}
	s.lastFillup = s.now
}
