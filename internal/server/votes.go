package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/protocol"
	"github.com/gasbugs/AC/internal/vote"
)

// teamModes is the set of team game modes.
var teamModes = func() vote.ModeMask {
	var modes []int
	for m := protocol.GameMode(0); m < protocol.NumGameModes; m++ {
		if m.Teams() {
			modes = append(modes, int(m))
		}
	}
	return vote.Modes(modes...)
}()

func voter(c *Client) vote.Voter {
	return vote.Voter{ID: c.ID, Role: c.Role, ConnectedAt: c.ConnectedAt}
}

// electorate returns the connections allowed to vote.
func (s *Server) electorate() []vote.Voter {
	var out []vote.Voter
	s.connected(func(c *Client) {
		if c.Authed() {
			out = append(out, voter(c))
		}
	})
	return out
}

func (s *Server) evaluateVote(force bool) {
	s.votes.Evaluate(s.electorate(), s.now, force)
}

// callVote reads a vote proposal from c and submits it.
func (s *Server) callVote(c *Client, start int, r *protocol.Reader) {
	kind := vote.Kind(r.GetInt())
	var a vote.Action
	known := true
	switch kind {
	case vote.KindMap:
		name := protocol.FilterText(r.GetString(protocol.MaxTextLen), protocol.MaxTextLen, false)
		mode := protocol.GameMode(r.GetInt())
		a = s.mapAction(c, name, mode)
	case vote.KindKick:
		a = s.kickAction(r.GetInt())
	case vote.KindBan:
		a = s.banAction(r.GetInt())
	case vote.KindRemoveBans:
		a = s.removeBansAction()
	case vote.KindMasterMode:
		a = s.masterModeAction(protocol.MasterMode(r.GetInt()))
	case vote.KindAutoTeam:
		a = s.autoTeamAction(r.GetInt() > 0)
	case vote.KindShuffleTeams:
		a = s.shuffleTeamsAction()
	case vote.KindForceTeam:
		a = s.forceTeamAction(r.GetInt())
	case vote.KindGiveAdmin:
		a = s.giveAdminAction(r.GetInt())
	case vote.KindRecordDemo:
		a = s.recordDemoAction(r.GetInt() != 0)
	case vote.KindStopDemo:
		a = s.stopDemoAction()
	case vote.KindClearDemos:
		a = s.clearDemosAction(r.GetInt())
	case vote.KindServerDesc:
		text := protocol.FilterText(r.GetString(protocol.MaxTextLen), protocol.MaxTextLen, true)
		a = s.serverDescAction(c, text)
	default:
		known = false
	}
	if r.Overread() {
		return
	}
	msg := clientMessage(c, r.Slice(start, r.Pos()))

	var err error
	if known {
		_, err = s.votes.Call(voter(c), a, int(s.game.mode), s.numClients(), s.now)
	} else {
		err = vote.ErrInvalid
	}
	if err != nil {
		code := int(vote.ErrInvalid)
		var ve vote.Error
		if errors.As(err, &ve) {
			code = int(ve)
		}
		s.sendTo(c, protocol.ChannelReliable, protocol.Build(protocol.MsgCallVoteErr, code))
		s.logger.Info().Int("cn", c.ID).Str("name", c.Name).Str("kind", kind.String()).Err(err).Msg("failed to call a vote")
		s.emit(events.EventVoteCalled, events.VotePayload{OwnerCN: c.ID, Owner: c.Name, Kind: kind.String(), Desc: a.Desc, Error: err.Error()})
		return
	}
	s.sendTo(c, protocol.ChannelReliable, protocol.Build(protocol.MsgCallVoteSuc))
	s.broadcast(protocol.ChannelReliable, msg, c)
	s.logger.Info().Int("cn", c.ID).Str("name", c.Name).Str("kind", kind.String()).Str("desc", a.Desc).Msg("called a vote")
	s.emit(events.EventVoteCalled, events.VotePayload{OwnerCN: c.ID, Owner: c.Name, Kind: kind.String(), Desc: a.Desc})
	s.evaluateVote(false)
}

// castVote reads a ballot from c.
func (s *Server) castVote(c *Client, start int, r *protocol.Reader) {
	b := vote.Ballot(r.GetInt())
	if r.Overread() {
		return
	}
	msg := clientMessage(c, r.Slice(start, r.Pos()))
	err := s.votes.Cast(voter(c), b, s.electorate(), s.now)
	switch {
	case err == nil:
		s.broadcast(protocol.ChannelReliable, msg, c)
	case errors.Is(err, vote.ErrMultiple), errors.Is(err, vote.ErrPermission):
		s.sendTo(c, protocol.ChannelReliable, protocol.Build(protocol.MsgCallVoteErr, int(err.(vote.Error))))
	}
}

// onVoteResolved announces the outcome of a proposal, before it is executed.
func (s *Server) onVoteResolved(p *vote.Proposal, res vote.Result) {
	s.broadcast(protocol.ChannelReliable, protocol.Build(protocol.MsgVoteResult, int(res)), nil)
	owner := s.client(p.Owner)
	name := ""
	if owner != nil {
		name = owner.Name
	}
	s.logger.Info().Int("owner_cn", p.Owner).Str("owner", name).Str("kind", p.Action.Kind.String()).
		Str("desc", p.Action.Desc).Str("result", res.String()).Msg("vote resolved")
	s.emit(events.EventVoteResolved, events.VotePayload{
		OwnerCN: p.Owner, Owner: name, Kind: p.Action.Kind.String(), Desc: p.Action.Desc, Result: res.String(),
	})
}

func (s *Server) mapAction(c *Client, name string, mode protocol.GameMode) vote.Action {
	return vote.Action{
		Kind:  vote.KindMap,
		Desc:  fmt.Sprintf("load map '%s' in mode '%s'", name, mode),
		Modes: vote.AllModes,
		Valid: func() bool {
			if !mode.Valid() || !mode.Multiplayer() || name == "" {
				return false
			}
			return c.Role == protocol.RoleAdmin || s.rotation.Allows(name, mode)
		},
		Execute: func() {
			if s.numClients() > 2 && mode != protocol.ModeCoop && s.game.millis > s.game.limit/4 {
				s.forceIntermission(name, mode)
				return
			}
			s.resetMap(name, mode, -1, true)
		},
	}
}

// playerAction is a vote against another connection identified by cn.
func (s *Server) playerAction(kind vote.Kind, cn int, desc string, role protocol.Role, modes vote.ModeMask, exec func(t *Client)) vote.Action {
	name := "unknown"
	if t := s.client(cn); t != nil {
		name = t.Name
	}
	return vote.Action{
		Kind:  kind,
		Desc:  fmt.Sprintf(desc, name),
		Role:  role,
		Modes: modes,
		Valid: func() bool {
			t := s.client(cn)
			return t != nil && t.Authed() && t.Role != protocol.RoleAdmin
		},
		Execute: func() {
			if t := s.client(cn); t != nil {
				exec(t)
			}
		},
	}
}

func (s *Server) kickAction(cn int) vote.Action {
	return s.playerAction(vote.KindKick, cn, "kick player %s", protocol.RoleDefault, vote.AllModes, func(t *Client) {
		s.disconnect(t, protocol.DiscKick)
	})
}

func (s *Server) banAction(cn int) vote.Action {
	return s.playerAction(vote.KindBan, cn, "ban player %s", protocol.RoleDefault, vote.AllModes, func(t *Client) {
		s.banClient(t, autoBanDuration, "vote")
		s.disconnect(t, protocol.DiscBan)
	})
}

func (s *Server) forceTeamAction(cn int) vote.Action {
	a := s.playerAction(vote.KindForceTeam, cn, "force player %s to the enemy team", protocol.RoleDefault, teamModes, func(t *Client) {
		if team := t.TeamIndex(); team >= 0 {
			t.lastForce = time.Time{}
			s.forceTeam(t, 1-team, true, true)
		}
	})
	a.Valid = func() bool {
		t := s.client(cn)
		return t != nil && t.Authed()
	}
	return a
}

func (s *Server) giveAdminAction(cn int) vote.Action {
	a := s.playerAction(vote.KindGiveAdmin, cn, "give admin to player %s", protocol.RoleAdmin, vote.AllModes, func(t *Client) {
		s.changeRole(t, protocol.RoleAdmin, "", true)
	})
	a.Valid = func() bool {
		t := s.client(cn)
		return t != nil && t.Authed()
	}
	return a
}

func (s *Server) removeBansAction() vote.Action {
	return vote.Action{
		Kind:  vote.KindRemoveBans,
		Desc:  "remove all bans",
		Modes: vote.AllModes,
		Execute: func() {
			n := s.bans.Clear()
			s.logger.Info().Int("count", n).Msg("bans cleared")
		},
	}
}

func (s *Server) masterModeAction(mm protocol.MasterMode) vote.Action {
	return vote.Action{
		Kind:  vote.KindMasterMode,
		Desc:  fmt.Sprintf("change mastermode to '%s'", mm),
		Role:  protocol.RoleAdmin,
		Modes: vote.AllModes,
		Valid: func() bool { return mm >= 0 && mm < protocol.NumMasterModes },
		Execute: func() {
			s.masterMode = mm
			s.logger.Info().Str("mastermode", mm.String()).Msg("mastermode changed")
		},
	}
}

func (s *Server) autoTeamAction(enable bool) vote.Action {
	state := "disable"
	if enable {
		state = "enable"
	}
	return vote.Action{
		Kind:  vote.KindAutoTeam,
		Desc:  state + " autoteam",
		Modes: vote.AllModes,
		Execute: func() {
			s.autoTeam = enable
			on := 0
			if enable {
				on = 1
			}
			s.broadcast(protocol.ChannelReliable, protocol.Build(protocol.MsgAutoTeam, on), nil)
			if enable && s.game.mode.Teams() {
				s.refill(true)
			}
		},
	}
}

func (s *Server) shuffleTeamsAction() vote.Action {
	return vote.Action{
		Kind:    vote.KindShuffleTeams,
		Desc:    "shuffle teams",
		Modes:   teamModes,
		Execute: func() { s.shuffleTeams(true) },
	}
}

func (s *Server) recordDemoAction(enable bool) vote.Action {
	state := "disable"
	if enable {
		state = "enable"
	}
	return vote.Action{
		Kind:    vote.KindRecordDemo,
		Desc:    state + " demorecord",
		Role:    protocol.RoleAdmin,
		Modes:   vote.AllModes,
		Execute: func() { s.demoNextMatch = enable },
	}
}

func (s *Server) stopDemoAction() vote.Action {
	return vote.Action{
		Kind:    vote.KindStopDemo,
		Desc:    "stop demo",
		Role:    protocol.RoleAdmin,
		Modes:   vote.AllModes,
		Execute: func() { s.endDemoRecord() },
	}
}

func (s *Server) clearDemosAction(n int) vote.Action {
	desc := "clear all demos"
	if n > 0 {
		desc = fmt.Sprintf("clear demo %d", n)
	}
	return vote.Action{
		Kind:  vote.KindClearDemos,
		Desc:  desc,
		Role:  protocol.RoleAdmin,
		Modes: vote.AllModes,
		Execute: func() {
			if s.demos.Clear(n) == 0 {
				return
			}
			if n <= 0 {
				s.sendServMsg(nil, "cleared all demos")
			} else {
				s.sendServMsg(nil, fmt.Sprintf("cleared demo %d", n))
			}
		},
	}
}

func (s *Server) serverDescAction(c *Client, text string) vote.Action {
	return vote.Action{
		Kind:  vote.KindServerDesc,
		Desc:  fmt.Sprintf("set server description to '%s'", text),
		Modes: vote.AllModes,
		Valid: func() bool {
			return (s.settings.DescriptionPrefix != "" || s.settings.DescriptionSuffix != "") && c.peer != nil
		},
		Execute: func() {
			s.desc.current = s.settings.DescriptionPrefix + text + s.settings.DescriptionSuffix
			s.desc.custom = true
			s.desc.callerHost = c.Host
			s.desc.callerPort = c.Port
		},
	}
}
