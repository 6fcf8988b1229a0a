package server

import (
	"encoding/binary"
	"net"

	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/protocol"
)

// hostIP returns the IPv4 address of host as a little-endian integer, or 0.
func hostIP(host string) uint32 {
	ip := net.ParseIP(host).To4()
	if ip == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(ip)
}

func clientPayload(c *Client, reason string) events.ClientPayload {
	return events.ClientPayload{
		CN:     c.ID,
		Name:   c.Name,
		Host:   c.Host,
		Team:   c.Team,
		Role:   c.Role.String(),
		Reason: reason,
	}
}

// sendInitS2C greets a new connection with its client number and salt.
func (s *Server) sendInitS2C(c *Client) {
	hasPassword := 0
	if s.settings.Password != "" {
		hasPassword = 1
	}
	s.sendTo(c, protocol.ChannelReliable, protocol.Build(protocol.MsgInitS2C, c.ID, protocol.ProtocolVersion, c.Salt, hasPassword))
}

// authenticate reads the connect request from r and decides whether c may
// join. It reports false when c was refused.
func (s *Server) authenticate(c *Client, r *protocol.Reader) bool {
	c.Name = protocol.FilterName(r.GetString(protocol.MaxTextLen))
	hash := r.GetString(protocol.MaxTextLen)
	wantRole := protocol.Role(r.GetInt())
	c.State.NextPrimary = r.GetInt()

	banned := s.bans.Banned(c.Host, s.now) || s.blacklist.Contains(c.Host)
	full := s.numClients() > s.settings.MaxClients
	private := s.masterMode == protocol.MasterPrivate

	reason := protocol.DiscNone
	entry, ok := s.passwords.Check(c.Name, hash, c.Salt)
	switch {
	case ok && (!entry.DenyAdmin || (banned && !full && !private)):
		if !entry.DenyAdmin && wantRole == protocol.RoleAdmin {
			c.Role = protocol.RoleAdmin
		}
		if banned {
			s.bans.Remove(c.Host)
			s.logger.Info().Int("cn", c.ID).Str("host", c.Host).Str("name", c.Name).Msg("admin_ban_bypass")
		}
		if full {
			s.makeRoom(c)
		}
		s.logger.Info().Int("cn", c.ID).Str("host", c.Host).Str("name", c.Name).Int("pwd_line", entry.Line).Msg("logged in using password")
	case s.settings.Password != "":
		if hash != protocol.PasswordHash(c.Name, s.settings.Password, c.Salt) {
			reason = protocol.DiscWrongPassword
		}
	case private:
		reason = protocol.DiscPrivate
	case full:
		reason = protocol.DiscMaxClients
	case banned:
		reason = protocol.DiscBanRefuse
	}
	if reason != protocol.DiscNone {
		s.disconnect(c, reason)
		return false
	}

	c.Stage = StageIdle
	s.connected(func(o *Client) {
		if o != c && o.Host == c.Host && o.Port == c.Port {
			s.disconnect(o, protocol.DiscDuplicate)
		}
	})
	s.logger.Info().Int("cn", c.ID).Str("host", c.Host).Str("name", c.Name).Msg("client authenticated")

	s.sendWelcome(c, protocol.ChannelReliable, false)
	if sc := s.findScore(c, false); sc != nil {
		s.sendResume(c)
	}
	if c.Role == protocol.RoleAdmin {
		c.Role = protocol.RoleDefault
		s.changeRole(c, protocol.RoleAdmin, "", true)
	}
	s.emit(events.EventClientAuthenticated, clientPayload(c, ""))
	return true
}

// makeRoom drops one other connection so that an admin can join a full server.
func (s *Server) makeRoom(c *Client) {
	for _, o := range s.clients {
		if o != c && o.peer != nil && o.Role != protocol.RoleAdmin {
			s.disconnect(o, protocol.DiscMaxClients)
			return
		}
	}
}

// welcomePacket builds the match state sent to a joining connection. With
// c nil it builds the state seen by a demo viewer.
func (s *Server) welcomePacket(c *Client, forceDeath bool) []byte {
	w := protocol.NewWriter(512)
	numcl := s.numClients()
	if s.game.mapName == "" {
		w.PutInts(int(protocol.MsgWelcome), -1)
	} else {
		w.PutInts(int(protocol.MsgWelcome), numcl)
		w.PutInt(int(protocol.MsgMapChange)).PutString(s.game.mapName).PutInt(int(s.game.mode)).PutInt(s.mapAvailable())
		if s.game.mode > 1 || (s.game.mode == 0 && numcl > 0) {
			w.PutInts(int(protocol.MsgTimeUp), s.game.minRemain)
		}
		if numcl > 1 || c == nil {
			w.PutInt(int(protocol.MsgItemList))
			for i, it := range s.items {
				if it.spawned {
					w.PutInts(i, it.kind)
				}
			}
			w.PutInt(-1)
		}
		if s.game.mode.Flags() {
			for i := range s.flags.Flags {
				s.putFlagInfo(w, i)
			}
		}
	}

	s.connected(func(o *Client) {
		if o.Role == protocol.RoleAdmin && (c == nil || o != c) {
			w.PutInts(int(protocol.MsgServOpInfo), o.ID, int(o.Role))
		}
	})

	restored := false
	if c != nil {
		if numcl > 1 {
			w.PutInts(int(protocol.MsgForceTeam), s.freeTeam(c), 0)
			c.lastForce = s.now
		}
		if sc := s.findScore(c, false); sc != nil {
			sc.restore(&c.State)
			restored = true
		}
		ps := &c.State
		if !s.canSpawn(c, true) || forceDeath {
			w.PutInts(int(protocol.MsgForceDeath), c.ID)
			s.broadcast(protocol.ChannelReliable, protocol.Build(protocol.MsgForceDeath, c.ID), c)
		} else {
			ps.SpawnState(s.game.mode)
			ps.LifeSequence++
			s.putSpawnState(w, c, -1)
		}
	}

	if c == nil || numcl > 1 || restored {
		w.PutInt(int(protocol.MsgResume))
		s.connected(func(o *Client) {
			if o.Authed() && (o != c || restored) {
				putResumeRow(w, o)
			}
		})
		w.PutInt(-1)
	}

	autoTeam := 0
	if s.autoTeam {
		autoTeam = 1
	}
	w.PutInts(int(protocol.MsgAutoTeam), autoTeam)

	if c != nil && s.settings.MOTD != "" {
		w.PutInt(int(protocol.MsgText)).PutString(s.settings.MOTD)
	}
	return w.Copy()
}

// sendWelcome sends the match state to a connection that just joined or
// finished downloading the map.
func (s *Server) sendWelcome(c *Client, ch protocol.Channel, forceDeath bool) {
	s.sendTo(c, ch, s.welcomePacket(c, forceDeath))
}

func (s *Server) putSpawnState(w *protocol.Writer, c *Client, spawn int) {
	ps := &c.State
	w.PutInts(int(protocol.MsgSpawnState), ps.LifeSequence, ps.Health, ps.Armour, ps.Primary, ps.GunSelect, spawn)
	w.PutInts(ps.Ammo[:]...).PutInts(ps.Mag[:]...)
	ps.LastSpawn = s.game.millis
}

// sendSpawn hands c a fresh spawn state for the current mode.
func (s *Server) sendSpawn(c *Client) {
	ps := &c.State
	ps.SpawnState(s.game.mode)
	ps.LifeSequence++
	spawn := -1
	if s.game.mode.Arena() {
		spawn = c.spawnIndex
	}
	w := protocol.NewWriter(64)
	s.putSpawnState(w, c, spawn)
	s.sendTo(c, protocol.ChannelReliable, w.Bytes())
}

func putResumeRow(w *protocol.Writer, c *Client) {
	ps := &c.State
	w.PutInts(c.ID, int(ps.Status), ps.LifeSequence, ps.GunSelect, ps.FlagScore, ps.Frags, ps.Deaths, ps.Health, ps.Armour)
	w.PutInts(ps.Ammo[:]...).PutInts(ps.Mag[:]...)
}

// sendResume tells everyone else about the score c just got back.
func (s *Server) sendResume(c *Client) {
	w := protocol.NewWriter(64)
	w.PutInt(int(protocol.MsgResume))
	putResumeRow(w, c)
	w.PutInt(-1)
	s.broadcast(protocol.ChannelReliable, w.Copy(), c)
}

// findScore looks up the score c had earlier in this match. Without
// insert, another live connection from the same host with the same name
// also counts. With insert, a missing entry is created.
func (s *Server) findScore(c *Client, insert bool) *savedScore {
	if !insert {
		for _, o := range s.clients {
			if o != c && o.peer != nil && o.Authed() && o.Host == c.Host && o.Name == c.Name {
				sc := &savedScore{name: o.Name, host: o.Host}
				sc.save(&o.State)
				return sc
			}
		}
	}
	for i := range s.scores {
		if s.scores[i].name == c.Name && s.scores[i].host == c.Host {
			return &s.scores[i]
		}
	}
	if !insert {
		return nil
	}
	s.scores = append(s.scores, savedScore{name: c.Name, host: c.Host})
	return &s.scores[len(s.scores)-1]
}

