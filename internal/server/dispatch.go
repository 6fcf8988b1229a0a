package server

import (
	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/flag"
	"github.com/gasbugs/AC/internal/protocol"
	"github.com/gasbugs/AC/internal/snapshot"
)

const (
	maxMapSize     = 65536 + 32768
	maxCfgFileSize = 65536
	maxExtLen      = 50
)

// allowed reports whether a client may send message type t in the current mode.
func (s *Server) allowed(t protocol.MessageType) bool {
	if protocol.ServerOnly(t) {
		return false
	}
	if protocol.EditOnly(t) && s.game.mode != protocol.ModeCoop {
		return false
	}
	return true
}

// Process handles one packet received from c on ch. A connection that has
// not completed the handshake may only send its connect request. Malformed
// input disconnects the sender and nobody else.
func (s *Server) Process(c *Client, ch protocol.Channel, data []byte) {
	if c == nil || c.peer == nil {
		return
	}
	s.bytesIn.Add(int64(len(data)))
	r := protocol.NewReader(data)

	if !c.Authed() {
		if ch == protocol.ChannelMovement {
			return
		}
		if ch != protocol.ChannelReliable || protocol.MessageType(r.GetInt()) != protocol.MsgConnect {
			s.disconnect(c, protocol.DiscTagType)
			return
		}
		if !s.authenticate(c, r) {
			return
		}
	}

	for !r.Done() {
		start := r.Pos()
		t := protocol.MessageType(r.GetInt())
		if !s.allowed(t) {
			s.logger.Warn().Int("cn", c.ID).Str("host", c.Host).Int("type", int(t)).Msg("message type not allowed from client")
			s.disconnect(c, protocol.DiscTagType)
			return
		}
		if !s.handle(c, t, start, r) {
			return
		}
		if c.peer == nil {
			return
		}
	}

	if r.Overread() {
		s.logger.Warn().Int("cn", c.ID).Str("host", c.Host).Msg("packet overread")
		s.disconnect(c, protocol.DiscEndOfPacket)
	}
}

// handle processes one message of type t that started at offset start. It
// reports false when the rest of the packet must be dropped.
func (s *Server) handle(c *Client, t protocol.MessageType, start int, r *protocol.Reader) bool {
	ps := &c.State
	switch t {
	case protocol.MsgTeamText:
		text := protocol.FilterText(r.GetString(protocol.MaxTextLen), protocol.MaxTextLen, true)
		if s.chat(c, text, true) {
			s.sendTeamText(c, text)
		}

	case protocol.MsgText:
		text := protocol.FilterText(r.GetString(protocol.MaxTextLen), protocol.MaxTextLen, true)
		if s.chat(c, text, false) {
			c.queueMessage(protocol.Build(protocol.MsgText, text))
		}

	case protocol.MsgVoiceCom:
		r.GetInt()
		c.queueMessage(r.Slice(start, r.Pos()))

	case protocol.MsgVoiceComTeam:
		s.sendVoiceComTeam(c, r.GetInt())

	case protocol.MsgInitC2S:
		name := protocol.FilterName(r.GetString(protocol.MaxTextLen))
		team := protocol.FilterText(r.GetString(protocol.MaxTextLen), protocol.MaxTeamLen, false)
		skin := r.GetInt()
		if name != c.Name {
			s.logger.Info().Int("cn", c.ID).Str("host", c.Host).Str("name", c.Name).Str("new_name", name).Msg("player changed name")
		}
		if team != c.Team && c.Team != "" {
			s.logger.Info().Int("cn", c.ID).Str("host", c.Host).Str("name", name).Str("team", team).Msg("player changed team")
		}
		c.Name, c.Team, c.Skin = name, team, skin
		c.queueMessage(protocol.Build(protocol.MsgInitC2S, name, team, skin))

	case protocol.MsgItemList:
		s.readItemList(r)

	case protocol.MsgSpawnList:
		if r.GetInt() > 0 {
			for i := range s.game.spawns {
				s.game.spawns[i] = r.GetInt()
			}
			for i := range s.game.flagSpawns {
				s.game.flagSpawns[i] = r.GetInt()
			}
		}
		c.queueMessage(r.Slice(start, r.Pos()))

	case protocol.MsgItemPickup:
		c.events.push(gameEvent{kind: evPickup, item: r.GetInt()})

	case protocol.MsgWeapChange:
		gun := r.GetInt()
		if validGun(gun) {
			ps.GunSelect = gun
			c.queueMessage(r.Slice(start, r.Pos()))
		}

	case protocol.MsgPrimaryWeap:
		if gun := r.GetInt(); validGun(gun) {
			ps.NextPrimary = gun
		}

	case protocol.MsgChangeTeam:
		if ps.Status == StatusAlive {
			ps.Status = StatusDead
			ps.Respawn()
			s.broadcast(protocol.ChannelReliable, protocol.Build(protocol.MsgForceDeath, c.ID), nil)
		}

	case protocol.MsgTrySpawn:
		if ps.Status != StatusDead || ps.LastSpawn >= 0 || !s.canSpawn(c, false) {
			break
		}
		if ps.LastDeath != 0 {
			ps.Respawn()
		}
		s.sendSpawn(c)

	case protocol.MsgSpawn:
		ls, gun := r.GetInt(), r.GetInt()
		if (ps.Status != StatusAlive && ps.Status != StatusDead) || ls != ps.LifeSequence || ps.LastSpawn < 0 || !validGun(gun) {
			break
		}
		ps.LastSpawn = -1
		ps.Status = StatusAlive
		ps.GunSelect = gun
		c.Stage = StagePlaying
		w := protocol.NewWriter(64)
		w.PutInts(int(protocol.MsgSpawn), ps.LifeSequence, ps.Health, ps.Armour, ps.GunSelect)
		w.PutInts(ps.Ammo[:]...).PutInts(ps.Mag[:]...)
		c.queueMessage(w.Bytes())

	case protocol.MsgSuicide:
		c.events.push(gameEvent{kind: evSuicide})

	case protocol.MsgShoot:
		e := gameEvent{kind: evShot}
		s.setEventMillis(c, &e, r)
		e.gun = r.GetInt()
		for k := 0; k < 3; k++ {
			e.from[k] = float32(r.GetInt()) / protocol.DMF
		}
		for k := 0; k < 3; k++ {
			e.to[k] = float32(r.GetInt()) / protocol.DMF
		}
		c.events.push(e)
		hits := r.GetInt()
		for k := 0; k < hits && !r.Overread(); k++ {
			h := gameEvent{kind: evHit, target: r.GetInt(), lifeSequence: r.GetInt(), info: r.GetInt()}
			for j := 0; j < 3; j++ {
				h.dir[j] = float32(r.GetInt()) / protocol.DNF
			}
			c.events.push(h)
		}

	case protocol.MsgExplode:
		e := gameEvent{kind: evExplode}
		s.setEventMillis(c, &e, r)
		e.gun = r.GetInt()
		e.id = r.GetInt()
		c.events.push(e)
		hits := r.GetInt()
		for k := 0; k < hits && !r.Overread(); k++ {
			h := gameEvent{kind: evHit, target: r.GetInt(), lifeSequence: r.GetInt()}
			h.dist = float32(r.GetInt()) / protocol.DMF
			for j := 0; j < 3; j++ {
				h.dir[j] = float32(r.GetInt()) / protocol.DNF
			}
			c.events.push(h)
		}

	case protocol.MsgAkimbo:
		e := gameEvent{kind: evAkimbo}
		s.setEventMillis(c, &e, r)
		c.events.push(e)

	case protocol.MsgReload:
		e := gameEvent{kind: evReload}
		s.setEventMillis(c, &e, r)
		e.gun = r.GetInt()
		c.events.push(e)

	case protocol.MsgPing:
		pong := protocol.Build(protocol.MsgPong, r.GetInt())
		s.sendFrame(c, protocol.ChannelReliable, snapshot.NewFrame(pong, false))

	case protocol.MsgPos:
		if cn := r.GetInt(); cn != c.ID {
			s.logger.Warn().Int("cn", c.ID).Str("host", c.Host).Int("claimed", cn).Msg("position for another client")
			s.disconnect(c, protocol.DiscClientNum)
			return false
		}
		for i := 0; i < 3; i++ {
			ps.Pos[i] = float32(r.GetUint()) / protocol.DMF
		}
		r.GetUint()
		for i := 0; i < 5; i++ {
			r.GetInt()
		}
		r.GetUint()
		if ps.Status == StatusAlive || ps.Status == StatusEditing {
			c.position = append(c.position[:0], r.Slice(start, r.Pos())...)
		}

	case protocol.MsgNextMap:
		name := protocol.FilterText(r.GetString(protocol.MaxTextLen), protocol.MaxTextLen, false)
		mode := protocol.GameMode(r.GetInt())
		if s.game.mapReload || s.numClients() == 1 {
			s.resetMap(name, mode, -1, true)
		}

	case protocol.MsgSendMap:
		name := protocol.FilterText(r.GetString(protocol.MaxTextLen), protocol.MaxTextLen, false)
		mapSize, cfgSize, cfgSizeGz := r.GetInt(), r.GetInt(), r.GetInt()
		if mapSize < 0 || cfgSizeGz < 0 || r.Remaining() < mapSize+cfgSizeGz {
			r.ForceOverread()
			break
		}
		s.receiveMap(c, name, mapSize, cfgSize, cfgSizeGz, r.Bytes(mapSize+cfgSizeGz))

	case protocol.MsgRecvMap:
		s.sendMapTo(c)

	case protocol.MsgFlagAction:
		action, fl := flag.Action(r.GetInt()), r.GetInt()
		if !s.game.mode.Flags() || !flag.Valid(fl) || action < 0 || action >= flag.NumClientActions {
			break
		}
		s.flagAction(fl, action, c.ID)

	case protocol.MsgSetAdmin:
		claim := r.GetInt() != 0
		hash := r.GetString(protocol.MaxTextLen)
		role := protocol.RoleDefault
		if claim {
			role = protocol.RoleAdmin
		}
		s.changeRole(c, role, hash, false)

	case protocol.MsgCallVote:
		s.callVote(c, start, r)

	case protocol.MsgVote:
		s.castVote(c, start, r)

	case protocol.MsgWhois:
		s.sendWhois(c, r.GetInt())

	case protocol.MsgListDemos:
		s.listDemos(c)

	case protocol.MsgGetDemo:
		s.sendDemo(c, r.GetInt())

	case protocol.MsgExtension:
		ext := r.GetString(64)
		n := r.GetInt()
		if n > maxExtLen {
			return false
		}
		if ext == "driAn::writelog" {
			text := r.GetString(n)
			if c.Role == protocol.RoleAdmin {
				s.logger.Info().Int("cn", c.ID).Str("host", c.Host).Str("name", c.Name).Str("text", text).Msg("admin log entry")
			}
		} else {
			for ; n > 0; n-- {
				r.GetInt()
			}
		}

	default:
		size := protocol.MessageSize(t)
		if size <= 0 {
			s.logger.Warn().Int("cn", c.ID).Str("host", c.Host).Int("type", int(t)).Msg("unknown message type")
			s.disconnect(c, protocol.DiscTagType)
			return false
		}
		for i := 1; i < size; i++ {
			r.GetInt()
		}
		c.queueMessage(r.Slice(start, r.Pos()))
	}
	return true
}

// setEventMillis reads an event's client timestamp and maps it to game time.
// The mapping is resynchronised whenever the client's queue was idle.
func (s *Server) setEventMillis(c *Client, e *gameEvent, r *protocol.Reader) {
	e.id = r.GetInt()
	id := msDuration(e.id)
	if !c.timeSync || (c.events.len() == 0 && c.State.WaitExpired(s.game.millis)) {
		c.timeSync = true
		c.gameOffset = s.game.millis - id
		e.millis = s.game.millis
		return
	}
	e.millis = c.gameOffset + id
}

// chat runs the spam filter on text said by c and logs it. It reports
// whether the text may be relayed.
func (s *Server) chat(c *Client, text string, team bool) bool {
	spam := c.spam.Check(text, s.now)
	ev := s.logger.Info().Int("cn", c.ID).Str("host", c.Host).Str("name", c.Name).Str("text", text)
	if team {
		ev = ev.Str("team", c.Team)
	}
	if spam {
		ev.Msg("spam detected")
		s.sendServMsg(c, "\f3please do not spam")
		return false
	}
	ev.Msg("player says")
	p := events.ChatPayload{CN: c.ID, Name: c.Name, Text: text}
	if team {
		p.Team = c.Team
	}
	s.emit(events.EventChat, p)
	return true
}

// teamAudience selects the clients that hear c's team messages.
func (s *Server) teamAudience(c *Client) func(*Client) bool {
	teams := s.game.mode.Teams()
	return func(o *Client) bool {
		return o != c && (!teams || o.Team == c.Team)
	}
}

func (s *Server) sendTeamText(c *Client, text string) {
	if c.Team == "" {
		return
	}
	s.broadcastTo(protocol.ChannelReliable, protocol.Build(protocol.MsgTeamText, c.ID, text), s.teamAudience(c))
}

func (s *Server) sendVoiceComTeam(c *Client, sound int) {
	if c.Team == "" {
		return
	}
	s.broadcastTo(protocol.ChannelReliable, protocol.Build(protocol.MsgVoiceComTeam, c.ID, sound), s.teamAudience(c))
}

func (s *Server) sendWhois(c *Client, cn int) {
	o := s.client(cn)
	if o == nil {
		return
	}
	ip := int(hostIP(o.Host))
	if c.Role != protocol.RoleAdmin {
		ip &= 0xFFFF
	}
	s.sendTo(c, protocol.ChannelReliable, protocol.Build(protocol.MsgWhoisInfo, cn, ip))
}
