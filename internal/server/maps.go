package server

import (
	"time"

	"github.com/google/uuid"

	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/flag"
	"github.com/gasbugs/AC/internal/protocol"
)

const (
	defaultMinutes     = 10
	defaultTeamMinutes = 15
)

// mapAvailable reports 1 when the current map can be downloaded from the server.
func (s *Server) mapAvailable() int {
	if s.mapCopy != nil && s.mapCopy.name == s.game.mapName {
		return 1
	}
	return 0
}

// resetMap starts a new match on name in mode. minutes below zero selects
// the default match length of the mode. Without notify the clients are not
// told, which is used while the server is empty.
func (s *Server) resetMap(name string, mode protocol.GameMode, minutes int, notify bool) {
	if !mode.Valid() {
		mode = protocol.ModeTDM
	}
	s.endDemoRecord()
	if s.desc.custom && !s.descCallerPresent() {
		s.desc.current = s.desc.full
		s.desc.custom = false
		s.sendServMsg(nil, "server description reset to default")
	}

	wasTeams := s.game.mode.Teams()
	s.game.mode = mode
	s.game.mapName = name
	switch {
	case minutes >= 0:
		s.game.minRemain = minutes
	case mode.Teams():
		s.game.minRemain = defaultTeamMinutes
	default:
		s.game.minRemain = defaultMinutes
	}
	s.game.millis = 0
	s.game.limit = time.Duration(s.game.minRemain) * time.Minute
	s.game.mapReload = false
	s.game.interm = 0
	s.lastFillup = s.now

	// A live proposal outlives the map and still expires on its own.
	s.votes.ResetTimers()

	s.items = s.items[:0]
	s.game.notGotItems = true
	s.game.spawns = [3]int{}
	s.game.flagSpawns = [2]int{}
	s.scores = s.scores[:0]
	s.flags.Reset(flagVariant(mode), s.rnd)
	s.game.id = uuid.NewString()
	s.game.started = s.now

	if notify {
		s.broadcast(protocol.ChannelReliable, protocol.Build(protocol.MsgMapChange, name, int(mode), s.mapAvailable()), nil)
		if mode > 1 || (mode == 0 && s.numClients() > 0) {
			s.broadcast(protocol.ChannelReliable, protocol.Build(protocol.MsgTimeUp, s.game.minRemain), nil)
		}
		s.logger.Info().Str("game_id", s.game.id).Str("map", name).Str("mode", mode.String()).Int("minutes", s.game.minRemain).Msg("game start")
	}
	if mode.Arena() {
		s.game.arenaRound = 0
		s.distributeSpawns()
	}
	if notify {
		if mode.Teams() {
			if !wasTeams {
				s.shuffleTeams(false)
			} else if s.autoTeam {
				s.refill(true)
			}
		}
		s.connected(func(c *Client) {
			if !c.Authed() {
				return
			}
			c.mapChange()
			if mode.Multiplayer() {
				s.sendSpawn(c)
			}
		})
	}
	if (s.demoNextMatch || s.cfg.GetDemo().RecordEveryMatch) && name != "" && s.numAuthed() > 0 {
		s.setupDemoRecord()
	}
	if notify && mode.KeepTheFlag() {
		for i := range s.flags.Flags {
			s.sendFlagInfo(i)
		}
	}
	s.game.nextMap = ""
	s.game.forceInterm = false

	s.emit(events.EventMapChanged, events.MapPayload{
		GameID:  s.game.id,
		Map:     name,
		Mode:    mode.String(),
		Minutes: s.game.minRemain,
		Players: s.numAuthed(),
	})
}

func (s *Server) descCallerPresent() bool {
	found := false
	s.connected(func(c *Client) {
		if c.Host == s.desc.callerHost && c.Port == s.desc.callerPort {
			found = true
		}
	})
	return found
}

// checkIntermission updates the remaining minutes and starts the
// intermission once the match time is up.
func (s *Server) checkIntermission() {
	if s.game.minRemain > 0 {
		if s.game.millis >= s.game.limit || s.game.forceInterm {
			s.game.minRemain = 0
		} else {
			s.game.minRemain = int((s.game.limit - s.game.millis + time.Minute - 1) / time.Minute)
		}
		s.broadcast(protocol.ChannelReliable, protocol.Build(protocol.MsgTimeUp, s.game.minRemain), nil)
	}
	if s.game.interm == 0 && s.game.minRemain <= 0 {
		s.game.interm = s.game.millis + intermissionTime
	}
	s.game.forceInterm = false
}

// forceIntermission ends the match early and queues map for the next one.
func (s *Server) forceIntermission(name string, mode protocol.GameMode) {
	s.game.forceInterm = true
	s.game.nextMap = name
	s.game.nextMode = mode
}

// endMatch finishes the match after the intermission and picks the next map.
func (s *Server) endMatch() {
	report := s.gameReport("finished")
	s.logGameStatus("game finished")
	s.emit(events.EventGameFinished, report)
	s.endDemoRecord()
	s.game.interm = 0

	switch {
	case s.game.nextMap != "":
		s.resetMap(s.game.nextMap, s.game.nextMode, -1, true)
	default:
		if e, ok := s.rotation.Next(s.numAuthed()); ok {
			s.resetMap(e.Map, e.Mode, e.Minutes, true)
			return
		}
		// no rotation: let the first client pick what comes next
		for _, c := range s.clients {
			if c.peer != nil && c.Authed() {
				s.sendTo(c, protocol.ChannelReliable, protocol.Build(protocol.MsgMapReload, 0))
				s.game.mapReload = true
				break
			}
		}
	}
}

// resetIfEmpty returns an abandoned server to its defaults.
func (s *Server) resetIfEmpty() {
	if s.numClients() > 0 {
		return
	}
	if s.game.mapName != "" || s.game.mode != protocol.ModeTDM || s.masterMode != protocol.MasterOpen || !s.autoTeam {
		s.resetMap("", protocol.ModeTDM, defaultMinutes, false)
		s.masterMode = protocol.MasterOpen
		s.autoTeam = true
		s.game.nextMap = ""
	}
}

// receiveMap keeps a map uploaded by c.
func (s *Server) receiveMap(c *Client, name string, mapSize, cfgSize, cfgSizeGz int, data []byte) {
	if name == "" || name != s.game.mapName || mapSize > maxMapSize || cfgSize > maxCfgFileSize || (cfgSize > 0 && cfgSizeGz > cfgSize) {
		s.logger.Warn().Int("cn", c.ID).Str("host", c.Host).Str("map", name).Int("size", mapSize).Msg("map upload rejected")
		s.sendServMsg(c, "map upload rejected")
		return
	}
	s.mapCopy = &mapCopy{
		name:      name,
		mapSize:   mapSize,
		cfgSize:   cfgSize,
		cfgSizeGz: cfgSizeGz,
		data:      append([]byte(nil), data...),
	}
	s.logger.Info().Int("cn", c.ID).Str("host", c.Host).Str("name", c.Name).Str("map", name).Int("size", mapSize).Msg("client sent map")
	s.sendServMsg(nil, "[server now has a copy of map "+name+"]")
}

// sendMapTo sends the stored map to c, who rejoins the match after loading it.
func (s *Server) sendMapTo(c *Client) {
	mc := s.mapCopy
	if mc == nil || mc.name != s.game.mapName {
		s.sendServMsg(c, "no map to get")
		return
	}
	for _, fl := range s.flags.Carried(c.ID) {
		s.flagAction(fl, flag.Lost, -1)
	}
	s.findScore(c, true).save(&c.State)

	w := protocol.NewWriter(len(mc.data) + 32)
	w.PutInt(int(protocol.MsgRecvMap)).PutString(mc.name).PutInts(mc.mapSize, mc.cfgSize, mc.cfgSizeGz).Put(mc.data)
	s.sendTo(c, protocol.ChannelBulk, w.Bytes())
	c.mapChange()
	s.sendWelcome(c, protocol.ChannelBulk, true)
	s.logger.Info().Int("cn", c.ID).Str("host", c.Host).Str("name", c.Name).Str("map", mc.name).Msg("client got map")
}
