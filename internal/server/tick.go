package server

import (
	"context"
	"time"

	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/protocol"
	"github.com/gasbugs/AC/internal/snapshot"
)

// maxEventsPerTick bounds how many transport events one tick drains.
const maxEventsPerTick = 1024

// Run drives the tick loop until ctx is cancelled. On return every client
// has been disconnected and a running demo is stored.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info().Int("port", s.settings.Port).Int("max_clients", s.settings.MaxClients).Msg("game server running")
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		default:
		}
		s.Tick()
	}
}

func (s *Server) shutdown() {
	s.drainCommands()
	s.endDemoRecord()
	s.connected(func(c *Client) {
		s.disconnect(c, protocol.DiscNone)
	})
	s.publishStatus()
	s.logger.Info().Msg("game server stopped")
}

func (s *Server) timer(sec int) time.Duration {
	if sec <= 0 {
		return 0
	}
	return time.Duration(sec) * time.Second
}

// Tick advances the game clock and runs one iteration of the server loop.
// It waits up to the configured tick timeout for network traffic.
func (s *Server) Tick() {
	begin := s.clock()
	diff := begin.Sub(s.now)
	if diff < 0 {
		diff = 0
	}
	s.now = begin
	s.game.millis += diff

	if s.game.minRemain > 0 {
		s.processEvents()
		s.checkItemSpawns(diff)
		if s.game.mode.Flags() {
			s.flagWatchdog()
		}
		s.arenaCheck()
	}

	s.votes.Expire(s.electorate(), s.now)

	timed := s.game.mode > 1 || (s.game.mode == 0 && s.numClients() > 0)
	before := s.game.millis - diff
	if s.game.mapName != "" && timed && before > 0 && before/time.Minute != s.game.millis/time.Minute {
		s.checkIntermission()
	}
	if s.game.forceInterm {
		s.checkIntermission()
	}
	if s.game.interm != 0 && s.game.millis > s.game.interm {
		s.endMatch()
	}

	s.resetIfEmpty()

	if s.now.Sub(s.lastFillup) > autoTeamInterval {
		if s.autoTeam && s.game.mode.Teams() && !s.game.mode.Arena() && s.game.interm == 0 {
			s.refill(false)
		}
		s.lastFillup = s.now
	}

	timers := s.cfg.GetTimers()
	if d := s.timer(timers.StatusInterval); d > 0 && s.now.Sub(s.lastStatus) >= d {
		s.lastStatus = s.now
		s.logStatus()
	}
	if d := s.timer(timers.AccessReload); d > 0 && s.now.Sub(s.lastReread) >= d {
		s.lastReread = s.now
		s.reloadAccess(false)
	}

	s.drainCommands()
	s.serviceTransport()
	s.sendWorldState()

	if s.now.Sub(s.lastPublish) >= statusPublish {
		s.publishStatus()
	}

	took := s.clock().Sub(begin)
	if limit := time.Duration(s.settings.LongTickMs) * time.Millisecond; limit > 0 && took > limit {
		s.logger.Warn().Dur("duration", took).Int("clients", s.numClients()).Msg("long tick")
		s.emit(events.EventLongTick, events.LongTickPayload{Duration: took, Clients: s.numClients()})
	}
}

// serviceTransport drains the pending network events.
func (s *Server) serviceTransport() {
	if s.transport == nil {
		return
	}
	timeout := time.Duration(s.settings.TickTimeoutMs) * time.Millisecond
	for i := 0; i < maxEventsPerTick; i++ {
		ev, ok := s.transport.Service(timeout)
		if !ok {
			return
		}
		timeout = 0
		s.handleTransport(ev)
	}
}

func (s *Server) handleTransport(ev TransportEvent) {
	switch ev.Type {
	case TransportConnect:
		if _, dup := s.byPeer[ev.Peer]; dup {
			return
		}
		c := s.addClient(ev.Peer)
		s.logger.Info().Int("cn", c.ID).Str("host", c.Host).Uint16("port", c.Port).Msg("client connected")
		s.sendInitS2C(c)
		s.emit(events.EventClientConnected, clientPayload(c, ""))
	case TransportReceive:
		c := s.byPeer[ev.Peer]
		if c == nil {
			return
		}
		if ev.Reliable && ev.Channel == protocol.ChannelReliable {
			s.reliableMessages = true
		}
		s.Process(c, ev.Channel, ev.Data)
	case TransportDisconnect:
		if c := s.byPeer[ev.Peer]; c != nil {
			s.teardown(c, protocol.DiscNone, false)
		}
	}
}

// sendWorldState fans the pending positions and messages of every
// connection out to all others.
func (s *Server) sendWorldState() {
	if !s.broadcaster.Due(s.now) {
		return
	}
	var contribs []snapshot.Contribution
	s.connected(func(c *Client) {
		if !c.Authed() {
			return
		}
		contribs = append(contribs, snapshot.Contribution{ID: c.ID, Positions: c.position, Messages: c.messages})
	})
	s.broadcaster.Build(contribs, s.reliableMessages, clientSink{s})
	s.connected(func(c *Client) {
		c.position = c.position[:0]
		c.messages = c.messages[:0]
	})
	s.reliableMessages = false
	if s.recorder != nil {
		s.recordPackets = true
	}
}
