package server

import (
	"fmt"

	"github.com/gasbugs/AC/internal/demo"
	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/protocol"
)

// demoSink records the world state fanned out by the broadcaster.
type demoSink struct{ s *Server }

func (d demoSink) Record(ch protocol.Channel, data []byte) {
	d.s.record(ch, data)
}

// record appends a packet to the running demo.
func (s *Server) record(ch protocol.Channel, data []byte) {
	if s.recorder == nil || !s.recordPackets {
		return
	}
	if err := s.recorder.Write(int(ch), data, millisOf(s.game.millis)); err != nil {
		s.logger.Warn().Err(err).Msg("demo write failed")
		s.recorder = nil
	}
}

// setupDemoRecord starts recording the current match.
func (s *Server) setupDemoRecord() {
	mode := s.game.mode
	if !mode.Multiplayer() || mode == protocol.ModeCoop || s.recorder != nil {
		return
	}
	rec, err := demo.NewRecorder(demo.Header{
		Protocol:    protocol.ProtocolVersion,
		ID:          s.game.id,
		Mode:        int(mode),
		ModeName:    mode.String(),
		Map:         s.game.mapName,
		Description: s.desc.current,
		Started:     s.now,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to start demo")
		return
	}
	s.recorder = rec
	s.recordPackets = false
	s.sendServMsg(nil, "recording demo")
	s.logger.Info().Str("game_id", s.game.id).Str("map", s.game.mapName).Msg("demo recording started")

	write := func(data []byte) {
		if err := rec.Write(int(protocol.ChannelReliable), data, 0); err != nil {
			s.logger.Warn().Err(err).Msg("demo write failed")
		}
	}
	write(s.welcomePacket(nil, false))
	s.connected(func(c *Client) {
		if !c.Authed() {
			return
		}
		write(clientMessage(c, protocol.Build(protocol.MsgInitC2S, c.Name, c.Team, c.Skin)))
	})
}

// endDemoRecord finishes the running demo and stores it.
func (s *Server) endDemoRecord() {
	rec := s.recorder
	if rec == nil {
		return
	}
	s.recorder = nil
	s.recordPackets = false
	s.demoNextMatch = false

	data, err := rec.Finish()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to finish demo")
		return
	}
	if rec.Records() == 0 {
		return
	}
	d, file, err := s.demos.Add(rec.Header(), data, s.now)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to save demo file")
	}
	s.sendServMsg(nil, fmt.Sprintf("Demo \"%s\" recorded", d.Info))
	s.logger.Info().Str("info", d.Info).Str("file", file).Int("size", len(data)).Msg("demo recorded")
	s.emit(events.EventDemoRecorded, events.DemoPayload{Info: d.Info, File: file, Size: len(data)})
}

// listDemos sends the demo list to c.
func (s *Server) listDemos(c *Client) {
	list := s.demos.List()
	w := protocol.NewWriter(64)
	w.PutInts(int(protocol.MsgSendDemoList), len(list))
	for _, info := range list {
		w.PutString(info)
	}
	s.sendTo(c, protocol.ChannelReliable, w.Bytes())
}

// sendDemo sends demo n to c, zero meaning the most recent.
func (s *Server) sendDemo(c *Client, n int) {
	d, ok := s.demos.Get(n)
	if !ok {
		msg := "no demos available"
		if s.demos.Len() > 0 {
			msg = fmt.Sprintf("no demo %d available", n)
		}
		s.sendServMsg(c, msg)
		return
	}
	w := protocol.NewWriter(len(d.Data) + 16)
	w.PutInt(int(protocol.MsgSendDemo)).PutInt(len(d.Data)).Put(d.Data)
	s.sendTo(c, protocol.ChannelBulk, w.Bytes())
}
