package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gasbugs/AC/internal/protocol"
)

// ErrInvalidMode is returned by ChangeMap for an unknown or single player mode.
var ErrInvalidMode = errors.New("invalid game mode")

// The methods below are for operators outside the game protocol, such as the
// HTTP API and the console. Each runs on the tick goroutine and waits for it.

// Kick disconnects client cn.
func (s *Server) Kick(ctx context.Context, cn int) error {
	var err error
	qerr := s.Query(ctx, func(s *Server) {
		c := s.client(cn)
		if c == nil {
			err = ErrNoClient
			return
		}
		s.logger.Info().Int("cn", cn).Str("name", c.Name).Msg("client kicked by operator")
		s.disconnect(c, protocol.DiscKick)
	})
	if qerr != nil {
		return qerr
	}
	return err
}

// Ban bans the host of client cn for d and disconnects it.
func (s *Server) Ban(ctx context.Context, cn int, d time.Duration) error {
	if d <= 0 {
		d = autoBanDuration
	}
	var err error
	qerr := s.Query(ctx, func(s *Server) {
		c := s.client(cn)
		if c == nil {
			err = ErrNoClient
			return
		}
		s.banClient(c, d, "operator")
		s.disconnect(c, protocol.DiscBan)
	})
	if qerr != nil {
		return qerr
	}
	return err
}

// Unban lifts the ban on addr. It reports whether a ban was removed.
func (s *Server) Unban(ctx context.Context, addr string) (bool, error) {
	var removed bool
	err := s.Query(ctx, func(s *Server) {
		removed = s.bans.Remove(addr)
		if removed {
			s.logger.Info().Str("host", addr).Msg("ban removed by operator")
		}
	})
	return removed, err
}

// ChangeMap starts a new match at once. minutes below zero selects the
// default length of the mode.
func (s *Server) ChangeMap(ctx context.Context, name string, mode protocol.GameMode, minutes int) error {
	if !mode.Valid() || !mode.Multiplayer() {
		return ErrInvalidMode
	}
	if name == "" {
		return fmt.Errorf("map name is empty")
	}
	return s.Query(ctx, func(s *Server) {
		s.logger.Info().Str("map", name).Str("mode", mode.String()).Msg("map changed by operator")
		s.resetMap(name, mode, minutes, true)
	})
}

// Say sends a server message to every client.
func (s *Server) Say(ctx context.Context, text string) error {
	text = protocol.FilterText(text, protocol.MaxTextLen, true)
	if text == "" {
		return fmt.Errorf("message is empty")
	}
	return s.Query(ctx, func(s *Server) {
		s.sendServMsg(nil, text)
	})
}

// SetMasterMode changes who may join.
func (s *Server) SetMasterMode(ctx context.Context, mm protocol.MasterMode) error {
	if mm < 0 || mm >= protocol.NumMasterModes {
		return fmt.Errorf("invalid mastermode %d", mm)
	}
	return s.Query(ctx, func(s *Server) {
		s.masterMode = mm
		s.logger.Info().Str("mastermode", mm.String()).Msg("mastermode changed by operator")
	})
}

// ReloadAccess rereads the credential file, the blacklist and the map
// rotation.
func (s *Server) ReloadAccess(ctx context.Context) error {
	return s.Query(ctx, func(s *Server) {
		s.reloadAccess(true)
		s.lastReread = s.now
	})
}

// StopDemo finishes the running demo, if any.
func (s *Server) StopDemo(ctx context.Context) error {
	return s.Query(ctx, func(s *Server) {
		s.endDemoRecord()
	})
}
