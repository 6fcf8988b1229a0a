package server

import (
	"time"

	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/flag"
	"github.com/gasbugs/AC/internal/protocol"
)

// flagVariant selects the flag rules of mode.
func flagVariant(mode protocol.GameMode) flag.Variant {
	switch mode {
	case protocol.ModeCTF:
		return flag.CTF
	case protocol.ModeHTF:
		return flag.HTF
	}
	if mode.KeepTheFlag() {
		return flag.KTF
	}
	return flag.None
}

// flagWorld exposes the connected players to the flag rules.
type flagWorld struct{ s *Server }

func (w flagWorld) actor(c *Client) flag.Actor {
	return flag.Actor{
		ID:     c.ID,
		Team:   c.TeamIndex(),
		Alive:  c.State.Status == StatusAlive,
		Health: c.State.Health,
		Pos:    c.State.Pos,
	}
}

func (w flagWorld) Actor(id int) (flag.Actor, bool) {
	c := w.s.client(id)
	if c == nil || !c.Authed() {
		return flag.Actor{}, false
	}
	return w.actor(c), true
}

func (w flagWorld) Members(team int) []flag.Actor {
	var out []flag.Actor
	w.s.connected(func(c *Client) {
		if c.Authed() && c.TeamIndex() == team {
			out = append(out, w.actor(c))
		}
	})
	return out
}

var flagActionNames = map[flag.Action]string{
	flag.Pickup: "pickup",
	flag.Steal:  "steal",
	flag.Drop:   "drop",
	flag.Lost:   "lost",
	flag.Return: "return",
	flag.Score:  "score",
	flag.Reset:  "reset",
}

// flagAction runs action on fl for actor and broadcasts the outcome.
func (s *Server) flagAction(fl int, action flag.Action, actor int) {
	res, ok := s.flags.Apply(fl, action, actor, flagWorld{s}, s.game.millis)
	if !ok {
		return
	}
	s.applyFlagResult(res, flagActionNames[action])
}

// flagWatchdog runs the timed flag transitions.
func (s *Server) flagWatchdog() {
	spawnsOK := s.game.flagSpawns[0] > 0 && s.game.flagSpawns[1] > 0
	for _, res := range s.flags.Watchdog(flagWorld{s}, s.game.millis, spawnsOK, s.rnd) {
		s.applyFlagResult(res, "timeout")
	}
}

func (s *Server) applyFlagResult(res flag.Result, action string) {
	c := s.client(res.Actor)
	if res.Score != 0 && c != nil {
		c.State.FlagScore += res.Score
		s.broadcast(protocol.ChannelReliable, protocol.Build(protocol.MsgFlagCnt, c.ID, c.State.FlagScore), nil)
	}
	for _, fl := range res.Info {
		s.sendFlagInfo(fl)
	}
	if res.Message != flag.MsgNone {
		w := protocol.NewWriter(16)
		w.PutInts(int(protocol.MsgFlagMsg), res.Flag, int(res.Message), res.Actor)
		if res.Message == flag.MsgKTFScore {
			w.PutInt(int(res.HeldFor / time.Second))
		}
		s.broadcast(protocol.ChannelReliable, w.Bytes(), nil)
	}

	p := events.FlagPayload{Flag: res.Flag, Action: action, ActorCN: res.Actor, Score: res.Score}
	ev := s.logger.Info().Int("flag", res.Flag).Str("action", action).Str("message", res.Message.String())
	if c != nil {
		p.Actor = c.Name
		ev = ev.Int("cn", c.ID).Str("name", c.Name)
	}
	ev.Msg("flag event")
	s.emit(events.EventFlag, p)
}

func (s *Server) putFlagInfo(w *protocol.Writer, fl int) {
	f := &s.flags.Flags[fl]
	w.PutInts(int(protocol.MsgFlagInfo), fl, int(f.Status))
	switch f.Status {
	case flag.Stolen:
		w.PutInt(f.Actor)
	case flag.Dropped:
		for _, v := range f.Pos {
			w.PutUint(int(v * protocol.DMF))
		}
	}
}

func (s *Server) sendFlagInfo(fl int) {
	w := protocol.NewWriter(24)
	s.putFlagInfo(w, fl)
	s.broadcast(protocol.ChannelReliable, w.Bytes(), nil)
}
