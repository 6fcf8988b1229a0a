package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/flag"
	"github.com/gasbugs/AC/internal/protocol"
	"github.com/gasbugs/AC/internal/snapshot"
)

// PlayerInfo is one connection as seen from outside the tick goroutine.
type PlayerInfo struct {
	CN          int       `json:"cn"`
	Name        string    `json:"name"`
	Team        string    `json:"team"`
	Host        string    `json:"host"`
	Port        uint16    `json:"port"`
	Role        string    `json:"role"`
	Stage       string    `json:"stage"`
	State       string    `json:"state"`
	Frags       int       `json:"frags"`
	Deaths      int       `json:"deaths"`
	TeamKills   int       `json:"teamkills"`
	FlagScore   int       `json:"flagscore"`
	Accuracy    int       `json:"accuracy"`
	Health      int       `json:"health"`
	Armour      int       `json:"armour"`
	Gun         string    `json:"gun"`
	GunID       int       `json:"gun_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

// TeamInfo sums up one team.
type TeamInfo struct {
	Name      string `json:"name"`
	Frags     int    `json:"frags"`
	Deaths    int    `json:"deaths"`
	FlagScore int    `json:"flagscore"`
	Players   []int  `json:"players"`
}

// FlagInfo is the state of one flag.
type FlagInfo struct {
	Team    string `json:"team"`
	Status  string `json:"status"`
	Carrier int    `json:"carrier"`
}

// VoteInfo is the pending vote.
type VoteInfo struct {
	OwnerCN  int       `json:"owner_cn"`
	Kind     string    `json:"kind"`
	Desc     string    `json:"desc"`
	Yes      int       `json:"yes"`
	No       int       `json:"no"`
	Abstain  int       `json:"abstain"`
	CalledAt time.Time `json:"called_at"`
}

// Status is a read-only snapshot of the server, published by the tick
// goroutine a few times per second.
type Status struct {
	GameID       string         `json:"game_id"`
	Map          string         `json:"map"`
	Mode         string         `json:"mode"`
	ModeID       int            `json:"mode_id"`
	Minutes      int            `json:"minutes_remaining"`
	GameMillis   int            `json:"game_millis"`
	Intermission bool           `json:"intermission"`
	Started      time.Time      `json:"started"`
	Players      []PlayerInfo   `json:"players"`
	Teams        []TeamInfo     `json:"teams,omitempty"`
	Flags        []FlagInfo     `json:"flags,omitempty"`
	Vote         *VoteInfo      `json:"vote,omitempty"`
	Description  string         `json:"description"`
	MasterMode   string         `json:"mastermode"`
	AutoTeam     bool           `json:"autoteam"`
	Clients      int            `json:"clients"`
	MaxClients   int            `json:"max_clients"`
	Recording    bool           `json:"recording"`
	Demos        int            `json:"demos"`
	Uptime       time.Duration  `json:"uptime"`
	BytesIn      int64          `json:"bytes_in"`
	BytesOut     int64          `json:"bytes_out"`
	Broadcast    snapshot.Stats `json:"broadcast"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Player returns the row of cn.
func (st *Status) Player(cn int) (PlayerInfo, bool) {
	for _, p := range st.Players {
		if p.CN == cn {
			return p, true
		}
	}
	return PlayerInfo{}, false
}

// Snapshot returns the last published status. It is safe for concurrent use.
func (s *Server) Snapshot() Status {
	if st := s.status.Load(); st != nil {
		return *st
	}
	return Status{}
}

func (s *Server) playerInfo(c *Client) PlayerInfo {
	ps := &c.State
	return PlayerInfo{
		CN:          c.ID,
		Name:        c.Name,
		Team:        c.Team,
		Host:        c.Host,
		Port:        c.Port,
		Role:        c.Role.String(),
		Stage:       c.Stage.String(),
		State:       ps.Status.String(),
		Frags:       ps.Frags,
		Deaths:      ps.Deaths,
		TeamKills:   ps.TeamKills,
		FlagScore:   ps.FlagScore,
		Accuracy:    ps.Accuracy(),
		Health:      ps.Health,
		Armour:      ps.Armour,
		Gun:         GunName(ps.GunSelect),
		GunID:       ps.GunSelect,
		ConnectedAt: c.ConnectedAt,
	}
}

func (s *Server) buildStatus() *Status {
	st := &Status{
		GameID:       s.game.id,
		Map:          s.game.mapName,
		Mode:         s.game.mode.String(),
		ModeID:       int(s.game.mode),
		Minutes:      s.game.minRemain,
		GameMillis:   millisOf(s.game.millis),
		Intermission: s.game.interm != 0,
		Started:      s.game.started,
		Description:  s.desc.current,
		MasterMode:   s.masterMode.String(),
		AutoTeam:     s.autoTeam,
		MaxClients:   s.settings.MaxClients,
		Recording:    s.recorder != nil,
		Demos:        s.demos.Len(),
		Uptime:       s.now.Sub(s.started),
		BytesIn:      s.bytesIn.Load(),
		BytesOut:     s.bytesOut.Load(),
		Broadcast:    s.broadcaster.Stats(),
		UpdatedAt:    s.now,
	}
	teams := s.game.mode.Teams()
	if teams {
		st.Teams = []TeamInfo{{Name: TeamCLA}, {Name: TeamRVSF}}
	}
	s.connected(func(c *Client) {
		st.Clients++
		if !c.Authed() {
			return
		}
		p := s.playerInfo(c)
		st.Players = append(st.Players, p)
		if t := c.TeamIndex(); teams && t >= 0 {
			st.Teams[t].Frags += p.Frags
			st.Teams[t].Deaths += p.Deaths
			st.Teams[t].FlagScore += p.FlagScore
			st.Teams[t].Players = append(st.Teams[t].Players, p.CN)
		}
	})
	if s.flags.Variant != flag.None {
		for i, f := range s.flags.Flags {
			fi := FlagInfo{Team: TeamName(i), Status: f.Status.String(), Carrier: -1}
			if f.Status == flag.Stolen {
				fi.Carrier = f.Actor
			}
			st.Flags = append(st.Flags, fi)
		}
	}
	if p := s.votes.Current(); p != nil {
		t := s.votes.Count(s.electorate())
		st.Vote = &VoteInfo{
			OwnerCN:  p.Owner,
			Kind:     p.Action.Kind.String(),
			Desc:     p.Action.Desc,
			Yes:      t.Yes,
			No:       t.No,
			Abstain:  t.Abstain,
			CalledAt: p.CalledAt,
		}
	}
	return st
}

// publishStatus stores a fresh snapshot for readers on other goroutines.
func (s *Server) publishStatus() {
	s.status.Store(s.buildStatus())
	s.lastPublish = s.now
}

// gameReport summarizes the current match.
func (s *Server) gameReport(reason string) events.GameReport {
	r := events.GameReport{
		GameID:   s.game.id,
		Map:      s.game.mapName,
		Mode:     s.game.mode.String(),
		Started:  s.game.started,
		Finished: s.now,
		Reason:   reason,
	}
	s.connected(func(c *Client) {
		if !c.Authed() {
			return
		}
		ps := &c.State
		r.Players = append(r.Players, events.PlayerReport{
			CN:        c.ID,
			Name:      c.Name,
			Team:      c.Team,
			Host:      c.Host,
			Frags:     ps.Frags,
			Deaths:    ps.Deaths,
			TeamKills: ps.TeamKills,
			FlagScore: ps.FlagScore,
			Role:      c.Role.String(),
		})
	})
	return r
}

// gameStatusTable renders the scoreboard of the current match.
func (s *Server) gameStatusTable() string {
	var b strings.Builder
	tw := tablewriter.NewWriter(&b)
	tw.SetHeader([]string{"CN", "Name", "Team", "Frag", "Death", "Flags", "Role", "Host"})
	tw.SetBorder(false)
	tw.SetAutoWrapText(false)

	st := s.buildStatus()
	for _, p := range st.Players {
		tw.Append([]string{
			fmt.Sprintf("%d", p.CN),
			p.Name,
			p.Team,
			fmt.Sprintf("%d", p.Frags),
			fmt.Sprintf("%d", p.Deaths),
			fmt.Sprintf("%d", p.FlagScore),
			p.Role,
			p.Host,
		})
	}
	for _, t := range st.Teams {
		tw.Append([]string{"", "", t.Name, fmt.Sprintf("%d", t.Frags), fmt.Sprintf("%d", t.Deaths), fmt.Sprintf("%d", t.FlagScore), fmt.Sprintf("%d players", len(t.Players)), ""})
	}
	tw.Render()
	return b.String()
}

// logGameStatus writes the scoreboard to the log.
func (s *Server) logGameStatus(title string) {
	if s.numAuthed() == 0 {
		return
	}
	s.logger.Info().
		Str("game_id", s.game.id).
		Str("map", s.game.mapName).
		Str("mode", s.game.mode.String()).
		Int("minutes_remaining", s.game.minRemain).
		Msg(title + "\n" + s.gameStatusTable())
}

// logStatus writes the periodic server summary and emits it.
func (s *Server) logStatus() {
	p := events.StatusPayload{
		Clients:  s.numClients(),
		Map:      s.game.mapName,
		Mode:     s.game.mode.String(),
		Minutes:  s.game.minRemain,
		BytesOut: s.bytesOut.Load(),
	}
	s.logger.Info().
		Int("clients", p.Clients).
		Str("map", p.Map).
		Str("mode", p.Mode).
		Int("minutes_remaining", p.Minutes).
		Int64("bytes_in", s.bytesIn.Load()).
		Int64("bytes_out", p.BytesOut).
		Msg("status")
	s.logGameStatus("game status")
	s.emit(events.EventServerStatus, p)
}

// ServerInfo answers a status query from the info port. A query starting
// with a non-zero timestamp gets the basic server line; a zero starts an
// extended query. It returns one or more reply packets.
func ServerInfo(st *Status, query []byte) [][]byte {
	r := protocol.NewReader(query)
	millis := r.GetInt()
	if r.Overread() {
		return nil
	}
	if millis != 0 {
		w := protocol.NewWriter(128)
		w.PutInts(millis, protocol.ProtocolVersion, st.ModeID, st.Clients, st.Minutes)
		w.PutString(st.Map).PutString(st.Description).PutInt(st.MaxClients)
		return [][]byte{w.Copy()}
	}
	return extInfo(st, r, query[:r.Pos()])
}

// Extended info commands and replies.
const (
	extUptime      = 0
	extPlayerStats = 1
	extTeamScore   = 2

	extAck        = -1
	extVersion    = 104
	extNoError    = 0
	extError      = 1
	extPlayerIDs  = -10
	extPlayerRows = -11
)

func extInfo(st *Status, r *protocol.Reader, head []byte) [][]byte {
	cmd := r.GetInt()
	begin := func() *protocol.Writer {
		w := protocol.NewWriter(128)
		w.Put(head).PutInt(cmd)
		w.PutInts(extAck, extVersion)
		return w
	}
	switch cmd {
	case extUptime:
		w := begin()
		w.PutInt(int(st.Uptime / time.Second))
		return [][]byte{w.Copy()}

	case extPlayerStats:
		cn := r.GetInt()
		w := begin()
		w.PutInt(cn)
		var rows []PlayerInfo
		if cn == -1 {
			rows = st.Players
		} else if p, ok := st.Player(cn); ok {
			rows = []PlayerInfo{p}
		}
		if len(rows) == 0 {
			w.PutInt(extError)
			return [][]byte{w.Copy()}
		}
		w.PutInt(extNoError)
		ids := w.Copy()
		out := [][]byte{appendInts(ids, extPlayerIDs, rows)}
		for _, p := range rows {
			pw := begin()
			pw.PutInts(cn, extNoError, extPlayerRows, p.CN, 0)
			pw.PutString(p.Name).PutString(p.Team)
			role := 0
			if p.Role == protocol.RoleAdmin.String() {
				role = 1
			}
			pw.PutInts(p.Frags, p.FlagScore, p.Deaths, p.TeamKills, p.Accuracy, p.Health, p.Armour, p.GunID, role, playerStateID(p.State))
			ip := hostIP(p.Host)
			pw.PutByte(byte(ip)).PutByte(byte(ip >> 8)).PutByte(byte(ip >> 16))
			out = append(out, pw.Copy())
		}
		return out

	case extTeamScore:
		w := begin()
		if len(st.Teams) == 0 {
			w.PutInts(extError, st.ModeID, st.Minutes)
			return [][]byte{w.Copy()}
		}
		w.PutInts(extNoError, st.ModeID, st.Minutes)
		for _, t := range st.Teams {
			w.PutString(t.Name).PutInts(t.Frags, t.FlagScore, -1)
		}
		return [][]byte{w.Copy()}
	}
	return nil
}

func appendInts(head []byte, tag int, rows []PlayerInfo) []byte {
	w := protocol.NewWriter(len(head) + 4*len(rows) + 4)
	w.Put(head).PutInt(tag)
	for _, p := range rows {
		w.PutInt(p.CN)
	}
	return w.Copy()
}

func playerStateID(state string) int {
	for s := StatusAlive; s <= StatusEditing; s++ {
		if s.String() == state {
			return int(s)
		}
	}
	return int(StatusDead)
}
