// Package server is the authoritative game session engine: it owns every
// connection, dispatches their messages, runs the match rules and fans the
// world state out once per tick. All game state is owned by the tick
// goroutine; other goroutines reach it through Post and Query.
package server

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/gasbugs/AC/internal/access"
	"github.com/gasbugs/AC/internal/balance"
	"github.com/gasbugs/AC/internal/config"
	"github.com/gasbugs/AC/internal/demo"
	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/flag"
	"github.com/gasbugs/AC/internal/maprot"
	"github.com/gasbugs/AC/internal/protocol"
	"github.com/gasbugs/AC/internal/snapshot"
	"github.com/gasbugs/AC/internal/util"
	"github.com/gasbugs/AC/internal/vote"
)

// ErrBusy is returned by Query when the command queue is full.
var ErrBusy = errors.New("server command queue is full")

// ErrNoClient is returned by admin operations given an unknown client number.
var ErrNoClient = errors.New("no such client")

const (
	commandQueueSize = 256
	statusPublish    = 250 * time.Millisecond
	autoTeamInterval = 5 * time.Second
	intermissionTime = 10 * time.Second
	autoBanDuration  = 20 * time.Minute
	maxItems         = 4096
)

// Options holds the collaborators of a Server besides its configuration.
type Options struct {
	Transport Transport
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Rand defaults to a time-seeded source.
	Rand *rand.Rand
}

// gameState is the current match.
type gameState struct {
	id        string
	mapName   string
	mode      protocol.GameMode
	minRemain int
	millis    time.Duration
	limit     time.Duration
	started   time.Time

	// interm is the game time the intermission ends, zero when not in one.
	interm      time.Duration
	forceInterm bool
	mapReload   bool
	nextMap     string
	nextMode    protocol.GameMode
	arenaRound  time.Duration

	notGotItems bool
	spawns      [3]int
	flagSpawns  [2]int
}

type item struct {
	kind    int
	spawned bool
	respawn time.Duration
}

// savedScore carries a player's score over a reconnect within one match.
type savedScore struct {
	name string
	host string
	frags, flagScore, deaths, teamKills, shotDamage, damage int
}

func (sc *savedScore) save(ps *PlayerState) {
	sc.frags, sc.flagScore, sc.deaths = ps.Frags, ps.FlagScore, ps.Deaths
	sc.teamKills, sc.shotDamage, sc.damage = ps.TeamKills, ps.ShotDamage, ps.Damage
}

func (sc *savedScore) restore(ps *PlayerState) {
	ps.Frags, ps.FlagScore, ps.Deaths = sc.frags, sc.flagScore, sc.deaths
	ps.TeamKills, ps.ShotDamage, ps.Damage = sc.teamKills, sc.shotDamage, sc.damage
}

// mapCopy is the last map uploaded by a client, kept in memory.
type mapCopy struct {
	name      string
	mapSize   int
	cfgSize   int
	cfgSizeGz int
	data      []byte
}

type description struct {
	full       string
	current    string
	custom     bool
	callerHost string
	callerPort uint16
}

// Server is the game session engine.
type Server struct {
	logger    zerolog.Logger
	cfg       *config.Config
	settings  config.ServerConfig
	eventBus  *events.EventBus
	transport Transport
	clock     func() time.Time
	rnd       *rand.Rand

	clients []*Client
	byPeer  map[Peer]*Client

	bans      *access.Bans
	blacklist *access.Blacklist
	passwords *access.Passwords
	rotation  *maprot.Rotation

	votes       *vote.Engine
	flags       flag.Pair
	refiller    balance.Refiller
	broadcaster *snapshot.Broadcaster

	demos         *demo.Store
	recorder      *demo.Recorder
	recordPackets bool
	demoNextMatch bool

	game             gameState
	items            []item
	scores           []savedScore
	mapCopy          *mapCopy
	reliableMessages bool

	masterMode protocol.MasterMode
	autoTeam   bool
	desc       description

	started    time.Time
	now        time.Time
	lastStatus time.Time
	lastFillup time.Time
	lastReread time.Time

	bytesIn  atomic.Int64
	bytesOut atomic.Int64

	commands    chan func(*Server)
	status      atomic.Pointer[Status]
	lastPublish time.Time
}

// New creates a server on an empty map. The access lists and the map
// rotation are loaded from the files named in cfg; missing files are logged
// and leave the lists empty.
func New(cfg *config.Config, eventBus *events.EventBus, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	settings := cfg.GetServer()
	demoCfg := cfg.GetDemo()

	s := &Server{
		logger:      util.ComponentLogger("server"),
		cfg:         cfg,
		settings:    settings,
		eventBus:    eventBus,
		transport:   opts.Transport,
		clock:       opts.Clock,
		rnd:         opts.Rand,
		byPeer:      make(map[Peer]*Client),
		bans:        access.NewBans(),
		blacklist:   access.NewBlacklist(settings.BlacklistFile),
		passwords:   access.NewPasswords(settings.PwdFile, settings.AdminPassword),
		rotation:    maprot.New(settings.MaprotFile),
		votes:       vote.NewEngine(voteConfig(settings)),
		broadcaster: snapshot.NewBroadcaster(snapshot.DefaultInterval),
		demos:       demo.NewStore(demoCfg.MaxDemos, demoCfg.Directory),
		autoTeam:    true,
		commands:    make(chan func(*Server), commandQueueSize),
	}
	s.now = s.clock()
	s.started = s.now
	s.lastFillup = s.now
	s.lastReread = s.now
	s.desc.full = settings.Description
	s.desc.current = settings.Description
	s.votes.OnResolve = s.onVoteResolved
	s.broadcaster.SetRecorder(demoSink{s})
	s.demoNextMatch = demoCfg.RecordEveryMatch

	s.reloadAccess(true)
	s.subscribeEvents()
	s.resetMap("", protocol.ModeTDM, 10, false)
	s.publishStatus()
	return s
}

func voteConfig(settings config.ServerConfig) vote.Config {
	vc := vote.DefaultConfig()
	for _, name := range settings.VoteDisabled {
		if k, ok := vote.ParseKind(name); ok {
			vc.Disabled[k] = true
		}
	}
	return vc
}

// subscribeEvents registers the event handlers of the server.
func (s *Server) subscribeEvents() {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Subscribe(events.EventConfigChanged, "server.configChanged", s.onConfigChanged)
}

func (s *Server) onConfigChanged(ctx context.Context, event events.Event) error {
	settings := s.cfg.GetServer()
	s.Post(func(s *Server) { s.applySettings(settings) })
	return nil
}

// applySettings adopts changed server settings.
func (s *Server) applySettings(settings config.ServerConfig) {
	old := s.settings
	s.settings = settings
	s.votes.SetDisabled(voteConfig(settings).Disabled)
	if old.Description != settings.Description {
		s.desc.full = settings.Description
		if !s.desc.custom {
			s.desc.current = settings.Description
		}
	}
	if old.PwdFile != settings.PwdFile || old.AdminPassword != settings.AdminPassword {
		s.passwords = access.NewPasswords(settings.PwdFile, settings.AdminPassword)
		s.loadAccessFile("passwords", s.passwords.Load, true)
	}
	if old.BlacklistFile != settings.BlacklistFile {
		s.blacklist = access.NewBlacklist(settings.BlacklistFile)
		s.loadAccessFile("blacklist", s.blacklist.Load, true)
	}
	if old.MaprotFile != settings.MaprotFile {
		s.rotation = maprot.New(settings.MaprotFile)
		s.loadAccessFile("map rotation", s.rotation.Load, true)
	}
	s.logger.Info().Msg("server settings updated")
}

// reloadAccess rereads the credential file, the blacklist and the map
// rotation. Unless force is set, unchanged files are skipped.
func (s *Server) reloadAccess(force bool) {
	s.loadAccessFile("passwords", s.passwords.Load, force)
	s.loadAccessFile("blacklist", s.blacklist.Load, force)
	s.loadAccessFile("map rotation", s.rotation.Load, force)
}

func (s *Server) loadAccessFile(what string, load func(bool) error, force bool) {
	if err := load(force); err != nil {
		s.logger.Warn().Err(err).Str("file", what).Msg("failed to load file")
	}
}

func (s *Server) emit(t events.EventType, payload interface{}) {
	if s.eventBus != nil {
		s.eventBus.Publish(t, "server", payload)
	}
}

// Post queues fn to run on the tick goroutine. It reports false when the
// queue is full.
func (s *Server) Post(fn func(*Server)) bool {
	select {
	case s.commands <- fn:
		return true
	default:
		return false
	}
}

// Query runs fn on the tick goroutine and waits for it to finish. fn must
// not retain the *Server.
func (s *Server) Query(ctx context.Context, fn func(*Server)) error {
	done := make(chan struct{})
	if !s.Post(func(s *Server) {
		defer close(done)
		fn(s)
	}) {
		return ErrBusy
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) drainCommands() {
	for {
		select {
		case fn := <-s.commands:
			fn(s)
		default:
			return
		}
	}
}

// client returns the connected client with id, or nil.
func (s *Server) client(id int) *Client {
	if id < 0 || id >= len(s.clients) {
		return nil
	}
	c := s.clients[id]
	if c.peer == nil {
		return nil
	}
	return c
}

// addClient takes the first free slot for peer.
func (s *Server) addClient(peer Peer) *Client {
	var c *Client
	for _, o := range s.clients {
		if o.peer == nil {
			c = o
			break
		}
	}
	if c == nil {
		c = &Client{ID: len(s.clients)}
		s.clients = append(s.clients, c)
	}
	c.reset()
	c.peer = peer
	c.Host = peer.Address()
	c.Port = peer.Port()
	c.ConnectedAt = s.now
	c.Salt = s.rnd.Intn(1<<24) * (int(s.now.UnixMilli()%1000) + 1)
	s.byPeer[peer] = c
	return c
}

// connected calls fn for every connection in client number order.
func (s *Server) connected(fn func(c *Client)) {
	for _, c := range s.clients {
		if c.peer != nil {
			fn(c)
		}
	}
}

func (s *Server) numClients() int {
	n := 0
	s.connected(func(*Client) { n++ })
	return n
}

func (s *Server) numAuthed() int {
	n := 0
	s.connected(func(c *Client) {
		if c.Authed() {
			n++
		}
	})
	return n
}

// sendFrame sends one owned frame to c.
func (s *Server) sendFrame(c *Client, ch protocol.Channel, f *snapshot.Frame) {
	s.bytesOut.Add(int64(len(f.Bytes())))
	s.transport.Send(c.peer, ch, f)
}

// sendTo sends a reliable packet to one connection.
func (s *Server) sendTo(c *Client, ch protocol.Channel, data []byte) {
	if c == nil || c.peer == nil || len(data) == 0 {
		return
	}
	s.sendFrame(c, ch, snapshot.NewFrame(data, true))
}

// broadcast sends a reliable packet to every authenticated connection but
// exclude, recording it into a running demo.
func (s *Server) broadcast(ch protocol.Channel, data []byte, exclude *Client) {
	s.broadcastTo(ch, data, func(c *Client) bool { return c != exclude })
}

// broadcastTo sends one shared copy of data to the authenticated
// connections accepted by to.
func (s *Server) broadcastTo(ch protocol.Channel, data []byte, to func(c *Client) bool) {
	if len(data) == 0 {
		return
	}
	s.record(ch, data)
	buf := snapshot.NewSharedBuffer(data, nil)
	s.connected(func(c *Client) {
		if c.Authed() && to(c) {
			s.sendFrame(c, ch, buf.Frame(0, len(data), true))
		}
	})
	buf.Release()
}

func (s *Server) sendServMsg(c *Client, msg string) {
	data := protocol.Build(protocol.MsgServMsg, msg)
	if c == nil {
		s.broadcast(protocol.ChannelReliable, data, nil)
		return
	}
	s.sendTo(c, protocol.ChannelReliable, data)
}

// clientMessage wraps a message from c so other clients attribute it to c.
func clientMessage(c *Client, msg []byte) []byte {
	w := protocol.NewWriter(len(msg) + 16)
	w.PutInt(int(protocol.MsgClient)).PutInt(c.ID).PutUint(len(msg)).Put(msg)
	return w.Bytes()
}

// Bans returns the access ban list. It is safe for concurrent use.
func (s *Server) Bans() *access.Bans { return s.bans }

// DemoStore returns the finished demos. It is safe for concurrent use.
func (s *Server) DemoStore() *demo.Store { return s.demos }

// BroadcastStats returns the world state counters.
func (s *Server) BroadcastStats() snapshot.Stats { return s.broadcaster.Stats() }
