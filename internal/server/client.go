package server

import (
	"time"

	"github.com/gasbugs/AC/internal/protocol"
)

// Stage is the session state of a connection.
type Stage int

const (
	StageConnecting Stage = iota
	StageIdle
	StagePlaying
)

func (s Stage) String() string {
	switch s {
	case StageConnecting:
		return "connecting"
	case StageIdle:
		return "idle"
	case StagePlaying:
		return "playing"
	}
	return "unknown"
}

type eventKind int

const (
	evShot eventKind = iota + 1
	evExplode
	evHit
	evAkimbo
	evReload
	evSuicide
	evPickup
)

// timed reports whether the event carries a client timestamp.
func (k eventKind) timed() bool { return k != evHit && k < evSuicide }

// gameEvent is a queued player action, applied in client time order.
type gameEvent struct {
	kind   eventKind
	millis time.Duration
	id     int
	gun    int
	from   [3]float32
	to     [3]float32

	// hits
	target       int
	lifeSequence int
	info         int
	dist         float32
	dir          [3]float32

	// pickups
	item int
}

const maxEvents = 100

// eventQueue holds a connection's pending game events. Once full, the
// oldest event and its hits are dropped to make room.
type eventQueue struct {
	events  []gameEvent
	dropped int
}

// push appends e and reports whether an older event had to be dropped.
func (q *eventQueue) push(e gameEvent) bool {
	full := len(q.events) >= maxEvents
	if full {
		before := len(q.events)
		q.pop()
		q.dropped += before - len(q.events)
	}
	q.events = append(q.events, e)
	return full
}

func (q *eventQueue) len() int { return len(q.events) }

// pop removes the first event and the hits attached to it.
func (q *eventQueue) pop() {
	n := 1
	for n < len(q.events) && q.events[n].kind == evHit {
		n++
	}
	q.events = append(q.events[:0], q.events[n:]...)
}

// hits returns the hit events following the first event.
func (q *eventQueue) hits() []gameEvent {
	n := 1
	for n < len(q.events) && q.events[n].kind == evHit {
		n++
	}
	return q.events[1:n]
}

func (q *eventQueue) clear() { q.events = q.events[:0] }

// Client is one connection.
type Client struct {
	ID          int
	Host        string
	Port        uint16
	Name        string
	Team        string
	Skin        int
	Role        protocol.Role
	Stage       Stage
	ConnectedAt time.Time
	Salt        int
	State       PlayerState

	peer       Peer
	events     eventQueue
	lastEvent  time.Duration
	timeSync   bool
	gameOffset time.Duration

	// pending bytes for the next world state
	position []byte
	messages []byte

	spam          SpamFilter
	lastForce     time.Time
	lastAutoForce time.Duration
	spawnIndex    int
}

// Authed reports whether the connection completed the connect handshake.
func (c *Client) Authed() bool { return c.Stage != StageConnecting }

// TeamIndex returns 0 or 1 for the two teams and -1 otherwise.
func (c *Client) TeamIndex() int { return teamIndex(c.Team) }

// reset prepares a recycled slot for a new connection.
func (c *Client) reset() {
	c.Name, c.Team = "", ""
	c.Skin = 0
	c.Role = protocol.RoleDefault
	c.Stage = StageConnecting
	c.position = c.position[:0]
	c.messages = c.messages[:0]
	c.spam = SpamFilter{}
	c.lastForce = time.Time{}
	c.spawnIndex = -1
	c.mapChange()
}

// mapChange clears per-match state.
func (c *Client) mapChange() {
	c.State.Reset()
	c.events.clear()
	c.timeSync = false
	c.lastEvent = 0
	c.lastAutoForce = 0
}

func (c *Client) queueMessage(data []byte) {
	c.messages = append(c.messages, data...)
}

// Team names.
const (
	TeamCLA  = "CLA"
	TeamRVSF = "RVSF"
)

var teamNames = [2]string{TeamCLA, TeamRVSF}

func teamIndex(name string) int {
	for i, n := range teamNames {
		if n == name {
			return i
		}
	}
	return -1
}

// TeamName returns the name of team 0 or 1.
func TeamName(team int) string {
	if team < 0 || team > 1 {
		return ""
	}
	return teamNames[team]
}
