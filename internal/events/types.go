// Package events defines the event types published by the game server.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Session events
	EventClientConnected     EventType = "client_connected"
	EventClientAuthenticated EventType = "client_authenticated"
	EventClientDisconnected  EventType = "client_disconnected"
	EventRoleChanged         EventType = "role_changed"
	EventChat                EventType = "chat"

	// Game events
	EventFrag         EventType = "frag"
	EventFlag         EventType = "flag"
	EventArenaWin     EventType = "arena_win"
	EventMapChanged   EventType = "map_changed"
	EventGameFinished EventType = "game_finished"

	// Vote events
	EventVoteCalled   EventType = "vote_called"
	EventVoteResolved EventType = "vote_resolved"

	// Administration events
	EventBanAdded     EventType = "ban_added"
	EventDemoRecorded EventType = "demo_recorded"

	// System events
	EventLongTick      EventType = "long_tick"
	EventLagAlert      EventType = "lag_alert"
	EventDiskWarning   EventType = "disk_warning"
	EventServerStatus  EventType = "server_status"
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"

	// EventAny subscribes a handler to every event type.
	EventAny EventType = "*"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType   `json:"type"`
	Source  string      `json:"source"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload"`
}

// ClientPayload identifies a connection in session events.
type ClientPayload struct {
	CN     int    `json:"cn"`
	Name   string `json:"name"`
	Host   string `json:"host"`
	Team   string `json:"team,omitempty"`
	Role   string `json:"role,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ChatPayload is a chat line accepted by the spam filter.
type ChatPayload struct {
	CN   int    `json:"cn"`
	Name string `json:"name"`
	Team string `json:"team,omitempty"`
	Text string `json:"text"`
}

// FragPayload describes a death.
type FragPayload struct {
	TargetCN   int    `json:"target_cn"`
	TargetName string `json:"target_name"`
	ActorCN    int    `json:"actor_cn"`
	ActorName  string `json:"actor_name"`
	Gun        string `json:"gun"`
	Gib        bool   `json:"gib"`
	Suicide    bool   `json:"suicide"`
	TeamKill   bool   `json:"teamkill"`
}

// FlagPayload describes an accepted flag transition.
type FlagPayload struct {
	Flag    int    `json:"flag"`
	Action  string `json:"action"`
	ActorCN int    `json:"actor_cn"`
	Actor   string `json:"actor,omitempty"`
	Score   int    `json:"score,omitempty"`
}

// VotePayload describes a vote being called or resolved.
type VotePayload struct {
	OwnerCN int    `json:"owner_cn"`
	Owner   string `json:"owner"`
	Kind    string `json:"kind"`
	Desc    string `json:"desc"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MapPayload describes a new match.
type MapPayload struct {
	GameID  string `json:"game_id"`
	Map     string `json:"map"`
	Mode    string `json:"mode"`
	Minutes int    `json:"minutes"`
	Players int    `json:"players"`
}

// PlayerReport is one row of a finished game.
type PlayerReport struct {
	CN        int    `json:"cn"`
	Name      string `json:"name"`
	Team      string `json:"team"`
	Host      string `json:"host"`
	Frags     int    `json:"frags"`
	Deaths    int    `json:"deaths"`
	TeamKills int    `json:"teamkills"`
	FlagScore int    `json:"flagscore"`
	Role      string `json:"role"`
}

// GameReport summarizes a finished game.
type GameReport struct {
	GameID   string         `json:"game_id"`
	Map      string         `json:"map"`
	Mode     string         `json:"mode"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Reason   string         `json:"reason"`
	Players  []PlayerReport `json:"players"`
}

// LongTickPayload is emitted when one tick of the game loop overruns.
type LongTickPayload struct {
	Duration time.Duration `json:"duration"`
	Clients  int           `json:"clients"`
}

// LagAlertPayload is emitted when the lag monitor crosses a threshold.
type LagAlertPayload struct {
	Level   string  `json:"level"`
	Message string  `json:"message"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
}

// DiskWarningPayload is emitted when the demo volume is nearly full.
type DiskWarningPayload struct {
	Level       string  `json:"level"`
	Path        string  `json:"path"`
	UsedPercent float64 `json:"used_percent"`
}

// BanPayload describes a new ban.
type BanPayload struct {
	Address string    `json:"address"`
	Until   time.Time `json:"until"`
	Reason  string    `json:"reason"`
}

// DemoPayload describes a finished demo.
type DemoPayload struct {
	Info string `json:"info"`
	File string `json:"file,omitempty"`
	Size int    `json:"size"`
}

// StatusPayload is the periodic server summary.
type StatusPayload struct {
	Clients  int    `json:"clients"`
	Map      string `json:"map"`
	Mode     string `json:"mode"`
	Minutes  int    `json:"minutes_remaining"`
	BytesOut int64  `json:"bytes_out"`
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string
	Key     string
	Value   interface{}
}
