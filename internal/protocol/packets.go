// Package protocol implements the wire encoding shared by the game server
// and its clients: variable-length integers, zero-terminated strings, the
// message type table and the closed enumerations carried on the wire.
package protocol

// Protocol constants.
const (
	ProtocolVersion = 1123
	DefaultPort     = 28763
	MaxTrans        = 5000 // max bytes accepted from one packet in one go
	MaxClients      = 256
	DefaultClients  = 6
	MaxNameLen      = 15
	MaxTeamLen      = 4
	MaxTextLen      = 259

	// Fixed-point factors used for positions and directions.
	DMF = 16.0
	DNF = 100.0
)

// InfoPort returns the UDP port of the status responder for a game port.
func InfoPort(gamePort int) int {
	return gamePort + 1
}

// Channel identifies a transport delivery class.
type Channel uint8

const (
	ChannelMovement Channel = 0 // unreliable, positions
	ChannelReliable Channel = 1 // ordered events, chat, administration
	ChannelBulk     Channel = 2 // map and demo transfer
	NumChannels             = 3
)

// MessageType is the integer tag that starts every message.
type MessageType int

const (
	MsgInitS2C MessageType = iota
	MsgWelcome
	MsgInitC2S
	MsgPos
	MsgText
	MsgTeamText
	MsgVoiceCom
	MsgVoiceComTeam
	MsgSound
	MsgCDis
	MsgShoot
	MsgExplode
	MsgSuicide
	MsgAkimbo
	MsgReload
	MsgGibDied
	MsgDied
	MsgGibDamage
	MsgDamage
	MsgHitPush
	MsgShotFX
	MsgTrySpawn
	MsgSpawnState
	MsgSpawn
	MsgForceDeath
	MsgResume
	MsgTimeUp
	MsgEditEnt
	MsgMapReload
	MsgNextMap
	MsgItemAcc
	MsgItemSpawn
	MsgItemPickup
	MsgMapChange
	MsgItemList
	MsgPing
	MsgPong
	MsgClientPing
	MsgServMsg
	MsgWeapChange
	MsgPrimaryWeap
	MsgChangeTeam
	MsgForceTeam
	MsgForceNotify
	MsgAutoTeam
	MsgEditH
	MsgEditT
	MsgEditS
	MsgEditD
	MsgEditE
	MsgNewMap
	MsgSendMap
	MsgRecvMap
	MsgFlagAction
	MsgFlagInfo
	MsgFlagMsg
	MsgFlagCnt
	MsgArenaWin
	MsgSetAdmin
	MsgServOpInfo
	MsgCallVote
	MsgCallVoteSuc
	MsgCallVoteErr
	MsgVote
	MsgVoteResult
	MsgWhois
	MsgWhoisInfo
	MsgListDemos
	MsgSendDemoList
	MsgGetDemo
	MsgSendDemo
	MsgDemoPlayback
	MsgConnect
	MsgSpawnList
	MsgClient
	MsgExtension
	NumMessageTypes
)

// messageSizes holds the field count of each message including its tag.
// 0 marks messages with a variable layout that must be parsed inline.
var messageSizes = [NumMessageTypes]int{
	MsgInitS2C:      5,
	MsgVoiceCom:     2,
	MsgVoiceComTeam: 2,
	MsgSound:        2,
	MsgCDis:         2,
	MsgSuicide:      1,
	MsgAkimbo:       2,
	MsgReload:       3,
	MsgGibDied:      4,
	MsgDied:         4,
	MsgGibDamage:    7,
	MsgDamage:       7,
	MsgHitPush:      6,
	MsgShotFX:       9,
	MsgTrySpawn:     1,
	MsgSpawn:        3,
	MsgForceDeath:   2,
	MsgTimeUp:       2,
	MsgEditEnt:      10,
	MsgMapReload:    2,
	MsgItemAcc:      3,
	MsgItemSpawn:    2,
	MsgItemPickup:   2,
	MsgPing:         2,
	MsgPong:         2,
	MsgClientPing:   2,
	MsgWeapChange:   2,
	MsgPrimaryWeap:  2,
	MsgChangeTeam:   1,
	MsgForceTeam:    3,
	MsgForceNotify:  3,
	MsgAutoTeam:     2,
	MsgEditH:        6,
	MsgEditT:        6,
	MsgEditS:        6,
	MsgEditD:        6,
	MsgEditE:        6,
	MsgNewMap:       2,
	MsgRecvMap:      1,
	MsgFlagAction:   3,
	MsgFlagCnt:      3,
	MsgArenaWin:     2,
	MsgServOpInfo:   3,
	MsgCallVoteSuc:  1,
	MsgCallVoteErr:  2,
	MsgVote:         2,
	MsgVoteResult:   2,
	MsgWhois:        2,
	MsgWhoisInfo:    3,
	MsgListDemos:    1,
	MsgGetDemo:      2,
	MsgDemoPlayback: 3,
}

// MessageSize returns the number of integer fields of a fixed-size message,
// tag included. It returns 0 for variable-size messages and -1 for tags
// outside the table.
func MessageSize(t MessageType) int {
	if t < 0 || t >= NumMessageTypes {
		return -1
	}
	return messageSizes[t]
}

var serverOnly = map[MessageType]bool{
	MsgInitS2C: true, MsgWelcome: true, MsgMapReload: true, MsgServMsg: true,
	MsgGibDamage: true, MsgDamage: true, MsgHitPush: true, MsgShotFX: true,
	MsgGibDied: true, MsgDied: true, MsgSpawnState: true, MsgForceDeath: true,
	MsgItemAcc: true, MsgItemSpawn: true, MsgTimeUp: true, MsgCDis: true,
	MsgPong: true, MsgResume: true, MsgFlagInfo: true, MsgFlagMsg: true,
	MsgFlagCnt: true, MsgArenaWin: true, MsgSendDemoList: true, MsgSendDemo: true,
	MsgDemoPlayback: true, MsgClient: true, MsgCallVoteSuc: true, MsgCallVoteErr: true,
	MsgVoteResult: true, MsgWhoisInfo: true, MsgServOpInfo: true, MsgForceTeam: true,
	MsgForceNotify: true, MsgAutoTeam: true, MsgMapChange: true,
}

var editOnly = map[MessageType]bool{
	MsgEditEnt: true, MsgEditH: true, MsgEditT: true, MsgEditS: true,
	MsgEditD: true, MsgEditE: true, MsgNewMap: true,
}

// ServerOnly reports whether a message may only originate from the server.
func ServerOnly(t MessageType) bool { return serverOnly[t] }

// EditOnly reports whether a message is only valid in map-edit mode.
func EditOnly(t MessageType) bool { return editOnly[t] }

// DisconnectReason is surfaced to the peer and the log when a connection is dropped.
type DisconnectReason int

const (
	DiscNone DisconnectReason = iota
	DiscEndOfPacket
	DiscClientNum
	DiscKick
	DiscBan
	DiscTagType
	DiscBanRefuse
	DiscWrongPassword
	DiscAdminLoginFail
	DiscMaxClients
	DiscPrivate
	DiscAutoKick
	DiscAutoBan
	DiscDuplicate
	NumDisconnectReasons
)

var disconnectReasonStrings = [NumDisconnectReasons]string{
	"normal",
	"end of packet",
	"client num",
	"kicked by server operator",
	"banned by server operator",
	"tag type",
	"connection refused due to ban",
	"wrong password",
	"failed admin login",
	"server FULL - maxclients",
	"server mastermode is \"private\"",
	"auto kick - did your score drop below the threshold?",
	"auto ban - did your score drop below the threshold?",
	"duplicate connection",
}

func (r DisconnectReason) String() string {
	if r < 0 || r >= NumDisconnectReasons {
		return "unknown"
	}
	return disconnectReasonStrings[r]
}

// Role is a connection's privilege level.
type Role int

const (
	RoleDefault Role = iota
	RoleAdmin
)

func (r Role) String() string {
	if r == RoleAdmin {
		return "admin"
	}
	return "normal"
}

// MasterMode controls who may join.
type MasterMode int

const (
	MasterOpen MasterMode = iota
	MasterPrivate
	NumMasterModes
)

func (m MasterMode) String() string {
	if m == MasterPrivate {
		return "private"
	}
	return "open"
}
