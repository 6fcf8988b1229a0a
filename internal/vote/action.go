// Package vote implements the administrative vote: one pending proposal at a
// time, one ballot per eligible connection and a quorum rule that resolves
// the proposal at most once.
package vote

import (
	"fmt"
	"strings"

	"github.com/gasbugs/AC/internal/protocol"
)

// Kind identifies what a proposal would do if accepted.
type Kind int

const (
	KindMap Kind = iota
	KindKick
	KindBan
	KindRemoveBans
	KindMasterMode
	KindAutoTeam
	KindShuffleTeams
	KindForceTeam
	KindGiveAdmin
	KindRecordDemo
	KindStopDemo
	KindClearDemos
	KindServerDesc
	NumKinds
)

var kindNames = [NumKinds]string{
	"map", "kick", "ban", "removebans", "mastermode", "autoteam", "shuffleteams",
	"forceteam", "giveadmin", "recorddemo", "stopdemo", "cleardemos", "serverdesc",
}

func (k Kind) String() string {
	if k < 0 || k >= NumKinds {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind resolves a kind by name, as used in the configuration file.
func ParseKind(name string) (Kind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range kindNames {
		if n == name {
			return Kind(i), true
		}
	}
	return 0, false
}

// ModeMask is a set of game modes an action applies to.
type ModeMask uint64

// AllModes applies to every game mode.
const AllModes ModeMask = ^ModeMask(0)

// Modes builds a mask from mode numbers.
func Modes(modes ...int) ModeMask {
	var m ModeMask
	for _, mode := range modes {
		if mode >= 0 && mode < 64 {
			m |= 1 << uint(mode)
		}
	}
	return m
}

// Has reports whether mode is in the mask.
func (m ModeMask) Has(mode int) bool {
	if mode < 0 || mode >= 64 {
		return false
	}
	return m&(1<<uint(mode)) != 0
}

// Action is what a proposal carries: a description, the role needed to call
// it, the modes it applies to, a validity check re-run on every evaluation
// and the operation run once on acceptance.
type Action struct {
	Kind    Kind
	Desc    string
	Role    protocol.Role
	Modes   ModeMask
	Valid   func() bool
	Execute func()
}

func (a Action) valid() bool {
	return a.Valid == nil || a.Valid()
}
