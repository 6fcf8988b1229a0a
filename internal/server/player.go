package server

import (
	"time"

	"github.com/gasbugs/AC/internal/protocol"
)

// PlayerStatus is the in-game state of a player.
type PlayerStatus int

const (
	StatusAlive PlayerStatus = iota
	StatusDead
	StatusSpawning
	StatusLagged
	StatusEditing
)

func (s PlayerStatus) String() string {
	switch s {
	case StatusAlive:
		return "alive"
	case StatusDead:
		return "dead"
	case StatusSpawning:
		return "spawning"
	case StatusLagged:
		return "lagged"
	case StatusEditing:
		return "editing"
	}
	return "unknown"
}

// grenadeRing remembers the ids of thrown grenades until they explode.
type grenadeRing struct {
	ids [8]int
	n   int
}

func (g *grenadeRing) reset() { g.n = 0 }

func (g *grenadeRing) add(id int) {
	if g.n >= len(g.ids) {
		g.n = 0
	}
	g.ids[g.n] = id
	g.n++
}

func (g *grenadeRing) remove(id int) bool {
	for i := 0; i < g.n; i++ {
		if g.ids[i] == id {
			g.n--
			g.ids[i] = g.ids[g.n]
			return true
		}
	}
	return false
}

// PlayerState is the server's view of one player's game state. Times are
// game time.
type PlayerState struct {
	Status       PlayerStatus
	Pos          [3]float32
	LastDeath    time.Duration // zero after a respawn
	LastSpawn    time.Duration // -1 when no spawn is pending
	LastShot     time.Duration
	LifeSequence int

	Health, Armour                  int
	Primary, NextPrimary, GunSelect int
	Ammo, Mag                       [NumGuns]int
	GunWait                         [NumGuns]time.Duration

	Akimbo      bool
	Akimbos     int
	AkimboUntil time.Duration

	FlagScore, Frags, TeamKills, Deaths int
	ShotDamage, Damage                  int

	grenades grenadeRing
}

// Reset clears the player for a new match.
func (ps *PlayerState) Reset() {
	ps.Status = StatusDead
	ps.LifeSequence = -1
	ps.grenades.reset()
	ps.FlagScore, ps.Frags, ps.TeamKills, ps.Deaths = 0, 0, 0, 0
	ps.ShotDamage, ps.Damage = 0, 0
	ps.Respawn()
}

// Respawn clears everything a death takes away.
func (ps *PlayerState) Respawn() {
	ps.Health = healthStat.start
	ps.Armour = 0
	ps.GunSelect = GunPistol
	ps.Akimbo = false
	ps.Ammo = [NumGuns]int{}
	ps.Mag = [NumGuns]int{}
	ps.GunWait = [NumGuns]time.Duration{}
	ps.Ammo[GunKnife], ps.Mag[GunKnife] = 1, 1
	ps.Pos = [3]float32{-1e10, -1e10, -1e10}
	ps.LastDeath = 0
	ps.LastSpawn = -1
	ps.LastShot = 0
	ps.Akimbos = 0
	ps.AkimboUntil = 0
}

// SpawnState loads the weapons a player spawns with in mode.
func (ps *PlayerState) SpawnState(mode protocol.GameMode) {
	osok := mode == protocol.ModeOSOK || mode == protocol.ModeTeamOSOK || mode == protocol.ModeBotOSOK
	switch {
	case mode == protocol.ModePistolFrenzy:
		ps.Primary = GunPistol
	case osok:
		ps.Primary = GunSniper
	case mode == protocol.ModeLSS:
		ps.Primary = GunKnife
	default:
		ps.Primary = ps.NextPrimary
	}
	if !validGun(ps.Primary) {
		ps.Primary = GunAssault
	}
	noPistol := osok || mode == protocol.ModeLSS
	noPrimary := mode == protocol.ModePistolFrenzy || mode == protocol.ModeLSS
	if !noPistol {
		ps.Ammo[GunPistol] = ammoStats[GunPistol].start - guns[GunPistol].magSize
		ps.Mag[GunPistol] = guns[GunPistol].magSize
	}
	if !noPrimary {
		ps.Ammo[ps.Primary] = ammoStats[ps.Primary].start - guns[ps.Primary].magSize
		ps.Mag[ps.Primary] = guns[ps.Primary].magSize
	}
	ps.GunSelect = ps.Primary
	if osok {
		ps.Health = 1
	}
}

// Alive reports whether the player is alive or died so recently that its
// in-flight shots still count.
func (ps *PlayerState) Alive(now time.Duration) bool {
	return ps.Status == StatusAlive || (ps.Status == StatusDead && now-ps.LastDeath <= deathGrace)
}

// WaitExpired reports whether every gun is ready to fire at now.
func (ps *PlayerState) WaitExpired(now time.Duration) bool {
	wait := now - ps.LastShot
	for _, w := range ps.GunWait {
		if wait < w {
			return false
		}
	}
	return true
}

// CanPickup reports whether an item would be of use to the player.
func (ps *PlayerState) CanPickup(item int) bool {
	switch item {
	case ItemClips:
		return ps.Ammo[GunPistol] < ammoStats[GunPistol].max
	case ItemAmmo:
		return ps.Ammo[ps.Primary] < ammoStats[ps.Primary].max
	case ItemGrenade:
		return ps.Mag[GunGrenade] < ammoStats[GunGrenade].max
	case ItemHealth:
		return ps.Health < healthStat.max
	case ItemArmour:
		return ps.Armour < armourStat.max
	case ItemAkimbo:
		return !ps.Akimbo
	}
	return false
}

func addItem(v *int, s itemStat) {
	*v += s.add
	if *v > s.max {
		*v = s.max
	}
}

// Pickup applies an item.
func (ps *PlayerState) Pickup(item int) {
	switch item {
	case ItemClips:
		addItem(&ps.Ammo[GunPistol], ammoStats[GunPistol])
	case ItemAmmo:
		addItem(&ps.Ammo[ps.Primary], ammoStats[ps.Primary])
	case ItemGrenade:
		addItem(&ps.Mag[GunGrenade], ammoStats[GunGrenade])
	case ItemHealth:
		addItem(&ps.Health, healthStat)
	case ItemArmour:
		addItem(&ps.Armour, armourStat)
	case ItemAkimbo:
		ps.Akimbo = true
		ps.Akimbos++
		ps.Mag[GunAkimbo] = guns[GunAkimbo].magSize
		addItem(&ps.Ammo[GunAkimbo], ammoStats[GunAkimbo])
	}
}

// Accuracy returns the share of shot damage that hit, in percent.
func (ps *PlayerState) Accuracy() int {
	shot := ps.ShotDamage
	if shot < 1 {
		shot = 1
	}
	return ps.Damage * 100 / shot
}
