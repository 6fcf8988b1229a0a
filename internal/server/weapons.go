package server

import "time"

// Guns.
const (
	GunKnife = iota
	GunPistol
	GunShotgun
	GunSubgun
	GunSniper
	GunAssault
	GunGrenade
	GunAkimbo
	NumGuns
)

const (
	shotgunRays     = 21
	explosionRadius = 24.0
	akimboDuration  = 30 * time.Second
	// deathGrace is how long a dead player's in-flight shots still count.
	deathGrace = 300 * time.Millisecond
)

type gunInfo struct {
	name        string
	reload      int // ms
	attackDelay int // ms
	damage      int
	magSize     int
}

var guns = [NumGuns]gunInfo{
	GunKnife:   {"knife", 0, 500, 50, 1},
	GunPistol:  {"pistol", 1400, 160, 18, 8},
	GunShotgun: {"shotgun", 2400, 1000, 5, 7},
	GunSubgun:  {"subgun", 1650, 80, 16, 30},
	GunSniper:  {"sniper", 1950, 1500, 82, 5},
	GunAssault: {"assault", 2000, 120, 22, 20},
	GunGrenade: {"grenade", 1000, 650, 200, 1},
	GunAkimbo:  {"akimbo", 1400, 80, 19, 16},
}

func validGun(g int) bool { return g >= 0 && g < NumGuns }

func reloadable(g int) bool { return g != GunKnife && g != GunGrenade }

// GunName returns the display name of a gun.
func GunName(g int) string {
	if !validGun(g) {
		return "unknown"
	}
	return guns[g].name
}

// Item types as numbered in map entity lists.
const (
	ItemClips   = 3
	ItemAmmo    = 4
	ItemGrenade = 5
	ItemHealth  = 6
	ItemArmour  = 7
	ItemAkimbo  = 8
)

func validItem(t int) bool { return t >= ItemClips && t <= ItemAkimbo }

type itemStat struct {
	add, start, max int
}

var ammoStats = [NumGuns]itemStat{
	GunKnife:   {1, 1, 1},
	GunPistol:  {16, 32, 72},
	GunShotgun: {14, 28, 21},
	GunSubgun:  {60, 90, 90},
	GunSniper:  {10, 20, 15},
	GunAssault: {40, 60, 60},
	GunGrenade: {2, 0, 2},
	GunAkimbo:  {16, 0, 72},
}

var (
	healthStat = itemStat{33, 100, 100}
	armourStat = itemStat{50, 100, 100}
)

// itemRespawn returns how long a picked up item stays away with players
// connected.
func itemRespawn(item, players int) time.Duration {
	np := 3
	switch {
	case players < 3:
		np = 4
	case players > 4:
		np = 2
	}
	sec := 0
	switch item {
	case ItemClips, ItemAmmo, ItemGrenade:
		sec = np * 2
	case ItemHealth:
		sec = np * 5
	case ItemArmour:
		sec = 20
	case ItemAkimbo:
		sec = 60
	}
	return time.Duration(sec) * time.Second
}
