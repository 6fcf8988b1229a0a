// Package flag holds the two-flag objective state machine shared by the
// capture-the-flag, hunt-the-flag and keep-the-flag modes.
package flag

import (
	"math/rand"
	"time"
)

// Status is the state of one flag.
type Status int

const (
	InBase Status = iota
	Stolen
	Dropped
	Idle
)

func (s Status) String() string {
	switch s {
	case InBase:
		return "inbase"
	case Stolen:
		return "stolen"
	case Dropped:
		return "dropped"
	case Idle:
		return "idle"
	}
	return "unknown"
}

// Action is a requested transition. Clients may send actions below NumClientActions.
type Action int

const (
	Pickup Action = iota
	Steal
	Drop
	Lost
	Return
	Score
	NumClientActions
	Reset
)

// Message is the notification broadcast after a transition.
type Message int

const (
	MsgNone Message = iota - 1
	MsgPickup
	MsgSteal
	MsgDrop
	MsgLost
	MsgReturn
	MsgScore
	MsgKTFScore
	MsgScoreFail
	MsgReset
)

func (m Message) String() string {
	switch m {
	case MsgPickup:
		return "pickup"
	case MsgSteal:
		return "steal"
	case MsgDrop:
		return "drop"
	case MsgLost:
		return "lost"
	case MsgReturn:
		return "return"
	case MsgScore:
		return "score"
	case MsgKTFScore:
		return "ktfscore"
	case MsgScoreFail:
		return "scorefail"
	case MsgReset:
		return "reset"
	}
	return "none"
}

// Variant selects the rule table.
type Variant int

const (
	None Variant = iota
	CTF
	HTF
	KTF
)

func (v Variant) String() string {
	switch v {
	case CTF:
		return "ctf"
	case HTF:
		return "htf"
	case KTF:
		return "ktf"
	}
	return "none"
}

// Timeouts of the automatic transitions.
const (
	CTFDroppedReset      = 30 * time.Second
	DroppedReset         = 10 * time.Second
	HTFForcePickup       = 10 * time.Second
	HTFForcePickupNoBase = time.Second
	KTFScoreInterval     = 15 * time.Second
)

// Actor is the view of a player the state machine needs.
type Actor struct {
	ID     int
	Team   int
	Alive  bool
	Health int
	Pos    [3]float32
}

// World resolves players for the state machine.
type World interface {
	// Actor returns the player with id, if connected.
	Actor(id int) (Actor, bool)
	// Members returns the connected players of team in connection order.
	Members(team int) []Actor
}

// Flag is the state of one team's flag.
type Flag struct {
	Status     Status
	Actor      int
	Pos        [3]float32
	LastUpdate time.Duration
	StolenAt   time.Duration
}

// Result describes one applied transition.
type Result struct {
	Flag    int
	Message Message
	Actor   int
	Score   int
	// HeldFor is how long a keep-the-flag carrier held the flag when scoring.
	HeldFor time.Duration
	// Info lists the flags whose state must be rebroadcast.
	Info []int
}

// Opposite returns the other team.
func Opposite(team int) int { return 1 - team }

// Pair is the two-flag state of a match.
type Pair struct {
	Variant Variant
	Flags   [2]Flag
}

// Valid reports whether flag names one of the two flags.
func Valid(flag int) bool { return flag == 0 || flag == 1 }

// Reset puts both flags back in base. In keep-the-flag one random flag is
// idle instead.
func (p *Pair) Reset(v Variant, rnd *rand.Rand) {
	p.Variant = v
	idle := -1
	if v == KTF {
		idle = rnd.Intn(2)
	}
	for i := range p.Flags {
		p.Flags[i] = Flag{Status: InBase, Actor: -1, LastUpdate: -1}
		if i == idle {
			p.Flags[i].Status = Idle
		}
	}
}

// Apply runs action on flag for actor (-1 for the server) at game time now.
// It reports false and leaves the state untouched when the transition is
// not allowed.
func (p *Pair) Apply(flag int, action Action, actor int, w World, now time.Duration) (Result, bool) {
	if !Valid(flag) || p.Variant == None {
		return Result{}, false
	}
	f := &p.Flags[flag]
	of := &p.Flags[Opposite(flag)]
	a, known := w.Actor(actor)
	dead := !known || !a.Alive

	res := Result{Flag: flag, Message: MsgNone, Info: []int{flag}}

	switch p.Variant {
	case CTF, HTF:
		switch action {
		case Pickup, Steal:
			if dead || f.Status == Stolen {
				return Result{}, false
			}
			team := a.Team
			if p.Variant == CTF {
				team = Opposite(team)
			}
			if team != flag {
				return Result{}, false
			}
			f.Status = Stolen
			f.Actor = actor
			res.Message = MsgPickup
		case Lost, Drop:
			if action == Lost && actor == -1 {
				actor = f.Actor
				a, known = w.Actor(actor)
			}
			if f.Status != Stolen || f.Actor != actor {
				return Result{}, false
			}
			f.Status = Dropped
			if known {
				f.Pos = a.Pos
			}
			res.Message = MsgDrop
			if action == Lost {
				res.Message = MsgLost
			}
		case Return:
			if f.Status != Dropped || p.Variant == HTF {
				return Result{}, false
			}
			f.Status = InBase
			res.Message = MsgReturn
		case Score:
			if p.Variant == CTF {
				if f.Status != Stolen || f.Actor != actor || of.Status != InBase {
					return Result{}, false
				}
				res.Score = 1
				res.Message = MsgScore
			} else {
				if f.Status != Dropped {
					return Result{}, false
				}
				if of.Status == Stolen {
					res.Score = 1
					if of.Actor == actor {
						res.Score = 2
					}
					res.Message = MsgScore
				} else {
					res.Message = MsgScoreFail
				}
			}
			f.Status = InBase
		case Reset:
			f.Status = InBase
			res.Message = MsgReset
		default:
			return Result{}, false
		}

	case KTF:
		// f is the active flag, of the idle one.
		switch action {
		case Pickup, Steal:
			if dead || f.Status != InBase {
				return Result{}, false
			}
			f.Status = Stolen
			f.Actor = actor
			f.StolenAt = now
			res.Message = MsgPickup
		case Score, Lost, Drop, Reset:
			if action == Score {
				if actor != -1 || f.Status != Stolen {
					return Result{}, false
				}
				if c, ok := w.Actor(f.Actor); ok && c.Alive {
					res.Actor = f.Actor
					res.Score = 1
					res.Message = MsgKTFScore
					res.HeldFor = now - f.StolenAt
					break
				}
				// a carrier that is gone or dead loses the flag
				action = Lost
			}
			if action == Lost && actor == -1 {
				actor = f.Actor
			}
			if (action == Lost || action == Drop) && (f.Actor != actor || f.Status != Stolen) {
				return Result{}, false
			}
			if f.Status == Stolen {
				actor = f.Actor
				res.Message = MsgLost
			}
			f.Status = Idle
			of.Status = InBase
			res.Info = []int{Opposite(flag), flag}
		default:
			return Result{}, false
		}
	}

	if res.Message != MsgKTFScore {
		res.Actor = actor
	}
	if _, ok := w.Actor(res.Actor); !ok {
		res.Actor = -1
	}
	f.LastUpdate = now
	return res, true
}

// Carried returns the flags carried by id, in flag order.
func (p *Pair) Carried(id int) []int {
	var out []int
	for i, f := range p.Flags {
		if f.Status == Stolen && f.Actor == id {
			out = append(out, i)
		}
	}
	return out
}

// Watchdog runs the time-driven transitions due at now. spawnsOK reports
// whether the map has both flag bases.
func (p *Pair) Watchdog(w World, now time.Duration, spawnsOK bool, rnd *rand.Rand) []Result {
	if p.Variant == None {
		return nil
	}
	var out []Result
	inGame := false
	for i := range p.Flags {
		f := &p.Flags[i]
		dropLimit := DroppedReset
		if p.Variant == CTF {
			dropLimit = CTFDroppedReset
		}
		if f.Status == Dropped && now-f.LastUpdate > dropLimit {
			if r, ok := p.Apply(i, Reset, -1, w, now); ok {
				out = append(out, r)
			}
		}
		forceAfter := HTFForcePickupNoBase
		if spawnsOK {
			forceAfter = HTFForcePickup
		}
		if p.Variant == HTF && f.Status == InBase && now-f.LastUpdate > forceAfter {
			if r, ok := p.force(i, w, now, rnd); ok {
				out = append(out, r)
			}
		}
		if p.Variant == KTF && f.Status == Stolen && now-f.LastUpdate > KTFScoreInterval {
			if r, ok := p.Apply(i, Score, -1, w, now); ok {
				out = append(out, r)
			}
		}
		if f.Status == InBase || f.Status == Stolen {
			inGame = true
		}
	}
	if p.Variant == KTF && !inGame {
		if r, ok := p.Apply(rnd.Intn(2), Reset, -1, w, now); ok {
			out = append(out, r)
		}
	}
	return out
}

// force hands a hunt-the-flag flag to a random alive member of its team
// among those with the highest health.
func (p *Pair) force(flag int, w World, now time.Duration, rnd *rand.Rand) (Result, bool) {
	f := &p.Flags[flag]
	f.LastUpdate = now

	var best []Actor
	bestHealth := 0
	for _, a := range w.Members(flag) {
		if !a.Alive {
			continue
		}
		switch {
		case a.Health > bestHealth || len(best) == 0:
			bestHealth = a.Health
			best = append(best[:0], a)
		case a.Health == bestHealth:
			best = append(best, a)
		}
	}
	if len(best) == 0 {
		return Result{}, false
	}
	pick := best[rnd.Intn(len(best))]
	f.Status = Stolen
	f.Actor = pick.ID
	return Result{Flag: flag, Message: MsgPickup, Actor: pick.ID, Info: []int{flag}}, true
}
