package server

import (
	"math"
	"time"

	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/flag"
	"github.com/gasbugs/AC/internal/protocol"
)

const (
	arenaRoundDelay = 5 * time.Second
	arenaDeathDelay = 500 * time.Millisecond
	suicideDamage   = 1000
	armourAbsorb    = 30 // percent
)

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

func millisOf(d time.Duration) int { return int(d / time.Millisecond) }

// processEvents applies the queued events of every connection that are due
// at the current game time.
func (s *Server) processEvents() {
	for _, c := range s.clients {
		if c.peer == nil {
			continue
		}
		ps := &c.State
		if ps.AkimboUntil != 0 && ps.AkimboUntil < s.game.millis {
			ps.AkimboUntil = 0
			ps.Akimbo = false
		}
		for c.events.len() > 0 && c.peer != nil {
			e := c.events.events[0]
			if e.kind.timed() {
				if e.millis > s.game.millis {
					break
				}
				if e.millis < c.lastEvent {
					c.events.pop()
					continue
				}
				c.lastEvent = e.millis
			}
			switch e.kind {
			case evShot:
				s.processShot(c, e, c.events.hits())
			case evExplode:
				s.processExplode(c, e, c.events.hits())
			case evAkimbo:
				s.processAkimbo(c, e)
			case evReload:
				s.processReload(c, e)
			case evSuicide:
				s.damage(c, c, suicideDamage, GunKnife, false, [3]float32{})
			case evPickup:
				if s.game.mode.Multiplayer() && !ps.Alive(s.game.millis) {
					break
				}
				s.pickup(e.item, c)
			}
			if c.peer == nil {
				break
			}
			c.events.pop()
		}
	}
}

// hitTarget resolves the victim of a hit event.
func (s *Server) hitTarget(h gameEvent) *Client {
	t := s.client(h.target)
	if t == nil || !t.Authed() || t.State.Status != StatusAlive || t.State.LifeSequence != h.lifeSequence {
		return nil
	}
	return t
}

func (s *Server) processShot(c *Client, e gameEvent, hits []gameEvent) {
	ps := &c.State
	if !ps.Alive(e.millis) || !validGun(e.gun) {
		return
	}
	wait := e.millis - ps.LastShot
	if wait < ps.GunWait[e.gun] || ps.Mag[e.gun] <= 0 {
		return
	}
	if e.gun != GunKnife {
		ps.Mag[e.gun]--
	}
	for i := range ps.GunWait {
		if i != e.gun {
			ps.GunWait[i] -= wait
			if ps.GunWait[i] < 0 {
				ps.GunWait[i] = 0
			}
		}
	}
	ps.LastShot = e.millis
	ps.GunWait[e.gun] = msDuration(guns[e.gun].attackDelay)
	if e.gun == GunPistol && ps.Akimbo {
		ps.GunWait[e.gun] /= 2
	}

	w := protocol.NewWriter(48)
	w.PutInts(int(protocol.MsgShotFX), c.ID, e.gun)
	for _, v := range e.from {
		w.PutInt(int(v * protocol.DMF))
	}
	for _, v := range e.to {
		w.PutInt(int(v * protocol.DMF))
	}
	s.broadcast(protocol.ChannelReliable, w.Bytes(), c)

	rays := 1
	if e.gun == GunShotgun {
		rays = shotgunRays
	}
	ps.ShotDamage += guns[e.gun].damage * rays

	if e.gun == GunGrenade {
		ps.grenades.add(e.id)
		return
	}
	total := 0
	for _, h := range hits {
		t := s.hitTarget(h)
		if t == nil {
			continue
		}
		n := 1
		if e.gun == GunShotgun {
			n = h.info
		}
		if n < 1 {
			continue
		}
		total += n
		if total > rays {
			break
		}
		dmg := n * guns[e.gun].damage
		gib := false
		switch e.gun {
		case GunKnife:
			gib = true
		case GunSniper:
			if h.info != 0 {
				gib = true
				dmg *= 3
			}
		}
		s.damage(t, c, dmg, e.gun, gib, h.dir)
	}
}

func (s *Server) processExplode(c *Client, e gameEvent, hits []gameEvent) {
	ps := &c.State
	if e.gun != GunGrenade || !ps.grenades.remove(e.id) {
		return
	}
	seen := make(map[int]bool, len(hits))
	for _, h := range hits {
		if h.dist < 0 || h.dist > explosionRadius || seen[h.target] {
			continue
		}
		t := s.hitTarget(h)
		if t == nil {
			continue
		}
		seen[h.target] = true
		dmg := int(float32(guns[e.gun].damage) * (1 - h.dist/explosionRadius))
		s.damage(t, c, dmg, e.gun, true, h.dir)
	}
}

func (s *Server) processAkimbo(c *Client, e gameEvent) {
	ps := &c.State
	if !ps.Alive(e.millis) || ps.Akimbos <= 0 {
		return
	}
	ps.Akimbos--
	ps.AkimboUntil = e.millis + akimboDuration
}

func (s *Server) processReload(c *Client, e gameEvent) {
	ps := &c.State
	if !ps.Alive(e.millis) || !validGun(e.gun) || !reloadable(e.gun) || ps.Ammo[e.gun] <= 0 {
		return
	}
	mag := guns[e.gun].magSize
	if e.gun == GunPistol && ps.Akimbo {
		mag *= 2
	}
	bullets := mag - ps.Mag[e.gun]
	if bullets > ps.Ammo[e.gun] {
		bullets = ps.Ammo[e.gun]
	}
	if bullets < 0 {
		bullets = 0
	}
	ps.Mag[e.gun] += bullets
	ps.Ammo[e.gun] -= bullets
	ps.GunWait[e.gun] += msDuration(guns[e.gun].reload)
	s.broadcast(protocol.ChannelReliable, protocol.Build(protocol.MsgReload, c.ID, e.gun), c)
}

// damage applies dmg dealt by actor to target and resolves a kill.
func (s *Server) damage(target, actor *Client, dmg, gun int, gib bool, dir [3]float32) {
	ts := &target.State
	if ts.Status != StatusAlive {
		return
	}
	if dmg != suicideDamage {
		actor.State.Damage += dmg
	}
	absorbed := dmg * armourAbsorb / 100
	if absorbed > ts.Armour {
		absorbed = ts.Armour
	}
	ts.Armour -= absorbed
	ts.Health -= dmg - absorbed

	t := protocol.MsgDamage
	if gib {
		t = protocol.MsgGibDamage
	}
	s.broadcast(protocol.ChannelReliable, protocol.Build(t, target.ID, actor.ID, dmg, ts.Armour, ts.Health), nil)

	if target != actor && dir != ([3]float32{}) {
		l := float32(math.Sqrt(float64(dir[0]*dir[0] + dir[1]*dir[1] + dir[2]*dir[2])))
		w := protocol.NewWriter(24)
		w.PutInts(int(protocol.MsgHitPush), gun, dmg)
		for _, v := range dir {
			w.PutInt(int(v / l * protocol.DNF))
		}
		s.sendTo(target, protocol.ChannelReliable, w.Bytes())
	}
	if ts.Health > 0 {
		return
	}
	s.kill(target, actor, gun, gib)
}

func (s *Server) kill(target, actor *Client, gun int, gib bool) {
	ts, as := &target.State, &actor.State
	ts.Deaths++
	suicide := target == actor
	teamKill := !suicide && s.game.mode.Teams() && target.Team == actor.Team
	switch {
	case suicide:
		as.Frags--
	case teamKill:
		as.Frags--
		as.TeamKills++
	case gib:
		as.Frags += 2
	default:
		as.Frags++
	}

	t := protocol.MsgDied
	if gib {
		t = protocol.MsgGibDied
	}
	s.broadcast(protocol.ChannelReliable, protocol.Build(t, target.ID, actor.ID, as.Frags), nil)

	carried := s.flags.Carried(target.ID)
	mode := s.game.mode
	if (suicide || teamKill) && len(carried) > 0 && (mode == protocol.ModeHTF || mode.KeepTheFlag()) {
		as.FlagScore--
		s.broadcast(protocol.ChannelReliable, protocol.Build(protocol.MsgFlagCnt, actor.ID, as.FlagScore), nil)
	}

	target.position = target.position[:0]
	ts.Status = StatusDead
	ts.LastDeath = s.game.millis
	if ts.LastDeath == 0 {
		ts.LastDeath = 1
	}

	s.logger.Info().Int("cn", target.ID).Str("name", target.Name).Int("actor_cn", actor.ID).Str("actor", actor.Name).
		Str("gun", GunName(gun)).Bool("gib", gib).Bool("suicide", suicide).Bool("teamkill", teamKill).Msg("player died")
	s.emit(events.EventFrag, events.FragPayload{
		TargetCN: target.ID, TargetName: target.Name,
		ActorCN: actor.ID, ActorName: actor.Name,
		Gun: GunName(gun), Gib: gib, Suicide: suicide, TeamKill: teamKill,
	})

	for _, fl := range carried {
		switch s.flags.Variant {
		case flag.CTF:
			if teamKill {
				s.flagAction(fl, flag.Reset, -1)
			} else {
				s.flagAction(fl, flag.Lost, target.ID)
			}
		case flag.HTF:
			s.flagAction(fl, flag.Lost, target.ID)
		case flag.KTF:
			s.flagAction(fl, flag.Reset, -1)
		}
	}

	if actor.Role == protocol.RoleAdmin || actor.peer == nil {
		return
	}
	switch {
	case as.Frags < s.settings.BanThreshold:
		s.banClient(actor, autoBanDuration, "auto ban")
		s.disconnect(actor, protocol.DiscAutoBan)
	case as.Frags < s.settings.KickThreshold:
		s.disconnect(actor, protocol.DiscAutoKick)
	}
}

// banClient bans the host of c until now plus d.
func (s *Server) banClient(c *Client, d time.Duration, reason string) {
	until := s.now.Add(d)
	s.bans.Add(c.Host, until)
	s.logger.Info().Int("cn", c.ID).Str("host", c.Host).Str("name", c.Name).Time("until", until).Str("reason", reason).Msg("client banned")
	s.emit(events.EventBanAdded, events.BanPayload{Address: c.Host, Until: until, Reason: reason})
}

// readItemList reads the item list a client sends after loading a map.
// Only the first list of a match is taken.
func (s *Server) readItemList(r *protocol.Reader) {
	for !r.Overread() {
		n := r.GetInt()
		if n == -1 || r.Overread() {
			break
		}
		kind := r.GetInt()
		if n < 0 || n >= maxItems || !s.game.notGotItems {
			continue
		}
		for len(s.items) <= n {
			s.items = append(s.items, item{})
		}
		if validItem(kind) {
			s.items[n] = item{kind: kind, spawned: true}
		}
	}
	s.game.notGotItems = false
}

func (s *Server) pickup(i int, c *Client) {
	if i < 0 || i >= len(s.items) {
		return
	}
	it := &s.items[i]
	ps := &c.State
	if !it.spawned || ps.Status != StatusAlive || !ps.CanPickup(it.kind) {
		return
	}
	s.broadcast(protocol.ChannelReliable, protocol.Build(protocol.MsgItemAcc, i, c.ID), nil)
	ps.Pickup(it.kind)
	it.spawned = false
	it.respawn = itemRespawn(it.kind, s.numClients())
}

func (s *Server) checkItemSpawns(diff time.Duration) {
	for i := range s.items {
		it := &s.items[i]
		if it.kind == 0 || it.spawned {
			continue
		}
		it.respawn -= diff
		if it.respawn <= 0 {
			it.spawned = true
			s.broadcast(protocol.ChannelReliable, protocol.Build(protocol.MsgItemSpawn, i), nil)
		}
	}
}

// canSpawn reports whether c may spawn now. In arena modes players wait for
// the next round unless they are among the first two to join.
func (s *Server) canSpawn(c *Client, connecting bool) bool {
	if !s.game.mode.Arena() {
		return true
	}
	return connecting && s.numAuthed() <= 2
}

// distributeSpawns deals out shuffled spawn points for the next arena round.
func (s *Server) distributeSpawns() {
	if s.game.mode.Teams() {
		for team := 0; team < 2; team++ {
			n := s.game.spawns[team]
			if n <= 0 {
				n = 30
			}
			perm := s.rnd.Perm(n)
			k := 0
			s.connected(func(c *Client) {
				if c.TeamIndex() == team {
					c.spawnIndex = perm[k%n]
					k++
				}
			})
		}
		return
	}
	n := s.game.spawns[2]
	if n <= 0 {
		n = 100
	}
	perm := s.rnd.Perm(n)
	k := 0
	s.connected(func(c *Client) {
		c.spawnIndex = perm[k%n]
		k++
	})
}

// arenaCheck ends an arena round when at most one player or team is left
// and starts the next round once its delay passed.
func (s *Server) arenaCheck() {
	if !s.game.mode.Arena() || s.game.interm != 0 || s.game.millis < s.game.arenaRound || s.numAuthed() == 0 {
		return
	}
	if s.game.arenaRound != 0 {
		s.game.arenaRound = 0
		s.distributeSpawns()
		s.connected(func(c *Client) {
			if c.Authed() {
				c.State.Respawn()
				s.sendSpawn(c)
			}
		})
		return
	}

	var alive *Client
	dead := false
	var lastDeath time.Duration
	for _, c := range s.clients {
		if c.peer == nil || !c.Authed() {
			continue
		}
		ps := &c.State
		if ps.Status == StatusAlive || (ps.Status == StatusDead && ps.LastSpawn >= 0) {
			if alive == nil {
				alive = c
			} else if !s.game.mode.Teams() || alive.Team != c.Team {
				return
			}
		} else if ps.Status == StatusDead {
			dead = true
			if ps.LastDeath > lastDeath {
				lastDeath = ps.LastDeath
			}
		}
	}
	if !dead || s.game.millis < lastDeath+arenaDeathDelay {
		return
	}
	winner := -1
	if alive != nil {
		winner = alive.ID
	}
	s.broadcast(protocol.ChannelReliable, protocol.Build(protocol.MsgArenaWin, winner), nil)
	s.game.arenaRound = s.game.millis + arenaRoundDelay
	if s.autoTeam && s.game.mode.Teams() {
		s.refill(true)
	}
	p := events.ClientPayload{CN: winner}
	if alive != nil {
		p = clientPayload(alive, "")
	}
	s.emit(events.EventArenaWin, p)
}
