// Package access decides who may join: temporary address bans, the IP range
// blacklist and the admin credential file.
package access

import (
	"sort"
	"sync"
	"time"
)

// DefaultBanDuration is how long vote and threshold bans last.
const DefaultBanDuration = 20 * time.Minute

// Ban is one temporary address ban.
type Ban struct {
	Address string    `json:"address"`
	Until   time.Time `json:"until"`
}

// Bans is the set of temporary address bans. Expired entries are dropped
// lazily when looked up.
type Bans struct {
	mu   sync.Mutex
	bans map[string]time.Time
}

// NewBans creates an empty ban list.
func NewBans() *Bans {
	return &Bans{bans: make(map[string]time.Time)}
}

// Add bans addr until the given time. An existing ban is extended, never shortened.
func (b *Bans) Add(addr string, until time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.bans[addr]; ok && cur.After(until) {
		return
	}
	b.bans[addr] = until
}

// Remove lifts the ban on addr and reports whether there was one.
func (b *Bans) Remove(addr string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.bans[addr]
	delete(b.bans, addr)
	return ok
}

// Clear lifts every ban and returns how many there were.
func (b *Bans) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.bans)
	b.bans = make(map[string]time.Time)
	return n
}

// Banned reports whether addr is banned at now.
func (b *Bans) Banned(addr string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	until, ok := b.bans[addr]
	if !ok {
		return false
	}
	if !now.Before(until) {
		delete(b.bans, addr)
		return false
	}
	return true
}

// List returns the bans active at now, soonest expiry first.
func (b *Bans) List(now time.Time) []Ban {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Ban, 0, len(b.bans))
	for addr, until := range b.bans {
		if !now.Before(until) {
			delete(b.bans, addr)
			continue
		}
		out = append(out, Ban{Address: addr, Until: until})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Until.Equal(out[j].Until) {
			return out[i].Address < out[j].Address
		}
		return out[i].Until.Before(out[j].Until)
	})
	return out
}
