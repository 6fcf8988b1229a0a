// Package maprot reads the map rotation and walks it between matches.
//
// The rotation is a YAML document:
//
//	rotation:
//	  - map: ac_depot
//	    mode: ctf
//	    minutes: 15
//	    vote: true
//	    min_players: 4
//
// Files without a .yml or .yaml extension are read in the line format
// "map:mode:minutes:vote:minplayers:maxplayers:skiplines".
package maprot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/gasbugs/AC/internal/protocol"
)

// Entry is one rotation slot.
type Entry struct {
	Map        string            `yaml:"map" json:"map"`
	Mode       protocol.GameMode `yaml:"-" json:"mode"`
	ModeName   string            `yaml:"mode" json:"mode_name"`
	Minutes    int               `yaml:"minutes" json:"minutes"`
	Vote       bool              `yaml:"vote" json:"vote"`
	MinPlayers int               `yaml:"min_players" json:"min_players"`
	MaxPlayers int               `yaml:"max_players" json:"max_players"`
	// Skip is how many following entries to jump over after this one.
	Skip int `yaml:"skip" json:"skip"`
}

// Fits reports whether the entry may be played with players connected.
func (e Entry) Fits(players int) bool {
	return players >= e.MinPlayers && (e.MaxPlayers == 0 || players <= e.MaxPlayers)
}

type document struct {
	Rotation []Entry `yaml:"rotation"`
}

// Rotation is the loaded map rotation with its current position.
type Rotation struct {
	mu      sync.RWMutex
	path    string
	size    int64
	loaded  bool
	entries []Entry
	current int
}

// New creates a rotation backed by path. Nothing is read until Load.
func New(path string) *Rotation {
	return &Rotation{path: path, current: -1}
}

// Parse decodes a rotation. yamlFormat selects YAML over the line format.
func Parse(data []byte, yamlFormat bool) ([]Entry, error) {
	if !yamlFormat {
		return parseLines(string(data))
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rotation: %w", err)
	}
	out := doc.Rotation[:0]
	for i, e := range doc.Rotation {
		mode, ok := parseMode(e.ModeName)
		if !ok || e.Map == "" || e.Minutes <= 0 {
			log.Warn().Int("entry", i+1).Str("map", e.Map).Str("mode", e.ModeName).Msg("ignoring rotation entry")
			continue
		}
		e.Mode = mode
		e.ModeName = mode.Short()
		out = append(out, e)
	}
	return out, nil
}

func parseMode(s string) (protocol.GameMode, bool) {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		m := protocol.GameMode(n)
		return m, m.Valid()
	}
	return protocol.ParseMode(s)
}

func parseLines(data string) ([]Entry, error) {
	var out []Entry
	for _, raw := range strings.Split(data, "\n") {
		if c := strings.Index(raw, "//"); c >= 0 {
			raw = raw[:c]
		}
		fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ':' || r == ' ' || r == '\t' || r == '\r' })
		if len(fields) < 4 {
			continue
		}
		var par [6]int
		for i := 0; i < len(par) && i+1 < len(fields); i++ {
			par[i], _ = strconv.Atoi(fields[i+1])
		}
		mode := protocol.GameMode(par[0])
		if !mode.Valid() {
			continue
		}
		out = append(out, Entry{
			Map:        fields[0],
			Mode:       mode,
			ModeName:   mode.Short(),
			Minutes:    par[1],
			Vote:       par[2] > 0,
			MinPlayers: par[3],
			MaxPlayers: par[4],
			Skip:       par[5],
		})
	}
	return out, nil
}

// Load rereads the rotation file. Unless force is set an unchanged file is
// skipped. A missing file leaves the rotation empty.
func (r *Rotation) Load(force bool) error {
	if r.path == "" {
		return nil
	}
	st, statErr := os.Stat(r.path)
	if !force && r.loaded && (statErr == nil && st.Size() == r.size || statErr != nil && r.size == -1) {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		r.mu.Lock()
		r.entries, r.size, r.loaded = nil, -1, true
		r.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read rotation %s: %w", r.path, err)
	}
	ext := strings.ToLower(filepath.Ext(r.path))
	entries, err := Parse(data, ext == ".yml" || ext == ".yaml")
	if err != nil {
		return err
	}
	r.Set(entries)
	r.mu.Lock()
	r.size, r.loaded = int64(len(data)), true
	r.mu.Unlock()
	log.Info().Str("file", r.path).Int("entries", len(entries)).Msg("map rotation loaded")
	return nil
}

// Set replaces the entries and rewinds the rotation.
func (r *Rotation) Set(entries []Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = entries
	r.current = -1
}

// Entries returns a copy of the rotation.
func (r *Rotation) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Entry(nil), r.entries...)
}

// Len returns the number of entries.
func (r *Rotation) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Peek returns the entry Next would pick without advancing.
func (r *Rotation) Peek(players int) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.next(players)
	if i < 0 {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Next advances to the following entry that fits the player count, honouring
// the current entry's skip count. When nothing fits, the last entry tried is
// used anyway.
func (r *Rotation) Next(players int) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.next(players)
	if i < 0 {
		return Entry{}, false
	}
	r.current = i
	return r.entries[i], true
}

func (r *Rotation) next(players int) int {
	n := len(r.entries)
	if n == 0 {
		return -1
	}
	i := r.current
	if i >= 0 && i < n {
		i += r.entries[i].Skip
	}
	for tries := 0; tries < n; tries++ {
		i++
		if i >= n || i < 0 {
			i = 0
		}
		if r.entries[i].Fits(players) {
			break
		}
	}
	return i
}

// Allows reports whether non-admins may vote for map in mode. A rotation
// without votable entries allows every map.
func (r *Rotation) Allows(mapName string, mode protocol.GameMode) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	votable := false
	for _, e := range r.entries {
		if !e.Vote {
			continue
		}
		votable = true
		if strings.EqualFold(e.Map, mapName) && e.Mode == mode {
			return true
		}
	}
	return !votable
}
