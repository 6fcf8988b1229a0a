package demo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultMaxDemos is how many finished demos are kept in memory.
const DefaultMaxDemos = 5

// Demo is a finished recording.
type Demo struct {
	Info   string `json:"info"`
	Header Header `json:"header"`
	Data   []byte `json:"-"`
	Size   int    `json:"size"`
}

// Store keeps the most recent demos in memory and optionally writes each one
// to a directory.
type Store struct {
	mu    sync.RWMutex
	max   int
	dir   string
	demos []Demo
}

// NewStore creates a store holding at most max demos. A non-empty dir
// receives a copy of every demo.
func NewStore(max int, dir string) *Store {
	if max <= 0 {
		max = DefaultMaxDemos
	}
	return &Store{max: max, dir: dir}
}

// Describe builds the one-line listing of a demo.
func Describe(h Header, size int, finished time.Time) string {
	amount, unit := float64(size)/1024, "kB"
	if size > 1024*1024 {
		amount, unit = float64(size)/(1024*1024), "MB"
	}
	return fmt.Sprintf("%s: %s, %s, %.2f%s", finished.Format(time.ANSIC), h.ModeName, h.Map, amount, unit)
}

// Add stores a finished recording, evicting the oldest demo when full. It
// returns the stored demo and the file it was written to, if any.
func (s *Store) Add(h Header, data []byte, finished time.Time) (Demo, string, error) {
	d := Demo{Info: Describe(h, len(data), finished), Header: h, Data: data, Size: len(data)}

	s.mu.Lock()
	if len(s.demos) >= s.max {
		s.demos = append(s.demos[:0], s.demos[len(s.demos)-s.max+1:]...)
	}
	s.demos = append(s.demos, d)
	s.mu.Unlock()

	if s.dir == "" {
		return d, "", nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return d, "", fmt.Errorf("failed to create demo directory %s: %w", s.dir, err)
	}
	name := fmt.Sprintf("%s_%s_%s.dmo", finished.Format("20060102_1504"), filepath.Base(h.Map), h.ModeName)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return d, "", fmt.Errorf("failed to write demo %s: %w", path, err)
	}
	log.Info().Str("file", path).Int("bytes", len(data)).Msg("demo written")
	return d, path, nil
}

// List returns the demo descriptions, oldest first.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.demos))
	for i, d := range s.demos {
		out[i] = d.Info
	}
	return out
}

// Demos returns the stored demos without their data.
func (s *Store) Demos() []Demo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Demo, len(s.demos))
	for i, d := range s.demos {
		d.Data = nil
		out[i] = d
	}
	return out
}

// Get returns demo n, counting from 1. Zero selects the most recent.
func (s *Store) Get(n int) (Demo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n == 0 {
		n = len(s.demos)
	}
	if n < 1 || n > len(s.demos) {
		return Demo{}, false
	}
	return s.demos[n-1], true
}

// Clear removes demo n, or every demo when n is zero. It returns how many
// were removed.
func (s *Store) Clear(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n == 0 {
		removed := len(s.demos)
		s.demos = nil
		return removed
	}
	if n < 1 || n > len(s.demos) {
		return 0
	}
	s.demos = append(s.demos[:n-1], s.demos[n:]...)
	return 1
}

// Len returns the number of stored demos.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.demos)
}

// PruneDir deletes the oldest demo files beyond keep from the demo directory.
func (s *Store) PruneDir(keep int) (int, error) {
	if s.dir == "" || keep < 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	type file struct {
		path string
		mod  time.Time
	}
	var files []file
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".dmo") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{filepath.Join(s.dir, e.Name()), info.ModTime()})
	}
	if len(files) <= keep {
		return 0, nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
	removed := 0
	for _, f := range files[:len(files)-keep] {
		if err := os.Remove(f.path); err != nil {
			log.Warn().Err(err).Str("file", f.path).Msg("failed to remove old demo")
			continue
		}
		removed++
	}
	return removed, nil
}
