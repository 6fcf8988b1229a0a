package access

import (
	"crypto/subtle"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gasbugs/AC/internal/protocol"
)

// Entry is one admin credential. Line 0 is the command-line password.
type Entry struct {
	Password  string
	Line      int
	DenyAdmin bool
}

// Passwords is the admin credential file: one "password [denyadmin]" per
// line. A non-zero denyadmin lets the password bypass bans and full or
// private servers without granting the admin role.
type Passwords struct {
	mu      sync.RWMutex
	file    watchedFile
	admin   string
	entries []Entry
}

// NewPasswords creates a credential set backed by path. adminPassword, when
// set, is always present as line 0.
func NewPasswords(path, adminPassword string) *Passwords {
	p := &Passwords{file: watchedFile{path: path}, admin: adminPassword}
	p.entries = p.base()
	return p
}

func (p *Passwords) base() []Entry {
	if p.admin == "" {
		return nil
	}
	return []Entry{{Password: p.admin, Line: 0}}
}

// Load rereads the backing file. Unless force is set, an unchanged file is skipped.
func (p *Passwords) Load(force bool) error {
	if p.file.path == "" {
		return nil
	}
	if !force && !p.file.changed() {
		return nil
	}
	lines, err := p.file.load()
	if err != nil {
		return err
	}
	entries := p.base()
	for _, l := range lines {
		fields := strings.Fields(l.text)
		e := Entry{Password: fields[0], Line: l.number}
		if len(fields) > 1 {
			n, _ := strconv.Atoi(fields[1])
			e.DenyAdmin = n > 0
		}
		entries = append(entries, e)
	}
	p.mu.Lock()
	p.entries = entries
	p.mu.Unlock()
	log.Info().Str("file", p.file.path).Int("passwords", len(entries)-len(p.base())).Msg("admin passwords loaded")
	return nil
}

// Check finds the entry whose hash for name and salt equals hash.
func (p *Passwords) Check(name, hash string, salt int) (Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.entries {
		want := protocol.PasswordHash(name, e.Password, salt)
		if subtle.ConstantTimeCompare([]byte(want), []byte(hash)) == 1 {
			return e, true
		}
	}
	return Entry{}, false
}

// Len returns the number of credentials, including line 0.
func (p *Passwords) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
