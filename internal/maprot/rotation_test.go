package maprot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gasbugs/AC/internal/protocol"
)

const sampleYAML = `
rotation:
  - map: ac_depot
    mode: ctf
    minutes: 15
    vote: true
  - map: ac_complex
    mode: 0
    minutes: 10
    min_players: 4
  - map: ac_mines
    mode: tdm
    minutes: 10
    skip: 1
  - map: ac_arctic
    mode: dm
    minutes: 5
  - map: ac_bogus
    mode: nonsense
    minutes: 5
`

func load(t *testing.T, name, content string) *Rotation {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	r := New(path)
	if err := r.Load(true); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestParseYAML(t *testing.T) {
	r := load(t, "maprot.yaml", sampleYAML)
	entries := r.Entries()
	if len(entries) != 4 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Mode != protocol.ModeCTF || !entries[0].Vote || entries[1].Mode != protocol.ModeTDM {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestParseLineFormat(t *testing.T) {
	r := load(t, "maprot.cfg", "// comment\nac_depot:5:15:1\nac_complex:0:10:0:4:8:0\nbroken:1\n")
	entries := r.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	e := entries[1]
	if e.Map != "ac_complex" || e.Minutes != 10 || e.MinPlayers != 4 || e.MaxPlayers != 8 || e.Vote {
		t.Fatalf("entry = %+v", e)
	}
}

func TestNextHonoursPlayerBoundsAndSkip(t *testing.T) {
	r := load(t, "maprot.yaml", sampleYAML)

	walk := func(players int, n int) []string {
		var out []string
		for i := 0; i < n; i++ {
			e, ok := r.Next(players)
			if !ok {
				t.Fatal("empty rotation")
			}
			out = append(out, e.Map)
		}
		return out
	}

	// ac_complex needs 4 players; ac_mines skips ac_arctic
	got := walk(2, 4)
	want := []string{"ac_depot", "ac_mines", "ac_depot", "ac_mines"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("walk = %v, want %v", got, want)
		}
	}

	r.Set(r.Entries())
	got = walk(5, 3)
	want = []string{"ac_depot", "ac_complex", "ac_mines"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("walk = %v, want %v", got, want)
		}
	}
}

func TestPeekDoesNotAdvance(t *testing.T) {
	r := load(t, "maprot.yaml", sampleYAML)
	a, _ := r.Peek(5)
	b, _ := r.Peek(5)
	if a.Map != b.Map || a.Map != "ac_depot" {
		t.Fatalf("peek = %s, %s", a.Map, b.Map)
	}
}

func TestAllows(t *testing.T) {
	r := load(t, "maprot.yaml", sampleYAML)
	if !r.Allows("AC_DEPOT", protocol.ModeCTF) {
		t.Error("votable entry refused")
	}
	if r.Allows("ac_depot", protocol.ModeTDM) {
		t.Error("votable map allowed in another mode")
	}
	if r.Allows("ac_complex", protocol.ModeTDM) {
		t.Error("non-votable entry allowed")
	}

	empty := New("")
	if !empty.Allows("anything", protocol.ModeDM) {
		t.Error("empty rotation must allow every map")
	}
}

func TestMissingFile(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "none.yaml"))
	if err := r.Load(true); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Next(1); ok {
		t.Fatal("empty rotation returned an entry")
	}
}
