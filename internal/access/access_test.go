package access

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gasbugs/AC/internal/protocol"
)

func TestBansExpireLazily(t *testing.T) {
	b := NewBans()
	now := time.Unix(100, 0)
	b.Add("10.0.0.1", now.Add(time.Minute))
	if !b.Banned("10.0.0.1", now) {
		t.Fatal("fresh ban not active")
	}
	if b.Banned("10.0.0.2", now) {
		t.Fatal("unrelated address banned")
	}
	if b.Banned("10.0.0.1", now.Add(time.Minute)) {
		t.Fatal("ban still active at expiry")
	}
	if len(b.List(now)) != 0 {
		t.Fatal("expired ban was not pruned")
	}
}

func TestBansAddNeverShortens(t *testing.T) {
	b := NewBans()
	now := time.Unix(100, 0)
	b.Add("a", now.Add(time.Hour))
	b.Add("a", now.Add(time.Minute))
	if !b.Banned("a", now.Add(30*time.Minute)) {
		t.Fatal("second Add shortened the ban")
	}
}

func TestBansRemoveAndClear(t *testing.T) {
	b := NewBans()
	now := time.Unix(100, 0)
	b.Add("a", now.Add(time.Hour))
	b.Add("b", now.Add(2*time.Hour))
	b.Add("c", now.Add(3*time.Hour))
	if !b.Remove("a") || b.Remove("a") {
		t.Fatal("Remove result wrong")
	}
	list := b.List(now)
	if len(list) != 2 || list[0].Address != "b" {
		t.Fatalf("List = %+v", list)
	}
	if n := b.Clear(); n != 2 {
		t.Fatalf("Clear = %d", n)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1.2.3.4", "1.2.3.4", false},
		{"1.2.3.4-1.2.3.9", "1.2.3.4-1.2.3.9", false},
		{"1.2.3.9-1.2.3.4", "", true},
		{"10.1.2.3/8", "10.0.0.0-10.255.255.255", false},
		{"10.1.2.3/32", "10.1.2.3", false},
		{"10.1.2.3/0", "", true},
		{"10.1.2.3/33", "", true},
		{"garbage", "", true},
		{"::1", "", true},
	}
	for _, tt := range tests {
		r, err := ParseRange(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRange(%q) = %v, want error", tt.in, r)
			}
			continue
		}
		if err != nil || r.String() != tt.want {
			t.Errorf("ParseRange(%q) = %v, %v; want %s", tt.in, r, err, tt.want)
		}
	}
}

func TestMergeJoinsAndDropsCovered(t *testing.T) {
	mk := func(s string) Range {
		r, err := ParseRange(s)
		if err != nil {
			t.Fatal(err)
		}
		return r
	}
	got := Merge([]Range{
		mk("10.0.0.5-10.0.0.9"),
		mk("10.0.0.0-10.0.0.6"),
		mk("10.0.0.2"),
		mk("192.168.0.0/24"),
		mk("10.0.0.9-10.0.0.12"),
	})
	want := []string{"10.0.0.0-10.0.0.12", "192.168.0.0-192.168.0.255"}
	if len(got) != len(want) {
		t.Fatalf("Merge = %v", got)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("range %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBlacklistLoadAndContains(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blacklist.cfg")
	content := "// comment\n1.2.3.4\n\n5.6.7.0/24 // inline\nnot-an-ip\n# also comment\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	b := NewBlacklist(path)
	if err := b.Load(false); err != nil {
		t.Fatal(err)
	}
	for addr, want := range map[string]bool{
		"1.2.3.4":   true,
		"1.2.3.5":   false,
		"5.6.7.0":   true,
		"5.6.7.255": true,
		"5.6.8.0":   false,
		"bogus":     false,
	} {
		if got := b.Contains(addr); got != want {
			t.Errorf("Contains(%s) = %v, want %v", addr, got, want)
		}
	}

	// unchanged size skips the reread
	b.Set(nil)
	if err := b.Load(false); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 0 {
		t.Fatal("unchanged file was reread")
	}
	if err := b.Load(true); err != nil || b.Len() != 2 {
		t.Fatalf("forced reload: len = %d, err = %v", b.Len(), err)
	}
}

func TestBlacklistMissingFile(t *testing.T) {
	b := NewBlacklist(filepath.Join(t.TempDir(), "missing.cfg"))
	if err := b.Load(true); err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if b.Contains("1.2.3.4") {
		t.Fatal("empty blacklist matched")
	}
}

func TestPasswordsCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serverpwd.cfg")
	if err := os.WriteFile(path, []byte("secret\nguest 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := NewPasswords(path, "cmdline")
	if err := p.Load(true); err != nil {
		t.Fatal(err)
	}
	if p.Len() != 3 {
		t.Fatalf("Len = %d, want 3", p.Len())
	}

	tests := []struct {
		pwd     string
		ok      bool
		line    int
		denyAdm bool
	}{
		{"cmdline", true, 0, false},
		{"secret", true, 1, false},
		{"guest", true, 2, true},
		{"wrong", false, 0, false},
	}
	for _, tt := range tests {
		hash := protocol.PasswordHash("player", tt.pwd, 42)
		e, ok := p.Check("player", hash, 42)
		if ok != tt.ok || e.Line != tt.line || e.DenyAdmin != tt.denyAdm {
			t.Errorf("Check(%s) = %+v, %v", tt.pwd, e, ok)
		}
	}
	// the hash is bound to the salt
	if _, ok := p.Check("player", protocol.PasswordHash("player", "secret", 1), 2); ok {
		t.Error("hash accepted with another salt")
	}
}
