package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gasbugs/AC/internal/access"
	"github.com/gasbugs/AC/internal/config"
	"github.com/gasbugs/AC/internal/demo"
	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/protocol"
	"github.com/gasbugs/AC/internal/server"
)

type fakeGame struct {
	status  server.Status
	kicked  []int
	banned  map[int]time.Duration
	mapName string
	mode    protocol.GameMode
	said    []string
	bans    *access.Bans
	demos   *demo.Store
}

func (g *fakeGame) Snapshot() server.Status { return g.status }
func (g *fakeGame) Kick(ctx context.Context, cn int) error {
	if _, ok := g.status.Player(cn); !ok {
		return server.ErrNoClient
	}
	g.kicked = append(g.kicked, cn)
	return nil
}
func (g *fakeGame) Ban(ctx context.Context, cn int, d time.Duration) error {
	g.banned[cn] = d
	return nil
}
func (g *fakeGame) Unban(ctx context.Context, addr string) (bool, error) {
	return g.bans.Remove(addr), nil
}
func (g *fakeGame) ChangeMap(ctx context.Context, name string, mode protocol.GameMode, minutes int) error {
	g.mapName, g.mode = name, mode
	return nil
}
func (g *fakeGame) Say(ctx context.Context, text string) error {
	g.said = append(g.said, text)
	return nil
}
func (g *fakeGame) SetMasterMode(ctx context.Context, mm protocol.MasterMode) error { return nil }
func (g *fakeGame) ReloadAccess(ctx context.Context) error                         { return nil }
func (g *fakeGame) Bans() *access.Bans                                             { return g.bans }
func (g *fakeGame) DemoStore() *demo.Store                                         { return g.demos }

func newTestCLI(t *testing.T, input string) (*CLI, *fakeGame, *bytes.Buffer, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), "config.json"))
	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)
	game := &fakeGame{
		status: server.Status{
			Map:        "ac_complex",
			Mode:       "tdm",
			Clients:    1,
			MaxClients: 6,
			Players:    []server.PlayerInfo{{CN: 0, Name: "alice", Team: "CLA", Frags: 5}},
		},
		banned: make(map[int]time.Duration),
		bans:   access.NewBans(),
		demos:  demo.NewStore(2, ""),
	}
	out := &bytes.Buffer{}
	return NewCLI(cfg, bus, game, strings.NewReader(input), out), game, out, cfg
}

func TestConsoleSession(t *testing.T) {
	c, game, out, _ := newTestCLI(t, strings.Join([]string{
		"status",
		"players",
		"kick 0",
		"kick 9",
		"ban 0 15",
		"map ac_desert ctf",
		"say back in five",
		"frobnicate",
		"quit",
		"say never reached",
	}, "\n"))

	c.Start(context.Background())

	text := out.String()
	for _, want := range []string{"ac_complex", "alice", "Client 0 kicked", "Error: no such client", "Unknown command", "Shutting down"} {
		if !strings.Contains(text, want) {
			t.Errorf("output lacks %q:\n%s", want, text)
		}
	}
	if len(game.kicked) != 1 || game.banned[0] != 15*time.Minute {
		t.Errorf("kicked %v banned %v", game.kicked, game.banned)
	}
	if game.mapName != "ac_desert" || game.mode != protocol.ModeCTF {
		t.Errorf("map %q mode %v", game.mapName, game.mode)
	}
	if len(game.said) != 1 || game.said[0] != "back in five" {
		t.Errorf("said %v", game.said)
	}
}

func TestConsoleArgumentErrors(t *testing.T) {
	c, _, _, _ := newTestCLI(t, "")
	ctx := context.Background()
	for _, line := range []string{"kick", "kick x", "ban 0 -3", "map ac_desert", "map ac_desert nomode", "unban 1.2.3.4", "mastermode closed"} {
		parts := strings.Fields(line)
		if _, err := c.execute(ctx, parts[0], parts[1:]); err == nil {
			t.Errorf("%q accepted", line)
		}
	}
}

func TestSetConfig(t *testing.T) {
	c, _, _, cfg := newTestCLI(t, "")
	ctx := context.Background()

	if _, err := c.execute(ctx, "setconfig", []string{"max_clients", "12"}); err != nil {
		t.Fatalf("setconfig max_clients: %v", err)
	}
	if _, err := c.execute(ctx, "setconfig", []string{"motd", "1337"}); err != nil {
		t.Fatalf("setconfig motd: %v", err)
	}
	srv := cfg.GetServer()
	if srv.MaxClients != 12 || srv.MOTD != "1337" {
		t.Errorf("max_clients %d motd %q", srv.MaxClients, srv.MOTD)
	}
	if _, err := c.execute(ctx, "setconfig", []string{"nonsense", "1"}); err == nil {
		t.Error("unknown key accepted")
	}
}

func TestBansAndDemosListing(t *testing.T) {
	c, game, out, _ := newTestCLI(t, "")
	ctx := context.Background()

	c.execute(ctx, "bans", nil)
	c.execute(ctx, "demos", nil)
	if !strings.Contains(out.String(), "No active bans") || !strings.Contains(out.String(), "No demos recorded") {
		t.Fatalf("empty listings:\n%s", out.String())
	}

	game.bans.Add("10.1.2.3", time.Now().Add(time.Hour))
	out.Reset()
	c.execute(ctx, "bans", nil)
	if !strings.Contains(out.String(), "10.1.2.3") {
		t.Errorf("ban not listed:\n%s", out.String())
	}
	if _, err := c.execute(ctx, "unban", []string{"10.1.2.3"}); err != nil {
		t.Errorf("unban: %v", err)
	}
}
