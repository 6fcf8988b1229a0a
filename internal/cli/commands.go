// Package cli implements the interactive operator console.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/gasbugs/AC/internal/access"
	"github.com/gasbugs/AC/internal/config"
	"github.com/gasbugs/AC/internal/demo"
	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/protocol"
	"github.com/gasbugs/AC/internal/server"
)

// GameServer is what the console operates on.
type GameServer interface {
	Snapshot() server.Status
	Kick(ctx context.Context, cn int) error
	Ban(ctx context.Context, cn int, d time.Duration) error
	Unban(ctx context.Context, addr string) (bool, error)
	ChangeMap(ctx context.Context, name string, mode protocol.GameMode, minutes int) error
	Say(ctx context.Context, text string) error
	SetMasterMode(ctx context.Context, mm protocol.MasterMode) error
	ReloadAccess(ctx context.Context) error
	Bans() *access.Bans
	DemoStore() *demo.Store
}

// CLI reads operator commands line by line.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	game     GameServer
	in       io.Reader
	out      io.Writer
}

// NewCLI creates a console reading from in and writing to out.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, game GameServer, in io.Reader, out io.Writer) *CLI {
	return &CLI{cfg: cfg, eventBus: eventBus, game: game, in: in, out: out}
}

// Start runs the console until ctx is done, the input ends or the
// operator quits.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\nacserver console ready. Type 'help' for available commands.")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, "acserver> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			parts := strings.Fields(line)
			if len(parts) == 0 {
				continue
			}
			quit, err := c.execute(ctx, strings.ToLower(parts[0]), parts[1:])
			if err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
			if quit {
				return
			}
		}
	}
}

// execute runs one command. It reports whether the console should stop.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) (bool, error) {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "players", "p":
		c.printPlayers()
	case "bans":
		c.printBans()
	case "demos":
		c.printDemos()
	case "kick":
		return false, c.cmdKick(ctx, args)
	case "ban":
		return false, c.cmdBan(ctx, args)
	case "unban":
		return false, c.cmdUnban(ctx, args)
	case "map":
		return false, c.cmdMap(ctx, args)
	case "say":
		return false, c.cmdSay(ctx, args)
	case "mastermode", "mm":
		return false, c.cmdMasterMode(ctx, args)
	case "reload":
		if err := c.game.ReloadAccess(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(c.out, "Access lists and map rotation reloaded")
	case "setconfig":
		return false, c.cmdSetConfig(ctx, args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down acserver...")
		c.eventBus.Publish(events.EventShutdown, "cli", nil)
		return true, nil
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return false, nil
}

func (c *CLI) printHelp() {
	tw := c.table([]string{"Command", "Description"})
	for _, row := range [][]string{
		{"status", "Show the match and server summary"},
		{"players", "List connected clients"},
		{"bans", "List active bans"},
		{"demos", "List recorded demos"},
		{"kick <cn>", "Disconnect a client"},
		{"ban <cn> [minutes]", "Ban a client's address"},
		{"unban <address>", "Lift a ban"},
		{"map <name> <mode> [minutes]", "Start a new match"},
		{"say <text>", "Send a server message"},
		{"mastermode <open|private>", "Change who may join"},
		{"reload", "Reread credentials, blacklist and rotation"},
		{"setconfig <key> <value>", "Change and save a server setting"},
		{"quit", "Shut the server down"},
	} {
		tw.Append(row)
	}
	tw.Render()
}

func (c *CLI) table(header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

func (c *CLI) printStatus() {
	st := c.game.Snapshot()
	tw := c.table([]string{"Map", "Mode", "Left", "Clients", "Mastermode", "Vote", "Demo", "Uptime"})
	vote := "-"
	if st.Vote != nil {
		vote = fmt.Sprintf("%s %d:%d", st.Vote.Kind, st.Vote.Yes, st.Vote.No)
	}
	demoState := "-"
	if st.Recording {
		demoState = "recording"
	}
	left := fmt.Sprintf("%d min", st.Minutes)
	if st.Intermission {
		left = "intermission"
	}
	tw.Append([]string{
		st.Map,
		st.Mode,
		left,
		fmt.Sprintf("%d/%d", st.Clients, st.MaxClients),
		st.MasterMode,
		vote,
		demoState,
		st.Uptime.Round(time.Second).String(),
	})
	tw.Render()

	if len(st.Teams) > 0 {
		tt := c.table([]string{"Team", "Frags", "Deaths", "Flags", "Players"})
		for _, t := range st.Teams {
			tt.Append([]string{t.Name, strconv.Itoa(t.Frags), strconv.Itoa(t.Deaths), strconv.Itoa(t.FlagScore), strconv.Itoa(len(t.Players))})
		}
		tt.Render()
	}
}

func (c *CLI) printPlayers() {
	st := c.game.Snapshot()
	if len(st.Players) == 0 {
		fmt.Fprintln(c.out, "No clients connected")
		return
	}
	tw := c.table([]string{"CN", "Name", "Team", "Role", "State", "Frags", "Deaths", "Flags", "Host"})
	for _, p := range st.Players {
		tw.Append([]string{
			strconv.Itoa(p.CN), p.Name, p.Team, p.Role, p.State,
			strconv.Itoa(p.Frags), strconv.Itoa(p.Deaths), strconv.Itoa(p.FlagScore), p.Host,
		})
	}
	tw.Render()
}

func (c *CLI) printBans() {
	bans := c.game.Bans().List(time.Now())
	if len(bans) == 0 {
		fmt.Fprintln(c.out, "No active bans")
		return
	}
	tw := c.table([]string{"Address", "Until"})
	for _, b := range bans {
		tw.Append([]string{b.Address, b.Until.Format(time.RFC3339)})
	}
	tw.Render()
}

func (c *CLI) printDemos() {
	demos := c.game.DemoStore().Demos()
	if len(demos) == 0 {
		fmt.Fprintln(c.out, "No demos recorded")
		return
	}
	tw := c.table([]string{"#", "Demo"})
	for i, d := range demos {
		tw.Append([]string{strconv.Itoa(i + 1), d.Info})
	}
	tw.Render()
}

func parseCNArg(args []string) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("client number required")
	}
	cn, err := strconv.Atoi(args[0])
	if err != nil || cn < 0 {
		return 0, fmt.Errorf("invalid client number: %s", args[0])
	}
	return cn, nil
}

func (c *CLI) cmdKick(ctx context.Context, args []string) error {
	cn, err := parseCNArg(args)
	if err != nil {
		return err
	}
	if err := c.game.Kick(ctx, cn); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Client %d kicked\n", cn)
	return nil
}

func (c *CLI) cmdBan(ctx context.Context, args []string) error {
	cn, err := parseCNArg(args)
	if err != nil {
		return err
	}
	minutes := 0
	if len(args) > 1 {
		if minutes, err = strconv.Atoi(args[1]); err != nil || minutes < 0 {
			return fmt.Errorf("invalid minutes: %s", args[1])
		}
	}
	if err := c.game.Ban(ctx, cn, time.Duration(minutes)*time.Minute); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Client %d banned\n", cn)
	return nil
}

func (c *CLI) cmdUnban(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: unban <address>")
	}
	removed, err := c.game.Unban(ctx, args[0])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%s is not banned", args[0])
	}
	fmt.Fprintf(c.out, "Ban on %s lifted\n", args[0])
	return nil
}

func (c *CLI) cmdMap(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: map <name> <mode> [minutes]")
	}
	mode, ok := protocol.ParseMode(args[1])
	if !ok {
		return fmt.Errorf("unknown mode: %s", args[1])
	}
	minutes := -1
	if len(args) > 2 {
		m, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid minutes: %s", args[2])
		}
		minutes = m
	}
	if err := c.game.ChangeMap(ctx, args[0], mode, minutes); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Map changed to %s (%s)\n", args[0], mode)
	return nil
}

func (c *CLI) cmdSay(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: say <text>")
	}
	return c.game.Say(ctx, strings.Join(args, " "))
}

func (c *CLI) cmdMasterMode(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: mastermode <open|private>")
	}
	var mm protocol.MasterMode
	switch strings.ToLower(args[0]) {
	case "open":
		mm = protocol.MasterOpen
	case "private":
		mm = protocol.MasterPrivate
	default:
		return fmt.Errorf("unknown mastermode: %s", args[0])
	}
	if err := c.game.SetMasterMode(ctx, mm); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Mastermode is now %s\n", mm)
	return nil
}

func (c *CLI) cmdSetConfig(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: setconfig <key> <value>")
	}
	key := args[0]
	raw := strings.Join(args[1:], " ")

	var value interface{} = raw
	if n, err := strconv.Atoi(raw); err == nil {
		value = n
	} else if b, err := strconv.ParseBool(raw); err == nil {
		value = b
	}

	if err := c.cfg.UpdateServerField(key, value); err != nil {
		if value == interface{}(raw) {
			return err
		}
		// a numeric looking value for a text field
		value = raw
		if err := c.cfg.UpdateServerField(key, value); err != nil {
			return err
		}
	}
	if err := c.cfg.Save(); err != nil {
		return err
	}
	c.eventBus.Emit(ctx, events.Event{
		Type:    events.EventConfigChanged,
		Source:  "cli",
		Payload: events.ConfigChangedPayload{Section: "server", Key: key, Value: value},
	})
	log.Info().Str("key", key).Msg("server setting changed from console")
	fmt.Fprintf(c.out, "Config updated: %s = %v\n", key, value)
	return nil
}
