// acserver is a dedicated server for AssaultCube style multiplayer games.
//
// It runs the game session over ENet, answers server browser queries on
// the port next to the game port, exposes an HTTP status and
// administration API, archives finished games to SQLite and optionally
// publishes events via MQTT.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog/log"

	"github.com/gasbugs/AC/internal/api"
	"github.com/gasbugs/AC/internal/cli"
	"github.com/gasbugs/AC/internal/config"
	"github.com/gasbugs/AC/internal/db"
	"github.com/gasbugs/AC/internal/events"
	"github.com/gasbugs/AC/internal/network"
	"github.com/gasbugs/AC/internal/protocol"
	"github.com/gasbugs/AC/internal/scheduler"
	"github.com/gasbugs/AC/internal/server"
	"github.com/gasbugs/AC/internal/telemetry"
	"github.com/gasbugs/AC/internal/util"
)

const (
	AppName    = "acserver"
	AppVersion = "1.2.0"
	Banner     = `

   __ _  ___ ___  ___ _ ____   _____ _ __
  / _' |/ __/ __|/ _ \ '__\ \ / / _ \ '__|
 | (_| | (__\__ \  __/ |   \ V /  __/ |
  \__,_|\___|___/\___|_|    \_/ \___|_|   v%s
`
	shutdownTimeout = 30 * time.Second
)

func main() {
	configDir := flag.String("config", config.DefaultConfigDir, "configuration directory")
	wizard := flag.Bool("wizard", false, "run the interactive setup wizard and exit")
	schema := flag.Bool("schema", false, "print the configuration JSON schema and exit")
	version := flag.Bool("version", false, "print the version and exit")
	noConsole := flag.Bool("no-console", false, "do not read admin commands from stdin")
	flag.Parse()

	switch {
	case *version:
		fmt.Printf("%s %s (%s/%s, protocol %d)\n", AppName, AppVersion, runtime.GOOS, runtime.GOARCH, protocol.ProtocolVersion)
		return
	case *schema:
		if err := printSchema(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to build schema: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Defaults until the configuration is loaded.
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Int("protocol", protocol.ProtocolVersion).
		Msg("starting acserver")

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *wizard {
		if err := config.RunSetupWizard(cfg); err != nil {
			log.Fatal().Err(err).Msg("setup wizard failed")
		}
		return
	}

	logging := cfg.GetLogging()
	logCfg := util.LogConfig{
		Level:      logging.Level,
		Directory:  logging.Directory,
		MaxBackups: logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		if cfg.IsFirstRun() {
			log.Info().Msg("first run detected, launching setup wizard")
			if err := config.RunSetupWizard(cfg); err != nil {
				log.Fatal().Err(err).Msg("setup wizard failed")
			}
		} else {
			log.Fatal().Msg("configuration validation failed, please fix the errors above")
		}
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := events.NewEventBus()
	sc := cfg.GetServer()

	host, err := network.Listen(sc.IP, sc.Port, sc.MaxClients, sc.Uprate)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open game port")
	}
	game := server.New(cfg, eventBus, server.Options{Transport: host})

	info := network.NewInfoServer(game)
	if err := info.Listen(ctx, sc.IP, protocol.InfoPort(sc.Port)); err != nil {
		log.Fatal().Err(err).Msg("failed to open info port")
	}

	lagMonitor := server.NewLagMonitor(eventBus)

	var (
		archive    *db.Archive
		apiArchive api.GameArchive
		pruner     scheduler.Pruner
	)
	if ac := cfg.GetArchive(); ac.Enabled {
		archive, err = db.NewArchive(ac.Path)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open game archive, archiving disabled")
		} else {
			archive.Attach(eventBus)
			apiArchive, pruner = archive, archive
		}
	}

	var apiServer *api.Server
	if cfg.GetAPI().Enabled {
		apiServer = api.NewServer(cfg, eventBus, game, apiArchive, lagMonitor)
	}

	var mqttHandler *telemetry.MQTTHandler
	if mc := cfg.GetMQTT(); mc.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(mc, sc.Port, eventBus, game)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	sched := scheduler.NewScheduler(cfg, eventBus, scheduler.Deps{
		Demos:   game.DemoStore(),
		Archive: pruner,
		Lag:     lagMonitor,
	})

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer host.Close()
		if err := game.Run(ctx); err != nil {
			errCh <- fmt.Errorf("game server: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := info.Serve(ctx); err != nil {
			log.Warn().Err(err).Msg("info port stopped")
		}
	}()

	if apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", cfg.GetAPI().Port).Msg("starting HTTP API")
			if err := apiServer.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("HTTP API failed (non-fatal)")
			}
		}()
	}

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(ctx)
	}()

	if !*noConsole {
		console := cli.NewCLI(cfg, eventBus, game, os.Stdin, os.Stdout)
		wg.Add(1)
		go func() {
			defer wg.Done()
			console.Start(ctx)
		}()
	}

	quit := make(chan struct{}, 1)
	eventBus.Subscribe(events.EventShutdown, "main", func(ctx context.Context, e events.Event) error {
		select {
		case quit <- struct{}{}:
		default:
		}
		return nil
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-quit:
		log.Info().Msg("shutdown requested from console")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(shutdownTimeout):
		log.Warn().Dur("timeout", shutdownTimeout).Msg("shutdown timed out, forcing exit")
	}

	if archive != nil {
		if err := archive.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close archive")
		}
	}
	eventBus.Stop()

	log.Info().Msg("acserver stopped")
}

// printSchema writes the JSON schema of the configuration file to stdout.
func printSchema() error {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	schema := reflector.Reflect(new(config.Config))
	schema.Title = "acserver configuration"
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}
