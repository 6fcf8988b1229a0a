package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.IsFirstRun() {
		t.Error("new config not reported as first run")
	}
	if cfg.GetServer().Port != DefaultGamePort {
		t.Errorf("port = %d", cfg.GetServer().Port)
	}
	if _, err := os.Stat(filepath.Join(dir, DefaultConfigFile)); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
}

func TestLoadOverlaysAndClamps(t *testing.T) {
	dir := t.TempDir()
	data := `{"server": {"port": 30000, "max_clients": 1000}}`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	s := cfg.GetServer()
	if s.Port != 30000 || s.MaxClients != MaxClientsLimit {
		t.Fatalf("server = %+v", s)
	}
	if s.KickThreshold != -5 || cfg.GetDemo().MaxDemos != 5 {
		t.Error("defaults lost in overlay")
	}
	if cfg.IsFirstRun() {
		t.Error("existing config reported as first run")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		field   string
		isError bool
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port", true},
		{"positive kick threshold", func(c *Config) { c.Server.KickThreshold = 1 }, "server.kick_threshold", true},
		{"ban above kick", func(c *Config) { c.Server.BanThreshold = -2 }, "server.ban_threshold", false},
		{"unknown vote kind", func(c *Config) { c.Server.VoteDisabled = []string{"nuke"} }, "server.vote_disabled", true},
		{"api overlaps info port", func(c *Config) { c.API.Port = c.Server.Port + 1 }, "api.port", true},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker = "" }, "mqtt.broker", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Server.MaprotFile, cfg.Server.PwdFile, cfg.Server.BlacklistFile = "", "", ""
			tt.mutate(cfg)
			res := Validate(cfg)
			list := res.Warnings
			if tt.isError {
				list = res.Errors
			}
			for _, e := range list {
				if e.Field == tt.field {
					return
				}
			}
			t.Fatalf("no finding for %s: errors=%v warnings=%v", tt.field, res.Errors, res.Warnings)
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if res := Validate(cfg); !res.IsValid() {
		t.Fatalf("default config invalid: %v", res.Errors)
	}
}

func TestUpdateServerField(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.UpdateServerField("motd", "hello"); err != nil {
		t.Fatal(err)
	}
	if cfg.GetServer().MOTD != "hello" {
		t.Errorf("motd = %q", cfg.GetServer().MOTD)
	}
	if err := cfg.UpdateServerField("nope", 1); err == nil {
		t.Error("unknown field accepted")
	}
}

func TestWizard(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.SetPath(filepath.Join(dir, DefaultConfigFile))
	cfg.Server.MaprotFile, cfg.Server.PwdFile, cfg.Server.BlacklistFile = "", "", ""

	answers := []string{
		"my server", "", "", // identity
		"", "12", "", // network
		"", "secret", "", "", "", // access
		"yes", "", // demos
		"no", // api
		"", // mqtt
	}
	in := bufio.NewReader(strings.NewReader(strings.Join(answers, "\n") + "\n"))
	if err := runWizard(in, cfg); err != nil {
		t.Fatal(err)
	}
	s := cfg.GetServer()
	if s.Description != "my server" || s.MaxClients != 12 || s.AdminPassword != "secret" {
		t.Fatalf("server = %+v", s)
	}
	if !cfg.GetDemo().RecordEveryMatch || cfg.GetAPI().Enabled {
		t.Error("demo/api answers not applied")
	}
	if _, err := os.Stat(cfg.Path()); err != nil {
		t.Fatalf("config not saved: %v", err)
	}
}
