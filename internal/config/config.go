// Package config handles configuration loading, validation, and persistence
// for the game server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultGamePort   = 28763
	DefaultAPIPort    = 28780
	DefaultMaxClients = 6
	MaxClientsLimit   = 256
)

// Config is the root configuration structure.
type Config struct {
	mu       sync.RWMutex
	path     string
	firstRun bool

	Server  ServerConfig  `json:"server"`
	Demo    DemoConfig    `json:"demo"`
	API     APIConfig     `json:"api"`
	MQTT    MQTTConfig    `json:"mqtt"`
	Archive ArchiveConfig `json:"archive"`
	Timers  TimerConfig   `json:"timers"`
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig contains the game server settings.
type ServerConfig struct {
	IP                string `json:"ip" jsonschema:"description=Address to bind, empty for all interfaces"`
	Port              int    `json:"port" jsonschema:"minimum=1,maximum=65534"`
	MaxClients        int    `json:"max_clients" jsonschema:"minimum=1,maximum=256"`
	Password          string `json:"password"`
	AdminPassword     string `json:"admin_password"`
	Description       string `json:"description"`
	DescriptionPrefix string `json:"description_prefix"`
	DescriptionSuffix string `json:"description_suffix"`
	MOTD              string `json:"motd"`

	// Players whose score drops below a threshold are kicked or banned.
	KickThreshold int `json:"kick_threshold"`
	BanThreshold  int `json:"ban_threshold"`

	// VoteDisabled lists vote kinds non-admins may not call.
	VoteDisabled []string `json:"vote_disabled"`

	MaprotFile    string `json:"maprot_file"`
	PwdFile       string `json:"pwd_file"`
	BlacklistFile string `json:"blacklist_file"`

	// Uprate limits the upstream bandwidth in bytes per second, 0 for unlimited.
	Uprate int `json:"uprate"`
	// TickTimeoutMs bounds how long one tick waits for network traffic.
	TickTimeoutMs int `json:"tick_timeout_ms"`
	// LongTickMs is the tick duration reported as lag.
	LongTickMs int `json:"long_tick_ms"`
}

// DemoConfig holds demo recording settings.
type DemoConfig struct {
	RecordEveryMatch bool   `json:"record_every_match"`
	MaxDemos         int    `json:"max_demos"`
	Directory        string `json:"directory"`
	RetentionDays    int    `json:"retention_days"`
	MaxFiles         int    `json:"max_files" jsonschema:"description=Demo files kept on disk, 0 for no limit"`
}

// APIConfig holds the status API settings.
type APIConfig struct {
	Enabled     bool     `json:"enabled"`
	Port        int      `json:"port"`
	Token       string   `json:"token"`
	CORSOrigins []string `json:"cors_origins"`
	RateLimit   int      `json:"rate_limit_rps"`
	// TLS serves the API over HTTPS, generating a self-signed pair when
	// CertFile or KeyFile does not exist yet.
	TLS      bool   `json:"tls"`
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
	Username    string `json:"username"`
	Password    string `json:"password"`
}

// ArchiveConfig holds the finished-game archive settings.
type ArchiveConfig struct {
	Enabled       bool   `json:"enabled"`
	Path          string `json:"path"`
	RetentionDays int    `json:"retention_days"`
}

// TimerConfig holds background job intervals.
type TimerConfig struct {
	StatusInterval      int `json:"status_interval_sec"`
	AccessReload        int `json:"access_reload_sec"`
	DemoCleanupInterval int `json:"demo_cleanup_interval_sec"`
	ArchivePrune        int `json:"archive_prune_interval_sec"`
	DiskCheckInterval   int `json:"disk_check_interval_sec"`
	LagCheckInterval    int `json:"lag_check_interval_sec"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          DefaultGamePort,
			MaxClients:    DefaultMaxClients,
			Description:   "AssaultCube server",
			KickThreshold: -5,
			BanThreshold:  -6,
			MaprotFile:    "config/maprot.yaml",
			PwdFile:       "config/serverpwd.cfg",
			BlacklistFile: "config/serverblacklist.cfg",
			TickTimeoutMs: 5,
			LongTickMs:    100,
		},
		Demo: DemoConfig{
			MaxDemos:      5,
			Directory:     "demos",
			RetentionDays: 7,
			MaxFiles:      100,
		},
		API: APIConfig{
			Enabled:   true,
			Port:      DefaultAPIPort,
			RateLimit: 20,
			CertFile:  "config/api.crt",
			KeyFile:   "config/api.key",
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Broker:      "tcp://localhost:1883",
			TopicPrefix: "acserver",
		},
		Archive: ArchiveConfig{
			Enabled:       true,
			Path:          "acserver.db",
			RetentionDays: 90,
		},
		Timers: TimerConfig{
			StatusInterval:      60,
			AccessReload:        600,
			DemoCleanupInterval: 86400,
			ArchivePrune:        86400,
			DiskCheckInterval:   3600,
			LagCheckInterval:    120,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxBackups: 5,
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			cfg.firstRun = true
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	cfg.clamp()

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save config to persist any new default fields added in code updates.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

func (c *Config) clamp() {
	if c.Server.MaxClients < 1 {
		c.Server.MaxClients = 1
	}
	if c.Server.MaxClients > MaxClientsLimit {
		c.Server.MaxClients = MaxClientsLimit
	}
	if c.Server.TickTimeoutMs < 0 {
		c.Server.TickTimeoutMs = 0
	}
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServer returns a copy of the game server configuration.
func (c *Config) GetServer() ServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.Server
	s.VoteDisabled = append([]string(nil), c.Server.VoteDisabled...)
	return s
}

// SetServer updates the game server configuration.
func (c *Config) SetServer(s ServerConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Server = s
}

// GetDemo returns a copy of the demo configuration.
func (c *Config) GetDemo() DemoConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Demo
}

// GetAPI returns a copy of the API configuration.
func (c *Config) GetAPI() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a := c.API
	a.CORSOrigins = append([]string(nil), c.API.CORSOrigins...)
	return a
}

// GetMQTT returns a copy of the MQTT configuration.
func (c *Config) GetMQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

// GetArchive returns a copy of the archive configuration.
func (c *Config) GetArchive() ArchiveConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Archive
}

// GetTimers returns a copy of the timer configuration.
func (c *Config) GetTimers() TimerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Timers
}

// GetLogging returns a copy of the logging configuration.
func (c *Config) GetLogging() LoggingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging
}

// UpdateServerField updates a specific field of the server section by its
// JSON key.
func (c *Config) UpdateServerField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, _ := json.Marshal(c.Server)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	if _, ok := m[key]; !ok {
		return fmt.Errorf("unknown server field %s", key)
	}
	m[key] = value

	updated, _ := json.Marshal(m)
	var s ServerConfig
	if err := json.Unmarshal(updated, &s); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}
	c.Server = s
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// SetPath sets the file Save writes to.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// IsFirstRun returns true if the configuration file was just created.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.firstRun
}
