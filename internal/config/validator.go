package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/gasbugs/AC/internal/vote"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	validateServer(&cfg.Server, result)
	validateDemo(&cfg.Demo, result)
	validateAPI(&cfg.API, cfg.Server.Port, result)
	validateServices(cfg, result)
	validateTimers(&cfg.Timers, result)

	return result
}

func validateServer(s *ServerConfig, result *ValidationResult) {
	validatePort(s.Port, "server.port", result)
	if s.Port == 65535 {
		result.AddError("server.port", "the info port (port+1) must fit in 1-65535")
	}
	if s.IP != "" && net.ParseIP(s.IP) == nil {
		result.AddError("server.ip", fmt.Sprintf("invalid address: %s", s.IP))
	}

	if s.MaxClients < 1 || s.MaxClients > MaxClientsLimit {
		result.AddError("server.max_clients",
			fmt.Sprintf("max clients must be 1-%d, got %d", MaxClientsLimit, s.MaxClients))
	} else if s.MaxClients > 32 {
		result.AddWarning("server.max_clients",
			fmt.Sprintf("high client count (%d) may exceed the upstream bandwidth", s.MaxClients))
	}

	if s.KickThreshold >= 0 {
		result.AddError("server.kick_threshold", "kick threshold must be negative")
	}
	if s.BanThreshold >= 0 {
		result.AddError("server.ban_threshold", "ban threshold must be negative")
	}
	if s.BanThreshold > s.KickThreshold {
		result.AddWarning("server.ban_threshold",
			"ban threshold is above the kick threshold, players are banned before they can be kicked")
	}

	for _, k := range s.VoteDisabled {
		if _, ok := vote.ParseKind(k); !ok {
			result.AddError("server.vote_disabled", fmt.Sprintf("unknown vote kind: %s", k))
		}
	}

	if s.AdminPassword == "" && strings.TrimSpace(s.PwdFile) == "" {
		result.AddWarning("server.admin_password", "no admin password and no password file, nobody can claim admin")
	}
	for _, f := range []struct{ field, path string }{
		{"server.maprot_file", s.MaprotFile},
		{"server.pwd_file", s.PwdFile},
		{"server.blacklist_file", s.BlacklistFile},
	} {
		if f.path == "" {
			continue
		}
		if _, err := os.Stat(f.path); os.IsNotExist(err) {
			result.AddWarning(f.field, fmt.Sprintf("file does not exist: %s", f.path))
		}
	}

	if s.TickTimeoutMs > 40 {
		result.AddWarning("server.tick_timeout_ms", "tick timeout above 40ms delays world updates")
	}
}

func validateDemo(d *DemoConfig, result *ValidationResult) {
	if d.MaxDemos < 1 {
		result.AddError("demo.max_demos", "must keep at least 1 demo")
	}
	if d.Directory != "" && d.RetentionDays < 1 {
		result.AddError("demo.retention_days", "retention days must be at least 1")
	}
	if d.MaxFiles < 0 {
		result.AddError("demo.max_files", "cannot be negative")
	}
}

func validateAPI(a *APIConfig, gamePort int, result *ValidationResult) {
	if !a.Enabled {
		return
	}
	validatePort(a.Port, "api.port", result)
	if a.Port == gamePort || a.Port == gamePort+1 {
		result.AddError("api.port", "port conflict detected: api port overlaps the game or info port")
	}
	if strings.TrimSpace(a.Token) == "" {
		result.AddWarning("api.token", "no API token, admin routes are disabled")
	}
	if a.TLS && (strings.TrimSpace(a.CertFile) == "" || strings.TrimSpace(a.KeyFile) == "") {
		result.AddError("api.cert_file", "certificate and key paths are required for TLS")
	}
	if a.RateLimit < 1 {
		result.AddWarning("api.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}
}

func validateServices(cfg *Config, result *ValidationResult) {
	if cfg.MQTT.Enabled && strings.TrimSpace(cfg.MQTT.Broker) == "" {
		result.AddError("mqtt.broker", "MQTT broker URL is required when enabled")
	}
	if cfg.Archive.Enabled {
		if strings.TrimSpace(cfg.Archive.Path) == "" {
			result.AddError("archive.path", "archive path is required when enabled")
		}
		if cfg.Archive.RetentionDays < 1 {
			result.AddError("archive.retention_days", "retention days must be at least 1")
		}
	}
}

func validateTimers(timers *TimerConfig, result *ValidationResult) {
	if timers.StatusInterval < 10 {
		result.AddWarning("timers.status_interval_sec",
			"status interval less than 10s floods the log")
	}
	if timers.AccessReload < 10 {
		result.AddWarning("timers.access_reload_sec",
			"access reload interval less than 10s may cause excessive disk reads")
	}
	if timers.LagCheckInterval < 1 {
		result.AddError("timers.lag_check_interval_sec", "lag check interval must be positive")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
