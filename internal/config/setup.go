package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard guides the user through first-time configuration.
func RunSetupWizard(cfg *Config) error {
	return runWizard(bufio.NewReader(os.Stdin), cfg)
}

func runWizard(reader *bufio.Reader, cfg *Config) error {
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║         acserver - First Run Setup           ║")
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Println("║  Welcome! Let's configure your server.       ║")
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()

	cfg.mu.Lock()
	s := &cfg.Server

	fmt.Println("── Server Identity ──")

	s.Description = promptString(reader, "Server description", s.Description)
	s.MOTD = promptString(reader, "Message of the day (blank for none)", s.MOTD)
	s.IP = promptString(reader, "Bind address (leave blank for all interfaces)", s.IP)

	fmt.Println()
	fmt.Println("── Network ──")

	s.Port = promptInt(reader, "Game port (info port is port+1)", s.Port)
	s.MaxClients = promptInt(reader, "Maximum clients", s.MaxClients)
	s.Uprate = promptInt(reader, "Upstream bandwidth limit in bytes/s (0 for unlimited)", s.Uprate)

	fmt.Println()
	fmt.Println("── Access ──")

	s.Password = promptPassword(reader, "Server password (blank for a public server)")
	s.AdminPassword = promptPassword(reader, "Admin password")
	s.KickThreshold = promptInt(reader, "Auto-kick score threshold", s.KickThreshold)
	s.BanThreshold = promptInt(reader, "Auto-ban score threshold", s.BanThreshold)
	s.MaprotFile = promptString(reader, "Map rotation file", s.MaprotFile)

	fmt.Println()
	fmt.Println("── Demos ──")

	cfg.Demo.RecordEveryMatch = promptBool(reader, "Record every match", cfg.Demo.RecordEveryMatch)
	cfg.Demo.Directory = promptString(reader, "Demo directory (blank to keep demos in memory only)", cfg.Demo.Directory)

	fmt.Println()
	fmt.Println("── Status API ──")

	cfg.API.Enabled = promptBool(reader, "Enable the status API", cfg.API.Enabled)
	if cfg.API.Enabled {
		cfg.API.Port = promptInt(reader, "API port", cfg.API.Port)
		cfg.API.Token = promptPassword(reader, "API admin token (blank disables admin routes)")
		cfg.API.TLS = promptBool(reader, "Serve the API over HTTPS", cfg.API.TLS)
	}

	fmt.Println()
	fmt.Println("── MQTT Telemetry ──")

	cfg.MQTT.Enabled = promptBool(reader, "Enable MQTT telemetry", cfg.MQTT.Enabled)
	if cfg.MQTT.Enabled {
		cfg.MQTT.Broker = promptString(reader, "MQTT broker URL", cfg.MQTT.Broker)
	}
	cfg.clamp()
	cfg.mu.Unlock()

	// Validate before saving
	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Println("\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Printf("  - [%s] %s\n", e.Field, e.Message)
		}
		retry := promptString(reader, "Would you like to try again? (yes/no)", "yes")
		if strings.ToLower(retry) == "yes" {
			return runWizard(reader, cfg)
		}
		return fmt.Errorf("configuration validation failed")
	}

	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	// Save configuration
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	cfg.mu.Lock()
	cfg.firstRun = false
	cfg.mu.Unlock()

	fmt.Println()
	fmt.Println("✓ Configuration saved successfully!")
	fmt.Println("  acserver will now start with your configuration.")
	fmt.Println()

	return nil
}

func promptString(reader *bufio.Reader, prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Printf("  %s: ", prompt)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func promptPassword(reader *bufio.Reader, prompt string) string {
	fmt.Printf("  %s: ", prompt)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func promptInt(reader *bufio.Reader, prompt string, defaultVal int) int {
	fmt.Printf("  %s [%d]: ", prompt, defaultVal)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Printf("    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func promptBool(reader *bufio.Reader, prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Printf("  %s [%s]: ", prompt, defaultStr)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
