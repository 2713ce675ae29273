// Package config loads the engine's process configuration (spec §6.4):
// built-in defaults, then config.yaml, then the REGISTRATION_TOKEN
// environment variable, then CLI flags — each layer overriding the last.
//
// Grounded on the teacher's internal/config/config.go: the same
// defaults-then-getEnv layering idiom, generalized from env-var-only to the
// file+env+flag chain spec.md §6.4 calls for. No YAML library is used:
// config.yaml is colon-separated key/value, parsed the way the teacher
// parses its own env vars (plain string splitting), since spec.md places
// real YAML parsing out of scope.
package config

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the engine's resolved process configuration.
type Config struct {
	Host              string
	Port              int
	LogLevel          string
	RegistrationToken string
}

// ConfigFileName is the file written on first run and read on every run
// thereafter, relative to the working directory (spec §6.4).
const ConfigFileName = "config.yaml"

// defaults matches spec §6.4's literal defaults.
func defaults() Config {
	return Config{
		Host:     "127.0.0.1",
		Port:     7800,
		LogLevel: "info",
	}
}

// Load resolves the engine's configuration: defaults, then config.yaml
// (created with defaults if absent), then REGISTRATION_TOKEN, then CLI
// flags parsed from args (excluding the program name).
func Load(args []string) (*Config, error) {
	cfg := defaults()

	if err := applyConfigFile(&cfg, ConfigFileName); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if tok := os.Getenv("REGISTRATION_TOKEN"); tok != "" {
		cfg.RegistrationToken = tok
	}

	if err := applyFlags(&cfg, args); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyConfigFile reads path if present, or writes cfg's current values as
// defaults if it is absent (spec §6.4: "created with defaults on first
// run").
func applyConfigFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return writeDefaultConfigFile(cfg, path)
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "registration_token":
			cfg.RegistrationToken = value
		case "server_host":
			cfg.Host = value
		case "server_port":
			if port, err := strconv.Atoi(value); err == nil {
				cfg.Port = port
			}
		}
	}
	return scanner.Err()
}

func writeDefaultConfigFile(cfg *Config, path string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "registration_token: %s\n", cfg.RegistrationToken)
	fmt.Fprintf(&b, "server_host: %s\n", cfg.Host)
	fmt.Fprintf(&b, "server_port: %d\n", cfg.Port)
	return os.WriteFile(path, []byte(b.String()), 0644)
}

// applyFlags parses the CLI surface spec §6.4 names: --host, --port, --log,
// --help.
func applyFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("engine", flag.ContinueOnError)
	host := fs.String("host", cfg.Host, "coordinator host")
	port := fs.Int("port", cfg.Port, "coordinator port")
	logLevel := fs.String("log", cfg.LogLevel, "log level: error|warn|info|debug|trace")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if !validLogLevel(*logLevel) {
		return fmt.Errorf("config: invalid --log level %q", *logLevel)
	}

	cfg.Host = *host
	cfg.Port = *port
	cfg.LogLevel = *logLevel
	return nil
}

func validLogLevel(level string) bool {
	switch level {
	case "error", "warn", "info", "debug", "trace":
		return true
	default:
		return false
	}
}
