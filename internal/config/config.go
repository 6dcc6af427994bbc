// Package config loads Traceline configuration from defaults, an
// optional YAML file, and TRACELINE_-prefixed environment variables,
// in that order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full runtime configuration for both subcommands.
type Config struct {
	Log    Log    `koanf:"log"`
	Chat   Chat   `koanf:"chat"`
	Server Server `koanf:"server"`
}

// Log configures logging.
type Log struct {
	Level string `koanf:"level"`
}

// Chat configures the interactive client.
type Chat struct {
	URL           string        `koanf:"url"`
	PingInterval  time.Duration `koanf:"ping_interval"`
	PongTimeout   time.Duration `koanf:"pong_timeout"`
	Reconnect     bool          `koanf:"reconnect"`
	DemoFallback  bool          `koanf:"demo_fallback"`
	TranscriptOut string        `koanf:"transcript_out"` // write a transcript snapshot here on exit
}

// Server configures the bridge server.
type Server struct {
	Addr         string `koanf:"addr"`
	DataDir      string `koanf:"data_dir"`
	AgentCommand string `koanf:"agent_command"`
	Mode         string `koanf:"mode"`         // "stream" or "print"
	CommandsDir  string `koanf:"commands_dir"` // slash-command prompt files (*.md)
	ShowQR       bool   `koanf:"show_qr"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"log.level":          "info",
		"chat.url":           "ws://localhost:8137/ws",
		"chat.ping_interval": "15s",
		"chat.reconnect":     true,
		"chat.demo_fallback": true,
		"server.addr":        ":8137",
		"server.data_dir":    DefaultDataDir(),
		"server.agent_command": "claude",
		"server.mode":          "stream",
		"server.show_qr":       true,
	}
}

// DefaultDataDir returns the directory for the server's persistent state.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "traceline")
	}
	return filepath.Join(home, ".config", "traceline")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// Load builds the configuration. path may be empty, in which case the
// default location is used if it exists.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// A missing default file is fine; an explicit one must exist.
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// TRACELINE_CHAT__URL=... maps to chat.url; double underscore
	// separates nesting so keys may themselves contain underscores.
	if err := k.Load(env.Provider("TRACELINE_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "TRACELINE_")
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ValidateChat checks the client configuration.
func (c *Config) ValidateChat() error {
	if c.Chat.URL == "" {
		return fmt.Errorf("chat.url is required")
	}
	return nil
}

// ValidateServer checks the server configuration and ensures the data
// directory exists.
func (c *Config) ValidateServer() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.Mode != "stream" && c.Server.Mode != "print" {
		return fmt.Errorf("server.mode must be \"stream\" or \"print\", got %q", c.Server.Mode)
	}
	if c.Server.AgentCommand == "" {
		return fmt.Errorf("server.agent_command is required")
	}
	if err := os.MkdirAll(c.Server.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

// DBPath returns the path to the SQLite session database.
func (c *Config) DBPath() string {
	return filepath.Join(c.Server.DataDir, "traceline.db")
}
