package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".ferryclaw"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("FERRYCLAW_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// DefaultConfig returns a config populated with sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Paths: PathsConfig{
			DataDir:   filepath.Join(home, ConfigDir),
			Workspace: filepath.Join(home, "FerryClaw-Workspace"),
			SkillsDir: filepath.Join(home, "FerryClaw-Workspace", "skills"),
		},
		Model: ModelConfig{
			Name:              "claude-sonnet-4-5",
			MaxTokens:         4096,
			Temperature:       0.7,
			MaxToolIterations: 10,
		},
		Channels: ChannelsConfig{
			Web: WebConfig{Host: "127.0.0.1", Port: 8793},
		},
		Gateway: GatewayConfig{
			BotUsername: "ferryclaw",
			Timezone:    "UTC",
		},
		Orchestrator: OrchestratorConfig{Enabled: true},
		Gatekeeper:   GatekeeperConfig{Enabled: true},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			TickInterval: 60 * time.Second,
		},
		Audit: AuditConfig{Topic: "ferryclaw.audit"},
	}
}

// Load reads the config file (if present) and applies environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	// Override with environment variables for each group.
	envconfig.Process("FERRYCLAW_PATHS", &cfg.Paths)
	envconfig.Process("FERRYCLAW_MODEL", &cfg.Model)
	envconfig.Process("FERRYCLAW_PROVIDERS_ANTHROPIC", &cfg.Providers.Anthropic)
	envconfig.Process("FERRYCLAW_PROVIDERS_OPENAI", &cfg.Providers.OpenAI)
	envconfig.Process("FERRYCLAW_CHANNELS_TELEGRAM", &cfg.Channels.Telegram)
	envconfig.Process("FERRYCLAW_CHANNELS_DISCORD", &cfg.Channels.Discord)
	envconfig.Process("FERRYCLAW_CHANNELS_WHATSAPP", &cfg.Channels.WhatsApp)
	envconfig.Process("FERRYCLAW_CHANNELS_SLACK", &cfg.Channels.Slack)
	envconfig.Process("FERRYCLAW_CHANNELS_WEB", &cfg.Channels.Web)
	envconfig.Process("FERRYCLAW_GATEWAY", &cfg.Gateway)
	envconfig.Process("FERRYCLAW_ORCHESTRATOR", &cfg.Orchestrator)
	envconfig.Process("FERRYCLAW_GATEKEEPER", &cfg.Gatekeeper)
	envconfig.Process("FERRYCLAW_SCHEDULER", &cfg.Scheduler)
	envconfig.Process("FERRYCLAW_AUDIT", &cfg.Audit)

	if cfg.Scheduler.TickInterval <= 0 {
		cfg.Scheduler.TickInterval = 60 * time.Second
	}

	return cfg, nil
}

// Save writes the config as indented JSON, creating the directory if needed.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Location returns the configured timezone, falling back to UTC when the
// value does not parse.
func (g GatewayConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(g.Timezone))
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}
