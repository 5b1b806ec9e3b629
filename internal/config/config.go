// Package config provides configuration types and loading for ferryclaw.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Model, Channels, Providers, Gateway, Orchestrator,
// Gatekeeper, Scheduler, Audit.
type Config struct {
	Paths        PathsConfig        `json:"paths"`
	Model        ModelConfig        `json:"model"`
	Channels     ChannelsConfig     `json:"channels"`
	Providers    ProvidersConfig    `json:"providers"`
	Gateway      GatewayConfig      `json:"gateway"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Gatekeeper   GatekeeperConfig   `json:"gatekeeper"`
	Scheduler    SchedulerConfig    `json:"scheduler"`
	Audit        AuditConfig        `json:"audit"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	DataDir   string `json:"dataDir" envconfig:"DATA_DIR"`
	Workspace string `json:"workspace" envconfig:"WORKSPACE"`
	SkillsDir string `json:"skillsDir" envconfig:"SKILLS_DIR"`
}

// ---------------------------------------------------------------------------
// Model – LLM behaviour
// ---------------------------------------------------------------------------

// ModelConfig groups LLM model and agent-loop settings.
type ModelConfig struct {
	Name              string  `json:"name" envconfig:"MODEL"`
	MaxTokens         int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature       float64 `json:"temperature" envconfig:"TEMPERATURE"`
	MaxToolIterations int     `json:"maxToolIterations" envconfig:"MAX_TOOL_ITERATIONS"`
}

// ---------------------------------------------------------------------------
// Channels – messaging integrations
// ---------------------------------------------------------------------------

// ChannelsConfig contains all channel configurations.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Slack    SlackConfig    `json:"slack"`
	Web      WebConfig      `json:"web"`
}

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled" envconfig:"TELEGRAM_ENABLED"`
	Token     string   `json:"token" envconfig:"TELEGRAM_TOKEN"`
	AllowFrom []string `json:"allowFrom"`
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Enabled   bool     `json:"enabled" envconfig:"DISCORD_ENABLED"`
	Token     string   `json:"token" envconfig:"DISCORD_TOKEN"`
	AllowFrom []string `json:"allowFrom"`
}

// WhatsAppConfig configures the WhatsApp channel.
type WhatsAppConfig struct {
	Enabled   bool     `json:"enabled" envconfig:"WHATSAPP_ENABLED"`
	AllowFrom []string `json:"allowFrom"`
}

// SlackConfig configures the Slack channel.
type SlackConfig struct {
	Enabled  bool   `json:"enabled" envconfig:"SLACK_ENABLED"`
	BotToken string `json:"botToken" envconfig:"SLACK_BOT_TOKEN"`
	AppToken string `json:"appToken" envconfig:"SLACK_APP_TOKEN"`
}

// WebConfig configures the browser chat surface.
type WebConfig struct {
	Enabled   bool   `json:"enabled" envconfig:"WEB_ENABLED"`
	Host      string `json:"host" envconfig:"WEB_HOST"`
	Port      int    `json:"port" envconfig:"WEB_PORT"`
	AuthToken string `json:"authToken" envconfig:"WEB_AUTH_TOKEN"`
}

// ---------------------------------------------------------------------------
// Providers – LLM API keys & endpoints
// ---------------------------------------------------------------------------

// ProvidersConfig contains LLM provider configurations.
type ProvidersConfig struct {
	Anthropic ProviderConfig `json:"anthropic"`
	OpenAI    ProviderConfig `json:"openai"`
}

// ProviderConfig holds credentials for one LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase" envconfig:"API_BASE"`
	Model   string `json:"model" envconfig:"MODEL"`
}

// ---------------------------------------------------------------------------
// Gateway – local API server
// ---------------------------------------------------------------------------

// GatewayConfig configures the gateway process.
type GatewayConfig struct {
	BotUsername string `json:"botUsername" envconfig:"BOT_USERNAME"`
	Timezone    string `json:"timezone" envconfig:"TIMEZONE"`
	// ControlChatIDs are operator chats allowed to message any chat.
	ControlChatIDs []int64 `json:"controlChatIds" envconfig:"CONTROL_CHAT_IDS"`
}

// ---------------------------------------------------------------------------
// Orchestrator – plan-first classification
// ---------------------------------------------------------------------------

// OrchestratorConfig configures the pre-planner.
type OrchestratorConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ORCHESTRATOR_ENABLED"`
	Model   string `json:"model" envconfig:"ORCHESTRATOR_MODEL"`
}

// GatekeeperConfig configures the per-tool-call policy check.
type GatekeeperConfig struct {
	Enabled bool   `json:"enabled" envconfig:"GATEKEEPER_ENABLED"`
	Model   string `json:"model" envconfig:"GATEKEEPER_MODEL"`
}

// SchedulerConfig holds scheduler settings.
type SchedulerConfig struct {
	Enabled      bool          `json:"enabled" envconfig:"SCHEDULER_ENABLED"`
	TickInterval time.Duration `json:"tickInterval"`
}

// AuditConfig configures the optional Kafka audit trail.
type AuditConfig struct {
	Enabled bool     `json:"enabled" envconfig:"AUDIT_ENABLED"`
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic" envconfig:"AUDIT_TOPIC"`
}
