// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath    = "config.toml"
	DefaultHTTPAddr      = ":8080"
	DefaultPGHost        = "127.0.0.1"
	DefaultPGPort        = 5432
	DefaultPGUser        = "postgres"
	DefaultPGDatabase    = "outreach"
	DefaultPGSSLMode     = "disable"
	DefaultStoreDriver   = "postgres"
	DefaultLLMTimeout    = "30s"
	DefaultSendTimeout   = "15s"
	DefaultSweepInterval = "1m"
	DefaultSweepBatch    = 50
	DefaultAgentID       = "icupa_rwanda"
	DefaultAgentsDir     = "personas"
	DefaultTwilioAPIBase = "https://api.twilio.com"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Store     StoreConfig     `toml:"store"`
	WhatsApp  WhatsAppConfig  `toml:"whatsapp"`
	Twilio    TwilioConfig    `toml:"twilio"`
	LLM       LLMConfig       `toml:"llm"`
	Agents    AgentsConfig    `toml:"agents"`
	Scheduler SchedulerConfig `toml:"scheduler"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP listen address, the public base URL used in
// provider callbacks, and the static bearer token guarding /api routes.
type ServerConfig struct {
	Addr     string `toml:"addr"`
	BaseURL  string `toml:"base_url"`
	APIToken string `toml:"api_token"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// StoreConfig selects the document store driver ("postgres" or "memory").
type StoreConfig struct {
	Driver string `toml:"driver"`
}

// WhatsAppConfig holds the Cloud API messages endpoint and credentials.
type WhatsAppConfig struct {
	APIURL      string `toml:"api_url"`
	Token       string `toml:"token"`
	VerifyToken string `toml:"verify_token"`
	Timeout     string `toml:"timeout"`
}

// TwilioConfig holds the Twilio account credentials and the SMS/voice caller id.
type TwilioConfig struct {
	AccountSID string `toml:"account_sid"`
	AuthToken  string `toml:"auth_token"`
	FromNumber string `toml:"from_number"`
	APIBase    string `toml:"api_base"`
	Timeout    string `toml:"timeout"`
}

// LLMConfig holds the OpenAI-compatible completion endpoint and model.
type LLMConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	Timeout string `toml:"timeout"`
}

// AgentsConfig holds the persona bundle directory and the fallback agent id.
type AgentsConfig struct {
	Dir            string `toml:"dir"`
	DefaultAgentID string `toml:"default_agent_id"`
}

// SchedulerConfig holds the follow-up sweep interval and batch size.
type SchedulerConfig struct {
	SweepInterval string `toml:"sweep_interval"`
	BatchSize     int    `toml:"batch_size"`
}

// Duration parses s as a duration, returning fallback when s is empty or invalid.
func Duration(s, fallback string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Store: StoreConfig{
			Driver: DefaultStoreDriver,
		},
		WhatsApp: WhatsAppConfig{
			Timeout: DefaultSendTimeout,
		},
		Twilio: TwilioConfig{
			APIBase: DefaultTwilioAPIBase,
			Timeout: DefaultSendTimeout,
		},
		LLM: LLMConfig{
			Timeout: DefaultLLMTimeout,
		},
		Agents: AgentsConfig{
			Dir:            DefaultAgentsDir,
			DefaultAgentID: DefaultAgentID,
		},
		Scheduler: SchedulerConfig{
			SweepInterval: DefaultSweepInterval,
			BatchSize:     DefaultSweepBatch,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
