// Package config provides application configuration management using Viper.
// It supports loading from environment variables, config files, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	WhatsApp  WhatsAppConfig
	OpenAI    OpenAIConfig
	Calendar  CalendarConfig
	Notify    NotifyConfig
	FollowUp  FollowUpConfig
	Dealer    DealerConfig
	Admin     AdminConfig
	Log       LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string
	Port        int
	Environment string
	// PublicURL is the externally visible base URL, used to reconstruct
	// the webhook URL during signature validation.
	PublicURL string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host                  string
	Port                  int
	User                  string
	Password              string
	Name                  string
	SSLMode               string
	MaxConnections        int
	MaxIdleConnections    int
	ConnectionMaxLifetime time.Duration
}

// ConnectionString returns a PostgreSQL connection string.
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// WhatsAppConfig holds the Twilio WhatsApp API settings.
type WhatsAppConfig struct {
	AccountSID string
	AuthToken  string
	// FromNumber is the sandbox or business number, e.g. "whatsapp:+14155238886".
	FromNumber string
	APIURL     string
	// ValidateSignature controls webhook signature checking. Disable only
	// in local development.
	ValidateSignature bool
}

// OpenAIConfig holds settings for the reply generator.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	APIURL    string
}

// CalendarConfig holds the Cal.com booking API settings.
type CalendarConfig struct {
	APIKey      string
	EventTypeID int
	APIURL      string
	Timezone    string
}

// NotifyConfig holds sales-team notification settings. Empty URLs disable
// the corresponding channel.
type NotifyConfig struct {
	SlackWebhookURL   string
	DiscordWebhookURL string
}

// FollowUpConfig holds the background scheduler settings.
type FollowUpConfig struct {
	// SweepInterval is how often pending follow-ups are checked.
	SweepInterval time.Duration
	// StaleAfter is how long without a reply before a lead counts as stale.
	StaleAfter time.Duration
	BatchSize  int
}

// DealerConfig identifies the dealership in prompts and templates.
type DealerConfig struct {
	Name      string
	AgentName string
	Brand     string
}

// AdminConfig protects the dashboard API.
type AdminConfig struct {
	// APIKeyHash is the bcrypt hash of the admin API key.
	APIKeyHash string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from environment variables and config files.
// Environment variables take precedence over config file values.
func Load() (*Config, error) {
	v := viper.New()

	// Set config file options
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/leadflow")

	// Enable environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	setDefaults(v)

	// Try to read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFoundErr) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        v.GetString("server.host"),
			Port:        v.GetInt("server.port"),
			Environment: v.GetString("server.env"),
			PublicURL:   v.GetString("server.public_url"),
		},
		Database: DatabaseConfig{
			Host:                  v.GetString("database.host"),
			Port:                  v.GetInt("database.port"),
			User:                  v.GetString("database.user"),
			Password:              v.GetString("database.password"),
			Name:                  v.GetString("database.name"),
			SSLMode:               v.GetString("database.sslmode"),
			MaxConnections:        v.GetInt("database.max_connections"),
			MaxIdleConnections:    v.GetInt("database.max_idle_connections"),
			ConnectionMaxLifetime: v.GetDuration("database.connection_max_lifetime"),
		},
		WhatsApp: WhatsAppConfig{
			AccountSID:        v.GetString("whatsapp.account_sid"),
			AuthToken:         v.GetString("whatsapp.auth_token"),
			FromNumber:        v.GetString("whatsapp.from_number"),
			APIURL:            v.GetString("whatsapp.api_url"),
			ValidateSignature: v.GetBool("whatsapp.validate_signature"),
		},
		OpenAI: OpenAIConfig{
			APIKey:    v.GetString("openai.api_key"),
			Model:     v.GetString("openai.model"),
			MaxTokens: v.GetInt("openai.max_tokens"),
			APIURL:    v.GetString("openai.api_url"),
		},
		Calendar: CalendarConfig{
			APIKey:      v.GetString("calendar.api_key"),
			EventTypeID: v.GetInt("calendar.event_type_id"),
			APIURL:      v.GetString("calendar.api_url"),
			Timezone:    v.GetString("calendar.timezone"),
		},
		Notify: NotifyConfig{
			SlackWebhookURL:   v.GetString("notify.slack_webhook_url"),
			DiscordWebhookURL: v.GetString("notify.discord_webhook_url"),
		},
		FollowUp: FollowUpConfig{
			SweepInterval: v.GetDuration("followup.sweep_interval"),
			StaleAfter:    v.GetDuration("followup.stale_after"),
			BatchSize:     v.GetInt("followup.batch_size"),
		},
		Dealer: DealerConfig{
			Name:      v.GetString("dealer.name"),
			AgentName: v.GetString("dealer.agent_name"),
			Brand:     v.GetString("dealer.brand"),
		},
		Admin: AdminConfig{
			APIKeyHash: v.GetString("admin.api_key_hash"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		RateLimit: RateLimitConfig{
			Requests: v.GetInt("rate_limit.requests"),
			Window:   v.GetDuration("rate_limit.window"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "leadflow")
	v.SetDefault("database.name", "leadflow")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_connections", 5)
	v.SetDefault("database.connection_max_lifetime", "5m")

	// WhatsApp defaults
	v.SetDefault("whatsapp.api_url", "https://api.twilio.com/2010-04-01")
	v.SetDefault("whatsapp.validate_signature", true)

	// OpenAI defaults
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 150)
	v.SetDefault("openai.api_url", "https://api.openai.com/v1")

	// Calendar defaults
	v.SetDefault("calendar.api_url", "https://api.cal.com/v1")
	v.SetDefault("calendar.timezone", "America/Mexico_City")

	// Follow-up defaults
	v.SetDefault("followup.sweep_interval", "5m")
	v.SetDefault("followup.stale_after", "24h")
	v.SetDefault("followup.batch_size", 50)

	// Dealer defaults
	v.SetDefault("dealer.name", "Dinamica Motors")
	v.SetDefault("dealer.agent_name", "Paola")
	v.SetDefault("dealer.brand", "Nissan")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Rate limit defaults
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "1m")
}

// Validate checks that all required configuration values are present.
func (c *Config) Validate() error {
	var missing []string

	if c.Database.Password == "" {
		missing = append(missing, "DATABASE_PASSWORD")
	}
	if c.WhatsApp.AccountSID == "" {
		missing = append(missing, "WHATSAPP_ACCOUNT_SID")
	}
	if c.WhatsApp.AuthToken == "" {
		missing = append(missing, "WHATSAPP_AUTH_TOKEN")
	}
	if c.WhatsApp.FromNumber == "" {
		missing = append(missing, "WHATSAPP_FROM_NUMBER")
	}
	if c.OpenAI.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.Admin.APIKeyHash == "" {
		missing = append(missing, "ADMIN_API_KEY_HASH")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
