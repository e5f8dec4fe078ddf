package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "HELPDESK"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabaseDriver = "sqlite"
	defaultDatabaseDSN    = "helpdesk.db"
	defaultLogLevel       = "info"
	defaultCookieName     = "helpdesk_session"
	defaultSessionTTL     = 7 * 24 * 60
	defaultUploadsDir     = "uploads"
	defaultAssistBaseURL  = "https://api.groq.com/openai/v1/"
	defaultAssistModel    = "llama-3.3-70b-versatile"
	defaultRealtimeBuffer = 64
	defaultAllowedOrigins = "*"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress            string
	DatabaseDriver         string
	DatabaseDSN            string
	LogLevel               string
	SessionSigningSecret   string
	SessionCookieName      string
	SessionTTL             time.Duration
	UploadsDir             string
	AssistAPIKey           string
	AssistBaseURL          string
	AssistModel            string
	RealtimeSendBuffer     int
	RealtimeAllowedOrigins []string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.ttl_minutes", defaultSessionTTL)
	configViper.SetDefault("uploads.dir", defaultUploadsDir)
	configViper.SetDefault("assist.base_url", defaultAssistBaseURL)
	configViper.SetDefault("assist.model", defaultAssistModel)
	configViper.SetDefault("realtime.send_buffer", defaultRealtimeBuffer)
	configViper.SetDefault("realtime.allowed_origins", defaultAllowedOrigins)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:            configViper.GetString("http.address"),
		DatabaseDriver:         strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:            configViper.GetString("database.dsn"),
		LogLevel:               configViper.GetString("log.level"),
		SessionSigningSecret:   configViper.GetString("session.signing_secret"),
		SessionCookieName:      configViper.GetString("session.cookie_name"),
		SessionTTL:             time.Duration(configViper.GetInt("session.ttl_minutes")) * time.Minute,
		UploadsDir:             configViper.GetString("uploads.dir"),
		AssistAPIKey:           configViper.GetString("assist.api_key"),
		AssistBaseURL:          configViper.GetString("assist.base_url"),
		AssistModel:            configViper.GetString("assist.model"),
		RealtimeSendBuffer:     configViper.GetInt("realtime.send_buffer"),
		RealtimeAllowedOrigins: splitList(configViper.GetString("realtime.allowed_origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl_minutes must be positive")
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if strings.TrimSpace(c.UploadsDir) == "" {
		return fmt.Errorf("uploads.dir is required")
	}
	if c.RealtimeSendBuffer <= 0 {
		return fmt.Errorf("realtime.send_buffer must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
