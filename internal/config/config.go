package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "AGENTSTORE"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "agentstore.db"
	defaultLogLevel          = "info"
	defaultCookieName        = "agentstore_session"
	defaultSessionIssuer     = "agentstore"
	defaultSessionTTL        = 24 * time.Hour
	defaultWritesPerMinute   = 30
	defaultAPIBaseURL        = "http://localhost:8080"
	defaultRemoteTimeout     = 5 * time.Second
	defaultAllowedOrigin     = "*"
	keyHTTPAddress           = "http.address"
	keyAllowedOrigins        = "http.allowed_origins"
	keyDatabasePath          = "database.path"
	keyLogLevel              = "log.level"
	keySessionSigningSecret  = "session.signing_secret"
	keySessionCookieName     = "session.cookie_name"
	keySessionIssuer         = "session.issuer"
	keySessionTTL            = "session.ttl"
	keyRateLimitWritesPerMin = "ratelimit.writes_per_minute"
	keyAPIBaseURL            = "api.base_url"
	keySessionToken          = "session.token"
	keyRemoteTimeout         = "remote.timeout"
)

// ServerConfig captures runtime configuration for the API server.
type ServerConfig struct {
	HTTPAddress          string
	AllowedOrigins       []string
	DatabasePath         string
	LogLevel             string
	SessionSigningSecret string
	SessionCookieName    string
	SessionIssuer        string
	SessionTTL           time.Duration
	WritesPerMinute      int
}

// ClientConfig captures runtime configuration for the command line client.
type ClientConfig struct {
	APIBaseURL    string
	SessionToken  string
	RemoteTimeout time.Duration
	LogLevel      string
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

	configViper.SetDefault(keyHTTPAddress, defaultHTTPAddress)
	configViper.SetDefault(keyAllowedOrigins, []string{defaultAllowedOrigin})
	configViper.SetDefault(keyDatabasePath, defaultDatabasePath)
	configViper.SetDefault(keyLogLevel, defaultLogLevel)
	configViper.SetDefault(keySessionCookieName, defaultCookieName)
	configViper.SetDefault(keySessionIssuer, defaultSessionIssuer)
	configViper.SetDefault(keySessionTTL, defaultSessionTTL)
	configViper.SetDefault(keyRateLimitWritesPerMin, defaultWritesPerMinute)
	configViper.SetDefault(keyAPIBaseURL, defaultAPIBaseURL)
	configViper.SetDefault(keyRemoteTimeout, defaultRemoteTimeout)
}

// LoadServer parses server configuration from viper.
func LoadServer(configViper *viper.Viper) (ServerConfig, error) {
	cfg := ServerConfig{
		HTTPAddress:          configViper.GetString(keyHTTPAddress),
		AllowedOrigins:       configViper.GetStringSlice(keyAllowedOrigins),
		DatabasePath:         configViper.GetString(keyDatabasePath),
		LogLevel:             configViper.GetString(keyLogLevel),
		SessionSigningSecret: configViper.GetString(keySessionSigningSecret),
		SessionCookieName:    configViper.GetString(keySessionCookieName),
		SessionIssuer:        configViper.GetString(keySessionIssuer),
		SessionTTL:           configViper.GetDuration(keySessionTTL),
		WritesPerMinute:      configViper.GetInt(keyRateLimitWritesPerMin),
	}
	if err := cfg.validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func (c ServerConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("%s is required", keySessionSigningSecret)
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("%s is required", keyDatabasePath)
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("%s is required", keySessionCookieName)
	}
	if strings.TrimSpace(c.SessionIssuer) == "" {
		return fmt.Errorf("%s is required", keySessionIssuer)
	}
	if c.WritesPerMinute < 0 {
		return fmt.Errorf("%s must not be negative", keyRateLimitWritesPerMin)
	}
	return nil
}

// LoadClient parses client configuration from viper.
func LoadClient(configViper *viper.Viper) (ClientConfig, error) {
	cfg := ClientConfig{
		APIBaseURL:    strings.TrimRight(strings.TrimSpace(configViper.GetString(keyAPIBaseURL)), "/"),
		SessionToken:  strings.TrimSpace(configViper.GetString(keySessionToken)),
		RemoteTimeout: configViper.GetDuration(keyRemoteTimeout),
		LogLevel:      configViper.GetString(keyLogLevel),
	}
	if err := cfg.validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func (c ClientConfig) validate() error {
	parsed, err := url.Parse(c.APIBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", keyAPIBaseURL)
	}
	if c.RemoteTimeout <= 0 {
		return fmt.Errorf("%s must be positive", keyRemoteTimeout)
	}
	return nil
}
