package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath         = "config.toml"
	DefaultHTTPAddr           = ":3978"
	DefaultOpenIDMetadataURL  = "https://login.botframework.com/v1/.well-known/openidconfiguration"
	DefaultIssuer             = "https://api.botframework.com"
	DefaultTokenURL           = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"
	DefaultOAuthScope         = "https://api.botframework.com/.default"
	DefaultKeyRefreshInterval = "24h"
	DefaultClockSkew          = "5m"
	DefaultJWTExpiresIn       = "1h"
	DefaultEchoPrefix         = "You sent: "
)

type Config struct {
	Log    LogConfig    `toml:"log" yaml:"log"`
	Server ServerConfig `toml:"server" yaml:"server"`
	Bot    BotConfig    `toml:"bot" yaml:"bot"`
	Admin  AdminConfig  `toml:"admin" yaml:"admin"`
	Dialog DialogConfig `toml:"dialog" yaml:"dialog"`
}

type LogConfig struct {
	Level  string `toml:"level" yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `toml:"format" yaml:"format" validate:"oneof=text json"`
}

type ServerConfig struct {
	Addr string `toml:"addr" yaml:"addr" validate:"required"`
}

// BotConfig holds the channel registration of the bot. An empty AppID runs the
// bot in emulator mode: inbound requests are not verified and replies are sent
// without a token.
type BotConfig struct {
	AppID              string   `toml:"app_id" yaml:"app_id"`
	AppPassword        string   `toml:"app_password" yaml:"app_password" validate:"required_with=AppID"`
	OpenIDMetadataURL  string   `toml:"openid_metadata_url" yaml:"openid_metadata_url" validate:"omitempty,url"`
	Issuers            []string `toml:"issuers" yaml:"issuers" validate:"dive,required"`
	TokenURL           string   `toml:"token_url" yaml:"token_url" validate:"omitempty,url"`
	OAuthScope         string   `toml:"oauth_scope" yaml:"oauth_scope"`
	HMACSecret         string   `toml:"hmac_secret" yaml:"hmac_secret"`
	KeyRefreshInterval string   `toml:"key_refresh_interval" yaml:"key_refresh_interval"`
	ClockSkew          string   `toml:"clock_skew" yaml:"clock_skew"`
}

type AdminConfig struct {
	JWTSecret    string `toml:"jwt_secret" yaml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in" yaml:"jwt_expires_in"`
}

type DialogConfig struct {
	EchoPrefix string `toml:"echo_prefix" yaml:"echo_prefix"`
}

// KeyRefresh returns the signing-key refresh interval.
func (c BotConfig) KeyRefresh() time.Duration {
	return durationOr(c.KeyRefreshInterval, 24*time.Hour)
}

// Skew returns the tolerated clock skew for token validation.
func (c BotConfig) Skew() time.Duration {
	return durationOr(c.ClockSkew, 5*time.Minute)
}

// Expiry returns the lifetime of issued admin tokens.
func (c AdminConfig) Expiry() time.Duration {
	return durationOr(c.JWTExpiresIn, time.Hour)
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Bot: BotConfig{
			OpenIDMetadataURL:  DefaultOpenIDMetadataURL,
			Issuers:            []string{DefaultIssuer},
			TokenURL:           DefaultTokenURL,
			OAuthScope:         DefaultOAuthScope,
			KeyRefreshInterval: DefaultKeyRefreshInterval,
			ClockSkew:          DefaultClockSkew,
		},
		Admin: AdminConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Dialog: DialogConfig{
			EchoPrefix: DefaultEchoPrefix,
		},
	}
}

// Load reads the config file at path over the defaults. A missing file yields
// the defaults. Files ending in .yaml or .yml are decoded as YAML, anything else as TOML.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode toml: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints and duration syntax.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for name, raw := range map[string]string{
		"bot.key_refresh_interval": c.Bot.KeyRefreshInterval,
		"bot.clock_skew":           c.Bot.ClockSkew,
		"admin.jwt_expires_in":     c.Admin.JWTExpiresIn,
	} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := time.ParseDuration(strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("invalid config: %s: %w", name, err)
		}
	}
	return nil
}
