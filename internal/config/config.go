// Package config loads settings from ledger.yaml and LEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Google   OAuthConfig    `mapstructure:"google"`
	GitHub   OAuthConfig    `mapstructure:"github"`
	Store    StoreConfig    `mapstructure:"store"`
	AMQP     AMQPConfig     `mapstructure:"amqp"`
	Currency string         `mapstructure:"currency"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// URL is where clients reach the server.
	URL string `mapstructure:"url"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type ChatConfig struct {
	Provider string `mapstructure:"provider"`
	URL      string `mapstructure:"url"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
}

type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type StoreConfig struct {
	Dir string `mapstructure:"dir"`
	Key string `mapstructure:"key"`
}

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// UserDir is the per-user directory for the config file and local stores.
func UserDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "expense-ledger")
	}
	return ".expense-ledger"
}

// Every key needs a default so that AutomaticEnv picks it up on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.url", "http://localhost:8080")
	v.SetDefault("database.dsn", "ledger.db")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("chat.provider", "gemini")
	v.SetDefault("chat.url", "")
	v.SetDefault("chat.api_key", "")
	v.SetDefault("chat.model", "")
	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("github.client_id", "")
	v.SetDefault("github.client_secret", "")
	v.SetDefault("store.dir", UserDir())
	v.SetDefault("store.key", "")
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "ledger.events")
	v.SetDefault("currency", "")
}

// Load reads ledger.yaml from the given directories (the working directory
// when none are given), then applies LEDGER_ environment overrides such as
// LEDGER_SERVER_ADDR. A missing file is not an error.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("ledger")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
