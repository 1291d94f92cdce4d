// Package config loads relay settings from environment variables
// (THREADRELAY_* prefix) and an optional config file.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/go-go-golems/threadrelay/pkg/stream"
)

type Settings struct {
	Addr     string `mapstructure:"addr"`
	LogLevel string `mapstructure:"log-level"`

	SlackToken     string `mapstructure:"slack-token"`
	ActiveChannel  string `mapstructure:"active-channel"`
	ArchiveChannel string `mapstructure:"archive-channel"`
	// AgentUserID is the workspace identity the relay posts as; its messages
	// are filtered from new-message detection.
	AgentUserID string `mapstructure:"agent-user-id"`

	KoreWebhookURL   string `mapstructure:"kore-webhook-url"`
	KoreClientID     string `mapstructure:"kore-client-id"`
	KoreClientSecret string `mapstructure:"kore-client-secret"`
	KoreIdentity     string `mapstructure:"kore-identity"`
	KoreBotID        string `mapstructure:"kore-bot-id"`

	AuthSecret string `mapstructure:"auth-secret"`
	AuthIssuer string `mapstructure:"auth-issuer"`

	PollInterval  time.Duration `mapstructure:"poll-interval"`
	RemoteTimeout time.Duration `mapstructure:"remote-timeout"`

	RedisEnabled  bool   `mapstructure:"redis-enabled"`
	RedisAddr     string `mapstructure:"redis-addr"`
	RedisGroup    string `mapstructure:"redis-group"`
	RedisConsumer string `mapstructure:"redis-consumer"`
}

// NewViper returns a viper instance with defaults and env binding applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("addr", ":8765")
	v.SetDefault("log-level", "info")
	v.SetDefault("active-channel", "support")
	v.SetDefault("archive-channel", "support-archive")
	// Secrets and identifiers default to empty; every key needs a default so
	// env-only values survive Unmarshal.
	v.SetDefault("slack-token", "")
	v.SetDefault("agent-user-id", "")
	v.SetDefault("kore-webhook-url", "")
	v.SetDefault("kore-client-id", "")
	v.SetDefault("kore-client-secret", "")
	v.SetDefault("kore-identity", "")
	v.SetDefault("kore-bot-id", "")
	v.SetDefault("auth-secret", "")
	v.SetDefault("auth-issuer", "")
	v.SetDefault("poll-interval", 10*time.Second)
	v.SetDefault("remote-timeout", 15*time.Second)
	v.SetDefault("redis-enabled", false)
	v.SetDefault("redis-addr", "localhost:6379")
	v.SetDefault("redis-group", "relay-ui")
	v.SetDefault("redis-consumer", "relay-1")

	v.SetEnvPrefix("THREADRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads settings, optionally from cfgFile, layered over env and defaults.
func Load(v *viper.Viper, cfgFile string) (*Settings, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
	}
	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "unmarshal settings")
	}
	return s, nil
}

// Validate checks the fields serving has no sane default for.
func (s *Settings) Validate() error {
	switch {
	case s.SlackToken == "":
		return errors.New("slack-token is required")
	case s.ActiveChannel == "":
		return errors.New("active-channel is required")
	case s.AgentUserID == "":
		return errors.New("agent-user-id is required")
	case s.KoreWebhookURL == "":
		return errors.New("kore-webhook-url is required")
	case s.KoreClientID == "" || s.KoreClientSecret == "":
		return errors.New("kore client credentials are required")
	case s.KoreIdentity == "" || s.KoreBotID == "":
		return errors.New("kore correspondent identities are required")
	case s.AuthSecret == "":
		return errors.New("auth-secret is required")
	}
	return nil
}

func (s *Settings) StreamSettings() stream.Settings {
	return stream.Settings{
		RedisEnabled:  s.RedisEnabled,
		RedisAddr:     s.RedisAddr,
		RedisGroup:    s.RedisGroup,
		RedisConsumer: s.RedisConsumer,
	}
}
