package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load(NewViper(), "")
	require.NoError(t, err)

	require.Equal(t, ":8765", s.Addr)
	require.Equal(t, "info", s.LogLevel)
	require.Equal(t, 10*time.Second, s.PollInterval)
	require.Equal(t, 15*time.Second, s.RemoteTimeout)
	require.False(t, s.RedisEnabled)
	require.Equal(t, "localhost:6379", s.RedisAddr)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("THREADRELAY_SLACK_TOKEN", "xoxb-test")
	t.Setenv("THREADRELAY_POLL_INTERVAL", "2s")
	t.Setenv("THREADRELAY_REDIS_ENABLED", "true")

	s, err := Load(NewViper(), "")
	require.NoError(t, err)
	require.Equal(t, "xoxb-test", s.SlackToken)
	require.Equal(t, 2*time.Second, s.PollInterval)
	require.True(t, s.RedisEnabled)
	require.True(t, s.StreamSettings().RedisEnabled)
}

func TestValidateRequiresCoreFields(t *testing.T) {
	s, err := Load(NewViper(), "")
	require.NoError(t, err)
	require.Error(t, s.Validate())

	s.SlackToken = "xoxb-test"
	s.AgentUserID = "U070GNA54LB"
	s.KoreWebhookURL = "https://bots.example.com/hook"
	s.KoreClientID = "cs-1"
	s.KoreClientSecret = "hush"
	s.KoreIdentity = "relay@example.com"
	s.KoreBotID = "st-bot"
	s.AuthSecret = "s3cret"
	require.NoError(t, s.Validate())
}
