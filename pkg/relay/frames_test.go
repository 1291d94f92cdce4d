package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutboundFrames(t *testing.T) {
	require.Equal(t, "From Kore: hi", string(agentFrame("hi")))
	require.Equal(t, "From Slack: hello", string(threadFrame("hello")))
	require.Equal(t, "Slack ms_ts: 1700.1,sess-9", string(handleFrame("1700.1", "sess-9")))
	require.Equal(t, "HISTORY: old message", string(historyFrame("old message")))
	require.Equal(t, "HISTORY DONE:", string(historyDoneFrame()))
	require.Equal(t, "PFP_URL: https://x/y.png", string(avatarFrame("https://x/y.png")))
}

func TestErrorFrameIsStructuredJSON(t *testing.T) {
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(errorFrame("An error occurred."), &decoded))
	require.Equal(t, "An error occurred.", decoded["error"])
}

func TestParseEnvelope(t *testing.T) {
	env, err := parseEnvelope([]byte(`{"token":"tok-1","message":"new_thread:"}`))
	require.NoError(t, err)
	require.Equal(t, "tok-1", env.Token)
	require.Equal(t, "new_thread:", env.Message)

	_, err = parseEnvelope([]byte("not json"))
	require.Error(t, err)
}
