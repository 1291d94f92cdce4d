package kore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func testClient(url string) *Client {
	return NewClient(Config{
		WebhookURL:   url,
		ClientID:     "cs-123",
		ClientSecret: "hush",
		Identity:     "relay@example.com",
		BotID:        "st-bot",
		Timeout:      2 * time.Second,
	})
}

func TestConnectHandshake(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"data":[{"val":"Hello! How can I help?"}],"sessionId":"sess-1"}`))
	}))
	defer srv.Close()

	reply, sessionID, err := testClient(srv.URL).Connect(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Hello! How can I help?", reply.Text)
	require.False(t, reply.Escalate)
	require.Equal(t, "sess-1", sessionID)

	session, ok := gotBody["session"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, true, session["new"])
	msg, ok := gotBody["message"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "event", msg["type"])
	require.Equal(t, "ON_CONNECT", msg["val"])

	require.True(t, strings.HasPrefix(gotAuth, "Bearer "))
	raw := strings.TrimPrefix(gotAuth, "Bearer ")
	parsed, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return []byte("hush"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	require.Equal(t, "relay@example.com", claims["sub"])
	require.Equal(t, "cs-123", claims["iss"])
	require.Equal(t, "cs-123", claims["appId"])
}

func TestSendDecodesStructuredValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"val":{"text":"Your order shipped."}}],"sessionId":"sess-1"}`))
	}))
	defer srv.Close()

	reply, err := testClient(srv.URL).Send(context.Background(), "where is my order?")
	require.NoError(t, err)
	require.Equal(t, "Your order shipped.", reply.Text)
	require.False(t, reply.Escalate)
}

func TestSendDetectsEscalation(t *testing.T) {
	body, err := json.Marshal(map[string]any{
		"data":      []map[string]any{{"val": transferNotice}},
		"sessionId": "sess-1",
	})
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	reply, err := testClient(srv.URL).Send(context.Background(), "something hard")
	require.NoError(t, err)
	require.True(t, reply.Escalate)
	require.Equal(t, transferNotice, reply.Text)
}

func TestSendMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Send(context.Background(), "hi")
	require.Error(t, err)
	var kerr *Error
	require.ErrorAs(t, err, &kerr)
	require.Equal(t, "send", kerr.Op)
}

func TestSendHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Send(context.Background(), "hi")
	var kerr *Error
	require.ErrorAs(t, err, &kerr)
}

func TestContainsTransferNotice(t *testing.T) {
	require.True(t, ContainsTransferNotice("Kore Bot: "+transferNotice))
	require.False(t, ContainsTransferNotice("User: all good"))
}
