package relay

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/threadrelay/pkg/auth"
)

func mintIdentityToken(t *testing.T, sub string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": sub,
		"iss": "identity-svc",
		"iat": time.Now().Add(-time.Minute).Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	return tok
}

func dialTestServer(t *testing.T, h *harness) (*websocket.Conn, func()) {
	t.Helper()
	srv, err := NewServer(context.Background(), ServerConfig{
		Addr:     ":0",
		Verifier: auth.NewTokenVerifier("s3cret", "identity-svc"),
		Router:   h.router,
		Backend:  h.backend,
	})
	require.NoError(t, err)

	httpSrv := httptest.NewServer(srv.Handler())
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, func() {
		_ = conn.Close()
		httpSrv.Close()
	}
}

func readFrames(t *testing.T, conn *websocket.Conn, n int) []string {
	t.Helper()
	var frames []string
	for len(frames) < n {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		frames = append(frames, string(data))
	}
	return frames
}

func TestWebSocketCreateRoundTrip(t *testing.T) {
	h := newHarness(t, time.Hour)
	conn, done := dialTestServer(t, h)
	defer done()

	err := conn.WriteJSON(Envelope{Token: mintIdentityToken(t, "alice"), Message: "new_thread:"})
	require.NoError(t, err)

	frames := readFrames(t, conn, 2)
	require.Equal(t, "From Kore: Hello! How can I help?", frames[0])
	require.True(t, strings.HasPrefix(frames[1], "Slack ms_ts: "))
	require.True(t, strings.HasSuffix(frames[1], ",sess-1"))
	require.Equal(t, 1, h.sessions.Count())
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	h := newHarness(t, time.Hour)
	conn, done := dialTestServer(t, h)
	defer done()

	err := conn.WriteJSON(Envelope{Token: "forged", Message: "new_thread:"})
	require.NoError(t, err)

	frames := readFrames(t, conn, 1)
	require.Contains(t, frames[0], `"error"`)
	require.Equal(t, 0, h.sessions.Count())
}

func TestWebSocketRejectsMalformedEnvelope(t *testing.T) {
	h := newHarness(t, time.Hour)
	conn, done := dialTestServer(t, h)
	defer done()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("plain text")))
	frames := readFrames(t, conn, 1)
	require.Contains(t, frames[0], `"error"`)
}

func TestWebSocketDisconnectReleasesSession(t *testing.T) {
	h := newHarness(t, time.Hour)
	conn, done := dialTestServer(t, h)

	err := conn.WriteJSON(Envelope{Token: mintIdentityToken(t, "alice"), Message: "new_thread:"})
	require.NoError(t, err)
	readFrames(t, conn, 2)
	require.Equal(t, 1, h.sessions.Count())

	done()
	require.Eventually(t, func() bool {
		return h.sessions.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
