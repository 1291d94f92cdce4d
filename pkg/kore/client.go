// Package kore talks to the automated agent's webhook. It signs every request
// with a short-lived bearer token and translates the platform's reply payload
// into a structured Reply, including the escalation outcome.
package kore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// transferNotice is the platform's natural-language reply when it gives up
// and hands the conversation to a live agent. It is the only escalation
// signal the webhook exposes today.
const transferNotice = "I'm sorry. I was unable to process your request. I will be transfering you to a live agent. One moment please."

// Reply is one answer from the agent. Escalate is true when the agent
// signalled it cannot help and the session should hand off to a human.
type Reply struct {
	Text     string
	Escalate bool
}

// ContainsTransferNotice reports whether a stored message carries the
// escalation signal. Used when rebuilding session state from thread history.
func ContainsTransferNotice(text string) bool {
	return strings.Contains(text, transferNotice)
}

// Error reports a failed webhook exchange.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "kore: " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

type Config struct {
	WebhookURL   string
	ClientID     string
	ClientSecret string
	// Identity is the correspondent id this relay speaks as.
	Identity string
	// BotID is the agent's correspondent id.
	BotID   string
	Timeout time.Duration
}

// Client calls the agent webhook. Safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

// Connect performs the new-session handshake and returns the greeting plus
// the agent-side session identifier.
func (c *Client) Connect(ctx context.Context) (Reply, string, error) {
	req := webhookRequest{
		Session: &sessionField{New: true},
		Message: messageField{Type: "event", Val: "ON_CONNECT"},
		From:    idField{ID: c.cfg.Identity},
		To:      idField{ID: c.cfg.BotID},
	}
	text, sessionID, err := c.do(ctx, "connect", req)
	if err != nil {
		return Reply{}, "", err
	}
	return newReply(text), sessionID, nil
}

// Send forwards user text and returns the agent's answer.
func (c *Client) Send(ctx context.Context, text string) (Reply, error) {
	req := webhookRequest{
		Message: messageField{Type: "text", Val: text},
		From:    idField{ID: c.cfg.Identity},
		To:      idField{ID: c.cfg.BotID},
	}
	replyText, _, err := c.do(ctx, "send", req)
	if err != nil {
		return Reply{}, err
	}
	return newReply(replyText), nil
}

func newReply(text string) Reply {
	return Reply{Text: text, Escalate: text == transferNotice}
}

type webhookRequest struct {
	Session *sessionField `json:"session,omitempty"`
	Message messageField  `json:"message"`
	From    idField       `json:"from"`
	To      idField       `json:"to"`
}

type sessionField struct {
	New bool `json:"new"`
}

type messageField struct {
	Type string `json:"type"`
	Val  string `json:"val"`
}

type idField struct {
	ID string `json:"id"`
}

type webhookResponse struct {
	Data []struct {
		Val json.RawMessage `json:"val"`
	} `json:"data"`
	SessionID string `json:"sessionId"`
}

func (c *Client) do(ctx context.Context, op string, payload webhookRequest) (string, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", "", &Error{Op: op, Err: err}
	}
	bearer, err := c.bearerToken()
	if err != nil {
		return "", "", &Error{Op: op, Err: errors.Wrap(err, "sign bearer token")}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return "", "", &Error{Op: op, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+bearer)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", "", &Error{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", &Error{Op: op, Err: errors.Errorf("webhook returned %s", resp.Status)}
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", &Error{Op: op, Err: err}
	}
	var decoded webhookResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", "", &Error{Op: op, Err: errors.Wrap(err, "decode response")}
	}
	if len(decoded.Data) == 0 {
		return "", "", &Error{Op: op, Err: errors.New("response has no data entries")}
	}
	text, err := decodeVal(decoded.Data[0].Val)
	if err != nil {
		return "", "", &Error{Op: op, Err: err}
	}
	return text, decoded.SessionID, nil
}

// decodeVal accepts both reply shapes the platform emits: a bare string or
// an object carrying a text field.
func decodeVal(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", errors.Wrap(err, "malformed reply value")
	}
	return obj.Text, nil
}

// bearerToken mints a fresh credential per request: issued-at skewed 30s into
// the past, one hour expiry.
func (c *Client) bearerToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   c.cfg.Identity,
		"iss":   c.cfg.ClientID,
		"appId": c.cfg.ClientID,
		"iat":   now.Add(-30 * time.Second).Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"jti":   uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.ClientSecret))
}
