package relay

import (
	"context"
	"sync"
)

// Mode decides where outgoing user text is routed.
type Mode int

const (
	// ModeBot routes user text to the automated agent as well as the thread.
	ModeBot Mode = iota
	// ModeAgent bypasses the automated agent; only humans see user text.
	ModeAgent
)

func (m Mode) String() string {
	if m == ModeAgent {
		return "agent"
	}
	return "bot"
}

// Session binds one live client connection to one remote thread. All mutable
// fields are guarded by mu: the router and the poller run concurrently and
// must treat deliveredCount as the single source of truth for the next
// unseen index.
type Session struct {
	ThreadID       string
	OwnerID        string
	AgentSessionID string

	mu             sync.Mutex
	mode           Mode
	client         *Client
	deliveredCount int
	deliveredLog   []string
	cancelPoll     context.CancelFunc
}

func newSession(threadID, ownerID string) *Session {
	return &Session{ThreadID: threadID, OwnerID: ownerID}
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Escalate transitions the session to human-only handling. The transition is
// one-way; calling it again is a no-op.
func (s *Session) Escalate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = ModeAgent
}

func (s *Session) DeliveredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveredCount
}

func (s *Session) DeliveredLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deliveredLog...)
}

// advanceDelivered records one message as pushed to the client.
func (s *Session) advanceDelivered(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveredLog = append(s.deliveredLog, text)
	s.deliveredCount = len(s.deliveredLog)
}

// seedDelivered primes the cursor from replayed history so the first poll
// diff after rehydration sees zero new messages.
func (s *Session) seedDelivered(texts []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveredLog = append([]string(nil), texts...)
	s.deliveredCount = len(s.deliveredLog)
}

func (s *Session) attach(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = c
}

// detach clears the connection only if it is still the given one; a newer
// connection that took over the session stays bound.
func (s *Session) detach(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == c {
		s.client = nil
	}
}

func (s *Session) currentClient() *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// setPollCancel installs the poller's cancel func, stopping any previous
// poller for this session first.
func (s *Session) setPollCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	prev := s.cancelPoll
	s.cancelPoll = cancel
	s.mu.Unlock()
	if prev != nil {
		prev()
	}
}

func (s *Session) stopPoller() {
	s.mu.Lock()
	cancel := s.cancelPoll
	s.cancelPoll = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
