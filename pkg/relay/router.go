package relay

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/threadrelay/pkg/kore"
	"github.com/go-go-golems/threadrelay/pkg/threadstore"
)

// AgentBridge forwards user text to the automated agent and reports the
// structured escalation outcome alongside each reply.
type AgentBridge interface {
	Connect(ctx context.Context) (kore.Reply, string, error)
	Send(ctx context.Context, text string) (kore.Reply, error)
}

type RouterConfig struct {
	Store    threadstore.Store
	Bridge   AgentBridge
	Sessions *SessionManager
	// ChannelID is the resolved active channel holding all live threads.
	ChannelID string
	// ArchiveChannelID receives a note when a session is archived. Optional.
	ArchiveChannelID string
	// AgentUserID is the posting identity the relay itself uses against the
	// thread store; messages it authored are filtered from new-message
	// detection.
	AgentUserID  string
	PollInterval time.Duration
}

// Router owns dispatch of inbound client text: session creation, resume,
// archival, and message forwarding.
type Router struct {
	store        threadstore.Store
	bridge       AgentBridge
	sessions     *SessionManager
	channelID    string
	archiveID    string
	agentUserID  string
	pollInterval time.Duration
}

func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Store == nil {
		return nil, errors.New("thread store is nil")
	}
	if cfg.Bridge == nil {
		return nil, errors.New("agent bridge is nil")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session manager is nil")
	}
	if cfg.ChannelID == "" {
		return nil, errors.New("channel id is empty")
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Router{
		store:        cfg.Store,
		bridge:       cfg.Bridge,
		sessions:     cfg.Sessions,
		channelID:    cfg.ChannelID,
		archiveID:    cfg.ArchiveChannelID,
		agentUserID:  cfg.AgentUserID,
		pollInterval: interval,
	}, nil
}

// Handle dispatches one verified inbound message from a client.
func (r *Router) Handle(ctx context.Context, c *Client, text, ownerID string) {
	switch {
	case strings.HasPrefix(text, cmdResumePrefix):
		r.resume(ctx, c, strings.TrimPrefix(text, cmdResumePrefix), ownerID)
	case strings.HasPrefix(text, cmdNewThread):
		r.create(ctx, c, ownerID)
	case text == cmdArchive:
		r.archive(ctx, c)
	default:
		r.forward(ctx, c, text)
	}
}

// create establishes a new thread: agent handshake, root message, owner tag,
// mirrored greeting. The session is registered only once every remote write
// succeeded, so a failed create leaves no local state behind.
func (r *Router) create(ctx context.Context, c *Client, ownerID string) {
	logger := log.With().Str("component", "router").Str("client_id", c.ID).Logger()

	reply, agentSessionID, err := r.bridge.Connect(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("agent connect handshake failed")
		c.Send(errorFrame("An error occurred."))
		return
	}
	threadID, err := r.store.PostMessage(ctx, r.channelID, "", rootMessagePrefix+agentSessionID)
	if err != nil {
		logger.Error().Err(err).Msg("posting thread root failed")
		c.Send(errorFrame("An error occurred."))
		return
	}
	if _, err := r.store.PostMessage(ctx, r.channelID, threadID, ownerTagPrefix+ownerID); err != nil {
		logger.Error().Err(err).Str("thread_id", threadID).Msg("posting owner tag failed")
		c.Send(errorFrame("An error occurred."))
		return
	}
	if _, err := r.store.PostMessage(ctx, r.channelID, threadID, agentMirrorPrefix+reply.Text); err != nil {
		logger.Error().Err(err).Str("thread_id", threadID).Msg("mirroring greeting failed")
		c.Send(errorFrame("An error occurred."))
		return
	}

	r.release(c)
	sess := newSession(threadID, ownerID)
	sess.AgentSessionID = agentSessionID
	if reply.Escalate {
		sess.Escalate()
	}
	sess.attach(c)
	c.bind(sess)
	r.sessions.Put(sess)

	c.Send(agentFrame(reply.Text))
	c.Send(handleFrame(threadID, agentSessionID))
	r.startPoller(sess)
	logger.Info().Str("thread_id", threadID).Str("owner_id", ownerID).Msg("session created")
}

// resume re-attaches a client to an existing thread. Ownership is checked
// against the owner tag posted at creation time; a mismatch is refused
// silently so thread contents never leak.
func (r *Router) resume(ctx context.Context, c *Client, threadID, ownerID string) {
	logger := log.With().Str("component", "router").Str("client_id", c.ID).Str("thread_id", threadID).Logger()

	msgs, err := r.store.Replies(ctx, r.channelID, threadID)
	if err != nil {
		logger.Error().Err(err).Msg("fetching thread history failed")
		c.Send(errorFrame("An error occurred."))
		return
	}
	owner := ownerFromHistory(msgs)
	if owner == "" || owner != ownerID {
		logger.Warn().Msg("resume rejected: owner mismatch")
		return
	}

	r.release(c)
	sess, ok := r.sessions.Get(threadID)
	if ok {
		// Another connection still holds this thread; the resume takes over.
		sess.stopPoller()
	} else {
		sess = newSession(threadID, ownerID)
		r.sessions.Put(sess)
	}

	r.rehydrate(ctx, c, sess, msgs)
	sess.attach(c)
	c.bind(sess)
	r.startPoller(sess)
	logger.Info().Int("messages", len(msgs)).Msg("session resumed")
}

// archive closes the session without touching remote history. Destructive
// deletion is intentionally disabled; a note lands in the archive channel
// instead.
func (r *Router) archive(ctx context.Context, c *Client) {
	sess := c.session()
	if sess == nil {
		log.Warn().Str("component", "router").Str("client_id", c.ID).Msg("archive without bound session")
		return
	}
	logger := log.With().Str("component", "router").Str("thread_id", sess.ThreadID).Logger()

	// A newer connection may have taken the session over; the stale client
	// only unbinds itself and must not tear the session down.
	if sess.currentClient() != c {
		logger.Warn().Str("client_id", c.ID).Msg("archive from superseded connection ignored")
		sess.detach(c)
		c.bind(nil)
		return
	}

	sess.stopPoller()
	r.sessions.Remove(sess.ThreadID)
	sess.detach(c)
	c.bind(nil)

	if r.archiveID != "" {
		if _, err := r.store.PostMessage(ctx, r.archiveID, "", "archived thread "+sess.ThreadID); err != nil {
			logger.Warn().Err(err).Msg("posting archive note failed")
		}
	}
	logger.Info().Msg("session archived")
}

// forward posts user text into the thread, and routes it to the agent only
// while the session is still in bot mode.
func (r *Router) forward(ctx context.Context, c *Client, text string) {
	sess := c.session()
	if sess == nil {
		log.Warn().Str("component", "router").Str("client_id", c.ID).Msg("message without bound session")
		c.Send(errorFrame("No active session."))
		return
	}
	logger := log.With().Str("component", "router").Str("thread_id", sess.ThreadID).Logger()

	if _, err := r.store.PostMessage(ctx, r.channelID, sess.ThreadID, userMsgPrefix+text); err != nil {
		logger.Error().Err(err).Msg("posting user message failed")
		c.Send(errorFrame("An error occurred."))
		return
	}
	if sess.Mode() != ModeBot {
		return
	}

	reply, err := r.bridge.Send(ctx, text)
	if err != nil {
		logger.Error().Err(err).Msg("agent send failed")
		c.Send(errorFrame("An error occurred."))
		return
	}
	c.Send(agentFrame(reply.Text))
	if reply.Escalate {
		sess.Escalate()
		logger.Info().Msg("session escalated to live agent")
	}
	if _, err := r.store.PostMessage(ctx, r.channelID, sess.ThreadID, agentMirrorPrefix+reply.Text); err != nil {
		logger.Warn().Err(err).Msg("mirroring agent reply failed")
	}
}

// Disconnect tears down whatever the client had bound: the poller stops, the
// registry entry goes away, and the thread history remains the only durable
// record the session can later be rebuilt from. A session taken over by a
// newer connection survives its old connection closing.
func (r *Router) Disconnect(c *Client) {
	sess := c.session()
	if sess == nil {
		return
	}
	r.release(c)
	log.Info().Str("component", "router").Str("thread_id", sess.ThreadID).Msg("session released on disconnect")
}

// release unbinds the client from its current session. Poller and registry
// teardown happen only while the client is still the session's live
// connection; a stale connection whose session was resumed elsewhere must not
// stop the new connection's poller.
func (r *Router) release(c *Client) {
	sess := c.session()
	if sess == nil {
		return
	}
	if sess.currentClient() == c {
		sess.stopPoller()
		r.sessions.Remove(sess.ThreadID)
	}
	sess.detach(c)
	c.bind(nil)
}

// ownerFromHistory finds the owner tag posted into the thread at creation.
func ownerFromHistory(msgs []threadstore.Message) string {
	for _, m := range msgs {
		if strings.HasPrefix(m.Text, ownerTagPrefix) {
			return strings.TrimPrefix(m.Text, ownerTagPrefix)
		}
	}
	return ""
}
