package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/threadrelay/pkg/threadstore"
)

// startPoller runs the per-session thread poller until the session's
// connection closes or the session is archived. Any previous poller for the
// same session is cancelled first.
func (r *Router) startPoller(sess *Session) {
	ctx, cancel := context.WithCancel(context.Background())
	sess.setPollCancel(cancel)
	go r.pollLoop(ctx, sess)
}

func (r *Router) pollLoop(ctx context.Context, sess *Session) {
	logger := log.With().Str("component", "poller").Str("thread_id", sess.ThreadID).Logger()
	logger.Debug().Dur("interval", r.pollInterval).Msg("poller started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("poller stopped")
			return
		case <-ticker.C:
			if err := r.pollOnce(ctx, sess); err != nil {
				// A failed tick is never fatal; the next tick retries the
				// same diff because the cursor did not move.
				logger.Warn().Err(err).Msg("poll tick failed")
			}
		}
	}
}

// pollOnce fetches the thread, drops messages posted under the relay's own
// identity, and pushes the slice beyond the dedup cursor to the client in
// source order. The cursor advances one message at a time, after the frame
// was handed to the client's stream.
func (r *Router) pollOnce(ctx context.Context, sess *Session) error {
	msgs, err := r.store.Replies(ctx, r.channelID, sess.ThreadID)
	if err != nil {
		return err
	}
	eligible := make([]threadstore.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.UserID != r.agentUserID {
			eligible = append(eligible, m)
		}
	}

	start := sess.DeliveredCount()
	if len(eligible) <= start {
		return nil
	}
	c := sess.currentClient()
	if c == nil {
		return nil
	}
	for _, m := range eligible[start:] {
		url, err := r.store.AvatarURL(ctx, m.UserID)
		if err != nil {
			log.Warn().Err(err).Str("component", "poller").Str("user_id", m.UserID).Msg("avatar lookup failed")
		}
		c.Send(threadFrame(m.Text))
		if url != "" {
			c.Send(avatarFrame(url))
		}
		sess.advanceDelivered(m.Text)
	}
	return nil
}
