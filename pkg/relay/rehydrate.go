package relay

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/threadrelay/pkg/kore"
	"github.com/go-go-golems/threadrelay/pkg/threadstore"
)

// rehydrate replays deduplicated thread history to a resuming client in
// original order, restores escalation state found in history, and seeds the
// dedup cursor so the poller's first diff sees nothing new.
func (r *Router) rehydrate(ctx context.Context, c *Client, sess *Session, msgs []threadstore.Message) {
	logger := log.With().Str("component", "rehydrate").Str("thread_id", sess.ThreadID).Logger()

	// Most recent counterpart author: neither the end user's own messages
	// nor anything posted under the relay's identity. A stale agent-authored
	// entry is never picked for the avatar.
	lastCounterpart := ""
	for _, m := range msgs {
		c.Send(historyFrame(m.Text))
		if kore.ContainsTransferNotice(m.Text) {
			sess.Escalate()
		}
		if m.UserID != "" && m.UserID != r.agentUserID && !strings.HasPrefix(m.Text, userMsgPrefix) {
			lastCounterpart = m.UserID
		}
	}

	if lastCounterpart != "" {
		if url, err := r.store.AvatarURL(ctx, lastCounterpart); err != nil {
			logger.Warn().Err(err).Str("user_id", lastCounterpart).Msg("avatar lookup failed")
		} else if url != "" {
			c.Send(avatarFrame(url))
		}
	}
	c.Send(historyDoneFrame())

	delivered := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.UserID != r.agentUserID {
			delivered = append(delivered, m.Text)
		}
	}
	sess.seedDelivered(delivered)
	logger.Debug().Int("replayed", len(msgs)).Int("cursor", len(delivered)).Msg("rehydration complete")
}
