package threadstore

import (
	"context"

	"github.com/slack-go/slack"
)

// SlackStore implements Store against the Slack Web API.
type SlackStore struct {
	api *slack.Client
}

func NewSlackStore(token string) *SlackStore {
	return &SlackStore{api: slack.New(token)}
}

func (s *SlackStore) ChannelID(ctx context.Context, name string) (string, error) {
	params := &slack.GetConversationsParameters{
		ExcludeArchived: true,
		Limit:           200,
	}
	for {
		channels, next, err := s.api.GetConversationsContext(ctx, params)
		if err != nil {
			return "", &RemoteError{Op: "conversations.list", Err: err}
		}
		for _, ch := range channels {
			if ch.Name == name {
				return ch.ID, nil
			}
		}
		if next == "" {
			return "", ErrChannelNotFound
		}
		params.Cursor = next
	}
}

func (s *SlackStore) PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, ts, err := s.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return "", &RemoteError{Op: "chat.postMessage", Err: err}
	}
	return ts, nil
}

func (s *SlackStore) Replies(ctx context.Context, channelID, threadTS string) ([]Message, error) {
	params := &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: threadTS,
	}
	var out []Message
	for {
		msgs, hasMore, next, err := s.api.GetConversationRepliesContext(ctx, params)
		if err != nil {
			return nil, &RemoteError{Op: "conversations.replies", Err: err}
		}
		for _, m := range msgs {
			out = append(out, Message{TS: m.Timestamp, UserID: m.User, Text: m.Text})
		}
		if !hasMore || next == "" {
			return out, nil
		}
		params.Cursor = next
	}
}

func (s *SlackStore) AvatarURL(ctx context.Context, userID string) (string, error) {
	info, err := s.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", &RemoteError{Op: "users.info", Err: err}
	}
	return info.Profile.Image72, nil
}

var _ Store = (*SlackStore)(nil)
