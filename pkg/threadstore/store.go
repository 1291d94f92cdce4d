// Package threadstore abstracts the externally-hosted discussion backend.
// A thread is identified by the timestamp of its root message; the full reply
// list is the durable history a session is rebuilt from.
package threadstore

import (
	"context"

	"github.com/pkg/errors"
)

// Message is one entry of a thread, in source order.
type Message struct {
	TS     string
	UserID string
	Text   string
}

// Store is the remote thread backend.
type Store interface {
	// ChannelID resolves a channel name to its identifier.
	ChannelID(ctx context.Context, name string) (string, error)
	// PostMessage posts text into a channel, as a threaded reply when
	// threadTS is non-empty, and returns the new message's timestamp.
	PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error)
	// Replies returns the full message list of a thread, root included,
	// in original order.
	Replies(ctx context.Context, channelID, threadTS string) ([]Message, error)
	// AvatarURL resolves a user's display avatar.
	AvatarURL(ctx context.Context, userID string) (string, error)
}

// ErrChannelNotFound is returned when a channel name resolves to nothing.
var ErrChannelNotFound = errors.New("channel not found")

// RemoteError wraps a failed call against the thread backend.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string { return "threadstore: " + e.Op + ": " + e.Err.Error() }

func (e *RemoteError) Unwrap() error { return e.Err }
