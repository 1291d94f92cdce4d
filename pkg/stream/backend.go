// Package stream provides the transport that carries outbound client frames
// from producers (router, poller, agent bridge) to the per-connection
// websocket writer: in-process go channels by default, Redis Streams when
// the relay runs behind a shared broker.
package stream

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"
)

// Settings holds transport configuration.
type Settings struct {
	// RedisEnabled switches from the in-process transport to Redis Streams.
	RedisEnabled  bool
	RedisAddr     string
	RedisGroup    string
	RedisConsumer string
}

// Backend exposes publisher/subscriber construction for client frame topics.
type Backend interface {
	Publisher() message.Publisher
	// Subscriber returns a subscriber suitable for the given topic. The
	// caller still calls Subscribe(ctx, topic) on the result.
	Subscriber(ctx context.Context, topic string) (message.Subscriber, error)
	Close() error
}

// NewBackend builds the transport selected by settings.
func NewBackend(s Settings) (Backend, error) {
	if s.RedisEnabled {
		return NewRedisBackend(s)
	}
	return NewGoChannelBackend(), nil
}

type goChannelBackend struct {
	pubsub *gochannel.GoChannel
}

// NewGoChannelBackend returns the default in-process transport. Publishing
// blocks until the subscriber acked, which keeps frames for one connection in
// publish order.
func NewGoChannelBackend() Backend {
	return &goChannelBackend{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			BlockPublishUntilSubscriberAck: true,
		}, NewWatermillLogger(log.Logger)),
	}
}

func (b *goChannelBackend) Publisher() message.Publisher { return b.pubsub }

func (b *goChannelBackend) Subscriber(context.Context, string) (message.Subscriber, error) {
	return b.pubsub, nil
}

func (b *goChannelBackend) Close() error { return b.pubsub.Close() }
