package stream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type redisBackend struct {
	settings Settings
	client   *redis.Client
	pub      message.Publisher
}

// NewRedisBackend builds a Redis Streams transport. Consumer groups are
// created at the stream tail so a fresh subscriber never replays history.
func NewRedisBackend(s Settings) (Backend, error) {
	if s.RedisAddr == "" {
		return nil, errors.New("redis address is empty")
	}
	client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	logger := NewWatermillLogger(log.Logger)

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "build redis publisher")
	}
	return &redisBackend{settings: s, client: client, pub: pub}, nil
}

func (b *redisBackend) Publisher() message.Publisher { return b.pub }

func (b *redisBackend) Subscriber(ctx context.Context, topic string) (message.Subscriber, error) {
	if err := b.ensureGroupAtTail(ctx, topic); err != nil {
		return nil, err
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        b.client,
		Unmarshaller:  rstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: b.settings.RedisGroup,
		Consumer:      b.settings.RedisConsumer + ":" + topic,
	}, NewWatermillLogger(log.Logger))
	if err != nil {
		return nil, errors.Wrap(err, "build redis subscriber")
	}
	return sub, nil
}

// ensureGroupAtTail creates the consumer group at $ if it doesn't exist yet,
// so first subscribe doesn't replay the full stream.
func (b *redisBackend) ensureGroupAtTail(ctx context.Context, topic string) error {
	err := b.client.XGroupCreateMkStream(ctx, topic, b.settings.RedisGroup, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrap(err, "create consumer group")
	}
	log.Info().Str("stream", topic).Str("group", b.settings.RedisGroup).Msg("created redis consumer group at tail")
	return nil
}

func (b *redisBackend) Close() error {
	if err := b.pub.Close(); err != nil {
		return err
	}
	return b.client.Close()
}
