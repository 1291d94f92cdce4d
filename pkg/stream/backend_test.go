package stream

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"
)

// drain acks everything arriving on ch and forwards the payloads. Publishing
// blocks until ack, so consumption has to run concurrently.
func drain(ch <-chan *message.Message) <-chan string {
	out := make(chan string, 16)
	go func() {
		for msg := range ch {
			out <- string(msg.Payload)
			msg.Ack()
		}
		close(out)
	}()
	return out
}

func TestGoChannelBackendRoundTrip(t *testing.T) {
	b := NewGoChannelBackend()
	defer func() { _ = b.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := b.Subscriber(ctx, "client:abc")
	require.NoError(t, err)
	ch, err := sub.Subscribe(ctx, "client:abc")
	require.NoError(t, err)
	payloads := drain(ch)

	err = b.Publisher().Publish("client:abc", message.NewMessage(watermill.NewUUID(), []byte("HISTORY DONE:")))
	require.NoError(t, err)

	select {
	case got := <-payloads:
		require.Equal(t, "HISTORY DONE:", got)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestGoChannelBackendPreservesOrder(t *testing.T) {
	b := NewGoChannelBackend()
	defer func() { _ = b.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := b.Subscriber(ctx, "client:ord")
	require.NoError(t, err)
	ch, err := sub.Subscribe(ctx, "client:ord")
	require.NoError(t, err)
	payloads := drain(ch)

	want := []string{"HISTORY: a", "HISTORY: b", "HISTORY DONE:"}
	for _, payload := range want {
		require.NoError(t, b.Publisher().Publish("client:ord", message.NewMessage(watermill.NewUUID(), []byte(payload))))
	}

	var got []string
	for range want {
		select {
		case p := <-payloads:
			got = append(got, p)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for frames")
		}
	}
	require.Equal(t, want, got)
}

func TestPublishWithoutSubscriberDoesNotBlock(t *testing.T) {
	b := NewGoChannelBackend()
	defer func() { _ = b.Close() }()

	done := make(chan struct{})
	go func() {
		_ = b.Publisher().Publish("client:nobody", message.NewMessage(watermill.NewUUID(), []byte("x")))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscriber")
	}
}

func TestNewBackendDefaultsToInProcess(t *testing.T) {
	b, err := NewBackend(Settings{})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()
	_, ok := b.(*goChannelBackend)
	require.True(t, ok)
}
