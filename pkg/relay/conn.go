package relay

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/threadrelay/pkg/stream"
)

// WSConn is the subset of *websocket.Conn the relay writes to.
type WSConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// clientTopic is the stream topic carrying frames for one connection.
func clientTopic(clientID string) string { return "client:" + clientID }

// Client is one live websocket connection. Outbound frames are published to
// the client's stream topic; a single reader goroutine subscribes and writes
// them to the websocket, so frame order is preserved and the websocket has
// exactly one writer.
type Client struct {
	ID   string
	conn WSConn
	pub  message.Publisher

	mu       sync.Mutex
	sess     *Session
	dead     bool
	stopRead context.CancelFunc
}

func NewClient(conn WSConn, pub message.Publisher) *Client {
	return &Client{ID: uuid.NewString(), conn: conn, pub: pub}
}

// Send queues one frame for delivery to this client. Delivery is best
// effort: a failed publish is logged and dropped.
func (c *Client) Send(frame []byte) {
	msg := message.NewMessage(watermill.NewUUID(), frame)
	if err := c.pub.Publish(clientTopic(c.ID), msg); err != nil {
		log.Warn().Err(err).Str("component", "relay").Str("client_id", c.ID).Msg("frame publish failed")
	}
}

// startReader subscribes to the client's topic and forwards payloads to the
// websocket until ctx is cancelled.
func (c *Client) startReader(ctx context.Context, backend stream.Backend) error {
	readCtx, cancel := context.WithCancel(ctx)
	sub, err := backend.Subscriber(readCtx, clientTopic(c.ID))
	if err != nil {
		cancel()
		return err
	}
	ch, err := sub.Subscribe(readCtx, clientTopic(c.ID))
	if err != nil {
		cancel()
		return err
	}
	c.mu.Lock()
	c.stopRead = cancel
	c.mu.Unlock()
	go func() {
		for msg := range ch {
			if !c.isDead() {
				if err := c.conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
					log.Debug().Err(err).Str("component", "relay").Str("client_id", c.ID).Msg("ws write failed, dropping client")
					c.markDead()
				}
			}
			msg.Ack()
		}
		log.Debug().Str("component", "relay").Str("client_id", c.ID).Msg("client reader stopped")
	}()
	return nil
}

func (c *Client) isDead() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dead
}

func (c *Client) markDead() {
	c.mu.Lock()
	c.dead = true
	c.mu.Unlock()
	_ = c.conn.Close()
}

// close stops the reader goroutine and closes the websocket.
func (c *Client) close() {
	c.mu.Lock()
	cancel := c.stopRead
	c.stopRead = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	_ = c.conn.Close()
}

// bind records the session this connection currently speaks for.
func (c *Client) bind(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess = s
}

func (c *Client) session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}
