// Package stream consumes the Universalis websocket feed and decodes its
// BSON messages into market update events.
package stream

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// Config holds websocket feed settings.
type Config struct {
	URL     string
	Channel string

	HandshakeTimeout time.Duration
	PingInterval     time.Duration

	// Reconnect attempts stop once ReconnectMaxElapsed has passed since the
	// connection dropped. Zero makes a single attempt.
	ReconnectInitialInterval time.Duration
	ReconnectMaxElapsed      time.Duration
}

// Client is a subscribed connection to the feed.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
	err  error
}

// NewClient creates a feed client. Call Connect before Messages.
func NewClient(cfg Config) *Client {
	dialer := *websocket.DefaultDialer
	if cfg.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = cfg.HandshakeTimeout
	}
	return &Client{
		cfg:    cfg,
		dialer: &dialer,
	}
}

// Connect dials the feed and sends the subscribe document.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Messages starts the read loop and returns the channel of raw messages.
// The channel is closed when ctx is done or when reconnecting gives up;
// Err reports the reason in the latter case.
func (c *Client) Messages(ctx context.Context) <-chan []byte {
	out := make(chan []byte, 256)
	go c.run(ctx, out)
	return out
}

// Err returns the error that ended the read loop, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the current connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial stream: %w", err)
	}

	msg, err := EncodeSubscribe(c.cfg.Channel)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to %q: %w", c.cfg.Channel, err)
	}

	log.Printf("[Stream] Subscribed to %q on %s", c.cfg.Channel, c.cfg.URL)
	return conn, nil
}

func (c *Client) run(ctx context.Context, out chan<- []byte) {
	defer close(out)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	for {
		if conn == nil {
			var err error
			conn, err = c.reconnect(ctx)
			if err != nil {
				if ctx.Err() == nil {
					c.setErr(err)
				}
				return
			}
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
		}

		err := c.readLoop(ctx, conn, out)
		conn.Close()
		conn = nil
		if ctx.Err() != nil {
			return
		}
		log.Printf("[Stream] Connection dropped: %v", err)
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- []byte) error {
	done := make(chan struct{})
	defer close(done)

	go c.keepalive(conn, done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		select {
		case out <- data:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) keepalive(conn *websocket.Conn, done <-chan struct{}) {
	if c.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.PingInterval)); err != nil {
				log.Printf("[Stream] Ping failed: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}

func (c *Client) reconnect(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	err := backoff.RetryNotify(
		func() (err error) {
			conn, err = c.dial(ctx)
			return err
		},
		backoff.WithContext(c.newBackOff(), ctx),
		func(err error, d time.Duration) {
			log.Printf("[Stream] Reconnect error: %v. Will retry after %s", err, d)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconnect to stream: %w", err)
	}
	return conn, nil
}

func (c *Client) newBackOff() backoff.BackOff {
	if c.cfg.ReconnectMaxElapsed <= 0 {
		return &backoff.StopBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	if c.cfg.ReconnectInitialInterval > 0 {
		b.InitialInterval = c.cfg.ReconnectInitialInterval
	}
	b.MaxElapsedTime = c.cfg.ReconnectMaxElapsed
	return b
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}
