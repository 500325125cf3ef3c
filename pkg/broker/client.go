package broker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xhad/siphon/internal/models"
	"github.com/xhad/siphon/pkg/metrics"
)

// ClientConfig holds the AMQP connection settings.
type ClientConfig struct {
	URL         string
	Heartbeat   time.Duration
	DialTimeout time.Duration
}

// Client owns a single AMQP connection and channel and re-establishes
// both on demand after a broker-side close. All methods are safe for
// concurrent use.
type Client struct {
	config ClientConfig

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	dialed bool
}

func NewClient(url string) *Client {
	return NewClientWithConfig(ClientConfig{URL: url})
}

func NewClientWithConfig(config ClientConfig) *Client {
	if config.Heartbeat == 0 {
		config.Heartbeat = 10 * time.Second
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 30 * time.Second
	}

	return &Client{config: config}
}

// Channel returns a live channel, dialing the broker and opening a
// fresh channel if the previous ones were closed.
func (c *Client) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil && c.conn != nil && !c.conn.IsClosed() {
		return c.ch, nil
	}
	c.ch = nil

	if err := c.ensureConnLocked(); err != nil {
		return nil, err
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: open channel: %v", models.ErrConnection, err)
	}
	c.ch = ch
	go c.watchChannel(ch)

	return ch, nil
}

func (c *Client) ensureConnLocked() error {
	if c.conn != nil && !c.conn.IsClosed() {
		return nil
	}

	conn, err := amqp.DialConfig(c.config.URL, amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Dial:      amqp.DefaultDial(c.config.DialTimeout),
	})
	if err != nil {
		return fmt.Errorf("%w: dial: %v", models.ErrConnection, err)
	}

	if c.dialed {
		metrics.BrokerReconnects.Inc()
		slog.Info("Reconnected to AMQP broker")
	}
	c.dialed = true
	c.conn = conn
	go c.watchConn(conn)

	return nil
}

// watchConn drops the cached handles once the broker or network kills
// the connection, so the next Channel call dials again.
func (c *Client) watchConn(conn *amqp.Connection) {
	err := <-conn.NotifyClose(make(chan *amqp.Error, 1))

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.ch = nil
	}
	c.mu.Unlock()

	if err != nil {
		slog.Warn("AMQP connection closed", "error", err)
	}
}

func (c *Client) watchChannel(ch *amqp.Channel) {
	err := <-ch.NotifyClose(make(chan *amqp.Error, 1))

	c.mu.Lock()
	if c.ch == ch {
		c.ch = nil
	}
	c.mu.Unlock()

	if err != nil {
		slog.Warn("AMQP channel closed", "error", err)
	}
}

// IsConnected reports whether the underlying connection is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil && !c.conn.IsClosed()
}

// Close tears down the channel and connection. Failures are logged and
// swallowed so shutdown can always proceed.
func (c *Client) Close() error {
	c.mu.Lock()
	ch, conn := c.ch, c.conn
	c.ch, c.conn = nil, nil
	c.mu.Unlock()

	if ch != nil {
		if err := ch.Close(); err != nil {
			slog.Warn("Failed to close AMQP channel", "error", err)
		}
	}
	if conn != nil && !conn.IsClosed() {
		if err := conn.Close(); err != nil {
			slog.Warn("Failed to close AMQP connection", "error", err)
		}
	}

	return nil
}
