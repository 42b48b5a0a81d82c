// Package nats holds the NATS client used for outbound notification events.
package nats

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/paperdesk/be-doc-approvals/internal/platform/errors"
)

// Client wraps a NATS connection with JetStream publishing.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// Connect dials the NATS server. Reconnects are handled by the client library.
func Connect(url, name string) (*Client, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to connect to NATS")
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to create JetStream context")
	}

	return &Client{conn: conn, js: js}, nil
}

// Publish sends data to subject, honoring ctx cancellation.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.js.Publish(subject, data, nats.Context(ctx))
	return err
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Drain()
}
