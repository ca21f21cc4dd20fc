package natsutil

import (
	"context"
	"fmt"
	"time"

	"github.com/calendar-1m/project/internal/messaging"
	"github.com/nats-io/nats.go"
)

type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
}

func ConnectJetStream(url string) (*Client, error) {
	conn, err := nats.Connect(url, nats.Name("calendar-api"))
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		_ = conn.Drain()
		conn.Close()
		return nil, err
	}
	if err := messaging.EnsureStreams(js); err != nil {
		_ = conn.Drain()
		conn.Close()
		return nil, err
	}
	return &Client{Conn: conn, JS: js}, nil
}

func ConnectJetStreamWithRetry(ctx context.Context, url string, timeout time.Duration) (*Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ConnectJetStream(url)
		if err == nil {
			return client, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("connect jetstream timeout after %s: %w", timeout, lastErr)
}

func (c *Client) Close() {
	if c == nil || c.Conn == nil {
		return
	}
	_ = c.Conn.Drain()
	c.Conn.Close()
}

// Connected reports a usable connection for readiness probes.
func (c *Client) Connected() error {
	if c == nil || c.Conn == nil {
		return fmt.Errorf("nats connection is nil")
	}
	if c.Conn.Status() != nats.CONNECTED {
		return fmt.Errorf("nats is not connected: %s", c.Conn.Status().String())
	}
	return nil
}

// JetStreamBus publishes to and subscribes on JetStream subjects.
type JetStreamBus struct {
	JS nats.JetStreamContext
}

func (b JetStreamBus) Publish(subject string, payload []byte) error {
	_, err := b.JS.Publish(subject, payload)
	return err
}

// Subscribe delivers only messages published after the call.
func (b JetStreamBus) Subscribe(subject string, handle func(payload []byte)) (func() error, error) {
	sub, err := b.JS.Subscribe(subject, func(msg *nats.Msg) {
		handle(msg.Data)
	}, nats.DeliverNew())
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}
