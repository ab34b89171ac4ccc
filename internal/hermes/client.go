// Package hermes publishes StudentHub events on NATS.
package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectChatAnswered carries one ChatAnswered per delivered answer.
const SubjectChatAnswered = "studenthub.chat.answered"

// ChatAnswered is emitted after an answer reaches a user, whatever its source.
type ChatAnswered struct {
	UserID      int64     `json:"user_id,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	Source      string    `json:"source"`
	BackendName string    `json:"backend_name,omitempty"`
	BackendKind string    `json:"backend_kind,omitempty"`
	Channel     string    `json:"channel"`
	Success     bool      `json:"success"`
	Timestamp   time.Time `json:"timestamp"`
}

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("studenthub"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// PublishChatAnswered is the typed form of Publish used by the chat service.
func (c *Client) PublishChatAnswered(ev ChatAnswered) error {
	return c.Publish(SubjectChatAnswered, ev)
}

func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}
