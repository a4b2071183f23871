// Package ingest streams measurement rows into a collection store over
// WebSocket, for recorders that publish live rather than drop files.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/your-org/signal-tube/internal/collection"
)

// Row is one measurement sample on the wire. Rows for the same unit are
// expected to arrive contiguously and in index order.
type Row struct {
	Unit   string             `json:"unit"`
	Index  float64            `json:"index"`
	Values map[string]float64 `json:"values"`
}

// Client reads rows from a WebSocket feed and accumulates them into units
// through a collection.Builder.
type Client struct {
	url     string
	builder *collection.Builder
	logger  *zap.Logger

	dialRetries int
	backoff     time.Duration
}

// NewClient creates a client for the given feed URL.
func NewClient(url string, builder *collection.Builder, logger *zap.Logger) *Client {
	return &Client{
		url:         url,
		builder:     builder,
		logger:      logger,
		dialRetries: 5,
		backoff:     time.Second,
	}
}

// Run connects and consumes rows until the feed closes or the context is
// cancelled, then flushes the unit under construction. The initial dial is
// retried with exponential backoff.
func (c *Client) Run(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.logger.Info("Connected to ingest feed", zap.String("url", c.url))

	done := make(chan error, 1)
	go func() { done <- c.readLoop(conn) }()

	select {
	case err := <-done:
		if flushErr := c.builder.Flush(); flushErr != nil {
			return flushErr
		}
		return err
	case <-ctx.Done():
		// Unblocks the read loop.
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		<-done
		if err := c.builder.Flush(); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	backoff := c.backoff
	var lastErr error
	for attempt := 1; attempt <= c.dialRetries; attempt++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		c.logger.Error("Dial error",
			zap.Int("attempt", attempt),
			zap.Int("maxRetries", c.dialRetries),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", c.url, c.dialRetries, lastErr)
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("Ingest feed closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}
		var row Row
		if err := json.Unmarshal(message, &row); err != nil {
			c.logger.Error("Skipping malformed row", zap.ByteString("message", message), zap.Error(err))
			continue
		}
		if err := c.builder.Add(row.Unit, row.Index, row.Values); err != nil {
			return fmt.Errorf("failed to buffer row for unit %s: %w", row.Unit, err)
		}
	}
}
