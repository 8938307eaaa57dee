package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/openoffers/marketd/pkg/model"
)

// PaymentHandler consumes payment events read off the watcher stream.
type PaymentHandler interface {
	PaymentComplete(p model.CompletedPayment) error
}

// subscribeRequest is the outbound envelope replacing the watched set.
type subscribeRequest struct {
	Type      string           `json:"type"` // "subscribe"
	ID        string           `json:"id"`
	Addresses []common.Address `json:"addresses"`
}

// watcherEvent is the inbound envelope from the watcher stream.
type watcherEvent struct {
	Type    string                  `json:"type"` // "payment"
	Payment *model.CompletedPayment `json:"payment,omitempty"`
}

// Client is a websocket connection to the watcher service. It implements
// Watcher for the registrar and pumps incoming payment events into the
// handler. Reconnects with a flat backoff; after a reconnect the caller
// (registrar refresh loop) re-registers the watch set.
type Client struct {
	url     string
	handler PaymentHandler
	log     *zap.SugaredLogger

	mu     sync.Mutex
	conn   *websocket.Conn
	onDrop func()
}

// SetOnDrop registers a hook invoked whenever the connection is lost,
// typically Registrar.Invalidate so the watch set is re-registered on
// the next refresh.
func (c *Client) SetOnDrop(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDrop = fn
}

func NewClient(url string, handler PaymentHandler, log *zap.SugaredLogger) *Client {
	return &Client{url: url, handler: handler, log: log}
}

// Register sends a subscribe envelope with the full address set and
// returns the subscription id used.
func (c *Client) Register(addresses []common.Address) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			return "", fmt.Errorf("watch: dial %s: %w", c.url, err)
		}
		c.conn = conn
	}

	req := subscribeRequest{
		Type:      "subscribe",
		ID:        uuid.NewString(),
		Addresses: addresses,
	}
	if err := c.conn.WriteJSON(req); err != nil {
		c.conn.Close()
		c.conn = nil
		return "", fmt.Errorf("watch: subscribe: %w", err)
	}
	return req.ID, nil
}

// Listen reads payment events until ctx is cancelled. Connection drops
// are retried; malformed or unknown events are logged and skipped.
func (c *Client) Listen(ctx context.Context) error {
	const retryDelay = 5 * time.Second

	for {
		conn := c.current()
		if conn == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			continue
		}

		var ev watcherEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warnw("watcher stream read failed, reconnecting", "err", err)
			c.drop(conn)
			continue
		}

		if ev.Type != "payment" || ev.Payment == nil {
			c.log.Debugw("ignoring watcher event", "type", ev.Type)
			continue
		}
		if err := c.handler.PaymentComplete(*ev.Payment); err != nil {
			// Collaborator failure; the watcher redelivers, so log and move on.
			c.log.Errorw("payment reconciliation failed", "order", ev.Payment.ID, "err", err)
		}
	}
}

// Close tears down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) drop(conn *websocket.Conn) {
	c.mu.Lock()
	dropped := false
	if c.conn == conn {
		conn.Close()
		c.conn = nil
		dropped = true
	}
	fn := c.onDrop
	c.mu.Unlock()

	if dropped && fn != nil {
		fn()
	}
}
