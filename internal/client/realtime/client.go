// Package realtime maintains the duplex channel to the sync service. The
// channel is a push path only: everything it delivers is also reachable
// through the next pull, so a lost message is an inefficiency, not data loss.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/opsdeck/syncline/pkg/api"
)

// Handler receives channel lifecycle and message callbacks. Callbacks are
// invoked from the channel's own goroutine, one at a time.
type Handler interface {
	// OnConnect fires after every successful (re)connect; the engine uses
	// it to trigger an immediate sync for anything missed while down.
	OnConnect()

	// OnMessage delivers one decoded channel message.
	OnMessage(msg api.ChannelMessage)

	// OnDisconnect fires when the connection drops and reconnection is
	// about to begin.
	OnDisconnect(err error)

	// OnDown fires when reconnection attempts are exhausted; the channel
	// stays down until Start is called again.
	OnDown()
}

// Config bounds the reconnect schedule.
type Config struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries uint64
}

// DefaultConfig matches the documented reconnect behavior: 1s doubling to a
// 30s cap, ten attempts before requiring a manual retry.
func DefaultConfig() Config {
	return Config{Base: time.Second, Cap: 30 * time.Second, MaxRetries: 10}
}

// Client dials and supervises the websocket channel.
type Client struct {
	url     string
	cfg     Config
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a channel client. baseURL is the sync service HTTP base;
// token is the signed client identity carried as a query parameter.
func New(baseURL, token string, cfg Config, handler Handler, logger *slog.Logger) *Client {
	return &Client{
		url:     fmt.Sprintf("%s/api/v1/sync/ws?token=%s", baseURL, token),
		cfg:     cfg,
		handler: handler,
		logger:  logger,
	}
}

// Start begins connecting in the background. Calling Start while the
// channel is already running is a no-op; calling it after the channel gave
// up restarts the reconnect schedule.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(runCtx)
}

// Stop closes the channel and waits for the supervisor goroutine to exit.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done
}

func (c *Client) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		close(c.done)
		c.mu.Unlock()
	}()

	backoff := NewBackoff(c.cfg.Base, c.cfg.Cap, c.cfg.MaxRetries)

	for {
		conn, _, err := websocket.Dial(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay, stop := backoff.Next()
			if stop {
				c.logger.Warn("realtime channel gave up reconnecting", "error", err)
				c.handler.OnDown()
				return
			}
			c.logger.Debug("realtime connect failed, retrying", "delay", delay, "error", err)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return
			}
		}

		// A successful connect resets the schedule for the next outage.
		backoff = NewBackoff(c.cfg.Base, c.cfg.Cap, c.cfg.MaxRetries)
		c.logger.Info("realtime channel connected")
		c.handler.OnConnect()

		readErr := c.readLoop(ctx, conn)
		if ctx.Err() != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "client stopping")
			return
		}
		c.logger.Warn("realtime channel disconnected", "error", readErr)
		c.handler.OnDisconnect(readErr)
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	defer conn.CloseNow()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var msg api.ChannelMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("failed to decode channel message", "error", err)
			continue
		}
		c.handler.OnMessage(msg)
	}
}
