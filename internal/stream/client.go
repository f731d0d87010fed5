// Package stream maintains the persistent WebSocket subscription to the
// Solana RPC provider and normalizes incoming frames into messages for the
// rest of the pipeline.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MessageType classifies the notifications a registered handler can receive.
type MessageType int

const (
	// MessageLogs is a log notification: signature plus raw log lines,
	// requiring a follow-up transaction fetch.
	MessageLogs MessageType = iota
	// MessageTransaction is an inline transaction notification carrying the
	// full transaction payload, dispatched without enrichment.
	MessageTransaction
)

func (t MessageType) String() string {
	switch t {
	case MessageLogs:
		return "logs"
	case MessageTransaction:
		return "transaction"
	default:
		return "unknown"
	}
}

// Message is one normalized provider notification.
type Message struct {
	Type      MessageType
	Signature string
	Slot      uint64
	// Logs are the transaction's log lines (MessageLogs only).
	Logs []string
	// Failed reports a non-null err field on the notification.
	Failed bool
	// Raw is the unparsed result payload (MessageTransaction only).
	Raw json.RawMessage
}

// Handler consumes one normalized message. Handlers run on the read loop's
// dispatch goroutine; slow work belongs behind a queue.
type Handler func(ctx context.Context, msg Message)

// Config holds stream client configuration.
type Config struct {
	// Endpoint is the provider WebSocket URL.
	Endpoint string

	// Programs are the program addresses to subscribe log activity for.
	Programs []string

	// Commitment is the subscription commitment level.
	Commitment string

	// ReconnectBase is the delay unit: attempt n waits base * n.
	ReconnectBase time.Duration

	// MaxReconnectAttempts caps consecutive failed attempts before the
	// client gives up and surfaces a fatal error.
	MaxReconnectAttempts int
}

// DefaultConfig returns sensible defaults for mainnet ingestion.
func DefaultConfig() Config {
	return Config{
		Commitment:           "confirmed",
		ReconnectBase:        2 * time.Second,
		MaxReconnectAttempts: 10,
	}
}

// Client owns one duplex connection to the provider. Subscriptions are not
// persisted by the provider across reconnects, so they are re-issued on
// every successful open.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	handlers  map[MessageType]Handler

	// requestID → program address, for classifying subscription replies.
	pending map[int64]string
	nextID  int64
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = DefaultConfig().ReconnectBase
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = DefaultConfig().MaxReconnectAttempts
	}
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	return &Client{
		cfg:      cfg,
		logger:   logger.With("component", "stream-client"),
		handlers: make(map[MessageType]Handler),
		pending:  make(map[int64]string),
		nextID:   1,
	}
}

// OnMessage registers the handler for one message type. Exactly one handler
// per type; a second registration is a programming error.
func (c *Client) OnMessage(t MessageType, h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.handlers[t]; dup {
		return fmt.Errorf("handler already registered for %s messages", t)
	}
	c.handlers[t] = h
	return nil
}

// IsConnected reports whether the socket is currently live.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Run connects and serves notifications until ctx is cancelled or the
// reconnect budget is exhausted. Exhaustion returns a fatal error so the
// supervisor can alert instead of the process limping along silently.
// Each successful connection resets the attempt counter, so only
// consecutive failures count against the budget.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		subscribed, err := c.connectAndServe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if subscribed {
			attempt = 0
		}
		if err == nil {
			// Clean close requested by the peer; treat like a drop.
			err = fmt.Errorf("connection closed by provider")
		}

		attempt++
		if attempt > c.cfg.MaxReconnectAttempts {
			return fmt.Errorf("reconnect attempts exhausted after %d tries: %w",
				c.cfg.MaxReconnectAttempts, err)
		}

		delay := ReconnectDelay(c.cfg.ReconnectBase, attempt)
		c.logger.Error("stream disconnected, reconnecting",
			"error", err,
			"attempt", attempt,
			"max_attempts", c.cfg.MaxReconnectAttempts,
			"delay", delay,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// ReconnectDelay returns the wait before reconnect attempt n (1-based):
// linearly increasing, base * n.
func ReconnectDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(attempt)
}

// connectAndServe dials, subscribes, and pumps frames until the socket
// breaks. A nil error means the peer closed cleanly. The subscribed
// return reports whether the connection got past the subscribe phase;
// the caller resets its attempt counter only for those.
func (c *Client) connectAndServe(ctx context.Context) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.Endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.cfg.Endpoint, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.pending = make(map[int64]string)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.connected = false
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	c.logger.Info("stream connected", "endpoint", c.cfg.Endpoint)

	if err := c.subscribeAll(conn); err != nil {
		return false, err
	}

	// Close the socket when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			return true, fmt.Errorf("read frame: %w", err)
		}
		c.handleFrame(ctx, frame)
	}
}

// subscribeAll issues one logsSubscribe per watched program.
func (c *Client) subscribeAll(conn *websocket.Conn) error {
	for _, program := range c.cfg.Programs {
		c.mu.Lock()
		id := c.nextID
		c.nextID++
		c.pending[id] = program
		c.mu.Unlock()

		req := map[string]any{
			"jsonrpc": "2.0",
			"id":      id,
			"method":  "logsSubscribe",
			"params": []any{
				map[string]any{"mentions": []string{program}},
				map[string]any{"commitment": c.cfg.Commitment},
			},
		}
		if err := conn.WriteJSON(req); err != nil {
			return fmt.Errorf("subscribe %s: %w", program, err)
		}
	}
	return nil
}

// handleFrame classifies one incoming frame: subscription ack, subscription
// error, logs notification, or inline transaction notification. Malformed
// frames are logged and dropped.
func (c *Client) handleFrame(ctx context.Context, frame []byte) {
	var base struct {
		ID     *int64          `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(frame, &base); err != nil {
		c.logger.Warn("malformed frame dropped", "error", err)
		return
	}

	if base.ID != nil {
		c.handleSubscriptionReply(*base.ID, base.Result, base.Error)
		return
	}

	switch base.Method {
	case "logsNotification":
		c.handleLogsNotification(ctx, base.Params)
	case "transactionNotification":
		c.handleTransactionNotification(ctx, base.Params)
	case "":
		c.logger.Warn("frame with no method dropped")
	default:
		c.logger.Debug("unhandled notification method", "method", base.Method)
	}
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) handleSubscriptionReply(id int64, result json.RawMessage, rpcErr *rpcError) {
	c.mu.Lock()
	program, known := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()

	if !known {
		c.logger.Debug("reply for unknown request id", "id", id)
		return
	}
	if rpcErr != nil {
		// One failed subscription must not take down the others.
		c.logger.Error("subscription rejected",
			"program", program,
			"code", rpcErr.Code,
			"message", rpcErr.Message,
		)
		return
	}

	var subID int64
	if err := json.Unmarshal(result, &subID); err != nil {
		c.logger.Warn("unparseable subscription ack", "program", program, "error", err)
		return
	}
	c.logger.Info("subscription confirmed", "program", program, "subscription_id", subID)
}

func (c *Client) handleLogsNotification(ctx context.Context, params json.RawMessage) {
	var p struct {
		Result struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string   `json:"signature"`
				Err       any      `json:"err"`
				Logs      []string `json:"logs"`
			} `json:"value"`
		} `json:"result"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		c.logger.Warn("malformed logs notification dropped", "error", err)
		return
	}

	c.dispatch(ctx, Message{
		Type:      MessageLogs,
		Signature: p.Result.Value.Signature,
		Slot:      p.Result.Context.Slot,
		Logs:      p.Result.Value.Logs,
		Failed:    p.Result.Value.Err != nil,
	})
}

func (c *Client) handleTransactionNotification(ctx context.Context, params json.RawMessage) {
	var p struct {
		Result struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Signature   string          `json:"signature"`
			Transaction json.RawMessage `json:"transaction"`
		} `json:"result"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		c.logger.Warn("malformed transaction notification dropped", "error", err)
		return
	}

	c.dispatch(ctx, Message{
		Type:      MessageTransaction,
		Signature: p.Result.Signature,
		Slot:      p.Result.Context.Slot,
		Raw:       p.Result.Transaction,
	})
}

func (c *Client) dispatch(ctx context.Context, msg Message) {
	c.mu.RLock()
	h := c.handlers[msg.Type]
	c.mu.RUnlock()

	if h == nil {
		c.logger.Debug("no handler registered", "type", msg.Type)
		return
	}
	h(ctx, msg)
}
