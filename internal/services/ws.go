package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Riboost-Studio/perfect-menu-print-agent/internal/model"
)

// --- WebSocket Agent Logic ---

var errNotConnected = errors.New("order channel not connected")

// Dispatcher accepts jobs from the channel. *Engine implements it.
type Dispatcher interface {
	Enqueue(order model.Order, requestID string) (*Job, error)
}

// ChannelState is the lifecycle state of the upstream connection.
type ChannelState string

const (
	ChannelIdle       ChannelState = "idle"
	ChannelConnecting ChannelState = "connecting"
	ChannelOpen       ChannelState = "open"
	ChannelClosed     ChannelState = "closed"
)

type ChannelOptions struct {
	URL          string
	Token        string
	RestaurantID string
	AgentName    string
	App          model.AppInfo

	ReconnectDelay time.Duration
	// ReadTimeout closes a session that has been silent for this long.
	// Websocket pings are sent at half this interval to keep it alive.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// PendingAcks bounds the acknowledgements kept while disconnected.
	PendingAcks int

	Dialer   *websocket.Dialer
	Engine   Dispatcher
	Settings SettingsStore
	Notifier Notifier
	Metrics  *Metrics
	Logger   *slog.Logger
}

// ChannelClient keeps one session to the upstream order service alive,
// feeds print_order messages to the engine and answers each with exactly
// one print_done.
type ChannelClient struct {
	opts   ChannelOptions
	logger *slog.Logger

	// reconnect receives when the pending reconnect timer fires.
	reconnect chan struct{}

	mu             sync.Mutex
	state          ChannelState
	conn           *websocket.Conn
	reconnectTimer *time.Timer
	pending        []model.PrintDone
	inflight       map[string]bool
	completed      map[string]model.PrintDone
	completedOrder []string

	// gorilla/websocket allows one concurrent writer per connection;
	// control frames are exempt.
	writeMu sync.Mutex
}

// completedAcks is how many finished requests are remembered for
// answering upstream retries without printing twice.
const completedAcks = 128

func NewChannelClient(opts ChannelOptions) *ChannelClient {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PendingAcks <= 0 {
		opts.PendingAcks = 256
	}
	if opts.AgentName == "" {
		opts.AgentName = "default-agent"
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ChannelClient{
		opts:      opts,
		logger:    logger,
		reconnect: make(chan struct{}, 1),
		state:     ChannelIdle,
		inflight:  map[string]bool{},
		completed: map[string]model.PrintDone{},
	}
}

func (c *ChannelClient) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *ChannelClient) setState(state ChannelState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// Run connects and serves sessions until ctx is cancelled, waiting the
// reconnect delay after every closed or failed session.
func (c *ChannelClient) Run(ctx context.Context) error {
	defer c.cancelReconnect()

	for {
		c.setState(ChannelConnecting)
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("connection failed", "error", err, "retry_in", c.opts.ReconnectDelay)
			c.opts.Notifier.Notify(EventError, fmt.Sprintf("Order server unreachable: %v", err))
		} else {
			c.serve(ctx, conn)
		}

		c.setState(ChannelClosed)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.scheduleReconnect()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.reconnect:
		}
	}
}

// scheduleReconnect arms the reconnect timer unless one is already
// pending. It reports whether a new timer was armed.
func (c *ChannelClient) scheduleReconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconnectTimer != nil {
		return false
	}
	c.reconnectTimer = time.AfterFunc(c.opts.ReconnectDelay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()
		select {
		case c.reconnect <- struct{}{}:
		default:
		}
	})
	return true
}

func (c *ChannelClient) cancelReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// restaurantID prefers the configured id and falls back to the saved one.
func (c *ChannelClient) restaurantID() string {
	if c.opts.RestaurantID != "" {
		return c.opts.RestaurantID
	}
	if c.opts.Settings != nil {
		return c.opts.Settings.Get(model.SettingRestaurantID)
	}
	return ""
}

func (c *ChannelClient) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing channel URL: %w", err)
	}
	q := u.Query()
	if c.opts.Token != "" {
		q.Set("token", c.opts.Token)
	}
	q.Set("restaurantId", c.restaurantID())
	q.Set("role", "agent")
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.opts.App.Name != "" {
		header.Set("User-Agent", c.opts.App.UserAgent())
	}

	c.logger.Info("connecting to order server", "url", u.Redacted())
	conn, _, err := c.opts.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// serve runs one session: handshake, pending ack flush, then the read
// loop until the connection drops or ctx is cancelled.
func (c *ChannelClient) serve(ctx context.Context, conn *websocket.Conn) {
	// The hello goes out before the session is published so no ack can
	// overtake it.
	hello := model.NewHello(c.restaurantID(), c.opts.AgentName)
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := conn.WriteJSON(hello); err != nil {
		c.logger.Warn("failed to send hello", "error", err)
		conn.Close()
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.state = ChannelOpen
	c.mu.Unlock()
	defer c.closeSession(conn)

	c.opts.Metrics.sessionOpened()
	c.logger.Info("connected to order server", "restaurant_id", hello.RestaurantID)
	c.opts.Notifier.Notify(EventConnected, "Order server: online")
	c.flushPending()

	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "agent shutting down"),
				time.Now().Add(time.Second))
			conn.Close()
		case <-sessionDone:
		}
	}()

	if timeout := c.opts.ReadTimeout; timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(timeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(timeout))
			return nil
		})
		go c.keepalive(conn, timeout/2, sessionDone)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if isExpectedClose(err) || ctx.Err() != nil {
				c.logger.Info("disconnected from order server", "reason", err)
			} else {
				c.logger.Warn("read error", "error", err)
				c.opts.Notifier.Notify(EventError, fmt.Sprintf("Order server error: %v", err))
			}
			c.opts.Notifier.Notify(EventDisconnected, "Order server: offline")
			return
		}
		if c.opts.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		}
		c.handleMessage(data)
	}
}

// keepalive sends websocket pings until the session ends.
func (c *ChannelClient) keepalive(conn *websocket.Conn, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

// closeSession drops conn if it is still the current session. Safe to
// call from several goroutines for the same conn.
func (c *ChannelClient) closeSession(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

func (c *ChannelClient) handleMessage(data []byte) {
	var msg model.Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("dropping malformed message", "error", err)
		return
	}

	switch msg.Type {
	case model.MessageTypePing:
		if err := c.send(model.Pong{Type: model.MessageTypePong}); err != nil {
			c.logger.Warn("failed to send pong", "error", err)
		}

	case model.MessageTypeNewOrder:
		c.handlePrintOrder(msg)

	default:
		c.logger.Debug("ignoring message", "type", msg.Type)
	}
}

func (c *ChannelClient) handlePrintOrder(msg model.Inbound) {
	if msg.RequestID == "" || len(msg.Order) == 0 || string(msg.Order) == "null" {
		c.logger.Warn("dropping print_order without requestId or order", "request_id", msg.RequestID)
		return
	}
	var order model.Order
	if err := json.Unmarshal(msg.Order, &order); err != nil {
		c.logger.Warn("dropping print_order with unreadable order", "request_id", msg.RequestID, "error", err)
		return
	}
	logger := c.logger.With("request_id", msg.RequestID, "order_id", order.ID)

	c.mu.Lock()
	if c.inflight[msg.RequestID] {
		c.mu.Unlock()
		logger.Info("duplicate print_order while printing, ignoring")
		return
	}
	if ack, ok := c.completed[msg.RequestID]; ok {
		c.mu.Unlock()
		logger.Info("duplicate print_order already printed, repeating ack")
		c.deliver(ack)
		return
	}
	c.inflight[msg.RequestID] = true
	c.mu.Unlock()

	logger.Info("print order received")
	c.opts.Notifier.Notify(EventPrinting, fmt.Sprintf("Order received: #%s", order.ID))

	job, err := c.opts.Engine.Enqueue(order, msg.RequestID)
	if err != nil {
		c.complete(model.NewPrintDone(msg.RequestID, order.ID, model.PrintResult{}, err))
		return
	}
	go func() {
		<-job.Done()
		result, err := job.Result()
		c.complete(model.NewPrintDone(msg.RequestID, order.ID, result, err))
	}()
}

// complete records the final ack for a request and delivers it. Only
// successful acks are remembered; a failed request may be resubmitted
// under the same requestId and is printed again.
func (c *ChannelClient) complete(ack model.PrintDone) {
	c.mu.Lock()
	delete(c.inflight, ack.RequestID)
	if !ack.Success {
		c.mu.Unlock()
		c.deliver(ack)
		return
	}
	if _, ok := c.completed[ack.RequestID]; !ok {
		c.completedOrder = append(c.completedOrder, ack.RequestID)
		if len(c.completedOrder) > completedAcks {
			delete(c.completed, c.completedOrder[0])
			c.completedOrder = c.completedOrder[1:]
		}
	}
	c.completed[ack.RequestID] = ack
	c.mu.Unlock()

	c.deliver(ack)
}

// deliver sends ack on the current session, or keeps it for the next one
// when the channel is down.
func (c *ChannelClient) deliver(ack model.PrintDone) {
	err := c.send(ack)
	if err == nil {
		c.opts.Metrics.ack("sent")
		c.logger.Info("print_done sent", "request_id", ack.RequestID, "order_id", ack.OrderID, "success", ack.Success)
		return
	}

	c.logger.Warn("print_done held until reconnect", "request_id", ack.RequestID, "error", err)
	c.hold(ack)
}

// hold appends ack to the outbox. A session published after the failed
// send may already have flushed the outbox, so when one is open the
// outbox is flushed again here.
func (c *ChannelClient) hold(ack model.PrintDone) {
	c.mu.Lock()
	c.pending = append(c.pending, ack)
	dropped := 0
	if over := len(c.pending) - c.opts.PendingAcks; over > 0 {
		dropped = over
		c.pending = c.pending[over:]
	}
	open := c.conn != nil
	c.mu.Unlock()

	c.opts.Metrics.ack("pending")
	if dropped > 0 {
		c.opts.Metrics.ack("dropped")
		c.logger.Error("pending acks overflowed", "dropped", dropped)
	}
	if open {
		c.flushPending()
	}
}

// flushPending resends acks held while disconnected, oldest first. On
// failure the unsent acks stay queued for the next session.
func (c *ChannelClient) flushPending() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for i, ack := range pending {
		if err := c.send(ack); err != nil {
			c.mu.Lock()
			c.pending = append(append([]model.PrintDone(nil), pending[i:]...), c.pending...)
			c.mu.Unlock()
			c.logger.Warn("failed to flush pending acks", "remaining", len(pending)-i, "error", err)
			return
		}
		c.opts.Metrics.ack("sent")
	}
	if len(pending) > 0 {
		c.logger.Info("flushed pending acks", "count", len(pending))
	}
}

// send writes one JSON message on the current session. A failed write
// closes the session so Run reconnects.
func (c *ChannelClient) send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	err := conn.WriteJSON(v)
	c.writeMu.Unlock()

	if err != nil {
		c.closeSession(conn)
		return err
	}
	return nil
}

// isExpectedClose reports whether err is a normal end of session rather
// than a fault worth surfacing.
func isExpectedClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
