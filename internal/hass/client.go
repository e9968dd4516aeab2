package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/hamonitor/internal/infrastructure/config"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultRequestTimeout   = 30 * time.Second
	writeWait               = 10 * time.Second
)

// Client is a Home Assistant WebSocket API client.
//
// One connection is shared by all callers. Each command carries a unique id
// and its result is routed back to the waiting caller by a single read loop.
// A dropped connection fails every pending command with ErrNotConnected; the
// next command redials.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	cfg    config.HomeAssistantConfig
	dialer *websocket.Dialer

	conn      *websocket.Conn
	haVersion string
	connected bool
	connMu    sync.Mutex

	writeMu sync.Mutex

	nextID  atomic.Int64
	pending map[int64]chan envelope
	pendMu  sync.Mutex

	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Connect dials Home Assistant and completes the auth handshake.
//
// Parameters:
//   - ctx: Bounds the dial and handshake
//   - cfg: Home Assistant section of config.yaml
//
// Returns:
//   - *Client: Authenticated client ready for commands
//   - error: ErrConnectionFailed or ErrAuthFailed (wrapped)
func Connect(ctx context.Context, cfg config.HomeAssistantConfig) (*Client, error) {
	c := New(cfg)
	if err := c.dial(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// New returns a client that connects lazily on its first command.
func New(cfg config.HomeAssistantConfig) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	return &Client{
		cfg:     cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout},
		pending: make(map[int64]chan envelope),
	}
}

// dial opens a connection and authenticates. Caller must not hold connMu.
func (c *Client) dial(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.connected {
		return nil
	}

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	version, err := authenticate(ctx, conn, c.cfg.Token)
	if err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.haVersion = version
	c.connected = true

	if logger := c.getLogger(); logger != nil {
		logger.Info("connected to home assistant", "url", c.cfg.URL, "ha_version", version)
	}

	go c.readLoop(conn)
	return nil
}

// authenticate runs the auth_required / auth / auth_ok exchange.
func authenticate(ctx context.Context, conn *websocket.Conn, token string) (string, error) {
	deadline := time.Now().Add(defaultHandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return "", fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer conn.SetReadDeadline(time.Time{}) //nolint:errcheck // reset only

	var hello envelope
	if err := conn.ReadJSON(&hello); err != nil {
		return "", fmt.Errorf("%w: reading auth_required: %w", ErrConnectionFailed, err)
	}
	if hello.Type != msgAuthRequired {
		return "", fmt.Errorf("%w: unexpected first message %q", ErrConnectionFailed, hello.Type)
	}

	conn.SetWriteDeadline(deadline) //nolint:errcheck // deadline errors surface on write
	if err := conn.WriteJSON(authMessage{Type: msgAuth, AccessToken: token}); err != nil {
		return "", fmt.Errorf("%w: sending auth: %w", ErrConnectionFailed, err)
	}

	var reply envelope
	if err := conn.ReadJSON(&reply); err != nil {
		return "", fmt.Errorf("%w: reading auth reply: %w", ErrConnectionFailed, err)
	}
	switch reply.Type {
	case msgAuthOK:
		if reply.HAVersion != "" {
			return reply.HAVersion, nil
		}
		return hello.HAVersion, nil
	case msgAuthInvalid:
		return "", fmt.Errorf("%w: %s", ErrAuthFailed, reply.Message)
	default:
		return "", fmt.Errorf("%w: unexpected auth reply %q", ErrConnectionFailed, reply.Type)
	}
}

// readLoop delivers results to waiting callers until the connection fails.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		if msg.Type != msgResult && msg.Type != msgPong {
			continue
		}

		c.pendMu.Lock()
		ch, ok := c.pending[msg.ID]
		if ok {
			delete(c.pending, msg.ID)
		}
		c.pendMu.Unlock()

		if ok {
			ch <- msg
		}
	}
}

// handleDisconnect marks the connection dead and fails pending commands.
func (c *Client) handleDisconnect(conn *websocket.Conn, err error) {
	c.connMu.Lock()
	if c.conn != conn {
		// Already replaced by Close or a redial.
		c.connMu.Unlock()
		return
	}
	c.connected = false
	c.conn = nil
	c.connMu.Unlock()
	conn.Close()

	c.pendMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("home assistant connection lost", "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// call sends one command and decodes its result into out (which may be nil).
func (c *Client) call(ctx context.Context, cmdType string, extra map[string]any, out any) error {
	if err := c.dial(ctx); err != nil {
		return err
	}

	id := c.nextID.Add(1)
	ch := make(chan envelope, 1)

	c.pendMu.Lock()
	c.pending[id] = ch
	c.pendMu.Unlock()

	if err := c.write(command{ID: id, Type: cmdType, Extra: extra}); err != nil {
		c.forget(id)
		return err
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case msg, ok := <-ch:
		if !ok {
			return fmt.Errorf("%s: %w", cmdType, ErrNotConnected)
		}
		return decodeResult(cmdType, msg, out)
	case <-timer.C:
		c.forget(id)
		return fmt.Errorf("%s: %w after %v", cmdType, ErrTimeout, c.cfg.RequestTimeout)
	case <-ctx.Done():
		c.forget(id)
		return fmt.Errorf("%s: %w", cmdType, ctx.Err())
	}
}

func (c *Client) write(v any) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // deadline errors surface on write
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	return nil
}

func (c *Client) forget(id int64) {
	c.pendMu.Lock()
	delete(c.pending, id)
	c.pendMu.Unlock()
}

func decodeResult(cmdType string, msg envelope, out any) error {
	if msg.Type == msgPong {
		return nil
	}
	if !msg.Success {
		if msg.Error != nil {
			return fmt.Errorf("%s: %w: %s: %s", cmdType, ErrCommandFailed, msg.Error.Code, msg.Error.Message)
		}
		return fmt.Errorf("%s: %w", cmdType, ErrCommandFailed)
	}
	if out == nil || len(msg.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Result, out); err != nil {
		return fmt.Errorf("%s: decoding result: %w", cmdType, err)
	}
	return nil
}

// GetStates returns every entity state.
func (c *Client) GetStates(ctx context.Context) ([]EntityState, error) {
	var states []EntityState
	if err := c.call(ctx, cmdGetStates, nil, &states); err != nil {
		return nil, err
	}
	return states, nil
}

// ListDevices returns the device registry.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	if err := c.call(ctx, cmdListDevices, nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// ListEntities returns the entity registry.
func (c *Client) ListEntities(ctx context.Context) ([]EntityRegistration, error) {
	var entities []EntityRegistration
	if err := c.call(ctx, cmdListEntities, nil, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// CallService invokes a Home Assistant service.
//
// Parameters:
//   - domain, service: e.g. "update", "install"
//   - data: service_data payload (may be nil)
//   - target: entities the service acts on
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any, target Target) error {
	extra := map[string]any{
		"domain":  domain,
		"service": service,
		"target":  target,
	}
	if len(data) > 0 {
		extra["service_data"] = data
	}
	return c.call(ctx, cmdCallService, extra, nil)
}

// ListTodoItems returns the items of a to-do list entity.
func (c *Client) ListTodoItems(ctx context.Context, entityID string) ([]TodoItem, error) {
	if Domain(entityID) != "todo" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEntity, entityID)
	}
	var res todoListResult
	if err := c.call(ctx, cmdTodoItemList, map[string]any{"entity_id": entityID}, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// Ping sends a ping command and waits for the pong.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, msgPing, nil, nil)
}

// Close closes the connection. Pending commands fail with ErrNotConnected.
func (c *Client) Close() error {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.connMu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage, //nolint:errcheck // best effort
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := conn.Close()

	c.pendMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendMu.Unlock()

	return err
}

// HealthCheck pings Home Assistant when connected.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("hass health check: %w", ctx.Err())
	default:
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return c.Ping(ctx)
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.connected
}

// Version returns the Home Assistant version reported during the handshake.
func (c *Client) Version() string {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.haVersion
}

// SetOnDisconnect sets a callback invoked when the connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection events.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
