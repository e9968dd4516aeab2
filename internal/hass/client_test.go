package hass

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/hamonitor/internal/infrastructure/config"
)

const testToken = "good-token"

// fakeHA is a minimal Home Assistant WebSocket server. Handlers are keyed by
// command type and return the result payload or an error message.
type fakeHA struct {
	t        *testing.T
	server   *httptest.Server
	handlers map[string]func(cmd map[string]any) (any, *resultError)

	mu       sync.Mutex
	received []map[string]any
	conns    []*websocket.Conn
}

func newFakeHA(t *testing.T) *fakeHA {
	t.Helper()
	f := &fakeHA{t: t, handlers: make(map[string]func(map[string]any) (any, *resultError))}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeHA) url() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/websocket"
}

func (f *fakeHA) cfg() config.HomeAssistantConfig {
	return config.HomeAssistantConfig{
		URL:            f.url(),
		Token:          testToken,
		RequestTimeout: 2 * time.Second,
	}
}

func (f *fakeHA) handle(cmdType string, fn func(map[string]any) (any, *resultError)) {
	f.handlers[cmdType] = fn
}

func (f *fakeHA) commands() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.received...)
}

// dropAll closes every server-side connection.
func (f *fakeHA) dropAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		c.Close()
	}
	f.conns = nil
}

func (f *fakeHA) serve(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"type": "auth_required", "ha_version": "2025.1.0"}); err != nil {
		return
	}
	var auth map[string]any
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	if auth["access_token"] != testToken {
		conn.WriteJSON(map[string]any{"type": "auth_invalid", "message": "Invalid access token"}) //nolint:errcheck
		return
	}
	if err := conn.WriteJSON(map[string]any{"type": "auth_ok", "ha_version": "2025.1.0"}); err != nil {
		return
	}

	for {
		var cmd map[string]any
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		f.mu.Lock()
		f.received = append(f.received, cmd)
		f.mu.Unlock()

		id := cmd["id"]
		cmdType, _ := cmd["type"].(string)
		if cmdType == "ping" {
			conn.WriteJSON(map[string]any{"id": id, "type": "pong"}) //nolint:errcheck
			continue
		}

		handler, ok := f.handlers[cmdType]
		if !ok {
			conn.WriteJSON(map[string]any{ //nolint:errcheck
				"id": id, "type": "result", "success": false,
				"error": resultError{Code: "unknown_command", Message: "Unknown command."},
			})
			continue
		}
		if handler == nil {
			// Never answer.
			continue
		}
		result, herr := handler(cmd)
		reply := map[string]any{"id": id, "type": "result", "success": herr == nil}
		if herr != nil {
			reply["error"] = herr
		} else {
			reply["result"] = result
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

func connect(t *testing.T, f *fakeHA) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Connect(ctx, f.cfg())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConnect_Handshake(t *testing.T) {
	f := newFakeHA(t)
	c := connect(t, f)

	assert.True(t, c.IsConnected())
	assert.Equal(t, "2025.1.0", c.Version())
	assert.NoError(t, c.HealthCheck(context.Background()))
}

func TestConnect_InvalidToken(t *testing.T) {
	f := newFakeHA(t)
	cfg := f.cfg()
	cfg.Token = "wrong"

	_, err := Connect(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthFailed), "got %v", err)
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := config.HomeAssistantConfig{URL: "ws://127.0.0.1:1/api/websocket", Token: testToken}

	_, err := Connect(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectionFailed), "got %v", err)
}

func TestGetStates(t *testing.T) {
	f := newFakeHA(t)
	f.handle("get_states", func(map[string]any) (any, *resultError) {
		return []map[string]any{
			{"entity_id": "sensor.kitchen_temp", "state": "21.5", "attributes": map[string]any{"friendly_name": "Kitchen"}},
			{"entity_id": "light.hall", "state": "unavailable", "attributes": map[string]any{}},
		}, nil
	})
	c := connect(t, f)

	states, err := c.GetStates(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "Kitchen", states[0].FriendlyName())
	assert.Equal(t, "sensor", states[0].Domain())
	assert.True(t, states[1].Unavailable())
	assert.Equal(t, "light.hall", states[1].FriendlyName())
}

func TestRegistries(t *testing.T) {
	f := newFakeHA(t)
	f.handle("config/device_registry/list", func(map[string]any) (any, *resultError) {
		return []map[string]any{{"id": "abcdef0123456789", "name": "Plug", "name_by_user": nil, "disabled_by": nil}}, nil
	})
	f.handle("config/entity_registry/list", func(map[string]any) (any, *resultError) {
		return []map[string]any{
			{"entity_id": "switch.plug", "device_id": "abcdef0123456789", "disabled_by": nil},
			{"entity_id": "sensor.plug_rssi", "device_id": "abcdef0123456789", "disabled_by": "integration"},
		}, nil
	})
	c := connect(t, f)

	devices, err := c.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "Plug", devices[0].DisplayName())
	assert.False(t, devices[0].Disabled())

	entities, err := c.ListEntities(context.Background())
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "abcdef0123456789", entities[0].Owner())
	assert.False(t, entities[0].Disabled())
	assert.True(t, entities[1].Disabled())
}

func TestCallService(t *testing.T) {
	f := newFakeHA(t)
	f.handle("call_service", func(map[string]any) (any, *resultError) {
		return map[string]any{"context": map[string]any{"id": "x"}}, nil
	})
	c := connect(t, f)

	err := c.CallService(context.Background(), "update", "skip", nil, EntityTarget("update.core"))
	require.NoError(t, err)

	cmds := f.commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "call_service", cmds[0]["type"])
	assert.Equal(t, "update", cmds[0]["domain"])
	assert.Equal(t, "skip", cmds[0]["service"])
	assert.NotContains(t, cmds[0], "service_data")
	target, ok := cmds[0]["target"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"update.core"}, target["entity_id"])
}

func TestCallService_Failure(t *testing.T) {
	f := newFakeHA(t)
	f.handle("call_service", func(map[string]any) (any, *resultError) {
		return nil, &resultError{Code: "service_not_found", Message: "Service not found."}
	})
	c := connect(t, f)

	err := c.CallService(context.Background(), "update", "install", map[string]any{"backup": true}, EntityTarget("update.x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommandFailed))
	assert.Contains(t, err.Error(), "service_not_found")
}

func TestListTodoItems(t *testing.T) {
	f := newFakeHA(t)
	f.handle("todo/item/list", func(cmd map[string]any) (any, *resultError) {
		if cmd["entity_id"] != "todo.shopping" {
			return nil, &resultError{Code: "not_found", Message: "Entity not found"}
		}
		return map[string]any{"items": []map[string]any{
			{"uid": "1", "summary": "Milk", "status": "needs_action", "due": "2026-10-18"},
			{"uid": "2", "summary": "Eggs", "status": "completed"},
		}}, nil
	})
	c := connect(t, f)

	items, err := c.ListTodoItems(context.Background(), "todo.shopping")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.NotNil(t, items[0].Due)
	assert.Equal(t, "2026-10-18", *items[0].Due)
	assert.Nil(t, items[1].Due)

	_, err = c.ListTodoItems(context.Background(), "sensor.shopping")
	assert.True(t, errors.Is(err, ErrInvalidEntity))
}

func TestCall_Timeout(t *testing.T) {
	f := newFakeHA(t)
	f.handle("get_states", nil)
	cfg := f.cfg()
	cfg.RequestTimeout = 100 * time.Millisecond

	c, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.GetStates(context.Background())
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)
}

func TestCall_ContextCancelled(t *testing.T) {
	f := newFakeHA(t)
	f.handle("get_states", nil)
	c := connect(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.GetStates(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestConcurrentCalls(t *testing.T) {
	f := newFakeHA(t)
	f.handle("get_states", func(map[string]any) (any, *resultError) {
		return []map[string]any{{"entity_id": "sensor.a", "state": "1"}}, nil
	})
	c := connect(t, f)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetStates(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	f := newFakeHA(t)
	f.handle("get_states", func(map[string]any) (any, *resultError) {
		return []map[string]any{}, nil
	})
	c := connect(t, f)

	dropped := make(chan struct{}, 1)
	c.SetOnDisconnect(func(error) { dropped <- struct{}{} })

	f.dropAll()
	select {
	case <-dropped:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect callback not invoked")
	}
	assert.False(t, c.IsConnected())

	_, err := c.GetStates(context.Background())
	require.NoError(t, err)
	assert.True(t, c.IsConnected())
}

func TestClose_Idempotent(t *testing.T) {
	f := newFakeHA(t)
	c := connect(t, f)

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
	assert.True(t, errors.Is(c.HealthCheck(context.Background()), ErrNotConnected))
}

func TestCommandEncoding(t *testing.T) {
	b, err := json.Marshal(command{ID: 7, Type: "todo/item/list", Extra: map[string]any{"entity_id": "todo.x", "id": 99}})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, float64(7), m["id"], "id in Extra must not override the command id")
	assert.Equal(t, "todo/item/list", m["type"])
	assert.Equal(t, "todo.x", m["entity_id"])
}
