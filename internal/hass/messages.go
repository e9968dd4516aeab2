package hass

import "encoding/json"

// Message types used on the Home Assistant WebSocket API.
const (
	msgAuthRequired = "auth_required"
	msgAuth         = "auth"
	msgAuthOK       = "auth_ok"
	msgAuthInvalid  = "auth_invalid"
	msgResult       = "result"
	msgPing         = "ping"
	msgPong         = "pong"
)

// Command types.
const (
	cmdGetStates    = "get_states"
	cmdListDevices  = "config/device_registry/list"
	cmdListEntities = "config/entity_registry/list"
	cmdCallService  = "call_service"
	cmdTodoItemList = "todo/item/list"
)

// envelope is the common shape of every server message. Fields that do not
// apply to a given type are left zero.
type envelope struct {
	ID        int64           `json:"id,omitempty"`
	Type      string          `json:"type"`
	HAVersion string          `json:"ha_version,omitempty"`
	Message   string          `json:"message,omitempty"`
	Success   bool            `json:"success,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *resultError    `json:"error,omitempty"`
}

type resultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type authMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

// command is an outgoing request. Extra carries the command-specific fields,
// which are flattened next to id and type when encoded.
type command struct {
	ID    int64
	Type  string
	Extra map[string]any
}

// MarshalJSON implements json.Marshaler.
func (c command) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(c.Extra)+2)
	for k, v := range c.Extra {
		m[k] = v
	}
	m["id"] = c.ID
	m["type"] = c.Type
	return json.Marshal(m)
}

type todoListResult struct {
	Items []TodoItem `json:"items"`
}
