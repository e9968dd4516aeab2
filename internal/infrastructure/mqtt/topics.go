package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "hamonitor"

// Topics builds the hamonitor topic tree under a common prefix.
//
//	hamonitor/status              retained online/offline marker (also the LWT)
//	hamonitor/offline/devices     retained list of offline devices
//	hamonitor/offline/entities    retained list of offline entities
//	hamonitor/updates             retained update buckets
//	hamonitor/balance             retained balance readings
//	hamonitor/summary             retained per-poll counts
//	hamonitor/command/refresh     inbound: any payload triggers a poll
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix. Leading and trailing slashes
// are trimmed and an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	p := strings.Trim(strings.TrimSpace(prefix), "/")
	if p == "" {
		p = DefaultTopicPrefix
	}
	return Topics{prefix: p}
}

// Prefix returns the root segment.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

func (t Topics) join(parts ...string) string {
	return t.Prefix() + "/" + strings.Join(parts, "/")
}

// Status is the retained availability topic.
func (t Topics) Status() string { return t.join("status") }

// OfflineDevices carries the offline device list.
func (t Topics) OfflineDevices() string { return t.join("offline", "devices") }

// OfflineEntities carries the offline entity list.
func (t Topics) OfflineEntities() string { return t.join("offline", "entities") }

// Updates carries the pending update buckets.
func (t Topics) Updates() string { return t.join("updates") }

// Balance carries the balance readings.
func (t Topics) Balance() string { return t.join("balance") }

// Summary carries the per-poll counts.
func (t Topics) Summary() string { return t.join("summary") }

// Command returns the inbound topic for a named command.
//
// Example: hamonitor/command/refresh
func (t Topics) Command(name string) string { return t.join("command", name) }

// Refresh is shorthand for Command("refresh").
func (t Topics) Refresh() string { return t.Command("refresh") }

// AllCommands matches every inbound command.
func (t Topics) AllCommands() string { return t.join("command", "#") }
