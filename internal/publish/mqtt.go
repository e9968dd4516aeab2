package publish

import (
	"errors"
	"time"

	"github.com/nerrad567/hamonitor/internal/balance"
	"github.com/nerrad567/hamonitor/internal/infrastructure/mqtt"
	"github.com/nerrad567/hamonitor/internal/monitor"
	"github.com/nerrad567/hamonitor/internal/offline"
	"github.com/nerrad567/hamonitor/internal/updates"
)

// JSONPublisher is the part of *mqtt.Client used for state topics.
type JSONPublisher interface {
	PublishJSON(topic string, v any) error
}

// Logger is the logging interface used by the publishers.
type Logger interface {
	Warn(msg string, args ...any)
}

// OfflineDevicesPayload is published on <prefix>/offline/devices.
type OfflineDevicesPayload struct {
	PollID  string                  `json:"poll_id"`
	TakenAt time.Time               `json:"taken_at"`
	Known   bool                    `json:"known"`
	Count   int                     `json:"count"`
	Devices []offline.OfflineDevice `json:"devices"`
}

// OfflineEntitiesPayload is published on <prefix>/offline/entities.
type OfflineEntitiesPayload struct {
	PollID   string                  `json:"poll_id"`
	TakenAt  time.Time               `json:"taken_at"`
	Known    bool                    `json:"known"`
	Count    int                     `json:"count"`
	Entities []offline.OfflineEntity `json:"entities"`
}

// UpdatesPayload is published on <prefix>/updates.
type UpdatesPayload struct {
	PollID     string                 `json:"poll_id"`
	TakenAt    time.Time              `json:"taken_at"`
	Known      bool                   `json:"known"`
	Total      int                    `json:"total"`
	Core       []updates.UpdateRecord `json:"core"`
	ThirdParty []updates.UpdateRecord `json:"third_party"`
}

// BalancePayload is published on <prefix>/balance.
type BalancePayload struct {
	PollID   string            `json:"poll_id"`
	TakenAt  time.Time         `json:"taken_at"`
	Readings []balance.Reading `json:"readings"`
}

// SummaryPayload is published on <prefix>/summary.
type SummaryPayload struct {
	PollID  string    `json:"poll_id"`
	TakenAt time.Time `json:"taken_at"`
	Error   string    `json:"error,omitempty"`
	monitor.Summary
}

// MQTTPublisher publishes every snapshot as retained JSON documents.
type MQTTPublisher struct {
	client JSONPublisher
	topics mqtt.Topics
	logger Logger
}

// NewMQTTPublisher returns a publisher writing under topics.
func NewMQTTPublisher(client JSONPublisher, topics mqtt.Topics, logger Logger) *MQTTPublisher {
	return &MQTTPublisher{client: client, topics: topics, logger: logger}
}

// OnSnapshot implements monitor.Subscriber. Every topic is attempted even
// when an earlier one fails.
func (p *MQTTPublisher) OnSnapshot(snap *monitor.Snapshot) {
	if err := p.Publish(snap); err != nil {
		p.logger.Warn("publishing snapshot to MQTT failed", "poll_id", snap.ID, "error", err)
	}
}

// Publish writes all state topics for snap and joins the failures.
func (p *MQTTPublisher) Publish(snap *monitor.Snapshot) error {
	devices := nonNil(snap.Offline.Devices)
	entities := nonNil(snap.Offline.Entities)
	core := nonNil(snap.Updates.Core)
	third := nonNil(snap.Updates.ThirdParty)

	messages := []struct {
		topic string
		body  any
	}{
		{p.topics.OfflineDevices(), OfflineDevicesPayload{
			PollID: snap.ID, TakenAt: snap.TakenAt, Known: snap.Known,
			Count: len(devices), Devices: devices,
		}},
		{p.topics.OfflineEntities(), OfflineEntitiesPayload{
			PollID: snap.ID, TakenAt: snap.TakenAt, Known: snap.Known,
			Count: len(entities), Entities: entities,
		}},
		{p.topics.Updates(), UpdatesPayload{
			PollID: snap.ID, TakenAt: snap.TakenAt, Known: snap.Known,
			Total: len(core) + len(third), Core: core, ThirdParty: third,
		}},
		{p.topics.Balance(), BalancePayload{
			PollID: snap.ID, TakenAt: snap.TakenAt, Readings: nonNil(snap.Balance),
		}},
		{p.topics.Summary(), SummaryPayload{
			PollID: snap.ID, TakenAt: snap.TakenAt, Error: snap.Error, Summary: snap.Summary(),
		}},
	}

	var errs []error
	for _, m := range messages {
		if err := p.client.PublishJSON(m.topic, m.body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Refresher triggers an out-of-band poll. *monitor.Poller satisfies it.
type Refresher interface {
	Refresh()
}

// RefreshHandler returns an MQTT handler that requests a poll for every
// message received, whatever its payload.
func RefreshHandler(r Refresher) mqtt.MessageHandler {
	return func(_ string, _ []byte) error {
		r.Refresh()
		return nil
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
