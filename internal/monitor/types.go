package monitor

import (
	"context"
	"time"

	"github.com/nerrad567/hamonitor/internal/balance"
	"github.com/nerrad567/hamonitor/internal/hass"
	"github.com/nerrad567/hamonitor/internal/offline"
	"github.com/nerrad567/hamonitor/internal/updates"
)

// Snapshot is the derived state of one poll. It is never modified after it
// has been published.
type Snapshot struct {
	// ID is unique per poll.
	ID string `json:"id"`
	// Seq is assigned when the poll starts. Polls may complete out of order.
	Seq       uint64    `json:"seq"`
	StartedAt time.Time `json:"started_at"`
	TakenAt   time.Time `json:"taken_at"`

	// Known is false when fetching from Home Assistant failed. The derived
	// lists are then empty.
	Known bool   `json:"known"`
	Error string `json:"error,omitempty"`

	Offline offline.Result    `json:"offline"`
	Updates updates.Buckets   `json:"updates"`
	Balance []balance.Reading `json:"balance"`

	// HA is the raw data the snapshot was derived from. Nil when Known is false.
	HA *hass.Snapshot `json:"-"`
}

// Summary counts the interesting items of a snapshot.
type Summary struct {
	Known           bool `json:"known"`
	OfflineDevices  int  `json:"offline_devices"`
	OfflineEntities int  `json:"offline_entities"`
	CoreUpdates     int  `json:"core_updates"`
	OtherUpdates    int  `json:"third_party_updates"`
	LowBalances     int  `json:"low_balances"`
}

// Summary returns the item counts of s.
func (s *Snapshot) Summary() Summary {
	return Summary{
		Known:           s.Known,
		OfflineDevices:  len(s.Offline.Devices),
		OfflineEntities: len(s.Offline.Entities),
		CoreUpdates:     len(s.Updates.Core),
		OtherUpdates:    len(s.Updates.ThirdParty),
		LowBalances:     balance.LowCount(s.Balance),
	}
}

// Subscriber is notified after every completed poll.
//
// OnSnapshot is called synchronously from the polling goroutine and must not
// block for long.
type Subscriber interface {
	OnSnapshot(snap *Snapshot)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(snap *Snapshot)

// OnSnapshot implements Subscriber.
func (f SubscriberFunc) OnSnapshot(snap *Snapshot) { f(snap) }

// Source fetches raw data from Home Assistant. *hass.Client satisfies it.
type Source interface {
	GetStates(ctx context.Context) ([]hass.EntityState, error)
	ListDevices(ctx context.Context) ([]hass.Device, error)
	ListEntities(ctx context.Context) ([]hass.EntityRegistration, error)
}

// Logger defines the logging interface used by the Poller.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
