package history

import "time"

// Kind distinguishes offline devices from standalone offline entities.
type Kind string

const (
	KindDevice Kind = "device"
	KindEntity Kind = "entity"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindDevice || k == KindEntity
}

// PollRecord is the stored summary of one poll.
type PollRecord struct {
	ID              string    `json:"id"`
	Seq             uint64    `json:"seq"`
	TakenAt         time.Time `json:"taken_at"`
	Known           bool      `json:"known"`
	Error           string    `json:"error,omitempty"`
	OfflineDevices  int       `json:"offline_devices"`
	OfflineEntities int       `json:"offline_entities"`
	CoreUpdates     int       `json:"core_updates"`
	OtherUpdates    int       `json:"third_party_updates"`
	LowBalances     int       `json:"low_balances"`
	DeviceIDs       []string  `json:"device_ids"`
	EntityIDs       []string  `json:"entity_ids"`
}
