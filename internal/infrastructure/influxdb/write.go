package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementOffline = "offline_summary"
	MeasurementUpdates = "update_summary"
	MeasurementBalance = "balance"
)

// OfflineSummary is one poll's offline counts.
type OfflineSummary struct {
	Known    bool
	Devices  int
	Entities int
	At       time.Time
}

// UpdateSummary is one poll's pending update counts.
type UpdateSummary struct {
	Core       int
	ThirdParty int
	At         time.Time
}

// BalanceSample is one balance sensor reading.
type BalanceSample struct {
	EntityID string
	Unit     string
	Value    float64
	Low      bool
	At       time.Time
}

func offlinePoint(s OfflineSummary) *write.Point {
	known := "false"
	if s.Known {
		known = "true"
	}
	return write.NewPoint(
		MeasurementOffline,
		map[string]string{"known": known},
		map[string]any{
			"devices":  int64(s.Devices),
			"entities": int64(s.Entities),
		},
		s.At,
	)
}

func updatesPoint(s UpdateSummary) *write.Point {
	return write.NewPoint(
		MeasurementUpdates,
		nil,
		map[string]any{
			"core":        int64(s.Core),
			"third_party": int64(s.ThirdParty),
			"total":       int64(s.Core + s.ThirdParty),
		},
		s.At,
	)
}

func balancePoint(s BalanceSample) *write.Point {
	tags := map[string]string{"entity_id": s.EntityID}
	if s.Unit != "" {
		tags["unit"] = s.Unit
	}
	return write.NewPoint(
		MeasurementBalance,
		tags,
		map[string]any{
			"value": s.Value,
			"low":   s.Low,
		},
		s.At,
	)
}

// WriteOfflineSummary records the offline device and entity counts.
// Polls whose state was unknown are tagged known=false so dashboards can
// tell "zero offline" from "could not tell".
func (c *Client) WriteOfflineSummary(s OfflineSummary) {
	c.writePoint(offlinePoint(s))
}

// WriteUpdateSummary records the pending update counts per category.
func (c *Client) WriteUpdateSummary(s UpdateSummary) {
	c.writePoint(updatesPoint(s))
}

// WriteBalance records one balance sensor reading.
func (c *Client) WriteBalance(s BalanceSample) {
	c.writePoint(balancePoint(s))
}
