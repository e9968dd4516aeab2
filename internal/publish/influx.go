package publish

import (
	"github.com/nerrad567/hamonitor/internal/infrastructure/influxdb"
	"github.com/nerrad567/hamonitor/internal/monitor"
)

// SummaryWriter is the part of *influxdb.Client used per poll.
type SummaryWriter interface {
	WriteOfflineSummary(s influxdb.OfflineSummary)
	WriteUpdateSummary(s influxdb.UpdateSummary)
	WriteBalance(s influxdb.BalanceSample)
}

// InfluxPublisher writes one set of summary points per poll.
//
// The offline summary is written for every poll, tagged with whether the
// state was known. Update and balance points are only written for known
// polls; unavailable balance sensors are skipped.
type InfluxPublisher struct {
	writer SummaryWriter
}

// NewInfluxPublisher returns a publisher writing to w.
func NewInfluxPublisher(w SummaryWriter) *InfluxPublisher {
	return &InfluxPublisher{writer: w}
}

// OnSnapshot implements monitor.Subscriber.
func (p *InfluxPublisher) OnSnapshot(snap *monitor.Snapshot) {
	at := snap.TakenAt

	p.writer.WriteOfflineSummary(influxdb.OfflineSummary{
		Known:    snap.Known,
		Devices:  len(snap.Offline.Devices),
		Entities: len(snap.Offline.Entities),
		At:       at,
	})

	if !snap.Known {
		return
	}

	p.writer.WriteUpdateSummary(influxdb.UpdateSummary{
		Core:       len(snap.Updates.Core),
		ThirdParty: len(snap.Updates.ThirdParty),
		At:         at,
	})

	for _, r := range snap.Balance {
		if !r.Available {
			continue
		}
		p.writer.WriteBalance(influxdb.BalanceSample{
			EntityID: r.EntityID,
			Unit:     r.Unit,
			Value:    r.Value,
			Low:      r.Low,
			At:       at,
		})
	}
}
