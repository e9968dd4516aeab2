// Package influxdb writes per-poll monitor summaries to InfluxDB v2.
//
// Three measurements are written:
//   - offline_summary: devices, entities (tag known=true|false)
//   - update_summary: core, third_party, total
//   - balance: value, low (tags entity_id, unit)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // export off
//	}
//	defer client.Close()
//
//	client.WriteUpdateSummary(influxdb.UpdateSummary{Core: 1, At: time.Now()})
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval; failures are delivered to the SetOnError callback.
package influxdb
