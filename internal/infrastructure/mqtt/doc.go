// Package mqtt publishes monitor state to an MQTT broker and receives
// commands from it.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained JSON state topics under a configurable prefix
//   - Command subscriptions restored after reconnect
//   - A Last Will and Testament on the status topic
//
// # Topic layout
//
//	<prefix>/status
//	<prefix>/offline/devices
//	<prefix>/offline/entities
//	<prefix>/updates
//	<prefix>/balance
//	<prefix>/summary
//	<prefix>/command/refresh
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(client.Topics().Updates(), buckets)
package mqtt
