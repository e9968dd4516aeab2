// Package publish fans completed polls out to external sinks.
//
// MQTT receives retained JSON documents so dashboards and automations can
// subscribe to the latest state. InfluxDB receives one summary point per
// poll for trend graphs. Both publishers are monitor.Subscriber values and
// are registered with the poller at startup.
package publish
