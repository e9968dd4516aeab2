// Package monitor runs the polling loop that turns Home Assistant data into
// derived snapshots and hands them to subscribers.
//
// Snapshots are replaced wholesale on every poll. Subscribers (the WebSocket
// hub, MQTT and InfluxDB publishers, the history recorder, metrics) register
// with Subscribe and remove themselves with the returned function.
//
// Usage:
//
//	p := monitor.NewPoller(client, monitor.Options{
//	    Interval: cfg.HomeAssistant.PollInterval,
//	    Offline:  offline.NewBuilder(offline.Options{...}),
//	    Updates:  updates.Options{IncludeSkipped: true},
//	}, log)
//	unsubscribe := p.Subscribe(hub)
//	defer unsubscribe()
//	go p.Run(ctx)
package monitor
