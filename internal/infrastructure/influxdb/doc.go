// Package influxdb records emitter message metrics in InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library with connection
// checks, batched non-blocking writes and health monitoring. The recorder
// writes one point per received message:
//
//	emitter_messages,channel=<channel> bytes=<payload size>i,count=1i
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without metrics
//	}
//	defer client.Close()
//
//	client.WriteMessageMetric("articles/", len(payload), time.Now())
//
// Write errors are delivered asynchronously to the SetOnError callback.
// Batch size and flush interval come from the influxdb config section.
package influxdb
