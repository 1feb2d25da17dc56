package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement and field names for recorded messages.
const (
	messageMeasurement = "emitter_messages"
	channelTag         = "channel"
	bytesField         = "bytes"
	countField         = "count"
)

// WriteMessageMetric records one message received on channel.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Nothing is written once the client is closed.
func (c *Client) WriteMessageMetric(channel string, size int, receivedAt time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(messagePoint(channel, size, receivedAt))
}

// messagePoint builds the point for a single recorded message. Each point
// carries count=1 so that sum(count) gives the message rate.
func messagePoint(channel string, size int, receivedAt time.Time) *write.Point {
	return write.NewPoint(
		messageMeasurement,
		map[string]string{
			channelTag: channel,
		},
		map[string]interface{}{
			bytesField: size,
			countField: 1,
		},
		receivedAt,
	)
}
