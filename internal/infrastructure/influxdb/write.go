package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// OutcomeMeasurement holds one point per handled inbound message.
const OutcomeMeasurement = "relay_messages"

// WriteForwardOutcome records what happened to one inbound message.
// deviceID is empty when the topic could not be parsed; the tag is omitted then.
//
// Example:
//
//	client.WriteForwardOutcome("12345678901234", "forwarded")
//
// produces
//
//	relay_messages,device_id=12345678901234,outcome=forwarded count=1i
func (c *Client) WriteForwardOutcome(deviceID, outcome string) {
	tags := map[string]string{"outcome": outcome}
	if deviceID != "" {
		tags["device_id"] = deviceID
	}
	c.WritePointAt(OutcomeMeasurement, tags, map[string]any{"count": 1}, time.Now())
}

// WritePointAt queues a point with an explicit timestamp.
// Points written after Close are discarded.
func (c *Client) WritePointAt(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
