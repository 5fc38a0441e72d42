package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTopicSample writes a single numeric device sample to InfluxDB.
//
// This is the primary method for recording device telemetry: every numeric
// payload arriving on the serial link becomes one point in the serial_samples
// measurement, tagged by its topic. The write is non-blocking; data is
// batched and sent asynchronously.
//
// Parameters:
//   - topic: The device topic the sample arrived on (e.g., "temp", "humidity")
//   - value: The numeric payload value
//
// Example:
//
//	client.WriteTopicSample("temp", 23.5)
//	client.WriteTopicSample("humidity", 55.0)
func (c *Client) WriteTopicSample(topic string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"serial_samples",
		map[string]string{
			"topic": topic,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteLinkTransition writes a serial link state transition.
//
// Stored as 1 (connected) or 0 (disconnected) so uptime can be graphed
// directly from the link_status measurement.
//
// Parameters:
//   - port: Serial device path the transition occurred on
//   - connected: Whether the link came up or went down
func (c *Client) WriteLinkTransition(port string, connected bool) {
	if !c.IsConnected() {
		return
	}

	value := 0.0
	if connected {
		value = 1.0
	}

	point := write.NewPoint(
		"link_status",
		map[string]string{
			"port": port,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("bridge_stats",
//	    map[string]string{"host": "bridge-01"},
//	    map[string]interface{}{"clients": 4, "messages_per_min": 120.0})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
