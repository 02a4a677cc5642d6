package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteFieldValue writes a single decoded field value to InfluxDB.
//
// This is the primary method for recording decoded telegram data.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - device: Registered device name (e.g., "hall-temp")
//   - field: Profile field shortcut (e.g., "TMP", "HUM")
//   - unit: Engineering unit from the profile (may be empty for enums)
//   - number: The scaled engineering value
//   - raw: The raw bit-field value before scaling
//
// Example:
//
//	client.WriteFieldValue("hall-temp", "TMP", "C", 21.4, 110)
func (c *Client) WriteFieldValue(device, field, unit string, number float64, raw uint32) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"decoded_fields",
		map[string]string{
			"device": device,
			"field":  field,
			"unit":   unit,
		},
		map[string]interface{}{
			"value": number,
			"raw":   int64(raw),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSignal writes radio link quality for a received telegram.
//
// Parameters:
//   - device: Registered device name (or sender address for unknown devices)
//   - dbm: Received signal strength in dBm (negative)
func (c *Client) WriteSignal(device string, dbm int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"radio",
		map[string]string{
			"device": device,
		},
		map[string]interface{}{
			"dbm": dbm,
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
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., replayed ring-buffer data).
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
