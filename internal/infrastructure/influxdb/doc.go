// Package influxdb provides InfluxDB connectivity for EnOcean Core.
//
// It wraps the official influxdb-client-go v2 library with EnOcean Core-specific
// patterns for connection management, decoded-value history, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Decoded field values (temperature, humidity, switch states)
//   - Radio link quality (dBm per telegram)
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "enocean",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Write decoded values
//	client.WriteFieldValue("hall-temp", "TMP", "C", 21.4, 110)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for chatty sensors.
package influxdb
