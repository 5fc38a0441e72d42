// Package influxdb provides InfluxDB connectivity for the Gray Serial Bridge.
//
// It wraps the official influxdb-client-go v2 library with bridge-specific
// patterns for connection management, sample writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series storage for:
//   - Numeric sensor samples arriving on the serial link (serial_samples)
//   - Serial link connectivity transitions (link_status)
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "graybridge",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Record a sensor sample
//	client.WriteTopicSample("temp", 23.5)
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
// This reduces network overhead for high-frequency telemetry data.
package influxdb
