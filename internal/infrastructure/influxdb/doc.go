// Package influxdb provides InfluxDB connectivity for forwarder metrics.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched writes and health monitoring.
//
// # Purpose
//
// When enabled, every inbound message produces one point in the
// relay_messages measurement, tagged with the device id and the outcome
// (forwarded, skipped, failed, dropped). This gives per-device traffic
// history without a persistent message store.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics off
//	}
//	defer client.Close()
//
//	client.WriteForwardOutcome("12345678901234", "forwarded")
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
