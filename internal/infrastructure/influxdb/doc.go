// Package influxdb records optional request and broadcast telemetry to
// InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring. Telemetry
// is off unless influxdb.enabled is set; Connect then returns ErrDisabled
// and callers run without it.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteRequestMetric("POST", "/api/v1/values", 201, elapsed)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Write methods are no-ops on a disconnected or closed client.
package influxdb
