// Package influxdb records notesnookd telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched metric writing, and health monitoring.
//
// # Measurements
//
//   - db_queries: one point per executor call (kind, status, duration_ms, rows)
//   - db_state: one point per database lifecycle transition
//
// Point values never include SQL text, parameters or note content.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteQueryMetric(influxdb.QueryMetric{Kind: "SELECT", Duration: d, Rows: 3})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
package influxdb
