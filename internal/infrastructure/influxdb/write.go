package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementQueries       = "db_queries"
	measurementDatabaseState = "db_state"
)

// QueryMetric is one executed statement or script.
type QueryMetric struct {
	// Kind is the leading SQL keyword (SELECT, INSERT, ...).
	Kind     string
	Duration time.Duration
	Rows     int
	Failed   bool
}

// WriteQueryMetric records the timing and outcome of one executor call.
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteQueryMetric(m QueryMetric) {
	c.writePoint(queryPoint(m, time.Now()))
}

// WriteDatabaseState records a database lifecycle transition.
func (c *Client) WriteDatabaseState(state string, extensionsLoaded bool) {
	c.writePoint(databaseStatePoint(state, extensionsLoaded, time.Now()))
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.writePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() || c.writeAPI == nil {
		return
	}
	c.writeAPI.WritePoint(p)
}

// queryPoint builds the db_queries point. Kind and outcome are tags since
// both have low cardinality.
func queryPoint(m QueryMetric, ts time.Time) *write.Point {
	status := "ok"
	if m.Failed {
		status = "error"
	}
	return write.NewPoint(
		measurementQueries,
		map[string]string{
			"kind":   m.Kind,
			"status": status,
		},
		map[string]interface{}{
			"duration_ms": float64(m.Duration) / float64(time.Millisecond),
			"rows":        int64(m.Rows),
		},
		ts,
	)
}

// databaseStatePoint builds the db_state point.
func databaseStatePoint(state string, extensionsLoaded bool, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementDatabaseState,
		map[string]string{
			"state": state,
		},
		map[string]interface{}{
			"extensions_loaded": extensionsLoaded,
		},
		ts,
	)
}
