package influxdb

import (
	"strconv"
	"time"
)

const (
	measurementHTTPRequest = "http_request"
	measurementBroadcast   = "socket_broadcast"
)

// WriteRequestMetric records one served HTTP request. route is the matched
// pattern ("/api/v1/values/{id}"), never the raw path, so tag cardinality
// stays bounded.
func (c *Client) WriteRequestMetric(method, route string, status int, duration time.Duration) {
	c.record(measurementHTTPRequest,
		map[string]string{
			"method":       method,
			"route":        route,
			"status_class": statusClass(status),
		},
		map[string]any{
			"status":      status,
			"duration_ms": float64(duration) / float64(time.Millisecond),
		},
	)
}

// WriteBroadcastMetric records one socket broadcast. origin is "local" for
// broadcasts raised on this node and "remote" for ones received from the
// backplane.
func (c *Client) WriteBroadcastMetric(event, origin string, recipients int) {
	c.record(measurementBroadcast,
		map[string]string{"event": event, "origin": origin},
		map[string]any{"recipients": recipients},
	)
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
