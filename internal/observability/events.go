package observability

import "time"

const gatewayRoutingKey = "ws_events.gateway"

// GatewayEvent is the wire body for one websocket lifecycle transition:
// ws_connect, ws_disconnect, or ws_error.
type GatewayEvent struct {
	Name       string    `json:"name"`
	ConnID     string    `json:"conn_id"`
	UserID     int64     `json:"user_id"`
	DeviceID   string    `json:"device_id,omitempty"`
	IP         string    `json:"ip,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// TraceHeaders carries the correlation ids as AMQP message headers so
// consumers can stitch the event back to the originating request.
func TraceHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
