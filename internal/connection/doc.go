// Package connection implements the Connection Resilience Layer.
//
// Client is the raw WebSocket transport: one read loop, serialized writes,
// ping/pong liveness, and a CloseInfo describing how the transport ended.
// Conn wraps one Client at a time and adds the self-healing behavior:
// close-code classification, exponential backoff between reconnect attempts,
// an attempt budget with a terminal exhaustion notification, and automatic
// subscription replay after recovery.
package connection
