// Package websocket provides real-time event streaming via WebSocket.
//
// Clients can connect to /api/v1/events/ws to receive worker lifecycle
// and job events as they happen, optionally filtered by worker id.
package websocket
