// Package transport provides transport implementations that start worker
// servers and expose session-capable clients.
//
// Implementations:
//   - anthropic: API-backed session hosts over the Anthropic Messages API
package transport
