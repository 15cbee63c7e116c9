// Package events provides event bus implementations for the optional
// external event sink.
//
// Implementations:
//   - redis: Redis Streams with consumer groups
//   - memory: In-process, used when no Redis is configured and in tests
package events
