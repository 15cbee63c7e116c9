// Package storage provides override store implementations for the
// external preference/override collaborator.
//
// Implementations:
//   - redis: Redis with JSON serialization and TTL
//   - memory: In-memory, used when no Redis is configured and in tests
package storage
