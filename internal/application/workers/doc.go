// Package workers implements worker lifecycle management: the in-memory
// registry of running instances, the spawner that starts workers through
// the transport collaborator, the dispatcher that forwards messages to
// worker sessions, and the manager façade that composes them with the job
// registry.
//
// State machine per worker id: starting → ready → {busy⇄ready} → stopped,
// with error reachable from starting and any active state. A failed spawn
// leaves the instance registered in error state for observability.
package workers
