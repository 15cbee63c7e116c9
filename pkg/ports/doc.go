// Package ports defines the interfaces between the orchestration core and
// its external collaborators: transport, model resolution, permission
// translation, override storage, the event sink, and metrics.
//
// The core consumes these as black boxes; adapters live under
// pkg/adapters.
package ports
