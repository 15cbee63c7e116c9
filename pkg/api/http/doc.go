// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Worker lifecycle (list, get, spawn, stop, send)
//   - Job tracking (list, get, await, attach report)
//   - Workflow definitions and runs
//   - Health checks
//   - Prometheus metrics
package http
