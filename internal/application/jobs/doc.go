// Package jobs implements the job registry: every worker dispatch that a
// caller chooses to track becomes a WorkerJob with status, timing, and a
// result, retrievable later or awaited with a bounded timeout.
//
// Retention is bounded in both time and count; jobs with pending waiters
// are exempt from pruning.
package jobs
