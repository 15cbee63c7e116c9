// Package domain defines the core data model for the orchestration engine:
// worker profiles and instances, jobs, workflow definitions and run
// results, lifecycle events, and the sentinel errors shared across layers.
//
// Entries are value-like records referenced by id across API boundaries;
// the application layer returns snapshots, never live references into its
// internal maps.
package domain
