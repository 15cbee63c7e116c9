// Package workflow implements the workflow engine: a registry of named
// multi-step pipeline definitions and a fail-fast executor that runs steps
// strictly in order, threading a bounded carry buffer between them.
//
// The engine talks to workers through injected resolver/sender callbacks
// rather than the concrete worker manager, so runs are testable with
// plain fakes.
package workflow
