// Package permissions translates worker permission declarations into the
// tool configuration handed to worker servers and the permission summary
// injected into identity prompts.
package permissions
