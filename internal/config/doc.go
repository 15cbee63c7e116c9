// Package config provides configuration management for the crewd
// orchestrator.
//
// Runtime settings are loaded from environment variables using the env
// package; the worker profile and workflow catalog comes from a YAML file
// referenced by CREWD_PROFILES_FILE. All settings have sensible defaults
// for development use.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("HTTP server will listen on %s\n", cfg.GetHTTPAddr())
package config
