// Package main is the entry point for the App Library server.
//
// The server acquires app bundles from uploads or https URLs, expands and
// registers them in a file-backed catalog, and hands them to devices through
// ephemeral install and share sessions.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - Optional YAML or TOML file via -config or CONFIG_FILE
//   - CLI flags (override both)
//
// Usage:
//
//	./server -port 8000 -storage /srv/library
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
