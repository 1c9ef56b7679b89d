// Package main is the entry point for the launcher's plugin host.
//
// The server owns every plugin instance the launcher shows: it loads plugin
// bundles into sandboxed surfaces, negotiates how each feature is shown,
// routes RPC between the launcher and plugins, and streams lifecycle events
// to the front-end.
//
// Architecture:
//
//	Front-end → REST (/plugins/...) → Lifecycle controller → Plugin surfaces
//	          ← WebSocket (/events) ←  Event bus
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional TOML or YAML file (LAUNCHER_CONFIG or -config)
//   - CLI flags (override both)
//
// Usage:
//
//	# Serve plugins from a directory
//	./server -plugins ~/launcher/plugins
//
//	# Development mode (colored logs, debug level)
//	./server -dev -config launcher.yaml
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
