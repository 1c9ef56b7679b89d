// Package server wires the launcher's lifecycle stack behind an HTTP server.
//
// Startup order:
//  1. Logger and metrics registry
//  2. Persistent store (sqlite under the data root, or memory)
//  3. Session provisioner, manifest loader, event bus and surface host
//  4. Lifecycle controller
//  5. Gin router: recovery, metrics, CORS, rate limiting, REST routes,
//     /events and /metrics
//  6. Plugin discovery under the configured plugin root
//
// Close stops the listener, destroys every plugin instance and closes the
// store.
//
// Example Usage:
//
//	cfg, err := config.Load()
//	srv, err := server.NewServer(cfg)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
