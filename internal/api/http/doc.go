// Package http exposes the plugin lifecycle controller over a REST API.
//
// Every response is a types.Result. Failures carry a stable code next to
// the message, so clients can branch on "instance_not_found" instead of
// parsing text.
//
// Endpoints:
//   - Health: / and /health
//   - Lifecycle: /plugins/create, /plugins/hide, /plugins/kill,
//     /plugins/kill-all, /plugins/kill-active
//   - Windows: /plugins/detach, /plugins/create-detached
//   - RPC: /plugins/call, /plugins/message, /plugins/input
//   - Layout: /plugins/resize, /plugins/bounds, /plugins/default-height, /layout
//   - Search box: /plugins/sub-input, /plugins/escape,
//     /plugins/suppress-main-hide
//   - Queries: /plugins/running, /plugins/stats, /plugins/installed
//
// Example Usage:
//
//	handlers := http.NewHandlers(ctrl, http.Options{Host: host, PluginRoot: root}, log)
//	handlers.Register(router)
package http
