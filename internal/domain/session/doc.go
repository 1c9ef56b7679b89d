// Package session provisions per-plugin partitions.
//
// Every plugin name maps to exactly one Handle holding its own cookie jar,
// HTTP client (retrying transport, optional proxy, per-origin circuit
// breakers) and storage directory. Plugins never share a partition, so one
// plugin's cookies and cache are invisible to another.
package session
