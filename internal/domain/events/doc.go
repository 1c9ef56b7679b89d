// Package events carries lifecycle notifications from the plugin controller to
// the front-end: opened, loaded, closed, crashed, detached and back-to-search.
package events
