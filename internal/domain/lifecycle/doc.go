// Package lifecycle creates, caches, shows, hides, detaches and destroys
// plugin instances.
//
// A Controller keeps one instance per plugin path. Creating a cached path
// reattaches its surface instead of building a new one; an unknown path gets
// a placeholder entry before any blocking work so concurrent creates for the
// same path coalesce. Once content is ready the controller asks the plugin
// which mode it wants for the invoked feature and either shows it (headed) or
// calls it without showing anything (headless).
//
// The controller never renders anything itself. A WindowHost allocates
// surfaces and standalone windows; the jsvm package provides one backed by
// sandboxed JavaScript VMs.
package lifecycle
