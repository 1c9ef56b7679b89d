// Package paths provides the launcher's filesystem layout.
//
// # Directory Structure
//
//	<root>/
//	  ├── launcher.db          (persistent store)
//	  └── partitions/
//	      └── <plugin name>/   (per-plugin session partition)
//
// Plugin bundles live wherever they were installed; each carries a
// plugin.json manifest at its root.
//
// # Usage
//
//	layout := paths.Layout{Root: paths.DefaultRoot()}
//	dir := layout.Partition("translate")
//
//	if !paths.Within(pluginPath, resolved) {
//	    // reject paths escaping the bundle
//	}
package paths
