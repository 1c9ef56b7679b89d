// Package manifest reads plugin.json bundles.
//
// A manifest with no "main" describes a headless plugin: its logic lives in
// the preload script and it is only ever invoked through feature calls.
// The "features" list doubles as the plugin's capability table; feature
// codes outside it cannot be invoked.
package manifest
