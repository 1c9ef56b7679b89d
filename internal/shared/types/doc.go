// Package types holds the value types shared between the lifecycle core, the
// window hosts and the API layer. Types that own a surface handle live in the
// lifecycle package instead, so this package stays free of behavior.
package types
