// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output
//
// Components receive a named child logger and attach the shared field
// constructors (PluginPath, SurfaceID, CorrelationID) so lifecycle, bridge and
// host log lines can be joined on the same keys.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	log := logger.Component("lifecycle")
//	log.Info("plugin created", logging.PluginPath(path))
package logging
