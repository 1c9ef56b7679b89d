// Package config loads launcher configuration.
//
// Values come from environment variables via envconfig (each field also
// answers to its SECTION_ prefixed name, e.g. SERVER_PORT). When
// LAUNCHER_CONFIG names a TOML file, its keys are applied last and take
// precedence over the environment.
package config
