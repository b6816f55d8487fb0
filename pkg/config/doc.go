// Package config handles configuration management for modman.
// It layers the embedded defaults, a modman.toml in the forum root, an
// explicit configuration file, MODMAN_* environment variables and
// command-line overrides, in that order.
package config
