// Package config loads, normalizes, and validates the rollscan TOML
// configuration file.
package config
