// Package config loads, normalizes, and validates the TOML configuration
// shared by the shuttled daemon and the shuttle CLI.
package config
