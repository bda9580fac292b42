// Package config loads runtime settings from defaults, an optional .env
// file, an optional TOML file and environment variables, in that order.
package config
