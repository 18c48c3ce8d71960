// Package config loads and validates mana-gateway configuration from YAML
// files with environment variable expansion.
package config
