// Package config provides configuration loading and validation for the voice translator.
// It reads a YAML file over built-in defaults, loads an optional .env file and applies
// environment overrides for secrets and endpoints.
package config
