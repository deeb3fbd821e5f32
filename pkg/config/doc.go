// Package config loads identity bridge configuration from environment
// variables and validates it at startup. Validator enablement can optionally
// be hot-reloaded from a JSON toggles file.
package config
