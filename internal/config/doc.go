// Package config loads, defaults and validates the k3sform configuration.
//
// The configuration is a single YAML document (k3sform.yaml). Secrets and
// timeouts come from the environment so they never end up in the file.
package config
