// Package config defines the server configuration and a layered loader.
// Values come from defaults, then an optional YAML file, then environment
// variables, in that order of precedence.
package config
