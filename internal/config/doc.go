// Package config defines the relay configuration: defaults, the flat
// Config struct populated from CLI flags, and the optional .veilrpc YAML
// file carrying endpoint lists and domain trust overrides.
//
// Configuration is passed through the application via dependency injection
// rather than global state.
package config
