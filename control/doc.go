// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime configuration, metrics and debug introspection for the echo
// server and client.
//
// Provides concurrent-safe state handling primitives including:
//   - Flattened key/value configuration loaded from TOML/YAML files and the environment
//   - Reload observers
//   - A metrics registry exported to Prometheus
//   - Named debug probes
package control
