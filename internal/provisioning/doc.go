// Package provisioning holds the progress-reporting and metrics plumbing
// shared by every stage of an apply.
//
// # Subpackages
//
//   - network/ builds and ensures the private network, subnet and firewall
//   - compute/ builds and ensures the SSH key, floating IP and server
//
// # Core Types
//
// Observer receives structured events (phase, resource, task and release).
// ConsoleObserver writes them through the standard logger, ZapObserver as
// structured JSON. Metrics records task and release counters in a private
// Prometheus registry. TaskHooks adapts both to dag.Hooks.
package provisioning
