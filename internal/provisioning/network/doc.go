// Package network provisions the private network, its subnet and the
// firewall that guards the k3s server on Hetzner Cloud.
//
// Descriptors are built by pure functions from the configuration; the
// Provisioner ensures them idempotently and resolves its Result future once
// everything exists. The firewall reaches the server through the tag label,
// so it never references the server directly.
package network
