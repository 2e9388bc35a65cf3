// Package compute provisions the single k3s server on Hetzner Cloud.
//
// It registers the operator's SSH key, optionally reserves a floating IP,
// creates the server on the private subnet with the instance tag label and a
// startup script, and publishes the external and internal IPv4 addresses as
// futures for the bootstrap stage.
package compute
