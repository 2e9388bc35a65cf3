// Package bootstrap installs k3s on the provisioned server over SSH and
// turns the admin kubeconfig it writes into credentials usable from outside
// the VM.
//
// Install, Fetch and WaitForAPI are separate graph tasks. Fetch reads the
// file Install creates, so it must depend on Install; running it first fails
// with the remote cat error.
package bootstrap
