// Package outputs persists the results of an apply.
//
// The document records what the cluster looks like from outside: the
// instance, its addresses and the rewritten kubeconfig. Later commands
// such as kubeconfig and destroy read it back instead of asking the cloud
// API again.
package outputs
