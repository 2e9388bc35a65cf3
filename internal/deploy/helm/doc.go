// Package helm installs, upgrades and uninstalls Helm releases with the
// Helm v3 action API, using kubeconfig bytes held in memory.
//
// Release history lives in Secrets of the release namespace, the same as
// the helm CLI, so releases created here are visible to `helm list`.
package helm
