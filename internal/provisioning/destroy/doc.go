// Package destroy tears down the cloud resources of a project.
//
// Resources are found through the project label, so anything created by an
// earlier apply is removed even when the outputs store is gone. The cloud
// client deletes them in attachment order: servers, floating IPs,
// firewalls, networks and finally SSH keys.
package destroy
