// Package labels builds the Hetzner Cloud labels that tie every resource of
// one deployment together.
//
// The firewall targets servers through the tag label, and destroy deletes
// everything carrying the project label.
package labels

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Label keys.
const (
	KeyProject   = "k3sform.io/project"
	KeyTag       = "k3sform.io/tag"
	KeyRole      = "k3sform.io/role"
	KeyManagedBy = "k3sform.io/managed-by"
)

// Role values.
const (
	RoleNetwork  = "network"
	RoleFirewall = "firewall"
	RoleServer   = "server"
	RoleAddress  = "address"
	RoleSSHKey   = "ssh-key"
)

// ManagedBy is the value of KeyManagedBy on every created resource.
const ManagedBy = "k3sform"

// Builder accumulates labels for one resource.
type Builder struct {
	labels map[string]string
}

// New starts a label set for the given project.
func New(project string) *Builder {
	return &Builder{labels: map[string]string{
		KeyProject:   project,
		KeyManagedBy: ManagedBy,
	}}
}

// WithRole sets the resource role.
func (b *Builder) WithRole(role string) *Builder {
	b.labels[KeyRole] = role
	return b
}

// WithTag sets the instance tag the firewall selector matches.
func (b *Builder) WithTag(tag string) *Builder {
	if tag != "" {
		b.labels[KeyTag] = tag
	}
	return b
}

// Merge copies extra labels into the set.
func (b *Builder) Merge(extra map[string]string) *Builder {
	maps.Copy(b.labels, extra)
	return b
}

// Build returns a copy of the labels.
func (b *Builder) Build() map[string]string {
	return maps.Clone(b.labels)
}

// ForProject returns the labels selecting every resource of a project.
func ForProject(project string) map[string]string {
	return map[string]string{KeyProject: project}
}

// TagSelector returns the label selector a firewall uses to reach tagged
// servers.
func TagSelector(tag string) string {
	return fmt.Sprintf("%s=%s", KeyTag, tag)
}

// Selector renders labels as a Hetzner label selector with sorted keys.
func Selector(labels map[string]string) string {
	parts := make([]string, 0, len(labels))
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		parts = append(parts, k+"="+labels[k])
	}
	return strings.Join(parts, ",")
}

// Matches reports whether labels satisfy an equality selector such as
// "a=b,c=d".
func Matches(selector string, labels map[string]string) bool {
	if selector == "" {
		return false
	}
	for _, term := range strings.Split(selector, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(term), "=")
		if !ok {
			return false
		}
		if got, exists := labels[k]; !exists || got != v {
			return false
		}
	}
	return true
}
