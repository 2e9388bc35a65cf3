package hcloud

import (
	"context"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// ServerCreateOpts holds all parameters for creating a server.
type ServerCreateOpts struct {
	Name       string
	Image      string
	ServerType string
	Location   string
	SSHKeys    []string
	Labels     map[string]string
	UserData   string
	NetworkID  int64
}

// NetworkManager manages private networks and their subnets.
type NetworkManager interface {
	EnsureNetwork(ctx context.Context, name, ipRange string, labels map[string]string) (*hcloud.Network, bool, error)
	EnsureSubnet(ctx context.Context, network *hcloud.Network, ipRange, networkZone string) (bool, error)
	GetNetwork(ctx context.Context, name string) (*hcloud.Network, error)
	DeleteNetwork(ctx context.Context, name string) error
}

// FirewallManager manages firewalls applied through a label selector.
type FirewallManager interface {
	EnsureFirewall(ctx context.Context, name string, rules []hcloud.FirewallRule, labels map[string]string, applyToLabelSelector string) (*hcloud.Firewall, bool, error)
	GetFirewall(ctx context.Context, name string) (*hcloud.Firewall, error)
	DeleteFirewall(ctx context.Context, name string) error
}

// SSHKeyManager manages uploaded public keys.
type SSHKeyManager interface {
	EnsureSSHKey(ctx context.Context, name, publicKey string, labels map[string]string) (*hcloud.SSHKey, bool, error)
	DeleteSSHKey(ctx context.Context, name string) error
}

// ServerManager manages servers.
type ServerManager interface {
	EnsureServer(ctx context.Context, opts ServerCreateOpts) (*hcloud.Server, bool, error)
	GetServerByName(ctx context.Context, name string) (*hcloud.Server, error)
	GetServersByLabel(ctx context.Context, labels map[string]string) ([]*hcloud.Server, error)
	DeleteServer(ctx context.Context, name string) error
}

// FloatingIPManager manages the reserved public address.
type FloatingIPManager interface {
	EnsureFloatingIP(ctx context.Context, name, homeLocation string, labels map[string]string) (*hcloud.FloatingIP, bool, error)
	AssignFloatingIP(ctx context.Context, fip *hcloud.FloatingIP, serverID int64) (bool, error)
	GetFloatingIP(ctx context.Context, name string) (*hcloud.FloatingIP, error)
	DeleteFloatingIP(ctx context.Context, name string) error
}

// InfrastructureManager combines all infrastructure interfaces.
type InfrastructureManager interface {
	NetworkManager
	FirewallManager
	SSHKeyManager
	ServerManager
	FloatingIPManager

	// CleanupByLabel deletes every resource matching the labels.
	CleanupByLabel(ctx context.Context, labels map[string]string) error
}
