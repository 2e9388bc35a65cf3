package network

import (
	"fmt"
	"net"

	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/util/labels"
	"github.com/dimo-network/k3sform/internal/util/naming"
)

// NetworkSpec describes the private network.
type NetworkSpec struct {
	Name    string
	IPRange string
	Labels  map[string]string
	// AutoSubnets is always false: subnets are created explicitly.
	AutoSubnets bool
}

// SubnetSpec describes the single cloud subnet the server attaches to.
type SubnetSpec struct {
	Network string
	IPRange string
	Zone    string
}

// BuildNetwork returns the network descriptor.
func BuildNetwork(cfg *config.Config) NetworkSpec {
	return NetworkSpec{
		Name:    naming.Network(cfg.Name),
		IPRange: cfg.Network.IPRange,
		Labels:  labels.New(cfg.Name).WithRole(labels.RoleNetwork).Merge(cfg.Labels).Build(),
	}
}

// BuildSubnet returns the subnet descriptor. The subnet must lie inside the
// network range.
func BuildSubnet(cfg *config.Config) (SubnetSpec, error) {
	_, parent, err := net.ParseCIDR(cfg.Network.IPRange)
	if err != nil {
		return SubnetSpec{}, fmt.Errorf("invalid network range %q: %w", cfg.Network.IPRange, err)
	}
	ip, subnet, err := net.ParseCIDR(cfg.Network.Subnet)
	if err != nil {
		return SubnetSpec{}, fmt.Errorf("invalid subnet %q: %w", cfg.Network.Subnet, err)
	}
	parentOnes, _ := parent.Mask.Size()
	subnetOnes, _ := subnet.Mask.Size()
	if !parent.Contains(ip) || subnetOnes < parentOnes {
		return SubnetSpec{}, fmt.Errorf("subnet %s is not inside network %s", subnet, parent)
	}
	return SubnetSpec{
		Network: naming.Network(cfg.Name),
		IPRange: subnet.String(),
		Zone:    cfg.NetworkZone,
	}, nil
}
