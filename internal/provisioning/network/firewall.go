package network

import (
	"fmt"
	"net"
	"slices"
	"strconv"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/util/labels"
	"github.com/dimo-network/k3sform/internal/util/naming"
)

// FirewallSpec describes the inbound firewall.
type FirewallSpec struct {
	Name   string
	Rules  []hcloud.FirewallRule
	Labels map[string]string
	// Selector is the label selector matching the tagged server.
	Selector string
}

// Ports returns the allowed TCP ports: SSH, the API port and the extra
// ports, deduplicated and sorted.
func Ports(cfg *config.Config) []int {
	ports := slices.Clone(cfg.AllowedPorts())
	slices.Sort(ports)
	return slices.Compact(ports)
}

// FirewallRules returns one inbound TCP rule per allowed port, open to the
// configured source ranges only.
func FirewallRules(cfg *config.Config) ([]hcloud.FirewallRule, error) {
	sources, err := parseCIDRs(cfg.SourceRanges)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one source range is required")
	}

	ports := Ports(cfg)
	rules := make([]hcloud.FirewallRule, 0, len(ports))
	for _, port := range ports {
		rules = append(rules, hcloud.FirewallRule{
			Description: hcloud.Ptr(describePort(cfg, port)),
			Direction:   hcloud.FirewallRuleDirectionIn,
			Protocol:    hcloud.FirewallRuleProtocolTCP,
			Port:        hcloud.Ptr(strconv.Itoa(port)),
			SourceIPs:   slices.Clone(sources),
		})
	}
	return rules, nil
}

// BuildFirewall returns the firewall descriptor.
func BuildFirewall(cfg *config.Config) (FirewallSpec, error) {
	rules, err := FirewallRules(cfg)
	if err != nil {
		return FirewallSpec{}, err
	}
	return FirewallSpec{
		Name:     naming.Firewall(cfg.Name),
		Rules:    rules,
		Labels:   labels.New(cfg.Name).WithRole(labels.RoleFirewall).Merge(cfg.Labels).Build(),
		Selector: labels.TagSelector(cfg.InstanceTag),
	}, nil
}

func describePort(cfg *config.Config, port int) string {
	switch port {
	case cfg.SSH.Port:
		return "Allow SSH"
	case cfg.KubePort:
		return "Allow Kubernetes API"
	default:
		return fmt.Sprintf("Allow application port %d", port)
	}
}

// parseCIDRs parses CIDR strings, failing on the first invalid entry.
func parseCIDRs(cidrs []string) ([]net.IPNet, error) {
	nets := make([]net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid source range %q: %w", cidr, err)
		}
		nets = append(nets, *n)
	}
	return nets, nil
}
