package network

import (
	"context"
	"fmt"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/dag"
	hcloud_client "github.com/dimo-network/k3sform/internal/platform/hcloud"
	"github.com/dimo-network/k3sform/internal/provisioning"
)

const phase = "network"

// Manager is the subset of the cloud client the provisioner needs.
type Manager interface {
	hcloud_client.NetworkManager
	hcloud_client.FirewallManager
}

// Result is what later stages consume.
type Result struct {
	Network  *hcloud.Network
	Firewall *hcloud.Firewall
}

// Provisioner ensures the network stage.
type Provisioner struct {
	cfg      *config.Config
	infra    Manager
	observer provisioning.Observer
	result   *dag.Future[*Result]
}

// NewProvisioner creates a network provisioner.
func NewProvisioner(cfg *config.Config, infra Manager, observer provisioning.Observer) *Provisioner {
	return &Provisioner{
		cfg:      cfg,
		infra:    infra,
		observer: observer,
		result:   dag.NewFuture[*Result]("network"),
	}
}

// Result resolves once Provision succeeds.
func (p *Provisioner) Result() *dag.Future[*Result] {
	return p.result
}

// Provision ensures network, subnet and firewall. A failure rejects Result.
func (p *Provisioner) Provision(ctx context.Context) error {
	start := time.Now()
	provisioning.LogPhaseStart(p.observer, phase)

	res, err := p.provision(ctx)
	if err != nil {
		provisioning.LogPhaseFailed(p.observer, phase, err)
		_ = p.result.Reject(err)
		return err
	}
	if err := p.result.Resolve(res); err != nil {
		return err
	}
	provisioning.LogPhaseComplete(p.observer, phase, time.Since(start))
	return nil
}

func (p *Provisioner) provision(ctx context.Context) (*Result, error) {
	netSpec := BuildNetwork(p.cfg)
	subnetSpec, err := BuildSubnet(p.cfg)
	if err != nil {
		return nil, err
	}
	fwSpec, err := BuildFirewall(p.cfg)
	if err != nil {
		return nil, err
	}

	p.observer.Printf("[%s] Reconciling network %s (%s)...", phase, netSpec.Name, netSpec.IPRange)
	network, created, err := p.infra.EnsureNetwork(ctx, netSpec.Name, netSpec.IPRange, netSpec.Labels)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure network: %w", err)
	}
	p.logResource(created, "network", network.Name, network.ID)

	added, err := p.infra.EnsureSubnet(ctx, network, subnetSpec.IPRange, subnetSpec.Zone)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure subnet: %w", err)
	}
	if added {
		p.observer.Printf("[%s] Added subnet %s in %s", phase, subnetSpec.IPRange, subnetSpec.Zone)
		// Refresh so callers see the subnet.
		if network, err = p.infra.GetNetwork(ctx, netSpec.Name); err != nil {
			return nil, fmt.Errorf("failed to refresh network: %w", err)
		}
		if network == nil {
			return nil, fmt.Errorf("network %s disappeared after adding subnet", netSpec.Name)
		}
	}

	firewall, created, err := p.infra.EnsureFirewall(ctx, fwSpec.Name, fwSpec.Rules, fwSpec.Labels, fwSpec.Selector)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure firewall: %w", err)
	}
	p.logResource(created, "firewall", firewall.Name, firewall.ID)
	p.observer.Printf("[%s] Firewall %s applied to servers with label selector: %s", phase, fwSpec.Name, fwSpec.Selector)

	return &Result{Network: network, Firewall: firewall}, nil
}

func (p *Provisioner) logResource(created bool, kind, name string, id int64) {
	if created {
		provisioning.LogResourceCreated(p.observer, phase, kind, name, id)
		return
	}
	provisioning.LogResourceExists(p.observer, phase, kind, name, id)
}
