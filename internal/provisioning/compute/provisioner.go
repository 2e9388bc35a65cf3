package compute

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/dag"
	hcloud_client "github.com/dimo-network/k3sform/internal/platform/hcloud"
	"github.com/dimo-network/k3sform/internal/provisioning"
	"github.com/dimo-network/k3sform/internal/provisioning/network"
	"github.com/dimo-network/k3sform/internal/util/labels"
	"github.com/dimo-network/k3sform/internal/util/naming"
)

const phase = "compute"

// Manager is the subset of the cloud client the provisioner needs.
type Manager interface {
	hcloud_client.SSHKeyManager
	hcloud_client.ServerManager
	hcloud_client.FloatingIPManager
}

// Provisioner ensures the compute stage.
type Provisioner struct {
	cfg      *config.Config
	infra    Manager
	observer provisioning.Observer

	server     *dag.Future[*hcloud.Server]
	externalIP *dag.Future[string]
	internalIP *dag.Future[string]
	reservedIP *dag.Future[string]
}

// NewProvisioner creates a compute provisioner.
func NewProvisioner(cfg *config.Config, infra Manager, observer provisioning.Observer) *Provisioner {
	return &Provisioner{
		cfg:        cfg,
		infra:      infra,
		observer:   observer,
		server:     dag.NewFuture[*hcloud.Server]("server"),
		externalIP: dag.NewFuture[string]("external IP"),
		internalIP: dag.NewFuture[string]("internal IP"),
		reservedIP: dag.NewFuture[string]("reserved IP"),
	}
}

// Server resolves to the provisioned server.
func (p *Provisioner) Server() *dag.Future[*hcloud.Server] { return p.server }

// ExternalIP resolves to the address bootstrap connects to.
func (p *Provisioner) ExternalIP() *dag.Future[string] { return p.externalIP }

// InternalIP resolves to the server's address on the private subnet.
func (p *Provisioner) InternalIP() *dag.Future[string] { return p.internalIP }

// ReservedIP resolves to the floating IP, or "" when none is configured.
func (p *Provisioner) ReservedIP() *dag.Future[string] { return p.reservedIP }

// Provision ensures SSH key, floating IP and server. It waits for the network
// stage result. On failure every future is rejected so dependents fail fast.
func (p *Provisioner) Provision(ctx context.Context, netResult *dag.Future[*network.Result]) error {
	start := time.Now()
	provisioning.LogPhaseStart(p.observer, phase)

	if err := p.provision(ctx, netResult); err != nil {
		provisioning.LogPhaseFailed(p.observer, phase, err)
		_ = p.server.Reject(err)
		_ = p.externalIP.Reject(err)
		_ = p.internalIP.Reject(err)
		_ = p.reservedIP.Reject(err)
		return err
	}
	provisioning.LogPhaseComplete(p.observer, phase, time.Since(start))
	return nil
}

func (p *Provisioner) provision(ctx context.Context, netResult *dag.Future[*network.Result]) error {
	netRes, err := netResult.Await(ctx)
	if err != nil {
		return err
	}

	key, err := p.ensureSSHKey(ctx)
	if err != nil {
		return err
	}

	var fip *hcloud.FloatingIP
	addr := BuildAddress(p.cfg)
	if addr != nil {
		var created bool
		fip, created, err = p.infra.EnsureFloatingIP(ctx, addr.Name, addr.HomeLocation, addr.Labels)
		if err != nil {
			return fmt.Errorf("failed to ensure floating IP: %w", err)
		}
		p.logResource(created, "floating IP", fip.Name, fip.ID)
	}

	spec := BuildInstance(p.cfg, key.Name)
	p.observer.Printf("[%s] Reconciling server %s (%s, %s, %s)...", phase, spec.Name, spec.ServerType, spec.Image, spec.Location)
	server, created, err := p.infra.EnsureServer(ctx, hcloud_client.ServerCreateOpts{
		Name:       spec.Name,
		Image:      spec.Image,
		ServerType: spec.ServerType,
		Location:   spec.Location,
		SSHKeys:    []string{spec.SSHKeyName},
		Labels:     spec.Labels,
		UserData:   spec.UserData,
		NetworkID:  netRes.Network.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure server: %w", err)
	}
	p.logResource(created, "server", server.Name, server.ID)

	reserved := ""
	if fip != nil {
		assigned, err := p.infra.AssignFloatingIP(ctx, fip, server.ID)
		if err != nil {
			return err
		}
		if assigned {
			p.observer.Printf("[%s] Assigned floating IP %s to %s", phase, fip.IP, server.Name)
		}
		reserved = fip.IP.String()
	}

	internal := hcloud_client.ServerPrivateIPv4(server, netRes.Network.ID)
	external := hcloud_client.ServerIPv4(server)
	if addr != nil && addr.UseForSSH {
		external = reserved
	}

	if err := validIPv4("external", external); err != nil {
		return err
	}
	if err := validIPv4("internal", internal); err != nil {
		return err
	}
	if reserved != "" {
		if err := validIPv4("reserved", reserved); err != nil {
			return err
		}
	}

	p.observer.Printf("[%s] Server %s reachable at %s (internal %s)", phase, server.Name, external, internal)
	return resolveAll(
		func() error { return p.server.Resolve(server) },
		func() error { return p.externalIP.Resolve(external) },
		func() error { return p.internalIP.Resolve(internal) },
		func() error { return p.reservedIP.Resolve(reserved) },
	)
}

func (p *Provisioner) ensureSSHKey(ctx context.Context) (*hcloud.SSHKey, error) {
	data, err := os.ReadFile(p.cfg.SSH.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH public key: %w", err)
	}
	name := naming.SSHKey(p.cfg.Name)
	keyLabels := labels.New(p.cfg.Name).WithRole(labels.RoleSSHKey).Merge(p.cfg.Labels).Build()

	key, created, err := p.infra.EnsureSSHKey(ctx, name, strings.TrimSpace(string(data)), keyLabels)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure SSH key: %w", err)
	}
	p.logResource(created, "ssh key", key.Name, key.ID)
	return key, nil
}

func (p *Provisioner) logResource(created bool, kind, name string, id int64) {
	if created {
		provisioning.LogResourceCreated(p.observer, phase, kind, name, id)
		return
	}
	provisioning.LogResourceExists(p.observer, phase, kind, name, id)
}

func validIPv4(kind, ip string) error {
	if ip == "" {
		return fmt.Errorf("server has no %s IPv4 address", kind)
	}
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil {
		return fmt.Errorf("%s address %q is not IPv4", kind, ip)
	}
	return nil
}

func resolveAll(steps ...func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
