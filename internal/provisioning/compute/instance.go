package compute

import (
	"strings"

	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/util/labels"
	"github.com/dimo-network/k3sform/internal/util/naming"
)

// InstanceSpec describes the server.
type InstanceSpec struct {
	Name       string
	ServerType string
	Image      string
	Location   string
	SSHKeyName string
	UserData   string
	Labels     map[string]string
}

// AddressSpec describes the reserved public address.
type AddressSpec struct {
	Name         string
	HomeLocation string
	Labels       map[string]string
	// UseForSSH routes bootstrap and the kubeconfig through this address.
	UseForSSH bool
}

// BuildInstance returns the server descriptor. Its labels carry the tag the
// firewall selects on.
func BuildInstance(cfg *config.Config, sshKeyName string) InstanceSpec {
	return InstanceSpec{
		Name:       naming.Server(cfg.Name),
		ServerType: cfg.MachineType,
		Image:      cfg.OSImage,
		Location:   cfg.Location,
		SSHKeyName: sshKeyName,
		UserData:   StartupScript(cfg),
		Labels: labels.New(cfg.Name).
			WithRole(labels.RoleServer).
			WithTag(cfg.InstanceTag).
			Merge(cfg.Labels).
			Build(),
	}
}

// BuildAddress returns the floating IP descriptor, or nil when no reserved
// address is configured.
func BuildAddress(cfg *config.Config) *AddressSpec {
	if !cfg.ReservedAddress.IsEnabled() {
		return nil
	}
	return &AddressSpec{
		Name:         naming.FloatingIP(cfg.Name),
		HomeLocation: cfg.Location,
		Labels:       labels.New(cfg.Name).WithRole(labels.RoleAddress).Merge(cfg.Labels).Build(),
		UseForSSH:    cfg.ReservedAddress.UseForSSH,
	}
}

// StartupScript renders the cloud-init user data. With installOnBoot the
// server also runs the k3s installer on first boot; the SSH install later
// reconfigures it with the final addresses.
func StartupScript(cfg *config.Config) string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	b.WriteString("apt-get update\n")
	if cfg.Bootstrap.InstallOnBoot {
		b.WriteString("curl -sfL https://get.k3s.io | ")
		if cfg.K3s.Version != "" {
			b.WriteString("INSTALL_K3S_VERSION=" + cfg.K3s.Version + " ")
		} else if cfg.K3s.Channel != "" {
			b.WriteString("INSTALL_K3S_CHANNEL=" + cfg.K3s.Channel + " ")
		}
		b.WriteString("sh -s - --disable servicelb --write-kubeconfig-mode=644\n")
	}
	return b.String()
}
