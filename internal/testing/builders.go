package testing

import (
	"maps"
	"slices"

	"github.com/dimo-network/k3sform/internal/config"
)

// ConfigBuilder provides a fluent interface for constructing test configs.
// Each method returns a new builder (immutable) for chaining.
type ConfigBuilder struct {
	cfg config.Config
}

// NewConfigBuilder creates a builder with every default applied, the
// project named "test" and a documentation source range.
func NewConfigBuilder() *ConfigBuilder {
	cfg := config.Config{Name: "test", SourceRanges: []string{"203.0.113.0/24"}}
	cfg.ApplyDefaults()
	return &ConfigBuilder{cfg: cfg}
}

// WithName sets the project name.
func (b *ConfigBuilder) WithName(name string) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.Name = name
	return nb
}

// WithLocation sets the Hetzner location.
func (b *ConfigBuilder) WithLocation(location string) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.Location = location
	return nb
}

// WithKubePort sets the API port.
func (b *ConfigBuilder) WithKubePort(port int) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.KubePort = port
	return nb
}

// WithExtraPorts sets additional firewall ports.
func (b *ConfigBuilder) WithExtraPorts(ports ...int) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.ExtraPorts = ports
	return nb
}

// WithSourceRanges sets the firewall source CIDRs.
func (b *ConfigBuilder) WithSourceRanges(ranges ...string) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.SourceRanges = ranges
	return nb
}

// WithReservedAddress enables or disables the floating IP.
func (b *ConfigBuilder) WithReservedAddress(enabled bool) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.ReservedAddress.Enabled = &enabled
	return nb
}

// WithReservedForSSH routes bootstrap through the floating IP.
func (b *ConfigBuilder) WithReservedForSSH() *ConfigBuilder {
	nb := b.clone()
	enabled := true
	nb.cfg.ReservedAddress.Enabled = &enabled
	nb.cfg.ReservedAddress.UseForSSH = true
	return nb
}

// WithSSHPort sets the port bootstrap connects to.
func (b *ConfigBuilder) WithSSHPort(port int) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.SSH.Port = port
	return nb
}

// WithKeyPaths sets the SSH key files.
func (b *ConfigBuilder) WithKeyPaths(privatePath, publicPath string) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.SSH.PrivateKeyPath = privatePath
	nb.cfg.SSH.PublicKeyPath = publicPath
	return nb
}

// WithDiscoverNodes enables node discovery.
func (b *ConfigBuilder) WithDiscoverNodes() *ConfigBuilder {
	nb := b.clone()
	nb.cfg.DiscoverNodes = true
	return nb
}

// WithApplications appends application overrides.
func (b *ConfigBuilder) WithApplications(apps ...config.Application) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.Applications = append(nb.cfg.Applications, apps...)
	return nb
}

// WithK3s sets the installer options.
func (b *ConfigBuilder) WithK3s(version, channel string, extraArgs ...string) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.K3s = config.K3sConfig{Version: version, Channel: channel, ExtraArgs: extraArgs}
	return nb
}

// WithConcurrency sets the graph parallelism.
func (b *ConfigBuilder) WithConcurrency(n int) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.Concurrency = n
	return nb
}

// WithOutputsDir sets the outputs directory.
func (b *ConfigBuilder) WithOutputsDir(dir string) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.Outputs.Dir = dir
	return nb
}

// Build returns a copy of the configuration.
func (b *ConfigBuilder) Build() *config.Config {
	cfg := b.clone().cfg
	return &cfg
}

func (b *ConfigBuilder) clone() *ConfigBuilder {
	cfg := b.cfg
	cfg.ExtraPorts = slices.Clone(b.cfg.ExtraPorts)
	cfg.SourceRanges = slices.Clone(b.cfg.SourceRanges)
	cfg.Applications = slices.Clone(b.cfg.Applications)
	cfg.K3s.ExtraArgs = slices.Clone(b.cfg.K3s.ExtraArgs)
	cfg.Labels = maps.Clone(b.cfg.Labels)
	if b.cfg.ReservedAddress.Enabled != nil {
		enabled := *b.cfg.ReservedAddress.Enabled
		cfg.ReservedAddress.Enabled = &enabled
	}
	return &ConfigBuilder{cfg: cfg}
}
