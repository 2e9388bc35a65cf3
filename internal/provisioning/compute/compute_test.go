package compute

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/dag"
	hcloud_client "github.com/dimo-network/k3sform/internal/platform/hcloud"
	"github.com/dimo-network/k3sform/internal/platform/hcloud/hcloudtest"
	"github.com/dimo-network/k3sform/internal/provisioning/network"
	fixtures "github.com/dimo-network/k3sform/internal/testing"
	"github.com/dimo-network/k3sform/internal/util/labels"
)

func TestBuildInstance(t *testing.T) {
	t.Parallel()
	cfg := fixtures.NewConfigBuilder().WithName("demo").Build()

	spec := BuildInstance(cfg, "demo-ssh")
	assert.Equal(t, "demo-server", spec.Name)
	assert.Equal(t, "cx22", spec.ServerType)
	assert.Equal(t, "debian-12", spec.Image)
	assert.Equal(t, "fsn1", spec.Location)
	assert.Equal(t, "demo-ssh", spec.SSHKeyName)
	assert.Equal(t, "k3s", spec.Labels[labels.KeyTag])
	assert.Equal(t, labels.RoleServer, spec.Labels[labels.KeyRole])
	assert.True(t, labels.Matches(labels.TagSelector(cfg.InstanceTag), spec.Labels))
}

func TestBuildAddress(t *testing.T) {
	t.Parallel()

	assert.Nil(t, BuildAddress(fixtures.NewConfigBuilder().WithReservedAddress(false).Build()))

	addr := BuildAddress(fixtures.NewConfigBuilder().WithName("demo").Build())
	require.NotNil(t, addr)
	assert.Equal(t, "demo-ipv4", addr.Name)
	assert.Equal(t, "fsn1", addr.HomeLocation)
	assert.False(t, addr.UseForSSH)

	addr = BuildAddress(fixtures.NewConfigBuilder().WithReservedForSSH().Build())
	require.NotNil(t, addr)
	assert.True(t, addr.UseForSSH)
}

func TestStartupScript(t *testing.T) {
	t.Parallel()

	cfg := fixtures.NewConfigBuilder().Build()
	assert.Equal(t, "#!/bin/bash\napt-get update\n", StartupScript(cfg))

	cfg.Bootstrap.InstallOnBoot = true
	cfg.K3s.Version = "v1.30.4+k3s1"
	script := StartupScript(cfg)
	assert.True(t, strings.HasPrefix(script, "#!/bin/bash\napt-get update\n"))
	assert.Contains(t, script, "curl -sfL https://get.k3s.io | INSTALL_K3S_VERSION=v1.30.4+k3s1 sh -s -")

	cfg.K3s.Version = ""
	cfg.K3s.Channel = "stable"
	assert.Contains(t, StartupScript(cfg), "INSTALL_K3S_CHANNEL=stable sh -s -")
}

type stage struct {
	api     *hcloudtest.API
	client  *hcloud_client.RealClient
	network *network.Provisioner
	compute *Provisioner
	obs     *fixtures.RecordingObserver
}

func newStage(t *testing.T, build func(*fixtures.ConfigBuilder) *fixtures.ConfigBuilder) *stage {
	t.Helper()
	priv, pub := fixtures.WriteKeyPair(t, t.TempDir())
	b := fixtures.NewConfigBuilder().WithName("demo").WithKeyPaths(priv, pub)
	if build != nil {
		b = build(b)
	}
	cfg := b.Build()

	api := hcloudtest.New(t)
	timeouts := config.DefaultTimeouts()
	timeouts.RetryInitialDelay = time.Millisecond
	client := hcloud_client.NewRealClient("",
		hcloud_client.WithHCloudClient(api.Client()),
		hcloud_client.WithTimeouts(timeouts),
	)
	obs := fixtures.NewRecordingObserver()
	return &stage{
		api:     api,
		client:  client,
		network: network.NewProvisioner(cfg, client, obs),
		compute: NewProvisioner(cfg, client, obs),
		obs:     obs,
	}
}

func (s *stage) run(ctx context.Context) error {
	if err := s.network.Provision(ctx); err != nil {
		return err
	}
	return s.compute.Provision(ctx, s.network.Result())
}

func TestProvision_SingleServerWithTwoAddresses(t *testing.T) {
	s := newStage(t, func(b *fixtures.ConfigBuilder) *fixtures.ConfigBuilder { return b.WithReservedAddress(false) })
	ctx := fixtures.TestContext(t)

	require.NoError(t, s.run(ctx))

	servers := s.api.Servers()
	require.Len(t, servers, 1)
	assert.Equal(t, "demo-server", servers[0].Name)
	assert.Equal(t, "k3s", servers[0].Labels[labels.KeyTag])

	external, err := s.compute.ExternalIP().Get()
	require.NoError(t, err)
	internal, err := s.compute.InternalIP().Get()
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.10", external)
	assert.Equal(t, "10.0.1.2", internal)

	reserved, err := s.compute.ReservedIP().Get()
	require.NoError(t, err)
	assert.Empty(t, reserved)
	assert.Empty(t, s.api.FloatingIPs())
}

func TestProvision_ReservedAddress(t *testing.T) {
	s := newStage(t, nil)
	ctx := fixtures.TestContext(t)

	require.NoError(t, s.run(ctx))

	fips := s.api.FloatingIPs()
	require.Len(t, fips, 1)
	require.NotNil(t, fips[0].Server)
	assert.Equal(t, s.api.Servers()[0].ID, *fips[0].Server)

	reserved := s.compute.ReservedIP().MustGet()
	assert.Equal(t, "198.51.100.10", reserved)
	// The server's own address is still used for SSH.
	assert.Equal(t, "203.0.113.10", s.compute.ExternalIP().MustGet())
}

func TestProvision_ReservedAddressForSSH(t *testing.T) {
	s := newStage(t, func(b *fixtures.ConfigBuilder) *fixtures.ConfigBuilder { return b.WithReservedForSSH() })

	require.NoError(t, s.run(fixtures.TestContext(t)))
	assert.Equal(t, "198.51.100.10", s.compute.ExternalIP().MustGet())
}

func TestProvision_SecondRunCreatesNothing(t *testing.T) {
	s := newStage(t, nil)
	ctx := fixtures.TestContext(t)
	require.NoError(t, s.run(ctx))

	first := s.compute.ExternalIP().MustGet()
	s.api.ResetRequests()

	again := &stage{
		api:     s.api,
		network: network.NewProvisioner(s.compute.cfg, s.client, s.obs),
		compute: NewProvisioner(s.compute.cfg, s.client, s.obs),
	}
	require.NoError(t, again.run(ctx))

	assert.Zero(t, s.api.Count(http.MethodPost, ""))
	assert.Zero(t, s.api.Writes())
	assert.Equal(t, first, again.compute.ExternalIP().MustGet())
	assert.Len(t, s.api.Servers(), 1)
}

func TestProvision_FailureRejectsFutures(t *testing.T) {
	s := newStage(t, nil)
	ctx := fixtures.TestContext(t)
	require.NoError(t, s.network.Provision(ctx))
	s.api.FailNext(http.MethodPost, "/servers", http.StatusUnprocessableEntity, hcloud.ErrorCodeInvalidInput)

	err := s.compute.Provision(ctx, s.network.Result())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ensure server")

	_, err = s.compute.ExternalIP().Await(ctx)
	assert.Error(t, err)
	_, err = s.compute.InternalIP().Get()
	assert.Error(t, err)
}

func TestProvision_WaitsForNetwork(t *testing.T) {
	s := newStage(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.compute.Provision(ctx, dag.NewFuture[*network.Result]("network"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, s.api.Requests())
}

func TestProvision_MissingPublicKey(t *testing.T) {
	s := newStage(t, nil)
	ctx := fixtures.TestContext(t)
	require.NoError(t, s.network.Provision(ctx))
	s.compute.cfg.SSH.PublicKeyPath = "/nonexistent/id_rsa.pub"

	err := s.compute.Provision(ctx, s.network.Result())
	assert.ErrorContains(t, err, "failed to read SSH public key")
}

func TestValidIPv4(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validIPv4("external", "203.0.113.5"))
	assert.ErrorContains(t, validIPv4("external", ""), "no external IPv4")
	assert.ErrorContains(t, validIPv4("internal", "2001:db8::1"), "not IPv4")
	assert.ErrorContains(t, validIPv4("internal", "bogus"), "not IPv4")
}
