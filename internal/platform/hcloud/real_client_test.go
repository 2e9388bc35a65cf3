package hcloud

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/platform/hcloud/hcloudtest"
)

func newTestClient(t *testing.T) (*RealClient, *hcloudtest.API) {
	t.Helper()
	api := hcloudtest.New(t)
	timeouts := config.DefaultTimeouts()
	timeouts.RetryMaxAttempts = 2
	timeouts.RetryInitialDelay = time.Millisecond
	timeouts.Delete = 5 * time.Second
	timeouts.ServerCreate = 5 * time.Second

	c := NewRealClient("",
		WithHCloudClient(api.Client()),
		WithTimeouts(timeouts),
		WithLogf(t.Logf),
		WithPollInterval(10*time.Millisecond),
	)
	return c, api
}

func testPublicKey(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return string(ssh.MarshalAuthorizedKey(sshPub))
}

func testRules(ports ...string) []hcloud.FirewallRule {
	_, any4, _ := net.ParseCIDR("0.0.0.0/0")
	rules := make([]hcloud.FirewallRule, 0, len(ports))
	for _, p := range ports {
		port := p
		rules = append(rules, hcloud.FirewallRule{
			Direction: hcloud.FirewallRuleDirectionIn,
			Protocol:  hcloud.FirewallRuleProtocolTCP,
			Port:      &port,
			SourceIPs: []net.IPNet{*any4},
		})
	}
	return rules
}

// setupNetwork creates demo-net with one subnet and returns it refreshed.
func setupNetwork(t *testing.T, c *RealClient) *hcloud.Network {
	t.Helper()
	ctx := context.Background()
	network, _, err := c.EnsureNetwork(ctx, "demo-net", "10.0.0.0/16", map[string]string{"k3sform.io/project": "demo"})
	require.NoError(t, err)
	_, err = c.EnsureSubnet(ctx, network, "10.0.1.0/24", "eu-central")
	require.NoError(t, err)
	network, err = c.GetNetwork(ctx, "demo-net")
	require.NoError(t, err)
	require.NotNil(t, network)
	return network
}

func TestEnsureNetwork(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	network, created, err := c.EnsureNetwork(ctx, "demo-net", "10.0.0.0/16", nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "10.0.0.0/16", network.IPRange.String())

	again, created, err := c.EnsureNetwork(ctx, "demo-net", "10.0.0.0/16", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, network.ID, again.ID)
	assert.Equal(t, 1, api.Count(http.MethodPost, "/networks"))
}

func TestEnsureNetwork_RangeMismatch(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, _, err := c.EnsureNetwork(ctx, "demo-net", "10.0.0.0/16", nil)
	require.NoError(t, err)

	_, _, err = c.EnsureNetwork(ctx, "demo-net", "10.1.0.0/16", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different IP range")
}

func TestEnsureNetwork_InvalidRange(t *testing.T) {
	c, api := newTestClient(t)

	_, _, err := c.EnsureNetwork(context.Background(), "demo-net", "not-a-cidr", nil)
	require.Error(t, err)
	assert.Empty(t, api.Requests())
}

func TestEnsureSubnet(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	network, _, err := c.EnsureNetwork(ctx, "demo-net", "10.0.0.0/16", nil)
	require.NoError(t, err)

	added, err := c.EnsureSubnet(ctx, network, "10.0.1.0/24", "eu-central")
	require.NoError(t, err)
	assert.True(t, added)

	network, err = c.GetNetwork(ctx, "demo-net")
	require.NoError(t, err)
	require.Len(t, network.Subnets, 1)
	assert.Equal(t, "10.0.1.0/24", network.Subnets[0].IPRange.String())

	added, err = c.EnsureSubnet(ctx, network, "10.0.1.0/24", "eu-central")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, api.Count(http.MethodPost, "/networks/"))
}

func TestEnsureSubnet_Errors(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.EnsureSubnet(ctx, nil, "10.0.1.0/24", "eu-central")
	assert.ErrorContains(t, err, "requires an existing network")

	network, _, err := c.EnsureNetwork(ctx, "demo-net", "10.0.0.0/16", nil)
	require.NoError(t, err)

	_, err = c.EnsureSubnet(ctx, network, "192.168.0.0/24", "eu-central")
	assert.ErrorContains(t, err, "outside network range")

	_, err = c.EnsureSubnet(ctx, network, "garbage", "eu-central")
	assert.ErrorContains(t, err, "invalid subnet ip range")
}

func TestEnsureFirewall(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()
	selector := "k3sform.io/project=demo"

	fw, created, err := c.EnsureFirewall(ctx, "demo-fw", testRules("22", "6443"), nil, selector)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, fw.Rules, 2)

	stored := api.Firewalls()
	require.Len(t, stored, 1)
	require.Len(t, stored[0].AppliedTo, 1)
	assert.Equal(t, selector, stored[0].AppliedTo[0].LabelSelector.Selector)

	t.Run("unchanged rules are not rewritten", func(t *testing.T) {
		api.ResetRequests()
		_, created, err := c.EnsureFirewall(ctx, "demo-fw", testRules("6443", "22"), nil, selector)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Zero(t, api.Writes())
	})

	t.Run("drifted rules are replaced", func(t *testing.T) {
		api.ResetRequests()
		_, _, err := c.EnsureFirewall(ctx, "demo-fw", testRules("22", "6443", "80"), nil, selector)
		require.NoError(t, err)
		assert.Equal(t, 1, api.Count(http.MethodPost, "/firewalls/"))
		assert.Len(t, api.Firewalls()[0].Rules, 3)
	})
}

func TestRulesEqual(t *testing.T) {
	assert.True(t, RulesEqual(testRules("22", "6443"), testRules("6443", "22")))
	assert.False(t, RulesEqual(testRules("22"), testRules("22", "6443")))
	assert.False(t, RulesEqual(testRules("22"), testRules("2222")))
	assert.True(t, RulesEqual(nil, nil))
}

func TestDeleteFirewall_DetachesFirst(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	_, _, err := c.EnsureFirewall(ctx, "demo-fw", testRules("22"), nil, "k3sform.io/project=demo")
	require.NoError(t, err)

	require.NoError(t, c.DeleteFirewall(ctx, "demo-fw"))
	assert.Empty(t, api.Firewalls())
	assert.Equal(t, 1, api.Count(http.MethodPost, "/firewalls/"))

	// Deleting a missing firewall is a no-op.
	require.NoError(t, c.DeleteFirewall(ctx, "demo-fw"))
}

func TestEnsureSSHKey(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()
	pub := testPublicKey(t)

	key, created, err := c.EnsureSSHKey(ctx, "demo-key", pub, nil)
	require.NoError(t, err)
	assert.True(t, created)

	fp, err := Fingerprint(pub)
	require.NoError(t, err)
	assert.Equal(t, fp, key.Fingerprint)

	t.Run("same key is reused", func(t *testing.T) {
		again, created, err := c.EnsureSSHKey(ctx, "demo-key", pub, nil)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, key.ID, again.ID)
	})

	t.Run("same key under another name is reused", func(t *testing.T) {
		other, created, err := c.EnsureSSHKey(ctx, "other-key", pub, nil)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, key.ID, other.ID)
		assert.Len(t, api.SSHKeys(), 1)
	})

	t.Run("different key under same name fails", func(t *testing.T) {
		_, _, err := c.EnsureSSHKey(ctx, "demo-key", testPublicKey(t), nil)
		assert.ErrorContains(t, err, "exists with fingerprint")
	})

	t.Run("malformed key fails before any request", func(t *testing.T) {
		api.ResetRequests()
		_, _, err := c.EnsureSSHKey(ctx, "bad", "not a key", nil)
		assert.ErrorContains(t, err, "failed to parse public key")
		assert.Empty(t, api.Requests())
	})
}

func TestEnsureServer(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()
	network := setupNetwork(t, c)

	key, _, err := c.EnsureSSHKey(ctx, "demo-key", testPublicKey(t), nil)
	require.NoError(t, err)

	opts := ServerCreateOpts{
		Name:       "demo-server",
		Image:      "debian-12",
		ServerType: "cx22",
		Location:   "fsn1",
		SSHKeys:    []string{key.Name},
		Labels:     map[string]string{"k3sform.io/project": "demo"},
		UserData:   "#!/bin/sh\n",
		NetworkID:  network.ID,
	}

	server, created, err := c.EnsureServer(ctx, opts)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "203.0.113.10", ServerIPv4(server))
	assert.Equal(t, "10.0.1.2", ServerPrivateIPv4(server, network.ID))
	assert.Empty(t, ServerPrivateIPv4(server, network.ID+1))

	api.ResetRequests()
	again, created, err := c.EnsureServer(ctx, opts)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, server.ID, again.ID)
	assert.Zero(t, api.Writes())

	byLabel, err := c.GetServersByLabel(ctx, map[string]string{"k3sform.io/project": "demo"})
	require.NoError(t, err)
	assert.Len(t, byLabel, 1)
}

func TestEnsureServer_AttachesExistingServer(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	opts := ServerCreateOpts{Name: "demo-server", Image: "debian-12", ServerType: "cx22", Location: "fsn1"}
	server, _, err := c.EnsureServer(ctx, opts)
	require.NoError(t, err)
	assert.Empty(t, server.PrivateNet)

	network := setupNetwork(t, c)
	opts.NetworkID = network.ID
	server, created, err := c.EnsureServer(ctx, opts)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "10.0.1.2", ServerPrivateIPv4(server, network.ID))
	assert.Equal(t, 1, api.Count(http.MethodPost, "/servers/"))
}

func TestEnsureServer_UnknownServerType(t *testing.T) {
	c, api := newTestClient(t)

	_, _, err := c.EnsureServer(context.Background(), ServerCreateOpts{
		Name: "demo-server", Image: "debian-12", ServerType: "cx999", Location: "fsn1",
	})
	assert.ErrorContains(t, err, "server type not found")
	assert.Empty(t, api.Servers())
}

func TestFloatingIP(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	server, _, err := c.EnsureServer(ctx, ServerCreateOpts{
		Name: "demo-server", Image: "debian-12", ServerType: "cx22", Location: "fsn1",
	})
	require.NoError(t, err)

	fip, created, err := c.EnsureFloatingIP(ctx, "demo-ip", "fsn1", nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "198.51.100.10", fip.IP.String())

	assigned, err := c.AssignFloatingIP(ctx, fip, server.ID)
	require.NoError(t, err)
	assert.True(t, assigned)

	fip, err = c.GetFloatingIP(ctx, "demo-ip")
	require.NoError(t, err)
	require.NotNil(t, fip.Server)
	assert.Equal(t, server.ID, fip.Server.ID)

	api.ResetRequests()
	_, created, err = c.EnsureFloatingIP(ctx, "demo-ip", "fsn1", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assigned, err = c.AssignFloatingIP(ctx, fip, server.ID)
	require.NoError(t, err)
	assert.False(t, assigned)
	assert.Zero(t, api.Writes())

	_, err = c.AssignFloatingIP(ctx, nil, server.ID)
	assert.Error(t, err)
}

func TestCleanupByLabel(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()
	lbls := map[string]string{"k3sform.io/project": "demo"}

	network, _, err := c.EnsureNetwork(ctx, "demo-net", "10.0.0.0/16", lbls)
	require.NoError(t, err)
	_, err = c.EnsureSubnet(ctx, network, "10.0.1.0/24", "eu-central")
	require.NoError(t, err)
	_, _, err = c.EnsureFirewall(ctx, "demo-fw", testRules("22"), lbls, "k3sform.io/project=demo")
	require.NoError(t, err)
	key, _, err := c.EnsureSSHKey(ctx, "demo-key", testPublicKey(t), lbls)
	require.NoError(t, err)
	server, _, err := c.EnsureServer(ctx, ServerCreateOpts{
		Name: "demo-server", Image: "debian-12", ServerType: "cx22", Location: "fsn1",
		SSHKeys: []string{key.Name}, Labels: lbls, NetworkID: network.ID,
	})
	require.NoError(t, err)
	fip, _, err := c.EnsureFloatingIP(ctx, "demo-ip", "fsn1", lbls)
	require.NoError(t, err)
	_, err = c.AssignFloatingIP(ctx, fip, server.ID)
	require.NoError(t, err)

	// A resource belonging to another project survives.
	_, _, err = c.EnsureNetwork(ctx, "other-net", "10.1.0.0/16", map[string]string{"k3sform.io/project": "other"})
	require.NoError(t, err)

	api.ResetRequests()
	require.NoError(t, c.CleanupByLabel(ctx, lbls))

	assert.Empty(t, api.Servers())
	assert.Empty(t, api.FloatingIPs())
	assert.Empty(t, api.Firewalls())
	assert.Empty(t, api.SSHKeys())
	require.Len(t, api.Networks(), 1)
	assert.Equal(t, "other-net", api.Networks()[0].Name)

	var deletes []string
	for _, r := range api.Requests() {
		if r.Method == http.MethodDelete {
			deletes = append(deletes, r.Path)
		}
	}
	require.Len(t, deletes, 5)
	assert.Contains(t, deletes[0], "/servers/")
	assert.Contains(t, deletes[1], "/floating_ips/")
	assert.Contains(t, deletes[2], "/firewalls/")
	assert.Contains(t, deletes[3], "/networks/")
	assert.Contains(t, deletes[4], "/ssh_keys/")
}

func TestCleanupByLabel_EmptySelector(t *testing.T) {
	c, api := newTestClient(t)

	err := c.CleanupByLabel(context.Background(), nil)
	assert.ErrorContains(t, err, "empty label selector")
	assert.Empty(t, api.Requests())
}

func TestCleanupByLabel_CollectsErrors(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()
	lbls := map[string]string{"k3sform.io/project": "demo"}

	_, _, err := c.EnsureNetwork(ctx, "demo-net", "10.0.0.0/16", lbls)
	require.NoError(t, err)
	_, _, err = c.EnsureSSHKey(ctx, "demo-key", testPublicKey(t), lbls)
	require.NoError(t, err)

	network := api.Networks()[0]
	api.FailNext(http.MethodDelete, "/networks/"+itoa(network.ID), http.StatusInternalServerError, hcloud.ErrorCodeServiceError)

	err = c.CleanupByLabel(ctx, lbls)
	require.Error(t, err)
	var cleanupErr *CleanupError
	require.True(t, errors.As(err, &cleanupErr))
	assert.Len(t, cleanupErr.Errors, 1)
	assert.Contains(t, err.Error(), "networks")

	// The SSH key step still ran.
	assert.Empty(t, api.SSHKeys())
	assert.Len(t, api.Networks(), 1)
}

func TestDeleteOperation_RetriesLockedResource(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	_, _, err := c.EnsureNetwork(ctx, "demo-net", "10.0.0.0/16", nil)
	require.NoError(t, err)
	id := api.Networks()[0].ID
	api.FailNext(http.MethodDelete, "/networks/"+itoa(id), http.StatusLocked, hcloud.ErrorCodeLocked)

	require.NoError(t, c.DeleteNetwork(ctx, "demo-net"))
	assert.Empty(t, api.Networks())
	assert.Equal(t, 2, api.Count(http.MethodDelete, "/networks/"))
}

func TestErrorClassification(t *testing.T) {
	notFound := hcloud.Error{Code: hcloud.ErrorCodeNotFound}
	unique := hcloud.Error{Code: hcloud.ErrorCodeUniquenessError}
	limited := hcloud.Error{Code: hcloud.ErrorCodeRateLimitExceeded}
	locked := hcloud.Error{Code: hcloud.ErrorCodeLocked}

	assert.True(t, IsNotFound(notFound))
	assert.True(t, IsNotFound(errors.Join(errors.New("wrapped"), notFound)))
	assert.False(t, IsNotFound(unique))
	assert.True(t, IsUniquenessError(unique))
	assert.True(t, IsRateLimited(limited))
	assert.True(t, isResourceLocked(locked))
	assert.False(t, isResourceLocked(nil))
	assert.True(t, isInvalidParameter(unique))
	assert.False(t, isInvalidParameter(errors.New("plain")))
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
