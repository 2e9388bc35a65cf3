package orchestration

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/dimo-network/k3sform/internal/bootstrap"
	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/dag"
	"github.com/dimo-network/k3sform/internal/deploy"
	"github.com/dimo-network/k3sform/internal/deploy/helm"
	"github.com/dimo-network/k3sform/internal/kube"
	"github.com/dimo-network/k3sform/internal/outputs"
	hcloud_client "github.com/dimo-network/k3sform/internal/platform/hcloud"
	"github.com/dimo-network/k3sform/internal/platform/hcloud/hcloudtest"
	"github.com/dimo-network/k3sform/internal/platform/ssh"
	"github.com/dimo-network/k3sform/internal/provisioning"
	fixtures "github.com/dimo-network/k3sform/internal/testing"
)

type fakeInstaller struct {
	mu          sync.Mutex
	requests    []helm.Request
	uninstalled []string
	fail        map[string]error
}

func (f *fakeInstaller) InstallOrUpgrade(_ context.Context, req helm.Request) (helm.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[req.Name]; err != nil {
		return helm.Result{}, err
	}
	f.requests = append(f.requests, req)
	return helm.Result{Action: helm.ActionInstalled, Revision: 1}, nil
}

func (f *fakeInstaller) Uninstall(_ context.Context, name, _ string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uninstalled = append(f.uninstalled, name)
	return helm.ActionUninstalled, nil
}

func (f *fakeInstaller) request(name string) (helm.Request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.Name == name {
			return r, true
		}
	}
	return helm.Request{}, false
}

func (f *fakeInstaller) installed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.requests {
		out = append(out, r.Name)
	}
	return out
}

type harness struct {
	cfg       *config.Config
	api       *hcloudtest.API
	client    *hcloud_client.RealClient
	host      *fixtures.FakeHost
	installer *fakeInstaller
	clientset *fake.Clientset
	store     *outputs.FileStore
	observer  *fixtures.RecordingObserver
	hosts     []string
}

func newHarness(t *testing.T, build func(*fixtures.ConfigBuilder) *fixtures.ConfigBuilder) *harness {
	t.Helper()
	priv, pub := fixtures.WriteKeyPair(t, t.TempDir())
	b := fixtures.NewConfigBuilder().WithName("demo").WithKeyPaths(priv, pub)
	if build != nil {
		b = build(b)
	}

	api := hcloudtest.New(t)
	timeouts := config.DefaultTimeouts()
	timeouts.RetryInitialDelay = time.Millisecond
	timeouts.APIReady = time.Second
	client := hcloud_client.NewRealClient("",
		hcloud_client.WithHCloudClient(api.Client()),
		hcloud_client.WithTimeouts(timeouts),
		hcloud_client.WithLogf(t.Logf),
		hcloud_client.WithPollInterval(10*time.Millisecond),
	)

	return &harness{
		cfg:       b.Build(),
		api:       api,
		client:    client,
		host:      fixtures.NewFakeHost(),
		installer: &fakeInstaller{fail: map[string]error{}},
		clientset: fake.NewSimpleClientset(),
		store:     outputs.NewFileStore(t.TempDir()),
		observer:  fixtures.NewRecordingObserver(),
	}
}

func (h *harness) orchestrator(opts ...Option) *Orchestrator {
	timeouts := config.DefaultTimeouts()
	timeouts.APIReady = time.Second
	base := []Option{
		WithBootstrapOptions(
			bootstrap.WithExecutorFactory(func(host string) (ssh.Executor, error) {
				h.hosts = append(h.hosts, host)
				return h.host, nil
			}),
			bootstrap.WithVersionProbe(func(context.Context, []byte) (string, error) { return "v1.31.4+k3s1", nil }),
			bootstrap.WithPollInterval(time.Millisecond),
		),
		WithClusterFactory(func(kubeconfig []byte) (*Cluster, error) {
			if strings.Contains(string(kubeconfig), "127.0.0.1") {
				return nil, errors.New("kubeconfig still points at loopback")
			}
			kc := kube.NewFromClientset(h.clientset)
			return &Cluster{Namespaces: kc, Installer: h.installer, Nodes: kc}, nil
		}),
		WithNodePollInterval(time.Millisecond),
		WithMetrics(provisioning.NewMetrics()),
	}
	return New(h.cfg, config.Env{}, timeouts, h.client, h.store, h.observer, append(base, opts...)...)
}

func readyNode(name string) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status: corev1.NodeStatus{Conditions: []corev1.NodeCondition{
			{Type: corev1.NodeReady, Status: corev1.ConditionTrue},
		}},
	}
}

func index(order []string, name string) int {
	return slices.Index(order, name)
}

func TestPlan(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	order, err := h.orchestrator().Plan()
	require.NoError(t, err)

	assert.Equal(t, []string{TaskNetwork, TaskCompute, TaskInstall, TaskFetch, TaskAPI}, order[:5])
	assert.NotContains(t, order, TaskNodes)

	for _, name := range []string{deploy.MetalLB, deploy.NginxIngress, deploy.Kafka, deploy.IdentityAPI} {
		assert.Greater(t, index(order, deploy.ReleaseTask(name)), index(order, TaskAPI), name)
	}
	assert.Less(t, index(order, deploy.NamespaceTask("kafka")), index(order, deploy.ReleaseTask(deploy.Kafka)))
	assert.Less(t, index(order, deploy.ReleaseTask(deploy.PostgresOperator)), index(order, deploy.ReleaseTask(deploy.PostgresCluster)))
	assert.Less(t, index(order, deploy.ReleaseTask(deploy.PostgresCluster)), index(order, deploy.ReleaseTask(deploy.IdentityAPI)))
	assert.Less(t, index(order, deploy.ReleaseTask(deploy.Kafka)), index(order, deploy.ReleaseTask(deploy.IdentityAPI)))
}

func TestPlan_NodeDiscovery(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(b *fixtures.ConfigBuilder) *fixtures.ConfigBuilder { return b.WithDiscoverNodes() })
	g, err := h.orchestrator().Graph()
	require.NoError(t, err)

	assert.Equal(t, []string{TaskAPI}, g.Dependencies(TaskNodes))
	assert.Contains(t, g.Dependencies(deploy.ReleaseTask(deploy.PostgresCluster)), TaskNodes)
	assert.NotContains(t, g.Dependencies(deploy.ReleaseTask(deploy.Kafka)), TaskNodes)
}

func TestPlan_InvalidOverride(t *testing.T) {
	t.Parallel()

	disabled := false
	h := newHarness(t, func(b *fixtures.ConfigBuilder) *fixtures.ConfigBuilder {
		return b.WithApplications(config.Application{Name: deploy.Kafka, Enabled: &disabled})
	})
	_, err := h.orchestrator().Plan()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depends on disabled release kafka")
}

func TestApply(t *testing.T) {
	t.Parallel()
	ctx := fixtures.TestContext(t)

	h := newHarness(t, nil)
	out, report, err := h.orchestrator().Apply(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Failed())
	assert.Empty(t, report.Skipped())

	require.Len(t, h.api.Servers(), 1)
	assert.Equal(t, "demo-server", out.InstanceName)
	assert.Equal(t, "203.0.113.10", out.ExternalIP)
	assert.Equal(t, "10.0.1.2", out.InternalIP)
	assert.Equal(t, "198.51.100.10", out.ReservedIP)
	assert.Equal(t, "https://203.0.113.10:6443", out.APIServer)
	assert.NotContains(t, string(out.Kubeconfig), "127.0.0.1")
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, []string{"203.0.113.10", "203.0.113.10"}, h.hosts)

	assert.ElementsMatch(t, []string{
		deploy.MetalLB, deploy.NginxIngress, deploy.PostgresOperator, deploy.PostgresOperatorUI,
		deploy.PostgresCluster, deploy.Kafka, deploy.IdentityAPI,
	}, h.installer.installed())
	assert.Equal(t, helm.ActionInstalled, out.Releases[deploy.Kafka])

	ingress, ok := h.installer.request(deploy.NginxIngress)
	require.True(t, ok)
	ip, _ := ingress.Values.Lookup("controller.service.loadBalancerIP")
	assert.Equal(t, "198.51.100.10", ip)

	ns, err := h.clientset.CoreV1().Namespaces().Get(ctx, "identity-api", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "demo", ns.Labels["k3sform.io/project"])

	stored, err := h.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, out.RunID, stored.RunID)
	assert.Equal(t, out.Kubeconfig, stored.Kubeconfig)
}

func TestApply_SecondRunCreatesNoCloudResources(t *testing.T) {
	t.Parallel()
	ctx := fixtures.TestContext(t)

	h := newHarness(t, nil)
	first, _, err := h.orchestrator().Apply(ctx)
	require.NoError(t, err)

	h.api.ResetRequests()
	second, _, err := h.orchestrator().Apply(ctx)
	require.NoError(t, err)

	assert.Zero(t, h.api.Writes())
	assert.Zero(t, h.api.Count(http.MethodPost, ""))
	assert.Len(t, h.api.Servers(), 1)
	assert.Equal(t, first.ExternalIP, second.ExternalIP)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestApply_InstallFailureSkipsDeploy(t *testing.T) {
	t.Parallel()
	ctx := fixtures.TestContext(t)

	h := newHarness(t, nil)
	h.host.FailInstall = true
	_, report, err := h.orchestrator().Apply(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task k3s-install")
	assert.Contains(t, err.Error(), "Download failed")

	assert.Equal(t, []string{TaskInstall}, report.Failed())
	assert.Contains(t, report.Skipped(), TaskFetch)
	assert.Contains(t, report.Skipped(), deploy.ReleaseTask(deploy.IdentityAPI))
	assert.Empty(t, h.installer.installed())

	_, err = h.store.Load(ctx)
	assert.ErrorIs(t, err, outputs.ErrNotFound)
	assert.NotEmpty(t, h.observer.EventsOfType(provisioning.EventTaskSkipped))
}

func TestApply_FailedReleaseSkipsDependents(t *testing.T) {
	t.Parallel()
	ctx := fixtures.TestContext(t)

	h := newHarness(t, func(b *fixtures.ConfigBuilder) *fixtures.ConfigBuilder { return b.WithConcurrency(1) })
	h.installer.fail[deploy.Kafka] = errors.New("timed out waiting for the condition")

	out, report, err := h.orchestrator().Apply(ctx)
	require.Error(t, err)
	assert.Equal(t, dag.StatusFailed, report.Status(deploy.ReleaseTask(deploy.Kafka)))
	assert.Equal(t, dag.StatusSkipped, report.Status(deploy.ReleaseTask(deploy.IdentityAPI)))
	assert.NotContains(t, h.installer.installed(), deploy.IdentityAPI)

	// The kubeconfig exists, so outputs are kept for the retry.
	require.NotNil(t, out)
	stored, err := h.store.Load(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.Kubeconfig)
}

func TestApply_SequentialFollowsPlan(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(b *fixtures.ConfigBuilder) *fixtures.ConfigBuilder { return b.WithConcurrency(1) })
	o := h.orchestrator()
	plan, err := o.Plan()
	require.NoError(t, err)

	_, report, err := o.Apply(fixtures.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, plan, report.Started)
}

func TestApply_NodeDiscoveryFeedsPostgres(t *testing.T) {
	t.Parallel()
	ctx := fixtures.TestContext(t)

	h := newHarness(t, func(b *fixtures.ConfigBuilder) *fixtures.ConfigBuilder { return b.WithDiscoverNodes() })
	_, err := h.clientset.CoreV1().Nodes().Create(ctx, readyNode("demo-server"), metav1.CreateOptions{})
	require.NoError(t, err)

	out, _, err := h.orchestrator().Apply(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"demo-server"}, out.NodeNames)

	pg, ok := h.installer.request(deploy.PostgresCluster)
	require.True(t, ok)
	nodes, _ := pg.Values.Lookup("persistentVolumes.replicaNodes")
	assert.Equal(t, []any{"demo-server"}, nodes)
}

func TestApply_PreflightFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.cfg.Concurrency = 0
	_, _, err := h.orchestrator().Apply(fixtures.TestContext(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
	assert.Empty(t, h.api.Requests())
}

func TestDestroy(t *testing.T) {
	t.Parallel()
	ctx := fixtures.TestContext(t)

	h := newHarness(t, nil)
	_, _, err := h.orchestrator().Apply(ctx)
	require.NoError(t, err)

	require.NoError(t, h.orchestrator().Destroy(ctx, DestroyOptions{}))
	assert.Len(t, h.installer.uninstalled, 7)
	assert.Equal(t, deploy.IdentityAPI, h.installer.uninstalled[0])
	assert.Empty(t, h.api.Servers())
	assert.Empty(t, h.api.Networks())

	_, err = h.store.Load(ctx)
	assert.ErrorIs(t, err, outputs.ErrNotFound)
}

func TestDestroy_AppsOnly(t *testing.T) {
	t.Parallel()
	ctx := fixtures.TestContext(t)

	h := newHarness(t, nil)
	_, _, err := h.orchestrator().Apply(ctx)
	require.NoError(t, err)

	require.NoError(t, h.orchestrator().Destroy(ctx, DestroyOptions{AppsOnly: true}))
	assert.NotEmpty(t, h.installer.uninstalled)
	assert.Len(t, h.api.Servers(), 1)

	_, err = h.store.Load(ctx)
	assert.NoError(t, err)
}

func TestDestroy_WithoutOutputs(t *testing.T) {
	t.Parallel()
	ctx := fixtures.TestContext(t)

	h := newHarness(t, nil)
	require.NoError(t, h.orchestrator().Destroy(ctx, DestroyOptions{}))
	assert.Empty(t, h.installer.uninstalled)

	assert.Error(t, h.orchestrator().Destroy(ctx, DestroyOptions{AppsOnly: true, SkipApps: true}))
}

func TestNodes(t *testing.T) {
	t.Parallel()
	ctx := fixtures.TestContext(t)

	h := newHarness(t, nil)
	o := h.orchestrator()
	_, err := o.Nodes(ctx)
	require.ErrorIs(t, err, outputs.ErrNotFound)

	_, _, err = o.Apply(ctx)
	require.NoError(t, err)
	_, err = h.clientset.CoreV1().Nodes().Create(ctx, readyNode("demo-server"), metav1.CreateOptions{})
	require.NoError(t, err)

	names, err := o.Nodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"demo-server"}, names)
}
