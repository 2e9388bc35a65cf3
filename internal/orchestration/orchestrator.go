package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/dimo-network/k3sform/internal/bootstrap"
	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/deploy"
	"github.com/dimo-network/k3sform/internal/deploy/helm"
	"github.com/dimo-network/k3sform/internal/kube"
	"github.com/dimo-network/k3sform/internal/outputs"
	hcloud_client "github.com/dimo-network/k3sform/internal/platform/hcloud"
	"github.com/dimo-network/k3sform/internal/provisioning"
)

// Task names outside the release and namespace families.
const (
	TaskNetwork = "network"
	TaskCompute = "compute"
	TaskInstall = bootstrap.PhaseInstall
	TaskFetch   = bootstrap.PhaseFetch
	TaskAPI     = bootstrap.PhaseAPI
	TaskNodes   = "nodes"
)

const defaultNodePollInterval = 5 * time.Second

// NodeWaiter lists the cluster nodes once they are ready.
type NodeWaiter interface {
	WaitForReadyNodes(ctx context.Context, interval, timeout time.Duration) ([]string, error)
}

// Cluster holds the clients the post-bootstrap tasks use.
type Cluster struct {
	Namespaces deploy.NamespaceEnsurer
	Installer  deploy.Installer
	Nodes      NodeWaiter
}

// ClusterFactory opens the cluster clients for a kubeconfig.
type ClusterFactory func(kubeconfig []byte) (*Cluster, error)

// DefaultClusterFactory opens a client-go and a Helm client.
func DefaultClusterFactory(logf func(format string, v ...any)) ClusterFactory {
	return func(kubeconfig []byte) (*Cluster, error) {
		kc, err := kube.NewFromKubeconfig(kubeconfig)
		if err != nil {
			return nil, err
		}
		return &Cluster{
			Namespaces: kc,
			Installer:  helm.NewClient(kubeconfig, logf),
			Nodes:      kc,
		}, nil
	}
}

// Orchestrator runs apply and destroy for one configuration.
type Orchestrator struct {
	cfg      *config.Config
	env      config.Env
	timeouts *config.Timeouts
	infra    hcloud_client.InfrastructureManager
	store    outputs.Store
	observer provisioning.Observer
	metrics  *provisioning.Metrics

	concurrency      int
	newCluster       ClusterFactory
	bootstrapOpts    []bootstrap.Option
	nodePollInterval time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency overrides the configured task parallelism.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithMetrics records task and release metrics.
func WithMetrics(m *provisioning.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClusterFactory replaces how cluster clients are opened.
func WithClusterFactory(f ClusterFactory) Option {
	return func(o *Orchestrator) { o.newCluster = f }
}

// WithBootstrapOptions passes options to the bootstrapper.
func WithBootstrapOptions(opts ...bootstrap.Option) Option {
	return func(o *Orchestrator) { o.bootstrapOpts = append(o.bootstrapOpts, opts...) }
}

// WithNodePollInterval sets how often node discovery re-checks readiness.
func WithNodePollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.nodePollInterval = d }
}

// New creates an orchestrator.
func New(
	cfg *config.Config,
	env config.Env,
	timeouts *config.Timeouts,
	infra hcloud_client.InfrastructureManager,
	store outputs.Store,
	observer provisioning.Observer,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		cfg:              cfg,
		env:              env,
		timeouts:         timeouts,
		infra:            infra,
		store:            store,
		observer:         observer,
		concurrency:      cfg.Concurrency,
		nodePollInterval: defaultNodePollInterval,
	}
	o.newCluster = DefaultClusterFactory(observer.Printf)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Releases returns the enabled releases of the configuration.
func (o *Orchestrator) Releases() ([]deploy.Release, error) {
	return deploy.Releases(o.cfg, o.timeouts.Release)
}

// Plan returns the task execution order.
func (o *Orchestrator) Plan() ([]string, error) {
	g, _, err := o.build()
	if err != nil {
		return nil, err
	}
	order, err := g.Order()
	if err != nil {
		return nil, fmt.Errorf("failed to order tasks: %w", err)
	}
	return order, nil
}
