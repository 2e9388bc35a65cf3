package helm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/release"
	"helm.sh/helm/v3/pkg/storage/driver"
)

// Actions reported by InstallOrUpgrade and Uninstall.
const (
	ActionInstalled   = "installed"
	ActionUpgraded    = "upgraded"
	ActionUnchanged   = "unchanged"
	ActionUninstalled = "uninstalled"
	ActionAbsent      = "absent"
)

const defaultTimeout = 10 * time.Minute

// Request describes one release to converge.
type Request struct {
	Name      string
	Namespace string
	Chart     ChartRef
	Values    Values
	Timeout   time.Duration
	// NoWait skips waiting for resources to become ready.
	NoWait bool
}

// Result reports what InstallOrUpgrade did.
type Result struct {
	Action   string
	Revision int
	Chart    string
}

// ConfigFactory returns the action configuration for a namespace.
type ConfigFactory func(namespace string) (*action.Configuration, error)

// Client runs Helm actions.
type Client struct {
	configFor ConfigFactory
	loadChart ChartLoader
}

// Option configures a Client.
type Option func(*Client)

// WithChartLoader replaces chart loading, typically in tests.
func WithChartLoader(l ChartLoader) Option {
	return func(c *Client) { c.loadChart = l }
}

// NewClient creates a Helm client from kubeconfig bytes. logf receives
// Helm's debug output and may be nil.
func NewClient(kubeconfig []byte, logf func(format string, v ...any), opts ...Option) *Client {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	factory := func(namespace string) (*action.Configuration, error) {
		cfg := new(action.Configuration)
		getter := newKubeconfigGetter(kubeconfig, namespace)
		if err := cfg.Init(getter, namespace, "secret", logf); err != nil {
			return nil, fmt.Errorf("failed to initialize helm action config: %w", err)
		}
		return cfg, nil
	}
	return NewClientWithConfig(factory, opts...)
}

// NewClientWithConfig creates a client on top of a custom configuration
// factory, such as one backed by the in-memory release driver.
func NewClientWithConfig(factory ConfigFactory, opts ...Option) *Client {
	c := &Client{configFor: factory, loadChart: LoadChart}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InstallOrUpgrade installs the release when it has no history and upgrades
// it otherwise. An upgrade with the same chart and values as the deployed
// revision is skipped.
func (c *Client) InstallOrUpgrade(ctx context.Context, req Request) (Result, error) {
	if req.Timeout == 0 {
		req.Timeout = defaultTimeout
	}
	cfg, err := c.configFor(req.Namespace)
	if err != nil {
		return Result{}, err
	}
	ch, err := c.loadChart(ctx, req.Chart)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load chart: %w", err)
	}
	chartID := ch.Metadata.Name + "-" + ch.Metadata.Version

	last, err := lastRelease(cfg, req.Name)
	if err != nil {
		return Result{}, err
	}

	if last == nil {
		rel, err := c.install(ctx, cfg, req, ch)
		if err != nil {
			return Result{}, fmt.Errorf("failed to install release %s: %w", req.Name, err)
		}
		return Result{Action: ActionInstalled, Revision: rel.Version, Chart: chartID}, nil
	}

	if unchanged(last, ch, req.Values) {
		return Result{Action: ActionUnchanged, Revision: last.Version, Chart: chartID}, nil
	}

	rel, err := c.upgrade(ctx, cfg, req, ch)
	if err != nil {
		return Result{}, fmt.Errorf("failed to upgrade release %s: %w", req.Name, err)
	}
	return Result{Action: ActionUpgraded, Revision: rel.Version, Chart: chartID}, nil
}

func (c *Client) install(ctx context.Context, cfg *action.Configuration, req Request, ch *chart.Chart) (*release.Release, error) {
	install := action.NewInstall(cfg)
	install.ReleaseName = req.Name
	install.Namespace = req.Namespace
	install.CreateNamespace = true
	install.Wait = !req.NoWait
	install.Timeout = req.Timeout
	return install.RunWithContext(ctx, ch, req.Values)
}

func (c *Client) upgrade(ctx context.Context, cfg *action.Configuration, req Request, ch *chart.Chart) (*release.Release, error) {
	upgrade := action.NewUpgrade(cfg)
	upgrade.Namespace = req.Namespace
	upgrade.Wait = !req.NoWait
	upgrade.Timeout = req.Timeout
	upgrade.ReuseValues = false
	return upgrade.RunWithContext(ctx, req.Name, ch, req.Values)
}

// Uninstall removes a release. A release without history is reported as
// absent.
func (c *Client) Uninstall(_ context.Context, name, namespace string, timeout time.Duration) (string, error) {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	cfg, err := c.configFor(namespace)
	if err != nil {
		return "", err
	}
	last, err := lastRelease(cfg, name)
	if err != nil {
		return "", err
	}
	if last == nil {
		return ActionAbsent, nil
	}

	uninstall := action.NewUninstall(cfg)
	uninstall.Wait = true
	uninstall.Timeout = timeout
	if _, err := uninstall.Run(name); err != nil {
		return "", fmt.Errorf("failed to uninstall release %s: %w", name, err)
	}
	return ActionUninstalled, nil
}

// Status returns the status of the latest revision, or "" when the release
// does not exist.
func (c *Client) Status(name, namespace string) (release.Status, int, error) {
	cfg, err := c.configFor(namespace)
	if err != nil {
		return "", 0, err
	}
	last, err := lastRelease(cfg, name)
	if err != nil || last == nil {
		return "", 0, err
	}
	return last.Info.Status, last.Version, nil
}

func lastRelease(cfg *action.Configuration, name string) (*release.Release, error) {
	history := action.NewHistory(cfg)
	history.Max = 1
	releases, err := history.Run(name)
	if errors.Is(err, driver.ErrReleaseNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history of release %s: %w", name, err)
	}
	var last *release.Release
	for _, r := range releases {
		if last == nil || r.Version > last.Version {
			last = r
		}
	}
	return last, nil
}

func unchanged(last *release.Release, ch *chart.Chart, values Values) bool {
	if last.Info == nil || last.Info.Status != release.StatusDeployed {
		return false
	}
	if last.Chart == nil || last.Chart.Metadata == nil {
		return false
	}
	if last.Chart.Metadata.Name != ch.Metadata.Name || last.Chart.Metadata.Version != ch.Metadata.Version {
		return false
	}
	if !sameFiles(last.Chart.Templates, ch.Templates) {
		return false
	}
	return Equal(last.Config, values)
}

func sameFiles(a, b []*chart.File) bool {
	if len(a) != len(b) {
		return false
	}
	index := make(map[string][]byte, len(a))
	for _, f := range a {
		index[f.Name] = f.Data
	}
	for _, f := range b {
		data, ok := index[f.Name]
		if !ok || !bytes.Equal(data, f.Data) {
			return false
		}
	}
	return true
}
