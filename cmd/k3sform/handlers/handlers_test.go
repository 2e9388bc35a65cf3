package handlers

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/dimo-network/k3sform/internal/bootstrap"
	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/deploy/helm"
	"github.com/dimo-network/k3sform/internal/kube"
	"github.com/dimo-network/k3sform/internal/orchestration"
	hcloud_client "github.com/dimo-network/k3sform/internal/platform/hcloud"
	"github.com/dimo-network/k3sform/internal/platform/hcloud/hcloudtest"
	"github.com/dimo-network/k3sform/internal/platform/ssh"
	"github.com/dimo-network/k3sform/internal/provisioning"
	fixtures "github.com/dimo-network/k3sform/internal/testing"
)

type fakeInstaller struct {
	mu          sync.Mutex
	installed   []string
	uninstalled []string
}

func (f *fakeInstaller) InstallOrUpgrade(_ context.Context, req helm.Request) (helm.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installed = append(f.installed, req.Name)
	return helm.Result{Action: helm.ActionInstalled, Revision: 1}, nil
}

func (f *fakeInstaller) Uninstall(_ context.Context, name, _ string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uninstalled = append(f.uninstalled, name)
	return helm.ActionUninstalled, nil
}

// saveAndRestoreFactories restores the package factories after the test.
func saveAndRestoreFactories(t *testing.T) {
	t.Helper()
	origFind, origLoad, origEnv, origTimeouts := findConfigFile, loadConfigFile, loadEnv, loadTimeouts
	origInfra, origOpts, origStdout := newInfraClient, orchestratorOptions, stdout
	origTerminal, origTUI := isTerminal, runApplyTUI
	origWizard, origSave, origBits := runWizard, saveConfig, keyBits
	t.Cleanup(func() {
		findConfigFile, loadConfigFile, loadEnv, loadTimeouts = origFind, origLoad, origEnv, origTimeouts
		newInfraClient, orchestratorOptions, stdout = origInfra, origOpts, origStdout
		isTerminal, runApplyTUI = origTerminal, origTUI
		runWizard, saveConfig, keyBits = origWizard, origSave, origBits
	})
}

type fakeEnv struct {
	api       *hcloudtest.API
	installer *fakeInstaller
	out       *bytes.Buffer
	cfg       *config.Config
}

// installFakes points every factory at in-process fakes: the hcloud test
// API, a fake SSH host and a fake Kubernetes clientset.
func installFakes(t *testing.T, token string) *fakeEnv {
	t.Helper()
	saveAndRestoreFactories(t)

	priv, pub := fixtures.WriteKeyPair(t, t.TempDir())
	f := &fakeEnv{
		api:       hcloudtest.New(t),
		installer: &fakeInstaller{},
		out:       &bytes.Buffer{},
		cfg:       fixtures.NewConfigBuilder().WithName("demo").WithKeyPaths(priv, pub).WithOutputsDir(t.TempDir()).Build(),
	}
	timeouts := config.DefaultTimeouts()
	timeouts.RetryInitialDelay = time.Millisecond
	timeouts.APIReady = time.Second

	findConfigFile = func() (string, error) { return "k3sform.yaml", nil }
	loadConfigFile = func(string) (*config.Config, error) { return f.cfg, nil }
	loadEnv = func() (config.Env, error) { return config.Env{HCloudToken: token}, nil }
	loadTimeouts = func() (*config.Timeouts, error) { return timeouts, nil }
	newInfraClient = func(_ string, timeouts *config.Timeouts, _ func(string, ...any)) hcloud_client.InfrastructureManager {
		return hcloud_client.NewRealClient("",
			hcloud_client.WithHCloudClient(f.api.Client()),
			hcloud_client.WithTimeouts(timeouts),
			hcloud_client.WithLogf(t.Logf),
			hcloud_client.WithPollInterval(10*time.Millisecond),
		)
	}
	host := fixtures.NewFakeHost()
	clientset := fake.NewSimpleClientset()
	orchestratorOptions = func() []orchestration.Option {
		return []orchestration.Option{
			orchestration.WithBootstrapOptions(
				bootstrap.WithExecutorFactory(func(string) (ssh.Executor, error) { return host, nil }),
				bootstrap.WithVersionProbe(func(context.Context, []byte) (string, error) { return "v1.31.4+k3s1", nil }),
				bootstrap.WithPollInterval(time.Millisecond),
			),
			orchestration.WithClusterFactory(func([]byte) (*orchestration.Cluster, error) {
				kc := kube.NewFromClientset(clientset)
				return &orchestration.Cluster{Namespaces: kc, Installer: f.installer, Nodes: kc}, nil
			}),
		}
	}
	stdout = f.out
	return f
}

func TestLoadConfig_NoDefaultFile(t *testing.T) {
	saveAndRestoreFactories(t)
	findConfigFile = func() (string, error) { return "", errors.New("config file k3sform.yaml not found") }

	_, err := loadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no config file found")
	assert.Contains(t, err.Error(), "k3sform init")
}

func TestLoadConfig_EmptyPathUsesDiscoveredFile(t *testing.T) {
	saveAndRestoreFactories(t)
	findConfigFile = func() (string, error) { return "/work/k3sform.yaml", nil }
	var loadedFrom string
	loadConfigFile = func(path string) (*config.Config, error) {
		loadedFrom = path
		return fixtures.NewConfigBuilder().WithName("found").Build(), nil
	}

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "/work/k3sform.yaml", loadedFrom)
	assert.Equal(t, "found", cfg.Name)
}

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Name = "from-file"
	cfg.SourceRanges = []string{"203.0.113.0/24"}
	path := filepath.Join(dir, config.DefaultConfigFilename)
	require.NoError(t, config.Save(cfg, path))

	loaded, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", loaded.Name)
}

func TestNewObserver(t *testing.T) {
	obs, closeFn, err := newObserver(LogFormatConsole, "")
	require.NoError(t, err)
	assert.NotNil(t, obs)
	closeFn()

	obs, closeFn, err = newObserver(LogFormatJSON, "debug")
	require.NoError(t, err)
	assert.NotNil(t, obs)
	closeFn()

	_, _, err = newObserver("xml", "")
	assert.ErrorContains(t, err, "unknown log format")

	_, _, err = newObserver(LogFormatJSON, "loud")
	assert.Error(t, err)
}

func TestApply_EndToEnd(t *testing.T) {
	f := installFakes(t, "token")
	ctx := fixtures.TestContext(t)
	metricsFile := filepath.Join(t.TempDir(), "k3sform.prom")

	require.NoError(t, Apply(ctx, Options{ConfigPath: "k3sform.yaml"}, ApplyOptions{Concurrency: 2, MetricsFile: metricsFile}))
	assert.Contains(t, f.out.String(), "Apply complete!")
	assert.Contains(t, f.out.String(), "203.0.113.10")
	assert.Contains(t, f.out.String(), "export KUBECONFIG=")
	assert.NotEmpty(t, f.installer.installed)

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "task_total")

	f.out.Reset()
	require.NoError(t, Kubeconfig(ctx, Options{}))
	assert.Contains(t, f.out.String(), "https://203.0.113.10:")

	f.out.Reset()
	require.NoError(t, Outputs(ctx, Options{}))
	assert.Contains(t, f.out.String(), "project: demo")

	f.out.Reset()
	require.NoError(t, Destroy(ctx, Options{}, orchestration.DestroyOptions{}))
	assert.Contains(t, f.out.String(), "Project demo destroyed")
	assert.Empty(t, f.api.Servers())
	assert.NotEmpty(t, f.installer.uninstalled)

	err = Kubeconfig(ctx, Options{})
	assert.ErrorContains(t, err, "nothing applied yet")
}

func TestApply_MissingToken(t *testing.T) {
	installFakes(t, "")

	err := Apply(fixtures.TestContext(t), Options{}, ApplyOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HCLOUD_TOKEN")
}

func TestApply_TUIRequiresTerminal(t *testing.T) {
	installFakes(t, "token")
	isTerminal = func() bool { return false }

	err := Apply(fixtures.TestContext(t), Options{}, ApplyOptions{TUI: true})
	assert.ErrorContains(t, err, "interactive terminal")
}

func TestApply_TUIReceivesPlan(t *testing.T) {
	f := installFakes(t, "token")
	isTerminal = func() bool { return true }

	var gotPlan []string
	runApplyTUI = func(ctx context.Context, project, _ string, plan []string, applyFn func(context.Context, provisioning.Observer) error) error {
		gotPlan = plan
		assert.Equal(t, "demo", project)
		return applyFn(ctx, provisioning.Discard{})
	}

	require.NoError(t, Apply(fixtures.TestContext(t), Options{}, ApplyOptions{TUI: true}))
	assert.Contains(t, gotPlan, orchestration.TaskNetwork)
	assert.FileExists(t, filepath.Join(f.cfg.Outputs.Dir, ApplyLogFile))
}

func TestDestroy_AppsOnlyWithoutToken(t *testing.T) {
	f := installFakes(t, "")

	require.NoError(t, Destroy(fixtures.TestContext(t), Options{}, orchestration.DestroyOptions{AppsOnly: true}))
	assert.Contains(t, f.out.String(), "uninstalled")
}

func TestPlan(t *testing.T) {
	f := installFakes(t, "")

	require.NoError(t, Plan(fixtures.TestContext(t), Options{}))
	out := f.out.String()
	assert.Contains(t, out, "Project demo")
	assert.Contains(t, out, "Releases:")
	assert.Contains(t, out, "1. network")
	assert.Contains(t, out, "release/identity-api")
}

func TestInit(t *testing.T) {
	saveAndRestoreFactories(t)
	out := &bytes.Buffer{}
	stdout = out
	keyBits = 1024
	runWizard = func(context.Context) (*config.WizardResult, error) {
		return &config.WizardResult{
			Name:        "wizard",
			Location:    "hel1",
			MachineType: "cx32",
			SourceRange: "10.0.0.0/8",
			KubePort:    "6443",
		}, nil
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "k3sform.yaml")
	require.NoError(t, Init(context.Background(), path, true))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wizard", cfg.Name)
	assert.Equal(t, "eu-central", cfg.NetworkZone)
	assert.FileExists(t, filepath.Join(dir, config.DefaultPrivateKeyPath))
	assert.FileExists(t, filepath.Join(dir, config.DefaultPublicKeyPath))
	assert.Contains(t, out.String(), "Configuration saved!")

	// A second run keeps the existing key.
	require.NoError(t, Init(context.Background(), path, true))
	assert.Contains(t, out.String(), "Keeping existing key")
}

func TestInit_WizardCanceled(t *testing.T) {
	saveAndRestoreFactories(t)
	stdout = &bytes.Buffer{}
	runWizard = func(context.Context) (*config.WizardResult, error) {
		return nil, errors.New("wizard canceled: user aborted")
	}
	saved := false
	saveConfig = func(*config.Config, string) error {
		saved = true
		return nil
	}

	err := Init(context.Background(), filepath.Join(t.TempDir(), "k3sform.yaml"), false)
	assert.ErrorContains(t, err, "wizard canceled")
	assert.False(t, saved)
}
