package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/dag"
	"github.com/dimo-network/k3sform/internal/kube"
	"github.com/dimo-network/k3sform/internal/platform/ssh"
	"github.com/dimo-network/k3sform/internal/provisioning"
)

// Task names used for phase events.
const (
	PhaseInstall = "k3s-install"
	PhaseFetch   = "kubeconfig-fetch"
	PhaseAPI     = "api-ready"
)

const defaultPollInterval = 5 * time.Second

// ExecutorFactory opens a command executor for a host.
type ExecutorFactory func(host string) (ssh.Executor, error)

// VersionProbe asks the API server behind kubeconfig for its version.
type VersionProbe func(ctx context.Context, kubeconfig []byte) (string, error)

// Bootstrapper runs the cluster bootstrap tasks.
type Bootstrapper struct {
	cfg          *config.Config
	timeouts     *config.Timeouts
	observer     provisioning.Observer
	newExecutor  ExecutorFactory
	probe        VersionProbe
	pollInterval time.Duration

	externalIP *dag.Future[string]
	internalIP *dag.Future[string]

	installLog  *dag.Future[string]
	credentials *dag.Future[*Credentials]
	version     *dag.Future[string]
}

// Option configures a Bootstrapper.
type Option func(*Bootstrapper)

// WithExecutorFactory replaces the SSH client factory.
func WithExecutorFactory(f ExecutorFactory) Option {
	return func(b *Bootstrapper) { b.newExecutor = f }
}

// WithVersionProbe replaces the client-go readiness probe.
func WithVersionProbe(p VersionProbe) Option {
	return func(b *Bootstrapper) { b.probe = p }
}

// WithPollInterval sets the API readiness poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(b *Bootstrapper) { b.pollInterval = d }
}

// New creates a bootstrapper reading server addresses from the compute
// stage futures.
func New(cfg *config.Config, timeouts *config.Timeouts, externalIP, internalIP *dag.Future[string], observer provisioning.Observer, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		cfg:          cfg,
		timeouts:     timeouts,
		observer:     observer,
		probe:        probeVersion,
		pollInterval: defaultPollInterval,
		externalIP:   externalIP,
		internalIP:   internalIP,
		installLog:   dag.NewFuture[string]("k3s install output"),
		credentials:  dag.NewFuture[*Credentials]("credentials"),
		version:      dag.NewFuture[string]("server version"),
	}
	b.newExecutor = SSHExecutorFactory(cfg, timeouts)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// InstallOutput resolves to the installer output.
func (b *Bootstrapper) InstallOutput() *dag.Future[string] { return b.installLog }

// Credentials resolves to the rewritten kubeconfig.
func (b *Bootstrapper) Credentials() *dag.Future[*Credentials] { return b.credentials }

// ServerVersion resolves once the API server answered.
func (b *Bootstrapper) ServerVersion() *dag.Future[string] { return b.version }

// Install runs the k3s installer on the server.
func (b *Bootstrapper) Install(ctx context.Context) error {
	return b.run(PhaseInstall, func() error {
		ext, err := b.externalIP.Await(ctx)
		if err != nil {
			return err
		}
		internal, err := b.internalIP.Await(ctx)
		if err != nil {
			return err
		}

		exec, err := b.newExecutor(ext)
		if err != nil {
			return err
		}
		cmd := InstallCommand(InstallOptions{
			InternalIP: internal,
			ExternalIP: ext,
			Port:       b.cfg.KubePort,
			Version:    b.cfg.K3s.Version,
			Channel:    b.cfg.K3s.Channel,
			ExtraArgs:  b.cfg.K3s.ExtraArgs,
		})
		b.observer.Printf("[%s] Installing k3s on %s (bind %s, port %d)...", PhaseInstall, ext, internal, b.cfg.KubePort)
		out, err := exec.Execute(ctx, cmd)
		if err != nil {
			return fmt.Errorf("failed to install k3s: %w", err)
		}
		return b.installLog.Resolve(out)
	}, b.installLog.Reject)
}

// Fetch reads the admin kubeconfig and rewrites its server to the external
// address.
func (b *Bootstrapper) Fetch(ctx context.Context) error {
	return b.run(PhaseFetch, func() error {
		ext, err := b.externalIP.Await(ctx)
		if err != nil {
			return err
		}
		exec, err := b.newExecutor(ext)
		if err != nil {
			return err
		}
		out, err := exec.Execute(ctx, FetchCommand())
		if err != nil {
			return fmt.Errorf("failed to fetch kubeconfig: %w", err)
		}
		rewritten, err := RewriteServer([]byte(out), ext)
		if err != nil {
			return fmt.Errorf("failed to rewrite kubeconfig: %w", err)
		}
		creds, err := ParseCredentials(rewritten)
		if err != nil {
			return err
		}
		b.observer.Printf("[%s] Kubeconfig server is %s", PhaseFetch, creds.Server)
		return b.credentials.Resolve(creds)
	}, b.credentials.Reject)
}

// WaitForAPI polls the API server until it answers or timeouts.APIReady
// elapses.
func (b *Bootstrapper) WaitForAPI(ctx context.Context) error {
	return b.run(PhaseAPI, func() error {
		creds, err := b.credentials.Await(ctx)
		if err != nil {
			return err
		}

		var version string
		var lastErr error
		attempts := 0
		err = wait.PollUntilContextTimeout(ctx, b.pollInterval, b.timeouts.APIReady, true, func(ctx context.Context) (bool, error) {
			attempts++
			v, err := b.probe(ctx, creds.Kubeconfig)
			if err != nil {
				lastErr = err
				return false, nil
			}
			version = v
			return true, nil
		})
		if err != nil {
			if lastErr != nil {
				err = lastErr
			}
			return fmt.Errorf("API server %s not ready after %v (%d attempts): %w", creds.Server, b.timeouts.APIReady, attempts, err)
		}
		b.observer.Printf("[%s] API server %s answered with %s", PhaseAPI, creds.Server, version)
		return b.version.Resolve(version)
	}, b.version.Reject)
}

func (b *Bootstrapper) run(phase string, fn func() error, reject func(error) error) error {
	start := time.Now()
	provisioning.LogPhaseStart(b.observer, phase)
	if err := fn(); err != nil {
		provisioning.LogPhaseFailed(b.observer, phase, err)
		_ = reject(err)
		return err
	}
	provisioning.LogPhaseComplete(b.observer, phase, time.Since(start))
	return nil
}

// SSHExecutorFactory connects with the configured user and private key.
func SSHExecutorFactory(cfg *config.Config, timeouts *config.Timeouts) ExecutorFactory {
	return func(host string) (ssh.Executor, error) {
		key, err := os.ReadFile(cfg.SSH.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH private key: %w", err)
		}
		return ssh.NewClient(&ssh.Config{
			Host:           host,
			Port:           cfg.SSH.Port,
			User:           cfg.SSH.User,
			PrivateKey:     key,
			ConnectTimeout: timeouts.SSHConnect,
			CommandTimeout: timeouts.SSHCommand,
		})
	}
}

func probeVersion(ctx context.Context, kubeconfig []byte) (string, error) {
	client, err := kube.NewFromKubeconfig(kubeconfig)
	if err != nil {
		return "", err
	}
	return client.ServerVersion(ctx)
}
