package orchestration

import (
	"context"
	"errors"
	"fmt"

	"github.com/dimo-network/k3sform/internal/dag"
	"github.com/dimo-network/k3sform/internal/deploy"
	"github.com/dimo-network/k3sform/internal/outputs"
	"github.com/dimo-network/k3sform/internal/provisioning/destroy"
)

// DestroyOptions select what Destroy removes.
type DestroyOptions struct {
	// AppsOnly uninstalls the releases and keeps the cloud resources.
	AppsOnly bool
	// SkipApps deletes the cloud resources without uninstalling first.
	SkipApps bool
}

// Destroy uninstalls the releases, then deletes the project's cloud
// resources and the stored outputs.
func (o *Orchestrator) Destroy(ctx context.Context, opts DestroyOptions) error {
	if opts.AppsOnly && opts.SkipApps {
		return fmt.Errorf("apps-only and skip-apps are mutually exclusive")
	}

	if !opts.SkipApps {
		if err := o.uninstall(ctx); err != nil {
			if opts.AppsOnly {
				return err
			}
			o.observer.Printf("[Destroy] Warning: %v", err)
		}
	}
	if opts.AppsOnly {
		return nil
	}

	if err := destroy.NewProvisioner(o.cfg, o.infra, o.observer).Provision(ctx); err != nil {
		return err
	}
	if err := o.store.Delete(ctx); err != nil {
		return fmt.Errorf("failed to remove outputs: %w", err)
	}
	return nil
}

func (o *Orchestrator) uninstall(ctx context.Context) error {
	out, err := o.store.Load(ctx)
	if errors.Is(err, outputs.ErrNotFound) || (err == nil && len(out.Kubeconfig) == 0) {
		o.observer.Printf("[Destroy] No stored kubeconfig, skipping release uninstall")
		return nil
	}
	if err != nil {
		return err
	}

	releases, err := o.Releases()
	if err != nil {
		return err
	}
	cluster, err := o.newCluster(out.Kubeconfig)
	if err != nil {
		return fmt.Errorf("failed to open cluster clients: %w", err)
	}
	backend := dag.Resolved("deploy backend", &deploy.Backend{Namespaces: cluster.Namespaces, Installer: cluster.Installer})
	return deploy.NewDeployer(backend, o.observer, o.metrics).Uninstall(ctx, releases)
}

// Outputs loads the stored outputs.
func (o *Orchestrator) Outputs(ctx context.Context) (*outputs.Outputs, error) {
	return o.store.Load(ctx)
}

// Nodes lists the ready cluster nodes using the stored kubeconfig.
func (o *Orchestrator) Nodes(ctx context.Context) ([]string, error) {
	out, err := o.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(out.Kubeconfig) == 0 {
		return nil, fmt.Errorf("stored outputs have no kubeconfig; run apply first")
	}
	cluster, err := o.newCluster(out.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open cluster clients: %w", err)
	}
	return cluster.Nodes.WaitForReadyNodes(ctx, o.nodePollInterval, o.timeouts.APIReady)
}
