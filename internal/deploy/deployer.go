package deploy

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dimo-network/k3sform/internal/dag"
	"github.com/dimo-network/k3sform/internal/deploy/helm"
	"github.com/dimo-network/k3sform/internal/provisioning"
)

// Installer converges Helm releases.
type Installer interface {
	InstallOrUpgrade(ctx context.Context, req helm.Request) (helm.Result, error)
	Uninstall(ctx context.Context, name, namespace string, timeout time.Duration) (string, error)
}

// NamespaceEnsurer creates namespaces.
type NamespaceEnsurer interface {
	EnsureNamespace(ctx context.Context, name string, labels map[string]string) (bool, error)
}

// Backend bundles the cluster clients. It only exists once the API server
// is reachable.
type Backend struct {
	Namespaces NamespaceEnsurer
	Installer  Installer
}

// Deployer runs namespace and release tasks.
type Deployer struct {
	backend  *dag.Future[*Backend]
	observer provisioning.Observer
	metrics  *provisioning.Metrics

	results *resultSet
}

// NewDeployer creates a deployer that waits for backend. metrics may be nil.
func NewDeployer(backend *dag.Future[*Backend], observer provisioning.Observer, metrics *provisioning.Metrics) *Deployer {
	return &Deployer{backend: backend, observer: observer, metrics: metrics, results: newResultSet()}
}

// EnsureNamespace creates the namespace when missing.
func (d *Deployer) EnsureNamespace(ctx context.Context, ns Namespace) error {
	b, err := d.backend.Await(ctx)
	if err != nil {
		return err
	}
	created, err := b.Namespaces.EnsureNamespace(ctx, ns.Name, ns.Labels)
	if err != nil {
		return err
	}
	phase := NamespaceTask(ns.Name)
	if created {
		provisioning.LogResourceCreated(d.observer, phase, "namespace", ns.Name, 0)
	} else {
		provisioning.LogResourceExists(d.observer, phase, "namespace", ns.Name, 0)
	}
	return nil
}

// Deploy renders the release values and installs or upgrades it.
func (d *Deployer) Deploy(ctx context.Context, r Release) error {
	b, err := d.backend.Await(ctx)
	if err != nil {
		return err
	}
	values, err := r.RenderValues(ctx)
	if err != nil {
		return err
	}

	d.observer.Printf("[%s] Converging %s into %s...", r.TaskName(), r.Chart, r.Namespace)
	res, err := b.Installer.InstallOrUpgrade(ctx, r.Request(values))
	if err != nil {
		return err
	}
	d.record(r, res.Action, res.Revision)
	return nil
}

// Uninstall removes releases in reverse dependency order. It keeps going
// after a failure and returns every error.
func (d *Deployer) Uninstall(ctx context.Context, releases []Release) error {
	b, err := d.backend.Await(ctx)
	if err != nil {
		return err
	}
	ordered, err := Order(releases)
	if err != nil {
		return err
	}
	slices.Reverse(ordered)

	var errs []error
	for _, r := range ordered {
		action, err := b.Installer.Uninstall(ctx, r.Name, r.Namespace, r.Timeout)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		d.record(r, action, 0)
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to uninstall %d release(s): %w", len(errs), joinErrors(errs))
	}
	return nil
}

// Results returns the Helm action taken per release so far.
func (d *Deployer) Results() map[string]string {
	return d.results.snapshot()
}

func (d *Deployer) record(r Release, action string, revision int) {
	d.results.set(r.Name, action)
	provisioning.LogRelease(d.observer, r.Name, r.Namespace, action, revision)
	if d.metrics != nil {
		d.metrics.ObserveRelease(r.Name, action)
	}
}
