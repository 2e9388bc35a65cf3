package orchestration

import (
	"context"
	"fmt"
	"slices"

	"github.com/dimo-network/k3sform/internal/bootstrap"
	"github.com/dimo-network/k3sform/internal/dag"
	"github.com/dimo-network/k3sform/internal/deploy"
	"github.com/dimo-network/k3sform/internal/provisioning/compute"
	"github.com/dimo-network/k3sform/internal/provisioning/network"
)

// run holds the stage state of one graph. Futures resolve once, so every
// apply builds a fresh run.
type run struct {
	network   *network.Provisioner
	compute   *compute.Provisioner
	bootstrap *bootstrap.Bootstrapper
	cluster   *dag.Future[*Cluster]
	backend   *dag.Future[*deploy.Backend]
	nodes     *dag.Future[[]string]
	deployer  *deploy.Deployer
	releases  []deploy.Release
}

// Graph returns the apply graph without running it.
func (o *Orchestrator) Graph() (*dag.Graph, error) {
	g, _, err := o.build()
	return g, err
}

func (o *Orchestrator) build() (*dag.Graph, *run, error) {
	releases, err := o.Releases()
	if err != nil {
		return nil, nil, err
	}

	r := &run{
		network: network.NewProvisioner(o.cfg, o.infra, o.observer),
		compute: compute.NewProvisioner(o.cfg, o.infra, o.observer),
		cluster: dag.NewFuture[*Cluster]("cluster clients"),
		backend: dag.NewFuture[*deploy.Backend]("deploy backend"),
	}
	r.bootstrap = bootstrap.New(o.cfg, o.timeouts, r.compute.ExternalIP(), r.compute.InternalIP(), o.observer, o.bootstrapOpts...)
	r.deployer = deploy.NewDeployer(r.backend, o.observer, o.metrics)

	inputs := deploy.Inputs{
		ReservedIP:       r.compute.ReservedIP(),
		PostgresPassword: o.env.PostgresPassword,
	}
	if o.cfg.DiscoverNodes {
		r.nodes = dag.NewFuture[[]string]("node names")
		inputs.Nodes = r.nodes
	}
	r.releases = deploy.Wire(o.cfg, releases, inputs)

	g := dag.New()
	tasks := []dag.Task{
		{Name: TaskNetwork, Run: r.network.Provision},
		{Name: TaskCompute, DependsOn: []string{TaskNetwork}, Run: func(ctx context.Context) error {
			return r.compute.Provision(ctx, r.network.Result())
		}},
		{Name: TaskInstall, DependsOn: []string{TaskCompute}, Run: r.bootstrap.Install},
		{Name: TaskFetch, DependsOn: []string{TaskInstall}, Run: r.bootstrap.Fetch},
		{Name: TaskAPI, DependsOn: []string{TaskFetch}, Run: o.apiReady(r)},
	}
	if r.nodes != nil {
		tasks = append(tasks, dag.Task{Name: TaskNodes, DependsOn: []string{TaskAPI}, Run: o.discoverNodes(r)})
	}
	for _, ns := range deploy.Namespaces(o.cfg.Name, r.releases) {
		tasks = append(tasks, dag.Task{
			Name:      deploy.NamespaceTask(ns.Name),
			DependsOn: []string{TaskAPI},
			Run: func(ctx context.Context) error {
				return r.deployer.EnsureNamespace(ctx, ns)
			},
		})
	}
	for _, rel := range r.releases {
		deps := []string{deploy.NamespaceTask(rel.Namespace)}
		for _, d := range rel.DependsOn {
			deps = append(deps, deploy.ReleaseTask(d))
		}
		if rel.NeedsNodes && r.nodes != nil {
			deps = append(deps, TaskNodes)
		}
		tasks = append(tasks, dag.Task{
			Name:      rel.TaskName(),
			DependsOn: slices.Compact(deps),
			Run: func(ctx context.Context) error {
				return r.deployer.Deploy(ctx, rel)
			},
		})
	}

	for _, t := range tasks {
		if err := g.Add(t); err != nil {
			return nil, nil, err
		}
	}
	return g, r, nil
}

// apiReady waits for the API server and opens the cluster clients. Failure
// rejects the futures the deploy tasks wait on.
func (o *Orchestrator) apiReady(r *run) dag.TaskFunc {
	return func(ctx context.Context) (err error) {
		defer func() {
			if err != nil {
				_ = r.cluster.Reject(err)
				_ = r.backend.Reject(err)
				if r.nodes != nil {
					_ = r.nodes.Reject(err)
				}
			}
		}()

		if err := r.bootstrap.WaitForAPI(ctx); err != nil {
			return err
		}
		creds, err := r.bootstrap.Credentials().Get()
		if err != nil {
			return err
		}
		cluster, err := o.newCluster(creds.Kubeconfig)
		if err != nil {
			return fmt.Errorf("failed to open cluster clients: %w", err)
		}
		if err := r.cluster.Resolve(cluster); err != nil {
			return err
		}
		return r.backend.Resolve(&deploy.Backend{Namespaces: cluster.Namespaces, Installer: cluster.Installer})
	}
}

func (o *Orchestrator) discoverNodes(r *run) dag.TaskFunc {
	return func(ctx context.Context) error {
		cluster, err := r.cluster.Await(ctx)
		if err != nil {
			_ = r.nodes.Reject(err)
			return err
		}
		names, err := cluster.Nodes.WaitForReadyNodes(ctx, o.nodePollInterval, o.timeouts.APIReady)
		if err != nil {
			err = fmt.Errorf("failed to discover nodes: %w", err)
			_ = r.nodes.Reject(err)
			return err
		}
		o.observer.Printf("[%s] Ready nodes: %v", TaskNodes, names)
		return r.nodes.Resolve(names)
	}
}
