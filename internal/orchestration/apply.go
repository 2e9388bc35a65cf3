package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dimo-network/k3sform/internal/dag"
	"github.com/dimo-network/k3sform/internal/outputs"
	"github.com/dimo-network/k3sform/internal/provisioning"
)

// Apply validates the configuration, runs the graph and stores the
// outputs. Outputs are also stored after a failure once the kubeconfig
// exists, so the cluster stays reachable while the rest is retried.
func (o *Orchestrator) Apply(ctx context.Context) (*outputs.Outputs, *dag.Report, error) {
	if err := provisioning.Preflight(o.observer, o.cfg); err != nil {
		return nil, nil, err
	}

	runID := uuid.NewString()
	obs := o.observer.WithFields(map[string]string{"run": runID})
	obs.Printf("[Apply] Starting run %s for project %s", runID, o.cfg.Name)

	g, r, err := o.build()
	if err != nil {
		return nil, nil, err
	}

	report, execErr := g.Execute(ctx,
		dag.WithConcurrency(o.concurrency),
		dag.WithHooks(provisioning.TaskHooks{Observer: obs, Metrics: o.metrics}),
	)

	out := r.collect(o.cfg.Name, runID)
	if execErr == nil || len(out.Kubeconfig) > 0 {
		if err := o.store.Save(ctx, out); err != nil {
			return out, report, errors.Join(execErr, fmt.Errorf("failed to store outputs: %w", err))
		}
		obs.Printf("[Apply] Outputs written to %s", o.store.Location())
	}
	if execErr != nil {
		return out, report, execErr
	}
	obs.Printf("[Apply] Run %s complete: %d tasks", runID, len(report.Succeeded()))
	return out, report, nil
}

// collect reads whatever the futures resolved to.
func (r *run) collect(project, runID string) *outputs.Outputs {
	out := &outputs.Outputs{
		Project:   project,
		RunID:     runID,
		AppliedAt: time.Now().UTC(),
		Releases:  r.deployer.Results(),
	}
	if server, err := r.compute.Server().Get(); err == nil && server != nil {
		out.InstanceName = server.Name
		out.ServerID = server.ID
	}
	out.ExternalIP, _ = r.compute.ExternalIP().Get()
	out.InternalIP, _ = r.compute.InternalIP().Get()
	out.ReservedIP, _ = r.compute.ReservedIP().Get()
	if creds, err := r.bootstrap.Credentials().Get(); err == nil {
		out.APIServer = creds.Server
		out.Kubeconfig = creds.Kubeconfig
	}
	if r.nodes != nil {
		out.NodeNames, _ = r.nodes.Get()
	}
	if len(out.Releases) == 0 {
		out.Releases = nil
	}
	return out
}
