// Package orchestration composes the stages of an apply into one task
// graph.
//
// # Workflow
//
// The graph built by Orchestrator runs, in dependency order:
//  1. network - private network, subnet and firewall
//  2. compute - SSH key, floating IP and the server
//  3. k3s-install - the k3s installer over SSH
//  4. kubeconfig-fetch - admin kubeconfig, rewritten to the external address
//  5. api-ready - waits for the API server and opens the cluster clients
//  6. nodes - optional node discovery
//  7. namespace/* and release/* - Helm releases in catalog dependency order
//
// Stages hand results to each other through futures, so a task only reads
// a value once the task producing it succeeded. Every stage converges
// existing state, which makes Apply safe to re-run after a failure.
//
// # Usage
//
//	o := orchestration.New(cfg, env, timeouts, infra, store, observer)
//	out, report, err := o.Apply(ctx)
package orchestration
