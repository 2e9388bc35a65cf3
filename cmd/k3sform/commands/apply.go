package commands

import (
	"github.com/spf13/cobra"

	"github.com/dimo-network/k3sform/cmd/k3sform/handlers"
)

// Apply returns the command that provisions the server and deploys the
// releases.
//
// Environment variables:
//
//	HCLOUD_TOKEN: Hetzner Cloud API token (required)
//	K3SFORM_POSTGRES_PASSWORD: optional postgres superuser password
func Apply(opts *handlers.Options) *cobra.Command {
	var aopts handlers.ApplyOptions

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create or update the server and its releases",
		Long: `Create or update the k3s server and the Helm releases.

Apply creates the network, firewall, SSH key and server on Hetzner Cloud,
installs k3s over SSH, rewrites the kubeconfig to the public address and
deploys every enabled release once its dependencies are ready. Re-running
apply reuses existing resources and upgrades releases in place.

Examples:
  # Apply using k3sform.yaml in the current directory
  k3sform apply

  # Show a progress view and deploy one release at a time
  k3sform apply --tui --concurrency 1

  # Record task and release metrics for the node exporter
  k3sform apply --metrics-file /var/lib/node_exporter/k3sform.prom`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Apply(cmd.Context(), *opts, aopts)
		},
	}

	cmd.Flags().BoolVar(&aopts.TUI, "tui", false, "Show an interactive progress view")
	cmd.Flags().IntVar(&aopts.Concurrency, "concurrency", 0, "Tasks run in parallel (default: from config)")
	cmd.Flags().StringVar(&aopts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file")

	return cmd
}
