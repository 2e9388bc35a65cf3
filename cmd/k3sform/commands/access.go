package commands

import (
	"github.com/spf13/cobra"

	"github.com/dimo-network/k3sform/cmd/k3sform/handlers"
)

// Kubeconfig returns the command printing the stored kubeconfig.
func Kubeconfig(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "kubeconfig",
		Short: "Print the kubeconfig of the last apply",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Kubeconfig(cmd.Context(), *opts)
		},
	}
}

// Outputs returns the command printing the stored outputs document.
func Outputs(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "outputs",
		Short: "Print the outputs of the last apply",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Outputs(cmd.Context(), *opts)
		},
	}
}

// Nodes returns the command listing the ready cluster nodes.
func Nodes(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List the ready nodes of the cluster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Nodes(cmd.Context(), *opts)
		},
	}
}
