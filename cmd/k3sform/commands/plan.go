package commands

import (
	"github.com/spf13/cobra"

	"github.com/dimo-network/k3sform/cmd/k3sform/handlers"
)

// Plan returns the command printing the releases and the task order.
func Plan(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the releases and the order tasks run in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Plan(cmd.Context(), *opts)
		},
	}
}
