package commands

import (
	"github.com/spf13/cobra"

	"github.com/dimo-network/k3sform/cmd/k3sform/handlers"
	"github.com/dimo-network/k3sform/internal/orchestration"
)

// Destroy returns the destroy command.
func Destroy(opts *handlers.Options) *cobra.Command {
	var dopts orchestration.DestroyOptions

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Uninstall the releases and delete all cloud resources",
		Long: `Destroy uninstalls the Helm releases in reverse dependency order and
then deletes every Hetzner Cloud resource labeled with the project:
servers, floating IPs, firewalls, networks and SSH keys. The stored
outputs are removed last.

Use --apps-only to keep the server and only uninstall the releases, or
--skip-apps to delete the resources without uninstalling first.

WARNING: This operation is irreversible.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Destroy(cmd.Context(), *opts, dopts)
		},
	}

	cmd.Flags().BoolVar(&dopts.AppsOnly, "apps-only", false, "Only uninstall the releases")
	cmd.Flags().BoolVar(&dopts.SkipApps, "skip-apps", false, "Delete cloud resources without uninstalling releases")
	cmd.MarkFlagsMutuallyExclusive("apps-only", "skip-apps")

	return cmd
}
