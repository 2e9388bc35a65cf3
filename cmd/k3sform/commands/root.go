// Package commands defines the CLI command structure and flag bindings.
//
// Execution is delegated to the handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/dimo-network/k3sform/cmd/k3sform/handlers"
)

// Root returns the root command with the global flags bound to opts.
func Root() *cobra.Command {
	opts := &handlers.Options{}

	cmd := &cobra.Command{
		Use:           "k3sform",
		Short:         "Provision k3s on Hetzner Cloud and deploy Helm releases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: k3sform.yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", handlers.LogFormatConsole, "Log format: console or json")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "Log level for the json format")

	cmd.AddCommand(Init())
	cmd.AddCommand(Plan(opts))
	cmd.AddCommand(Apply(opts))
	cmd.AddCommand(Destroy(opts))
	cmd.AddCommand(Kubeconfig(opts))
	cmd.AddCommand(Outputs(opts))
	cmd.AddCommand(Nodes(opts))
	cmd.AddCommand(Version())

	return cmd
}
