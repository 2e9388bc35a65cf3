package commands

import (
	"github.com/spf13/cobra"

	"github.com/dimo-network/k3sform/cmd/k3sform/handlers"
)

// Init returns the command for interactively creating a configuration.
func Init() *cobra.Command {
	var (
		outputPath   string
		generateKeys bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively create a configuration file",
		Long: `Interactively create a k3sform configuration file.

The wizard asks for the project name, location, machine type, the source
range allowed to reach the server and whether node discovery and the
reserved ingress address are wanted. Everything else uses defaults and
can be edited in the generated file.

Use --generate-keys to create the SSH key pair the configuration refers to.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Init(cmd.Context(), outputPath, generateKeys)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "k3sform.yaml", "Output file path")
	cmd.Flags().BoolVar(&generateKeys, "generate-keys", false, "Generate the SSH key pair")

	return cmd
}
