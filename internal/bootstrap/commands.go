package bootstrap

import (
	"fmt"
	"strings"
)

// KubeconfigPath is where k3s writes the admin kubeconfig.
const KubeconfigPath = "/etc/rancher/k3s/k3s.yaml"

const installerURL = "https://get.k3s.io"

// InstallOptions parameterizes the k3s installer invocation.
type InstallOptions struct {
	InternalIP string
	ExternalIP string
	Port       int
	Version    string
	Channel    string
	ExtraArgs  []string
}

// InstallCommand pipes the k3s installer into sh. The server binds to the
// internal address and carries the external address as TLS SAN.
func InstallCommand(opts InstallOptions) string {
	var b strings.Builder
	b.WriteString("curl -sfL " + installerURL + " | ")
	if opts.Version != "" {
		fmt.Fprintf(&b, "INSTALL_K3S_VERSION=%s ", opts.Version)
	}
	if opts.Channel != "" {
		fmt.Fprintf(&b, "INSTALL_K3S_CHANNEL=%s ", opts.Channel)
	}
	b.WriteString("sh -s -")
	fmt.Fprintf(&b, " --bind-address %s", opts.InternalIP)
	fmt.Fprintf(&b, " --advertise-address %s", opts.InternalIP)
	fmt.Fprintf(&b, " --tls-san %s", opts.ExternalIP)
	fmt.Fprintf(&b, " --https-listen-port %d", opts.Port)
	b.WriteString(" --disable servicelb --write-kubeconfig-mode=644")
	for _, arg := range opts.ExtraArgs {
		b.WriteString(" " + arg)
	}
	return b.String()
}

// FetchCommand prints the admin kubeconfig.
func FetchCommand() string {
	return "sudo cat " + KubeconfigPath
}
