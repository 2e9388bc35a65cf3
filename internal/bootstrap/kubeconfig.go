package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"k8s.io/client-go/tools/clientcmd"
)

const loopback = "127.0.0.1"

// ErrNoLoopbackServer is returned when the kubeconfig has no server line
// pointing at 127.0.0.1.
var ErrNoLoopbackServer = errors.New("kubeconfig has no loopback server line")

var loopbackServer = regexp.MustCompile(`(?m)^(\s*server:\s*https://)127\.0\.0\.1(:\d+)?([ \t]*\r?)$`)

// Credentials is the rewritten admin kubeconfig.
type Credentials struct {
	Kubeconfig []byte
	Server     string
}

// RewriteServer points the loopback server URL at externalIP. The port and
// every other line are kept as they are.
func RewriteServer(doc []byte, externalIP string) ([]byte, error) {
	ip := net.ParseIP(externalIP)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("external address %q is not IPv4", externalIP)
	}
	if !loopbackServer.Match(doc) {
		return nil, ErrNoLoopbackServer
	}

	out := loopbackServer.ReplaceAll(doc, []byte("${1}"+externalIP+"${2}${3}"))

	if strings.Contains(string(out), loopback) {
		return nil, fmt.Errorf("rewritten kubeconfig still references %s", loopback)
	}
	servers := regexp.MustCompile(`(?m)^\s*server:\s*https://` + regexp.QuoteMeta(externalIP) + `(:\d+)?\s*$`)
	if n := len(servers.FindAll(out, -1)); n != 1 {
		return nil, fmt.Errorf("expected exactly one server line for %s, found %d", externalIP, n)
	}
	return out, nil
}

// ParseCredentials validates a kubeconfig and extracts the server URL of its
// current context.
func ParseCredentials(kubeconfig []byte) (*Credentials, error) {
	cfg, err := clientcmd.Load(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to parse kubeconfig: %w", err)
	}
	kctx, ok := cfg.Contexts[cfg.CurrentContext]
	if !ok {
		return nil, fmt.Errorf("kubeconfig current context %q not found", cfg.CurrentContext)
	}
	cluster, ok := cfg.Clusters[kctx.Cluster]
	if !ok {
		return nil, fmt.Errorf("kubeconfig cluster %q not found", kctx.Cluster)
	}
	return &Credentials{Kubeconfig: kubeconfig, Server: cluster.Server}, nil
}
