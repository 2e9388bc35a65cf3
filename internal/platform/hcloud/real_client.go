package hcloud

import (
	"log"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/dimo-network/k3sform/internal/config"
)

// RealClient implements InfrastructureManager using the Hetzner Cloud API.
type RealClient struct {
	client       *hcloud.Client
	timeouts     *config.Timeouts
	logf         func(format string, v ...any)
	pollInterval time.Duration
}

var _ InfrastructureManager = (*RealClient)(nil)

// ClientOption configures a RealClient.
type ClientOption func(*RealClient)

// WithTimeouts sets custom timeouts for the client.
func WithTimeouts(t *config.Timeouts) ClientOption {
	return func(c *RealClient) {
		c.timeouts = t
	}
}

// WithHCloudClient sets a custom hcloud client (useful for testing).
func WithHCloudClient(hc *hcloud.Client) ClientOption {
	return func(c *RealClient) {
		c.client = hc
	}
}

// WithLogf routes cleanup progress messages.
func WithLogf(logf func(format string, v ...any)) ClientOption {
	return func(c *RealClient) {
		c.logf = logf
	}
}

// WithPollInterval sets how often cleanup re-checks pending deletions.
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *RealClient) {
		c.pollInterval = d
	}
}

// NewRealClient creates a new RealClient with optional configuration.
func NewRealClient(token string, opts ...ClientOption) *RealClient {
	c := &RealClient{
		timeouts:     config.DefaultTimeouts(),
		logf:         log.Printf,
		pollInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = hcloud.NewClient(
			hcloud.WithToken(token),
			hcloud.WithApplication("k3sform", ""),
		)
	}
	return c
}

// HCloudClient returns the underlying hcloud.Client.
func (c *RealClient) HCloudClient() *hcloud.Client {
	return c.client
}
