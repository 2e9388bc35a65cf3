package kube

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// WaitForAPI polls /version until the API server answers.
func (c *Client) WaitForAPI(ctx context.Context, interval, timeout time.Duration) (string, error) {
	var version string
	var lastErr error
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		v, err := c.ServerVersion(ctx)
		if err != nil {
			lastErr = err
			return false, nil
		}
		version = v
		return true, nil
	})
	if err != nil {
		if lastErr != nil {
			return "", fmt.Errorf("API server not ready after %v: %w", timeout, lastErr)
		}
		return "", fmt.Errorf("API server not ready after %v: %w", timeout, err)
	}
	return version, nil
}

// WaitForReadyNodes polls until at least one node is Ready and returns the
// ready node names.
func (c *Client) WaitForReadyNodes(ctx context.Context, interval, timeout time.Duration) ([]string, error) {
	var names []string
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		ready, err := c.ReadyNodeNames(ctx)
		if err != nil {
			return false, nil
		}
		names = ready
		return len(ready) > 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("no ready node after %v: %w", timeout, err)
	}
	return names, nil
}
