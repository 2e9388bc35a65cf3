package hcloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/dimo-network/k3sform/internal/util/labels"
)

// CleanupError represents accumulated errors from cleanup operations.
type CleanupError struct {
	Errors []error
}

func (e *CleanupError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("cleanup encountered %d errors: %v", len(e.Errors), errors.Join(e.Errors...))
}

func (e *CleanupError) Unwrap() []error {
	return e.Errors
}

func (e *CleanupError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

func (e *CleanupError) HasErrors() bool {
	return len(e.Errors) > 0
}

type resource interface {
	*hcloud.Server | *hcloud.FloatingIP | *hcloud.Firewall | *hcloud.Network | *hcloud.SSHKey
}

type resourceInfo struct {
	Name string
	ID   int64
}

func getResourceInfo[T resource](r T) resourceInfo {
	switch v := any(r).(type) {
	case *hcloud.Server:
		return resourceInfo{Name: v.Name, ID: v.ID}
	case *hcloud.FloatingIP:
		return resourceInfo{Name: v.Name, ID: v.ID}
	case *hcloud.Firewall:
		return resourceInfo{Name: v.Name, ID: v.ID}
	case *hcloud.Network:
		return resourceInfo{Name: v.Name, ID: v.ID}
	case *hcloud.SSHKey:
		return resourceInfo{Name: v.Name, ID: v.ID}
	default:
		return resourceInfo{}
	}
}

// deleteResourcesByLabel lists resources and deletes each one, collecting
// per-resource failures.
func deleteResourcesByLabel[T resource](
	ctx context.Context,
	c *RealClient,
	resourceType string,
	listFn func(context.Context) ([]T, error),
	deleteFn func(context.Context, T) error,
) error {
	resources, err := listFn(ctx)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", resourceType, err)
	}

	var deleteErrs []error
	for _, r := range resources {
		info := getResourceInfo(r)
		c.logf("[Cleanup] Deleting %s: %s (ID: %d)", resourceType, info.Name, info.ID)
		if err := deleteFn(ctx, r); err != nil {
			c.logf("[Cleanup] Warning: Failed to delete %s %s: %v", resourceType, info.Name, err)
			deleteErrs = append(deleteErrs, fmt.Errorf("%s %q: %w", resourceType, info.Name, err))
		}
	}
	return errors.Join(deleteErrs...)
}

// CleanupByLabel deletes every resource matching the labels, in an order
// that respects attachments: servers, floating IPs, firewalls, networks,
// SSH keys. It keeps going after failures and returns a *CleanupError.
func (c *RealClient) CleanupByLabel(ctx context.Context, selector map[string]string) error {
	labelSelector := labels.Selector(selector)
	if labelSelector == "" {
		return fmt.Errorf("refusing to clean up with an empty label selector")
	}
	c.logf("[Cleanup] Starting cleanup for resources with labels: %s", labelSelector)

	cleanupErrs := &CleanupError{}
	steps := []struct {
		name string
		fn   func(context.Context, string) error
	}{
		{"servers", c.deleteServersByLabel},
		{"floating IPs", c.deleteFloatingIPsByLabel},
		{"firewalls", c.deleteFirewallsByLabel},
		{"networks", c.deleteNetworksByLabel},
		{"SSH keys", c.deleteSSHKeysByLabel},
	}
	for _, step := range steps {
		if err := step.fn(ctx, labelSelector); err != nil {
			c.logf("[Cleanup] Warning: Failed to delete %s: %v", step.name, err)
			cleanupErrs.Add(fmt.Errorf("%s: %w", step.name, err))
		}
	}

	if cleanupErrs.HasErrors() {
		c.logf("[Cleanup] Cleanup completed with %d errors", len(cleanupErrs.Errors))
		return cleanupErrs
	}
	c.logf("[Cleanup] Cleanup complete")
	return nil
}

// deleteServersByLabel deletes matching servers and waits until they are gone,
// since networks and firewalls cannot be removed while servers use them.
func (c *RealClient) deleteServersByLabel(ctx context.Context, labelSelector string) error {
	list := func(ctx context.Context) ([]*hcloud.Server, error) {
		return c.client.Server.AllWithOpts(ctx, hcloud.ServerListOpts{
			ListOpts: hcloud.ListOpts{LabelSelector: labelSelector},
		})
	}

	err := deleteResourcesByLabel(ctx, c, "server", list, func(ctx context.Context, s *hcloud.Server) error {
		_, _, err := c.client.Server.DeleteWithResult(ctx, s)
		return err
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Delete)
	defer cancel()
	for {
		remaining, err := list(ctx)
		if err != nil {
			return fmt.Errorf("failed to check remaining servers: %w", err)
		}
		if len(remaining) == 0 {
			return nil
		}
		c.logf("[Cleanup] Waiting for %d servers to be fully deleted...", len(remaining))
		select {
		case <-ctx.Done():
			return fmt.Errorf("servers still present: %w", ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *RealClient) deleteFloatingIPsByLabel(ctx context.Context, labelSelector string) error {
	return deleteResourcesByLabel(ctx, c, "floating IP",
		func(ctx context.Context) ([]*hcloud.FloatingIP, error) {
			return c.client.FloatingIP.AllWithOpts(ctx, hcloud.FloatingIPListOpts{
				ListOpts: hcloud.ListOpts{LabelSelector: labelSelector},
			})
		},
		func(ctx context.Context, fip *hcloud.FloatingIP) error {
			_, err := c.client.FloatingIP.Delete(ctx, fip)
			return err
		},
	)
}

// deleteFirewallsByLabel detaches and deletes matching firewalls, retrying
// while they are still in use by servers being torn down.
func (c *RealClient) deleteFirewallsByLabel(ctx context.Context, labelSelector string) error {
	return deleteResourcesByLabel(ctx, c, "firewall",
		func(ctx context.Context) ([]*hcloud.Firewall, error) {
			return c.client.Firewall.AllWithOpts(ctx, hcloud.FirewallListOpts{
				ListOpts: hcloud.ListOpts{LabelSelector: labelSelector},
			})
		},
		func(ctx context.Context, fw *hcloud.Firewall) error {
			return (&DeleteOperation[*hcloud.Firewall]{
				Name:         fw.Name,
				ResourceType: "firewall",
				Get:          c.client.Firewall.Get,
				Delete:       c.detachAndDeleteFirewall,
			}).Execute(ctx, c)
		},
	)
}

func (c *RealClient) deleteNetworksByLabel(ctx context.Context, labelSelector string) error {
	return deleteResourcesByLabel(ctx, c, "network",
		func(ctx context.Context) ([]*hcloud.Network, error) {
			return c.client.Network.AllWithOpts(ctx, hcloud.NetworkListOpts{
				ListOpts: hcloud.ListOpts{LabelSelector: labelSelector},
			})
		},
		func(ctx context.Context, n *hcloud.Network) error {
			_, err := c.client.Network.Delete(ctx, n)
			return err
		},
	)
}

func (c *RealClient) deleteSSHKeysByLabel(ctx context.Context, labelSelector string) error {
	return deleteResourcesByLabel(ctx, c, "SSH key",
		func(ctx context.Context) ([]*hcloud.SSHKey, error) {
			return c.client.SSHKey.AllWithOpts(ctx, hcloud.SSHKeyListOpts{
				ListOpts: hcloud.ListOpts{LabelSelector: labelSelector},
			})
		},
		func(ctx context.Context, k *hcloud.SSHKey) error {
			_, err := c.client.SSHKey.Delete(ctx, k)
			return err
		},
	)
}
