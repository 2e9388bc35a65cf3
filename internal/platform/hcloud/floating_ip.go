package hcloud

import (
	"context"
	"fmt"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

type floatingIPCreateParams struct {
	name         string
	homeLocation string
	labels       map[string]string
}

// EnsureFloatingIP ensures that an IPv4 floating IP exists.
func (c *RealClient) EnsureFloatingIP(ctx context.Context, name, homeLocation string, labels map[string]string) (*hcloud.FloatingIP, bool, error) {
	params := floatingIPCreateParams{name: name, homeLocation: homeLocation, labels: labels}

	return (&EnsureOperation[*hcloud.FloatingIP, floatingIPCreateParams, any]{
		Name:         name,
		ResourceType: "floating IP",
		Get:          c.client.FloatingIP.Get,
		Create:       c.createFloatingIPWithDeps,
		Validate: func(fip *hcloud.FloatingIP) error {
			if fip.Type != hcloud.FloatingIPTypeIPv4 {
				return fmt.Errorf("floating IP %s exists with type %s, expected ipv4", name, fip.Type)
			}
			return nil
		},
		CreateOptsMapper: func() floatingIPCreateParams {
			return params
		},
	}).Execute(ctx, c)
}

// createFloatingIPWithDeps resolves the home location and creates the floating IP.
func (c *RealClient) createFloatingIPWithDeps(ctx context.Context, params floatingIPCreateParams) (*CreateResult[*hcloud.FloatingIP], *hcloud.Response, error) {
	loc, err := c.resolveLocation(ctx, params.homeLocation)
	if err != nil {
		return nil, nil, err
	}

	res, resp, err := c.client.FloatingIP.Create(ctx, hcloud.FloatingIPCreateOpts{
		Name:         &params.name,
		Type:         hcloud.FloatingIPTypeIPv4,
		HomeLocation: loc,
		Labels:       params.labels,
	})
	if err != nil {
		return nil, resp, err
	}
	return &CreateResult[*hcloud.FloatingIP]{Resource: res.FloatingIP, Action: res.Action}, resp, nil
}

// AssignFloatingIP routes the floating IP to the server. It reports whether
// an assignment was made; an IP already on the server is left alone.
func (c *RealClient) AssignFloatingIP(ctx context.Context, fip *hcloud.FloatingIP, serverID int64) (bool, error) {
	if fip == nil {
		return false, fmt.Errorf("floating IP is nil")
	}
	if fip.Server != nil && fip.Server.ID == serverID {
		return false, nil
	}

	action, _, err := c.client.FloatingIP.Assign(ctx, fip, &hcloud.Server{ID: serverID})
	if err != nil {
		return false, fmt.Errorf("failed to assign floating IP %s to server %d: %w", fip.Name, serverID, err)
	}
	if err := waitForActions(ctx, c.client, action); err != nil {
		return false, fmt.Errorf("failed to wait for floating IP assignment: %w", err)
	}
	return true, nil
}

// DeleteFloatingIP deletes the floating IP with the given name.
func (c *RealClient) DeleteFloatingIP(ctx context.Context, name string) error {
	return (&DeleteOperation[*hcloud.FloatingIP]{
		Name:         name,
		ResourceType: "floating IP",
		Get:          c.client.FloatingIP.Get,
		Delete:       c.client.FloatingIP.Delete,
	}).Execute(ctx, c)
}

// GetFloatingIP returns the floating IP with the given name, or nil.
func (c *RealClient) GetFloatingIP(ctx context.Context, name string) (*hcloud.FloatingIP, error) {
	fip, _, err := c.client.FloatingIP.Get(ctx, name)
	return fip, err
}
