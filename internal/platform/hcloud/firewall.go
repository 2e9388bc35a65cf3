package hcloud

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// EnsureFirewall ensures that a firewall exists with exactly the given rules
// and is applied to servers matching applyToLabelSelector. Rules are only
// rewritten when they differ from the existing ones.
func (c *RealClient) EnsureFirewall(ctx context.Context, name string, rules []hcloud.FirewallRule, labels map[string]string, applyToLabelSelector string) (*hcloud.Firewall, bool, error) {
	var applyTo []hcloud.FirewallResource
	if applyToLabelSelector != "" {
		applyTo = []hcloud.FirewallResource{labelSelectorResource(applyToLabelSelector)}
	}

	fw, created, err := (&EnsureOperation[*hcloud.Firewall, hcloud.FirewallCreateOpts, hcloud.FirewallSetRulesOpts]{
		Name:         name,
		ResourceType: "firewall",
		Get:          c.client.Firewall.Get,
		Create:       c.createFirewall,
		Update:       c.client.Firewall.SetRules,
		NeedsUpdate: func(fw *hcloud.Firewall) bool {
			return !RulesEqual(fw.Rules, rules)
		},
		CreateOptsMapper: func() hcloud.FirewallCreateOpts {
			return hcloud.FirewallCreateOpts{
				Name:    name,
				Rules:   rules,
				Labels:  labels,
				ApplyTo: applyTo,
			}
		},
		UpdateOptsMapper: func(_ *hcloud.Firewall) hcloud.FirewallSetRulesOpts {
			return hcloud.FirewallSetRulesOpts{Rules: rules}
		},
	}).Execute(ctx, c)
	if err != nil {
		return nil, false, err
	}

	if !created && applyToLabelSelector != "" && !appliedToSelector(fw, applyToLabelSelector) {
		actions, _, err := c.client.Firewall.ApplyResources(ctx, fw, applyTo)
		if err != nil {
			return nil, false, fmt.Errorf("failed to apply firewall %s to %s: %w", name, applyToLabelSelector, err)
		}
		if err := waitForActions(ctx, c.client, actions...); err != nil {
			return nil, false, fmt.Errorf("failed to wait for firewall apply: %w", err)
		}
	}
	return fw, created, nil
}

func (c *RealClient) createFirewall(ctx context.Context, opts hcloud.FirewallCreateOpts) (*CreateResult[*hcloud.Firewall], *hcloud.Response, error) {
	res, resp, err := c.client.Firewall.Create(ctx, opts)
	if err != nil {
		return nil, resp, err
	}
	return &CreateResult[*hcloud.Firewall]{
		Resource: res.Firewall,
		Actions:  res.Actions,
	}, resp, nil
}

func labelSelectorResource(selector string) hcloud.FirewallResource {
	return hcloud.FirewallResource{
		Type:          hcloud.FirewallResourceTypeLabelSelector,
		LabelSelector: &hcloud.FirewallResourceLabelSelector{Selector: selector},
	}
}

func appliedToSelector(fw *hcloud.Firewall, selector string) bool {
	for _, r := range fw.AppliedTo {
		if r.Type == hcloud.FirewallResourceTypeLabelSelector && r.LabelSelector != nil && r.LabelSelector.Selector == selector {
			return true
		}
	}
	return false
}

// RulesEqual compares two rule sets ignoring order and descriptions.
func RulesEqual(a, b []hcloud.FirewallRule) bool {
	if len(a) != len(b) {
		return false
	}
	return slices.Equal(ruleKeys(a), ruleKeys(b))
}

func ruleKeys(rules []hcloud.FirewallRule) []string {
	keys := make([]string, 0, len(rules))
	for _, r := range rules {
		port := ""
		if r.Port != nil {
			port = *r.Port
		}
		keys = append(keys, fmt.Sprintf("%s|%s|%s|%s|%s",
			r.Direction, r.Protocol, port, netList(r.SourceIPs), netList(r.DestinationIPs)))
	}
	slices.Sort(keys)
	return keys
}

func netList(nets []net.IPNet) string {
	out := make([]string, 0, len(nets))
	for _, n := range nets {
		out = append(out, n.String())
	}
	slices.Sort(out)
	return strings.Join(out, ",")
}

// DeleteFirewall detaches the firewall from its resources and deletes it.
func (c *RealClient) DeleteFirewall(ctx context.Context, name string) error {
	return (&DeleteOperation[*hcloud.Firewall]{
		Name:         name,
		ResourceType: "firewall",
		Get:          c.client.Firewall.Get,
		Delete:       c.detachAndDeleteFirewall,
	}).Execute(ctx, c)
}

func (c *RealClient) detachAndDeleteFirewall(ctx context.Context, fw *hcloud.Firewall) (*hcloud.Response, error) {
	if len(fw.AppliedTo) > 0 {
		actions, resp, err := c.client.Firewall.RemoveResources(ctx, fw, fw.AppliedTo)
		if err != nil {
			return resp, err
		}
		if err := waitForActions(ctx, c.client, actions...); err != nil {
			return resp, err
		}
	}
	return c.client.Firewall.Delete(ctx, fw)
}

// GetFirewall returns the firewall with the given name, or nil.
func (c *RealClient) GetFirewall(ctx context.Context, name string) (*hcloud.Firewall, error) {
	fw, _, err := c.client.Firewall.Get(ctx, name)
	return fw, err
}
